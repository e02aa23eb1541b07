// Package testutil provides shared test fixtures: synthetic IMU waveforms
// for exercising the recognition pipeline, and small HTTP assertion helpers
// for the monitor endpoints.
package testutil

import (
	"math"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/banshee-data/gestures/internal/gesture"
)

// AssertStatusCode checks that the response status code matches expected.
func AssertStatusCode(t *testing.T, got, want int) {
	t.Helper()
	if got != want {
		t.Errorf("status code = %d, want %d", got, want)
	}
}

// AssertNoError fails the test if err is not nil.
func AssertNoError(t *testing.T, err error) {
	t.Helper()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

// AssertError fails the test if err is nil.
func AssertError(t *testing.T, err error) {
	t.Helper()
	if err == nil {
		t.Fatal("expected error, got nil")
	}
}

// NewTestRequest creates a test HTTP request.
func NewTestRequest(method, path string) *http.Request {
	return httptest.NewRequest(method, path, nil)
}

// NewTestRecorder creates a test response recorder.
func NewTestRecorder() *httptest.ResponseRecorder {
	return httptest.NewRecorder()
}

// StillSamples produces n quiescent samples (gravity on Z plus a tiny
// wobble) starting at startMs, spaced for the given sample rate.
func StillSamples(n int, startMs int64, rateHz float64) []gesture.Sample {
	stepMs := int64(1000.0 / rateHz)
	out := make([]gesture.Sample, n)
	for i := range out {
		out[i] = gesture.Sample{
			AZ:        1.0 + 0.005*math.Sin(float64(i)*0.7),
			Timestamp: startMs + int64(i)*stepMs,
		}
	}
	return out
}

// ShakeSamples produces a vigorous lateral shake: a sinusoid on X at
// shakeHz with the given peak amplitude, gravity on Z.
func ShakeSamples(n int, startMs int64, rateHz, shakeHz, amplitude float64) []gesture.Sample {
	stepMs := int64(1000.0 / rateHz)
	out := make([]gesture.Sample, n)
	for i := range out {
		t := float64(i) / rateHz
		out[i] = gesture.Sample{
			AX:        amplitude * math.Sin(2*math.Pi*shakeHz*t),
			AZ:        1.0,
			Timestamp: startMs + int64(i)*stepMs,
		}
	}
	return out
}

// TapSamples produces a single sharp spike of the given amplitude on Z,
// a couple of samples wide, surrounded by stillness.
func TapSamples(n, spikeAt int, startMs int64, rateHz, amplitude float64) []gesture.Sample {
	out := StillSamples(n, startMs, rateHz)
	if spikeAt >= 0 && spikeAt < n {
		out[spikeAt].AZ += amplitude
		if spikeAt+1 < n {
			out[spikeAt+1].AZ += amplitude * 0.4
		}
	}
	return out
}

// SineWindow builds a classification window whose signal is a pure sinusoid
// on X, handy for template and DTW tests.
func SineWindow(n int, startMs int64, rateHz, freqHz, amplitude float64) gesture.Window {
	stepMs := int64(1000.0 / rateHz)
	samples := make([]gesture.Sample, n)
	for i := range samples {
		t := float64(i) / rateHz
		samples[i] = gesture.Sample{
			AX:        amplitude * math.Sin(2*math.Pi*freqHz*t),
			Timestamp: startMs + int64(i)*stepMs,
		}
	}
	return gesture.Window{
		Samples:    samples,
		StartMs:    startMs,
		EndMs:      startMs + int64(n-1)*stepMs,
		SampleRate: rateHz,
		Axes:       3,
	}
}

// TemplateFromWindow wraps a window's samples as a recorded exemplar.
func TemplateFromWindow(w gesture.Window) *gesture.GestureTemplate {
	return &gesture.GestureTemplate{
		Samples:    w.Samples,
		SampleRate: w.SampleRate,
		DurationMs: w.DurationMs(),
	}
}
