// Package gesture implements the IMU gesture recognition engine: signal
// conditioning, windowing, a layered classifier stack (threshold heuristics,
// banded-DTW template matching, optional ML inference), false-positive
// mitigation, a recording workflow and multi-gesture sequence detection.
//
// Samples flow one direction through the pipeline:
//
//	raw sample → filter bank → ring buffer → segmenter → classifiers → guard → events
package gesture

import "math"

// Sample is a single IMU reading. GX/GY/GZ are zero for 3-axis streams.
// TimestampMs is a monotonic millisecond timestamp assigned by the transport.
type Sample struct {
	AX        float64 `json:"ax"`
	AY        float64 `json:"ay"`
	AZ        float64 `json:"az"`
	GX        float64 `json:"gx"`
	GY        float64 `json:"gy"`
	GZ        float64 `json:"gz"`
	Timestamp int64   `json:"t"` // milliseconds, monotonic within a feed
}

// Magnitude returns the acceleration magnitude sqrt(ax²+ay²+az²).
func (s Sample) Magnitude() float64 {
	return math.Sqrt(s.AX*s.AX + s.AY*s.AY + s.AZ*s.AZ)
}

// SMA returns the signal magnitude area contribution |ax|+|ay|+|az|.
func (s Sample) SMA() float64 {
	return math.Abs(s.AX) + math.Abs(s.AY) + math.Abs(s.AZ)
}

// Axis extracts a single axis value by index (0..5 = ax,ay,az,gx,gy,gz).
func (s Sample) Axis(i int) float64 {
	switch i {
	case 0:
		return s.AX
	case 1:
		return s.AY
	case 2:
		return s.AZ
	case 3:
		return s.GX
	case 4:
		return s.GY
	case 5:
		return s.GZ
	}
	return 0
}

// Window is a contiguous, time-ordered slice of samples produced by the
// Segmenter. Samples is never empty and EndMs equals the last sample's
// timestamp.
type Window struct {
	Samples    []Sample
	StartMs    int64
	EndMs      int64
	SampleRate float64
	Axes       int
}

// DurationMs returns the window span in milliseconds.
func (w *Window) DurationMs() int64 {
	return w.EndMs - w.StartMs
}

// MagnitudeSeries returns the per-sample acceleration magnitude.
func (w *Window) MagnitudeSeries() []float64 {
	out := make([]float64, len(w.Samples))
	for i, s := range w.Samples {
		out[i] = s.Magnitude()
	}
	return out
}

// ClassifierType identifies which tier produced a recognition result.
type ClassifierType string

const (
	ClassifierThreshold ClassifierType = "threshold"
	ClassifierDTW       ClassifierType = "dtw"
	ClassifierML        ClassifierType = "ml"
)

// RejectionReason explains why the guard (or a classifier) refused a result.
type RejectionReason string

const (
	RejectNone               RejectionReason = ""
	RejectActivityTooHigh    RejectionReason = "activity_too_high"
	RejectGeofenceInactive   RejectionReason = "geofence_inactive"
	RejectActivationRequired RejectionReason = "activation_required"
	RejectNoMatch            RejectionReason = "no_matching_gesture"
	RejectNoiseClass         RejectionReason = "noise_class_match"
	RejectLowConfidence      RejectionReason = "low_confidence"
	RejectDuplicate          RejectionReason = "duplicate"
	RejectCooldown           RejectionReason = "cooldown"
	RejectRateLimit          RejectionReason = "rate_limit"
)

// Alternative is a runner-up candidate from the DTW or ML classifier.
type Alternative struct {
	GestureID  string  `json:"gesture_id"`
	Confidence float64 `json:"confidence"`
	RawScore   float64 `json:"raw_score"`
}

// RecognitionResult is the outcome of classifying one window. Classifiers
// produce it with Accepted unset; the false-positive guard re-stamps a copy
// with the final Accepted/RejectionReason verdict.
type RecognitionResult struct {
	GestureID        string          `json:"gesture_id"` // empty when nothing matched
	GestureName      string          `json:"gesture_name"`
	Confidence       float64         `json:"confidence"` // [0,1]
	Classifier       ClassifierType  `json:"classifier"`
	RawScore         float64         `json:"raw_score"`
	Timestamp        int64           `json:"timestamp"` // ms, end of the window
	WindowDurationMs int64           `json:"window_duration_ms"`
	Accepted         bool            `json:"accepted"`
	RejectionReason  RejectionReason `json:"rejection_reason,omitempty"`
	Alternatives     []Alternative   `json:"alternatives,omitempty"`
}

// ActivityLevel buckets the rolling motion variance of the stream.
type ActivityLevel string

const (
	ActivityStationary ActivityLevel = "stationary"
	ActivityLow        ActivityLevel = "low"
	ActivityModerate   ActivityLevel = "moderate"
	ActivityHigh       ActivityLevel = "high"
)

// rank orders activity levels for threshold comparison.
func (l ActivityLevel) rank() int {
	switch l {
	case ActivityStationary:
		return 0
	case ActivityLow:
		return 1
	case ActivityModerate:
		return 2
	case ActivityHigh:
		return 3
	}
	return -1
}

// AtLeast reports whether l is at or above other in the activity ordering.
func (l ActivityLevel) AtLeast(other ActivityLevel) bool {
	return l.rank() >= other.rank()
}

// ActivityContext is the advisory motion context recomputed each
// segmentation step. It gates recognition but never segmentation itself.
type ActivityContext struct {
	Level     ActivityLevel `json:"level"`
	Variance  float64       `json:"variance"`
	Timestamp int64         `json:"timestamp"`
}

// GestureDefinition is static metadata for a registered gesture.
type GestureDefinition struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Category   string         `json:"category,omitempty"`
	Classifier ClassifierType `json:"classifier,omitempty"`
}

// GestureTemplate is one recorded exemplar of a gesture. MagnitudeSeries is
// a derived cache, recomputed lazily when absent; Features are stripped on
// export and recomputed on import.
type GestureTemplate struct {
	ID              string    `json:"id"`
	GestureID       string    `json:"gesture_id"`
	Samples         []Sample  `json:"samples"`
	Features        []float64 `json:"-"`
	MagnitudeSeries []float64 `json:"magnitude_series,omitempty"`
	RecordedAtMs    int64     `json:"recorded_at_ms"`
	DurationMs      int64     `json:"duration_ms"`
	SampleRate      float64   `json:"sample_rate"`
}

// Magnitudes returns the cached magnitude series, computing it on demand.
func (t *GestureTemplate) Magnitudes() []float64 {
	if t.MagnitudeSeries == nil {
		t.MagnitudeSeries = make([]float64, len(t.Samples))
		for i, s := range t.Samples {
			t.MagnitudeSeries[i] = s.Magnitude()
		}
	}
	return t.MagnitudeSeries
}

// GestureClass is a registered gesture plus its recorded templates.
type GestureClass struct {
	Definition   GestureDefinition  `json:"definition"`
	Templates    []*GestureTemplate `json:"templates"`
	MinTemplates int                `json:"min_templates"`
}

// IsReady reports whether the class has enough templates to be matched.
func (c *GestureClass) IsReady() bool {
	return len(c.Templates) >= c.MinTemplates
}
