package gesture

import (
	"math"
	"testing"
)

func TestLowPassDCGain(t *testing.T) {
	t.Parallel()

	// A constant input must pass through a low-pass filter unchanged once
	// the transient settles.
	f := newLowPass(20, 50)
	var y float64
	for i := 0; i < 500; i++ {
		y = f.process(1.0)
	}
	if math.Abs(y-1.0) > 1e-6 {
		t.Errorf("low-pass DC output = %v, want 1.0", y)
	}
}

func TestHighPassRemovesDC(t *testing.T) {
	t.Parallel()

	f := newHighPass(0.3, 50)
	var y float64
	for i := 0; i < 2000; i++ {
		y = f.process(9.81)
	}
	if math.Abs(y) > 1e-3 {
		t.Errorf("high-pass DC output = %v, want ~0", y)
	}
}

func TestLowPassAttenuatesAboveCutoff(t *testing.T) {
	t.Parallel()

	// 24Hz tone through a 20Hz low-pass at 50Hz sampling should come out
	// much smaller than a 2Hz tone through the same filter.
	gainAt := func(freq float64) float64 {
		f := newLowPass(20, 50)
		peak := 0.0
		n := 500
		for i := 0; i < n; i++ {
			x := math.Sin(2 * math.Pi * freq * float64(i) / 50)
			y := f.process(x)
			// skip the transient
			if i > n/2 && math.Abs(y) > peak {
				peak = math.Abs(y)
			}
		}
		return peak
	}

	low := gainAt(2)
	high := gainAt(24)
	if high >= low {
		t.Errorf("gain at 24Hz (%v) should be below gain at 2Hz (%v)", high, low)
	}
	if high > 0.5 {
		t.Errorf("gain at 24Hz = %v, want significant attenuation", high)
	}
}

func TestFilterBankPreservesTimestamp(t *testing.T) {
	t.Parallel()

	fb := NewFilterBank(3, 20, 0.3, 50)
	out := fb.Process(Sample{AX: 1, AY: 2, AZ: 3, Timestamp: 1234})
	if out.Timestamp != 1234 {
		t.Errorf("timestamp = %d, want 1234", out.Timestamp)
	}
}

func TestFilterBankSixAxes(t *testing.T) {
	t.Parallel()

	fb := NewFilterBank(6, 20, 0.3, 50)
	var out Sample
	for i := 0; i < 2000; i++ {
		out = fb.Process(Sample{AX: 1, AY: 1, AZ: 1, GX: 2, GY: 2, GZ: 2, Timestamp: int64(i) * 20})
	}
	// all axes hold constant values, so the high-pass drives them to zero
	for axis := 0; axis < 6; axis++ {
		if math.Abs(out.Axis(axis)) > 1e-3 {
			t.Errorf("axis %d = %v after constant input, want ~0", axis, out.Axis(axis))
		}
	}
}

func TestFilterBankReset(t *testing.T) {
	t.Parallel()

	fb := NewFilterBank(3, 20, 0.3, 50)
	for i := 0; i < 100; i++ {
		fb.Process(Sample{AX: 5, AY: -5, AZ: 9.81})
	}
	fb.Reset()

	fb2 := NewFilterBank(3, 20, 0.3, 50)
	a := fb.Process(Sample{AX: 1})
	b := fb2.Process(Sample{AX: 1})
	if math.Abs(a.AX-b.AX) > 1e-12 {
		t.Errorf("reset filter output %v differs from fresh filter %v", a.AX, b.AX)
	}
}
