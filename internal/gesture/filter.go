package gesture

import "math"

// biquad is a second-order IIR section in Direct Form II transposed.
// Coefficients are normalized so a0 == 1.
type biquad struct {
	b0, b1, b2 float64
	a1, a2     float64
	z1, z2     float64
}

// butterQ is the quality factor of a second-order Butterworth section.
var butterQ = 1 / math.Sqrt2

// newLowPass derives low-pass coefficients from cutoff and sample rate via
// the bilinear transform. DC gain is exactly 1.
func newLowPass(cutoffHz, sampleRate float64) *biquad {
	k := math.Tan(math.Pi * cutoffHz / sampleRate)
	norm := 1 / (1 + k/butterQ + k*k)
	f := &biquad{}
	f.b0 = k * k * norm
	f.b1 = 2 * f.b0
	f.b2 = f.b0
	f.a1 = 2 * (k*k - 1) * norm
	f.a2 = (1 - k/butterQ + k*k) * norm
	return f
}

// newHighPass derives high-pass coefficients. Gain at DC is exactly 0.
func newHighPass(cutoffHz, sampleRate float64) *biquad {
	k := math.Tan(math.Pi * cutoffHz / sampleRate)
	norm := 1 / (1 + k/butterQ + k*k)
	f := &biquad{}
	f.b0 = norm
	f.b1 = -2 * norm
	f.b2 = norm
	f.a1 = 2 * (k*k - 1) * norm
	f.a2 = (1 - k/butterQ + k*k) * norm
	return f
}

// process advances the filter by one sample. O(1), must be called exactly
// once per raw sample in arrival order.
func (f *biquad) process(x float64) float64 {
	y := f.b0*x + f.z1
	f.z1 = f.b1*x - f.a1*y + f.z2
	f.z2 = f.b2*x - f.a2*y
	return y
}

// reset zeroes the delay state.
func (f *biquad) reset() {
	f.z1, f.z2 = 0, 0
}

// FilterBank runs an independent high-pass → low-pass Butterworth cascade
// per axis. The high-pass strips gravity and slow drift; the low-pass strips
// vibration above the gesture band.
type FilterBank struct {
	axes int
	lp   []*biquad
	hp   []*biquad
}

// NewFilterBank builds a bank for the given axis count (3 or 6).
func NewFilterBank(axes int, lowPassHz, highPassHz, sampleRate float64) *FilterBank {
	fb := &FilterBank{
		axes: axes,
		lp:   make([]*biquad, axes),
		hp:   make([]*biquad, axes),
	}
	for i := 0; i < axes; i++ {
		fb.lp[i] = newLowPass(lowPassHz, sampleRate)
		fb.hp[i] = newHighPass(highPassHz, sampleRate)
	}
	return fb
}

// Process filters one raw sample, returning a new sample with conditioned
// axis values and the original timestamp.
func (fb *FilterBank) Process(s Sample) Sample {
	out := Sample{Timestamp: s.Timestamp}
	vals := [6]float64{s.AX, s.AY, s.AZ, s.GX, s.GY, s.GZ}
	for i := 0; i < fb.axes; i++ {
		v := fb.hp[i].process(vals[i])
		vals[i] = fb.lp[i].process(v)
	}
	out.AX, out.AY, out.AZ = vals[0], vals[1], vals[2]
	out.GX, out.GY, out.GZ = vals[3], vals[4], vals[5]
	return out
}

// Reset zeroes all per-axis filter state. Call on stream restart.
func (fb *FilterBank) Reset() {
	for i := 0; i < fb.axes; i++ {
		fb.lp[i].reset()
		fb.hp[i].reset()
	}
}
