package gesture

import (
	"math"

	"gonum.org/v1/gonum/dsp/fourier"
	"gonum.org/v1/gonum/stat"
)

// AxisStats are time-domain statistics for one axis of a window.
type AxisStats struct {
	Mean   float64
	StdDev float64
	Min    float64
	Max    float64
	Energy float64 // mean squared value
}

// WindowFeatures is the feature vector extracted from one window. Flat holds
// every field in a fixed order for ML input.
type WindowFeatures struct {
	// Magnitude series statistics
	MagMean       float64
	MagStdDev     float64
	MagMin        float64
	MagMax        float64
	MagRMS        float64
	MagSkew       float64
	SMA           float64
	ZeroCrossRate float64 // of the mean-removed magnitude

	PerAxis []AxisStats

	// Frequency-domain (zero when disabled)
	DominantFreqHz  float64
	SpectralEnergy  float64
	SpectralEntropy float64

	Flat []float64
}

// FeatureExtractor computes window features. It is stateless; all methods
// are pure functions of their input.
type FeatureExtractor struct {
	axes       int
	sampleRate float64
	frequency  bool
}

// NewFeatureExtractor builds an extractor for the given stream shape.
// frequency enables the FFT-based features.
func NewFeatureExtractor(axes int, sampleRate float64, frequency bool) *FeatureExtractor {
	return &FeatureExtractor{axes: axes, sampleRate: sampleRate, frequency: frequency}
}

// Extract computes the feature vector for a window.
func (fe *FeatureExtractor) Extract(w *Window) *WindowFeatures {
	f := &WindowFeatures{PerAxis: make([]AxisStats, fe.axes)}

	mags := w.MagnitudeSeries()
	f.MagMean = stat.Mean(mags, nil)
	f.MagStdDev = math.Sqrt(stat.Variance(mags, nil))
	f.MagMin, f.MagMax = minMax(mags)
	f.MagRMS = rms(mags)
	if len(mags) > 2 && f.MagStdDev > 0 {
		f.MagSkew = stat.Skew(mags, nil)
	}
	f.ZeroCrossRate = zeroCrossRate(mags, f.MagMean)

	var sma float64
	for _, s := range w.Samples {
		sma += s.SMA()
	}
	f.SMA = sma / float64(len(w.Samples))

	series := make([]float64, len(w.Samples))
	for a := 0; a < fe.axes; a++ {
		for i, s := range w.Samples {
			series[i] = s.Axis(a)
		}
		st := &f.PerAxis[a]
		st.Mean = stat.Mean(series, nil)
		st.StdDev = math.Sqrt(stat.Variance(series, nil))
		st.Min, st.Max = minMax(series)
		st.Energy = rms(series) * rms(series)
	}

	if fe.frequency {
		f.DominantFreqHz, f.SpectralEnergy, f.SpectralEntropy = spectralFeatures(mags, fe.sampleRate)
	}

	f.Flat = fe.flatten(f)
	return f
}

// flatten serializes the features into a fixed-order vector. Order is part
// of the persisted-model contract and must not change between releases.
func (fe *FeatureExtractor) flatten(f *WindowFeatures) []float64 {
	out := make([]float64, 0, 11+5*fe.axes)
	out = append(out,
		f.MagMean, f.MagStdDev, f.MagMin, f.MagMax, f.MagRMS, f.MagSkew,
		f.SMA, f.ZeroCrossRate,
		f.DominantFreqHz, f.SpectralEnergy, f.SpectralEntropy,
	)
	for _, st := range f.PerAxis {
		out = append(out, st.Mean, st.StdDev, st.Min, st.Max, st.Energy)
	}
	return out
}

// spectralFeatures computes the dominant frequency, total spectral energy
// (DC excluded) and normalized spectral entropy of a real series.
func spectralFeatures(series []float64, sampleRate float64) (domHz, energy, entropy float64) {
	n := len(series)
	if n < 4 {
		return 0, 0, 0
	}
	fft := fourier.NewFFT(n)
	coeffs := fft.Coefficients(nil, series)

	// Power spectrum over positive frequencies, DC bin excluded.
	power := make([]float64, len(coeffs)-1)
	var total float64
	maxIdx := 0
	for i := 1; i < len(coeffs); i++ {
		p := real(coeffs[i])*real(coeffs[i]) + imag(coeffs[i])*imag(coeffs[i])
		power[i-1] = p
		total += p
		if p > power[maxIdx] {
			maxIdx = i - 1
		}
	}
	if total == 0 {
		return 0, 0, 0
	}

	binHz := sampleRate / float64(n)
	domHz = float64(maxIdx+1) * binHz
	energy = total / float64(len(power))

	for _, p := range power {
		if p <= 0 {
			continue
		}
		q := p / total
		entropy -= q * math.Log2(q)
	}
	entropy /= math.Log2(float64(len(power)))
	return domHz, energy, entropy
}

// inverseFFT recovers a real sequence from coefficients produced by
// fourier.FFT.Coefficients. The gonum transform is unnormalized, so the
// round trip divides by n.
func inverseFFT(coeffs []complex128, n int) []float64 {
	fft := fourier.NewFFT(n)
	seq := fft.Sequence(nil, coeffs)
	for i := range seq {
		seq[i] /= float64(n)
	}
	return seq
}

// Scaler applies z-score normalization to feature vectors for ML input.
type Scaler struct {
	Mean   []float64 `json:"mean"`
	StdDev []float64 `json:"std_dev"`
}

// Apply normalizes v in place. Dimensions beyond the scaler's are left as-is.
func (sc *Scaler) Apply(v []float64) {
	for i := range v {
		if i >= len(sc.Mean) || i >= len(sc.StdDev) {
			return
		}
		if sc.StdDev[i] > 0 {
			v[i] = (v[i] - sc.Mean[i]) / sc.StdDev[i]
		} else {
			v[i] = v[i] - sc.Mean[i]
		}
	}
}

func minMax(x []float64) (min, max float64) {
	min, max = x[0], x[0]
	for _, v := range x[1:] {
		if v < min {
			min = v
		}
		if v > max {
			max = v
		}
	}
	return min, max
}

func rms(x []float64) float64 {
	var sum float64
	for _, v := range x {
		sum += v * v
	}
	return math.Sqrt(sum / float64(len(x)))
}

func zeroCrossRate(x []float64, mean float64) float64 {
	if len(x) < 2 {
		return 0
	}
	var crossings int
	prev := x[0] - mean
	for _, v := range x[1:] {
		cur := v - mean
		if (prev < 0 && cur >= 0) || (prev >= 0 && cur < 0) {
			crossings++
		}
		prev = cur
	}
	return float64(crossings) / float64(len(x)-1)
}
