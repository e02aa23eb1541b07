package gesture

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDTWSelfDistanceZero(t *testing.T) {
	t.Parallel()

	a := []float64{0, 1, 2, 3, 2, 1, 0, 1, 2, 3}
	assert.InDelta(t, 0.0, dtwDistance1D(a, a, 0.1), 1e-12)
}

func TestDTWShiftedSeriesSmallDistance(t *testing.T) {
	t.Parallel()

	// the same pulse shifted by two samples should align cheaply
	a := make([]float64, 50)
	b := make([]float64, 50)
	for i := 10; i < 20; i++ {
		a[i] = 3
		b[i+2] = 3
	}
	shifted := dtwDistance1D(a, b, 0.1)
	different := dtwDistance1D(a, make([]float64, 50), 0.1)

	assert.Less(t, shifted, 0.2)
	assert.Less(t, shifted, different/2)
}

func TestDTWEmptySeries(t *testing.T) {
	t.Parallel()

	assert.True(t, math.IsInf(dtwDistance1D(nil, []float64{1}, 0.1), 1))
	assert.True(t, math.IsInf(dtwDistance1D([]float64{1}, nil, 0.1), 1))
}

func TestDTWUnequalLengths(t *testing.T) {
	t.Parallel()

	// length difference larger than the nominal band: widened band must
	// still yield a finite alignment
	a := make([]float64, 30)
	b := make([]float64, 50)
	for i := range a {
		a[i] = math.Sin(float64(i) * 0.4)
	}
	for i := range b {
		b[i] = math.Sin(float64(i) * 0.4 * 30 / 50)
	}
	d := dtwDistance1D(a, b, 0.1)
	assert.False(t, math.IsInf(d, 1))
}

func TestDTWMultiMatchesScalarOnOneAxis(t *testing.T) {
	t.Parallel()

	a := [][]float64{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	b := [][]float64{{1, 0, 0}, {2, 0, 0}, {3, 0, 0}}
	assert.InDelta(t, 0.0, dtwDistanceMulti(a, b, 0.1), 1e-12)

	c := [][]float64{{0, 1, 0}, {0, 2, 0}, {0, 3, 0}}
	assert.Greater(t, dtwDistanceMulti(a, c, 0.1), 0.0)
}

func dtwTestClass(id string, freqs ...float64) *GestureClass {
	class := &GestureClass{
		Definition:   GestureDefinition{ID: id, Name: id, Classifier: ClassifierDTW},
		MinTemplates: 3,
	}
	for _, f := range freqs {
		samples := make([]Sample, 60)
		for i := range samples {
			samples[i] = Sample{
				AX:        3 * math.Sin(2*math.Pi*f*float64(i)/50),
				Timestamp: int64(i) * 20,
			}
		}
		class.Templates = append(class.Templates, &GestureTemplate{
			GestureID:  id,
			Samples:    samples,
			SampleRate: 50,
			DurationMs: 59 * 20,
		})
	}
	return class
}

func windowFromTemplate(tpl *GestureTemplate) *Window {
	return &Window{
		Samples:    tpl.Samples,
		StartMs:    tpl.Samples[0].Timestamp,
		EndMs:      tpl.Samples[len(tpl.Samples)-1].Timestamp,
		SampleRate: 50,
		Axes:       3,
	}
}

func TestDTWClassifierMatchesOwnTemplate(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	// slight frequency spread across repetitions of the same gesture
	wave := dtwTestClass("wave", 2.0, 2.1, 1.9)
	require.NoError(t, lib.SetClass(wave))
	require.NoError(t, lib.SetClass(dtwTestClass("chop", 6.0, 6.2, 5.8)))

	dc := NewDTWClassifier(lib, DefaultEngineConfig())
	r := dc.Classify(windowFromTemplate(wave.Templates[0]))

	assert.Equal(t, "wave", r.GestureID)
	assert.Equal(t, ClassifierDTW, r.Classifier)
	assert.InDelta(t, 0.0, r.RawScore, 1e-9)
	assert.Greater(t, r.Confidence, 0.7)
	require.NotEmpty(t, r.Alternatives)
	assert.Equal(t, "chop", r.Alternatives[0].GestureID)
}

func TestDTWClassifierRejectsDistantWindow(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	require.NoError(t, lib.SetClass(dtwTestClass("wave", 2.0, 2.1, 1.9)))

	dc := NewDTWClassifier(lib, DefaultEngineConfig())

	// a flat high-magnitude window resembles none of the templates
	samples := make([]Sample, 60)
	for i := range samples {
		samples[i] = Sample{AX: 20, Timestamp: int64(i) * 20}
	}
	r := dc.Classify(&Window{Samples: samples, EndMs: 59 * 20, SampleRate: 50, Axes: 3})

	assert.Empty(t, r.GestureID)
	assert.Equal(t, RejectNoMatch, r.RejectionReason)
}

func TestDTWClassifierNoReadyClasses(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	// one template is below MinTemplates, so the class is not matchable
	short := dtwTestClass("wave", 2.0)
	require.NoError(t, lib.SetClass(short))

	dc := NewDTWClassifier(lib, DefaultEngineConfig())
	r := dc.Classify(windowFromTemplate(short.Templates[0]))
	assert.Equal(t, RejectNoMatch, r.RejectionReason)
}

func TestDTWExplicitMaxDistance(t *testing.T) {
	t.Parallel()

	lib := NewLibrary()
	wave := dtwTestClass("wave", 2.0, 2.1, 1.9)
	require.NoError(t, lib.SetClass(wave))

	cfg := DefaultEngineConfig()
	cfg.DTWMaxDistance = 1e-6 // so strict even the exact template fails the margin
	dc := NewDTWClassifier(lib, cfg)

	// an off-library window is rejected under the strict cutoff
	samples := make([]Sample, 60)
	for i := range samples {
		samples[i] = Sample{AX: 2 * math.Sin(2*math.Pi*3.5*float64(i)/50), Timestamp: int64(i) * 20}
	}
	r := dc.Classify(&Window{Samples: samples, EndMs: 59 * 20, SampleRate: 50, Axes: 3})
	assert.Equal(t, RejectNoMatch, r.RejectionReason)
}

func TestComputeConsistency(t *testing.T) {
	t.Parallel()

	tight := dtwTestClass("a", 2.0, 2.02, 1.98).Templates
	loose := dtwTestClass("b", 1.0, 4.0, 8.0).Templates

	ct := ComputeConsistency(tight, 0.1)
	cl := ComputeConsistency(loose, 0.1)

	assert.Greater(t, ct, cl)
	assert.Greater(t, ct, 0.7)

	// fewer than two templates is trivially consistent
	assert.Equal(t, 1.0, ComputeConsistency(tight[:1], 0.1))
}

func TestDistanceSigmoid(t *testing.T) {
	t.Parallel()

	assert.InDelta(t, 0.5, distanceSigmoid(1.0, 2.0), 1e-12)
	assert.Greater(t, distanceSigmoid(0, 2.0), 0.85)
	assert.Less(t, distanceSigmoid(4.0, 2.0), 0.01)
	assert.Equal(t, 0.0, distanceSigmoid(1.0, 0))
}
