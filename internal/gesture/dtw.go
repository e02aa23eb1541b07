package gesture

import (
	"math"
	"sort"
)

// dtwBand computes the Sakoe-Chiba half-width for two sequence lengths. The
// band is widened to cover the length difference so an alignment path always
// exists.
func dtwBand(n, m int, fraction float64) int {
	band := int(fraction * float64(max(n, m)))
	if band < 1 {
		band = 1
	}
	if diff := n - m; diff < 0 {
		if -diff > band {
			band = -diff
		}
	} else if diff > band {
		band = diff
	}
	return band
}

// dtwDistance1D computes banded DTW between two scalar series, normalized by
// max(N, M). Cost is O(N·band) via two rolling rows.
func dtwDistance1D(a, b []float64, bandFraction float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}
	band := dtwBand(n, m, bandFraction)

	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		for j := range cur {
			cur[j] = math.Inf(1)
		}
		lo := max(1, i-band)
		hi := min(m, i+band)
		for j := lo; j <= hi; j++ {
			d := math.Abs(a[i-1] - b[j-1])
			cur[j] = d + min3(prev[j], cur[j-1], prev[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[m] / float64(max(n, m))
}

// dtwDistanceMulti computes banded DTW between two vector series, with
// Euclidean per-step cost, normalized by max(N, M).
func dtwDistanceMulti(a, b [][]float64, bandFraction float64) float64 {
	n, m := len(a), len(b)
	if n == 0 || m == 0 {
		return math.Inf(1)
	}
	band := dtwBand(n, m, bandFraction)

	prev := make([]float64, m+1)
	cur := make([]float64, m+1)
	for j := range prev {
		prev[j] = math.Inf(1)
	}
	prev[0] = 0

	for i := 1; i <= n; i++ {
		for j := range cur {
			cur[j] = math.Inf(1)
		}
		lo := max(1, i-band)
		hi := min(m, i+band)
		for j := lo; j <= hi; j++ {
			d := euclidean(a[i-1], b[j-1])
			cur[j] = d + min3(prev[j], cur[j-1], prev[j-1])
		}
		prev, cur = cur, prev
	}
	return prev[m] / float64(max(n, m))
}

func euclidean(a, b []float64) float64 {
	var sum float64
	for i := range a {
		d := a[i] - b[i]
		sum += d * d
	}
	return math.Sqrt(sum)
}

func min3(a, b, c float64) float64 {
	return math.Min(a, math.Min(b, c))
}

// DTWClassifier matches candidate windows against recorded templates with
// Sakoe-Chiba banded dynamic time warping. There is no training phase: the
// template library is the model.
type DTWClassifier struct {
	library *Library
	cfg     EngineConfig

	// maxDistCache holds auto-calibrated per-class distance cutoffs, keyed
	// by gesture id and invalidated when the class's template count changes.
	maxDistCache map[string]calibratedCutoff
}

type calibratedCutoff struct {
	templates int
	cutoff    float64
}

// NewDTWClassifier builds a classifier over the given library.
func NewDTWClassifier(library *Library, cfg EngineConfig) *DTWClassifier {
	return &DTWClassifier{
		library:      library,
		cfg:          cfg,
		maxDistCache: make(map[string]calibratedCutoff),
	}
}

type classScore struct {
	class *GestureClass
	dist  float64
}

// Classify compares the window against every ready class and returns the
// best match, or a rejection result when nothing is close enough.
func (dc *DTWClassifier) Classify(w *Window) RecognitionResult {
	classes := dc.library.ReadyClasses()
	reject := RecognitionResult{
		Classifier:       ClassifierDTW,
		Timestamp:        w.EndMs,
		WindowDurationMs: w.DurationMs(),
		RejectionReason:  RejectNoMatch,
	}
	if len(classes) == 0 {
		return reject
	}

	candMags := w.MagnitudeSeries()
	var candVecs [][]float64
	if !dc.cfg.DTWRotationInvariant {
		candVecs = sampleVectors(w.Samples, w.Axes)
	}

	scores := make([]classScore, 0, len(classes))
	for _, class := range classes {
		best := math.Inf(1)
		for _, tmpl := range class.Templates {
			var d float64
			if dc.cfg.DTWRotationInvariant {
				d = dtwDistance1D(candMags, tmpl.Magnitudes(), dc.cfg.DTWBandFraction)
			} else {
				d = dtwDistanceMulti(candVecs, sampleVectors(tmpl.Samples, w.Axes), dc.cfg.DTWBandFraction)
			}
			if d < best {
				best = d
			}
		}
		scores = append(scores, classScore{class: class, dist: best})
	}

	sort.Slice(scores, func(i, j int) bool { return scores[i].dist < scores[j].dist })

	best := scores[0]
	maxDist := dc.maxDistanceFor(best.class)
	if best.dist > maxDist {
		reject.RawScore = best.dist
		return reject
	}

	conf := dc.confidence(scores, maxDist)
	r := RecognitionResult{
		GestureID:        best.class.Definition.ID,
		GestureName:      best.class.Definition.Name,
		Confidence:       conf,
		Classifier:       ClassifierDTW,
		RawScore:         best.dist,
		Timestamp:        w.EndMs,
		WindowDurationMs: w.DurationMs(),
	}
	for _, s := range scores[1:] {
		if len(r.Alternatives) == 3 {
			break
		}
		r.Alternatives = append(r.Alternatives, Alternative{
			GestureID:  s.class.Definition.ID,
			RawScore:   s.dist,
			Confidence: clamp01(distanceSigmoid(s.dist, maxDist)),
		})
	}
	return r
}

// confidence blends a sigmoid of the absolute best distance with the
// relative margin to the second-best class.
func (dc *DTWClassifier) confidence(scores []classScore, maxDist float64) float64 {
	sig := distanceSigmoid(scores[0].dist, maxDist)
	if len(scores) < 2 || scores[1].dist <= 0 {
		return clamp01(sig)
	}
	margin := (scores[1].dist - scores[0].dist) / scores[1].dist
	return clamp01(0.65*sig + 0.35*margin)
}

// distanceSigmoid maps a DTW distance to (0,1): ≈0.88 at zero distance,
// 0.5 at half the cutoff, small beyond the cutoff.
func distanceSigmoid(dist, maxDist float64) float64 {
	if maxDist <= 0 {
		return 0
	}
	return 1 / (1 + math.Exp(4*(dist/maxDist-0.5)))
}

// maxDistanceFor returns the configured cutoff, or the auto-calibrated one
// (2× the mean pairwise intra-class template distance) when unset.
func (dc *DTWClassifier) maxDistanceFor(class *GestureClass) float64 {
	if dc.cfg.DTWMaxDistance > 0 {
		return dc.cfg.DTWMaxDistance
	}
	id := class.Definition.ID
	if c, ok := dc.maxDistCache[id]; ok && c.templates == len(class.Templates) {
		return c.cutoff
	}
	mean := meanPairwiseDistance(class.Templates, dc.cfg.DTWBandFraction)
	cutoff := 2 * mean
	if cutoff <= 0 {
		cutoff = 1 // degenerate identical templates; keep a usable cutoff
	}
	dc.maxDistCache[id] = calibratedCutoff{templates: len(class.Templates), cutoff: cutoff}
	return cutoff
}

// meanPairwiseDistance is the average 1-D DTW distance across all template
// pairs of a set.
func meanPairwiseDistance(templates []*GestureTemplate, bandFraction float64) float64 {
	if len(templates) < 2 {
		return 0
	}
	var sum float64
	var pairs int
	for i := 0; i < len(templates); i++ {
		for j := i + 1; j < len(templates); j++ {
			sum += dtwDistance1D(templates[i].Magnitudes(), templates[j].Magnitudes(), bandFraction)
			pairs++
		}
	}
	return sum / float64(pairs)
}

// ComputeConsistency maps the mean pairwise template distance through
// 1/(1+d/10), the quality signal the recorder uses to accept a session.
func ComputeConsistency(templates []*GestureTemplate, bandFraction float64) float64 {
	if len(templates) < 2 {
		return 1
	}
	d := meanPairwiseDistance(templates, bandFraction)
	return 1 / (1 + d/10)
}

// sampleVectors flattens samples into per-step axis vectors for multi-axis
// DTW.
func sampleVectors(samples []Sample, axes int) [][]float64 {
	out := make([][]float64, len(samples))
	for i, s := range samples {
		v := make([]float64, axes)
		for a := 0; a < axes; a++ {
			v[a] = s.Axis(a)
		}
		out[i] = v
	}
	return out
}
