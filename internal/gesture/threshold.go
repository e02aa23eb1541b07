package gesture

import "math"

// ThresholdKind selects the detection heuristic for a threshold gesture.
type ThresholdKind string

const (
	KindTap       ThresholdKind = "tap"
	KindDoubleTap ThresholdKind = "double_tap"
	KindShake     ThresholdKind = "shake"
	KindFlick     ThresholdKind = "flick"
)

// MagnitudeAxis selects the acceleration magnitude instead of a single axis.
const MagnitudeAxis = -1

// ThresholdGestureDef is the static configuration for one instantaneous
// gesture detector.
type ThresholdGestureDef struct {
	ID        string
	Name      string
	Kind      ThresholdKind
	Axis      int     // 0..5, or MagnitudeAxis
	Threshold float64 // detection threshold in signal units

	MaxIntervalMs  int64 // double-tap: max gap between taps
	MinCrossings   int   // shake: crossings inside the rolling second
	SustainSamples int   // flick: samples the jerk sign must hold
}

// DefaultThresholdGestures returns the stock tap/double-tap/shake/flick set.
func DefaultThresholdGestures() []ThresholdGestureDef {
	return []ThresholdGestureDef{
		{ID: "tap", Name: "Tap", Kind: KindTap, Axis: 2, Threshold: 2.5},
		{ID: "double_tap", Name: "Double Tap", Kind: KindDoubleTap, Axis: 2, Threshold: 2.5, MaxIntervalMs: 400},
		{ID: "shake", Name: "Shake", Kind: KindShake, Axis: 0, Threshold: 2.0, MinCrossings: 6},
		{ID: "flick", Name: "Flick", Kind: KindFlick, Axis: 0, Threshold: 40, SustainSamples: 3},
	}
}

// thresholdState is the mutable per-gesture detector state for multi-event
// gestures.
type thresholdState struct {
	// double-tap
	firstTapMs int64
	// shake: crossing timestamps inside the rolling window
	crossingsMs []int64
	lastSign    int
	peakAbs     float64
	// dedup across overlapping windows
	lastEventMs int64
}

const (
	tapMaxWidthMs   = 200
	shakeWindowMs   = 1000
	flickDefaultMin = 3
)

// ThresholdClassifier detects instantaneous gestures with cheap per-window
// heuristics. It runs unconditionally, in parallel with the primary
// classifier. The only state it keeps is the per-gesture multi-event
// bookkeeping (double-tap pairing, shake crossing counts), reset on engine
// stop.
type ThresholdClassifier struct {
	defs  []ThresholdGestureDef
	state map[string]*thresholdState
	rate  float64
}

// NewThresholdClassifier builds a classifier over the given gesture set.
func NewThresholdClassifier(defs []ThresholdGestureDef, sampleRate float64) *ThresholdClassifier {
	tc := &ThresholdClassifier{
		defs:  defs,
		state: make(map[string]*thresholdState, len(defs)),
		rate:  sampleRate,
	}
	for _, d := range defs {
		tc.state[d.ID] = &thresholdState{}
	}
	return tc
}

// Classify scans the window once per registered gesture. Each detector
// yields at most one result per call.
func (tc *ThresholdClassifier) Classify(w *Window) []RecognitionResult {
	var out []RecognitionResult
	for _, d := range tc.defs {
		st := tc.state[d.ID]
		var r RecognitionResult
		var ok bool
		switch d.Kind {
		case KindTap:
			r, ok = tc.detectTap(d, st, w)
		case KindDoubleTap:
			r, ok = tc.detectDoubleTap(d, st, w)
		case KindShake:
			r, ok = tc.detectShake(d, st, w)
		case KindFlick:
			r, ok = tc.detectFlick(d, st, w)
		}
		if ok {
			out = append(out, r)
		}
	}
	return out
}

// axisValue resolves the configured axis, treating MagnitudeAxis specially.
func axisValue(s Sample, axis int) float64 {
	if axis == MagnitudeAxis {
		return s.Magnitude()
	}
	return s.Axis(axis)
}

// findTap locates a local maximum above threshold whose above-half-threshold
// width stays under tapMaxWidthMs. Returns the peak value and timestamp.
func (tc *ThresholdClassifier) findTap(d ThresholdGestureDef, st *thresholdState, w *Window) (peak float64, peakMs int64, found bool) {
	n := len(w.Samples)
	for i := 1; i < n-1; i++ {
		v := axisValue(w.Samples[i], d.Axis)
		if v <= d.Threshold {
			continue
		}
		if v < axisValue(w.Samples[i-1], d.Axis) || v < axisValue(w.Samples[i+1], d.Axis) {
			continue
		}
		ts := w.Samples[i].Timestamp
		// Overlapping windows revisit samples; never report the same peak twice.
		if ts <= st.lastEventMs {
			continue
		}
		// Width of the above-half-threshold lobe around the peak.
		lo, hi := i, i
		for lo > 0 && axisValue(w.Samples[lo-1], d.Axis) > d.Threshold/2 {
			lo--
		}
		for hi < n-1 && axisValue(w.Samples[hi+1], d.Axis) > d.Threshold/2 {
			hi++
		}
		widthMs := w.Samples[hi].Timestamp - w.Samples[lo].Timestamp
		if widthMs >= tapMaxWidthMs {
			continue
		}
		return v, ts, true
	}
	return 0, 0, false
}

func (tc *ThresholdClassifier) detectTap(d ThresholdGestureDef, st *thresholdState, w *Window) (RecognitionResult, bool) {
	peak, peakMs, found := tc.findTap(d, st, w)
	if !found {
		return RecognitionResult{}, false
	}
	st.lastEventMs = peakMs
	return tc.result(d, w, peakMs, peak, exceedConfidence(peak, d.Threshold)), true
}

func (tc *ThresholdClassifier) detectDoubleTap(d ThresholdGestureDef, st *thresholdState, w *Window) (RecognitionResult, bool) {
	peak, peakMs, found := tc.findTap(d, st, w)
	if !found {
		return RecognitionResult{}, false
	}
	st.lastEventMs = peakMs

	if st.firstTapMs != 0 && peakMs-st.firstTapMs <= d.MaxIntervalMs {
		st.firstTapMs = 0
		return tc.result(d, w, peakMs, peak, exceedConfidence(peak, d.Threshold)), true
	}
	// Either no pending tap or the interval lapsed: this tap becomes the first.
	st.firstTapMs = peakMs
	return RecognitionResult{}, false
}

func (tc *ThresholdClassifier) detectShake(d ThresholdGestureDef, st *thresholdState, w *Window) (RecognitionResult, bool) {
	for _, s := range w.Samples {
		if s.Timestamp <= st.lastEventMs {
			continue
		}
		st.lastEventMs = s.Timestamp
		v := axisValue(s, d.Axis)
		sign := 0
		if v > d.Threshold {
			sign = 1
		} else if v < -d.Threshold {
			sign = -1
		}
		if sign == 0 {
			continue
		}

		// Prune crossings older than the rolling second. A fully drained
		// window also forgets the peak of the previous burst.
		cut := s.Timestamp - shakeWindowMs
		pruned := false
		for len(st.crossingsMs) > 0 && st.crossingsMs[0] < cut {
			st.crossingsMs = st.crossingsMs[1:]
			pruned = true
		}
		if pruned && len(st.crossingsMs) == 0 {
			st.peakAbs = 0
		}

		if abs := math.Abs(v); abs > st.peakAbs {
			st.peakAbs = abs
		}
		if sign != st.lastSign {
			if st.lastSign != 0 {
				st.crossingsMs = append(st.crossingsMs, s.Timestamp)
			}
			st.lastSign = sign
		}

		if len(st.crossingsMs) >= d.MinCrossings {
			count := len(st.crossingsMs)
			// Confidence tracks how hard the excursions exceed the threshold;
			// the crossing count only gates, it does not grade vigor.
			conf := exceedConfidence(st.peakAbs, d.Threshold)
			st.crossingsMs = st.crossingsMs[:0]
			st.lastSign = 0
			st.peakAbs = 0
			return tc.result(d, w, s.Timestamp, float64(count), conf), true
		}
	}
	return RecognitionResult{}, false
}

func (tc *ThresholdClassifier) detectFlick(d ThresholdGestureDef, st *thresholdState, w *Window) (RecognitionResult, bool) {
	sustain := d.SustainSamples
	if sustain <= 0 {
		sustain = flickDefaultMin
	}
	n := len(w.Samples)
	for i := 1; i < n-sustain; i++ {
		cur, prev := w.Samples[i], w.Samples[i-1]
		if cur.Timestamp <= st.lastEventMs {
			continue
		}
		dtMs := cur.Timestamp - prev.Timestamp
		if dtMs <= 0 {
			continue
		}
		jerk := (axisValue(cur, d.Axis) - axisValue(prev, d.Axis)) / (float64(dtMs) / 1000)
		if jerk > -d.Threshold && jerk < d.Threshold {
			continue
		}
		// Direction must hold for the next samples to reject oscillation.
		dir := 1.0
		if jerk < 0 {
			dir = -1
		}
		held := true
		for k := i + 1; k <= i+sustain; k++ {
			dv := axisValue(w.Samples[k], d.Axis) - axisValue(w.Samples[k-1], d.Axis)
			if dv*dir < 0 {
				held = false
				break
			}
		}
		if !held {
			continue
		}
		st.lastEventMs = cur.Timestamp
		mag := jerk * dir
		return tc.result(d, w, cur.Timestamp, jerk, exceedConfidence(mag, d.Threshold)), true
	}
	return RecognitionResult{}, false
}

func (tc *ThresholdClassifier) result(d ThresholdGestureDef, w *Window, tsMs int64, raw, conf float64) RecognitionResult {
	return RecognitionResult{
		GestureID:        d.ID,
		GestureName:      d.Name,
		Confidence:       conf,
		Classifier:       ClassifierThreshold,
		RawScore:         raw,
		Timestamp:        tsMs,
		WindowDurationMs: w.DurationMs(),
	}
}

// Reset clears all per-gesture detector state.
func (tc *ThresholdClassifier) Reset() {
	for id := range tc.state {
		tc.state[id] = &thresholdState{}
	}
}

// exceedConfidence maps threshold exceedance to a bounded linear confidence:
// 0.5 at the threshold, 1.0 at double the threshold.
func exceedConfidence(value, threshold float64) float64 {
	if threshold <= 0 {
		return 0
	}
	return clamp01(0.5 + 0.5*(value-threshold)/threshold)
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
