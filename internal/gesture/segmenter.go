package gesture

import "gonum.org/v1/gonum/stat"

// SegmentOutput is one emitted window plus the segmentation verdicts that
// accompany it.
type SegmentOutput struct {
	Window    *Window
	Candidate bool
	Activity  ActivityContext
}

// Segmenter maintains a sliding window over filtered samples and emits one
// window per step along with a gesture-candidate flag and the current
// activity context. Activity classification is advisory: it gates
// recognition downstream but never blocks segmentation.
type Segmenter struct {
	cfg        EngineConfig
	windowSize int
	stepSize   int

	window    []Sample // most recent windowSize samples
	sinceEmit int

	baselineSMA float64
	baselineSet bool

	contextMags []float64 // rolling activity window, magnitude per sample
	contextSize int
}

// NewSegmenter builds a segmenter from the engine configuration.
func NewSegmenter(cfg EngineConfig) *Segmenter {
	windowSize := int(cfg.WindowSeconds * cfg.SampleRate)
	if windowSize < 2 {
		windowSize = 2
	}
	step := int(float64(windowSize) * (1 - cfg.WindowOverlap))
	if step < 1 {
		step = 1
	}
	contextSize := int(cfg.ContextWindowSeconds * cfg.SampleRate)
	if contextSize < 2 {
		contextSize = 2
	}
	return &Segmenter{
		cfg:         cfg,
		windowSize:  windowSize,
		stepSize:    step,
		window:      make([]Sample, 0, windowSize),
		contextMags: make([]float64, 0, contextSize),
		contextSize: contextSize,
	}
}

// Push feeds one filtered sample. It returns an output and true once per
// step-sized batch after the window has filled.
func (sg *Segmenter) Push(s Sample) (SegmentOutput, bool) {
	// Decayed baseline tracks the resting signal magnitude area.
	sma := s.SMA()
	if !sg.baselineSet {
		sg.baselineSMA = sma
		sg.baselineSet = true
	} else {
		d := sg.cfg.SMABaselineDecay
		sg.baselineSMA = d*sg.baselineSMA + (1-d)*sma
	}

	if len(sg.contextMags) == sg.contextSize {
		copy(sg.contextMags, sg.contextMags[1:])
		sg.contextMags = sg.contextMags[:sg.contextSize-1]
	}
	sg.contextMags = append(sg.contextMags, s.Magnitude())

	if len(sg.window) == sg.windowSize {
		copy(sg.window, sg.window[1:])
		sg.window = sg.window[:sg.windowSize-1]
	}
	sg.window = append(sg.window, s)

	sg.sinceEmit++
	if len(sg.window) < sg.windowSize || sg.sinceEmit < sg.stepSize {
		return SegmentOutput{}, false
	}
	sg.sinceEmit = 0

	samples := make([]Sample, len(sg.window))
	copy(samples, sg.window)
	w := &Window{
		Samples:    samples,
		StartMs:    samples[0].Timestamp,
		EndMs:      samples[len(samples)-1].Timestamp,
		SampleRate: sg.cfg.SampleRate,
		Axes:       sg.cfg.Axes,
	}

	return SegmentOutput{
		Window:    w,
		Candidate: sg.isCandidate(w),
		Activity:  sg.activity(s.Timestamp),
	}, true
}

// isCandidate applies the three-part onset gate: window SMA against the
// decayed baseline, a peak-magnitude floor, and an active-portion duration
// bound that rejects both twitches and sustained motion like walking.
func (sg *Segmenter) isCandidate(w *Window) bool {
	var meanSMA, peak float64
	for _, s := range w.Samples {
		meanSMA += s.SMA()
		if m := s.Magnitude(); m > peak {
			peak = m
		}
	}
	meanSMA /= float64(len(w.Samples))

	threshold := sg.baselineSMA * sg.cfg.SMAMultiplier
	if meanSMA <= threshold || peak < sg.cfg.PeakFloor {
		return false
	}

	var active int
	for _, s := range w.Samples {
		if s.SMA() > threshold/2 {
			active++
		}
	}
	activeMs := int64(float64(active) / sg.cfg.SampleRate * 1000)
	return activeMs >= sg.cfg.MinGestureDurationMs && activeMs <= sg.cfg.MaxGestureDurationMs
}

// activity classifies motion over the rolling context window by magnitude
// variance.
func (sg *Segmenter) activity(tsMs int64) ActivityContext {
	variance := 0.0
	if len(sg.contextMags) > 1 {
		variance = stat.Variance(sg.contextMags, nil)
	}
	level := ActivityStationary
	switch {
	case variance >= 8.0:
		level = ActivityHigh
	case variance >= 2.0:
		level = ActivityModerate
	case variance >= 0.1:
		level = ActivityLow
	}
	return ActivityContext{Level: level, Variance: variance, Timestamp: tsMs}
}

// Baseline exposes the current decayed SMA baseline for diagnostics.
func (sg *Segmenter) Baseline() float64 { return sg.baselineSMA }

// Reset clears all buffered state. Call on engine stop.
func (sg *Segmenter) Reset() {
	sg.window = sg.window[:0]
	sg.contextMags = sg.contextMags[:0]
	sg.sinceEmit = 0
	sg.baselineSMA = 0
	sg.baselineSet = false
}
