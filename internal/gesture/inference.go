package gesture

import (
	"errors"
	"fmt"
)

// Model is a loaded inference model. Run treats the output as class
// probabilities.
type Model interface {
	Run(input []float64) ([]float64, error)
	Close() error
}

// InferenceBackend is the seam where a platform inference runtime (TFLite,
// ONNX, an NPU delegate) plugs in. The engine never resolves or embeds a
// runtime itself; the composition root injects one.
type InferenceBackend interface {
	Load(path string) (Model, error)
}

// ErrNoModel is returned by the ML classifier before a model has loaded.
var ErrNoModel = errors.New("no model loaded")

// MLClassifier is the optional primary tier that delegates window
// classification to an injected inference backend. Every failure mode
// degrades to a rejection result plus an error for the caller's error
// channel; it never panics the pipeline.
type MLClassifier struct {
	backend   InferenceBackend
	extractor *FeatureExtractor
	scaler    *Scaler
	cfg       EngineConfig
	model     Model
}

// NewMLClassifier builds the tier. scaler may be nil when NormalizeInput is
// off.
func NewMLClassifier(backend InferenceBackend, extractor *FeatureExtractor, scaler *Scaler, cfg EngineConfig) *MLClassifier {
	return &MLClassifier{backend: backend, extractor: extractor, scaler: scaler, cfg: cfg}
}

// Load loads the configured model through the backend.
func (mc *MLClassifier) Load() error {
	if mc.backend == nil {
		return fmt.Errorf("ml classifier: no inference backend injected")
	}
	model, err := mc.backend.Load(mc.cfg.ModelPath)
	if err != nil {
		return fmt.Errorf("load model %q: %w", mc.cfg.ModelPath, err)
	}
	mc.model = model
	return nil
}

// Close disposes the loaded model.
func (mc *MLClassifier) Close() error {
	if mc.model == nil {
		return nil
	}
	err := mc.model.Close()
	mc.model = nil
	return err
}

// input builds the model input vector from a window.
func (mc *MLClassifier) input(w *Window) []float64 {
	var v []float64
	if mc.cfg.RawModelInput {
		v = make([]float64, 0, len(w.Samples)*w.Axes)
		for _, s := range w.Samples {
			for a := 0; a < w.Axes; a++ {
				v = append(v, s.Axis(a))
			}
		}
	} else {
		v = mc.extractor.Extract(w).Flat
	}
	if mc.cfg.NormalizeInput && mc.scaler != nil {
		mc.scaler.Apply(v)
	}
	return v
}

// Classify runs inference on the window. On any degradation (no model, run
// failure, unmapped class) it returns a rejection result along with the
// underlying error.
func (mc *MLClassifier) Classify(w *Window) (RecognitionResult, error) {
	reject := RecognitionResult{
		Classifier:       ClassifierML,
		Timestamp:        w.EndMs,
		WindowDurationMs: w.DurationMs(),
		RejectionReason:  RejectNoMatch,
	}
	if mc.model == nil {
		return reject, ErrNoModel
	}

	probs, err := mc.model.Run(mc.input(w))
	if err != nil {
		return reject, fmt.Errorf("model inference: %w", err)
	}
	if len(probs) == 0 {
		return reject, fmt.Errorf("model inference: empty output")
	}

	top := 0
	for i, p := range probs {
		if p > probs[top] {
			top = i
		}
	}

	// The designated noise class consumes the window outright.
	if top == mc.cfg.NoiseClassIndex {
		reject.RejectionReason = RejectNoiseClass
		reject.Confidence = 1 - probs[top]
		reject.RawScore = probs[top]
		return reject, nil
	}

	gestureID, ok := mc.cfg.ClassMap[top]
	if !ok {
		return reject, fmt.Errorf("model output class %d has no gesture mapping", top)
	}

	// Confidence is the raw top probability: the guard's adaptive threshold
	// is the single source of truth for acceptance, so this tier does not
	// self-gate.
	r := RecognitionResult{
		GestureID:        gestureID,
		GestureName:      gestureID,
		Confidence:       clamp01(probs[top]),
		Classifier:       ClassifierML,
		RawScore:         probs[top],
		Timestamp:        w.EndMs,
		WindowDurationMs: w.DurationMs(),
	}
	for i, p := range probs {
		if i == top || i == mc.cfg.NoiseClassIndex {
			continue
		}
		if id, ok := mc.cfg.ClassMap[i]; ok && len(r.Alternatives) < 3 {
			r.Alternatives = append(r.Alternatives, Alternative{GestureID: id, Confidence: clamp01(p), RawScore: p})
		}
	}
	return r, nil
}
