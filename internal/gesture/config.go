package gesture

import "fmt"

// EngineConfig holds every tunable for the recognition pipeline. Zero values
// are replaced by defaults in DefaultEngineConfig; construct with that and
// override fields as needed.
type EngineConfig struct {
	// Stream shape
	SampleRate float64 // Hz
	Axes       int     // 3 or 6

	// Filter bank
	LowPassCutoffHz  float64 // removes high-frequency vibration
	HighPassCutoffHz float64 // removes gravity / DC drift

	// Diagnostic ring buffer
	BufferSeconds float64

	// Segmentation
	WindowSeconds        float64
	WindowOverlap        float64 // fraction, 0.5 = half-window step
	SMABaselineDecay     float64
	SMAMultiplier        float64
	PeakFloor            float64 // minimum peak |a| for a candidate
	MinGestureDurationMs int64
	MaxGestureDurationMs int64
	ContextWindowSeconds float64

	// Classifier selection
	PrimaryClassifier ClassifierType // ClassifierDTW or ClassifierML

	// DTW
	DTWBandFraction      float64 // Sakoe-Chiba band as fraction of max length
	DTWMaxDistance       float64 // 0 = auto-calibrate from templates
	DTWRotationInvariant bool
	MinTemplates         int

	// Feature extraction
	FrequencyFeatures bool

	// ML tier
	ModelPath       string
	ClassMap        map[int]string // model output index → gesture id
	NoiseClassIndex int            // -1 when the model has no noise class
	NormalizeInput  bool           // z-score the input vector
	RawModelInput   bool           // feed the flattened window instead of features

	// Guard
	MinConfidence        float64
	DisableAboveActivity ActivityLevel
	ActivationGestureID  string // empty disables two-stage activation
	ActivationTimeoutMs  int64
	DedupWindowMs        int64
	GlobalCooldownMs     int64
	MaxCooldownMs        int64
	MaxGesturesPerMinute int
	FPThresholdFactor    float64 // multiplicative raise per false positive
	TPCountBeforeRelax   int
	RelaxStep            float64
	RecalibrationFPCount int

	// Recorder
	CountdownSeconds  int
	CaptureSeconds    float64
	TargetRepetitions int
	MinRepetitions    int
	MinConsistency    float64
	TrimThreshold     float64
	TrimPadMs         int64
}

// DefaultEngineConfig returns the engine defaults for a 50 Hz 3-axis stream.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		SampleRate:       50,
		Axes:             3,
		LowPassCutoffHz:  20,
		HighPassCutoffHz: 0.3,

		BufferSeconds: 10,

		WindowSeconds:        1.5,
		WindowOverlap:        0.5,
		SMABaselineDecay:     0.995,
		SMAMultiplier:        2.5,
		PeakFloor:            1.5,
		MinGestureDurationMs: 300,
		MaxGestureDurationMs: 3000,
		ContextWindowSeconds: 2,

		PrimaryClassifier: ClassifierDTW,

		DTWBandFraction:      0.1,
		DTWRotationInvariant: true,
		MinTemplates:         3,

		FrequencyFeatures: true,

		NoiseClassIndex: -1,

		MinConfidence:        0.7,
		DisableAboveActivity: ActivityHigh,
		ActivationTimeoutMs:  5000,
		DedupWindowMs:        500,
		GlobalCooldownMs:     500,
		MaxCooldownMs:        5000,
		MaxGesturesPerMinute: 10,
		FPThresholdFactor:    1.1,
		TPCountBeforeRelax:   20,
		RelaxStep:            0.02,
		RecalibrationFPCount: 5,

		CountdownSeconds:  3,
		CaptureSeconds:    2.5,
		TargetRepetitions: 5,
		MinRepetitions:    3,
		MinConsistency:    0.7,
		TrimThreshold:     1.2,
		TrimPadMs:         50,
	}
}

// Validate checks the configuration for values the pipeline cannot run with.
func (c *EngineConfig) Validate() error {
	if c.SampleRate <= 0 {
		return fmt.Errorf("sample rate must be positive, got %v", c.SampleRate)
	}
	if c.Axes != 3 && c.Axes != 6 {
		return fmt.Errorf("axes must be 3 or 6, got %d", c.Axes)
	}
	if c.LowPassCutoffHz <= 0 || c.LowPassCutoffHz >= c.SampleRate/2 {
		return fmt.Errorf("low-pass cutoff %vHz outside (0, nyquist=%vHz)", c.LowPassCutoffHz, c.SampleRate/2)
	}
	if c.HighPassCutoffHz <= 0 || c.HighPassCutoffHz >= c.LowPassCutoffHz {
		return fmt.Errorf("high-pass cutoff %vHz must be in (0, %vHz)", c.HighPassCutoffHz, c.LowPassCutoffHz)
	}
	if c.WindowSeconds <= 0 {
		return fmt.Errorf("window duration must be positive, got %v", c.WindowSeconds)
	}
	if c.WindowOverlap < 0 || c.WindowOverlap >= 1 {
		return fmt.Errorf("window overlap must be in [0,1), got %v", c.WindowOverlap)
	}
	if c.PrimaryClassifier != ClassifierDTW && c.PrimaryClassifier != ClassifierML {
		return fmt.Errorf("primary classifier must be %q or %q, got %q", ClassifierDTW, ClassifierML, c.PrimaryClassifier)
	}
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("min confidence must be in [0,1], got %v", c.MinConfidence)
	}
	if c.MinRepetitions < 1 || c.TargetRepetitions < c.MinRepetitions {
		return fmt.Errorf("repetitions misconfigured: target=%d min=%d", c.TargetRepetitions, c.MinRepetitions)
	}
	return nil
}
