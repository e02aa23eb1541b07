// Package config loads engine tuning overrides from JSON files. Every field
// is a pointer so a partial file only overrides what it names; omitted
// fields keep the engine defaults.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/banshee-data/gestures/internal/gesture"
)

// Overrides is the JSON schema for an engine tuning file. The field names
// match the /api/status diagnostic output where both exist.
type Overrides struct {
	// Stream shape
	SampleRate *float64 `json:"sample_rate,omitempty"`
	Axes       *int     `json:"axes,omitempty"`

	// Filter bank
	LowPassCutoffHz  *float64 `json:"low_pass_cutoff_hz,omitempty"`
	HighPassCutoffHz *float64 `json:"high_pass_cutoff_hz,omitempty"`

	// Segmentation
	WindowSeconds        *float64 `json:"window_seconds,omitempty"`
	WindowOverlap        *float64 `json:"window_overlap,omitempty"`
	SMAMultiplier        *float64 `json:"sma_multiplier,omitempty"`
	PeakFloor            *float64 `json:"peak_floor,omitempty"`
	MinGestureDurationMs *int64   `json:"min_gesture_duration_ms,omitempty"`
	MaxGestureDurationMs *int64   `json:"max_gesture_duration_ms,omitempty"`

	// Classification
	PrimaryClassifier *string  `json:"primary_classifier,omitempty"`
	DTWBandFraction   *float64 `json:"dtw_band_fraction,omitempty"`
	DTWMaxDistance    *float64 `json:"dtw_max_distance,omitempty"`
	MinTemplates      *int     `json:"min_templates,omitempty"`
	ModelPath         *string  `json:"model_path,omitempty"`

	// Guard
	MinConfidence        *float64 `json:"min_confidence,omitempty"`
	ActivationGestureID  *string  `json:"activation_gesture_id,omitempty"`
	ActivationTimeoutMs  *int64   `json:"activation_timeout_ms,omitempty"`
	DedupWindowMs        *int64   `json:"dedup_window_ms,omitempty"`
	GlobalCooldownMs     *int64   `json:"global_cooldown_ms,omitempty"`
	MaxGesturesPerMinute *int     `json:"max_gestures_per_minute,omitempty"`

	// Recorder
	TargetRepetitions *int `json:"target_repetitions,omitempty"`
	MinRepetitions    *int `json:"min_repetitions,omitempty"`
}

// maxFileSize guards against reading an accidentally huge file (1MB).
const maxFileSize = 1 * 1024 * 1024

// Load reads overrides from a JSON file. The path must end in .json and
// the file must be under the size cap.
func Load(path string) (*Overrides, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	info, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("stat config file: %w", err)
	}
	if info.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", info.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var o Overrides
	if err := json.Unmarshal(data, &o); err != nil {
		return nil, fmt.Errorf("parse config JSON: %w", err)
	}
	return &o, nil
}

// Apply lays the overrides over cfg and validates the result, so an
// override that breaks an engine constraint fails here rather than at
// pipeline construction.
func (o *Overrides) Apply(cfg gesture.EngineConfig) (gesture.EngineConfig, error) {
	if o.SampleRate != nil {
		cfg.SampleRate = *o.SampleRate
	}
	if o.Axes != nil {
		cfg.Axes = *o.Axes
	}
	if o.LowPassCutoffHz != nil {
		cfg.LowPassCutoffHz = *o.LowPassCutoffHz
	}
	if o.HighPassCutoffHz != nil {
		cfg.HighPassCutoffHz = *o.HighPassCutoffHz
	}
	if o.WindowSeconds != nil {
		cfg.WindowSeconds = *o.WindowSeconds
	}
	if o.WindowOverlap != nil {
		cfg.WindowOverlap = *o.WindowOverlap
	}
	if o.SMAMultiplier != nil {
		cfg.SMAMultiplier = *o.SMAMultiplier
	}
	if o.PeakFloor != nil {
		cfg.PeakFloor = *o.PeakFloor
	}
	if o.MinGestureDurationMs != nil {
		cfg.MinGestureDurationMs = *o.MinGestureDurationMs
	}
	if o.MaxGestureDurationMs != nil {
		cfg.MaxGestureDurationMs = *o.MaxGestureDurationMs
	}
	if o.PrimaryClassifier != nil {
		cfg.PrimaryClassifier = gesture.ClassifierType(*o.PrimaryClassifier)
	}
	if o.DTWBandFraction != nil {
		cfg.DTWBandFraction = *o.DTWBandFraction
	}
	if o.DTWMaxDistance != nil {
		cfg.DTWMaxDistance = *o.DTWMaxDistance
	}
	if o.MinTemplates != nil {
		cfg.MinTemplates = *o.MinTemplates
	}
	if o.ModelPath != nil {
		cfg.ModelPath = *o.ModelPath
	}
	if o.MinConfidence != nil {
		cfg.MinConfidence = *o.MinConfidence
	}
	if o.ActivationGestureID != nil {
		cfg.ActivationGestureID = *o.ActivationGestureID
	}
	if o.ActivationTimeoutMs != nil {
		cfg.ActivationTimeoutMs = *o.ActivationTimeoutMs
	}
	if o.DedupWindowMs != nil {
		cfg.DedupWindowMs = *o.DedupWindowMs
	}
	if o.GlobalCooldownMs != nil {
		cfg.GlobalCooldownMs = *o.GlobalCooldownMs
	}
	if o.MaxGesturesPerMinute != nil {
		cfg.MaxGesturesPerMinute = *o.MaxGesturesPerMinute
	}
	if o.TargetRepetitions != nil {
		cfg.TargetRepetitions = *o.TargetRepetitions
	}
	if o.MinRepetitions != nil {
		cfg.MinRepetitions = *o.MinRepetitions
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
