package gesture

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/gestures/internal/monitoring"
	"github.com/banshee-data/gestures/internal/timeutil"
)

// RecorderPhase is the recording session lifecycle state.
type RecorderPhase string

const (
	PhaseIdle       RecorderPhase = "idle"
	PhaseCountdown  RecorderPhase = "countdown"
	PhaseRecording  RecorderPhase = "recording"
	PhaseProcessing RecorderPhase = "processing"
	PhaseReview     RecorderPhase = "review"
	PhaseComplete   RecorderPhase = "complete"
)

// RecorderCallbacks are the optional notification hooks for a session.
type RecorderCallbacks struct {
	OnPhase         func(RecorderPhase)
	OnCountdownTick func(remaining int)
	// OnRepetition fires after each capture window is processed. template
	// is nil when the repetition was rejected (too little signal).
	OnRepetition func(n int, template *GestureTemplate)
}

// Recorder runs the guided template-recording workflow: per repetition a
// fixed countdown, a fixed-duration capture window, auto-trim to the active
// portion, then accumulate until the target repetition count; a session
// finalizes into a GestureClass only when enough repetitions exist and
// their DTW consistency clears the configured floor.
type Recorder struct {
	mu    sync.Mutex
	cfg   EngineConfig
	clock timeutil.Clock

	phase     RecorderPhase
	sessionID string
	def       GestureDefinition
	callbacks RecorderCallbacks

	templates []*GestureTemplate

	// capture state for the current repetition
	captureStartMs int64
	captured       []Sample

	countdownTimer timeutil.Timer
}

// NewRecorder builds an idle recorder.
func NewRecorder(cfg EngineConfig, clock timeutil.Clock) *Recorder {
	return &Recorder{cfg: cfg, clock: clock, phase: PhaseIdle}
}

// Phase returns the current session phase.
func (rc *Recorder) Phase() RecorderPhase {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.phase
}

// SessionID returns the current session id, empty when idle.
func (rc *Recorder) SessionID() string {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return rc.sessionID
}

// Repetitions returns the number of accepted repetitions so far.
func (rc *Recorder) Repetitions() int {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return len(rc.templates)
}

// StartSession begins a recording session for the given gesture.
func (rc *Recorder) StartSession(def GestureDefinition, cb RecorderCallbacks) error {
	if def.ID == "" {
		return fmt.Errorf("recorder: gesture definition missing id")
	}
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.phase != PhaseIdle && rc.phase != PhaseComplete {
		return fmt.Errorf("recorder: session already in progress (phase %s)", rc.phase)
	}
	rc.sessionID = uuid.NewString()
	rc.def = def
	rc.callbacks = cb
	rc.templates = nil
	rc.startCountdownLocked()
	return nil
}

// startCountdownLocked enters the countdown phase and schedules the 1 Hz
// tick chain.
func (rc *Recorder) startCountdownLocked() {
	rc.setPhaseLocked(PhaseCountdown)
	rc.tickLocked(rc.cfg.CountdownSeconds)
}

func (rc *Recorder) tickLocked(remaining int) {
	if rc.callbacks.OnCountdownTick != nil {
		rc.callbacks.OnCountdownTick(remaining)
	}
	if remaining <= 0 {
		rc.captureStartMs = 0
		rc.captured = rc.captured[:0]
		rc.setPhaseLocked(PhaseRecording)
		return
	}
	rc.countdownTimer = rc.clock.AfterFunc(time.Second, func() {
		rc.mu.Lock()
		defer rc.mu.Unlock()
		if rc.phase != PhaseCountdown {
			return
		}
		rc.tickLocked(remaining - 1)
	})
}

// Push feeds one filtered sample while the session is in its capture
// window. The engine forwards samples here (and skips classification)
// whenever it is in the Recording state.
func (rc *Recorder) Push(s Sample) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.phase != PhaseRecording {
		return
	}
	if rc.captureStartMs == 0 {
		rc.captureStartMs = s.Timestamp
	}
	rc.captured = append(rc.captured, s)
	if s.Timestamp-rc.captureStartMs >= int64(rc.cfg.CaptureSeconds*1000) {
		rc.processRepetitionLocked()
	}
}

// processRepetitionLocked trims and validates the capture, then either
// accumulates a template and moves on or rejects the repetition and
// restarts its countdown.
func (rc *Recorder) processRepetitionLocked() {
	rc.setPhaseLocked(PhaseProcessing)

	trimmed := trimSamples(rc.captured, rc.cfg.TrimThreshold, rc.cfg.TrimPadMs)
	minSamples := int(rc.cfg.SampleRate * 0.2)
	if minSamples < 4 {
		minSamples = 4
	}

	n := len(rc.templates) + 1
	if len(trimmed) < minSamples {
		monitoring.Debugf("recorder: repetition %d rejected, %d samples after trim", n, len(trimmed))
		if rc.callbacks.OnRepetition != nil {
			rc.callbacks.OnRepetition(n, nil)
		}
		rc.startCountdownLocked()
		return
	}

	samples := make([]Sample, len(trimmed))
	copy(samples, trimmed)
	tmpl := &GestureTemplate{
		ID:           uuid.NewString(),
		GestureID:    rc.def.ID,
		Samples:      samples,
		RecordedAtMs: samples[0].Timestamp,
		DurationMs:   samples[len(samples)-1].Timestamp - samples[0].Timestamp,
		SampleRate:   rc.cfg.SampleRate,
	}
	tmpl.Magnitudes()
	rc.templates = append(rc.templates, tmpl)
	if rc.callbacks.OnRepetition != nil {
		rc.callbacks.OnRepetition(n, tmpl)
	}

	if len(rc.templates) >= rc.cfg.TargetRepetitions {
		rc.setPhaseLocked(PhaseReview)
		return
	}
	rc.startCountdownLocked()
}

// trimSamples drops leading/trailing samples whose SMA stays below
// threshold, padded by padMs on both sides.
func trimSamples(samples []Sample, threshold float64, padMs int64) []Sample {
	first, last := -1, -1
	for i, s := range samples {
		if s.SMA() > threshold {
			if first == -1 {
				first = i
			}
			last = i
		}
	}
	if first == -1 {
		return nil
	}
	startMs := samples[first].Timestamp - padMs
	endMs := samples[last].Timestamp + padMs
	lo, hi := first, last
	for lo > 0 && samples[lo-1].Timestamp >= startMs {
		lo--
	}
	for hi < len(samples)-1 && samples[hi+1].Timestamp <= endMs {
		hi++
	}
	return samples[lo : hi+1]
}

// Consistency returns the DTW consistency score of the accumulated
// templates.
func (rc *Recorder) Consistency() float64 {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	return ComputeConsistency(rc.templates, rc.cfg.DTWBandFraction)
}

// DiscardLastRepetition drops the most recent accepted repetition. Valid
// during review or between repetitions.
func (rc *Recorder) DiscardLastRepetition() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if len(rc.templates) == 0 {
		return fmt.Errorf("recorder: no repetitions to discard")
	}
	rc.templates = rc.templates[:len(rc.templates)-1]
	return nil
}

// RecordMore returns from review to countdown to capture additional
// repetitions before finalizing.
func (rc *Recorder) RecordMore() error {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.phase != PhaseReview {
		return fmt.Errorf("recorder: cannot record more in phase %s", rc.phase)
	}
	rc.startCountdownLocked()
	return nil
}

// FinalizeSession validates the session and produces the gesture class.
// It requires at least MinRepetitions templates whose consistency clears
// MinConsistency; otherwise the session stays in review and an error is
// returned.
func (rc *Recorder) FinalizeSession() (*GestureClass, error) {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.phase != PhaseReview {
		return nil, fmt.Errorf("recorder: cannot finalize in phase %s", rc.phase)
	}
	if len(rc.templates) < rc.cfg.MinRepetitions {
		return nil, fmt.Errorf("recorder: %d repetitions recorded, need %d", len(rc.templates), rc.cfg.MinRepetitions)
	}
	consistency := ComputeConsistency(rc.templates, rc.cfg.DTWBandFraction)
	if consistency < rc.cfg.MinConsistency {
		return nil, fmt.Errorf("recorder: consistency %.2f below required %.2f; re-record or discard outliers", consistency, rc.cfg.MinConsistency)
	}

	class := &GestureClass{
		Definition:   rc.def,
		Templates:    rc.templates,
		MinTemplates: rc.cfg.MinTemplates,
	}
	rc.templates = nil
	rc.setPhaseLocked(PhaseComplete)
	return class, nil
}

// StopSession aborts the session, cancelling any pending countdown tick.
func (rc *Recorder) StopSession() {
	rc.mu.Lock()
	defer rc.mu.Unlock()
	if rc.countdownTimer != nil {
		rc.countdownTimer.Stop()
		rc.countdownTimer = nil
	}
	rc.templates = nil
	rc.captured = nil
	rc.sessionID = ""
	rc.setPhaseLocked(PhaseIdle)
}

func (rc *Recorder) setPhaseLocked(p RecorderPhase) {
	if rc.phase == p {
		return
	}
	rc.phase = p
	if rc.callbacks.OnPhase != nil {
		rc.callbacks.OnPhase(p)
	}
}
