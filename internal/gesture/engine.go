package gesture

import (
	"errors"
	"fmt"
	"sync"

	"github.com/banshee-data/gestures/internal/monitoring"
	"github.com/banshee-data/gestures/internal/timeutil"
)

// EngineState is the orchestrator's authoritative lifecycle state.
type EngineState string

const (
	StateIdle      EngineState = "idle"
	StateListening EngineState = "listening"
	StateArmed     EngineState = "armed"
	StateRecording EngineState = "recording"
	StatePaused    EngineState = "paused"
	StateDisposed  EngineState = "disposed"
)

// ErrDisposed is returned by every operation after Dispose.
var ErrDisposed = errors.New("engine disposed")

// EngineOptions carries the injectable collaborators. Zero values get
// sensible defaults; Backend stays nil unless the ML tier is used.
type EngineOptions struct {
	Clock             timeutil.Clock
	Backend           InferenceBackend
	Scaler            *Scaler
	ThresholdGestures []ThresholdGestureDef
}

// Engine composes the full pipeline and owns the top-level state machine.
// FeedSamples is the single entry point for sensor data; the transport
// collaborator must deliver batches serially.
type Engine struct {
	cfg   EngineConfig
	clock timeutil.Clock

	mu    sync.Mutex
	state EngineState

	filter    *FilterBank
	buffer    *RingBuffer
	segmenter *Segmenter
	extractor *FeatureExtractor
	threshold *ThresholdClassifier
	library   *Library
	dtw       *DTWClassifier
	ml        *MLClassifier
	guard     *Guard
	recorder  *Recorder
	sequencer *Sequencer

	events emitter

	lastActivity ActivityLevel
	recalAlerted bool

	// ML path: windows are classified on a single dispatch goroutine so
	// results stay in window order even when inference is slow.
	mlJobs    chan SegmentOutput
	mlOnce    sync.Once
	mlStarted bool
	mlDone    chan struct{}
	closeOnce sync.Once
}

// NewEngine builds an engine from config. The configuration is validated
// up front; a nil options clock defaults to the real clock.
func NewEngine(cfg EngineConfig, opts EngineOptions) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("engine config: %w", err)
	}
	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	thresholdDefs := opts.ThresholdGestures
	if thresholdDefs == nil {
		thresholdDefs = DefaultThresholdGestures()
	}

	library := NewLibrary()
	extractor := NewFeatureExtractor(cfg.Axes, cfg.SampleRate, cfg.FrequencyFeatures)
	e := &Engine{
		cfg:       cfg,
		clock:     clock,
		state:     StateIdle,
		filter:    NewFilterBank(cfg.Axes, cfg.LowPassCutoffHz, cfg.HighPassCutoffHz, cfg.SampleRate),
		buffer:    NewRingBuffer(int(cfg.BufferSeconds*cfg.SampleRate), cfg.Axes),
		segmenter: NewSegmenter(cfg),
		extractor: extractor,
		threshold: NewThresholdClassifier(thresholdDefs, cfg.SampleRate),
		library:   library,
		dtw:       NewDTWClassifier(library, cfg),
		guard:     NewGuard(cfg, clock),
		recorder:  NewRecorder(cfg, clock),
		sequencer: NewSequencer(clock),
	}
	if cfg.PrimaryClassifier == ClassifierML {
		e.ml = NewMLClassifier(opts.Backend, extractor, opts.Scaler, cfg)
		e.mlJobs = make(chan SegmentOutput, 64)
		e.mlDone = make(chan struct{})
	}

	e.guard.SetArmedCallback(e.armedChanged)
	e.sequencer.SetEventCallback(e.events.sequenceEvents.emit)
	return e, nil
}

// Event subscriptions. Each returns a cancel func.

func (e *Engine) OnStateChanged(f func(EngineState)) func() {
	return e.events.stateChanged.subscribe(f)
}
func (e *Engine) OnResult(f func(RecognitionResult)) func()  { return e.events.result.subscribe(f) }
func (e *Engine) OnGesture(f func(RecognitionResult)) func() { return e.events.gesture.subscribe(f) }
func (e *Engine) OnActivityChanged(f func(ActivityContext)) func() {
	return e.events.activity.subscribe(f)
}
func (e *Engine) OnArmedStateChanged(f func(ArmedState)) func() {
	return e.events.armedChanged.subscribe(f)
}
func (e *Engine) OnError(f func(error)) func() { return e.events.errors.subscribe(f) }
func (e *Engine) OnSequence(f func(SequenceEvent)) func() {
	return e.events.sequenceEvents.subscribe(f)
}

// OnRecalibrationNeeded fires once each time consecutive false positives
// reach the configured count.
func (e *Engine) OnRecalibrationNeeded(f func()) func() {
	return e.events.recalibration.subscribe(func(struct{}) { f() })
}

// State returns the current engine state.
func (e *Engine) State() EngineState {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

func (e *Engine) setState(s EngineState) {
	e.mu.Lock()
	if e.state == s {
		e.mu.Unlock()
		return
	}
	e.state = s
	e.mu.Unlock()
	e.events.stateChanged.emit(s)
}

// Start transitions Idle → Listening and, for the ML tier, loads the model
// and starts the ordered dispatch worker. A model load failure degrades:
// the engine still listens, every primary classification rejects, and the
// failure is surfaced on the error channel.
func (e *Engine) Start() error {
	e.mu.Lock()
	switch e.state {
	case StateDisposed:
		e.mu.Unlock()
		return ErrDisposed
	case StateIdle:
	default:
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot start from state %s", st)
	}
	e.mu.Unlock()

	if e.ml != nil {
		if err := e.ml.Load(); err != nil {
			e.events.errors.emit(err)
		}
		e.mlOnce.Do(func() {
			e.mu.Lock()
			e.mlStarted = true
			e.mu.Unlock()
			go e.mlWorker()
		})
	}
	e.setState(StateListening)
	return nil
}

// Pause suspends classification without resetting pipeline state.
func (e *Engine) Pause() error {
	e.mu.Lock()
	switch e.state {
	case StateDisposed:
		e.mu.Unlock()
		return ErrDisposed
	case StateListening, StateArmed:
		e.state = StatePaused
		e.mu.Unlock()
		e.events.stateChanged.emit(StatePaused)
		return nil
	default:
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot pause from state %s", st)
	}
}

// Resume returns from Paused to Listening.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	if e.state != StatePaused {
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot resume from state %s", st)
	}
	e.mu.Unlock()
	e.setState(StateListening)
	return nil
}

// Stop transitions to Idle and resets every pipeline stage: filter bank,
// segmenter, buffer, threshold detector state, guard transients, any
// recording session, and in-flight sequences.
func (e *Engine) Stop() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return ErrDisposed
	}
	e.mu.Unlock()

	e.filter.Reset()
	e.segmenter.Reset()
	e.buffer.Reset()
	e.threshold.Reset()
	e.guard.Reset()
	e.recorder.StopSession()
	e.sequencer.Reset()
	e.setState(StateIdle)
	return nil
}

// Dispose is terminal: it stops the pipeline, stops the ML worker and
// releases the model. After Dispose, FeedSamples is a no-op and every other
// operation fails fast with ErrDisposed.
func (e *Engine) Dispose() error {
	e.mu.Lock()
	if e.state == StateDisposed {
		e.mu.Unlock()
		return nil
	}
	e.mu.Unlock()

	_ = e.Stop()
	e.setState(StateDisposed)
	if e.ml != nil {
		e.closeOnce.Do(func() { close(e.mlJobs) })
		e.mu.Lock()
		started := e.mlStarted
		e.mu.Unlock()
		if started {
			<-e.mlDone
		}
		if err := e.ml.Close(); err != nil {
			e.events.errors.emit(fmt.Errorf("dispose model: %w", err))
		}
	}
	return nil
}

// FeedSamples pushes a batch of raw IMU samples through the pipeline.
// Samples must be time-ordered within the batch. While Recording, filtered
// samples go to the recorder and classification is skipped entirely; while
// Paused or Idle the batch is dropped.
func (e *Engine) FeedSamples(samples []Sample) error {
	e.mu.Lock()
	state := e.state
	e.mu.Unlock()

	switch state {
	case StateDisposed:
		return ErrDisposed
	case StateIdle, StatePaused:
		return nil
	}

	for _, raw := range samples {
		filtered := e.filter.Process(raw)
		e.buffer.Push(filtered)

		// Recording may begin or end mid-batch; re-check per sample.
		e.mu.Lock()
		recording := e.state == StateRecording
		e.mu.Unlock()
		if recording {
			e.recorder.Push(filtered)
			continue
		}

		out, ok := e.segmenter.Push(filtered)
		if !ok {
			continue
		}
		if out.Activity.Level != e.lastActivity {
			e.lastActivity = out.Activity.Level
			e.events.activity.emit(out.Activity)
		}
		if e.ml != nil {
			e.mlJobs <- out
		} else {
			e.classifyWindow(out)
		}
	}
	return nil
}

// mlWorker drains the window queue on one goroutine so recognition results
// keep window order regardless of inference latency.
func (e *Engine) mlWorker() {
	defer close(e.mlDone)
	for out := range e.mlJobs {
		e.classifyWindow(out)
	}
}

// classifyWindow runs the threshold tier (always) and the primary tier
// (candidates only) over one window, then pushes everything through the
// guard. A panic in any classifier is contained to this window.
func (e *Engine) classifyWindow(out SegmentOutput) {
	defer func() {
		if r := recover(); r != nil {
			e.events.errors.emit(fmt.Errorf("classification panic: %v", r))
		}
	}()

	for _, r := range e.threshold.Classify(out.Window) {
		e.finish(r, out.Activity)
	}

	if !out.Candidate {
		return
	}
	switch {
	case e.ml != nil:
		r, err := e.ml.Classify(out.Window)
		if err != nil && !errors.Is(err, ErrNoModel) {
			e.events.errors.emit(err)
		}
		e.finish(r, out.Activity)
	default:
		e.finish(e.dtw.Classify(out.Window), out.Activity)
	}
}

// finish applies the guard verdict and emits events.
func (e *Engine) finish(r RecognitionResult, ctx ActivityContext) {
	stamped := e.guard.Evaluate(r, ctx)
	e.events.result.emit(stamped)
	if stamped.Accepted {
		monitoring.Debugf("gesture accepted: %s (%.2f via %s)", stamped.GestureID, stamped.Confidence, stamped.Classifier)
		e.events.gesture.emit(stamped)
		e.sequencer.Feed(stamped)
	}
}

// armedChanged mirrors the guard's armed flag into the engine state and
// fans the event out.
func (e *Engine) armedChanged(st ArmedState) {
	e.mu.Lock()
	switch {
	case st.Armed && e.state == StateListening:
		e.state = StateArmed
	case !st.Armed && e.state == StateArmed:
		e.state = StateListening
	}
	newState := e.state
	e.mu.Unlock()
	e.events.armedChanged.emit(st)
	e.events.stateChanged.emit(newState)
}

// Library returns the gesture class registry.
func (e *Engine) Library() *Library { return e.library }

// Buffer returns the diagnostic ring buffer.
func (e *Engine) Buffer() *RingBuffer { return e.buffer }

// Segmenter exposes the segmenter for diagnostics.
func (e *Engine) Segmenter() *Segmenter { return e.segmenter }

// Guard returns the false-positive guard for feedback and inspection.
func (e *Engine) Guard() *Guard { return e.guard }

// Recorder returns the recording workflow.
func (e *Engine) Recorder() *Recorder { return e.recorder }

// Sequencer returns the sequence matcher.
func (e *Engine) Sequencer() *Sequencer { return e.sequencer }

// RegisterGesture adds an empty gesture class to the library.
func (e *Engine) RegisterGesture(def GestureDefinition) error {
	if e.State() == StateDisposed {
		return ErrDisposed
	}
	return e.library.Register(def, e.cfg.MinTemplates)
}

// RegisterSequence adds a multi-gesture sequence.
func (e *Engine) RegisterSequence(def SequenceDefinition) error {
	if e.State() == StateDisposed {
		return ErrDisposed
	}
	return e.sequencer.Register(def)
}

// ReportFalsePositive feeds the guard's adaptive loop and raises the
// recalibration event when the advisory count is reached.
func (e *Engine) ReportFalsePositive(gestureID string) {
	e.guard.ReportFalsePositive(gestureID)
	if e.guard.NeedsRecalibration() && !e.recalAlerted {
		e.recalAlerted = true
		e.events.recalibration.emit(struct{}{})
	}
}

// ReportTruePositive feeds the guard's adaptive loop.
func (e *Engine) ReportTruePositive(gestureID string) {
	e.recalAlerted = false
	e.guard.ReportTruePositive(gestureID)
}

// SetGeofenceActive forwards the external geofence gate to the guard.
func (e *Engine) SetGeofenceActive(active bool) {
	e.guard.SetGeofenceActive(active)
}

// StartRecording switches the pipeline into the recording workflow for the
// given gesture. Classification is suspended until the session ends.
func (e *Engine) StartRecording(def GestureDefinition, cb RecorderCallbacks) error {
	e.mu.Lock()
	switch e.state {
	case StateDisposed:
		e.mu.Unlock()
		return ErrDisposed
	case StateListening, StateArmed:
	default:
		st := e.state
		e.mu.Unlock()
		return fmt.Errorf("cannot start recording from state %s", st)
	}
	e.mu.Unlock()

	if err := e.recorder.StartSession(def, cb); err != nil {
		return err
	}
	e.setState(StateRecording)
	return nil
}

// FinishRecording finalizes the session, registers the resulting class and
// returns to Listening. The session stays open on validation failure so the
// caller can record more or discard outliers.
func (e *Engine) FinishRecording() (*GestureClass, error) {
	if e.State() != StateRecording {
		return nil, fmt.Errorf("not recording")
	}
	class, err := e.recorder.FinalizeSession()
	if err != nil {
		return nil, err
	}
	if err := e.library.SetClass(class); err != nil {
		return nil, err
	}
	e.setState(StateListening)
	return class, nil
}

// CancelRecording aborts the session and returns to Listening.
func (e *Engine) CancelRecording() error {
	if e.State() != StateRecording {
		return fmt.Errorf("not recording")
	}
	e.recorder.StopSession()
	e.setState(StateListening)
	return nil
}

// ExportLibrary serializes the template library as version-1 JSON.
func (e *Engine) ExportLibrary() ([]byte, error) { return e.library.Export() }

// ImportLibrary replaces the template library from version-1 JSON.
func (e *Engine) ImportLibrary(data []byte) error {
	if e.State() == StateDisposed {
		return ErrDisposed
	}
	return e.library.Import(data)
}
