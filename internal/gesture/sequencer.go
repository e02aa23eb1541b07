package gesture

import (
	"fmt"
	"sync"
	"time"

	"github.com/banshee-data/gestures/internal/timeutil"
)

// SequenceDefinition describes an ordered multi-gesture sequence.
type SequenceDefinition struct {
	ID             string   `json:"id"`
	Steps          []string `json:"steps"` // gesture ids, in order
	StepTimeoutMs  int64    `json:"step_timeout_ms"`
	TotalTimeoutMs int64    `json:"total_timeout_ms,omitempty"` // 0 disables
}

// SequenceEventType distinguishes sequencer outcomes.
type SequenceEventType string

const (
	SequenceRecognized SequenceEventType = "recognized"
	SequenceTimeout    SequenceEventType = "timeout"
)

// SequenceEvent reports a completed or timed-out sequence with its step
// history.
type SequenceEvent struct {
	SequenceID      string              `json:"sequence_id"`
	Type            SequenceEventType   `json:"type"`
	Steps           []RecognitionResult `json:"steps"`
	TotalDurationMs int64               `json:"total_duration_ms"`
}

type sequenceState struct {
	def         SequenceDefinition
	cursor      int
	history     []RecognitionResult
	firstStepMs int64
	stepTimer   timeutil.Timer
	totalTimer  timeutil.Timer
}

// Sequencer tracks a cursor per registered sequence over the stream of
// accepted recognition results. Matching the expected next step advances
// the cursor and restarts the per-step timeout; a mismatch equal to the
// first step restarts the sequence; any other mismatch mid-sequence aborts
// it silently. Timeouts emit a SequenceTimeout event.
type Sequencer struct {
	mu        sync.Mutex
	clock     timeutil.Clock
	sequences map[string]*sequenceState
	onEvent   func(SequenceEvent)
	pending   []SequenceEvent
}

// NewSequencer builds an empty sequencer.
func NewSequencer(clock timeutil.Clock) *Sequencer {
	return &Sequencer{clock: clock, sequences: make(map[string]*sequenceState)}
}

// SetEventCallback registers the completion/timeout notification hook.
func (sq *Sequencer) SetEventCallback(f func(SequenceEvent)) {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	sq.onEvent = f
}

// Register adds a sequence definition. A sequence needs at least two steps
// and a positive per-step timeout.
func (sq *Sequencer) Register(def SequenceDefinition) error {
	if def.ID == "" {
		return fmt.Errorf("sequence missing id")
	}
	if len(def.Steps) < 2 {
		return fmt.Errorf("sequence %q needs at least 2 steps, got %d", def.ID, len(def.Steps))
	}
	if def.StepTimeoutMs <= 0 {
		return fmt.Errorf("sequence %q needs a positive step timeout", def.ID)
	}
	sq.mu.Lock()
	defer sq.mu.Unlock()
	if _, ok := sq.sequences[def.ID]; ok {
		return fmt.Errorf("sequence %q already registered", def.ID)
	}
	sq.sequences[def.ID] = &sequenceState{def: def}
	return nil
}

// Unregister removes a sequence, cancelling any in-flight timers.
func (sq *Sequencer) Unregister(id string) error {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	st, ok := sq.sequences[id]
	if !ok {
		return fmt.Errorf("unknown sequence %q", id)
	}
	sq.resetLocked(st)
	delete(sq.sequences, id)
	return nil
}

// Feed advances every registered sequence with an accepted result. Events
// are delivered after the lock is released, so a subscriber may call back
// into the sequencer.
func (sq *Sequencer) Feed(r RecognitionResult) {
	sq.mu.Lock()
	for _, st := range sq.sequences {
		sq.feedOneLocked(st, r)
	}
	cb, events := sq.flushLocked()
	sq.mu.Unlock()
	if cb != nil {
		for _, ev := range events {
			cb(ev)
		}
	}
}

func (sq *Sequencer) feedOneLocked(st *sequenceState, r RecognitionResult) {
	expected := st.def.Steps[st.cursor]
	switch {
	case r.GestureID == expected:
		sq.advanceLocked(st, r)
	case r.GestureID == st.def.Steps[0]:
		// A mismatch that equals the first step restarts the sequence.
		sq.resetLocked(st)
		sq.advanceLocked(st, r)
	case st.cursor > 0:
		sq.resetLocked(st)
	}
}

func (sq *Sequencer) advanceLocked(st *sequenceState, r RecognitionResult) {
	if st.cursor == 0 {
		st.firstStepMs = r.Timestamp
		if st.def.TotalTimeoutMs > 0 {
			def := st.def
			st.totalTimer = sq.clock.AfterFunc(time.Duration(st.def.TotalTimeoutMs)*time.Millisecond, func() {
				sq.timeoutFired(def.ID)
			})
		}
	}
	st.history = append(st.history, r)
	st.cursor++

	if st.stepTimer != nil {
		st.stepTimer.Stop()
		st.stepTimer = nil
	}

	if st.cursor == len(st.def.Steps) {
		ev := SequenceEvent{
			SequenceID:      st.def.ID,
			Type:            SequenceRecognized,
			Steps:           st.history,
			TotalDurationMs: r.Timestamp - st.firstStepMs,
		}
		sq.resetLocked(st)
		sq.queueLocked(ev)
		return
	}

	def := st.def
	st.stepTimer = sq.clock.AfterFunc(time.Duration(st.def.StepTimeoutMs)*time.Millisecond, func() {
		sq.timeoutFired(def.ID)
	})
}

// timeoutFired handles both per-step and overall timers.
func (sq *Sequencer) timeoutFired(id string) {
	sq.mu.Lock()
	if st, ok := sq.sequences[id]; ok && st.cursor > 0 {
		ev := SequenceEvent{
			SequenceID:      id,
			Type:            SequenceTimeout,
			Steps:           st.history,
			TotalDurationMs: st.history[len(st.history)-1].Timestamp - st.firstStepMs,
		}
		sq.resetLocked(st)
		sq.queueLocked(ev)
	}
	cb, events := sq.flushLocked()
	sq.mu.Unlock()
	if cb != nil {
		for _, ev := range events {
			cb(ev)
		}
	}
}

// resetLocked clears a sequence's cursor and cancels in-flight timers.
func (sq *Sequencer) resetLocked(st *sequenceState) {
	st.cursor = 0
	st.history = nil
	st.firstStepMs = 0
	if st.stepTimer != nil {
		st.stepTimer.Stop()
		st.stepTimer = nil
	}
	if st.totalTimer != nil {
		st.totalTimer.Stop()
		st.totalTimer = nil
	}
}

func (sq *Sequencer) queueLocked(ev SequenceEvent) {
	sq.pending = append(sq.pending, ev)
}

// flushLocked hands the queued events and the callback to the caller,
// which must deliver them after unlocking.
func (sq *Sequencer) flushLocked() (func(SequenceEvent), []SequenceEvent) {
	events := sq.pending
	sq.pending = nil
	return sq.onEvent, events
}

// ResetSequence aborts one in-flight sequence without emitting an event.
func (sq *Sequencer) ResetSequence(id string) error {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	st, ok := sq.sequences[id]
	if !ok {
		return fmt.Errorf("unknown sequence %q", id)
	}
	sq.resetLocked(st)
	return nil
}

// Reset aborts every in-flight sequence.
func (sq *Sequencer) Reset() {
	sq.mu.Lock()
	defer sq.mu.Unlock()
	for _, st := range sq.sequences {
		sq.resetLocked(st)
	}
}
