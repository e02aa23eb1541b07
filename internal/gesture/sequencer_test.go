package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/gestures/internal/timeutil"
)

func stepResult(id string, tsMs int64) RecognitionResult {
	return RecognitionResult{GestureID: id, Confidence: 0.9, Timestamp: tsMs, Accepted: true}
}

func newTestSequencer(t *testing.T, defs ...SequenceDefinition) (*Sequencer, *timeutil.MockClock, *[]SequenceEvent) {
	t.Helper()
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sq := NewSequencer(clock)
	events := &[]SequenceEvent{}
	sq.SetEventCallback(func(ev SequenceEvent) { *events = append(*events, ev) })
	for _, def := range defs {
		require.NoError(t, sq.Register(def))
	}
	return sq, clock, events
}

func unlockDef() SequenceDefinition {
	return SequenceDefinition{
		ID:            "unlock",
		Steps:         []string{"tap", "circle", "tap"},
		StepTimeoutMs: 2000,
	}
}

func TestSequencerRegisterValidation(t *testing.T) {
	t.Parallel()

	sq := NewSequencer(timeutil.NewMockClock(time.Unix(0, 0)))
	assert.Error(t, sq.Register(SequenceDefinition{Steps: []string{"a", "b"}, StepTimeoutMs: 100}))
	assert.Error(t, sq.Register(SequenceDefinition{ID: "x", Steps: []string{"a"}, StepTimeoutMs: 100}))
	assert.Error(t, sq.Register(SequenceDefinition{ID: "x", Steps: []string{"a", "b"}}))

	require.NoError(t, sq.Register(unlockDef()))
	assert.Error(t, sq.Register(unlockDef()), "duplicate registration must fail")
}

func TestSequencerRecognizes(t *testing.T) {
	t.Parallel()

	sq, _, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("tap", 1000))
	sq.Feed(stepResult("circle", 2000))
	assert.Empty(t, *events)
	sq.Feed(stepResult("tap", 3000))

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, "unlock", ev.SequenceID)
	assert.Equal(t, SequenceRecognized, ev.Type)
	require.Len(t, ev.Steps, 3)
	assert.Equal(t, int64(2000), ev.TotalDurationMs)
}

func TestSequencerStepTimeout(t *testing.T) {
	t.Parallel()

	sq, clock, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("tap", 1000))
	clock.Advance(3 * time.Second)

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, SequenceTimeout, ev.Type)
	require.Len(t, ev.Steps, 1)
	assert.Equal(t, "tap", ev.Steps[0].GestureID)

	// cursor is back at zero: completing now requires the full sequence again
	sq.Feed(stepResult("circle", 5000))
	sq.Feed(stepResult("tap", 6000))
	sq.Feed(stepResult("circle", 7000))
	sq.Feed(stepResult("tap", 8000))
	require.Len(t, *events, 2)
	assert.Equal(t, SequenceRecognized, (*events)[1].Type)
}

func TestSequencerTotalTimeout(t *testing.T) {
	t.Parallel()

	def := unlockDef()
	def.TotalTimeoutMs = 3000
	sq, clock, events := newTestSequencer(t, def)

	sq.Feed(stepResult("tap", 1000))
	clock.Advance(1500 * time.Millisecond)
	sq.Feed(stepResult("circle", 2500))
	// total window lapses before the last step, even though each step was timely
	clock.Advance(2 * time.Second)

	require.Len(t, *events, 1)
	assert.Equal(t, SequenceTimeout, (*events)[0].Type)
	assert.Len(t, (*events)[0].Steps, 2)
}

func TestSequencerFirstStepRestart(t *testing.T) {
	t.Parallel()

	sq, _, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("tap", 1000))
	sq.Feed(stepResult("circle", 2000))
	// a stray first-step gesture mid-sequence restarts rather than aborts
	sq.Feed(stepResult("tap", 2500))
	sq.Feed(stepResult("circle", 3000))
	sq.Feed(stepResult("tap", 3500))

	require.Len(t, *events, 1)
	ev := (*events)[0]
	assert.Equal(t, SequenceRecognized, ev.Type)
	// history starts at the restart
	assert.Equal(t, int64(2500), ev.Steps[0].Timestamp)
	assert.Equal(t, int64(1000), ev.TotalDurationMs)
}

func TestSequencerMidSequenceMismatchAborts(t *testing.T) {
	t.Parallel()

	sq, _, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("tap", 1000))
	sq.Feed(stepResult("shake", 1500)) // not circle, not the first step
	sq.Feed(stepResult("circle", 2000))
	sq.Feed(stepResult("tap", 2500))

	// abort was silent and the partial progress is gone
	assert.Empty(t, *events)
}

func TestSequencerUnrelatedGestureBeforeStart(t *testing.T) {
	t.Parallel()

	sq, clock, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("shake", 1000))
	assert.Empty(t, *events)
	// nothing was armed, so nothing can time out
	clock.Advance(10 * time.Second)
	assert.Empty(t, *events)
}

func TestSequencerResetCancelsTimers(t *testing.T) {
	t.Parallel()

	sq, clock, events := newTestSequencer(t, unlockDef())

	sq.Feed(stepResult("tap", 1000))
	sq.Reset()
	assert.Equal(t, 0, clock.PendingTimers())

	clock.Advance(10 * time.Second)
	assert.Empty(t, *events)
}

func TestSequencerTwoSequencesIndependent(t *testing.T) {
	t.Parallel()

	other := SequenceDefinition{
		ID:            "alarm",
		Steps:         []string{"shake", "shake"},
		StepTimeoutMs: 2000,
	}
	sq, _, events := newTestSequencer(t, unlockDef(), other)

	sq.Feed(stepResult("shake", 1000))
	sq.Feed(stepResult("shake", 1500))

	require.Len(t, *events, 1)
	assert.Equal(t, "alarm", (*events)[0].SequenceID)
	assert.Equal(t, SequenceRecognized, (*events)[0].Type)
}

func TestSequencerCallbackMayReenter(t *testing.T) {
	t.Parallel()

	def := SequenceDefinition{
		ID:            "alarm",
		Steps:         []string{"shake", "shake"},
		StepTimeoutMs: 2000,
	}
	clock := timeutil.NewMockClock(time.Unix(0, 0))
	sq := NewSequencer(clock)
	require.NoError(t, sq.Register(def))

	// the subscriber calls back into the sequencer on every event
	var events []SequenceEvent
	sq.SetEventCallback(func(ev SequenceEvent) {
		events = append(events, ev)
		require.NoError(t, sq.ResetSequence("alarm"))
	})

	sq.Feed(stepResult("shake", 1000))
	sq.Feed(stepResult("shake", 1500))
	require.Len(t, events, 1)
	assert.Equal(t, SequenceRecognized, events[0].Type)

	// timeout delivery re-enters without deadlock as well
	sq.Feed(stepResult("shake", 5000))
	clock.Advance(3 * time.Second)
	require.Len(t, events, 2)
	assert.Equal(t, SequenceTimeout, events[1].Type)
}

func TestSequencerUnregister(t *testing.T) {
	t.Parallel()

	sq, clock, events := newTestSequencer(t, unlockDef())
	sq.Feed(stepResult("tap", 1000))
	require.NoError(t, sq.Unregister("unlock"))
	assert.Error(t, sq.Unregister("unlock"))

	clock.Advance(10 * time.Second)
	assert.Empty(t, *events)
}
