package gesture

import (
	"sync"

	"github.com/banshee-data/gestures/internal/monitoring"
)

// handlerSet is a typed listener registry. Each listener runs inside a
// recover so one faulty subscriber cannot break delivery to the others or
// corrupt engine state.
type handlerSet[T any] struct {
	mu   sync.RWMutex
	next int
	subs map[int]func(T)
}

// subscribe registers f and returns its cancel func.
func (h *handlerSet[T]) subscribe(f func(T)) func() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.subs == nil {
		h.subs = make(map[int]func(T))
	}
	id := h.next
	h.next++
	h.subs[id] = f
	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		delete(h.subs, id)
	}
}

// emit delivers v to every listener, isolating panics per listener.
func (h *handlerSet[T]) emit(v T) {
	h.mu.RLock()
	fns := make([]func(T), 0, len(h.subs))
	for _, f := range h.subs {
		fns = append(fns, f)
	}
	h.mu.RUnlock()

	for _, f := range fns {
		func() {
			defer func() {
				if r := recover(); r != nil {
					monitoring.Logf("gesture: listener panic recovered: %v", r)
				}
			}()
			f(v)
		}()
	}
}

// emitter is the engine's event fan-out. Field per event, typed end to end.
type emitter struct {
	stateChanged   handlerSet[EngineState]
	result         handlerSet[RecognitionResult]
	gesture        handlerSet[RecognitionResult]
	activity       handlerSet[ActivityContext]
	armedChanged   handlerSet[ArmedState]
	recalibration  handlerSet[struct{}]
	errors         handlerSet[error]
	sequenceEvents handlerSet[SequenceEvent]
}
