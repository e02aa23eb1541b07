package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHandlerSetSubscribeAndEmit(t *testing.T) {
	t.Parallel()

	var hs handlerSet[int]
	var got []int
	hs.subscribe(func(v int) { got = append(got, v) })
	hs.subscribe(func(v int) { got = append(got, v*10) })

	hs.emit(3)
	assert.ElementsMatch(t, []int{3, 30}, got)
}

func TestHandlerSetCancel(t *testing.T) {
	t.Parallel()

	var hs handlerSet[string]
	var calls int
	cancel := hs.subscribe(func(string) { calls++ })

	hs.emit("a")
	cancel()
	hs.emit("b")
	// cancel is idempotent
	cancel()
	hs.emit("c")

	assert.Equal(t, 1, calls)
}

func TestHandlerSetIsolatesPanics(t *testing.T) {
	t.Parallel()

	var hs handlerSet[int]
	var survived bool
	hs.subscribe(func(int) { panic("bad subscriber") })
	hs.subscribe(func(int) { survived = true })

	assert.NotPanics(t, func() { hs.emit(1) })
	assert.True(t, survived)
}

func TestHandlerSetEmitWithNoSubscribers(t *testing.T) {
	t.Parallel()

	var hs handlerSet[error]
	assert.NotPanics(t, func() { hs.emit(nil) })
}
