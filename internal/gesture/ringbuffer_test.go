package gesture

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingBufferFillAndOverwrite(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(4, 3)
	assert.Equal(t, 0, b.Len())
	assert.Equal(t, 4, b.Capacity())

	for i := 0; i < 6; i++ {
		b.Push(Sample{AX: float64(i), Timestamp: int64(i) * 20})
	}
	// capacity never exceeded, oldest two overwritten
	require.Equal(t, 4, b.Len())

	s, ok := b.Get(0)
	require.True(t, ok)
	assert.Equal(t, 2.0, s.AX)
	assert.Equal(t, int64(40), s.Timestamp)

	s, ok = b.Get(3)
	require.True(t, ok)
	assert.Equal(t, 5.0, s.AX)
}

func TestRingBufferGetOutOfRange(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(4, 3)
	b.Push(Sample{AX: 1})

	_, ok := b.Get(-1)
	assert.False(t, ok)
	_, ok = b.Get(1)
	assert.False(t, ok)
}

func TestRingBufferRecentOrdering(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(8, 3)
	for i := 0; i < 12; i++ {
		b.Push(Sample{AX: float64(i), Timestamp: int64(i)})
	}

	recent := b.Recent(3)
	require.Len(t, recent, 3)
	assert.Equal(t, 9.0, recent[0].AX)
	assert.Equal(t, 10.0, recent[1].AX)
	assert.Equal(t, 11.0, recent[2].AX)

	// asking for more than stored returns everything
	all := b.Recent(100)
	assert.Len(t, all, 8)
	assert.Equal(t, 4.0, all[0].AX)
}

func TestRingBufferRange(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(10, 3)
	for i := 0; i < 10; i++ {
		b.Push(Sample{AX: float64(i), Timestamp: int64(i) * 100})
	}

	got := b.Range(250, 550)
	require.Len(t, got, 3)
	assert.Equal(t, int64(300), got[0].Timestamp)
	assert.Equal(t, int64(500), got[2].Timestamp)
}

func TestRingBufferSeries(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(5, 3)
	b.Push(Sample{AX: 3, AY: 4, AZ: 0, Timestamp: 1})
	b.Push(Sample{AX: 0, AY: 0, AZ: 2, Timestamp: 2})

	mags := b.MagnitudeSeries(2)
	require.Len(t, mags, 2)
	assert.InDelta(t, 5.0, mags[0], 1e-12)
	assert.InDelta(t, 2.0, mags[1], 1e-12)

	ys := b.AxisSeries(1, 2)
	require.Len(t, ys, 2)
	assert.Equal(t, 4.0, ys[0])
	assert.Equal(t, 0.0, ys[1])
}

func TestRingBufferSixAxisRoundTrip(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(2, 6)
	in := Sample{AX: 1, AY: 2, AZ: 3, GX: 4, GY: 5, GZ: 6, Timestamp: 77}
	b.Push(in)

	out, ok := b.Get(0)
	require.True(t, ok)
	assert.Equal(t, in, out)
}

func TestRingBufferReset(t *testing.T) {
	t.Parallel()

	b := NewRingBuffer(4, 3)
	for i := 0; i < 4; i++ {
		b.Push(Sample{AX: float64(i)})
	}
	b.Reset()
	assert.Equal(t, 0, b.Len())
	_, ok := b.Get(0)
	assert.False(t, ok)
}
