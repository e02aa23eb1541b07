package gesture

import "math"

// RingBuffer is a fixed-capacity sample store backed by a flat float64 slice
// with stride axes+1 (axis values then timestamp) for cache-friendly axis and
// magnitude extraction. It is a diagnostic/visualization surface only; no
// classification decision reads from it.
type RingBuffer struct {
	axes     int
	stride   int
	capacity int
	data     []float64
	head     int // next physical write slot
	length   int
}

// NewRingBuffer allocates a buffer holding capacity samples of the given
// axis count.
func NewRingBuffer(capacity, axes int) *RingBuffer {
	stride := axes + 1
	return &RingBuffer{
		axes:     axes,
		stride:   stride,
		capacity: capacity,
		data:     make([]float64, capacity*stride),
	}
}

// Len returns the number of stored samples, at most capacity.
func (b *RingBuffer) Len() int { return b.length }

// Capacity returns the fixed sample capacity.
func (b *RingBuffer) Capacity() int { return b.capacity }

// Push appends one sample, overwriting the oldest when full. O(1).
func (b *RingBuffer) Push(s Sample) {
	off := b.head * b.stride
	for i := 0; i < b.axes; i++ {
		b.data[off+i] = s.Axis(i)
	}
	b.data[off+b.axes] = float64(s.Timestamp)
	b.head = (b.head + 1) % b.capacity
	if b.length < b.capacity {
		b.length++
	}
}

// physical maps a logical index (0 = oldest) to a physical slot offset.
func (b *RingBuffer) physical(logical int) int {
	idx := b.head - b.length + logical
	idx = ((idx % b.capacity) + b.capacity) % b.capacity
	return idx * b.stride
}

// Get returns the sample at logical index (0 = oldest). ok is false when the
// index is out of range.
func (b *RingBuffer) Get(logical int) (Sample, bool) {
	if logical < 0 || logical >= b.length {
		return Sample{}, false
	}
	off := b.physical(logical)
	var s Sample
	s.AX = b.data[off]
	s.AY = b.data[off+1]
	s.AZ = b.data[off+2]
	if b.axes == 6 {
		s.GX = b.data[off+3]
		s.GY = b.data[off+4]
		s.GZ = b.data[off+5]
	}
	s.Timestamp = int64(b.data[off+b.axes])
	return s, true
}

// Recent returns the most recent n samples in time order. When fewer are
// stored it returns all of them.
func (b *RingBuffer) Recent(n int) []Sample {
	if n > b.length {
		n = b.length
	}
	out := make([]Sample, 0, n)
	for i := b.length - n; i < b.length; i++ {
		s, _ := b.Get(i)
		out = append(out, s)
	}
	return out
}

// Range returns all samples with timestamps in [startMs, endMs].
func (b *RingBuffer) Range(startMs, endMs int64) []Sample {
	var out []Sample
	for i := 0; i < b.length; i++ {
		s, _ := b.Get(i)
		if s.Timestamp < startMs {
			continue
		}
		if s.Timestamp > endMs {
			break
		}
		out = append(out, s)
	}
	return out
}

// AxisSeries extracts one axis of the most recent n samples as a contiguous
// array, oldest first.
func (b *RingBuffer) AxisSeries(axis, n int) []float64 {
	if n > b.length {
		n = b.length
	}
	out := make([]float64, 0, n)
	for i := b.length - n; i < b.length; i++ {
		off := b.physical(i)
		out = append(out, b.data[off+axis])
	}
	return out
}

// MagnitudeSeries extracts the acceleration magnitude of the most recent n
// samples as a contiguous array, oldest first.
func (b *RingBuffer) MagnitudeSeries(n int) []float64 {
	if n > b.length {
		n = b.length
	}
	out := make([]float64, 0, n)
	for i := b.length - n; i < b.length; i++ {
		off := b.physical(i)
		x, y, z := b.data[off], b.data[off+1], b.data[off+2]
		out = append(out, math.Sqrt(x*x+y*y+z*z))
	}
	return out
}

// Reset discards all stored samples.
func (b *RingBuffer) Reset() {
	b.head = 0
	b.length = 0
}
