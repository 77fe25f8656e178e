// Package replay implements the fixed-capacity experience store sampled by
// the learner.
package replay

import "github.com/hailam/snakerl/internal/rng"

// Transition records one environment step. It is never mutated after Push.
type Transition struct {
	State     []float32
	Action    uint8
	Reward    float32
	NextState []float32
	Done      bool
}

// Buffer is a ring of at most Cap transitions. Once full, Push overwrites
// the oldest slot, so the buffer always holds the most recent Cap pushes.
type Buffer struct {
	capacity int
	items    []Transition
	cursor   int // next slot to overwrite once full
}

// New creates an empty buffer holding at most capacity transitions.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		capacity: capacity,
		items:    make([]Transition, 0, capacity),
	}
}

// Push stores t.
func (b *Buffer) Push(t Transition) {
	if len(b.items) < b.capacity {
		b.items = append(b.items, t)
		return
	}
	b.items[b.cursor] = t
	b.cursor = (b.cursor + 1) % b.capacity
}

// Len returns the number of stored transitions.
func (b *Buffer) Len() int { return len(b.items) }

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int { return b.capacity }

// At returns the transition in slot i. Slots are in storage order, not
// insertion order, once the buffer has wrapped.
func (b *Buffer) At(i int) *Transition { return &b.items[i] }

// SampleIndices draws n slot indices uniformly with replacement.
// It returns nil when the buffer is empty.
func (b *Buffer) SampleIndices(r *rng.LCG, n int) []int {
	if len(b.items) == 0 {
		return nil
	}
	size := uint32(len(b.items))
	out := make([]int, n)
	for i := range out {
		out[i] = int(r.Intn(size))
	}
	return out
}

// Ordered returns the stored transitions oldest first.
func (b *Buffer) Ordered() []Transition {
	out := make([]Transition, 0, len(b.items))
	out = append(out, b.items[b.cursor:]...)
	return append(out, b.items[:b.cursor]...)
}
