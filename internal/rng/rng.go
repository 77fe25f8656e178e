// Package rng provides the seeded generator used for weight initialisation,
// epsilon-greedy exploration and replay sampling.
package rng

// LCG constants (Knuth MMIX).
const (
	multiplier = 6364136223846793005
	increment  = 1442695040888963407
)

// LCG is a 64-bit linear congruential generator. Its output is a pure
// function of the seed and the number of draws so far.
type LCG struct {
	state uint64
}

// New creates a generator seeded with seed.
func New(seed uint64) *LCG {
	return &LCG{state: seed}
}

// next advances the state and returns it.
func (r *LCG) next() uint64 {
	r.state = r.state*multiplier + increment
	return r.state
}

// Uint32 returns the high 32 bits of the next state.
// The low bits of an LCG have short periods and are discarded.
func (r *LCG) Uint32() uint32 {
	return uint32(r.next() >> 32)
}

// Float32 returns a uniform value in [0, 1).
func (r *LCG) Float32() float32 {
	return float32(r.next()>>40) / (1 << 24)
}

// Intn returns a uniform value in [0, n). Intn(0) returns 0.
func (r *LCG) Intn(n uint32) uint32 {
	if n == 0 {
		return 0
	}
	return uint32((uint64(r.Uint32()) * uint64(n)) >> 32)
}

// State returns the raw generator state.
func (r *LCG) State() uint64 {
	return r.state
}

// SetState restores a state previously returned by State.
func (r *LCG) SetState(s uint64) {
	r.state = s
}
