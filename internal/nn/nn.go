// Package nn implements the Q-network used by the agent: a fixed
// Linear -> ReLU -> Linear -> ReLU -> Linear perceptron with hand-written
// backpropagation and an AdamW optimizer.
//
// Forward passes do not leave state behind in the layers. Each Forward
// returns a record of what it saw (Pass, Mask, Trace) and the matching
// Backward consumes that record, so a backward pass can only ever run
// against the forward pass that produced it.
package nn

import "github.com/goki/mat32"

// Adam defaults used by the agent.
const (
	Beta1   = 0.9
	Beta2   = 0.999
	AdamEps = 1e-8

	// minBiasCorrection floors 1-beta^t so early steps never divide by zero.
	minBiasCorrection = 1e-8
)

// HasNonFinite reports whether v contains a NaN or an infinity.
func HasNonFinite(v []float32) bool {
	for _, x := range v {
		if mat32.IsNaN(x) || mat32.IsInf(x, 0) {
			return true
		}
	}
	return false
}

// Argmax returns the index of the largest element, the first one on ties.
// It returns 0 for an empty slice.
func Argmax(v []float32) int {
	best := 0
	for i := 1; i < len(v); i++ {
		if v[i] > v[best] {
			best = i
		}
	}
	return best
}
