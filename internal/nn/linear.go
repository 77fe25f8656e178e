package nn

import (
	"fmt"

	"github.com/goki/mat32"
	"github.com/hailam/snakerl/internal/rng"
)

// Linear is an affine layer y = x*W + b.
// Weights are stored row-major as an In x Out matrix:
// W[i*Out+j] connects input i to output j.
type Linear struct {
	In  int
	Out int

	W []float32
	B []float32

	// Accumulated gradients, zeroed by ZeroGrad.
	GW []float32
	GB []float32

	// Adam moments. Never reset during training.
	mW, vW []float32
	mB, vB []float32
}

// Pass is the input seen by one Linear.Forward call.
type Pass struct {
	x []float32
}

// NewLinear creates a layer with Glorot-uniform weights in [-k, k],
// k = sqrt(6/(in+out)), and zero bias.
func NewLinear(in, out int, r *rng.LCG) *Linear {
	l := newBlankLinear(in, out)
	k := mat32.Sqrt(6 / float32(in+out))
	for i := range l.W {
		u := r.Float32()
		l.W[i] = -k + 2*k*u
	}
	return l
}

func newBlankLinear(in, out int) *Linear {
	n := in * out
	return &Linear{
		In:  in,
		Out: out,
		W:   make([]float32, n),
		B:   make([]float32, out),
		GW:  make([]float32, n),
		GB:  make([]float32, out),
		mW:  make([]float32, n),
		vW:  make([]float32, n),
		mB:  make([]float32, out),
		vB:  make([]float32, out),
	}
}

// Forward computes y[j] = b[j] + sum_i x[i]*W[i][j] for one sample.
// The returned Pass must be handed to Backward for this sample.
func (l *Linear) Forward(x []float32) ([]float32, Pass) {
	if len(x) != l.In {
		panic(fmt.Sprintf("nn: Linear.Forward got %d inputs, want %d", len(x), l.In))
	}
	y := make([]float32, l.Out)
	for j := 0; j < l.Out; j++ {
		acc := l.B[j]
		for i := 0; i < l.In; i++ {
			acc += x[i] * l.W[i*l.Out+j]
		}
		y[j] = acc
	}
	in := make([]float32, len(x))
	copy(in, x)
	return y, Pass{x: in}
}

// Backward accumulates dW and dB for the sample recorded in p and returns dX.
func (l *Linear) Backward(p Pass, dy []float32) []float32 {
	if len(dy) != l.Out || len(p.x) != l.In {
		panic(fmt.Sprintf("nn: Linear.Backward shape mismatch (dy=%d, x=%d) for %dx%d", len(dy), len(p.x), l.In, l.Out))
	}

	// dW = x^T * dy
	for i := 0; i < l.In; i++ {
		xi := p.x[i]
		row := i * l.Out
		for j := 0; j < l.Out; j++ {
			l.GW[row+j] += xi * dy[j]
		}
	}
	// dB = dy
	for j := 0; j < l.Out; j++ {
		l.GB[j] += dy[j]
	}

	// dX = dy * W^T
	dx := make([]float32, l.In)
	for i := 0; i < l.In; i++ {
		var acc float32
		row := i * l.Out
		for j := 0; j < l.Out; j++ {
			acc += dy[j] * l.W[row+j]
		}
		dx[i] = acc
	}
	return dx
}

// ZeroGrad resets the gradient accumulators.
func (l *Linear) ZeroGrad() {
	clear(l.GW)
	clear(l.GB)
}

// StepAdam applies one AdamW update. t is the network-wide timestep,
// gradScale the global clip factor. Weight decay is decoupled and is
// not applied to the bias.
func (l *Linear) StepAdam(lr, b1, b2, eps float32, t uint64, gradScale, weightDecay float32) {
	tf := float32(t)
	corr1 := max(1-mat32.Pow(b1, tf), minBiasCorrection)
	corr2 := max(1-mat32.Pow(b2, tf), minBiasCorrection)

	for i := range l.W {
		g := l.GW[i] * gradScale
		l.mW[i] = b1*l.mW[i] + (1-b1)*g
		l.vW[i] = b2*l.vW[i] + (1-b2)*g*g
		mHat := l.mW[i] / corr1
		vHat := l.vW[i] / corr2
		l.W[i] -= lr * mHat / (mat32.Sqrt(vHat) + eps)
		if weightDecay > 0 {
			l.W[i] -= lr * weightDecay * l.W[i]
		}
	}

	for i := range l.B {
		g := l.GB[i] * gradScale
		l.mB[i] = b1*l.mB[i] + (1-b1)*g
		l.vB[i] = b2*l.vB[i] + (1-b2)*g*g
		mHat := l.mB[i] / corr1
		vHat := l.vB[i] / corr2
		l.B[i] -= lr * mHat / (mat32.Sqrt(vHat) + eps)
	}
}

// GradL2Sum returns the sum of squares of all weight and bias gradients.
func (l *Linear) GradL2Sum() float32 {
	var s float32
	for _, g := range l.GW {
		s += g * g
	}
	for _, g := range l.GB {
		s += g * g
	}
	return s
}

// NonFinite reports whether any parameter or gradient is NaN or infinite.
func (l *Linear) NonFinite() bool {
	return HasNonFinite(l.W) || HasNonFinite(l.B) ||
		HasNonFinite(l.GW) || HasNonFinite(l.GB)
}

// ClampParams clips every weight and bias into [-maxAbs, maxAbs].
func (l *Linear) ClampParams(maxAbs float32) {
	clampAll(l.W, maxAbs)
	clampAll(l.B, maxAbs)
}

func clampAll(v []float32, maxAbs float32) {
	for i, x := range v {
		if x > maxAbs {
			v[i] = maxAbs
		} else if x < -maxAbs {
			v[i] = -maxAbs
		}
	}
}

// blend sets dst = (1-tau)*dst + tau*src elementwise.
func blend(dst, src []float32, tau float32) {
	for i := range dst {
		dst[i] = (1-tau)*dst[i] + tau*src[i]
	}
}

// paramBytes is the serialized size of the layer block.
func (l *Linear) paramBytes() int {
	return 8 + 4*(3*len(l.W)+3*len(l.B))
}
