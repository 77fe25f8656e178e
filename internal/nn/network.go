package nn

import (
	"fmt"

	"github.com/c2h5oh/datasize"
	"github.com/goki/mat32"
	"github.com/hailam/snakerl/internal/rng"
)

// Network is the fixed three-layer perceptron
//
//	[obs] -> Linear -> ReLU -> Linear -> ReLU -> Linear -> [Q]
//
// All layers share one Adam timestep, incremented once per StepAdam.
// A Network is not safe for concurrent use.
type Network struct {
	Din  int
	H1   int
	H2   int
	Dout int

	l1 *Linear
	l2 *Linear
	l3 *Linear

	adamStep uint64
}

// Trace is the record of one Network.Forward call.
type Trace struct {
	p1, p2, p3 Pass
	m1, m2     Mask
}

// NewNetwork creates a network, initialising L1, L2 and L3 in that order from r.
func NewNetwork(din, h1, h2, dout int, r *rng.LCG) *Network {
	return &Network{
		Din:  din,
		H1:   h1,
		H2:   h2,
		Dout: dout,
		l1:   NewLinear(din, h1, r),
		l2:   NewLinear(h1, h2, r),
		l3:   NewLinear(h2, dout, r),
	}
}

// Layers returns the three linear layers, input first.
func (n *Network) Layers() [3]*Linear {
	return [3]*Linear{n.l1, n.l2, n.l3}
}

// AdamStep returns the shared optimizer timestep.
func (n *Network) AdamStep() uint64 {
	return n.adamStep
}

// Forward computes the Q-values for one observation.
// Pass the returned Trace to Backward to train on this sample; inference
// callers can drop it.
func (n *Network) Forward(x []float32) ([]float32, *Trace) {
	tr := &Trace{}
	z1, p1 := n.l1.Forward(x)
	tr.p1, tr.m1 = p1, ReLU(z1)
	z2, p2 := n.l2.Forward(z1)
	tr.p2, tr.m2 = p2, ReLU(z2)
	q, p3 := n.l3.Forward(z2)
	tr.p3 = p3
	return q, tr
}

// Backward propagates dQ through the sample recorded in tr, accumulating
// gradients in every layer. The input gradient is discarded.
func (n *Network) Backward(tr *Trace, dQ []float32) {
	da2 := n.l3.Backward(tr.p3, dQ)
	tr.m2.Backward(da2)
	da1 := n.l2.Backward(tr.p2, da2)
	tr.m1.Backward(da1)
	n.l1.Backward(tr.p1, da1)
}

// ZeroGrad clears every layer's gradient accumulators.
func (n *Network) ZeroGrad() {
	n.l1.ZeroGrad()
	n.l2.ZeroGrad()
	n.l3.ZeroGrad()
}

// GradL2SumAll returns the squared L2 norm over all gradients.
func (n *Network) GradL2SumAll() float32 {
	return n.l1.GradL2Sum() + n.l2.GradL2Sum() + n.l3.GradL2Sum()
}

// NonFinite reports whether any parameter or gradient is NaN or infinite.
func (n *Network) NonFinite() bool {
	return n.l1.NonFinite() || n.l2.NonFinite() || n.l3.NonFinite()
}

// ClipGradNorm returns the factor that brings the global gradient norm down
// to maxNorm: 1 when the norm is zero or already within bounds. Gradients are
// not modified; pass the factor to StepAdam.
func (n *Network) ClipGradNorm(maxNorm float32) float32 {
	norm := mat32.Sqrt(n.GradL2SumAll())
	if norm == 0 || norm <= maxNorm {
		return 1
	}
	return maxNorm / norm
}

// StepAdam advances the shared timestep and applies AdamW to every layer.
func (n *Network) StepAdam(lr, b1, b2, eps, gradScale, weightDecay float32) {
	n.adamStep++
	n.l1.StepAdam(lr, b1, b2, eps, n.adamStep, gradScale, weightDecay)
	n.l2.StepAdam(lr, b1, b2, eps, n.adamStep, gradScale, weightDecay)
	n.l3.StepAdam(lr, b1, b2, eps, n.adamStep, gradScale, weightDecay)
}

// ClampParams clips all weights and biases into [-maxAbs, maxAbs].
func (n *Network) ClampParams(maxAbs float32) {
	n.l1.ClampParams(maxAbs)
	n.l2.ClampParams(maxAbs)
	n.l3.ClampParams(maxAbs)
}

// SoftUpdateFrom moves n toward src: theta = (1-tau)*theta + tau*theta_src.
// tau=0 leaves n unchanged, tau=1 copies src.
func (n *Network) SoftUpdateFrom(src *Network, tau float32) {
	n.mustMatch(src)
	for i, dst := range n.Layers() {
		s := src.Layers()[i]
		blend(dst.W, s.W, tau)
		blend(dst.B, s.B, tau)
	}
}

// CopyFrom copies weights and biases from src. Adam state is not copied.
func (n *Network) CopyFrom(src *Network) {
	n.mustMatch(src)
	for i, dst := range n.Layers() {
		s := src.Layers()[i]
		copy(dst.W, s.W)
		copy(dst.B, s.B)
	}
}

func (n *Network) mustMatch(o *Network) {
	if n.Din != o.Din || n.H1 != o.H1 || n.H2 != o.H2 || n.Dout != o.Dout {
		panic(fmt.Sprintf("nn: network shape %s does not match %s", n.shape(), o.shape()))
	}
}

func (n *Network) shape() string {
	return fmt.Sprintf("%d-%d-%d-%d", n.Din, n.H1, n.H2, n.Dout)
}

// ParamCount returns the number of trainable scalars.
func (n *Network) ParamCount() int {
	c := 0
	for _, l := range n.Layers() {
		c += len(l.W) + len(l.B)
	}
	return c
}

// CheckpointSize returns the size in bytes of the serialized network.
func (n *Network) CheckpointSize() int {
	return headerSize + n.l1.paramBytes() + n.l2.paramBytes() + n.l3.paramBytes()
}

// String describes the topology and checkpoint size.
func (n *Network) String() string {
	return fmt.Sprintf("Network %s: %d params, checkpoint %s, adam step %d",
		n.shape(), n.ParamCount(), datasize.ByteSize(n.CheckpointSize()).HumanReadable(), n.adamStep)
}
