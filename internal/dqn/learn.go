package dqn

import (
	"github.com/goki/mat32"
	"github.com/hailam/snakerl/internal/nn"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Stats summarises a batch of values.
type Stats struct {
	Min  float32
	Mean float32
	Max  float32
}

// Report holds the diagnostics of one successful update.
type Report struct {
	Step     uint64
	Loss     float32 // mean Huber loss over the batch
	GradNorm float32 // global norm before clipping
	Kept     int     // samples that contributed a gradient
	TD       Stats
	QSel     Stats
	QAbsMax  float32
	Epsilon  float32
}

// TDTarget computes the clipped Double-DQN target for one transition.
// qNext is Q_target(s', argmax_a Q_online(s', a)) and is ignored when done.
func TDTarget(reward, gamma float32, done bool, qNext float32) float32 {
	y := clamp(reward, -RewardClip, RewardClip)
	if !done {
		y += gamma * qNext
	}
	return clamp(y, -TargetClip, TargetClip)
}

// huber returns the Huber loss and its derivative for error e.
// A NaN error yields a NaN loss and gradient.
func huber(e float32) (loss, grad float32) {
	if mat32.IsNaN(e) {
		return e, e
	}
	if mat32.Abs(e) <= HuberDelta {
		return 0.5 * e * e, e
	}
	if e > 0 {
		return e - 0.5*HuberDelta, HuberDelta
	}
	return -e - 0.5*HuberDelta, -HuberDelta
}

func clamp(v, lo, hi float32) float32 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// LearnOnce performs one minibatch update of the online network and a soft
// update of the target. It returns false when the update was skipped: an
// empty buffer, a batch of only non-finite samples, or non-finite
// gradients. A skipped update leaves the parameters untouched.
func (a *Agent) LearnOnce() bool {
	idxs := a.replay.SampleIndices(a.rng, a.cfg.BatchSize)
	if len(idxs) == 0 {
		return false
	}
	a.online.ZeroGrad()

	batch := float32(a.cfg.BatchSize)
	var lossAcc float32
	tdErrs := make([]float32, 0, len(idxs))
	qSel := make([]float32, 0, len(idxs))

	for _, k := range idxs {
		tr := a.replay.At(k)

		// a* = argmax_a Q_online(s', a); the trace is not needed.
		qNextOnline, _ := a.online.Forward(tr.NextState)
		aStar := nn.Argmax(qNextOnline)

		var qNext float32
		if !tr.Done {
			qNextTarget, _ := a.target.Forward(tr.NextState)
			qNext = qNextTarget[aStar]
		}
		y := TDTarget(tr.Reward, a.cfg.Gamma, tr.Done, qNext)

		q, trace := a.online.Forward(tr.State)
		if nn.HasNonFinite(q) {
			continue
		}

		act := int(tr.Action)
		e := q[act] - y
		tdErrs = append(tdErrs, e)
		qSel = append(qSel, q[act])

		// The denominator stays BatchSize even when samples were skipped.
		l, g := huber(e)
		dQ := make([]float32, a.cfg.Actions)
		dQ[act] = g / batch
		a.online.Backward(trace, dQ)

		lossAcc += l / batch
	}

	if len(tdErrs) == 0 {
		a.warnf("LearnOnce: batch had only non-finite samples, skipping update")
		return false
	}

	gradL2, ok := a.checkGradients()
	if !ok {
		return false
	}

	scale := a.online.ClipGradNorm(MaxGradNorm)
	a.online.StepAdam(a.cfg.LR, nn.Beta1, nn.Beta2, nn.AdamEps, scale, WeightDecay)
	a.online.ClampParams(ParamClip)
	a.target.SoftUpdateFrom(a.online, a.cfg.Tau)

	a.lastLoss = lossAcc
	a.report = Report{
		Step:     a.steps,
		Loss:     lossAcc,
		GradNorm: gradL2,
		Kept:     len(tdErrs),
		TD:       summarize(tdErrs),
		QSel:     summarize(qSel),
		QAbsMax:  absMax(qSel),
		Epsilon:  a.eps,
	}
	a.emit(a.report)
	return true
}

// checkGradients returns the pre-clip gradient norm of the online network.
// If any parameter, gradient or the norm itself is non-finite it zeroes the
// gradients and returns false.
func (a *Agent) checkGradients() (float32, bool) {
	gradL2 := mat32.Sqrt(a.online.GradL2SumAll())
	if a.online.NonFinite() || mat32.IsNaN(gradL2) || mat32.IsInf(gradL2, 0) {
		a.errorf("non-finite grads/params before step (|g|=%v), skipping", gradL2)
		a.online.ZeroGrad()
		return gradL2, false
	}
	return gradL2, true
}

func (a *Agent) emit(r Report) {
	s := a.scalars
	s.Scalar(r.Step, "loss", r.Loss)
	s.Scalar(r.Step, "grad_norm", r.GradNorm)
	s.Scalar(r.Step, "td_mean", r.TD.Mean)
	s.Scalar(r.Step, "td_min", r.TD.Min)
	s.Scalar(r.Step, "td_max", r.TD.Max)
	s.Scalar(r.Step, "q_sel_mean", r.QSel.Mean)
	s.Scalar(r.Step, "q_sel_min", r.QSel.Min)
	s.Scalar(r.Step, "q_sel_max", r.QSel.Max)
	s.Scalar(r.Step, "q_abs_max", r.QAbsMax)
	s.Scalar(r.Step, "epsilon", r.Epsilon)
}

func summarize(v []float32) Stats {
	x := make([]float64, len(v))
	for i, f := range v {
		x[i] = float64(f)
	}
	return Stats{
		Min:  float32(floats.Min(x)),
		Mean: float32(stat.Mean(x, nil)),
		Max:  float32(floats.Max(x)),
	}
}

func absMax(v []float32) float32 {
	var m float32
	for _, f := range v {
		m = max(m, mat32.Abs(f))
	}
	return m
}
