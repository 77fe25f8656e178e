// Package dqn implements a Double-DQN agent on top of the nn package:
// epsilon-greedy acting, experience replay, and soft target updates.
package dqn

import (
	"errors"
	"fmt"
	"log"
	"os"

	"github.com/hailam/snakerl/internal/nn"
	"github.com/hailam/snakerl/internal/replay"
	"github.com/hailam/snakerl/internal/rng"
)

// Scalars receives the diagnostic values emitted after every optimizer step.
type Scalars interface {
	Scalar(step uint64, key string, value float32)
}

type discardScalars struct{}

func (discardScalars) Scalar(uint64, string, float32) {}

// Agent is a Double-DQN learner. It owns the online and target networks,
// the replay buffer and the random generator. An Agent must be driven from
// a single goroutine.
type Agent struct {
	cfg Config

	online *nn.Network // trained by gradient steps
	target *nn.Network // moved toward online by soft updates only

	replay *replay.Buffer
	rng    *rng.LCG

	eps      float32
	steps    uint64
	lastLoss float32
	report   Report

	logger  *log.Logger
	scalars Scalars
}

// Option configures an Agent.
type Option func(*Agent)

// WithLogger sets the logger for info, warning and error messages.
func WithLogger(l *log.Logger) Option {
	return func(a *Agent) { a.logger = l }
}

// WithScalars sets the sink for per-update diagnostics.
func WithScalars(s Scalars) Option {
	return func(a *Agent) { a.scalars = s }
}

// New creates an agent. If cfg names checkpoint files that exist, the online
// network and the epsilon/step record are restored from them; a missing or
// invalid checkpoint falls back to fresh initialisation. The target network
// always starts as a copy of the online network.
func New(cfg Config, opts ...Option) (*Agent, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	online := nn.NewNetwork(cfg.ObsDim, cfg.Hidden, cfg.Hidden, cfg.Actions, rng.New(cfg.Seed))
	target := nn.NewNetwork(cfg.ObsDim, cfg.Hidden, cfg.Hidden, cfg.Actions, rng.New(cfg.Seed^targetSeedMask))
	target.CopyFrom(online)

	a := &Agent{
		cfg:     cfg,
		online:  online,
		target:  target,
		replay:  replay.New(cfg.BufferCapacity),
		rng:     rng.New(samplerSeedMask ^ cfg.Seed),
		eps:     cfg.EpsStart,
		logger:  log.Default(),
		scalars: discardScalars{},
	}
	for _, opt := range opts {
		opt(a)
	}

	a.restore()
	return a, nil
}

// restore loads checkpoints named in the config, if any.
func (a *Agent) restore() {
	if path := a.cfg.WeightsPath; path != "" {
		switch err := a.online.Load(path); {
		case err == nil:
			a.target.CopyFrom(a.online)
			a.infof("loaded %s (%s)", path, a.online)
		case errors.Is(err, os.ErrNotExist):
			a.infof("no checkpoint at %s, starting fresh", path)
		default:
			a.warnf("ignoring checkpoint %s: %v", path, err)
		}
	}

	if path := a.cfg.StatePath; path != "" {
		eps, steps, err := LoadState(path)
		switch {
		case err == nil:
			a.eps, a.steps = eps, steps
			a.infof("loaded %s (eps=%.3f, steps=%d)", path, eps, steps)
		case !errors.Is(err, os.ErrNotExist):
			a.warnf("ignoring agent state %s: %v", path, err)
		}
	}
}

// Config returns the agent hyperparameters.
func (a *Agent) Config() Config { return a.cfg }

// Epsilon returns the current exploration rate.
func (a *Agent) Epsilon() float32 { return a.eps }

// ReplayLen returns the number of stored transitions.
func (a *Agent) ReplayLen() int { return a.replay.Len() }

// LastLoss returns the mean Huber loss of the last successful update.
func (a *Agent) LastLoss() float32 { return a.lastLoss }

// LastReport returns diagnostics of the last successful update.
func (a *Agent) LastReport() Report { return a.report }

// Steps returns the global step counter last passed to OnStep.
func (a *Agent) Steps() uint64 { return a.steps }

// Online returns the trained network.
func (a *Agent) Online() *nn.Network { return a.online }

// Target returns the target network.
func (a *Agent) Target() *nn.Network { return a.target }

// SelectAction picks an epsilon-greedy action for obs. A malformed
// observation or a non-finite Q-value falls back to a random action.
func (a *Agent) SelectAction(obs []float32) uint8 {
	if len(obs) != a.cfg.ObsDim {
		a.warnf("SelectAction got %d observations, want %d, taking a random action", len(obs), a.cfg.ObsDim)
		return a.randomAction()
	}
	if a.rng.Float32() < a.eps {
		return a.randomAction()
	}
	q, _ := a.online.Forward(obs)
	if nn.HasNonFinite(q) {
		a.errorf("Q contains NaN/Inf in SelectAction, falling back to random")
		return a.randomAction()
	}
	return uint8(nn.Argmax(q))
}

// Greedy returns argmax Q(obs) without exploration or RNG use. A malformed
// observation or a non-finite Q-value yields action 0.
func (a *Agent) Greedy(obs []float32) uint8 {
	if len(obs) != a.cfg.ObsDim {
		a.warnf("Greedy got %d observations, want %d, using action 0", len(obs), a.cfg.ObsDim)
		return 0
	}
	q, _ := a.online.Forward(obs)
	if nn.HasNonFinite(q) {
		a.errorf("Q contains NaN/Inf in Greedy, using action 0")
		return 0
	}
	return uint8(nn.Argmax(q))
}

func (a *Agent) randomAction() uint8 {
	return uint8(a.rng.Intn(uint32(a.cfg.Actions)))
}

// Remember stores a transition. The vectors are copied. Transitions with the
// wrong observation size or an out-of-range action are dropped.
func (a *Agent) Remember(s []float32, action uint8, reward float32, s2 []float32, done bool) {
	if len(s) != a.cfg.ObsDim || len(s2) != a.cfg.ObsDim || int(action) >= a.cfg.Actions {
		a.warnf("dropping malformed transition (obs %d/%d, action %d)", len(s), len(s2), action)
		return
	}
	a.replay.Push(replay.Transition{
		State:     append([]float32(nil), s...),
		Action:    action,
		Reward:    reward,
		NextState: append([]float32(nil), s2...),
		Done:      done,
	})
}

// MaybeLearn runs UpdatesPerStep updates once the buffer holds at least
// LearnStart transitions; before that it does nothing.
func (a *Agent) MaybeLearn() {
	if a.replay.Len() == 0 || a.replay.Len() < a.cfg.LearnStart {
		return
	}
	for i := 0; i < a.cfg.UpdatesPerStep; i++ {
		a.LearnOnce()
	}
}

// OnStep sets the global step counter and advances the linear epsilon
// schedule from EpsStart to EpsEnd over EpsDecaySteps.
func (a *Agent) OnStep(globalStep uint64) {
	a.steps = globalStep
	t := float32(1)
	if a.cfg.EpsDecaySteps > 0 {
		t = min(1, float32(a.steps)/float32(a.cfg.EpsDecaySteps))
	}
	a.eps = a.cfg.EpsStart + t*(a.cfg.EpsEnd-a.cfg.EpsStart)
}

// SaveAll writes the online network checkpoint and the agent-state record.
// The target network is not saved; it is rebuilt from the online network
// on load.
func (a *Agent) SaveAll() error {
	var errs []error
	if path := a.cfg.WeightsPath; path != "" {
		if err := a.online.Save(path); err != nil {
			errs = append(errs, err)
		} else {
			a.infof("saved %s", path)
		}
	}
	if path := a.cfg.StatePath; path != "" {
		if err := SaveState(path, a.eps, a.steps); err != nil {
			errs = append(errs, err)
		} else {
			a.infof("saved %s", path)
		}
	}
	return errors.Join(errs...)
}

func (a *Agent) infof(format string, args ...any) {
	a.logger.Print("info: " + fmt.Sprintf(format, args...))
}

func (a *Agent) warnf(format string, args ...any) {
	a.logger.Print("warn: " + fmt.Sprintf(format, args...))
}

func (a *Agent) errorf(format string, args ...any) {
	a.logger.Print("error: " + fmt.Sprintf(format, args...))
}
