package dqn

import "fmt"

// Safety rails applied by LearnOnce.
const (
	MaxGradNorm = 1.0  // global gradient-norm clip
	WeightDecay = 1e-4 // AdamW decay on weights
	ParamClip   = 10.0 // hard parameter clamp after every step
	RewardClip  = 1.0  // rewards are clipped into [-RewardClip, RewardClip]
	TargetClip  = 10.0 // TD targets are clipped into [-TargetClip, TargetClip]
	HuberDelta  = 1.0
)

// Seed offsets for the three generators derived from Config.Seed.
const (
	targetSeedMask  = 0xA5A5_5A5A
	samplerSeedMask = 0xDEAD_BEEF
)

// Config holds the agent hyperparameters. They are fixed for the lifetime
// of an Agent.
type Config struct {
	ObsDim         int     `json:"obs_dim"`
	Actions        int     `json:"actions"`
	Hidden         int     `json:"hidden"`
	BufferCapacity int     `json:"buffer_capacity"`
	BatchSize      int     `json:"batch_size"`
	Gamma          float32 `json:"gamma"`
	LR             float32 `json:"lr"`
	EpsStart       float32 `json:"eps_start"`
	EpsEnd         float32 `json:"eps_end"`
	EpsDecaySteps  uint64  `json:"eps_decay_steps"`
	Tau            float32 `json:"tau"`
	LearnStart     int     `json:"learn_start"`
	UpdatesPerStep int     `json:"updates_per_step"`
	Seed           uint64  `json:"seed"`

	// Checkpoint locations. Empty disables loading and saving.
	WeightsPath string `json:"weights_path"`
	StatePath   string `json:"state_path"`
}

// DefaultConfig returns the hyperparameters used for the snake environment.
func DefaultConfig() Config {
	return Config{
		ObsDim:         19,
		Actions:        3,
		Hidden:         128,
		BufferCapacity: 100_000,
		BatchSize:      64,
		Gamma:          0.99,
		LR:             5e-4,
		EpsStart:       1.0,
		EpsEnd:         0.05,
		EpsDecaySteps:  200_000,
		Tau:            0.005,
		LearnStart:     1_000,
		UpdatesPerStep: 1,
		Seed:           42,
		WeightsPath:    "weights.bin",
		StatePath:      "agent_state.bin",
	}
}

// Validate checks that the configuration describes a usable agent.
func (c Config) Validate() error {
	switch {
	case c.ObsDim <= 0:
		return fmt.Errorf("dqn: obs_dim must be positive, got %d", c.ObsDim)
	case c.Actions <= 0 || c.Actions > 256:
		return fmt.Errorf("dqn: actions must be in [1, 256], got %d", c.Actions)
	case c.Hidden <= 0:
		return fmt.Errorf("dqn: hidden must be positive, got %d", c.Hidden)
	case c.BufferCapacity <= 0:
		return fmt.Errorf("dqn: buffer_capacity must be positive, got %d", c.BufferCapacity)
	case c.BatchSize <= 0:
		return fmt.Errorf("dqn: batch_size must be positive, got %d", c.BatchSize)
	case c.UpdatesPerStep < 0:
		return fmt.Errorf("dqn: updates_per_step must not be negative, got %d", c.UpdatesPerStep)
	case c.Tau < 0 || c.Tau > 1:
		return fmt.Errorf("dqn: tau must be in [0, 1], got %v", c.Tau)
	}
	return nil
}
