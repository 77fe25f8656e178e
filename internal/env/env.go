// Package env provides environments that produce observations and rewards
// for the agent.
package env

// Environment is a discrete-action episodic task.
type Environment interface {
	// Observe returns the current observation vector.
	Observe() []float32
	// Step applies an action and returns the reward and whether the
	// episode ended.
	Step(action uint8) (reward float32, done bool)
	// Reset starts a new episode.
	Reset()
	// ObservationDim is the length of Observe's result.
	ObservationDim() int
	// Actions is the number of valid actions.
	Actions() int
}

// Bandit is a stateless two-armed task: action 0 pays +1, any other
// action pays -1, and every step ends the episode.
type Bandit struct{}

// NewBandit creates the bandit task.
func NewBandit() *Bandit { return &Bandit{} }

func (*Bandit) Observe() []float32 { return []float32{1, 0.5} }

func (*Bandit) Step(action uint8) (float32, bool) {
	if action == 0 {
		return 1, true
	}
	return -1, true
}

func (*Bandit) Reset()              {}
func (*Bandit) ObservationDim() int { return 2 }
func (*Bandit) Actions() int        { return 2 }
