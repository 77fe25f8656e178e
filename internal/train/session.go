// Package train runs an agent against an environment, recording episodes
// and writing periodic checkpoints.
package train

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/hailam/snakerl/internal/dqn"
	"github.com/hailam/snakerl/internal/env"
	"github.com/hailam/snakerl/internal/storage"
)

// Options controls a Session.
type Options struct {
	SaveEvery   uint64 // steps between checkpoints, 0 disables
	ReportEvery int    // episodes between report lines, 0 disables
	Window      int    // episodes averaged into Summary.MeanReward

	Store  *storage.Storage // optional episode and state store
	Logger *log.Logger
}

// DefaultOptions returns the options used by the trainer command.
func DefaultOptions() Options {
	return Options{
		SaveEvery:   10000,
		ReportEvery: 50,
		Window:      100,
	}
}

// Summary describes a finished Run.
type Summary struct {
	Episodes   int
	Steps      uint64
	BestScore  int
	MeanReward float64 // over the last Window episodes
}

func (s Summary) String() string {
	return fmt.Sprintf("episodes=%d steps=%d best=%d mean_reward=%.3f",
		s.Episodes, s.Steps, s.BestScore, s.MeanReward)
}

// scorer is implemented by environments that keep a score.
type scorer interface {
	Score() int
}

// Session drives one agent in one environment from a single goroutine.
type Session struct {
	agent *dqn.Agent
	env   env.Environment
	opts  Options

	global uint64

	epReward float64
	epSteps  int
	epStart  time.Time

	episodes  int
	bestScore int
	recent    []float64
	next      int
}

// NewSession creates a session. The global step counter resumes from the
// agent's restored step count.
func NewSession(agent *dqn.Agent, e env.Environment, opts Options) *Session {
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Window <= 0 {
		opts.Window = 1
	}
	return &Session{
		agent:   agent,
		env:     e,
		opts:    opts,
		global:  agent.Steps(),
		epStart: time.Now(),
		recent:  make([]float64, 0, opts.Window),
	}
}

// Agent returns the trained agent.
func (s *Session) Agent() *dqn.Agent { return s.agent }

// Episodes returns the number of episodes finished in this session.
func (s *Session) Episodes() int { return s.episodes }

// Step performs one environment step and one learning phase. It reports
// whether the step ended an episode.
func (s *Session) Step() (done bool, err error) {
	obs := s.env.Observe()
	action := s.agent.SelectAction(obs)
	reward, done := s.env.Step(action)
	s.agent.Remember(obs, action, reward, s.env.Observe(), done)
	s.agent.MaybeLearn()

	s.global++
	s.agent.OnStep(s.global)

	s.epReward += float64(reward)
	s.epSteps++

	if done {
		if err := s.finishEpisode(); err != nil {
			return true, err
		}
	}
	if s.opts.SaveEvery > 0 && s.global%s.opts.SaveEvery == 0 {
		if err := s.Checkpoint(); err != nil {
			return done, err
		}
	}
	return done, nil
}

func (s *Session) finishEpisode() error {
	score := 0
	if sc, ok := s.env.(scorer); ok {
		score = sc.Score()
	}

	s.episodes++
	s.bestScore = max(s.bestScore, score)
	if len(s.recent) < cap(s.recent) {
		s.recent = append(s.recent, s.epReward)
	} else {
		s.recent[s.next] = s.epReward
		s.next = (s.next + 1) % len(s.recent)
	}

	if s.opts.ReportEvery > 0 && s.episodes%s.opts.ReportEvery == 0 {
		s.opts.Logger.Printf("info: episode %d steps=%d score=%d reward=%.3f eps=%.3f loss=%.4f replay=%d",
			s.episodes, s.epSteps, score, s.epReward,
			s.agent.Epsilon(), s.agent.LastLoss(), s.agent.ReplayLen())
	}

	var err error
	if s.opts.Store != nil {
		_, err = s.opts.Store.RecordEpisode(storage.EpisodeResult{
			Steps:    s.epSteps,
			Score:    score,
			Reward:   s.epReward,
			Duration: time.Since(s.epStart),
		})
		if err != nil {
			err = fmt.Errorf("failed to record episode: %w", err)
		}
	}

	s.env.Reset()
	s.epReward, s.epSteps = 0, 0
	s.epStart = time.Now()
	return err
}

// Checkpoint saves the agent files and mirrors the agent state into the
// store.
func (s *Session) Checkpoint() error {
	if err := s.agent.SaveAll(); err != nil {
		return fmt.Errorf("failed to save checkpoint: %w", err)
	}
	if s.opts.Store == nil {
		return nil
	}
	return s.opts.Store.SaveAgentState(storage.AgentState{
		Epsilon:  s.agent.Epsilon(),
		Steps:    s.agent.Steps(),
		LastLoss: s.agent.LastLoss(),
	})
}

// Summary returns the session results so far.
func (s *Session) Summary() Summary {
	sum := Summary{
		Episodes:  s.episodes,
		Steps:     s.global,
		BestScore: s.bestScore,
	}
	if len(s.recent) > 0 {
		var total float64
		for _, r := range s.recent {
			total += r
		}
		sum.MeanReward = total / float64(len(s.recent))
	}
	return sum
}

// Run steps the session maxSteps times, or until ctx is cancelled, then
// writes a final checkpoint.
func (s *Session) Run(ctx context.Context, maxSteps uint64) (Summary, error) {
	for i := uint64(0); i < maxSteps; i++ {
		if err := ctx.Err(); err != nil {
			if cerr := s.Checkpoint(); cerr != nil {
				s.opts.Logger.Printf("error: %v", cerr)
			}
			return s.Summary(), err
		}
		if _, err := s.Step(); err != nil {
			return s.Summary(), err
		}
	}
	return s.Summary(), s.Checkpoint()
}
