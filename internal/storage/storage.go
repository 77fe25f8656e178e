package storage

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/hailam/snakerl/internal/dqn"
)

// Storage keys
const (
	keyConfig     = "config"
	keyAgentState = "agent_state"
	keyStats      = "stats"
	keyFirstRun   = "first_run"
)

// rewardEMAAlpha weights the latest episode in TrainingStats.RewardEMA.
const rewardEMAAlpha = 0.05

// AgentState mirrors the binary agent-state record in readable form.
type AgentState struct {
	Epsilon  float32   `json:"epsilon"`
	Steps    uint64    `json:"steps"`
	LastLoss float32   `json:"last_loss"`
	SavedAt  time.Time `json:"saved_at"`
}

// TrainingStats accumulates per-episode results across sessions.
type TrainingStats struct {
	Episodes    int           `json:"episodes"`
	TotalSteps  uint64        `json:"total_steps"`
	TotalFood   int           `json:"total_food"`
	BestScore   int           `json:"best_score"`
	BestReward  float64       `json:"best_reward"`
	TotalReward float64       `json:"total_reward"`
	RewardEMA   float64       `json:"reward_ema"`
	TrainTime   time.Duration `json:"train_time"`
}

// NewTrainingStats returns empty statistics.
func NewTrainingStats() *TrainingStats {
	return &TrainingStats{}
}

// AverageReward returns the mean episode reward.
func (s *TrainingStats) AverageReward() float64 {
	if s.Episodes == 0 {
		return 0
	}
	return s.TotalReward / float64(s.Episodes)
}

// EpisodeResult describes one finished episode.
type EpisodeResult struct {
	Steps    int
	Score    int
	Reward   float64
	Duration time.Duration
}

// Storage wraps BadgerDB for persistent storage
type Storage struct {
	db *badger.DB
}

// Open opens the database in dir. An empty dir opens an in-memory store.
func Open(dir string) (*Storage, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil // Disable logging

	db, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}
	return &Storage{db: db}, nil
}

// Close closes the database
func (s *Storage) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// IsFirstRun returns true if no training session has completed setup yet.
func (s *Storage) IsFirstRun() (bool, error) {
	firstRun := true

	err := s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyFirstRun))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		firstRun = false
		return nil
	})

	return firstRun, err
}

// MarkFirstRunComplete records that setup has completed.
func (s *Storage) MarkFirstRunComplete() error {
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(keyFirstRun), []byte("done"))
	})
}

func (s *Storage) putJSON(key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), data)
	})
}

// getJSON decodes key into v. A missing key leaves v untouched.
func (s *Storage) getJSON(key string, v any) error {
	return s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return json.Unmarshal(val, v)
		})
	})
}

// SaveConfig stores the agent hyperparameters of the run.
func (s *Storage) SaveConfig(cfg dqn.Config) error {
	return s.putJSON(keyConfig, cfg)
}

// LoadConfig loads the stored hyperparameters. found is false when none
// were saved, in which case cfg is dqn.DefaultConfig().
func (s *Storage) LoadConfig() (cfg dqn.Config, found bool, err error) {
	cfg = dqn.DefaultConfig()
	err = s.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(keyConfig))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return nil
		}
		found = err == nil
		return err
	})
	if err != nil || !found {
		return cfg, false, err
	}
	err = s.getJSON(keyConfig, &cfg)
	return cfg, err == nil, err
}

// SaveAgentState stores a readable copy of epsilon and the step counter.
func (s *Storage) SaveAgentState(st AgentState) error {
	st.SavedAt = time.Now()
	return s.putJSON(keyAgentState, st)
}

// LoadAgentState loads the mirrored agent state, zero if none was saved.
func (s *Storage) LoadAgentState() (AgentState, error) {
	var st AgentState
	err := s.getJSON(keyAgentState, &st)
	return st, err
}

// SaveStats saves training statistics
func (s *Storage) SaveStats(stats *TrainingStats) error {
	return s.putJSON(keyStats, stats)
}

// LoadStats loads training statistics, returns empty stats if not found
func (s *Storage) LoadStats() (*TrainingStats, error) {
	stats := NewTrainingStats()
	err := s.getJSON(keyStats, stats)
	return stats, err
}

// RecordEpisode folds a finished episode into the stored statistics.
func (s *Storage) RecordEpisode(result EpisodeResult) (*TrainingStats, error) {
	stats, err := s.LoadStats()
	if err != nil {
		return nil, err
	}

	if stats.Episodes == 0 {
		stats.BestReward = result.Reward
		stats.RewardEMA = result.Reward
	} else {
		stats.RewardEMA = (1-rewardEMAAlpha)*stats.RewardEMA + rewardEMAAlpha*result.Reward
	}
	stats.Episodes++
	stats.TotalSteps += uint64(result.Steps)
	stats.TotalFood += result.Score
	stats.TotalReward += result.Reward
	stats.TrainTime += result.Duration
	if result.Score > stats.BestScore {
		stats.BestScore = result.Score
	}
	if result.Reward > stats.BestReward {
		stats.BestReward = result.Reward
	}

	return stats, s.SaveStats(stats)
}
