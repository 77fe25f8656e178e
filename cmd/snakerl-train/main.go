package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/pprof"
	"syscall"

	"github.com/hailam/snakerl/internal/dqn"
	"github.com/hailam/snakerl/internal/env"
	"github.com/hailam/snakerl/internal/metrics"
	"github.com/hailam/snakerl/internal/storage"
	"github.com/hailam/snakerl/internal/train"
)

var (
	steps       = flag.Uint64("steps", 1_000_000, "environment steps to run")
	envName     = flag.String("env", "snake", "environment: snake or bandit")
	width       = flag.Int("width", 20, "snake board width")
	height      = flag.Int("height", 20, "snake board height")
	seed        = flag.Uint64("seed", 42, "agent seed (overrides the stored config when set)")
	dataDir     = flag.String("data", "", "data directory (default: platform data dir)")
	metricsKind = flag.String("metrics", "sqlite", "scalar sink: sqlite, log or none")
	saveEvery   = flag.Uint64("save-every", 10000, "steps between checkpoints")
	reportEvery = flag.Int("report-every", 50, "episodes between report lines")
	cpuprofile  = flag.String("cpuprofile", "", "write cpu profile to file")
)

func main() {
	flag.Parse()
	if err := run(); err != nil {
		log.Fatal(err)
	}
}

func run() error {
	// Start CPU profiling if requested (via flag or environment variable)
	profilePath := *cpuprofile
	if profilePath == "" {
		profilePath = os.Getenv("CPUPROFILE")
	}
	if profilePath != "" {
		f, err := os.Create(profilePath)
		if err != nil {
			return fmt.Errorf("could not create CPU profile: %w", err)
		}
		defer f.Close()
		if err := pprof.StartCPUProfile(f); err != nil {
			return fmt.Errorf("could not start CPU profile: %w", err)
		}
		defer pprof.StopCPUProfile()
		log.Printf("CPU profiling enabled, writing to %s", profilePath)
	}

	environment, err := newEnvironment()
	if err != nil {
		return err
	}

	root := *dataDir
	if root == "" {
		if root, err = storage.GetDataDir(); err != nil {
			return err
		}
	}
	root = filepath.Join(root, *envName)

	dbDir, err := storage.GetDatabaseDir(root)
	if err != nil {
		return err
	}
	store, err := storage.Open(dbDir)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer store.Close()

	cfg, err := loadConfig(store, root, environment)
	if err != nil {
		return err
	}

	sink, err := newSink(root)
	if err != nil {
		return err
	}
	defer func() {
		if err := sink.Close(); err != nil {
			log.Printf("Warning: closing metrics: %v", err)
		}
	}()

	agent, err := dqn.New(cfg, dqn.WithScalars(sink))
	if err != nil {
		return err
	}

	opts := train.DefaultOptions()
	opts.SaveEvery = *saveEvery
	opts.ReportEvery = *reportEvery
	opts.Store = store
	session := train.NewSession(agent, environment, opts)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.Printf("training %s for %d steps in %s (%s)", *envName, *steps, root, agent.Online())
	summary, err := session.Run(ctx, *steps)
	log.Printf("session: %s", summary)
	if err != nil && ctx.Err() == nil {
		return err
	}

	stats, err := store.LoadStats()
	if err != nil {
		return err
	}
	log.Printf("all sessions: episodes=%d steps=%d food=%d best=%d avg_reward=%.3f ema=%.3f",
		stats.Episodes, stats.TotalSteps, stats.TotalFood, stats.BestScore,
		stats.AverageReward(), stats.RewardEMA)
	return nil
}

func newEnvironment() (env.Environment, error) {
	switch *envName {
	case "snake":
		return env.NewSnake(*width, *height, env.DefaultFoodSeed), nil
	case "bandit":
		return env.NewBandit(), nil
	}
	return nil, fmt.Errorf("unknown environment %q", *envName)
}

// loadConfig returns the stored run config, or defaults sized for e on the
// first run. Checkpoint paths always point into root.
func loadConfig(store *storage.Storage, root string, e env.Environment) (dqn.Config, error) {
	cfg, found, err := store.LoadConfig()
	if err != nil {
		return cfg, fmt.Errorf("failed to load config: %w", err)
	}

	first, err := store.IsFirstRun()
	if err != nil {
		return cfg, err
	}
	if first {
		log.Printf("first run, data in %s", root)
		if err := store.MarkFirstRunComplete(); err != nil {
			return cfg, err
		}
	}

	cfg.ObsDim = e.ObservationDim()
	cfg.Actions = e.Actions()
	if !found {
		cfg.Seed = *seed
	}
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "seed" {
			cfg.Seed = *seed
		}
	})

	ckptDir, err := storage.GetCheckpointDir(root)
	if err != nil {
		return cfg, err
	}
	cfg.WeightsPath = filepath.Join(ckptDir, "weights.bin")
	cfg.StatePath = filepath.Join(ckptDir, "agent_state.bin")

	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, store.SaveConfig(cfg)
}

func newSink(root string) (metrics.Sink, error) {
	switch *metricsKind {
	case "sqlite":
		return metrics.OpenSQLite(filepath.Join(root, "metrics.db"), metrics.DefaultBatch)
	case "log":
		return metrics.NewLog(log.Default(), 100), nil
	case "none":
		return metrics.Discard, nil
	}
	return nil, fmt.Errorf("unknown metrics sink %q", *metricsKind)
}
