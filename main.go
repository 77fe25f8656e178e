// snakerl viewer - watch a trained agent play snake
package main

import (
	"flag"
	"log"
	"path/filepath"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hailam/snakerl/internal/dqn"
	"github.com/hailam/snakerl/internal/env"
	"github.com/hailam/snakerl/internal/storage"
	"github.com/hailam/snakerl/internal/viewer"
)

var (
	dataDir = flag.String("data", "", "data directory (default: platform data dir)")
	width   = flag.Int("width", 20, "board width")
	height  = flag.Int("height", 20, "board height")
	seed    = flag.Uint64("food-seed", env.DefaultFoodSeed, "food placement seed")
)

func main() {
	flag.Parse()

	root := *dataDir
	if root == "" {
		var err error
		if root, err = storage.GetDataDir(); err != nil {
			log.Fatal(err)
		}
	}
	root = filepath.Join(root, "snake")

	cfg := viewerConfig(root)
	agent, err := dqn.New(cfg)
	if err != nil {
		log.Fatal(err)
	}

	snake := env.NewSnake(*width, *height, *seed)
	game := viewer.NewGame(agent, snake)

	ebiten.SetWindowSize(viewer.WindowSize(*width, *height))
	ebiten.SetWindowTitle("snakerl")
	ebiten.SetWindowResizingMode(ebiten.WindowResizingModeEnabled)

	if err := ebiten.RunGame(game); err != nil {
		log.Fatal(err)
	}
}

// viewerConfig reads the trainer's stored config. The store is closed again
// right away so a running trainer can keep it open.
func viewerConfig(root string) dqn.Config {
	cfg := dqn.DefaultConfig()
	if dbDir, err := storage.GetDatabaseDir(root); err == nil {
		if store, err := storage.Open(dbDir); err == nil {
			if stored, found, err := store.LoadConfig(); err == nil && found {
				cfg = stored
			}
			store.Close()
		} else {
			log.Printf("Warning: store unavailable (%v), using default config", err)
		}
	}

	ckptDir, err := storage.GetCheckpointDir(root)
	if err != nil {
		log.Fatal(err)
	}
	cfg.WeightsPath = filepath.Join(ckptDir, "weights.bin")
	cfg.StatePath = filepath.Join(ckptDir, "agent_state.bin")
	cfg.ObsDim = env.SnakeObsDim
	cfg.Actions = env.SnakeActions
	return cfg
}
