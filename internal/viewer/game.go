package viewer

import (
	"fmt"
	"log"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/inpututil"
	"github.com/hailam/snakerl/internal/dqn"
	"github.com/hailam/snakerl/internal/env"
	"github.com/hailam/snakerl/internal/train"
)

// Layout constants
const (
	CellSize = 24
	HUDWidth = 240
)

// speed is one playback level: burst steps every `every` ticks.
type speed struct {
	every, burst int
}

var speeds = []speed{
	{every: 16, burst: 1},
	{every: 8, burst: 1},
	{every: 4, burst: 1},
	{every: 2, burst: 1},
	{every: 1, burst: 1},
	{every: 1, burst: 4},
	{every: 1, burst: 16},
	{every: 1, burst: 64},
}

const defaultSpeed = 2

// Game implements ebiten.Game interface.
type Game struct {
	snake   *env.Snake
	agent   *dqn.Agent
	session *train.Session

	training bool
	paused   bool
	speed    int
	tick     int

	episodes  int
	lastScore int
	bestScore int

	renderer *Renderer
	scale    float64
}

// NewGame creates a viewer for agent playing on snake. Training mode drives
// the same agent through a session with no checkpointing.
func NewGame(agent *dqn.Agent, snake *env.Snake) *Game {
	return &Game{
		snake:    snake,
		agent:    agent,
		session:  train.NewSession(agent, snake, train.Options{ReportEvery: 0, Window: 100}),
		speed:    defaultSpeed,
		renderer: NewRenderer(CellSize),
		scale:    1.0,
	}
}

// WindowSize returns the unscaled window size for a board.
func WindowSize(width, height int) (int, int) {
	return width*CellSize + HUDWidth, max(height*CellSize, 260)
}

// Update advances the game by one tick.
func (g *Game) Update() error {
	g.handleInput()
	if g.paused {
		return nil
	}

	g.tick++
	sp := speeds[g.speed]
	if g.tick%sp.every != 0 {
		return nil
	}
	for i := 0; i < sp.burst; i++ {
		if err := g.step(); err != nil {
			return err
		}
	}
	return nil
}

func (g *Game) handleInput() {
	if inpututil.IsKeyJustPressed(ebiten.KeySpace) {
		g.paused = !g.paused
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyT) {
		g.training = !g.training
		log.Printf("info: training %v", g.training)
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyUp) && g.speed < len(speeds)-1 {
		g.speed++
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyDown) && g.speed > 0 {
		g.speed--
	}
	if inpututil.IsKeyJustPressed(ebiten.KeyR) {
		g.snake.Reset()
	}
}

// step moves the snake once, greedily or through the training session.
func (g *Game) step() error {
	score := g.snake.Score()
	var done bool
	if g.training {
		var err error
		if done, err = g.session.Step(); err != nil {
			return err
		}
	} else {
		_, done = g.snake.Step(g.agent.Greedy(g.snake.Observe()))
		if done {
			score = g.snake.Score()
			g.snake.Reset()
		}
	}
	if done {
		g.episodes++
		g.lastScore = score
		g.bestScore = max(g.bestScore, score)
	}
	return nil
}

// Draw draws the board and HUD.
func (g *Game) Draw(screen *ebiten.Image) {
	g.renderer.SetScale(g.scale)
	screen.Fill(g.renderer.theme.Background)
	g.renderer.DrawBoard(screen, g.snake)
	g.drawHUD(screen)
}

func (g *Game) drawHUD(screen *ebiten.Image) {
	th := g.renderer.theme
	x := g.snake.Width()*CellSize + 16
	y := 12

	mode := "greedy"
	if g.training {
		mode = "training"
	}
	if g.paused {
		mode += " (paused)"
	}
	g.renderer.drawText(screen, "snakerl", x, y, styleTitle, th.Accent)
	y += 32

	lines := []string{
		"mode:    " + mode,
		fmt.Sprintf("episode: %d", g.episodes),
		fmt.Sprintf("score:   %d", g.snake.Score()),
		fmt.Sprintf("last:    %d", g.lastScore),
		fmt.Sprintf("best:    %d", g.bestScore),
		fmt.Sprintf("eps:     %.3f", g.agent.Epsilon()),
		fmt.Sprintf("loss:    %.4f", g.agent.LastLoss()),
		fmt.Sprintf("replay:  %d", g.agent.ReplayLen()),
		fmt.Sprintf("speed:   %d/%d", g.speed+1, len(speeds)),
	}
	for _, line := range lines {
		g.renderer.drawText(screen, line, x, y, styleHUD, th.Text)
		y += 20
	}

	y += 12
	for _, line := range []string{"T train  Space pause", "Up/Down speed  R reset"} {
		g.renderer.drawText(screen, line, x, y, styleHUD, th.Body)
		y += 20
	}
}

// Layout returns the logical screen size.
func (g *Game) Layout(outsideWidth, outsideHeight int) (int, int) {
	g.scale = ebiten.Monitor().DeviceScaleFactor()
	if g.scale < 1.0 {
		g.scale = 1.0
	}
	w, h := WindowSize(g.snake.Width(), g.snake.Height())
	return int(float64(w) * g.scale), int(float64(h) * g.scale)
}
