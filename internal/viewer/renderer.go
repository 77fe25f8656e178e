package viewer

import (
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text/v2"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"github.com/hailam/snakerl/internal/env"
)

// Theme defines the colors of the board and HUD.
type Theme struct {
	Background color.RGBA
	CellA      color.RGBA
	CellB      color.RGBA
	Head       color.RGBA
	Body       color.RGBA
	Food       color.RGBA
	Text       color.RGBA
	Accent     color.RGBA
}

// DefaultTheme returns the default color theme.
func DefaultTheme() *Theme {
	return &Theme{
		Background: color.RGBA{40, 44, 52, 255},
		CellA:      color.RGBA{52, 57, 66, 255},
		CellB:      color.RGBA{48, 53, 61, 255},
		Head:       color.RGBA{152, 195, 121, 255},
		Body:       color.RGBA{110, 150, 90, 255},
		Food:       color.RGBA{224, 108, 117, 255},
		Text:       color.RGBA{220, 220, 220, 255},
		Accent:     color.RGBA{229, 192, 123, 255},
	}
}

// Renderer draws the snake board.
type Renderer struct {
	theme    *Theme
	cellSize int
	scale    float64 // HiDPI scale factor
}

// NewRenderer creates a renderer with square cells of cellSize pixels.
func NewRenderer(cellSize int) *Renderer {
	return &Renderer{theme: DefaultTheme(), cellSize: cellSize, scale: 1.0}
}

// SetScale sets the HiDPI scale factor for rendering.
func (r *Renderer) SetScale(scale float64) {
	r.scale = scale
}

// s returns the scaled value for rendering.
func (r *Renderer) s(v int) float32 {
	return float32(float64(v) * r.scale)
}

// DrawBoard draws the grid, food and snake.
func (r *Renderer) DrawBoard(screen *ebiten.Image, sn *env.Snake) {
	cs := r.s(r.cellSize)
	for y := 0; y < sn.Height(); y++ {
		for x := 0; x < sn.Width(); x++ {
			c := r.theme.CellA
			if (x+y)%2 == 1 {
				c = r.theme.CellB
			}
			vector.DrawFilledRect(screen, r.s(x*r.cellSize), r.s(y*r.cellSize), cs, cs, c, false)
		}
	}

	food := sn.Food()
	half := cs / 2
	vector.DrawFilledCircle(screen, r.s(food.X*r.cellSize)+half, r.s(food.Y*r.cellSize)+half, half*0.7, r.theme.Food, true)

	inset := r.s(1)
	for i, p := range sn.Segments() {
		c := r.theme.Body
		if i == 0 {
			c = r.theme.Head
		}
		vector.DrawFilledRect(screen, r.s(p.X*r.cellSize)+inset, r.s(p.Y*r.cellSize)+inset, cs-2*inset, cs-2*inset, c, false)
	}
}

// drawText draws s with its top-left corner at (x, y) in unscaled pixels.
func (r *Renderer) drawText(screen *ebiten.Image, s string, x, y int, style fontStyle, c color.Color) {
	face := scaledFace(style, r.scale)
	if face == nil {
		return
	}
	op := &text.DrawOptions{}
	op.GeoM.Translate(float64(r.s(x)), float64(r.s(y)))
	op.ColorScale.ScaleWithColor(c)
	text.Draw(screen, s, face, op)
}
