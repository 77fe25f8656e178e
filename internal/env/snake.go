package env

import (
	"github.com/goki/mat32"
	"github.com/hailam/snakerl/internal/rng"
)

// Snake environment constants.
const (
	SnakeActions    = 3  // turn left, straight, turn right
	SnakeObsDim     = 19 // 5 rays x (wall, body, food) + cos/sin to food + length + hunger
	HungerLimit     = 200
	DefaultFoodSeed = 0xC0FFEE

	initialLength = 3

	stepPenalty   = -0.01
	shapingWeight = 0.01
	foodReward    = 1.0
	deathReward   = -1.0
	starvePenalty = -0.2
)

// Relative actions.
const (
	TurnLeft uint8 = iota
	Straight
	TurnRight
)

// Dir is an absolute heading on the grid. Y grows downward.
type Dir int

const (
	Up Dir = iota
	Right
	Down
	Left
)

func (d Dir) left() Dir  { return (d + 3) % 4 }
func (d Dir) right() Dir { return (d + 1) % 4 }

func (d Dir) delta() (int, int) {
	switch d {
	case Up:
		return 0, -1
	case Down:
		return 0, 1
	case Left:
		return -1, 0
	default:
		return 1, 0
	}
}

// toGlobal rotates a vector from the head frame (x = right, y = forward)
// into grid coordinates. Each rotation is its own inverse.
func (d Dir) toGlobal(dx, dy int) (int, int) {
	switch d {
	case Up:
		return dx, -dy
	case Down:
		return -dx, dy
	case Left:
		return -dy, -dx
	default:
		return dy, dx
	}
}

// Point is a grid cell.
type Point struct {
	X, Y int
}

// Snake is the classic snake game on a W x H grid with relative controls.
type Snake struct {
	w, h int

	body []Point // head first
	dir  Dir
	grow bool

	food Point
	rng  *rng.LCG

	done           bool
	score          int
	stepsSinceFood int
	lastManhattan  int
}

// NewSnake creates a w x h board. Food placement is driven by seed.
func NewSnake(w, h int, seed uint64) *Snake {
	s := &Snake{w: w, h: h, rng: rng.New(seed)}
	s.Reset()
	return s
}

// Reset places a fresh snake in the centre heading right.
func (s *Snake) Reset() {
	cx, cy := s.w/2, s.h/2
	s.body = s.body[:0]
	for i := 0; i < initialLength && cx-i >= 0; i++ {
		s.body = append(s.body, Point{cx - i, cy})
	}
	s.dir = Right
	s.grow = false
	s.done = false
	s.score = 0
	s.stepsSinceFood = 0
	s.respawnFood()
	s.lastManhattan = s.manhattanToFood()
}

func (s *Snake) ObservationDim() int { return SnakeObsDim }
func (s *Snake) Actions() int        { return SnakeActions }

// Width returns the board width.
func (s *Snake) Width() int { return s.w }

// Height returns the board height.
func (s *Snake) Height() int { return s.h }

// Segments returns the snake body, head first.
func (s *Snake) Segments() []Point { return s.body }

// Food returns the food cell.
func (s *Snake) Food() Point { return s.food }

// Score returns the number of food items eaten this episode.
func (s *Snake) Score() int { return s.score }

// Done reports whether the episode has ended.
func (s *Snake) Done() bool { return s.done }

// Heading returns the current absolute direction.
func (s *Snake) Heading() Dir { return s.dir }

func (s *Snake) head() Point { return s.body[0] }

// Step moves the snake one cell after applying a relative turn.
//
// Rewards: -0.01 per step, plus 0.01 times the clamped change in Manhattan
// distance to food, +1 for eating, -1 for hitting a wall or itself (ends the
// episode), and -0.2 when HungerLimit steps pass without food (ends the
// episode).
func (s *Snake) Step(action uint8) (float32, bool) {
	if s.done {
		return 0, true
	}
	reward := float32(stepPenalty)

	switch action {
	case TurnLeft:
		s.dir = s.dir.left()
	case TurnRight:
		s.dir = s.dir.right()
	}
	s.advance()

	hd := s.head()
	if hd.X < 0 || hd.Y < 0 || hd.X >= s.w || hd.Y >= s.h || s.selfCollision() {
		s.done = true
		return deathReward, true
	}

	manh := s.manhattanToFood()
	delta := float32(s.lastManhattan - manh)
	reward += shapingWeight * max(-1, min(1, delta))
	s.lastManhattan = manh

	if hd == s.food {
		s.grow = true
		s.score++
		s.stepsSinceFood = 0
		s.respawnFood()
		s.lastManhattan = s.manhattanToFood()
		return reward + foodReward, false
	}

	s.stepsSinceFood++
	if s.stepsSinceFood >= HungerLimit {
		s.done = true
		return reward + starvePenalty, true
	}
	return reward, false
}

func (s *Snake) advance() {
	dx, dy := s.dir.delta()
	hd := s.head()
	next := Point{hd.X + dx, hd.Y + dy}
	if s.grow {
		s.body = append(s.body, Point{})
		s.grow = false
	}
	copy(s.body[1:], s.body[:len(s.body)-1])
	s.body[0] = next
}

func (s *Snake) selfCollision() bool {
	hd := s.head()
	for _, p := range s.body[1:] {
		if p == hd {
			return true
		}
	}
	return false
}

func (s *Snake) occupies(x, y int) bool {
	for _, p := range s.body {
		if p.X == x && p.Y == y {
			return true
		}
	}
	return false
}

func (s *Snake) manhattanToFood() int {
	hd := s.head()
	return abs(s.food.X-hd.X) + abs(s.food.Y-hd.Y)
}

// respawnFood picks a random free cell. On a full board the food stays put.
func (s *Snake) respawnFood() {
	free := s.w*s.h - len(s.body)
	if free <= 0 {
		return
	}
	for tries := 0; tries < 64; tries++ {
		x := int(s.rng.Intn(uint32(s.w)))
		y := int(s.rng.Intn(uint32(s.h)))
		if !s.occupies(x, y) {
			s.food = Point{x, y}
			return
		}
	}
	// Crowded board: take the k-th free cell.
	k := int(s.rng.Intn(uint32(free)))
	for y := 0; y < s.h; y++ {
		for x := 0; x < s.w; x++ {
			if s.occupies(x, y) {
				continue
			}
			if k == 0 {
				s.food = Point{x, y}
				return
			}
			k--
		}
	}
}

// rays are the five scan directions in the head frame:
// left, left-forward, forward, right-forward, right.
var rays = [5][2]int{{-1, 0}, {-1, 1}, {0, 1}, {1, 1}, {1, 0}}

// Observe builds the 19-float observation:
//   - for each of five rays: distances to wall, body and food, normalised by
//     the wall distance along that ray (things not seen count as the wall);
//   - cos/sin of the food direction in the head frame;
//   - snake length over board area, and hunger over HungerLimit.
func (s *Snake) Observe() []float32 {
	obs := make([]float32, 0, SnakeObsDim)
	hd := s.head()

	for _, r := range rays {
		dx, dy := s.dir.toGlobal(r[0], r[1])
		var distWall, distBody, distFood float32
		x, y := hd.X, hd.Y
		for step := 1; step <= s.w+s.h+1; step++ {
			x += dx
			y += dy
			if x < 0 || y < 0 || x >= s.w || y >= s.h {
				distWall = float32(step)
				break
			}
			if distBody == 0 && s.occupies(x, y) {
				distBody = float32(step)
			}
			if distFood == 0 && x == s.food.X && y == s.food.Y {
				distFood = float32(step)
			}
		}
		norm := max(distWall, 1)
		if distBody == 0 {
			distBody = norm
		}
		if distFood == 0 {
			distFood = norm
		}
		obs = append(obs, min(distWall/norm, 1), min(distBody/norm, 1), min(distFood/norm, 1))
	}

	vx, vy := s.dir.toGlobal(s.food.X-hd.X, s.food.Y-hd.Y)
	length := max(mat32.Sqrt(float32(vx*vx+vy*vy)), 1e-6)
	obs = append(obs, float32(vy)/length, float32(vx)/length)

	obs = append(obs,
		float32(len(s.body))/float32(s.w*s.h),
		float32(s.stepsSinceFood)/HungerLimit,
	)
	return obs
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
