package viewer

import "testing"

func TestScaledFace(t *testing.T) {
	for _, style := range []fontStyle{styleHUD, styleTitle} {
		face := scaledFace(style, 2)
		if face == nil {
			t.Fatalf("style %d: embedded font failed to load", style)
		}
		if want := styles[style].size * 2; face.Size != want {
			t.Errorf("style %d: size %v, want %v", style, face.Size, want)
		}
	}
	if scaledFace(styleTitle, 1).Size <= scaledFace(styleHUD, 1).Size {
		t.Error("title text should be larger than HUD text")
	}
}

func TestWindowSize(t *testing.T) {
	w, h := WindowSize(20, 20)
	if w != 20*CellSize+HUDWidth || h != 20*CellSize {
		t.Errorf("WindowSize(20, 20) = %dx%d", w, h)
	}
	// Small boards keep room for the HUD.
	if _, h := WindowSize(4, 4); h < 260 {
		t.Errorf("height %d too small for the HUD", h)
	}
}

func TestSpeedsIncrease(t *testing.T) {
	rate := func(s speed) float64 { return float64(s.burst) / float64(s.every) }
	for i := 1; i < len(speeds); i++ {
		if rate(speeds[i]) <= rate(speeds[i-1]) {
			t.Errorf("speed %d is not faster than speed %d", i, i-1)
		}
	}
	if defaultSpeed < 0 || defaultSpeed >= len(speeds) {
		t.Errorf("defaultSpeed %d out of range", defaultSpeed)
	}
}
