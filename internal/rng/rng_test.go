package rng

import "testing"

func TestDeterministic(t *testing.T) {
	a := New(42)
	b := New(42)
	for i := 0; i < 1000; i++ {
		if x, y := a.Uint32(), b.Uint32(); x != y {
			t.Fatalf("draw %d differs: %d != %d", i, x, y)
		}
	}
}

func TestFloat32Range(t *testing.T) {
	r := New(7)
	var sum float64
	const n = 20000
	for i := 0; i < n; i++ {
		f := r.Float32()
		if f < 0 || f >= 1 {
			t.Fatalf("Float32 out of range: %v", f)
		}
		sum += float64(f)
	}
	if mean := sum / n; mean < 0.45 || mean > 0.55 {
		t.Errorf("Float32 mean = %.3f, want about 0.5", mean)
	}
}

func TestIntn(t *testing.T) {
	r := New(1)
	counts := make([]int, 3)
	for i := 0; i < 30000; i++ {
		v := r.Intn(3)
		if v >= 3 {
			t.Fatalf("Intn(3) returned %d", v)
		}
		counts[v]++
	}
	for i, c := range counts {
		if c < 9000 || c > 11000 {
			t.Errorf("bucket %d has %d draws, want about 10000", i, c)
		}
	}
	if r.Intn(0) != 0 {
		t.Error("Intn(0) should return 0")
	}
}

func TestStateRestore(t *testing.T) {
	r := New(99)
	r.Uint32()
	s := r.State()
	want := r.Uint32()

	r.SetState(s)
	if got := r.Uint32(); got != want {
		t.Errorf("after SetState got %d, want %d", got, want)
	}
}
