package nn

import (
	"bytes"
	"errors"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/hailam/snakerl/internal/rng"
	"gonum.org/v1/gonum/diff/fd"
)

func toF64(v []float32) []float64 {
	out := make([]float64, len(v))
	for i, x := range v {
		out[i] = float64(x)
	}
	return out
}

func near(a, b, tol float64) bool {
	return math.Abs(a-b) <= tol*(1+math.Abs(b))
}

func TestLinearGradientCheck(t *testing.T) {
	l := NewLinear(4, 3, rng.New(3))
	for j := range l.B {
		l.B[j] = 0.1 * float32(j+1)
	}
	x := []float32{0.5, -1.25, 2, 0.75}
	ones := []float32{1, 1, 1}

	_, p := l.Forward(x)
	dx := l.Backward(p, ones)

	// sum(y) as a function of the weights
	sumY := func(w []float64) float64 {
		saved := append([]float32(nil), l.W...)
		for i := range l.W {
			l.W[i] = float32(w[i])
		}
		y, _ := l.Forward(x)
		copy(l.W, saved)
		var s float64
		for _, v := range y {
			s += float64(v)
		}
		return s
	}
	want := fd.Gradient(nil, sumY, toF64(l.W), &fd.Settings{Formula: fd.Central, Step: 1e-2})
	for i, g := range l.GW {
		if !near(float64(g), want[i], 1e-3) {
			t.Errorf("dW[%d] = %v, finite difference %v", i, g, want[i])
		}
	}
	for j, g := range l.GB {
		if g != 1 {
			t.Errorf("dB[%d] = %v, want 1", j, g)
		}
	}

	// sum(y) as a function of the input
	sumYx := func(in []float64) float64 {
		xs := make([]float32, len(in))
		for i, v := range in {
			xs[i] = float32(v)
		}
		y, _ := l.Forward(xs)
		var s float64
		for _, v := range y {
			s += float64(v)
		}
		return s
	}
	wantX := fd.Gradient(nil, sumYx, toF64(x), &fd.Settings{Formula: fd.Central, Step: 1e-2})
	for i := range dx {
		if !near(float64(dx[i]), wantX[i], 1e-3) {
			t.Errorf("dX[%d] = %v, finite difference %v", i, dx[i], wantX[i])
		}
	}
}

func TestNetworkGradientCheck(t *testing.T) {
	n := NewNetwork(3, 6, 5, 2, rng.New(11))
	x := []float32{0.3, -0.7, 1.1}
	const action = 1

	q, tr := n.Forward(x)
	if len(q) != 2 {
		t.Fatalf("Forward returned %d outputs, want 2", len(q))
	}
	dq := []float32{0, 1}
	n.ZeroGrad()
	n.Backward(tr, dq)

	l1 := n.Layers()[0]
	qa := func(w []float64) float64 {
		saved := append([]float32(nil), l1.W...)
		for i := range l1.W {
			l1.W[i] = float32(w[i])
		}
		out, _ := n.Forward(x)
		copy(l1.W, saved)
		return float64(out[action])
	}
	want := fd.Gradient(nil, qa, toF64(l1.W), &fd.Settings{Formula: fd.Central, Step: 1e-3})
	for i, g := range l1.GW {
		if !near(float64(g), want[i], 1e-2) {
			t.Errorf("L1 dW[%d] = %v, finite difference %v", i, g, want[i])
		}
	}
}

func TestTraceIsolation(t *testing.T) {
	n := NewNetwork(2, 4, 4, 2, rng.New(5))
	a := []float32{1, -1}
	b := []float32{-2, 3}

	// Backward against the first trace after an unrelated forward must match
	// a backward run immediately after the first forward.
	ref := NewNetwork(2, 4, 4, 2, rng.New(5))
	_, trRef := ref.Forward(a)
	ref.Backward(trRef, []float32{1, 0})

	_, trA := n.Forward(a)
	n.Forward(b)
	n.Backward(trA, []float32{1, 0})

	for li, l := range n.Layers() {
		r := ref.Layers()[li]
		for i := range l.GW {
			if l.GW[i] != r.GW[i] {
				t.Fatalf("layer %d dW[%d] = %v, want %v", li+1, i, l.GW[i], r.GW[i])
			}
		}
	}
}

func TestReLU(t *testing.T) {
	z := []float32{-1, 0, 2, 0.5}
	m := ReLU(z)
	wantZ := []float32{0, 0, 2, 0.5}
	wantM := Mask{0, 0, 1, 1}
	for i := range z {
		if z[i] != wantZ[i] || m[i] != wantM[i] {
			t.Errorf("i=%d: z=%v mask=%d, want z=%v mask=%d", i, z[i], m[i], wantZ[i], wantM[i])
		}
	}

	da := []float32{5, 5, 5, 5}
	m.Backward(da)
	wantDa := []float32{0, 0, 5, 5}
	for i := range da {
		if da[i] != wantDa[i] {
			t.Errorf("da[%d] = %v, want %v", i, da[i], wantDa[i])
		}
	}
}

func TestClipGradNorm(t *testing.T) {
	n := NewNetwork(2, 3, 3, 2, rng.New(1))

	t.Run("ZeroNorm", func(t *testing.T) {
		n.ZeroGrad()
		if s := n.ClipGradNorm(1); s != 1 {
			t.Errorf("scale = %v, want 1", s)
		}
	})

	t.Run("BelowThreshold", func(t *testing.T) {
		n.ZeroGrad()
		n.Layers()[0].GW[0] = 0.3
		n.Layers()[2].GB[1] = 0.4
		if s := n.ClipGradNorm(1); s != 1 {
			t.Errorf("scale = %v, want exactly 1", s)
		}
	})

	t.Run("AboveThreshold", func(t *testing.T) {
		n.ZeroGrad()
		n.Layers()[0].GW[0] = 3
		n.Layers()[1].GW[2] = 4
		n.Layers()[2].GB[0] = 12
		norm := math.Sqrt(float64(n.GradL2SumAll()))
		if !near(norm, 13, 1e-6) {
			t.Fatalf("norm = %v, want 13", norm)
		}
		s := n.ClipGradNorm(2)
		if !near(float64(s)*norm, 2, 1e-5) {
			t.Errorf("scale*norm = %v, want 2", float64(s)*norm)
		}
		if n.Layers()[2].GB[0] != 12 {
			t.Error("ClipGradNorm must not rescale gradients")
		}
	})
}

func TestStepAdamSharedTimestep(t *testing.T) {
	n := NewNetwork(2, 3, 3, 2, rng.New(2))
	_, tr := n.Forward([]float32{1, 2})
	n.Backward(tr, []float32{1, -1})

	for i := 1; i <= 3; i++ {
		n.StepAdam(1e-3, Beta1, Beta2, AdamEps, 1, 0)
		if n.AdamStep() != uint64(i) {
			t.Fatalf("after %d steps AdamStep = %d", i, n.AdamStep())
		}
	}
}

func TestStepAdamFirstUpdate(t *testing.T) {
	// With bias correction the first Adam step moves each parameter by
	// about lr*sign(g).
	l := newBlankLinear(1, 1)
	l.W[0] = 0.5
	l.GW[0] = 0.2
	l.GB[0] = -0.3
	l.StepAdam(0.01, Beta1, Beta2, AdamEps, 1, 1, 0)
	if !near(float64(l.W[0]), 0.49, 1e-4) {
		t.Errorf("W = %v, want 0.49", l.W[0])
	}
	if !near(float64(l.B[0]), 0.01, 1e-3) {
		t.Errorf("B = %v, want 0.01", l.B[0])
	}
}

func TestWeightDecaySkipsBias(t *testing.T) {
	l := newBlankLinear(1, 1)
	l.W[0] = 2
	l.B[0] = 2
	l.StepAdam(0.1, Beta1, Beta2, AdamEps, 1, 1, 0.5)
	if !near(float64(l.W[0]), 1.9, 1e-6) {
		t.Errorf("W = %v, want 1.9", l.W[0])
	}
	if l.B[0] != 2 {
		t.Errorf("B = %v, bias must not decay", l.B[0])
	}
}

func TestClampParams(t *testing.T) {
	n := NewNetwork(2, 2, 2, 2, rng.New(4))
	n.Layers()[0].W[0] = 50
	n.Layers()[1].B[1] = -50
	n.ClampParams(10)
	if n.Layers()[0].W[0] != 10 || n.Layers()[1].B[1] != -10 {
		t.Errorf("clamp failed: %v %v", n.Layers()[0].W[0], n.Layers()[1].B[1])
	}
}

func TestSoftUpdate(t *testing.T) {
	online := NewNetwork(3, 4, 4, 2, rng.New(1))
	target := NewNetwork(3, 4, 4, 2, rng.New(2))
	before := snapshot(target)

	t.Run("TauZero", func(t *testing.T) {
		target.SoftUpdateFrom(online, 0)
		assertSame(t, snapshot(target), before)
	})

	t.Run("TauHalf", func(t *testing.T) {
		tt := NewNetwork(3, 4, 4, 2, rng.New(2))
		tt.SoftUpdateFrom(online, 0.5)
		w := tt.Layers()[0].W[0]
		want := 0.5*before[0][0] + 0.5*online.Layers()[0].W[0]
		if !near(float64(w), float64(want), 1e-6) {
			t.Errorf("W = %v, want %v", w, want)
		}
	})

	t.Run("TauOne", func(t *testing.T) {
		target.SoftUpdateFrom(online, 1)
		assertSame(t, snapshot(target), snapshot(online))
	})
}

func TestCopyFrom(t *testing.T) {
	online := NewNetwork(3, 4, 4, 2, rng.New(1))
	target := NewNetwork(3, 4, 4, 2, rng.New(9))
	target.CopyFrom(online)
	assertSame(t, snapshot(target), snapshot(online))

	x := []float32{0.1, 0.2, 0.3}
	qa, _ := online.Forward(x)
	qb, _ := target.Forward(x)
	for i := range qa {
		if qa[i] != qb[i] {
			t.Errorf("Q[%d]: %v != %v", i, qa[i], qb[i])
		}
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	n := trainedNetwork()

	path := filepath.Join(t.TempDir(), "weights.bin")
	if err := n.Save(path); err != nil {
		t.Fatalf("Save: %v", err)
	}

	m := NewNetwork(3, 5, 4, 2, rng.New(77))
	if err := m.Load(path); err != nil {
		t.Fatalf("Load: %v", err)
	}

	if m.AdamStep() != n.AdamStep() {
		t.Errorf("AdamStep = %d, want %d", m.AdamStep(), n.AdamStep())
	}
	for li, l := range n.Layers() {
		got := m.Layers()[li].blockArrays()
		for k, arr := range l.blockArrays() {
			for i := range arr {
				if math.Float32bits(arr[i]) != math.Float32bits(got[k][i]) {
					t.Fatalf("layer %d array %d index %d: %v != %v", li+1, k, i, got[k][i], arr[i])
				}
			}
		}
	}
}

func TestSaveRenameFailureRemovesTemp(t *testing.T) {
	// A directory in place of the checkpoint makes the final rename fail.
	path := filepath.Join(t.TempDir(), "weights.bin")
	if err := os.Mkdir(path, 0755); err != nil {
		t.Fatal(err)
	}
	if err := trainedNetwork().Save(path); err == nil {
		t.Fatal("Save over a directory should fail")
	}
	if _, err := os.Stat(path + ".tmp"); !os.IsNotExist(err) {
		t.Errorf("temporary file left behind: %v", err)
	}
}

func TestCheckpointLayout(t *testing.T) {
	n := NewNetwork(3, 5, 4, 2, rng.New(1))
	var buf bytes.Buffer
	if err := n.WriteWeights(&buf); err != nil {
		t.Fatal(err)
	}
	b := buf.Bytes()
	if string(b[:4]) != "SNET" {
		t.Errorf("magic = %q", b[:4])
	}
	if len(b) != n.CheckpointSize() {
		t.Errorf("checkpoint is %d bytes, CheckpointSize says %d", len(b), n.CheckpointSize())
	}
	// din at offset 8, first layer in_dim right after the 32-byte header
	if b[8] != 3 || b[32] != 3 || b[36] != 5 {
		t.Errorf("unexpected header bytes: % x", b[:40])
	}
}

func TestLoadFailuresLeaveNetworkUnchanged(t *testing.T) {
	src := trainedNetwork()
	var good bytes.Buffer
	if err := src.WriteWeights(&good); err != nil {
		t.Fatal(err)
	}

	badMagic := append([]byte(nil), good.Bytes()...)
	copy(badMagic, "XNET")

	other := NewNetwork(3, 6, 4, 2, rng.New(1))
	var wrongShape bytes.Buffer
	if err := other.WriteWeights(&wrongShape); err != nil {
		t.Fatal(err)
	}

	truncated := good.Bytes()[:good.Len()-10]

	cases := []struct {
		name string
		data []byte
		want error
	}{
		{"BadMagic", badMagic, ErrBadMagic},
		{"ShapeMismatch", wrongShape.Bytes(), ErrShapeMismatch},
		{"Truncated", truncated, nil},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			n := NewNetwork(3, 5, 4, 2, rng.New(8))
			before := snapshot(n)
			err := n.ReadWeights(bytes.NewReader(tc.data))
			if err == nil {
				t.Fatal("expected an error")
			}
			if tc.want != nil && !errors.Is(err, tc.want) {
				t.Errorf("error = %v, want %v", err, tc.want)
			}
			assertSame(t, snapshot(n), before)
			if n.AdamStep() != 0 {
				t.Errorf("AdamStep changed to %d", n.AdamStep())
			}
		})
	}
}

func TestString(t *testing.T) {
	n := NewNetwork(19, 128, 128, 3, rng.New(1))
	if n.ParamCount() != 19*128+128+128*128+128+128*3+3 {
		t.Errorf("ParamCount = %d", n.ParamCount())
	}
	t.Log(n.String())
}

func trainedNetwork() *Network {
	n := NewNetwork(3, 5, 4, 2, rng.New(21))
	for i := 0; i < 3; i++ {
		n.ZeroGrad()
		_, tr := n.Forward([]float32{0.2, float32(i), -0.4})
		n.Backward(tr, []float32{0.5, -0.25})
		n.StepAdam(1e-2, Beta1, Beta2, AdamEps, 1, 1e-4)
	}
	return n
}

func snapshot(n *Network) [][]float32 {
	var out [][]float32
	for _, l := range n.Layers() {
		out = append(out, append([]float32(nil), l.W...), append([]float32(nil), l.B...))
	}
	return out
}

func assertSame(t *testing.T, got, want [][]float32) {
	t.Helper()
	for i := range want {
		for j := range want[i] {
			if math.Float32bits(got[i][j]) != math.Float32bits(want[i][j]) {
				t.Fatalf("array %d index %d: %v != %v", i, j, got[i][j], want[i][j])
			}
		}
	}
}
