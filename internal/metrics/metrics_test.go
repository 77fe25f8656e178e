package metrics

import (
	"bytes"
	"log"
	"path/filepath"
	"strings"
	"testing"
)

type memSink struct {
	n      int
	closed bool
}

func (m *memSink) Scalar(uint64, string, float32) { m.n++ }
func (m *memSink) Close() error                   { m.closed = true; return nil }

func TestLogSink(t *testing.T) {
	var buf bytes.Buffer
	s := NewLog(log.New(&buf, "", 0), 10)
	s.Scalar(5, "loss", 1)
	s.Scalar(10, "loss", 0.25)
	s.Scalar(20, "epsilon", 0.5)

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %q", buf.String())
	}
	if lines[0] != "step=10 loss=0.25" {
		t.Errorf("unexpected line %q", lines[0])
	}
}

func TestMulti(t *testing.T) {
	a, b := &memSink{}, &memSink{}
	m := Multi{a, b, Discard}
	m.Scalar(1, "x", 1)
	m.Scalar(2, "x", 2)
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if a.n != 2 || b.n != 2 || !a.closed || !b.closed {
		t.Errorf("fan-out failed: a=%+v b=%+v", a, b)
	}
}

func TestSQLite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := OpenSQLite(path, 4)
	if err != nil {
		t.Fatalf("OpenSQLite: %v", err)
	}

	for step := uint64(1); step <= 10; step++ {
		s.Scalar(step, "loss", float32(step)/10)
		s.Scalar(step, "epsilon", 1)
	}

	steps, values, err := s.Series("loss")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 10 {
		t.Fatalf("got %d rows, want 10", len(steps))
	}
	for i, step := range steps {
		if step != uint64(i+1) {
			t.Errorf("row %d: step %d", i, step)
		}
		if want := float64(float32(step) / 10); values[i] != want {
			t.Errorf("row %d: value %v, want %v", i, values[i], want)
		}
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	// Rows survive reopening.
	s, err = OpenSQLite(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	steps, _, err = s.Series("epsilon")
	if err != nil {
		t.Fatal(err)
	}
	if len(steps) != 10 {
		t.Errorf("reopened db has %d epsilon rows, want 10", len(steps))
	}
}

func TestSQLiteFlushOnClose(t *testing.T) {
	path := filepath.Join(t.TempDir(), "metrics.db")
	s, err := OpenSQLite(path, 1000)
	if err != nil {
		t.Fatal(err)
	}
	s.Scalar(1, "loss", 0.5)
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	s, err = OpenSQLite(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()
	_, values, err := s.Series("loss")
	if err != nil {
		t.Fatal(err)
	}
	if len(values) != 1 || values[0] != 0.5 {
		t.Errorf("got %v, want [0.5]", values)
	}
}
