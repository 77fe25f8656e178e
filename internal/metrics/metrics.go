// Package metrics provides sinks for the per-update training scalars emitted
// by the agent.
package metrics

import (
	"log"
	"sync"
)

// Sink receives scalar values keyed by update step and name. Close flushes
// anything buffered.
type Sink interface {
	Scalar(step uint64, key string, value float32)
	Close() error
}

// Discard drops every scalar.
var Discard Sink = discard{}

type discard struct{}

func (discard) Scalar(uint64, string, float32) {}
func (discard) Close() error                   { return nil }

// Log writes scalars to a logger, one line per value.
type Log struct {
	mu     sync.Mutex
	logger *log.Logger
	every  uint64
}

// NewLog returns a sink writing to l. Only steps that are multiples of
// every are written; every <= 1 writes all of them.
func NewLog(l *log.Logger, every uint64) *Log {
	if l == nil {
		l = log.Default()
	}
	if every == 0 {
		every = 1
	}
	return &Log{logger: l, every: every}
}

func (s *Log) Scalar(step uint64, key string, value float32) {
	if step%s.every != 0 {
		return
	}
	s.mu.Lock()
	s.logger.Printf("step=%d %s=%.6g", step, key, value)
	s.mu.Unlock()
}

func (s *Log) Close() error { return nil }

// Multi fans scalars out to several sinks.
type Multi []Sink

func (m Multi) Scalar(step uint64, key string, value float32) {
	for _, s := range m {
		s.Scalar(step, key, value)
	}
}

// Close closes every sink and returns the first error.
func (m Multi) Close() error {
	var first error
	for _, s := range m {
		if err := s.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
