// Package service holds the memory engine: the memory and edge services,
// spreading activation, decay math and the idle sweep worker.
package service

import (
	"time"
)

// Clock returns the current instant. Stores persist millisecond precision,
// so SystemClock truncates to match.
type Clock func() time.Time

func SystemClock() time.Time {
	return time.Now().UTC().Truncate(time.Millisecond)
}

// Recorder receives operational measurements. internal/metrics provides the
// Prometheus implementation.
type Recorder interface {
	ObserveOperation(op string, err error)
	ObserveActivation(d time.Duration, visited, results int, truncated bool)
	ObserveEmbedding(err error)
	ObserveSweep(weakened int64)
}

type nopRecorder struct{}

func (nopRecorder) ObserveOperation(string, error)                  {}
func (nopRecorder) ObserveActivation(time.Duration, int, int, bool) {}
func (nopRecorder) ObserveEmbedding(error)                          {}
func (nopRecorder) ObserveSweep(int64)                              {}

// instant normalizes a caller-supplied time to the stored precision.
func instant(t time.Time) time.Time {
	return t.UTC().Truncate(time.Millisecond)
}
