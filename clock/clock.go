// Package clock provides the monotonic timestamps used to bracket a measured
// operation.
package clock

import (
	_ "unsafe" // for go:linkname
)

// NanoTime returns the runtime's monotonic clock in nanoseconds
// (CLOCK_MONOTONIC on linux). It never runs backward and is not affected by
// wall-clock adjustments.
//
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64

// Timestamp is a monotonic clock reading in nanoseconds.
type Timestamp int64

// Clock captures timestamps. Measurement code takes a Clock so tests can
// script the readings.
type Clock interface {
	Now() Timestamp
}

// Mono reads the runtime monotonic clock.
type Mono struct{}

// Now returns the current monotonic reading.
func (Mono) Now() Timestamp {
	return Timestamp(NanoTime())
}

// Elapsed returns t1-t0 in nanoseconds. A reversed pair yields 0.
func Elapsed(t0, t1 Timestamp) float64 {
	if t1 < t0 {
		return 0
	}

	return float64(t1 - t0)
}
