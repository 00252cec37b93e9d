// Package perfcounter reads a kernel software counter around a blocking wait.
//
// The counter is PERF_COUNT_SW_CPU_CLOCK restricted to kernel mode and scoped
// to the calling thread. It accumulates only while that thread is scheduled
// in kernel mode, so time spent parked on a semaphore is mostly not counted:
// the value approximates the kernel's service of the wait and wake path, not
// the blocked duration.
package perfcounter

import (
	"errors"
	"fmt"
)

// ErrUnsupported is returned where perf_event_open is unavailable.
var ErrUnsupported = errors.New("perfcounter: not supported on this platform")

// Counter is an exclusively owned kernel counter handle.
type Counter interface {
	Reset() error
	Enable() error
	Disable() error
	Read() (uint64, error)
	Close() error
}

// Nop is a Counter that always reads zero.
type Nop struct{}

func (Nop) Reset() error { return nil }
func (Nop) Enable() error { return nil }
func (Nop) Disable() error { return nil }
func (Nop) Read() (uint64, error) { return 0, nil }
func (Nop) Close() error { return nil }

// Instrument brackets one wait with a Counter: Begin resets and enables it,
// End disables it and returns the count in nanoseconds.
type Instrument struct {
	c Counter
}

// NewInstrument takes ownership of c.
func NewInstrument(c Counter) *Instrument {
	return &Instrument{c: c}
}

func (in *Instrument) Begin() error {
	if err := in.c.Reset(); err != nil {
		return fmt.Errorf("reset counter: %w", err)
	}

	if err := in.c.Enable(); err != nil {
		return fmt.Errorf("enable counter: %w", err)
	}

	return nil
}

func (in *Instrument) End() (float64, error) {
	if err := in.c.Disable(); err != nil {
		return 0, fmt.Errorf("disable counter: %w", err)
	}

	v, err := in.c.Read()
	if err != nil {
		return 0, fmt.Errorf("read counter: %w", err)
	}

	return float64(v), nil
}

func (in *Instrument) Close() error {
	return in.c.Close()
}
