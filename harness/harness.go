package harness

import (
	"errors"
	"fmt"

	"github.com/weiihann/primlat/clock"
)

// Step is the operation under test. It is the only work executed between
// the two clock readings of an iteration.
type Step func() error

// Option configures a Measure call.
type Option func(*options)

type options struct {
	setup    func() error
	teardown func() error
	drain    func() error
}

// WithSetup runs fn before every iteration, outside the timed bracket.
func WithSetup(fn func() error) Option {
	return func(o *options) { o.setup = fn }
}

// WithTeardown runs fn after every successful step, outside the timed
// bracket.
func WithTeardown(fn func() error) Option {
	return func(o *options) { o.teardown = fn }
}

// WithDrain installs the recovery for ErrBackpressure: fn relieves the
// pressure (e.g. reads the other end of a pipe) and the same iteration is
// retried.
func WithDrain(fn func() error) Option {
	return func(o *options) { o.drain = fn }
}

// Loop executes warmup and measured iterations of a step.
type Loop struct {
	clock clock.Clock
}

// NewLoop creates a Loop reading time from c.
func NewLoop(c clock.Clock) *Loop {
	if c == nil {
		c = clock.Mono{}
	}

	return &Loop{clock: c}
}

// Measure runs step warmup times, discarding the timings, then iterations
// times, recording one sample per iteration.
//
// The returned run is never nil once arguments are valid. On error it holds
// the samples recorded before the failure and is marked Truncated; errors
// matching ErrIntegrity are expected to be flushed by the caller, anything
// else is a setup failure.
func (l *Loop) Measure(
	kind Kind,
	iterations, warmup int,
	step Step,
	opts ...Option,
) (*Run, error) {
	if iterations <= 0 {
		return nil, fmt.Errorf("%s: iterations must be positive, got %d", kind, iterations)
	}

	if warmup < 0 {
		return nil, fmt.Errorf("%s: warmup must not be negative, got %d", kind, warmup)
	}

	var o options
	for _, opt := range opts {
		opt(&o)
	}

	run := NewRun(kind, iterations, warmup)

	if err := l.iterate(warmup, step, &o, nil); err != nil {
		run.Truncated = true

		return run, fmt.Errorf("%s warmup: %w", kind, err)
	}

	if err := l.iterate(iterations, step, &o, run); err != nil {
		run.Truncated = true

		return run, fmt.Errorf("%s: %w", kind, err)
	}

	return run, nil
}

// iterate runs n counted iterations. When run is nil the timings are
// discarded.
func (l *Loop) iterate(n int, step Step, o *options, run *Run) error {
	for i := 0; i < n; {
		if o.setup != nil {
			if err := o.setup(); err != nil {
				return fmt.Errorf("iteration %d setup: %w", i, err)
			}
		}

		t0 := l.clock.Now()
		err := step()
		t1 := l.clock.Now()

		if err != nil {
			if !errors.Is(err, ErrBackpressure) {
				return fmt.Errorf("iteration %d: %w", i, err)
			}

			if o.drain == nil {
				return fmt.Errorf("iteration %d: %w with no drain configured", i, err)
			}

			if derr := o.drain(); derr != nil {
				return fmt.Errorf("iteration %d drain: %w", i, derr)
			}

			// Same index again; the rejected attempt is not a sample.
			continue
		}

		if run != nil {
			run.Samples = append(run.Samples, clock.Elapsed(t0, t1))
		}

		if o.teardown != nil {
			if err := o.teardown(); err != nil {
				return fmt.Errorf("iteration %d teardown: %w", i, err)
			}
		}

		i++
	}

	return nil
}
