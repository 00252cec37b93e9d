package harness

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/primlat/internal/clocktest"
)

func noop() error { return nil }

func TestMeasureRecordsElapsedInOrder(t *testing.T) {
	loop := NewLoop(clocktest.NewReplay(120, 95, 130, 110, 105))

	run, err := loop.Measure(KindOpen, 5, 0, noop)
	require.NoError(t, err)

	assert.Equal(t, []float64{120, 95, 130, 110, 105}, run.Samples)
	assert.True(t, run.Complete())
	assert.Equal(t, KindOpen, run.Kind)
}

func TestMeasureWarmupDoesNotChangeLength(t *testing.T) {
	for _, warmup := range []int{0, 1, 100} {
		t.Run(fmt.Sprintf("warmup=%d", warmup), func(t *testing.T) {
			calls := 0
			step := func() error {
				calls++
				return nil
			}

			run, err := NewLoop(nil).Measure(KindWrite, 50, warmup, step)
			require.NoError(t, err)

			assert.Len(t, run.Samples, 50)
			assert.Equal(t, 50+warmup, calls)
			assert.Equal(t, warmup, run.Warmup)
		})
	}
}

func TestMeasureSamplesNonNegative(t *testing.T) {
	run, err := NewLoop(nil).Measure(KindRead, 1000, 10, noop)
	require.NoError(t, err)

	for i, s := range run.Samples {
		assert.GreaterOrEqual(t, s, 0.0, "sample %d", i)
	}
}

func TestMeasureBackpressureRetriesSameIteration(t *testing.T) {
	const iters = 20

	var (
		attempts int
		drains   int
		full     bool
	)

	// Every 7th attempt is rejected until drained.
	step := func() error {
		attempts++
		if attempts%7 == 0 && !full {
			full = true
			return fmt.Errorf("write: %w", ErrBackpressure)
		}

		return nil
	}

	drain := func() error {
		drains++
		full = false

		return nil
	}

	run, err := NewLoop(nil).Measure(KindPipeWrite, iters, 1, step, WithDrain(drain))
	require.NoError(t, err)

	assert.Len(t, run.Samples, iters, "retries must not add lines")
	assert.True(t, run.Complete())
	assert.Positive(t, drains)
	assert.Equal(t, iters+1+drains, attempts)
}

func TestMeasureBackpressureWithoutDrainIsFatal(t *testing.T) {
	step := func() error { return ErrBackpressure }

	run, err := NewLoop(nil).Measure(KindPipeWrite, 3, 0, step)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrBackpressure)
	assert.True(t, run.Truncated)
	assert.Empty(t, run.Samples)
}

func TestMeasureIntegrityTruncates(t *testing.T) {
	n := 0
	step := func() error {
		n++
		if n == 4 {
			return &ShortIOError{Op: "pipe read", Want: 64, Got: 0}
		}

		return nil
	}

	run, err := NewLoop(nil).Measure(KindPipeRead, 10, 0, step)
	require.Error(t, err)

	assert.ErrorIs(t, err, ErrIntegrity)
	assert.True(t, run.Truncated)
	assert.Len(t, run.Samples, 3)
	assert.Less(t, len(run.Samples), run.Iterations)
	assert.False(t, run.Complete())

	var short *ShortIOError
	require.ErrorAs(t, err, &short)
	assert.Equal(t, 64, short.Want)
}

func TestMeasureSetupFailureIsNotIntegrity(t *testing.T) {
	boom := errors.New("open /dev/null: permission denied")

	run, err := NewLoop(nil).Measure(KindOpen, 5, 0, func() error { return boom })
	require.Error(t, err)

	assert.ErrorIs(t, err, boom)
	assert.NotErrorIs(t, err, ErrIntegrity)
	assert.True(t, run.Truncated)
}

func TestMeasureSetupAndTeardownStayOutsideBracket(t *testing.T) {
	var order []string

	step := func() error {
		order = append(order, "step")
		return nil
	}

	loop := NewLoop(clocktest.NewReplay(10, 20))
	run, err := loop.Measure(KindClose, 2, 0, step,
		WithSetup(func() error {
			order = append(order, "setup")
			return nil
		}),
		WithTeardown(func() error {
			order = append(order, "teardown")
			return nil
		}),
	)
	require.NoError(t, err)

	assert.Equal(t, []float64{10, 20}, run.Samples)
	assert.Equal(t, []string{
		"setup", "step", "teardown",
		"setup", "step", "teardown",
	}, order)
}

func TestMeasureRejectsBadArguments(t *testing.T) {
	loop := NewLoop(nil)

	_, err := loop.Measure(KindOpen, 0, 0, noop)
	assert.Error(t, err)

	_, err = loop.Measure(KindOpen, 1, -1, noop)
	assert.Error(t, err)
}

func TestShortIOError(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", &ShortIOError{Op: "write", Want: 4096, Got: 512})

	assert.ErrorIs(t, err, ErrIntegrity)
	assert.Contains(t, err.Error(), "short write: 512 of 4096 bytes")
}

func TestKinds(t *testing.T) {
	kinds := Kinds()

	assert.Len(t, kinds, 9)
	assert.Contains(t, kinds, KindKernelBlockedTime)
}
