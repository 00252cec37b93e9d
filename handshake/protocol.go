package handshake

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/weiihann/primlat/affinity"
	"github.com/weiihann/primlat/clock"
	"github.com/weiihann/primlat/harness"
)

// DefaultReadyTimeout bounds the wait for the worker's ready event.
const DefaultReadyTimeout = 10 * time.Second

var (
	// ErrWorkerNotReady is returned when the worker does not raise its ready
	// event within Config.ReadyTimeout.
	ErrWorkerNotReady = errors.New("handshake: worker did not become ready")

	errAborted = errors.New("handshake: aborted by driver")
)

// Config describes one synchronization run.
type Config struct {
	Kind       harness.Kind
	Iterations int
	Warmup     int

	DriverCore int
	WorkerCore int

	// Settle is slept once after the worker is ready.
	Settle time.Duration
	// Gap is slept before every cycle so consecutive wake-ups are not
	// coalesced.
	Gap          time.Duration
	ReadyTimeout time.Duration
}

func (c Config) validate() error {
	if c.Iterations <= 0 {
		return fmt.Errorf("%s: iterations must be positive, got %d", c.Kind, c.Iterations)
	}

	if c.Warmup < 0 {
		return fmt.Errorf("%s: warmup must not be negative, got %d", c.Kind, c.Warmup)
	}

	if c.Settle < 0 || c.Gap < 0 {
		return fmt.Errorf("%s: settle and gap must not be negative", c.Kind)
	}

	return nil
}

// Instrument measures the worker side of a cycle. Begin runs before the
// worker blocks on a request, End right after it wakes; End's value becomes
// the sample.
type Instrument interface {
	Begin() error
	End() (float64, error)
	Close() error
}

// Options carries the collaborators of Run.
type Options struct {
	Clock  clock.Clock
	Logger *slog.Logger

	// NewInstrument, when set, is called on the worker's pinned thread before
	// it reports ready. The samples then come from the instrument instead of
	// the driver's round-trip clock.
	NewInstrument func() (Instrument, error)

	// Sleep is called with Config.Gap before every cycle. Defaults to a
	// sleep that blocks the driver's thread.
	Sleep func(time.Duration)
}

// Run drives cfg.Warmup+cfg.Iterations request/acknowledge cycles between the
// calling goroutine and a worker goroutine and returns the recorded samples.
//
// On an integrity error the returned run is truncated and the error matches
// harness.ErrIntegrity; any other error is a setup failure.
func Run(ctx context.Context, cfg Config, hs *Handshake, opts Options) (*harness.Run, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	clk := opts.Clock
	if clk == nil {
		clk = clock.Mono{}
	}

	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	sleep := opts.Sleep
	if sleep == nil {
		sleep = sleepGap
	}

	timeout := cfg.ReadyTimeout
	if timeout <= 0 {
		timeout = DefaultReadyTimeout
	}

	release, err := affinity.LockAndPin(cfg.DriverCore)
	defer release()

	if err != nil {
		logger.WarnContext(ctx, "driver not pinned",
			slog.Int("core", cfg.DriverCore),
			slog.String("error", err.Error()),
		)
	}

	w := &worker{
		cfg:           cfg,
		hs:            hs,
		logger:        logger,
		newInstrument: opts.NewInstrument,
	}

	hs.enter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(w.run)

	// Step 1: wait for the worker to be parked on its first request.
	if err := awaitReady(gctx, hs, timeout); err != nil {
		if ctx.Err() == nil && gctx.Err() != nil {
			// The worker returned before becoming ready.
			werr := g.Wait()
			hs.noteDone()

			return nil, fmt.Errorf("%s worker: %w", cfg.Kind, werr)
		}

		// The worker may be stuck; it exits on its own once woken.
		_ = hs.abort()

		return nil, fmt.Errorf("%s: %w", cfg.Kind, err)
	}

	time.Sleep(cfg.Settle)

	// Step 2: drive the cycles.
	run := harness.NewRun(cfg.Kind, cfg.Iterations, cfg.Warmup)
	instrumented := opts.NewInstrument != nil
	total := cfg.Warmup + cfg.Iterations

	for i := 0; i < total; i++ {
		sleep(cfg.Gap)

		hs.noteRequest()

		t0 := clk.Now()
		err := hs.request.Post()
		if err == nil {
			err = hs.ack.Wait()
		}
		t1 := clk.Now()

		if err != nil {
			run.Truncated = true

			if aerr := hs.abort(); aerr == nil {
				_ = g.Wait()
			}

			return run, fmt.Errorf("%s cycle %d: %w", cfg.Kind, i, err)
		}

		hs.noteIdle()

		if w.failed.Load() {
			break
		}

		if !instrumented && i >= cfg.Warmup {
			run.Samples = append(run.Samples, clock.Elapsed(t0, t1))
		}
	}

	// Step 3: join the worker. Its samples are safe to read afterwards.
	werr := g.Wait()
	hs.noteDone()

	if instrumented {
		run.Samples = w.samples
	}

	if werr != nil {
		run.Truncated = true

		return run, fmt.Errorf("%s worker: %w", cfg.Kind, werr)
	}

	return run, nil
}

func awaitReady(ctx context.Context, hs *Handshake, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-hs.Ready():
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return fmt.Errorf("%w after %s", ErrWorkerNotReady, timeout)
	}
}

type worker struct {
	cfg           Config
	hs            *Handshake
	logger        *slog.Logger
	newInstrument func() (Instrument, error)

	failed  atomic.Bool
	samples []float64
}

func (w *worker) run() error {
	defer w.hs.leave()

	// Never unlocked: the thread exits with the goroutine and takes its
	// pinned mask with it.
	runtime.LockOSThread()

	if err := affinity.Pin(w.cfg.WorkerCore); err != nil {
		w.logger.Warn("worker not pinned",
			slog.Int("core", w.cfg.WorkerCore),
			slog.String("error", err.Error()),
		)
	}

	defer w.hs.noteDone()

	var inst Instrument
	if w.newInstrument != nil {
		var err error

		inst, err = w.newInstrument()
		if err != nil {
			return fmt.Errorf("instrument: %w", err)
		}

		defer func() {
			if err := inst.Close(); err != nil {
				w.logger.Warn("close instrument", slog.String("error", err.Error()))
			}
		}()

		w.samples = make([]float64, 0, w.cfg.Iterations)
	}

	w.hs.markReady()

	total := w.cfg.Warmup + w.cfg.Iterations
	for i := 0; i < total; i++ {
		if inst != nil {
			if err := inst.Begin(); err != nil {
				return w.fail(i, err, true)
			}
		}

		if err := w.hs.request.Wait(); err != nil {
			return w.fail(i, err, false)
		}

		if w.hs.isAborted() {
			return errAborted
		}

		if inst != nil {
			v, err := inst.End()
			if err != nil {
				return w.fail(i, err, false)
			}

			if i >= w.cfg.Warmup {
				w.samples = append(w.samples, v)
			}
		}

		w.hs.noteAck()

		if err := w.acknowledge(); err != nil {
			w.failed.Store(true)

			return fmt.Errorf("cycle %d acknowledge: %w", i, err)
		}
	}

	return nil
}

// acknowledge posts the acknowledge. If that fails the signal is closed
// instead: a channel waiter returns ErrClosed. An eventfd whose write fails
// is already unusable, and the driver's read reports its own error.
func (w *worker) acknowledge() error {
	err := w.hs.ack.Post()
	if err != nil {
		_ = w.hs.breakAck()
	}

	return err
}

// fail marks the worker failed and still acknowledges the current cycle so
// the driver is not left blocked. When the request has not been consumed
// yet, it is consumed first.
//
// The failed flag is raised only once the request is consumed: the driver
// reads it after the acknowledge and would otherwise stop without posting the
// request the worker waits for.
func (w *worker) fail(i int, err error, pending bool) error {
	if pending {
		if werr := w.hs.request.Wait(); werr != nil || w.hs.isAborted() {
			return fmt.Errorf("cycle %d: %w", i, err)
		}
	}

	w.failed.Store(true)
	w.hs.noteAck()
	_ = w.acknowledge()

	return fmt.Errorf("cycle %d: %w", i, err)
}
