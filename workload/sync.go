package workload

import (
	"context"
	"log/slog"

	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/handshake"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/perfcounter"
	"github.com/weiihann/primlat/sink"
)

// Artifact names of the handshake benchmarks.
const (
	FileSemaphore       = "semaphore.csv"
	FileSemaphoreKernel = "semaphore_kernel.csv"
)

// runSemaphore measures the cross-core round trip: request posted by the
// driver until the worker's acknowledge wakes it.
func runSemaphore(ctx context.Context, env Env) ([]Result, error) {
	cfg := env.Config
	hsCfg := handshakeConfig(harness.KindSemaphoreRoundTrip, cfg.Semaphore, cfg.Sync)

	return runHandshake(ctx, env, hsCfg, handshake.Options{Clock: env.Clock},
		env.artifact(FileSemaphore, sink.Lines))
}

// runKernelTime measures the kernel-mode time the worker accumulates while
// it blocks for a request.
func runKernelTime(ctx context.Context, env Env) ([]Result, error) {
	cfg := env.Config
	hsCfg := handshakeConfig(harness.KindKernelBlockedTime, cfg.KernelTime, cfg.Sync)

	openCounter := env.OpenCounter
	if openCounter == nil {
		openCounter = openKernelClock
	}

	opts := handshake.Options{
		Clock: env.Clock,
		NewInstrument: func() (handshake.Instrument, error) {
			c, err := openCounter()
			if err != nil {
				return nil, err
			}

			return perfcounter.NewInstrument(c), nil
		},
	}

	return runHandshake(ctx, env, hsCfg, opts, env.artifact(FileSemaphoreKernel, sink.Joined))
}

func openKernelClock() (perfcounter.Counter, error) {
	k, err := perfcounter.Open()
	if err != nil {
		return nil, err
	}

	return k, nil
}

func handshakeConfig(kind harness.Kind, loop config.LoopConfig, sc config.SyncConfig) handshake.Config {
	return handshake.Config{
		Kind:         kind,
		Iterations:   loop.Iterations,
		Warmup:       loop.Warmup,
		DriverCore:   sc.DriverCore,
		WorkerCore:   sc.WorkerCore,
		Settle:       sc.Settle,
		Gap:          sc.Gap,
		ReadyTimeout: sc.ReadyTimeout,
	}
}

func runHandshake(
	ctx context.Context,
	env Env,
	cfg handshake.Config,
	opts handshake.Options,
	a sink.Artifact,
) ([]Result, error) {
	logger := env.logger()
	opts.Logger = logger

	hs, err := handshake.NewKernel()
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := hs.Close(); err != nil {
			logger.WarnContext(ctx, "close handshake", slog.String("error", err.Error()))
		}
	}()

	run, err := handshake.Run(ctx, cfg, hs, opts)

	res, err := collect(run, err, a)
	if err != nil {
		return nil, err
	}

	requests, acks := hs.Counts()
	logger.DebugContext(ctx, "handshake finished",
		slog.Uint64("requests", requests),
		slog.Uint64("acks", acks),
	)

	logMeasured(ctx, logger, res)

	return []Result{res}, nil
}
