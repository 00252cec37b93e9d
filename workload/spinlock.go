package workload

import (
	"context"
	"log/slog"

	"github.com/weiihann/primlat/affinity"
	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/probe"
	"github.com/weiihann/primlat/sink"
)

// FileSpinlock is the artifact of the spinlock benchmark.
const FileSpinlock = "spinlock_kernel.csv"

// runSpinlock reads one sample sequence from the configured probe.
func runSpinlock(ctx context.Context, env Env) ([]Result, error) {
	cfg := env.Config.Spinlock
	logger := env.logger()

	var src probe.Source

	switch cfg.Source {
	case config.SpinlockSourceProc:
		src = probe.ProcFile{Path: cfg.ProcPath}
	default:
		release, err := affinity.LockAndPin(cfg.Core)
		defer release()

		if err != nil {
			logger.WarnContext(ctx, "thread not pinned", slog.Int("core", cfg.Core), slog.String("error", err.Error()))
		}

		src = probe.UserSpin{Iterations: cfg.Iterations, Clock: env.Clock}
	}

	values, err := probe.Collect(src, cfg.Iterations)

	run := harness.NewRun(harness.KindSpinlock, cfg.Iterations, 0)
	for _, v := range values {
		run.Samples = append(run.Samples, float64(v))
	}

	if err != nil {
		run.Truncated = true
	}

	res, err := collect(run, err, env.artifact(FileSpinlock, sink.Lines))
	if err != nil {
		return nil, err
	}

	logMeasured(ctx, logger, res)

	return []Result{res}, nil
}
