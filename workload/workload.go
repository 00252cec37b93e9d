// Package workload defines the primlat benchmarks. Each benchmark measures
// one family of OS primitives and returns one run per primitive together
// with the artifact it belongs in.
package workload

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"

	"github.com/weiihann/primlat/clock"
	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/perfcounter"
	"github.com/weiihann/primlat/sink"
)

// Benchmark names.
const (
	NameFilesystem = "filesystem"
	NamePipe       = "pipe"
	NameSemaphore  = "semaphore"
	NameKernelTime = "kernel_time"
	NameSpinlock   = "spinlock"
)

// Env carries what every benchmark needs.
type Env struct {
	Config *config.Config
	Clock  clock.Clock
	Logger *slog.Logger

	// OpenCounter opens the kernel counter of the calling thread. Defaults to
	// perfcounter.Open.
	OpenCounter func() (perfcounter.Counter, error)
}

func (e Env) logger() *slog.Logger {
	if e.Logger == nil {
		return slog.Default()
	}

	return e.Logger
}

func (e Env) artifact(name string, format sink.Format) sink.Artifact {
	return sink.Artifact{Path: filepath.Join(e.Config.OutputDir, name), Format: format}
}

// Result is one measured primitive. Err is set when a data-integrity
// violation truncated Run; the samples collected are still meant to be
// written.
type Result struct {
	Run      *harness.Run
	Artifact sink.Artifact
	Err      error
}

// Benchmark is a named family of measurements. Run returns an error only for
// setup failures; integrity violations are reported per Result.
type Benchmark struct {
	Name string
	Run  func(ctx context.Context, env Env) ([]Result, error)
}

// All returns every benchmark in execution order.
func All() []Benchmark {
	return []Benchmark{
		{Name: NameFilesystem, Run: runFilesystem},
		{Name: NamePipe, Run: runPipe},
		{Name: NameSemaphore, Run: runSemaphore},
		{Name: NameKernelTime, Run: runKernelTime},
		{Name: NameSpinlock, Run: runSpinlock},
	}
}

// Names returns the names of All.
func Names() []string {
	all := All()

	names := make([]string, len(all))
	for i, b := range all {
		names[i] = b.Name
	}

	return names
}

// Select returns the named benchmarks in execution order. No names selects
// all of them.
func Select(names []string) ([]Benchmark, error) {
	all := All()
	if len(names) == 0 {
		return all, nil
	}

	want := make(map[string]bool, len(names))
	for _, n := range names {
		n = strings.TrimSpace(n)
		if n == "" {
			continue
		}

		found := false
		for _, b := range all {
			if b.Name == n {
				found = true

				break
			}
		}

		if !found {
			return nil, fmt.Errorf("unknown benchmark %q (known: %s)", n, strings.Join(Names(), ", "))
		}

		want[n] = true
	}

	selected := make([]Benchmark, 0, len(want))
	for _, b := range all {
		if want[b.Name] {
			selected = append(selected, b)
		}
	}

	return selected, nil
}

// collect turns a measurement outcome into a Result. Integrity errors stay
// with the Result; anything else is returned as a setup failure.
func collect(run *harness.Run, err error, a sink.Artifact) (Result, error) {
	if err != nil && !errors.Is(err, harness.ErrIntegrity) {
		return Result{}, err
	}

	return Result{Run: run, Artifact: a, Err: err}, nil
}

func logMeasured(ctx context.Context, logger *slog.Logger, r Result) {
	attrs := []any{
		slog.String("kind", string(r.Run.Kind)),
		slog.Int("samples", len(r.Run.Samples)),
		slog.Int("iterations", r.Run.Iterations),
	}

	if r.Err != nil {
		logger.WarnContext(ctx, "run truncated", append(attrs, slog.String("error", r.Err.Error()))...)

		return
	}

	logger.InfoContext(ctx, "run measured", attrs...)
}
