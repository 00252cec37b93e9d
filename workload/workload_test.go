package workload

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/perfcounter"
	"github.com/weiihann/primlat/sink"
)

func testEnv(t *testing.T, iterations int) Env {
	t.Helper()

	cfg := config.Default()
	cfg.OutputDir = t.TempDir()
	cfg.SetIterations(iterations)
	cfg.Sync.Settle = 0
	cfg.Sync.Gap = 0

	return Env{
		Config: cfg,
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

func assertComplete(t *testing.T, r Result, kind harness.Kind, iterations int) {
	t.Helper()

	require.NoError(t, r.Err)
	assert.Equal(t, kind, r.Run.Kind)
	assert.Len(t, r.Run.Samples, iterations)
	assert.True(t, r.Run.Complete())
}

func TestSelect(t *testing.T) {
	all, err := Select(nil)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	got, err := Select([]string{"spinlock", " pipe "})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, NamePipe, got[0].Name, "execution order is kept")
	assert.Equal(t, NameSpinlock, got[1].Name)

	_, err = Select([]string{"mutex"})
	assert.Error(t, err)
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"filesystem", "pipe", "semaphore", "kernel_time", "spinlock"}, Names())
}

func TestFilesystem(t *testing.T) {
	env := testEnv(t, 200)

	results, err := runFilesystem(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 4)

	kinds := []harness.Kind{harness.KindOpen, harness.KindClose, harness.KindWrite, harness.KindRead}
	files := []string{FileOpen, FileClose, FileWrite, FileRead}

	for i, r := range results {
		assertComplete(t, r, kinds[i], 200)
		assert.Equal(t, filepath.Join(env.Config.OutputDir, files[i]), r.Artifact.Path)
		assert.Equal(t, sink.Lines, r.Artifact.Format)
	}
}

func TestFilesystemMissingDeviceIsFatal(t *testing.T) {
	env := testEnv(t, 10)
	env.Config.Filesystem.Device = filepath.Join(t.TempDir(), "missing")

	_, err := runFilesystem(context.Background(), env)
	require.Error(t, err)
	assert.NotErrorIs(t, err, harness.ErrIntegrity)
}

func TestPipeSurvivesBackpressure(t *testing.T) {
	// Enough 64-byte writes to fill a default 64 KiB pipe several times.
	env := testEnv(t, 5000)

	results, err := runPipe(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 2)

	assertComplete(t, results[0], harness.KindPipeWrite, 5000)
	assertComplete(t, results[1], harness.KindPipeRead, 5000)
	assert.Equal(t, FilePipeWrite, filepath.Base(results[0].Artifact.Path))
	assert.Equal(t, FilePipeRead, filepath.Base(results[1].Artifact.Path))
}

func TestPipeWriteDrainsAndRetries(t *testing.T) {
	p, err := newPipe(64, 65536)
	require.NoError(t, err)
	defer p.close()

	// More than a default pipe holds even with 64 KiB pages.
	const iters = 20000

	run, err := harness.NewLoop(nil).Measure(harness.KindPipeWrite, iters, 1, p.write,
		harness.WithDrain(p.drain))
	require.NoError(t, err)

	assert.Positive(t, p.drains, "the pipe never filled")
	assert.Len(t, run.Samples, iters, "retried writes must not add samples")
	assert.True(t, run.Complete())
}

func TestPipeShortReadTruncates(t *testing.T) {
	p, err := newPipe(64, 65536)
	require.NoError(t, err)
	defer p.close()

	// Nothing queued: the read comes back empty.
	run, err := harness.NewLoop(nil).Measure(harness.KindPipeRead, 5, 0, p.read)
	require.Error(t, err)

	assert.ErrorIs(t, err, harness.ErrIntegrity)
	assert.True(t, run.Truncated)
	assert.Empty(t, run.Samples)

	res, err := collect(run, err, sink.Artifact{Path: FilePipeRead})
	require.NoError(t, err)
	assert.ErrorIs(t, res.Err, harness.ErrIntegrity)
}

func TestSemaphore(t *testing.T) {
	env := testEnv(t, 100)

	results, err := runSemaphore(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assertComplete(t, results[0], harness.KindSemaphoreRoundTrip, 100)
	assert.Equal(t, FileSemaphore, filepath.Base(results[0].Artifact.Path))

	for _, s := range results[0].Run.Samples {
		assert.Positive(t, s)
	}
}

func TestKernelTimeUsesCounter(t *testing.T) {
	env := testEnv(t, 20)

	opened := 0
	env.OpenCounter = func() (perfcounter.Counter, error) {
		opened++
		return perfcounter.Nop{}, nil
	}

	results, err := runKernelTime(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assertComplete(t, r, harness.KindKernelBlockedTime, 20)
	assert.Equal(t, sink.Joined, r.Artifact.Format)
	assert.Equal(t, FileSemaphoreKernel, filepath.Base(r.Artifact.Path))
	assert.Equal(t, 1, opened, "one counter per run, opened by the worker")

	for _, s := range r.Run.Samples {
		assert.Zero(t, s)
	}
}

func TestKernelTimeCounterFailureIsFatal(t *testing.T) {
	env := testEnv(t, 20)
	denied := errors.New("perf_event_open: permission denied")
	env.OpenCounter = func() (perfcounter.Counter, error) { return nil, denied }

	_, err := runKernelTime(context.Background(), env)
	require.Error(t, err)
	assert.ErrorIs(t, err, denied)
}

func TestSpinlockUser(t *testing.T) {
	env := testEnv(t, 1000)

	results, err := runSpinlock(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 1)

	assertComplete(t, results[0], harness.KindSpinlock, 1000)
	assert.Equal(t, FileSpinlock, filepath.Base(results[0].Artifact.Path))
}

func TestSpinlockProcShortSequenceTruncates(t *testing.T) {
	env := testEnv(t, 5)

	path := filepath.Join(t.TempDir(), "spinlock_kernel")
	require.NoError(t, os.WriteFile(path, []byte("31\n29\n30\n"), 0o644))

	env.Config.Spinlock.Source = config.SpinlockSourceProc
	env.Config.Spinlock.ProcPath = path

	results, err := runSpinlock(context.Background(), env)
	require.NoError(t, err)
	require.Len(t, results, 1)

	r := results[0]
	assert.ErrorIs(t, r.Err, harness.ErrIntegrity)
	assert.True(t, r.Run.Truncated)
	assert.Equal(t, []float64{31, 29, 30}, r.Run.Samples)
}

func TestSpinlockProcMissingIsFatal(t *testing.T) {
	env := testEnv(t, 5)
	env.Config.Spinlock.Source = config.SpinlockSourceProc
	env.Config.Spinlock.ProcPath = filepath.Join(t.TempDir(), "absent")

	_, err := runSpinlock(context.Background(), env)
	assert.Error(t, err)
}

func TestCanceledContextStopsFilesystem(t *testing.T) {
	env := testEnv(t, 10)

	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	results, err := runFilesystem(ctx, env)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Empty(t, results)
}
