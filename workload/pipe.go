package workload

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/weiihann/primlat/affinity"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/sink"
)

// Artifact names of the pipe benchmark.
const (
	FilePipeWrite = "pipe_write.csv"
	FilePipeRead  = "pipe_read.csv"
)

// runPipe measures fixed-size writes into and reads out of a non-blocking
// pipe owned by a single thread.
func runPipe(ctx context.Context, env Env) ([]Result, error) {
	cfg := env.Config.Pipe
	logger := env.logger()

	release, err := affinity.LockAndPin(cfg.Core)
	defer release()

	if err != nil {
		logger.WarnContext(ctx, "thread not pinned", slog.Int("core", cfg.Core), slog.String("error", err.Error()))
	}

	p, err := newPipe(cfg.MessageSize, cfg.DrainSize)
	if err != nil {
		return nil, err
	}

	defer func() {
		if err := p.close(); err != nil {
			logger.WarnContext(ctx, "close pipe", slog.String("error", err.Error()))
		}
	}()

	loop := harness.NewLoop(env.Clock)
	results := make([]Result, 0, 2)

	// Step 1: writes. A full pipe is drained and the same iteration retried.
	run, err := loop.Measure(harness.KindPipeWrite, cfg.Iterations, cfg.Warmup, p.write,
		harness.WithDrain(p.drain))

	res, err := collect(run, err, env.artifact(FilePipeWrite, sink.Lines))
	if err != nil {
		return results, err
	}

	logger.DebugContext(ctx, "pipe drained on backpressure", slog.Int("drains", p.drains))
	logMeasured(ctx, logger, res)
	results = append(results, res)

	if err := ctx.Err(); err != nil {
		return results, err
	}

	if err := p.drainAll(); err != nil {
		return results, err
	}

	// Step 2: reads. Each iteration first queues exactly one message.
	run, err = loop.Measure(harness.KindPipeRead, cfg.Iterations, cfg.Warmup, p.read,
		harness.WithSetup(p.fill))

	res, err = collect(run, err, env.artifact(FilePipeRead, sink.Lines))
	if err != nil {
		return results, err
	}

	logMeasured(ctx, logger, res)

	return append(results, res), nil
}

type pipe struct {
	r, w   int
	msg    []byte
	in     []byte
	drBuf  []byte
	drains int
}

func newPipe(messageSize, drainSize int) (*pipe, error) {
	var fds [2]int
	if err := unix.Pipe(fds[:]); err != nil {
		return nil, fmt.Errorf("pipe: %w", err)
	}

	p := &pipe{
		r:     fds[0],
		w:     fds[1],
		msg:   bytes.Repeat([]byte{'x'}, messageSize),
		in:    make([]byte, messageSize),
		drBuf: make([]byte, drainSize),
	}

	for _, fd := range fds {
		if err := unix.SetNonblock(fd, true); err != nil {
			_ = p.close()

			return nil, fmt.Errorf("set pipe non-blocking: %w", err)
		}
	}

	return p, nil
}

func (p *pipe) write() error {
	n, err := unix.Write(p.w, p.msg)
	if errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("pipe write: %w", harness.ErrBackpressure)
	}

	if err != nil {
		return fmt.Errorf("pipe write: %w", err)
	}

	if n != len(p.msg) {
		return &harness.ShortIOError{Op: "pipe write", Want: len(p.msg), Got: n}
	}

	return nil
}

func (p *pipe) read() error {
	n, err := unix.Read(p.r, p.in)
	if errors.Is(err, unix.EAGAIN) {
		return &harness.ShortIOError{Op: "pipe read", Want: len(p.in), Got: 0}
	}

	if err != nil {
		return fmt.Errorf("pipe read: %w", err)
	}

	if n != len(p.in) {
		return &harness.ShortIOError{Op: "pipe read", Want: len(p.in), Got: n}
	}

	return nil
}

// fill queues one message for the next read. A full pipe already holds one.
func (p *pipe) fill() error {
	if err := p.write(); err != nil && !errors.Is(err, harness.ErrBackpressure) {
		return err
	}

	return nil
}

// drain reads up to one drain buffer from the pipe.
func (p *pipe) drain() error {
	p.drains++

	_, err := unix.Read(p.r, p.drBuf)
	if err != nil && !errors.Is(err, unix.EAGAIN) {
		return fmt.Errorf("pipe drain: %w", err)
	}

	return nil
}

// drainAll empties the pipe.
func (p *pipe) drainAll() error {
	for {
		n, err := unix.Read(p.r, p.drBuf)
		if errors.Is(err, unix.EAGAIN) || (err == nil && n == 0) {
			return nil
		}

		if err != nil {
			return fmt.Errorf("pipe drain: %w", err)
		}
	}
}

func (p *pipe) close() error {
	return errors.Join(unix.Close(p.r), unix.Close(p.w))
}
