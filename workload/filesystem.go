package workload

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sys/unix"

	"github.com/weiihann/primlat/affinity"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/sink"
)

// Artifact names of the filesystem benchmark.
const (
	FileOpen  = "filesystem_open.csv"
	FileClose = "filesystem_close.csv"
	FileWrite = "filesystem_write.csv"
	FileRead  = "filesystem_read.csv"
)

// runFilesystem measures open, close, write and read on the configured
// device, one loop per primitive.
func runFilesystem(ctx context.Context, env Env) ([]Result, error) {
	cfg := env.Config.Filesystem
	logger := env.logger()

	release, err := affinity.LockAndPin(cfg.Core)
	defer release()

	if err != nil {
		logger.WarnContext(ctx, "thread not pinned", slog.Int("core", cfg.Core), slog.String("error", err.Error()))
	}

	// Page-aligned block.
	block, err := unix.Mmap(-1, 0, cfg.BlockSize, unix.PROT_READ|unix.PROT_WRITE, unix.MAP_ANON|unix.MAP_PRIVATE)
	if err != nil {
		return nil, fmt.Errorf("allocate %d-byte block: %w", cfg.BlockSize, err)
	}

	defer func() {
		if err := unix.Munmap(block); err != nil {
			logger.WarnContext(ctx, "release block", slog.String("error", err.Error()))
		}
	}()

	for i := range block {
		block[i] = 0xAB
	}

	dev := &device{path: cfg.Device, fd: -1}
	loop := harness.NewLoop(env.Clock)

	type measurement struct {
		file string
		do   func() (*harness.Run, error)
	}

	measurements := []measurement{
		{FileOpen, func() (*harness.Run, error) {
			return loop.Measure(harness.KindOpen, cfg.Iterations, cfg.Warmup, dev.open,
				harness.WithTeardown(dev.close))
		}},
		{FileClose, func() (*harness.Run, error) {
			return loop.Measure(harness.KindClose, cfg.Iterations, cfg.Warmup, dev.close,
				harness.WithSetup(dev.open))
		}},
		{FileWrite, func() (*harness.Run, error) {
			return dev.held(func() (*harness.Run, error) {
				return loop.Measure(harness.KindWrite, cfg.Iterations, cfg.Warmup, func() error {
					return dev.write(block)
				})
			})
		}},
		{FileRead, func() (*harness.Run, error) {
			return dev.held(func() (*harness.Run, error) {
				return loop.Measure(harness.KindRead, cfg.Iterations, cfg.Warmup, func() error {
					return dev.read(block)
				})
			})
		}},
	}

	results := make([]Result, 0, len(measurements))
	for _, m := range measurements {
		if err := ctx.Err(); err != nil {
			return results, err
		}

		run, err := m.do()
		dev.reset()

		res, err := collect(run, err, env.artifact(m.file, sink.Lines))
		if err != nil {
			return results, err
		}

		logMeasured(ctx, logger, res)
		results = append(results, res)
	}

	return results, nil
}

// device is the file descriptor under test.
type device struct {
	path string
	fd   int
}

func (d *device) open() error {
	fd, err := unix.Open(d.path, unix.O_RDWR|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}

	d.fd = fd

	return nil
}

func (d *device) close() error {
	fd := d.fd
	d.fd = -1

	if err := unix.Close(fd); err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}

	return nil
}

func (d *device) write(block []byte) error {
	n, err := unix.Write(d.fd, block)
	if err != nil {
		return fmt.Errorf("write %s: %w", d.path, err)
	}

	if n != len(block) {
		return &harness.ShortIOError{Op: "write", Want: len(block), Got: n}
	}

	return nil
}

// read does not check the byte count: it is whatever the device returns.
func (d *device) read(block []byte) error {
	if _, err := unix.Read(d.fd, block); err != nil {
		return fmt.Errorf("read %s: %w", d.path, err)
	}

	return nil
}

// held keeps the device open for the duration of fn.
func (d *device) held(fn func() (*harness.Run, error)) (*harness.Run, error) {
	if err := d.open(); err != nil {
		return nil, err
	}

	return fn()
}

// reset closes a descriptor left open by a finished or failed loop.
func (d *device) reset() {
	if d.fd >= 0 {
		_ = d.close()
	}
}
