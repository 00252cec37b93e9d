// Package config holds the tunables of a primlat run. The defaults reproduce
// the canonical measurement setup; a YAML file can override any of them.
package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Spinlock sources.
const (
	SpinlockSourceUser = "user"
	SpinlockSourceProc = "proc"
)

// Config holds all run configuration.
type Config struct {
	OutputDir  string           `yaml:"output_dir" json:"output_dir"`
	Filesystem FilesystemConfig `yaml:"filesystem" json:"filesystem"`
	Pipe       PipeConfig       `yaml:"pipe" json:"pipe"`
	Sync       SyncConfig       `yaml:"sync" json:"sync"`
	Semaphore  LoopConfig       `yaml:"semaphore" json:"semaphore"`
	KernelTime LoopConfig       `yaml:"kernel_time" json:"kernel_time"`
	Spinlock   SpinlockConfig   `yaml:"spinlock" json:"spinlock"`
}

// LoopConfig is the iteration count of a measurement loop and the number of
// discarded iterations before it.
type LoopConfig struct {
	Iterations int `yaml:"iterations" json:"iterations"`
	Warmup     int `yaml:"warmup" json:"warmup"`
}

// FilesystemConfig configures the open/close/read/write benchmarks.
type FilesystemConfig struct {
	LoopConfig `yaml:",inline"`
	Core       int    `yaml:"core" json:"core"`
	Device     string `yaml:"device" json:"device"`
	BlockSize  int    `yaml:"block_size" json:"block_size"`
}

// PipeConfig configures the pipe read/write benchmarks.
type PipeConfig struct {
	LoopConfig  `yaml:",inline"`
	Core        int `yaml:"core" json:"core"`
	MessageSize int `yaml:"message_size" json:"message_size"`
	DrainSize   int `yaml:"drain_size" json:"drain_size"`
}

// SyncConfig configures the driver/worker handshake shared by the semaphore
// and kernel-time benchmarks.
type SyncConfig struct {
	DriverCore   int           `yaml:"driver_core" json:"driver_core"`
	WorkerCore   int           `yaml:"worker_core" json:"worker_core"`
	Settle       time.Duration `yaml:"settle" json:"settle"`
	Gap          time.Duration `yaml:"gap" json:"gap"`
	ReadyTimeout time.Duration `yaml:"ready_timeout" json:"ready_timeout"`
}

// SpinlockConfig configures the spinlock probe.
type SpinlockConfig struct {
	Iterations int    `yaml:"iterations" json:"iterations"`
	Source     string `yaml:"source" json:"source"`
	ProcPath   string `yaml:"proc_path" json:"proc_path"`
	Core       int    `yaml:"core" json:"core"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		OutputDir: "output",
		Filesystem: FilesystemConfig{
			LoopConfig: LoopConfig{Iterations: 1_000_000, Warmup: 100},
			Core:       0,
			Device:     "/dev/null",
			BlockSize:  4096,
		},
		Pipe: PipeConfig{
			LoopConfig:  LoopConfig{Iterations: 1_000_000, Warmup: 1},
			Core:        0,
			MessageSize: 64,
			DrainSize:   65536,
		},
		Sync: SyncConfig{
			DriverCore:   0,
			WorkerCore:   1,
			Settle:       10 * time.Millisecond,
			Gap:          50 * time.Microsecond,
			ReadyTimeout: 10 * time.Second,
		},
		Semaphore:  LoopConfig{Iterations: 1_000_000, Warmup: 100},
		KernelTime: LoopConfig{Iterations: 10_000, Warmup: 100},
		Spinlock: SpinlockConfig{
			Iterations: 1_000_000,
			Source:     SpinlockSourceUser,
			ProcPath:   "/proc/spinlock_kernel",
			Core:       0,
		},
	}
}

// Load overlays the YAML file at path onto the defaults and validates the
// result. An empty path yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, cfg.Validate()
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config: %w", err)
	}
	defer f.Close()

	if err := cfg.decode(f); err != nil {
		return nil, fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}

	return cfg, nil
}

func (c *Config) decode(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(c); err != nil && !errors.Is(err, io.EOF) {
		return err
	}

	return nil
}

// SetIterations overrides the iteration count of every benchmark.
func (c *Config) SetIterations(n int) {
	c.Filesystem.Iterations = n
	c.Pipe.Iterations = n
	c.Semaphore.Iterations = n
	c.KernelTime.Iterations = n
	c.Spinlock.Iterations = n
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.OutputDir == "" {
		errs = append(errs, errors.New("output_dir must not be empty"))
	}

	errs = append(errs,
		c.Filesystem.LoopConfig.validate("filesystem"),
		c.Pipe.LoopConfig.validate("pipe"),
		c.Semaphore.validate("semaphore"),
		c.KernelTime.validate("kernel_time"),
		validateCore("filesystem.core", c.Filesystem.Core),
		validateCore("pipe.core", c.Pipe.Core),
		validateCore("sync.driver_core", c.Sync.DriverCore),
		validateCore("sync.worker_core", c.Sync.WorkerCore),
		validateCore("spinlock.core", c.Spinlock.Core),
	)

	if c.Filesystem.Device == "" {
		errs = append(errs, errors.New("filesystem.device must not be empty"))
	}

	if c.Filesystem.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("filesystem.block_size must be positive, got %d", c.Filesystem.BlockSize))
	}

	if c.Pipe.MessageSize <= 0 {
		errs = append(errs, fmt.Errorf("pipe.message_size must be positive, got %d", c.Pipe.MessageSize))
	}

	if c.Pipe.DrainSize < c.Pipe.MessageSize {
		errs = append(errs, fmt.Errorf("pipe.drain_size %d is smaller than pipe.message_size %d",
			c.Pipe.DrainSize, c.Pipe.MessageSize))
	}

	if c.Sync.DriverCore == c.Sync.WorkerCore {
		errs = append(errs, fmt.Errorf("sync.driver_core and sync.worker_core must differ, both are %d",
			c.Sync.DriverCore))
	}

	if c.Sync.Settle < 0 || c.Sync.Gap < 0 {
		errs = append(errs, errors.New("sync.settle and sync.gap must not be negative"))
	}

	if c.Sync.ReadyTimeout <= 0 {
		errs = append(errs, fmt.Errorf("sync.ready_timeout must be positive, got %s", c.Sync.ReadyTimeout))
	}

	if c.Spinlock.Iterations <= 0 {
		errs = append(errs, fmt.Errorf("spinlock.iterations must be positive, got %d", c.Spinlock.Iterations))
	}

	switch c.Spinlock.Source {
	case SpinlockSourceUser:
	case SpinlockSourceProc:
		if c.Spinlock.ProcPath == "" {
			errs = append(errs, errors.New("spinlock.proc_path must not be empty"))
		}
	default:
		errs = append(errs, fmt.Errorf("spinlock.source must be %q or %q, got %q",
			SpinlockSourceUser, SpinlockSourceProc, c.Spinlock.Source))
	}

	return errors.Join(errs...)
}

func (l LoopConfig) validate(name string) error {
	if l.Iterations <= 0 {
		return fmt.Errorf("%s.iterations must be positive, got %d", name, l.Iterations)
	}

	if l.Warmup < 0 {
		return fmt.Errorf("%s.warmup must not be negative, got %d", name, l.Warmup)
	}

	return nil
}

func validateCore(name string, core int) error {
	if core < 0 {
		return fmt.Errorf("%s must not be negative, got %d", name, core)
	}

	return nil
}
