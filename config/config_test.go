package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "primlat.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 1_000_000, cfg.Filesystem.Iterations)
	assert.Equal(t, 100, cfg.Filesystem.Warmup)
	assert.Equal(t, "/dev/null", cfg.Filesystem.Device)
	assert.Equal(t, 4096, cfg.Filesystem.BlockSize)
	assert.Equal(t, 64, cfg.Pipe.MessageSize)
	assert.Equal(t, 65536, cfg.Pipe.DrainSize)
	assert.Equal(t, 0, cfg.Sync.DriverCore)
	assert.Equal(t, 1, cfg.Sync.WorkerCore)
	assert.Equal(t, 10*time.Millisecond, cfg.Sync.Settle)
	assert.Equal(t, 50*time.Microsecond, cfg.Sync.Gap)
	assert.Equal(t, 10_000, cfg.KernelTime.Iterations)
	assert.Equal(t, SpinlockSourceUser, cfg.Spinlock.Source)
}

func TestLoadEmptyPath(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	path := writeConfig(t, `
output_dir: /tmp/primlat
filesystem:
  iterations: 500
  device: /dev/zero
sync:
  worker_core: 3
  gap: 100us
spinlock:
  source: proc
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "/tmp/primlat", cfg.OutputDir)
	assert.Equal(t, 500, cfg.Filesystem.Iterations)
	assert.Equal(t, 100, cfg.Filesystem.Warmup, "unset keys keep their defaults")
	assert.Equal(t, "/dev/zero", cfg.Filesystem.Device)
	assert.Equal(t, 3, cfg.Sync.WorkerCore)
	assert.Equal(t, 100*time.Microsecond, cfg.Sync.Gap)
	assert.Equal(t, SpinlockSourceProc, cfg.Spinlock.Source)
}

func TestLoadEmptyFile(t *testing.T) {
	cfg, err := Load(writeConfig(t, ""))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	_, err := Load(writeConfig(t, "filesystem:\n  iteratons: 5\n"))
	assert.Error(t, err)
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		want   string
	}{
		{"zero iterations", func(c *Config) { c.Pipe.Iterations = 0 }, "pipe.iterations"},
		{"negative warmup", func(c *Config) { c.Semaphore.Warmup = -1 }, "semaphore.warmup"},
		{"negative core", func(c *Config) { c.Filesystem.Core = -2 }, "filesystem.core"},
		{"same cores", func(c *Config) { c.Sync.WorkerCore = 0 }, "must differ"},
		{"zero block", func(c *Config) { c.Filesystem.BlockSize = 0 }, "block_size"},
		{"zero message", func(c *Config) { c.Pipe.MessageSize = 0 }, "message_size"},
		{"small drain", func(c *Config) { c.Pipe.DrainSize = 8 }, "drain_size"},
		{"bad source", func(c *Config) { c.Spinlock.Source = "kmod" }, "spinlock.source"},
		{"no output", func(c *Config) { c.OutputDir = "" }, "output_dir"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.want), "error %q should mention %q", err, tt.want)
		})
	}
}

func TestSetIterations(t *testing.T) {
	cfg := Default()
	cfg.SetIterations(7)

	assert.Equal(t, 7, cfg.Filesystem.Iterations)
	assert.Equal(t, 7, cfg.Pipe.Iterations)
	assert.Equal(t, 7, cfg.Semaphore.Iterations)
	assert.Equal(t, 7, cfg.KernelTime.Iterations)
	assert.Equal(t, 7, cfg.Spinlock.Iterations)
}
