// Package main provides the CLI entry point for primlat, a latency
// microbenchmark suite for OS primitives.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/weiihann/primlat/config"
	"github.com/weiihann/primlat/harness"
	"github.com/weiihann/primlat/report"
	"github.com/weiihann/primlat/sink"
	"github.com/weiihann/primlat/workload"
)

func main() {
	level := new(slog.LevelVar)
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	root := newRootCmd(logger, level)
	err := root.ExecuteContext(ctx)
	stop()

	if err != nil {
		logger.Error("primlat failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func newRootCmd(logger *slog.Logger, level *slog.LevelVar) *cobra.Command {
	var logLevel string

	root := &cobra.Command{
		Use:   "primlat",
		Short: "Latency microbenchmarks for OS primitives",
		Long: `Primlat measures the latency distribution of file descriptor
operations, pipe transfers, cross-core semaphore round trips, kernel time
spent while blocked and uncontended spinlock acquisition, writing one CSV
artifact per primitive.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(_ *cobra.Command, _ []string) error {
			if err := level.UnmarshalText([]byte(logLevel)); err != nil {
				return fmt.Errorf("invalid --log-level: %w", err)
			}

			return nil
		},
	}

	root.PersistentFlags().StringVar(&logLevel, "log-level", "info",
		"Log level: debug, info, warn, error")

	root.AddCommand(newRunCmd(logger), newSummaryCmd())

	return root
}

func newRunCmd(logger *slog.Logger) *cobra.Command {
	var (
		configPath     string
		outputDir      string
		benchmarks     []string
		iterations     int
		spinlockSource string
		outputJSON     bool
	)

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the benchmarks and write their artifacts",
		Long: `Run the selected benchmarks, write one CSV artifact per measured
primitive and a manifest.json into the output directory, then print a
latency summary.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runBenchmarks(cmd.Context(), logger, cmd.OutOrStdout(), runConfig{
				configPath:     configPath,
				outputDir:      outputDir,
				benchmarks:     benchmarks,
				iterations:     iterations,
				spinlockSource: spinlockSource,
				outputJSON:     outputJSON,
			})
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "",
		"Path to a YAML config file (defaults apply to unset keys)")
	flags.StringVar(&outputDir, "output-dir", "",
		"Directory for the CSV artifacts (overrides the config)")
	flags.StringSliceVar(&benchmarks, "benchmarks", nil,
		"Benchmarks to run (default all): "+fmt.Sprint(workload.Names()))
	flags.IntVar(&iterations, "iterations", 0,
		"Override the iteration count of every benchmark")
	flags.StringVar(&spinlockSource, "spinlock-source", "",
		"Spinlock sample source: user or proc (overrides the config)")
	flags.BoolVar(&outputJSON, "json", false,
		"Output the summary as JSON instead of a table")

	return cmd
}

type runConfig struct {
	configPath     string
	outputDir      string
	benchmarks     []string
	iterations     int
	spinlockSource string
	outputJSON     bool
}

func (rc runConfig) load() (*config.Config, error) {
	cfg, err := config.Load(rc.configPath)
	if err != nil {
		return nil, err
	}

	if rc.outputDir != "" {
		cfg.OutputDir = rc.outputDir
	}

	if rc.iterations != 0 {
		cfg.SetIterations(rc.iterations)
	}

	if rc.spinlockSource != "" {
		cfg.Spinlock.Source = rc.spinlockSource
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

func runBenchmarks(
	ctx context.Context,
	logger *slog.Logger,
	stdout io.Writer,
	rc runConfig,
) error {
	cfg, err := rc.load()
	if err != nil {
		return err
	}

	benches, err := workload.Select(rc.benchmarks)
	if err != nil {
		return err
	}

	runID := uuid.NewString()
	logger = logger.With(slog.String("run_id", runID))

	logger.InfoContext(ctx, "starting benchmarks",
		slog.String("output_dir", cfg.OutputDir),
		slog.Any("benchmarks", rc.benchmarks),
	)

	// Step 1: Prepare the output directory.
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}

	manifest := report.Manifest{
		RunID:     runID,
		StartedAt: time.Now().UTC(),
		Host:      currentHost(),
		Config:    cfg,
	}

	// Step 2: Run each benchmark and flush its artifacts.
	summaries := make([]report.Summary, 0, len(harness.Kinds()))

	for _, b := range benches {
		bl := logger.With(slog.String("benchmark", b.Name))

		results, runErr := b.Run(ctx, workload.Env{Config: cfg, Logger: bl})

		for _, r := range results {
			if err := writeResult(ctx, bl, r); err != nil {
				return err
			}

			manifest.Runs = append(manifest.Runs,
				report.NewManifestRun(r.Run, filepath.Base(r.Artifact.Path), r.Err))

			if len(r.Run.Samples) == 0 {
				continue
			}

			s, err := report.Summarize(filepath.Base(r.Artifact.Path), r.Run.Samples, 0)
			if err != nil {
				return err
			}

			summaries = append(summaries, s)
		}

		if runErr != nil {
			return fmt.Errorf("%s: %w", b.Name, runErr)
		}
	}

	// Step 3: Record what was measured.
	if err := report.WriteManifest(filepath.Join(cfg.OutputDir, report.ManifestFile), manifest); err != nil {
		return err
	}

	// Step 4: Print the summary.
	if len(summaries) > 0 {
		if rc.outputJSON {
			err = report.GenerateJSON(stdout, summaries)
		} else {
			err = report.Generate(stdout, summaries)
		}

		if err != nil {
			return fmt.Errorf("generate report: %w", err)
		}
	}

	logger.InfoContext(ctx, "benchmarks complete", slog.Int("runs", len(manifest.Runs)))

	return nil
}

// writeResult flushes one run. Only a failure to create the artifact is
// fatal; a failure while writing leaves a partial file behind.
func writeResult(ctx context.Context, logger *slog.Logger, r workload.Result) error {
	err := sink.Write(r.Artifact, r.Run.Samples)

	switch {
	case errors.Is(err, sink.ErrOpen):
		return err
	case err != nil:
		logger.WarnContext(ctx, "artifact incomplete",
			slog.String("path", r.Artifact.Path),
			slog.String("error", err.Error()),
		)
	default:
		logger.DebugContext(ctx, "artifact written",
			slog.String("path", r.Artifact.Path),
			slog.Int("samples", len(r.Run.Samples)),
		)
	}

	return nil
}
