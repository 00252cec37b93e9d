package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/weiihann/primlat/report"
	"github.com/weiihann/primlat/sink"
)

func newSummaryCmd() *cobra.Command {
	var (
		format     string
		offsetNs   float64
		outputJSON bool
	)

	cmd := &cobra.Command{
		Use:   "summary <artifact.csv>...",
		Short: "Summarize written artifacts",
		Long: `Read one or more CSV artifacts and print mean, median, standard
deviation, min, max, the 95% confidence interval of the mean and the p50, p95
and p99 percentiles of each.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := sink.ParseFormat(format)
			if err != nil {
				return err
			}

			summaries := make([]report.Summary, 0, len(args))

			for _, path := range args {
				samples, err := sink.Read(path, f)
				if err != nil {
					return err
				}

				s, err := report.Summarize(filepath.Base(path), samples, offsetNs)
				if err != nil {
					return err
				}

				summaries = append(summaries, s)
			}

			if outputJSON {
				err = report.GenerateJSON(cmd.OutOrStdout(), summaries)
			} else {
				err = report.Generate(cmd.OutOrStdout(), summaries)
			}

			if err != nil {
				return fmt.Errorf("generate report: %w", err)
			}

			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&format, "format", "auto",
		"Artifact format: lines, joined or auto")
	flags.Float64Var(&offsetNs, "offset-ns", 0,
		"Constant subtracted from every sample, e.g. 50000 for the inter-cycle sleep")
	flags.BoolVar(&outputJSON, "json", false,
		"Output the summary as JSON instead of a table")

	return cmd
}
