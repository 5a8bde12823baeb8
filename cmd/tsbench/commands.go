package main

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"tsbench/internal/config"
	"tsbench/internal/runmetrics"
	"tsbench/internal/seriesio"
)

// version is set at build time with -ldflags "-X main.version=..."
var version = "dev"

var (
	verbose     bool
	jobPath     string
	metricsPath string

	rootCmd = &cobra.Command{
		Use:   "tsbench",
		Short: "Benchmark and reconcile time series",
		Long: `tsbench adjusts high-frequency series to low-frequency benchmarks
(Denton, Cholette, growth rates preservation), reconciles systems of series
under accounting constraints, and disaggregates low-frequency series.`,
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
	}

	runCmd = &cobra.Command{
		Use:   "run",
		Short: "Run the job described by a YAML file",
		Args:  cobra.NoArgs,
		RunE:  runRun,
	}

	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "tsbench", version)
		},
	}
)

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "log the progress of the solvers")

	runCmd.Flags().StringVarP(&jobPath, "config", "c", "job.yaml", "job file")
	runCmd.Flags().StringVar(&metricsPath, "metrics", "", "write Prometheus metrics of the run to this file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(versionCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	job, err := config.Load(jobPath)
	if err != nil {
		return err
	}
	slog.Info("running job", "method", job.Method, "config", jobPath)

	metrics := runmetrics.New()
	out, err := runJob(cmd.Context(), job, cmd.OutOrStdout(), metrics)
	if metricsPath != "" {
		if merr := metrics.WriteFile(metricsPath); merr != nil {
			slog.Warn("failed to write the metrics", "path", metricsPath, "err", merr)
		}
	}
	if out != nil {
		if werr := os.MkdirAll(filepath.Dir(job.Output), 0755); werr != nil {
			return werr
		}
		if werr := seriesio.WriteCSV(job.Output, out); werr != nil {
			return fmt.Errorf("write output: %w", werr)
		}
		slog.Info("results written", "path", job.Output, "series", len(out))
	}
	return err
}
