package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/raywall/defect-metrics/analyzer"
	"github.com/raywall/defect-metrics/config"
	"github.com/raywall/defect-metrics/report"
)

var (
	reportFormat string
	reportWeeks  []int
	reportOutput string
	reportWatch  bool
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Compute maintenance metrics for the configured windows",
	RunE:  runReport,
}

func init() {
	reportCmd.Flags().StringVarP(&reportFormat, "format", "f", report.FormatTable, "Output format: table | json | yaml | prom")
	reportCmd.Flags().IntSliceVarP(&reportWeeks, "weeks", "w", nil, "Windows in weeks (overrides config)")
	reportCmd.Flags().StringVarP(&reportOutput, "output", "o", "", "Also export the report as JSON to this file")
	reportCmd.Flags().BoolVar(&reportWatch, "watch", false, "Recompute whenever the config file changes")
	rootCmd.AddCommand(reportCmd)
}

func runReport(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger := newLogger(cfg)

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := generate(ctx, cfg, logger, cmd.OutOrStdout()); err != nil {
		if !reportWatch {
			return err
		}
		logger.Error("report failed", "err", err)
	}
	if !reportWatch {
		return nil
	}
	if configPath == "" {
		return fmt.Errorf("--watch requires --config")
	}
	return config.Watch(ctx, configPath, logger, func(next *config.Config) {
		// each reload starts a fresh session so nothing stale is reused
		if err := generate(ctx, next, newLogger(next), cmd.OutOrStdout()); err != nil {
			logger.Error("report failed", "err", err)
		}
	})
}

func windows(cfg *config.Config) ([]analyzer.Window, error) {
	weeks := cfg.Windows
	if len(reportWeeks) > 0 {
		weeks = reportWeeks
	}
	out := make([]analyzer.Window, 0, len(weeks))
	for _, n := range weeks {
		w, err := analyzer.Weeks(n)
		if err != nil {
			return nil, err
		}
		out = append(out, w)
	}
	return out, nil
}

// generate runs one session to completion. Interrupting ctx aborts the
// session's in-flight fetches.
func generate(ctx context.Context, cfg *config.Config, logger *log.Logger, out io.Writer) error {
	ws, err := windows(cfg)
	if err != nil {
		return err
	}
	a, err := newSession(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Abort()
	stopAbort := context.AfterFunc(ctx, a.Abort)
	defer stopAbort()

	logger.Info("computing report", "backend", cfg.Backend, "windows", len(ws))
	r, err := report.Build(ctx, a, ws)
	if err != nil {
		return err
	}
	if reportOutput != "" {
		if err := r.Export(reportOutput); err != nil {
			return fmt.Errorf("export %s: %w", reportOutput, err)
		}
		logger.Info("report exported", "path", reportOutput)
	}
	return r.Write(out, reportFormat)
}
