package main

import (
	"fmt"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/raywall/defect-metrics/config"
	"github.com/raywall/defect-metrics/logging"
)

var (
	configPath string
	logLevel   string
)

var rootCmd = &cobra.Command{
	Use:   "defects",
	Short: "Maintenance metrics for a defect tracker",
	Long: `defects queries an issue tracker and reports rolling maintenance metrics:
open, closed and newly opened defect counts, severity-weighted scores,
maintenance effectiveness and projected burn-down time.

Examples:
  defects report                       # all configured windows as a table
  defects report --weeks 4,12 -f json  # selected windows as JSON
  defects report --watch               # rerun whenever the config changes
  defects link closed 4 S1             # browsable list of closed S1 defects`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to YAML config file (default: built-in defaults)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug | info | warn | error")
}

func loadConfig() (*config.Config, error) {
	if configPath == "" {
		return config.Default(), nil
	}
	return config.Load(configPath)
}

func newLogger(cfg *config.Config) *log.Logger {
	opts := logging.DefaultOptions()
	opts.Level = cfg.LogLevel
	if logLevel != "" {
		opts.Level = logLevel
	}
	return logging.New(opts)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
