package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/raywall/defect-metrics/analyzer"
)

var linkCmd = &cobra.Command{
	Use:   "link <open|closed|opened> [weeks] [severity]",
	Short: "Print a browsable link to the defects behind a metric",
	Example: `  defects link open
  defects link open S2
  defects link closed 4
  defects link opened 12 untriaged`,
	Args: cobra.RangeArgs(1, 3),
	RunE: runLink,
}

func init() {
	rootCmd.AddCommand(linkCmd)
}

func parseShape(s string) (analyzer.Shape, error) {
	for _, shape := range []analyzer.Shape{analyzer.OpenTotal, analyzer.ClosedInWindow, analyzer.OpenedInWindow} {
		if shape.String() == s {
			return shape, nil
		}
	}
	return 0, fmt.Errorf("unknown query %q (want open, closed or opened)", s)
}

// parseSeverity accepts S1..S4 (any case) or "untriaged".
func parseSeverity(s string) (analyzer.Severity, error) {
	if strings.EqualFold(s, "untriaged") {
		return analyzer.Untriaged, nil
	}
	for _, sev := range analyzer.Severities() {
		if sev != analyzer.Untriaged && strings.EqualFold(sev.String(), s) {
			return sev, nil
		}
	}
	return 0, fmt.Errorf("unknown severity %q (want S1, S2, S3, S4 or untriaged)", s)
}

func runLink(cmd *cobra.Command, args []string) error {
	shape, err := parseShape(args[0])
	if err != nil {
		return err
	}
	rest := args[1:]

	w := analyzer.Unbounded
	if shape != analyzer.OpenTotal {
		if len(rest) == 0 {
			return fmt.Errorf("%s needs a window in weeks", shape)
		}
		n, err := strconv.Atoi(rest[0])
		if err != nil {
			return fmt.Errorf("invalid weeks %q: %w", rest[0], err)
		}
		if w, err = analyzer.Weeks(n); err != nil {
			return err
		}
		rest = rest[1:]
	}
	if len(rest) > 1 {
		return fmt.Errorf("unexpected arguments: %v", rest[1:])
	}
	var sev analyzer.Severity
	if len(rest) == 1 {
		if sev, err = parseSeverity(rest[0]); err != nil {
			return err
		}
	}

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	a, err := newSession(cfg, newLogger(cfg))
	if err != nil {
		return err
	}
	defer a.Abort()

	var link string
	if len(rest) == 1 {
		link, err = a.SeverityLink(shape, w, sev)
	} else {
		link, err = a.Link(shape, w)
	}
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), link)
	return nil
}
