// Package logging builds the charmbracelet logger handed to the analyzer,
// backends and config watcher.
package logging

import (
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// LevelEnv names the environment variable that takes precedence over any
// level set in the config file or on the command line.
const LevelEnv = "DEFECTS_LOG_LEVEL"

var levels = map[string]log.Level{
	"debug":   log.DebugLevel,
	"info":    log.InfoLevel,
	"warn":    log.WarnLevel,
	"warning": log.WarnLevel,
	"error":   log.ErrorLevel,
	"fatal":   log.FatalLevel,
}

// Options controls where log lines go and how much is written.
type Options struct {
	Level      string
	Output     io.Writer // nil means stderr
	Prefix     string
	TimeFormat string
	Timestamps bool
}

// DefaultOptions writes timestamped info lines to stderr, leaving stdout to
// the report itself.
func DefaultOptions() Options {
	return Options{
		Level:      "info",
		Output:     os.Stderr,
		TimeFormat: time.RFC3339,
		Timestamps: true,
	}
}

// ParseLevel is case-insensitive; unrecognised names fall back to info.
func ParseLevel(name string) log.Level {
	if l, ok := levels[strings.ToLower(strings.TrimSpace(name))]; ok {
		return l
	}
	return log.InfoLevel
}

// New returns a logger for opts, with LevelEnv applied on top.
func New(opts Options) *log.Logger {
	if env, ok := os.LookupEnv(LevelEnv); ok && env != "" {
		opts.Level = env
	}
	out := opts.Output
	if out == nil {
		out = os.Stderr
	}
	return log.NewWithOptions(out, log.Options{
		Level:           ParseLevel(opts.Level),
		Prefix:          opts.Prefix,
		TimeFormat:      opts.TimeFormat,
		ReportTimestamp: opts.Timestamps,
	})
}
