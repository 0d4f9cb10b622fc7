// Package logging builds the structured logger the lakeferry CLI hands to
// its collaborators.
package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"
)

// Option adjusts how the logger is built.
type Option func(*options)

type options struct {
	out  io.Writer
	json bool
}

// WithOutput sends log output to w instead of stderr.
func WithOutput(w io.Writer) Option {
	return func(o *options) { o.out = w }
}

// WithJSON emits JSON records instead of text lines, for runs whose logs are
// collected by tooling rather than read in a terminal.
func WithJSON() Option {
	return func(o *options) { o.json = true }
}

// New builds a structured logger. Every record carries the application name
// and pid so interleaved output from concurrent transfers stays
// attributable.
func New(app, level string, opts ...Option) *slog.Logger {
	o := options{out: os.Stderr}
	for _, opt := range opts {
		opt(&o)
	}

	hopts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if o.json {
		h = slog.NewJSONHandler(o.out, hopts)
	} else {
		h = slog.NewTextHandler(o.out, hopts)
	}

	return slog.New(h).With(
		slog.String("app", app),
		slog.Int("pid", os.Getpid()),
	)
}

// ParseLevel maps a configured level string to a slog level. Unknown values
// fall back to info.
func ParseLevel(level string) slog.Level {
	switch strings.ToLower(level) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
