package logging

import (
	"io"
	"log/slog"
	"os"
)

// NewLogger creates a structured logger appropriate for the environment.
// Production uses JSON format at info level, development uses
// human-readable text at debug level. Every record carries a service
// attribute so logs aggregated from several daemons stay attributable.
func NewLogger(env, service string) *slog.Logger {
	return newLogger(env, service, os.Stdout)
}

func newLogger(env, service string, w io.Writer) *slog.Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if env == "production" {
		handler = slog.NewJSONHandler(w, opts)
	} else {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(w, opts)
	}

	return slog.New(handler).With(slog.String("service", service))
}
