package main

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"
)

// Log output formats.
const (
	logFormatJSON = "json"
	logFormatText = "text"
)

// newLogger builds the run logger. Every record carries a run_id so the
// lines of one pipeline execution can be grouped.
func newLogger(w io.Writer, format, level string) (*slog.Logger, error) {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var h slog.Handler
	switch format {
	case logFormatJSON:
		h = slog.NewJSONHandler(w, opts)
	case logFormatText:
		h = slog.NewTextHandler(w, opts)
	default:
		return nil, fmt.Errorf("invalid log format %q: must be %s or %s", format, logFormatJSON, logFormatText)
	}
	return slog.New(h).With("run_id", uuid.NewString()), nil
}
