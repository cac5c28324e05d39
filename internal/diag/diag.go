// Package diag holds the structured logger and error classification shared
// by the CLI, the pipeline and the HTTP service.
package diag

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"

	"minprint/pkg/models"
)

// NewLogger returns a logger tagged with the run id. format is "json" or
// "text"; level is debug|info|warn|error (default info).
func NewLogger(w io.Writer, level, format, runID string) *slog.Logger {
	opts := &slog.HandlerOptions{Level: ParseLevel(level)}
	var h slog.Handler
	if strings.EqualFold(format, "json") {
		h = slog.NewJSONHandler(w, opts)
	} else {
		h = slog.NewTextHandler(w, opts)
	}
	l := slog.New(h)
	if runID != "" {
		l = l.With("run_id", runID)
	}
	return l
}

// Discard is a logger that drops everything, for tests and library defaults.
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError + 1}))
}

func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
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

// Code is a coarse error category used in log lines.
type Code string

const (
	CodeUnknown       Code = "unknown"
	CodeExtraction    Code = "extraction"
	CodeRasterization Code = "rasterization"
	CodeTimeout       Code = "timeout"
	CodeToolMissing   Code = "tool_missing"
	CodeMalformed     Code = "malformed_number"
	CodeUnrecognized  Code = "unrecognized_carrier"
	CodeCancel        Code = "cancel"
	CodeIO            Code = "io"
)

// Classify maps an error to a Code using sentinels and error types only.
func Classify(err error) Code {
	switch {
	case err == nil:
		return CodeUnknown
	case errors.Is(err, models.ErrToolTimeout):
		return CodeTimeout
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return CodeCancel
	case errors.Is(err, models.ErrToolNotFound):
		return CodeToolMissing
	case errors.Is(err, models.ErrExtraction):
		return CodeExtraction
	case errors.Is(err, models.ErrRasterization):
		return CodeRasterization
	case errors.Is(err, models.ErrMalformedNumber):
		return CodeMalformed
	case errors.Is(err, models.ErrUnrecognizedCarrier):
		return CodeUnrecognized
	}
	var perr *os.PathError
	if errors.As(err, &perr) {
		return CodeIO
	}
	return CodeUnknown
}
