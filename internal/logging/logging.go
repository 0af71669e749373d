// Package logging builds the process logger. Output is quiet unless debug is
// on, in which case per-phase and per-file diagnostics are printed.
package logging

import (
	"io"
	"log/slog"
)

func New(w io.Writer, debug bool) *slog.Logger {
	level := slog.LevelWarn
	if debug {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// Discard drops everything
func Discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}
