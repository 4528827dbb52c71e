package logger

import (
	"log/slog"
	"os"
)

// New returns a stderr slog.Logger tagged with component, for use before
// the configured application logger exists.
func New(component string) *slog.Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})
	return slog.New(handler).With("component", component)
}
