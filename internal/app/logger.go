package app

import (
	"io"
	"log/slog"
)

// NewLogger returns a slog.Logger writing to w, formatted by env:
// prod gets JSON at INFO level, everything else text at DEBUG level.
// Tests pass their own writer; main passes os.Stdout.
func NewLogger(env string, w io.Writer) *slog.Logger {
	var handler slog.Handler
	if env == "prod" {
		handler = slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo})
	} else {
		handler = slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug})
	}
	return slog.New(handler)
}
