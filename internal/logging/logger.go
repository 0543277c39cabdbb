package logging

import (
	"log/slog"
	"os"
)

// Logger wraps slog for structured logging.
type Logger struct {
	*slog.Logger
}

// New creates a Logger that outputs text or JSON depending on config.
// Debug level is enabled unless production is set.
func New(jsonMode, production bool) *Logger {
	level := slog.LevelDebug
	if production {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if jsonMode {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	} else {
		handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	}
	return &Logger{slog.New(handler)}
}

// Component returns a child logger tagged with a component name, so log
// lines from the queue runtime, orchestrator and cleanup can be told apart.
func (l *Logger) Component(name string) *Logger {
	return &Logger{l.With("component", name)}
}
