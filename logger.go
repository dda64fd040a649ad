package mheap

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with mheap-specific context.
// This provides structured logging with consistent field names.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a new Logger with the given handler.
// If handler is nil, uses default text handler to stderr.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
// level sets the minimum log level (e.g., slog.LevelDebug, slog.LevelInfo).
func NewJSONLogger(level slog.Level) *Logger {
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// NoopLogger creates a Logger that discards all log output.
// Use this to disable logging entirely.
func NoopLogger() *Logger {
	return &Logger{
		Logger: slog.New(slog.DiscardHandler),
	}
}

// LogArenaAcquired logs a new arena mapping.
func (l *Logger) LogArenaAcquired(ctx context.Context, id uint32, mapped, request int) {
	l.DebugContext(ctx, "arena acquired",
		"arena", id,
		"mapped", mapped,
		"request", request,
	)
}

// LogArenaReleased logs an arena returned to the operating system.
func (l *Logger) LogArenaReleased(ctx context.Context, id uint32, mapped int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "arena release failed",
			"arena", id,
			"mapped", mapped,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "arena released",
			"arena", id,
			"mapped", mapped,
		)
	}
}

// LogAllocFailed logs an allocation that could not be satisfied.
func (l *Logger) LogAllocFailed(ctx context.Context, size int, err error) {
	l.WarnContext(ctx, "allocation failed",
		"size", size,
		"error", err,
	)
}

// LogMisuse logs a detected invalid or double free.
func (l *Logger) LogMisuse(ctx context.Context, op string, p Ptr, err error) {
	l.WarnContext(ctx, "invalid heap operation",
		"op", op,
		"ptr", p.String(),
		"error", err,
	)
}
