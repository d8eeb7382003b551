package retrievalcache

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with retrieval-specific helpers so the layer
// logs with consistent field names.
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
func NoopLogger() *Logger {
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // Unreachable level
	})
	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithScope adds a scope field to the logger.
func (l *Logger) WithScope(scope string) *Logger {
	return &Logger{
		Logger: l.Logger.With("scope", scope),
	}
}

// LogSearch logs a search operation.
func (l *Logger) LogSearch(ctx context.Context, query string, limit int, scope string, results int, cached bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "search failed",
			"query_len", len(query),
			"limit", limit,
			"scope", scope,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "search completed",
			"query_len", len(query),
			"limit", limit,
			"scope", scope,
			"results", results,
			"cached", cached,
		)
	}
}

// LogEmbed logs an embedding computation.
func (l *Logger) LogEmbed(ctx context.Context, query string, dimension int, cached bool, err error) {
	if err != nil {
		l.ErrorContext(ctx, "embed failed",
			"query_len", len(query),
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "embed completed",
			"query_len", len(query),
			"dimension", dimension,
			"cached", cached,
		)
	}
}

// LogInvalidate logs a scope invalidation.
func (l *Logger) LogInvalidate(scope string, removed int) {
	l.Info("scope invalidated",
		"scope", scope,
		"removed", removed,
	)
}

// LogCleanup logs an expiry sweep.
func (l *Logger) LogCleanup(removed int) {
	l.Debug("expired results swept",
		"removed", removed,
	)
}
