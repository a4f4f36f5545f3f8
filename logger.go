package plotgen

import (
	"context"
	"io"
	"log/slog"
	"os"
	"time"
)

// Logger wraps slog.Logger with plotgen-specific context.
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
		Logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
}

// WithRun adds the run name to the logger.
func (l *Logger) WithRun(run string) *Logger {
	return &Logger{
		Logger: l.Logger.With("run", run),
	}
}

// WithPhase adds a phase field to the logger.
func (l *Logger) WithPhase(phase Phase) *Logger {
	return &Logger{
		Logger: l.Logger.With("phase", phase.String()),
	}
}

// WithTable adds a table id field to the logger.
func (l *Logger) WithTable(table int) *Logger {
	return &Logger{
		Logger: l.Logger.With("table", table),
	}
}

// LogBatch logs the completion of one forward batch.
func (l *Logger) LogBatch(ctx context.Context, batch, total, entries int, bytes int64, duration time.Duration) {
	l.DebugContext(ctx, "batch persisted",
		"batch", batch+1,
		"of", total,
		"entries", entries,
		"bytes", bytes,
		"duration", duration,
	)
}

// LogSort logs the outcome of sorting one table.
func (l *Logger) LogSort(ctx context.Context, table int, stats SortStats, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "sort failed",
			"table", table,
			"error", err,
		)
		return
	}
	if stats.Skipped > 0 {
		l.WarnContext(ctx, "sort completed with skipped records",
			"table", table,
			"output", stats.Output,
			"skipped", stats.Skipped,
		)
	}
	l.InfoContext(ctx, "table sorted",
		"table", table,
		"records", stats.Output,
		"runs", stats.Runs,
		"passes", stats.Passes,
		"duration", duration,
	)
}

// LogCollation logs the outcome of collating one table.
func (l *Logger) LogCollation(ctx context.Context, table, input, kept int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "collation failed",
			"table", table,
			"error", err,
		)
		return
	}
	l.DebugContext(ctx, "table collated",
		"table", table,
		"input", input,
		"kept", kept,
		"dropped", input-kept,
	)
}

// LogPhase logs the end of a pipeline phase.
func (l *Logger) LogPhase(ctx context.Context, phase Phase, duration time.Duration, err error) {
	if err != nil {
		l.ErrorContext(ctx, "phase failed",
			"phase", phase.String(),
			"duration", duration,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "phase completed",
			"phase", phase.String(),
			"duration", duration,
		)
	}
}
