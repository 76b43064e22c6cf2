package rangelog

import (
	"context"
	"log/slog"
	"os"
)

// Logger wraps slog.Logger with index-specific helpers, keeping field
// names consistent across operations.
type Logger struct {
	*slog.Logger
}

// NewLogger creates a Logger with the given handler. A nil handler
// means a text handler to stderr at info level.
func NewLogger(handler slog.Handler) *Logger {
	if handler == nil {
		handler = slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: slog.LevelInfo,
		})
	}
	return &Logger{Logger: slog.New(handler)}
}

// NewJSONLogger creates a Logger that outputs JSON-formatted logs.
func NewJSONLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NewTextLogger creates a Logger that outputs human-readable text logs.
func NewTextLogger(level slog.Level) *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	}))}
}

// NoopLogger creates a Logger that discards all log output.
func NoopLogger() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: slog.Level(1000), // unreachable level
	}))}
}

// LogFlush logs one buffer flush.
func (l *Logger) LogFlush(ctx context.Context, buffer uint64, base string, groups int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "flush failed",
			"buffer", buffer,
			"segment", base,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "flush completed",
			"buffer", buffer,
			"segment", base,
			"groups", groups,
		)
	}
}

// LogReplay logs a startup replay pass over one journal file.
func (l *Logger) LogReplay(ctx context.Context, entries int, recovered bool, err error) {
	switch {
	case err != nil:
		l.ErrorContext(ctx, "replay failed",
			"entries_replayed", entries,
			"error", err,
		)
	case recovered:
		l.WarnContext(ctx, "replay stopped at crash debris",
			"entries_replayed", entries,
		)
	default:
		l.InfoContext(ctx, "replay completed",
			"entries_replayed", entries,
		)
	}
}

// LogFileSetChange logs an on-disk file-set transition.
func (l *Logger) LogFileSetChange(ctx context.Context, removed, added int, err error) {
	if err != nil {
		l.ErrorContext(ctx, "file set change failed",
			"removed", removed,
			"added", added,
			"error", err,
		)
	} else {
		l.DebugContext(ctx, "file set changed",
			"removed", removed,
			"added", added,
		)
	}
}

// LogArchive logs a best-effort segment archive attempt.
func (l *Logger) LogArchive(ctx context.Context, base string, err error) {
	if err != nil {
		l.WarnContext(ctx, "segment archive failed",
			"segment", base,
			"error", err,
		)
	} else {
		l.InfoContext(ctx, "segment archived",
			"segment", base,
		)
	}
}
