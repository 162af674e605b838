package events

import (
	"context"
	"log/slog"
)

// Logger writes events to a structured logger.
type Logger struct {
	logger *slog.Logger
}

// NewLogger returns a sink backed by logger.
func NewLogger(logger *slog.Logger) *Logger {
	return &Logger{logger: logger}
}

func (l *Logger) Report(e Event) {
	attrs := []slog.Attr{
		slog.String("event", string(e.Kind)),
		slog.String("context", string(e.Context)),
	}
	if e.RunID != "" {
		attrs = append(attrs, slog.String("run_id", e.RunID))
	}
	if e.Stage != "" {
		attrs = append(attrs, slog.String("stage", e.Stage))
	}
	if e.Task != "" {
		attrs = append(attrs, slog.String("task", e.Task))
	}
	if e.Status != "" {
		attrs = append(attrs, slog.String("status", e.Status))
	}
	if e.Duration > 0 {
		attrs = append(attrs, slog.Duration("duration", e.Duration))
	}
	if e.Err != nil {
		attrs = append(attrs, slog.String("error", e.Err.Error()))
	}
	for k, v := range e.Details {
		attrs = append(attrs, slog.Any(k, v))
	}

	l.logger.LogAttrs(context.Background(), slogLevel(e.Level), message(e), attrs...)
}

func slogLevel(l Level) slog.Level {
	switch l {
	case LevelWarning:
		return slog.LevelWarn
	case LevelError, LevelFailed:
		return slog.LevelError
	case LevelInfo, LevelSuccess:
		return slog.LevelInfo
	default:
		return slog.LevelDebug
	}
}

func message(e Event) string {
	switch e.Kind {
	case StartApp:
		return "🚀 Starting taskgrid."
	case StartStage:
		return "Stage started."
	case FinishStage:
		return "Stage finished."
	case StartTaskStage:
		return "▶️ Task stage started."
	case FinishTaskStage:
		return "Task stage finished."
	case ExecutionFinished:
		return "🏁 Execution finished."
	default:
		return string(e.Kind)
	}
}
