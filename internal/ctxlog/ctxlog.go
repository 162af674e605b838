// Package ctxlog carries the run's *slog.Logger through context.Context so
// runners and the orchestrator log with the same attributes.
package ctxlog

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// WithLogger returns a child context carrying logger. A nil logger leaves
// ctx unchanged.
func WithLogger(ctx context.Context, logger *slog.Logger) context.Context {
	if logger == nil {
		return ctx
	}
	return context.WithValue(ctx, ctxKey{}, logger)
}

// FromContext returns the logger stored in ctx, or slog.Default().
func FromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}

// WithTask returns a context whose logger tags every record with the task name.
func WithTask(ctx context.Context, name string) context.Context {
	return WithLogger(ctx, FromContext(ctx).With("task", name))
}
