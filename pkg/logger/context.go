package logger

import (
	"context"
	"log/slog"
)

type ctxKey struct{}

// With attaches a logger carrying the given fields to the context. Request
// middleware uses it to stamp the trace id onto every downstream log line.
func With(ctx context.Context, fields ...any) context.Context {
	return context.WithValue(ctx, ctxKey{}, From(ctx).With(fields...))
}

// From returns the context's logger, falling back to the process logger.
func From(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok {
		return l
	}
	return LoggerWrapper()
}
