package internal

import (
	"context"
	"time"
)

type ctxKey string

const ContextServiceKey ctxKey = "serviceName"

// ServiceFromContext returns the authenticated caller service name, or "".
func ServiceFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if svc, ok := ctx.Value(ContextServiceKey).(string); ok {
		return svc
	}
	return ""
}

func ContextWithService(ctx context.Context, service string) context.Context {
	return context.WithValue(ctx, ContextServiceKey, service)
}

// WithTimeout returns a context with timeout, defaulting to 5 seconds if duration is zero or negative.
func WithTimeout(ctx context.Context, duration time.Duration) (context.Context, context.CancelFunc) {
	if duration <= 0 {
		duration = 5 * time.Second
	}
	return context.WithTimeout(ctx, duration)
}
