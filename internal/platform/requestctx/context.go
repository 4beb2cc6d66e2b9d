// Package requestctx carries per-request values (logger, trace, idempotency key) between
// middleware and handlers.
package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type (
	loggerKey      struct{}
	traceKey       struct{}
	idempotencyKey struct{}
)

var noopLogger = zap.NewNop()

// TraceInfo is the Cloud Trace context parsed from the incoming request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

func with(ctx context.Context, key, value any) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, key, value)
}

func lookup[T any](ctx context.Context, key any) (T, bool) {
	var zero T
	if ctx == nil {
		return zero, false
	}
	v, ok := ctx.Value(key).(T)
	return v, ok
}

// WithLogger stores logger for the rest of the request. A nil logger stores a no-op one.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if logger == nil {
		logger = noopLogger
	}
	return with(ctx, loggerKey{}, logger)
}

// LookupLogger reports the logger stored in ctx, if any.
func LookupLogger(ctx context.Context) (*zap.Logger, bool) {
	logger, ok := lookup[*zap.Logger](ctx, loggerKey{})
	return logger, ok && logger != nil
}

// Logger never returns nil.
func Logger(ctx context.Context) *zap.Logger {
	if logger, ok := LookupLogger(ctx); ok {
		return logger
	}
	return noopLogger
}

func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	return with(ctx, traceKey{}, info)
}

func Trace(ctx context.Context) (TraceInfo, bool) {
	return lookup[TraceInfo](ctx, traceKey{})
}

// TraceID is empty when the request carried no trace header.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithIdempotencyKey records the checkout key sent by the client. Blank keys leave ctx as is.
func WithIdempotencyKey(ctx context.Context, key string) context.Context {
	if key = strings.TrimSpace(key); key == "" {
		if ctx == nil {
			return context.Background()
		}
		return ctx
	}
	return with(ctx, idempotencyKey{}, key)
}

func IdempotencyKey(ctx context.Context) string {
	key, _ := lookup[string](ctx, idempotencyKey{})
	return key
}
