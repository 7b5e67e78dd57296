package requestctx

import (
	"context"
	"strings"

	"go.uber.org/zap"
)

type contextKey string

const (
	loggerContextKey contextKey = "github.com/openstats/data-api/internal/platform/requestctx/logger"
	traceContextKey  contextKey = "github.com/openstats/data-api/internal/platform/requestctx/trace"
	actorContextKey  contextKey = "github.com/openstats/data-api/internal/platform/requestctx/actor"
)

var noopLogger = zap.NewNop()

// TraceInfo captures trace metadata propagated through request context.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the logger in context for downstream consumers.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerContextKey, logger)
}

// Logger retrieves the zap logger from context or returns a no-op logger.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerContextKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared noop logger instance used across the package.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores the trace metadata on the context for downstream usage.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceContextKey, info)
}

// Trace retrieves the trace metadata from context when available.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceContextKey).(TraceInfo)
	if !ok {
		return TraceInfo{}, false
	}
	return info, true
}

// TraceID extracts the trace identifier from context when present.
func TraceID(ctx context.Context) string {
	info, ok := Trace(ctx)
	if !ok {
		return ""
	}
	return info.TraceID
}

// WithActor records the acting reviewer or system principal for the request.
func WithActor(ctx context.Context, actor string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	actor = strings.TrimSpace(actor)
	if actor == "" {
		return ctx
	}
	return context.WithValue(ctx, actorContextKey, actor)
}

// Actor retrieves the acting principal from context when present.
func Actor(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if actor, ok := ctx.Value(actorContextKey).(string); ok {
		return actor
	}
	return ""
}
