package observability

import (
	"context"
	"io"
	"log/slog"

	"github.com/tabletalk/tabletalk/internal/config"
)

type ctxKey string

const (
	traceIDKey     ctxKey = "trace_id"
	executionIDKey ctxKey = "execution_id"
)

func NewLogger(cfg config.Config, writer io.Writer) *slog.Logger {
	if writer == nil {
		writer = io.Discard
	}
	options := &slog.HandlerOptions{Level: cfg.Observability.LogLevel}
	var handler slog.Handler
	if cfg.Observability.LogJSON {
		handler = slog.NewJSONHandler(writer, options)
	} else {
		handler = slog.NewTextHandler(writer, options)
	}
	return slog.New(handler).With(
		slog.String("service", cfg.Service.Name),
		slog.String("profile", string(cfg.Profile)),
	)
}

// DiscardLogger is used by components constructed without a logger.
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func ContextWithTraceID(ctx context.Context, traceID string) context.Context {
	return context.WithValue(ctx, traceIDKey, traceID)
}

func TraceIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(traceIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

func ContextWithExecutionID(ctx context.Context, executionID string) context.Context {
	return context.WithValue(ctx, executionIDKey, executionID)
}

func ExecutionIDFromContext(ctx context.Context) string {
	value, ok := ctx.Value(executionIDKey).(string)
	if !ok {
		return ""
	}
	return value
}

// RequestAttrs returns the correlation attributes carried by ctx.
func RequestAttrs(ctx context.Context) []any {
	attrs := make([]any, 0, 2)
	if traceID := TraceIDFromContext(ctx); traceID != "" {
		attrs = append(attrs, slog.String("trace_id", traceID))
	}
	if executionID := ExecutionIDFromContext(ctx); executionID != "" {
		attrs = append(attrs, slog.String("execution_id", executionID))
	}
	return attrs
}
