package tracing

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// StartPipelineSpan creates a child span for a full pipeline phase
// (request or response).
func StartPipelineSpan(ctx context.Context, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "pipeline."+phase,
		trace.WithAttributes(attribute.String("pipeline.phase", phase)),
	)
}

// StartMiddlewareSpan creates a child span for a single middleware slot
// execution.
func StartMiddlewareSpan(ctx context.Context, name, phase string) (context.Context, trace.Span) {
	return Tracer().Start(ctx, "middleware."+name+"."+phase,
		trace.WithAttributes(
			attribute.String("middleware.name", name),
			attribute.String("middleware.phase", phase),
		),
	)
}

// SetRouteAttributes records the matched route and request id on the
// current span.
func SetRouteAttributes(ctx context.Context, requestID, method, path string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.String("request.id", requestID),
		attribute.String("http.method", method),
		attribute.String("http.route", path),
	)
}

// SetCacheAttributes records whether a request was served from cache and
// from which cache tier.
func SetCacheAttributes(ctx context.Context, hit bool, tier string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(
		attribute.Bool("cache.hit", hit),
		attribute.String("cache.tier", tier),
	)
}

// SetSessionAttributes records the session id (never its fingerprint or
// cookie value) on the current span.
func SetSessionAttributes(ctx context.Context, sessionID string) {
	span := trace.SpanFromContext(ctx)
	span.SetAttributes(attribute.String("session.id", sessionID))
}

// RecordError records an error on the current span.
func RecordError(ctx context.Context, err error) {
	if err != nil {
		trace.SpanFromContext(ctx).RecordError(err)
	}
}
