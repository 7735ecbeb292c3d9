package flowsync

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// tracerName identifies spans emitted by this package.
const tracerName = "github.com/AltairaLabs/connect-flowsync/internal/flowsync"

// Run phases, used as span names and metric labels.
const (
	PhaseLoad    = "load"
	PhaseCollect = "collect"
	PhasePlan    = "plan"
	PhaseCreate  = "create"
	PhaseArchive = "archive"
	PhaseUpdate  = "update"
	PhaseExport  = "export"
)

// startSpan starts a span on the globally registered tracer provider. With
// no provider installed the span is a no-op.
func startSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, name, trace.WithAttributes(attrs...))
}

// endSpan records err on span, if any, and ends it.
func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func documentAttrs(r Resource) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String("flowsync.document", r.Name),
		attribute.String("flowsync.class", resTypeOf(r)),
	}
}
