package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/flint-go/flint"

// StartExecutionSpan opens a span around the materialization of a single
// graph node, tagged with the operation kind and backend that executed it.
// Call sites end the span once the node's ResultData is populated.
func StartExecutionSpan(ctx context.Context, opKind string, elementCount int) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "flint.execute_node",
		trace.WithAttributes(
			attribute.String("flint.op_kind", opKind),
			attribute.Int("flint.element_count", elementCount),
		),
	)
}

// StartCompileSpan opens a span around a kernel cache miss that triggers
// OpenCL-class source compilation.
func StartCompileSpan(ctx context.Context, cacheKey string) (context.Context, trace.Span) {
	return otel.Tracer(tracerName).Start(ctx, "flint.compile_kernel",
		trace.WithAttributes(attribute.String("flint.cache_key", cacheKey)),
	)
}

// RecordBackend annotates the current span with which backend (cpu/gpu) a
// node was ultimately dispatched to.
func RecordBackend(span trace.Span, backend string) {
	span.SetAttributes(attribute.String("flint.backend", backend))
}
