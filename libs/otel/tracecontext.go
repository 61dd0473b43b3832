package otelx

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
)

func TraceContextStrings(ctx context.Context) (traceparent string, tracestate string) {
	carrier := TraceContextMap(ctx)
	return carrier["traceparent"], carrier["tracestate"]
}

// TraceContextMap returns the propagation fields of ctx, suitable for message
// headers or stream entry fields.
func TraceContextMap(ctx context.Context) map[string]string {
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	return carrier
}

func ContextWithTraceContext(ctx context.Context, traceparent string, tracestate string) context.Context {
	if traceparent == "" && tracestate == "" {
		return ctx
	}
	carrier := propagation.MapCarrier{
		"traceparent": traceparent,
		"tracestate":  tracestate,
	}
	return otel.GetTextMapPropagator().Extract(ctx, carrier)
}
