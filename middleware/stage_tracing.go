package middleware

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"
)

// TracingStage extracts W3C trace context (traceparent/tracestate) from
// headers, or begins a new root span when absent, via the real
// go.opentelemetry.io/otel SDK rather than a hand-rolled span type. The
// span is ended in the post-handler pass after the telemetry stage has read
// its duration.
type TracingStage struct {
	Tracer trace.Tracer
}

func NewTracingStage(tracerName string) TracingStage {
	return TracingStage{Tracer: otel.Tracer(tracerName)}
}

func (TracingStage) Name() string { return "tracing" }

type carrierHeader struct{ h map[string][]string }

func (c carrierHeader) Get(key string) string {
	v := c.h[key]
	if len(v) == 0 {
		return ""
	}
	return v[0]
}
func (c carrierHeader) Set(key, value string) { c.h[key] = []string{value} }
func (c carrierHeader) Keys() []string {
	keys := make([]string, 0, len(c.h))
	for k := range c.h {
		keys = append(keys, k)
	}
	return keys
}

func (s TracingStage) Process(req *RequestView, next Next) *Response {
	base := req.Ctx
	if base == nil {
		base = context.Background()
	}
	propagator := propagation.TraceContext{}
	carrier := carrierHeader{h: req.Header}
	ctx := propagator.Extract(base, carrier)

	spanName := req.Method + " " + req.URI
	ctx, span := s.Tracer.Start(ctx, spanName)
	defer span.End()

	sc := span.SpanContext()
	req.Context.TraceID = sc.TraceID().String()
	req.Context.SpanID = sc.SpanID().String()

	req.Ctx = ctx
	resp := next(req)

	if resp.Header == nil {
		resp.Header = make(map[string][]string)
	}
	outCarrier := carrierHeader{h: resp.Header}
	propagator.Inject(ctx, outCarrier)
	return resp
}
