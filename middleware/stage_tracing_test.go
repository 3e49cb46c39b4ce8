package middleware

import (
	"net/http"
	"testing"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func realTracingStage() TracingStage {
	tp := sdktrace.NewTracerProvider()
	return TracingStage{Tracer: tp.Tracer("archimedes-test")}
}

func TestTracingStageAssignsTraceAndSpanIDs(t *testing.T) {
	s := realTracingStage()
	req := &RequestView{Method: "GET", URI: "/widgets/1", Header: make(http.Header), Context: &MiddlewareContext{}}

	resp := s.Process(req, func(r *RequestView) *Response { return NewResponse(200) })

	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	if req.Context.TraceID == "" || req.Context.SpanID == "" {
		t.Fatal("expected trace id and span id to be populated")
	}
	if req.Ctx == nil {
		t.Fatal("expected the span-bearing context to be propagated onto RequestView.Ctx")
	}
}

func TestTracingStageInjectsTraceparentIntoResponseHeader(t *testing.T) {
	s := realTracingStage()
	req := &RequestView{Method: "GET", URI: "/widgets/1", Header: make(http.Header), Context: &MiddlewareContext{}}

	resp := s.Process(req, func(r *RequestView) *Response { return NewResponse(200) })

	if resp.Header.Get("traceparent") == "" {
		t.Fatal("expected traceparent header to be injected into the response")
	}
}
