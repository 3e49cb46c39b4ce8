package server

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/artifact"
	"github.com/archimedes-run/archimedes/inject"
	"github.com/archimedes-run/archimedes/middleware"
	"github.com/archimedes-run/archimedes/resolver"
	"github.com/rs/zerolog"
)

func buildResolver(t *testing.T) *resolver.Resolver {
	t.Helper()
	doc := map[string]any{
		"service": "widgets",
		"operations": []map[string]any{
			{"id": "getWidget", "method": "GET", "path": "/widgets/{id}"},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	a, err := artifact.Build(raw)
	if err != nil {
		t.Fatalf("build artifact: %v", err)
	}
	r, err := resolver.New(a)
	if err != nil {
		t.Fatalf("new resolver: %v", err)
	}
	return r
}

func echoOperationStage() middleware.Stage {
	return middleware.StageFunc{
		StageName: "handler",
		Fn: func(req *middleware.RequestView, next middleware.Next) *middleware.Response {
			if req.Context.OperationID == "" {
				return next(req)
			}
			resp := middleware.NewResponse(http.StatusOK)
			resp.Body = []byte(`{"operation_id":"` + req.Context.OperationID + `"}`)
			resp.Header.Set("Content-Type", "application/json")
			return resp
		},
	}
}

func notFoundTerminal(req *middleware.RequestView) *middleware.Response {
	status := http.StatusNotFound
	resp := middleware.NewResponse(status)
	resp.Body = archerr.Render(status, "NOT_FOUND", "no handler registered", req.Context.RequestID)
	return resp
}

func buildTestServer(t *testing.T) http.Handler {
	t.Helper()
	res := buildResolver(t)
	pipeline := middleware.Build([]middleware.Stage{
		middleware.RequestIDStage{},
		echoOperationStage(),
	}, notFoundTerminal)

	opts := Options{
		Resolver:     res,
		Pipeline:     pipeline,
		Container:    inject.New(),
		Logger:       zerolog.Nop(),
		MaxBodyBytes: 1 << 20,
	}
	srv := New(opts)
	return srv.httpServer.Handler
}

func TestBridgeHandlerResolvesKnownOperation(t *testing.T) {
	handler := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/widgets/42", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "getWidget") {
		t.Fatalf("expected body to reference getWidget operation, got %s", rec.Body.String())
	}
	if rec.Header().Get("X-Request-ID") == "" {
		t.Fatal("expected request id header to be set")
	}
}

func TestBridgeHandlerUnresolvedOperationReturns404(t *testing.T) {
	handler := buildTestServer(t)
	req := httptest.NewRequest(http.MethodGet, "/does-not-exist", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if !archerr.IsCanonicalEnvelope(rec.Body.Bytes()) {
		t.Fatalf("expected canonical error envelope, got %s", rec.Body.String())
	}
}

func TestBridgeHandlerRejectsOversizedBody(t *testing.T) {
	handler := buildTestServer(t)
	oversized := strings.Repeat("x", (1<<20)+1)
	req := httptest.NewRequest(http.MethodGet, "/widgets/42", strings.NewReader(oversized))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413, got %d", rec.Code)
	}
}

func TestHealthAndReadyEndpoints(t *testing.T) {
	handler := buildTestServer(t)
	for _, path := range []string{"/_archimedes/health", "/_archimedes/ready"} {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 from %s, got %d", path, rec.Code)
		}
	}
}
