package authz

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHTTPEvaluatorParsesRemoteDecision(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body remoteRequestBody
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
			t.Fatalf("decode request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(remoteResponseBody{
			Result: struct {
				Allow  bool   `json:"allow"`
				Reason string `json:"reason"`
			}{Allow: true, Reason: "remote allow"},
		})
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, nil)
	d, err := ev.Evaluate(context.Background(), Input{OperationID: "getWidget"})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed || d.Reason != "remote allow" {
		t.Fatalf("unexpected decision: %+v", d)
	}
}

func TestHTTPEvaluatorTreatsNon200AsError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, nil)
	if _, err := ev.Evaluate(context.Background(), Input{}); err == nil {
		t.Fatal("expected non-200 remote response to surface an error")
	}
}

func TestHTTPEvaluatorTripsBreakerAfterConsecutiveFailures(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	ev := NewHTTPEvaluator(srv.URL, nil)
	var lastErr error
	for i := 0; i < 6; i++ {
		_, lastErr = ev.Evaluate(context.Background(), Input{})
	}
	if lastErr == nil {
		t.Fatal("expected the breaker-tripped call to still surface an error")
	}
}
