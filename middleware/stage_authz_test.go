package middleware

import (
	"context"
	"net/http"
	"testing"

	"github.com/archimedes-run/archimedes/authz"
	"github.com/archimedes-run/archimedes/identity"
)

type fixedEvaluator struct{ decision authz.Decision }

func (f fixedEvaluator) Evaluate(_ context.Context, _ authz.Input) (authz.Decision, error) {
	return f.decision, nil
}
func (fixedEvaluator) Reload(_ context.Context, _ *authz.Bundle) error { return nil }

func TestAuthorizationStageSkipsWhenOperationUnresolved(t *testing.T) {
	a := authz.New("widgets", fixedEvaluator{decision: authz.Decision{Allowed: false}}, authz.ProductionCacheConfig())
	s := AuthorizationStage{Authorizer: a}
	req := &RequestView{Context: &MiddlewareContext{}}

	called := false
	s.Process(req, func(r *RequestView) *Response { called = true; return NewResponse(200) })
	if !called {
		t.Fatal("expected an unresolved operation to bypass authorization entirely")
	}
}

func TestAuthorizationStageDeniesWith403(t *testing.T) {
	a := authz.New("widgets", fixedEvaluator{decision: authz.Decision{Allowed: false, Reason: "blocked by policy"}}, authz.ProductionCacheConfig())
	s := AuthorizationStage{Authorizer: a}
	req := &RequestView{Context: &MiddlewareContext{OperationID: "getWidget", Caller: identity.Anonymous{}}}

	called := false
	resp := s.Process(req, func(r *RequestView) *Response { called = true; return NewResponse(200) })

	if called {
		t.Fatal("expected deny to short-circuit before the handler runs")
	}
	if resp.Status != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.Status)
	}
}

func TestAuthorizationStageAllowsAndStashesDecision(t *testing.T) {
	a := authz.New("widgets", fixedEvaluator{decision: authz.Decision{Allowed: true, Reason: "ok"}}, authz.ProductionCacheConfig())
	s := AuthorizationStage{Authorizer: a}
	req := &RequestView{Context: &MiddlewareContext{OperationID: "getWidget", Caller: identity.Anonymous{}}}

	resp := s.Process(req, func(r *RequestView) *Response { return NewResponse(200) })
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	d, ok := req.Context.Decision()
	if !ok || !d.Allowed {
		t.Fatalf("expected decision to be stashed on the context, got %+v ok=%v", d, ok)
	}
}
