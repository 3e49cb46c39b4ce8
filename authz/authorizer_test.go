package authz

import (
	"context"
	"errors"
	"testing"

	"github.com/archimedes-run/archimedes/identity"
)

type countingEvaluator struct {
	calls   int
	decide  Decision
	failErr error
}

func (e *countingEvaluator) Evaluate(_ context.Context, _ Input) (Decision, error) {
	e.calls++
	if e.failErr != nil {
		return Decision{}, e.failErr
	}
	return e.decide, nil
}
func (e *countingEvaluator) Reload(_ context.Context, _ *Bundle) error { return nil }

func TestAuthorizeCachesAllowAcrossCalls(t *testing.T) {
	ev := &countingEvaluator{decide: Decision{Allowed: true, Reason: "ok"}}
	a := New("widgets", ev, ProductionCacheConfig())
	in := AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "getWidget", Method: "GET"}

	d1 := a.Authorize(context.Background(), in)
	d2 := a.Authorize(context.Background(), in)

	if !d1.Allowed || !d2.Allowed {
		t.Fatal("expected both decisions to allow")
	}
	if ev.calls != 1 {
		t.Fatalf("expected evaluator to be called once due to caching, got %d", ev.calls)
	}
}

func TestAuthorizeDoesNotCacheDenyByDefault(t *testing.T) {
	ev := &countingEvaluator{decide: Decision{Allowed: false, Reason: "nope"}}
	cfg := ProductionCacheConfig()
	cfg.CacheDenies = false
	a := New("widgets", ev, cfg)
	in := AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "getWidget", Method: "GET"}

	a.Authorize(context.Background(), in)
	a.Authorize(context.Background(), in)

	if ev.calls != 2 {
		t.Fatalf("expected evaluator to be called on every deny when CacheDenies is false, got %d", ev.calls)
	}
}

func TestAuthorizeFailsClosedOnEvaluatorError(t *testing.T) {
	ev := &countingEvaluator{failErr: errors.New("policy engine unavailable")}
	a := New("widgets", ev, ProductionCacheConfig())
	in := AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "getWidget", Method: "GET"}

	d := a.Authorize(context.Background(), in)
	if d.Allowed {
		t.Fatal("expected evaluator error to fail closed (deny)")
	}
}

func TestReloadBundleClearsCache(t *testing.T) {
	ev := &countingEvaluator{decide: Decision{Allowed: true}}
	a := New("widgets", ev, ProductionCacheConfig())
	in := AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "getWidget", Method: "GET"}

	a.Authorize(context.Background(), in)
	if err := a.ReloadBundle(context.Background(), &Bundle{}); err != nil {
		t.Fatalf("reload bundle: %v", err)
	}
	a.Authorize(context.Background(), in)

	if ev.calls != 2 {
		t.Fatalf("expected reload to force a fresh evaluation, got %d calls", ev.calls)
	}
}

func TestDifferentOperationsDoNotShareCacheEntry(t *testing.T) {
	ev := &countingEvaluator{decide: Decision{Allowed: true}}
	a := New("widgets", ev, ProductionCacheConfig())

	a.Authorize(context.Background(), AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "getWidget", Method: "GET"})
	a.Authorize(context.Background(), AuthorizeInput{Caller: identity.Anonymous{}, OperationID: "deleteWidget", Method: "DELETE"})

	if ev.calls != 2 {
		t.Fatalf("expected distinct operations to evaluate separately, got %d calls", ev.calls)
	}
}
