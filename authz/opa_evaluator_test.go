package authz

import (
	"context"
	"testing"
)

const testPolicyModule = `package archimedes

default decision = {"allow": false, "reason": "no matching rule"}

decision = {"allow": true, "reason": "admin override"} {
	input.caller.key == "admin-1"
}
`

func TestOPAEvaluatorAllowsMatchingRule(t *testing.T) {
	bundle := &Bundle{
		Manifest: Manifest{Revision: "rev-1"},
		Modules:  map[string]string{"policy.rego": testPolicyModule},
		Data:     map[string]any{},
	}
	ev, err := NewOPAEvaluator(context.Background(), bundle)
	if err != nil {
		t.Fatalf("new opa evaluator: %v", err)
	}
	d, err := ev.Evaluate(context.Background(), Input{
		Caller: map[string]any{"kind": "user", "key": "admin-1"},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed {
		t.Fatalf("expected allow, got deny with reason %q", d.Reason)
	}
	if d.PolicyVersion != "rev-1" {
		t.Fatalf("expected policy version rev-1, got %q", d.PolicyVersion)
	}
}

func TestOPAEvaluatorDeniesDefault(t *testing.T) {
	bundle := &Bundle{
		Modules: map[string]string{"policy.rego": testPolicyModule},
		Data:    map[string]any{},
	}
	ev, err := NewOPAEvaluator(context.Background(), bundle)
	if err != nil {
		t.Fatalf("new opa evaluator: %v", err)
	}
	d, err := ev.Evaluate(context.Background(), Input{
		Caller: map[string]any{"kind": "user", "key": "someone-else"},
	})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if d.Allowed {
		t.Fatal("expected default deny for non-matching caller")
	}
}

func TestOPAEvaluatorReloadSwapsPolicy(t *testing.T) {
	bundle := &Bundle{Modules: map[string]string{"policy.rego": testPolicyModule}, Data: map[string]any{}}
	ev, err := NewOPAEvaluator(context.Background(), bundle)
	if err != nil {
		t.Fatalf("new opa evaluator: %v", err)
	}

	allowAll := &Bundle{
		Manifest: Manifest{Revision: "rev-2"},
		Modules: map[string]string{"policy.rego": `package archimedes

decision = {"allow": true, "reason": "allow all"}
`},
		Data: map[string]any{},
	}
	if err := ev.Reload(context.Background(), allowAll); err != nil {
		t.Fatalf("reload: %v", err)
	}
	d, err := ev.Evaluate(context.Background(), Input{Caller: map[string]any{"kind": "user", "key": "anyone"}})
	if err != nil {
		t.Fatalf("evaluate: %v", err)
	}
	if !d.Allowed {
		t.Fatal("expected reloaded allow-all policy to allow")
	}
	if d.PolicyVersion != "rev-2" {
		t.Fatalf("expected policy version rev-2 after reload, got %q", d.PolicyVersion)
	}
}
