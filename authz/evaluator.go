package authz

import "context"

// Input is what an evaluator receives for one authorization decision.
type Input struct {
	Caller      interface{} `json:"caller"`
	Service     string      `json:"service"`
	OperationID string      `json:"operation_id"`
	Method      string      `json:"method"`
	Path        string      `json:"path"`
	RequestID   string      `json:"request_id"`
}

// Evaluator is the pluggable policy-evaluation backend. Evaluation that
// errors is treated as deny by the Authorizer, never by the evaluator
// itself — evaluators only ever return a definite decision or an error.
type Evaluator interface {
	Evaluate(ctx context.Context, input Input) (Decision, error)
	// Reload swaps in a newly loaded policy bundle.
	Reload(ctx context.Context, bundle *Bundle) error
}
