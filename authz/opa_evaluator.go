package authz

import (
	"context"
	"sync"
	"time"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/open-policy-agent/opa/rego"
	"github.com/open-policy-agent/opa/storage/inmem"
)

// OPAEvaluator evaluates policy decisions in-process via the real
// open-policy-agent/opa rego engine, replacing the teacher gateway's
// hand-rolled REST client to an OPA sidecar with a library call. The
// bundle's tar+gzip/.manifest/.rego/data.json layout maps directly onto
// rego.Module / rego.Store inputs.
type OPAEvaluator struct {
	mu       sync.RWMutex
	query    rego.PreparedEvalQuery
	policyID string
	version  string
}

// NewOPAEvaluator prepares a rego query against "data.archimedes.decision";
// the bundle's policies define that rule as an object whose "allow" and
// "reason" fields become the Decision.
func NewOPAEvaluator(ctx context.Context, bundle *Bundle) (*OPAEvaluator, error) {
	e := &OPAEvaluator{}
	if err := e.Reload(ctx, bundle); err != nil {
		return nil, err
	}
	return e, nil
}

func (e *OPAEvaluator) Reload(ctx context.Context, bundle *Bundle) error {
	opts := []func(*rego.Rego){
		rego.Query("data.archimedes.decision"),
	}
	for path, src := range bundle.Modules {
		opts = append(opts, rego.Module(path, src))
	}
	data := make(map[string]any, len(bundle.Data))
	for path, doc := range bundle.Data {
		data[path] = doc
	}
	opts = append(opts, rego.Store(inmem.NewFromObject(data)))

	prepared, err := rego.New(opts...).PrepareForEval(ctx)
	if err != nil {
		return archerr.Wrap(archerr.KindPolicyLoad, err, "failed preparing rego policy")
	}

	e.mu.Lock()
	e.query = prepared
	e.policyID = "archimedes-bundle"
	e.version = bundle.Manifest.Revision
	e.mu.Unlock()
	return nil
}

// Evaluate runs the prepared query against the input. A Rego evaluation
// error is always treated as deny by the caller (Authorizer), never
// swallowed here.
func (e *OPAEvaluator) Evaluate(ctx context.Context, input Input) (Decision, error) {
	start := time.Now()

	e.mu.RLock()
	query, policyID, version := e.query, e.policyID, e.version
	e.mu.RUnlock()

	rs, err := query.Eval(ctx, rego.EvalInput(input))
	elapsed := time.Since(start)
	if err != nil {
		return Decision{}, archerr.Wrap(archerr.KindAuthorizationDenied, err, "policy evaluation error")
	}
	if len(rs) == 0 || len(rs[0].Expressions) == 0 {
		return Decision{
			Allowed: false, Reason: "policy produced no decision",
			PolicyID: policyID, PolicyVersion: version, EvaluationNanos: elapsed.Nanoseconds(),
		}, nil
	}

	result, _ := rs[0].Expressions[0].Value.(map[string]any)
	allowed, _ := result["allow"].(bool)
	reason, _ := result["reason"].(string)

	return Decision{
		Allowed: allowed, Reason: reason,
		PolicyID: policyID, PolicyVersion: version, EvaluationNanos: elapsed.Nanoseconds(),
	}, nil
}
