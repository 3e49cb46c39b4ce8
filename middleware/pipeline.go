package middleware

// Pipeline is the fixed-order stage chain compiled once at startup.
type Pipeline struct {
	stages []Stage
	final  Next
	chain  Next
}

// Build folds stages into a single closure chain terminating in final (the
// handler-invocation step). The pipeline order itself is supplied by the
// caller (server wiring) but is expected to be the spec-frozen order:
// request-id, tracing, identity, authorization, request-validation, ...,
// response-validation, telemetry, error-normalization.
func Build(stages []Stage, final Next) *Pipeline {
	chain := final
	for i := len(stages) - 1; i >= 0; i-- {
		stage, next := stages[i], chain
		chain = func(r *RequestView) *Response {
			return stage.Process(r, next)
		}
	}
	return &Pipeline{stages: stages, final: final, chain: chain}
}

// Run executes the pipeline against one request.
func (p *Pipeline) Run(req *RequestView) *Response {
	return p.chain(req)
}
