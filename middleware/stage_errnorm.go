package middleware

import "github.com/archimedes-run/archimedes/archerr"

// ErrorNormalizationStage rewrites any 4xx/5xx response whose body is not
// already the canonical error envelope.
type ErrorNormalizationStage struct{}

func (ErrorNormalizationStage) Name() string { return "error-normalization" }

func (ErrorNormalizationStage) Process(req *RequestView, next Next) *Response {
	resp := next(req)
	if resp.Status < 400 {
		return resp
	}
	if archerr.IsCanonicalEnvelope(resp.Body) {
		return resp
	}
	resp.Body = archerr.Render(resp.Status, "", httpDefaultMessage(resp.Status), req.Context.RequestID)
	if resp.Header == nil {
		resp.Header = make(map[string][]string)
	}
	resp.Header.Set("Content-Type", "application/json; charset=utf-8")
	return resp
}

func httpDefaultMessage(status int) string {
	switch {
	case status >= 500:
		return "an internal error occurred"
	case status == 404:
		return "resource not found"
	case status == 403:
		return "request forbidden"
	case status == 401:
		return "authentication required"
	default:
		return "request could not be processed"
	}
}
