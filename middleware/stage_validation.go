package middleware

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/artifact"
	"github.com/archimedes-run/archimedes/validate"
)

// RequestValidationStage validates the request body against the resolved
// operation's request schema, when one is resolved and a schema exists.
type RequestValidationStage struct {
	Validator *validate.Validator
	Artifact  *artifact.LoadedArtifact
	Mode      validate.Mode
	Logf      func(format string, args ...any)
}

func (RequestValidationStage) Name() string { return "request-validation" }

func (s RequestValidationStage) Process(req *RequestView, next Next) *Response {
	op, ok := s.Artifact.ByID(req.Context.OperationID)
	if !ok || op.RequestSchemaRef == "" {
		return next(req)
	}
	result, err := s.Validator.ValidateRequest(op, req.Body)
	if err != nil {
		resp := NewResponse(http.StatusInternalServerError)
		resp.Body = archerr.Render(http.StatusInternalServerError, "", err.Error(), req.Context.RequestID)
		return resp
	}
	if !result.Valid {
		if s.Mode == validate.ModeMonitor {
			if s.Logf != nil {
				s.Logf("request validation failed in monitor mode: operation=%s errors=%d", op.ID, len(result.Errors))
			}
			return next(req)
		}
		msg := summarizeErrors(result)
		resp := NewResponse(http.StatusBadRequest)
		resp.Body = archerr.Render(http.StatusBadRequest, "VALIDATION_FAILED", msg, req.Context.RequestID)
		return resp
	}
	return next(req)
}

func summarizeErrors(result validate.Result) string {
	if len(result.Errors) == 0 {
		return "request body failed schema validation"
	}
	parts := make([]string, 0, min(3, len(result.Errors)))
	for i, e := range result.Errors {
		if i >= 3 {
			break
		}
		parts = append(parts, e.FieldPath+": "+e.Message)
	}
	return strings.Join(parts, "; ")
}

// ResponseValidationStage best-effort validates the handler's response
// body. Failures are logged but never alter the status code — the
// handler's response is authoritative once emitted.
type ResponseValidationStage struct {
	Validator *validate.Validator
	Artifact  *artifact.LoadedArtifact
	Logf      func(format string, args ...any)
}

func (ResponseValidationStage) Name() string { return "response-validation" }

func (s ResponseValidationStage) Process(req *RequestView, next Next) *Response {
	resp := next(req)
	op, ok := s.Artifact.ByID(req.Context.OperationID)
	if !ok {
		return resp
	}
	statusStr := httpStatusString(resp.Status)
	result, err := s.Validator.ValidateResponse(op, statusStr, resp.Body)
	if err != nil && s.Logf != nil {
		s.Logf("response validation error: operation=%s status=%s err=%v", op.ID, statusStr, err)
		return resp
	}
	if !result.Valid && s.Logf != nil {
		s.Logf("response validation failed: operation=%s status=%s errors=%d", op.ID, statusStr, len(result.Errors))
	}
	return resp
}

func httpStatusString(status int) string {
	return strconv.Itoa(status)
}
