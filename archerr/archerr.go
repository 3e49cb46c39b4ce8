// Package archerr defines the stable error taxonomy shared across the
// pipeline and renders the canonical JSON error envelope.
package archerr

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// Kind is the error taxonomy named in the error handling design. Kinds are
// append-only; never renumber or remove one.
type Kind int

const (
	KindConfiguration Kind = iota
	KindArtifactLoad
	KindPolicyLoad
	KindHandlerRegistration
	KindServerStart
	KindOperationNotFound
	KindMethodNotAllowed
	KindHandlerFailure
	KindValidationFailure
	KindAuthorizationDenied
	KindNullPointer
	KindInvalidUTF8
	KindPayloadTooLarge
	KindUnsupportedMediaType
	KindServiceUnavailable
	KindGatewayTimeout
	KindInternal
)

// codeStatus pins each kind to its stable code string and default HTTP
// status. Both are part of the wire contract and must never change once
// shipped.
var codeStatus = map[Kind]struct {
	code   string
	status int
}{
	KindConfiguration:        {"BAD_REQUEST", http.StatusBadRequest},
	KindArtifactLoad:         {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindPolicyLoad:           {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindHandlerRegistration:  {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindServerStart:          {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindOperationNotFound:    {"NOT_FOUND", http.StatusNotFound},
	KindMethodNotAllowed:     {"METHOD_NOT_ALLOWED", http.StatusMethodNotAllowed},
	KindHandlerFailure:       {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindValidationFailure:    {"VALIDATION_FAILED", http.StatusUnprocessableEntity},
	KindAuthorizationDenied:  {"FORBIDDEN", http.StatusForbidden},
	KindNullPointer:          {"INTERNAL_ERROR", http.StatusInternalServerError},
	KindInvalidUTF8:          {"BAD_REQUEST", http.StatusBadRequest},
	KindPayloadTooLarge:      {"PAYLOAD_TOO_LARGE", http.StatusRequestEntityTooLarge},
	KindUnsupportedMediaType: {"UNSUPPORTED_MEDIA_TYPE", http.StatusUnsupportedMediaType},
	KindServiceUnavailable:   {"SERVICE_UNAVAILABLE", http.StatusServiceUnavailable},
	KindGatewayTimeout:       {"GATEWAY_TIMEOUT", http.StatusGatewayTimeout},
	KindInternal:             {"INTERNAL_ERROR", http.StatusInternalServerError},
}

// Error is the taxonomy-bound error type that flows through the pipeline.
type Error struct {
	Kind    Kind
	Message string
	Wrapped error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, err error, message string) *Error {
	return &Error{Kind: kind, Message: message, Wrapped: err}
}

func (e *Error) Error() string {
	if e.Wrapped != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Wrapped)
	}
	return e.Message
}

func (e *Error) Unwrap() error { return e.Wrapped }

// Code returns the stable code string for the error's kind.
func (e *Error) Code() string { return codeStatus[e.Kind].code }

// Status returns the default HTTP status for the error's kind.
func (e *Error) Status() int { return codeStatus[e.Kind].status }

// CodeForStatus maps an HTTP status code to its stable taxonomy code, for
// responses that didn't originate from an *Error (e.g. a raw non-2xx
// written by a handler).
func CodeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusUnauthorized:
		return "UNAUTHORIZED"
	case http.StatusForbidden:
		return "FORBIDDEN"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	case http.StatusUnsupportedMediaType:
		return "UNSUPPORTED_MEDIA_TYPE"
	case http.StatusUnprocessableEntity:
		return "VALIDATION_FAILED"
	case http.StatusServiceUnavailable:
		return "SERVICE_UNAVAILABLE"
	case http.StatusGatewayTimeout:
		return "GATEWAY_TIMEOUT"
	default:
		return "INTERNAL_ERROR"
	}
}

// Envelope is the canonical JSON error body every non-2xx response not
// already shaped this way gets rewritten into by the error-normalization
// stage.
type Envelope struct {
	Error EnvelopeBody `json:"error"`
}

type EnvelopeBody struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// Render marshals the canonical envelope for the given status/message/request id.
func Render(status int, code, message, requestID string) []byte {
	if code == "" {
		code = CodeForStatus(status)
	}
	b, err := json.Marshal(Envelope{Error: EnvelopeBody{Code: code, Message: message, RequestID: requestID}})
	if err != nil {
		return []byte(`{"error":{"code":"INTERNAL_ERROR","message":"failed to render error body","request_id":""}}`)
	}
	return b
}

// IsCanonicalEnvelope reports whether body already looks like the envelope
// shape, so the error-normalization stage can avoid double-wrapping.
func IsCanonicalEnvelope(body []byte) bool {
	var probe struct {
		Error *EnvelopeBody `json:"error"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		return false
	}
	return probe.Error != nil && probe.Error.Code != "" && probe.Error.RequestID != ""
}
