// Package ffi implements the Binding ABI Surface (component L): a frozen
// C-compatible ABI plus an in-process registry mapping operation ids to
// foreign callbacks. Struct layouts mirror the original implementation's
// #[repr(C)] types field-for-field (archimedes-ffi/src/types.rs); the
// explicit numeric error codes are preserved exactly since they are part of
// the cross-language compatibility contract.
package ffi

/*
#include <stdint.h>
#include <stddef.h>

typedef struct {
	const char *key;
	const char *value;
} archimedes_kv_t;

typedef struct {
	const char *request_id;
	const char *trace_id;
	const char *span_id;
	const char *operation_id;
	const char *method;
	const char *path;
	const char *query;
	const char *caller_identity_json;
	const archimedes_kv_t *path_params;
	size_t path_params_len;
	const archimedes_kv_t *headers;
	size_t headers_len;
	const uint8_t *body;
	size_t body_len;
	void *user_data;
} archimedes_request_t;

typedef struct {
	int32_t status_code;
	const uint8_t *body;
	size_t body_len;
	const char *content_type;
	const archimedes_kv_t *headers;
	size_t headers_len;
	int body_owned;
} archimedes_response_t;
*/
import "C"

// ErrorCode mirrors ArchimedesError's repr(C) numeric discriminants
// exactly. These values are a cross-language wire contract: never
// renumber.
type ErrorCode int32

const (
	ErrOk                       ErrorCode = 0
	ErrInvalidConfig            ErrorCode = 1
	ErrContractLoadError        ErrorCode = 2
	ErrPolicyLoadError          ErrorCode = 3
	ErrHandlerRegistrationError ErrorCode = 4
	ErrServerStartError         ErrorCode = 5
	ErrInvalidOperation         ErrorCode = 6
	ErrHandlerError             ErrorCode = 7
	ErrValidationError          ErrorCode = 8
	ErrAuthorizationError       ErrorCode = 9
	ErrNullPointer              ErrorCode = 10
	ErrInvalidUTF8              ErrorCode = 11
	ErrInternal                 ErrorCode = 99
)

// RequestContext is the Go-side view of archimedes_request_t: a foreign
// binding sees these fields as borrowed strings/arrays valid only for the
// duration of its callback.
type RequestContext struct {
	RequestID           string
	TraceID             string
	SpanID              string
	OperationID         string
	Method              string
	Path                string
	Query               string
	CallerIdentityJSON  string
	PathParams          map[string]string
	Headers             map[string][]string
	Body                []byte
	UserData            uintptr
}

// Response is the Go-side view of archimedes_response_t returned by a
// foreign binding.
type Response struct {
	StatusCode  int32
	Body        []byte
	ContentType string
	Headers     map[string][]string
	// BodyOwned records whether the binding handed ownership of the C body
	// buffer to the core; the bridge frees an owned buffer right after
	// copying it into Body. Strings/bytes the binding marked static are
	// never freed by the core.
	BodyOwned bool
}
