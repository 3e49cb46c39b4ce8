package ffi

/*
#include <stdint.h>
#include <stddef.h>
#include <stdlib.h>
#include <string.h>

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

// archimedes_callback_t is the C function pointer type a foreign binding
// registers through archimedes_ffi_register. It receives a borrowed
// archimedes_request_t valid only for the call's duration and returns an
// archimedes_response_t by value.
typedef archimedes_response_t (*archimedes_callback_t)(const archimedes_request_t *req, void *user_data);

// archimedes_call_callback is a thin trampoline so cgo can invoke a C
// function pointer value without Go needing to call through one directly.
static archimedes_response_t archimedes_call_callback(archimedes_callback_t fn, const archimedes_request_t *req, void *user_data) {
	return fn(req, user_data);
}
*/
import "C"

import (
	"unsafe"
)

// globalRegistry is the process-wide binding registry populated by
// archimedes_ffi_register. A foreign binding and the Go-side dispatcher
// share this single instance so operations registered from outside the
// process (component L) are reachable from the daemon's own pipeline.
var globalRegistry = NewRegistry()

// GlobalRegistry returns the process-wide binding registry.
func GlobalRegistry() *Registry {
	return globalRegistry
}

// archimedes_ffi_register is the real C-callable entry point a foreign
// binding links against. It registers fn as the handler for operationID;
// fn is invoked through the archimedes_call_callback trampoline on every
// matching request, receiving userData back unmodified. Returns an
// ErrorCode, ErrOk on success.
//
//export archimedes_ffi_register
func archimedes_ffi_register(operationID *C.char, fn C.archimedes_callback_t, userData unsafe.Pointer) C.int32_t {
	if operationID == nil || fn == nil {
		return C.int32_t(ErrNullPointer)
	}
	opID := C.GoString(operationID)
	cb := goCallbackFor(fn)
	if err := globalRegistry.Register(opID, cb, uintptr(userData)); err != nil {
		return C.int32_t(ErrHandlerRegistrationError)
	}
	return C.int32_t(ErrOk)
}

// goCallbackFor adapts a C function pointer into the Go Callback type
// Registry.Register expects, marshalling RequestContext into
// archimedes_request_t before the call and archimedes_response_t back into
// Response afterward.
func goCallbackFor(fn C.archimedes_callback_t) Callback {
	return func(req RequestContext, userData uintptr) (Response, ErrorCode) {
		cReq, freeReq := newCRequest(req, userData)
		defer freeReq()

		cResp := C.archimedes_call_callback(fn, cReq, unsafe.Pointer(uintptr(userData)))

		resp := Response{
			StatusCode:  int32(cResp.status_code),
			ContentType: C.GoString(cResp.content_type),
			BodyOwned:   cResp.body_owned != 0,
		}
		if cResp.body != nil && cResp.body_len > 0 {
			resp.Body = C.GoBytes(unsafe.Pointer(cResp.body), C.int(cResp.body_len))
		}
		resp.Headers = kvArrayToHeaders(cResp.headers, cResp.headers_len)
		if resp.BodyOwned && cResp.body != nil {
			C.free(unsafe.Pointer(cResp.body))
		}
		return resp, ErrOk
	}
}

// newCRequest allocates a C-owned archimedes_request_t mirroring req. The
// returned cleanup function must run once the callback returns, since the
// struct borrows C-allocated memory for its lifetime only.
func newCRequest(req RequestContext, userData uintptr) (*C.archimedes_request_t, func()) {
	var allocs []unsafe.Pointer
	track := func(p unsafe.Pointer) unsafe.Pointer {
		allocs = append(allocs, p)
		return p
	}
	cStr := func(s string) *C.char {
		return (*C.char)(track(unsafe.Pointer(C.CString(s))))
	}

	pathParams, pathParamsLen := headersToKVArray(singleValueMap(req.PathParams), track)
	headers, headersLen := headersToKVArray(req.Headers, track)
	if pathParams != nil {
		allocs = append(allocs, unsafe.Pointer(pathParams))
	}
	if headers != nil {
		allocs = append(allocs, unsafe.Pointer(headers))
	}

	var bodyPtr *C.uint8_t
	if len(req.Body) > 0 {
		bodyPtr = (*C.uint8_t)(track(C.CBytes(req.Body)))
	}

	cReq := (*C.archimedes_request_t)(C.malloc(C.size_t(unsafe.Sizeof(C.archimedes_request_t{}))))
	allocs = append(allocs, unsafe.Pointer(cReq))

	cReq.request_id = cStr(req.RequestID)
	cReq.trace_id = cStr(req.TraceID)
	cReq.span_id = cStr(req.SpanID)
	cReq.operation_id = cStr(req.OperationID)
	cReq.method = cStr(req.Method)
	cReq.path = cStr(req.Path)
	cReq.query = cStr(req.Query)
	cReq.caller_identity_json = cStr(req.CallerIdentityJSON)
	cReq.path_params = pathParams
	cReq.path_params_len = C.size_t(pathParamsLen)
	cReq.headers = headers
	cReq.headers_len = C.size_t(headersLen)
	cReq.body = bodyPtr
	cReq.body_len = C.size_t(len(req.Body))
	cReq.user_data = unsafe.Pointer(uintptr(userData))

	return cReq, func() {
		for _, p := range allocs {
			C.free(p)
		}
	}
}

func singleValueMap(m map[string]string) map[string][]string {
	if m == nil {
		return nil
	}
	out := make(map[string][]string, len(m))
	for k, v := range m {
		out[k] = []string{v}
	}
	return out
}

// headersToKVArray flattens a multi-value header map into a C-allocated
// archimedes_kv_t array (one entry per value, key repeated for each), the
// same shape the original implementation uses for both path params and
// headers. Every string it allocates is passed through track so the
// caller's cleanup frees it alongside the array itself.
func headersToKVArray(m map[string][]string, track func(unsafe.Pointer) unsafe.Pointer) (*C.archimedes_kv_t, int) {
	n := 0
	for _, vs := range m {
		n += len(vs)
	}
	if n == 0 {
		return nil, 0
	}
	arr := (*C.archimedes_kv_t)(C.malloc(C.size_t(n) * C.size_t(unsafe.Sizeof(C.archimedes_kv_t{}))))
	slice := unsafe.Slice(arr, n)
	i := 0
	for k, vs := range m {
		for _, v := range vs {
			slice[i].key = (*C.char)(track(unsafe.Pointer(C.CString(k))))
			slice[i].value = (*C.char)(track(unsafe.Pointer(C.CString(v))))
			i++
		}
	}
	return arr, n
}

// kvArrayToHeaders reads back a borrowed archimedes_kv_t array produced by
// a foreign binding's response. The array and its strings are owned by the
// caller for the duration of this call only.
func kvArrayToHeaders(arr *C.archimedes_kv_t, length C.size_t) map[string][]string {
	if arr == nil || length == 0 {
		return nil
	}
	slice := unsafe.Slice(arr, int(length))
	out := make(map[string][]string, len(slice))
	for _, kv := range slice {
		k := C.GoString(kv.key)
		v := C.GoString(kv.value)
		out[k] = append(out[k], v)
	}
	return out
}
