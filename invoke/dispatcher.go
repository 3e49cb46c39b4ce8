package invoke

import (
	"encoding/json"
	"net/http"

	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/extract"
	"github.com/archimedes-run/archimedes/ffi"
	"github.com/archimedes-run/archimedes/identity"
	"github.com/archimedes-run/archimedes/middleware"
)

// Dispatcher is the pipeline's single terminal step, keyed on
// req.Context.OperationID. It unifies all three handler flavours named by
// the spec: native typed handlers and macro/codegen registrations both
// land in the native map via Register/RegisterOperation below, and foreign
// handlers registered through the binding ABI (package ffi) are tried as a
// fallback when no native stage claims the operation. Unresolved
// operations, and requests the resolver itself couldn't match, fall
// through to notFound.
type Dispatcher struct {
	native map[string]middleware.Stage
	ffi    *ffi.Registry
}

// NewDispatcher creates an empty Dispatcher. bindings may be nil, in which
// case AsFinal never consults the binding ABI fallback.
func NewDispatcher(bindings *ffi.Registry) *Dispatcher {
	return &Dispatcher{native: make(map[string]middleware.Stage), ffi: bindings}
}

// Register binds a pre-built middleware.Stage to operationID. Both
// Register and RegisterOperation (below) ultimately call this; it is also
// the low-level escape hatch for a handler that wants full control over
// its Stage rather than going through Invoker.
func (d *Dispatcher) Register(operationID string, stage middleware.Stage) {
	d.native[operationID] = stage
}

// AsFinal renders the Dispatcher into the middleware.Next used as the
// pipeline's final step. Lookup order is native stage, then binding ABI
// registry, then notFound.
func (d *Dispatcher) AsFinal(notFound middleware.Next) middleware.Next {
	return func(req *middleware.RequestView) *middleware.Response {
		op := req.Context.OperationID
		if op == "" {
			return notFound(req)
		}
		if stage, ok := d.native[op]; ok {
			return stage.Process(req, terminalNext)
		}
		if d.ffi != nil && d.ffi.Has(op) {
			return d.invokeForeign(op, req)
		}
		return notFound(req)
	}
}

// terminalNext is passed to native stages by AsFinal: the "handler" stage
// never calls next (see Invoker.AsStage), so this only exists to satisfy
// the middleware.Stage signature.
func terminalNext(req *middleware.RequestView) *middleware.Response {
	resp := middleware.NewResponse(http.StatusInternalServerError)
	resp.Body = archerr.Render(http.StatusInternalServerError, "", "handler stage unexpectedly called next", req.Context.RequestID)
	return resp
}

func (d *Dispatcher) invokeForeign(op string, req *middleware.RequestView) *middleware.Response {
	req.Context.Seal()
	fReq := ffi.RequestContext{
		RequestID:          req.Context.RequestID,
		TraceID:            req.Context.TraceID,
		SpanID:             req.Context.SpanID,
		OperationID:        op,
		Method:             req.Method,
		Path:               req.URI,
		CallerIdentityJSON: callerIdentityJSON(req.Context.Caller),
		PathParams:         req.PathParams,
		Headers:            map[string][]string(req.Header),
		Body:               req.Body,
	}
	fResp, code := d.ffi.Invoke(op, fReq)
	if code != ffi.ErrOk {
		resp := middleware.NewResponse(http.StatusInternalServerError)
		resp.Body = archerr.Render(http.StatusInternalServerError, "", "foreign handler failed", req.Context.RequestID)
		return resp
	}
	resp := middleware.NewResponse(int(fResp.StatusCode))
	for k, vs := range fResp.Headers {
		for _, v := range vs {
			resp.Header.Add(k, v)
		}
	}
	if fResp.ContentType != "" {
		resp.Header.Set("Content-Type", fResp.ContentType)
	}
	resp.Body = fResp.Body
	return resp
}

// callerIdentityJSON renders the caller sum type into the JSON shape a
// foreign binding sees through archimedes_request_t.caller_identity_json:
// a "kind" discriminator plus whatever fields that kind carries.
func callerIdentityJSON(c identity.Caller) string {
	var body any
	switch v := c.(type) {
	case identity.ServicePrincipal:
		body = struct {
			Kind      string `json:"kind"`
			Namespace string `json:"namespace"`
			ID        string `json:"id"`
		}{"service-principal", v.Namespace, v.ID}
	case identity.User:
		body = struct {
			Kind   string         `json:"kind"`
			ID     string         `json:"id"`
			Claims map[string]any `json:"claims"`
			Roles  []string       `json:"roles"`
		}{"user", v.ID, v.Claims, v.Roles}
	case identity.APIKey:
		body = struct {
			Kind   string   `json:"kind"`
			ID     string   `json:"id"`
			Scopes []string `json:"scopes"`
		}{"api-key", v.ID, v.Scopes}
	default:
		body = struct {
			Kind string `json:"kind"`
		}{"anonymous"}
	}
	out, err := json.Marshal(body)
	if err != nil {
		return `{"kind":"anonymous"}`
	}
	return string(out)
}

// Register is the reflection-based native handler flavour: it builds the
// extractor for Req from its struct tags (path/query/header/json) via
// extract.Reflect and binds operationID to handler in d, so application
// code never hand-writes an Extractor for the common case.
func Register[Req, Resp any](d *Dispatcher, operationID string, handler Handler[Req, Resp]) {
	RegisterOperation(d, operationID, extract.Reflect[Req](), handler)
}

// RegisterOperation is the macro/codegen-registration flavour: a generator
// that already knows how to build Req's extractor (because it read the
// contract directly, rather than inferring it from Go struct tags) calls
// this with an explicit Extractor instead of relying on reflection.
func RegisterOperation[Req, Resp any](d *Dispatcher, operationID string, extractor extract.Extractor[Req], handler Handler[Req, Resp]) {
	inv := Invoker[Req, Resp]{Extract: extractor, Handler: handler}
	d.Register(operationID, inv.AsStage())
}
