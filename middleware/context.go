// Package middleware implements the fixed-order request pipeline (component
// G): request-id, tracing, identity, authorization, request-validation,
// handler, response-validation, telemetry, error-normalization. Stage
// composition folds a fixed slice of Stage values into a single closure
// chain at build time, generalizing the teacher's chi.Router.Use chain
// construction from an appendable stack to a frozen, spec-mandated order.
package middleware

import (
	"context"
	"net/http"
	"time"

	"github.com/archimedes-run/archimedes/identity"
	"github.com/archimedes-run/archimedes/inject"
)

// RequestView is the per-request, pipeline-scoped bundle of HTTP fields
// seen by extractors. It is created once by the server adapter and is
// never mutated after the pipeline begins its pre-handler stages, except
// that middleware may append to the context's extensions.
type RequestView struct {
	Ctx         context.Context
	Method      string
	URI         string
	Header      http.Header
	Body        []byte
	PathParams  map[string]string
	Context     *MiddlewareContext
	Container   *inject.Container
}

// MiddlewareContext is mutable through the pre-handler stages and sealed
// before the handler runs.
type MiddlewareContext struct {
	RequestID   string
	Caller      identity.Caller
	TraceID     string
	SpanID      string
	OperationID string
	StartedAt   time.Time

	sealed     bool
	extensions map[extKey]any
}

type extKey struct{ name string }

// NewExtensionKey creates a unique key for inter-stage extension data (rate
// limit info, policy decisions, etc.).
func NewExtensionKey(name string) any { return extKey{name: name} }

// SetExtension stores inter-stage data. Touched only by the single
// goroutine serving this request — no synchronization is needed.
func (c *MiddlewareContext) SetExtension(key any, value any) {
	if c.extensions == nil {
		c.extensions = make(map[extKey]any)
	}
	if k, ok := key.(extKey); ok {
		c.extensions[k] = value
	}
}

// Extension retrieves inter-stage data previously stored with SetExtension.
func (c *MiddlewareContext) Extension(key any) (any, bool) {
	if c.extensions == nil {
		return nil, false
	}
	k, ok := key.(extKey)
	if !ok {
		return nil, false
	}
	v, ok := c.extensions[k]
	return v, ok
}

// Seal marks the context as having entered the handler stage. Called once,
// right before the handler runs. It only records the flag reported by
// Sealed; the exported fields remain writable afterwards.
func (c *MiddlewareContext) Seal() { c.sealed = true }

// Sealed reports whether the context has passed into the handler stage.
func (c *MiddlewareContext) Sealed() bool { return c.sealed }

// Response is the pipeline's internal bytes-out representation.
type Response struct {
	Status  int
	Header  http.Header
	Body    []byte
}

func NewResponse(status int) *Response {
	return &Response{Status: status, Header: make(http.Header)}
}

// Next is the continuation a Stage must invoke exactly once, unless it
// short-circuits with its own Response.
type Next func(req *RequestView) *Response

// Stage is a unit of the pipeline: a name and a process(ctx, request, next)
// contract.
type Stage interface {
	Name() string
	Process(req *RequestView, next Next) *Response
}

// StageFunc adapts a plain function to the Stage interface.
type StageFunc struct {
	StageName string
	Fn        func(req *RequestView, next Next) *Response
}

func (f StageFunc) Name() string { return f.StageName }
func (f StageFunc) Process(req *RequestView, next Next) *Response {
	return f.Fn(req, next)
}
