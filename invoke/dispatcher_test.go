package invoke

import (
	"net/http"
	"testing"

	"github.com/archimedes-run/archimedes/ffi"
	"github.com/archimedes-run/archimedes/middleware"
)

type dispatchRequest struct {
	ID string `path:"id"`
}

type dispatchResponse struct {
	Echo string `json:"echo"`
}

func dispatchView(op string) *middleware.RequestView {
	return &middleware.RequestView{
		Method:     "GET",
		URI:        "/widgets/7",
		Header:     make(http.Header),
		PathParams: map[string]string{"id": "7"},
		Context:    &middleware.MiddlewareContext{OperationID: op},
	}
}

func notFound(req *middleware.RequestView) *middleware.Response {
	return middleware.NewResponse(http.StatusNotFound)
}

func TestDispatcherRoutesToRegisteredNativeOperation(t *testing.T) {
	d := NewDispatcher(nil)
	Register(d, "getWidget", func(ctx *middleware.MiddlewareContext, req dispatchRequest) (dispatchResponse, error) {
		return dispatchResponse{Echo: req.ID}, nil
	})

	resp := d.AsFinal(notFound)(dispatchView("getWidget"))
	if resp.Status != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Status, resp.Body)
	}
}

func TestDispatcherFallsThroughToNotFoundForUnknownOperation(t *testing.T) {
	d := NewDispatcher(nil)
	resp := d.AsFinal(notFound)(dispatchView("neverRegistered"))
	if resp.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}

func TestDispatcherFallsThroughToNotFoundWhenResolverFoundNoOperation(t *testing.T) {
	d := NewDispatcher(nil)
	resp := d.AsFinal(notFound)(dispatchView(""))
	if resp.Status != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", resp.Status)
	}
}

func TestDispatcherFallsBackToForeignBinding(t *testing.T) {
	bindings := ffi.NewRegistry()
	err := bindings.Register("legacyOp", func(req ffi.RequestContext, userData uintptr) (ffi.Response, ffi.ErrorCode) {
		return ffi.Response{StatusCode: 201, Body: []byte(req.OperationID), ContentType: "text/plain"}, ffi.ErrOk
	}, 0)
	if err != nil {
		t.Fatalf("register binding: %v", err)
	}

	d := NewDispatcher(bindings)
	resp := d.AsFinal(notFound)(dispatchView("legacyOp"))
	if resp.Status != 201 {
		t.Fatalf("expected 201, got %d", resp.Status)
	}
	if string(resp.Body) != "legacyOp" {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestDispatcherNativeRegistrationTakesPrecedenceOverForeign(t *testing.T) {
	bindings := ffi.NewRegistry()
	_ = bindings.Register("getWidget", func(req ffi.RequestContext, userData uintptr) (ffi.Response, ffi.ErrorCode) {
		return ffi.Response{StatusCode: 500}, ffi.ErrOk
	}, 0)

	d := NewDispatcher(bindings)
	Register(d, "getWidget", func(ctx *middleware.MiddlewareContext, req dispatchRequest) (dispatchResponse, error) {
		return dispatchResponse{Echo: req.ID}, nil
	})

	resp := d.AsFinal(notFound)(dispatchView("getWidget"))
	if resp.Status != http.StatusOK {
		t.Fatalf("expected native registration to win with 200, got %d", resp.Status)
	}
}
