package ffi

import "testing"

func TestRegisterAndInvoke(t *testing.T) {
	r := NewRegistry()
	err := r.Register("getWidget", func(req RequestContext, userData uintptr) (Response, ErrorCode) {
		return Response{StatusCode: 200, Body: []byte(req.OperationID)}, ErrOk
	}, 0)
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !r.Has("getWidget") {
		t.Fatal("expected Has to report true after registration")
	}
	resp, code := r.Invoke("getWidget", RequestContext{OperationID: "getWidget"})
	if code != ErrOk {
		t.Fatalf("expected ErrOk, got %v", code)
	}
	if string(resp.Body) != "getWidget" {
		t.Fatalf("unexpected body: %s", resp.Body)
	}
}

func TestRegisterRejectsDuplicate(t *testing.T) {
	r := NewRegistry()
	cb := func(req RequestContext, userData uintptr) (Response, ErrorCode) { return Response{}, ErrOk }
	if err := r.Register("getWidget", cb, 0); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := r.Register("getWidget", cb, 0); err == nil {
		t.Fatal("expected duplicate registration to be rejected")
	}
}

func TestInvokeUnknownOperationReturnsInvalidOperation(t *testing.T) {
	r := NewRegistry()
	_, code := r.Invoke("nope", RequestContext{})
	if code != ErrInvalidOperation {
		t.Fatalf("expected ErrInvalidOperation, got %v", code)
	}
}

func TestFreezeRejectsLateRegistration(t *testing.T) {
	r := NewRegistry()
	r.Freeze()
	cb := func(req RequestContext, userData uintptr) (Response, ErrorCode) { return Response{}, ErrOk }
	if err := r.Register("getWidget", cb, 0); err == nil {
		t.Fatal("expected registration after freeze to be rejected")
	}
}
