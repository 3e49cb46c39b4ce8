package middleware

import "testing"

func stageRecording(name string, order *[]string) Stage {
	return StageFunc{
		StageName: name,
		Fn: func(req *RequestView, next Next) *Response {
			*order = append(*order, name+":before")
			resp := next(req)
			*order = append(*order, name+":after")
			return resp
		},
	}
}

func TestPipelineRunsStagesInOrderAroundFinal(t *testing.T) {
	var order []string
	final := func(req *RequestView) *Response {
		order = append(order, "final")
		return NewResponse(200)
	}
	p := Build([]Stage{
		stageRecording("a", &order),
		stageRecording("b", &order),
	}, final)

	resp := p.Run(&RequestView{Context: &MiddlewareContext{}})
	if resp.Status != 200 {
		t.Fatalf("expected 200, got %d", resp.Status)
	}
	want := []string{"a:before", "b:before", "final", "b:after", "a:after"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order at %d: got %v, want %v", i, order, want)
		}
	}
}

func TestPipelineShortCircuitSkipsDownstreamAndFinal(t *testing.T) {
	var order []string
	final := func(req *RequestView) *Response {
		order = append(order, "final")
		return NewResponse(200)
	}
	shortCircuit := StageFunc{
		StageName: "deny",
		Fn: func(req *RequestView, next Next) *Response {
			order = append(order, "deny")
			return NewResponse(403)
		},
	}
	p := Build([]Stage{
		stageRecording("a", &order),
		shortCircuit,
		stageRecording("b", &order),
	}, final)

	resp := p.Run(&RequestView{Context: &MiddlewareContext{}})
	if resp.Status != 403 {
		t.Fatalf("expected 403, got %d", resp.Status)
	}
	want := []string{"a:before", "deny", "a:after"}
	if len(order) != len(want) {
		t.Fatalf("unexpected order: %v", order)
	}
	for i := range want {
		if order[i] != want[i] {
			t.Fatalf("unexpected order at %d: got %v, want %v", i, order, want)
		}
	}
}

func TestExtensionRoundTrip(t *testing.T) {
	c := &MiddlewareContext{}
	key := NewExtensionKey("decision")
	if _, ok := c.Extension(key); ok {
		t.Fatal("expected no extension before it is set")
	}
	c.SetExtension(key, "allow")
	v, ok := c.Extension(key)
	if !ok || v != "allow" {
		t.Fatalf("expected allow, got %v, %v", v, ok)
	}
}

func TestSealPreventsFurtherMutationSignal(t *testing.T) {
	c := &MiddlewareContext{}
	if c.Sealed() {
		t.Fatal("expected context to start unsealed")
	}
	c.Seal()
	if !c.Sealed() {
		t.Fatal("expected context to report sealed after Seal")
	}
}
