package validate

import (
	"encoding/json"
	"testing"

	"github.com/archimedes-run/archimedes/artifact"
)

func buildValidator(t *testing.T) (*Validator, *artifact.OperationDescriptor) {
	t.Helper()
	doc := map[string]any{
		"service": "widgets",
		"operations": []map[string]any{
			{
				"id":             "createWidget",
				"method":         "POST",
				"path":           "/widgets",
				"request_schema": "createWidgetRequest",
				"response_schemas": map[string]string{
					"201": "widgetResponse",
				},
			},
		},
		"schemas": map[string]any{
			"createWidgetRequest": map[string]any{
				"type":     "object",
				"required": []string{"name"},
				"properties": map[string]any{
					"name": map[string]any{"type": "string"},
				},
			},
			"widgetResponse": map[string]any{
				"type":     "object",
				"required": []string{"id"},
				"properties": map[string]any{
					"id": map[string]any{"type": "string"},
				},
			},
		},
	}
	raw, err := json.Marshal(doc)
	if err != nil {
		t.Fatalf("marshal fixture: %v", err)
	}
	a, err := artifact.Build(raw)
	if err != nil {
		t.Fatalf("build artifact: %v", err)
	}
	v, err := New(a)
	if err != nil {
		t.Fatalf("new validator: %v", err)
	}
	op, ok := a.ByID("createWidget")
	if !ok {
		t.Fatal("expected createWidget operation to be indexed")
	}
	return v, op
}

func TestValidateRequestAccepts(t *testing.T) {
	v, op := buildValidator(t)
	res, err := v.ValidateRequest(op, []byte(`{"name":"sprocket"}`))
	if err != nil {
		t.Fatalf("validate request: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid request, got errors: %+v", res.Errors)
	}
}

func TestValidateRequestRejectsMissingField(t *testing.T) {
	v, op := buildValidator(t)
	res, err := v.ValidateRequest(op, []byte(`{}`))
	if err != nil {
		t.Fatalf("validate request: %v", err)
	}
	if res.Valid {
		t.Fatal("expected missing required field to fail validation")
	}
	if len(res.Errors) == 0 {
		t.Fatal("expected at least one field error")
	}
}

func TestValidateRequestRejectsMalformedJSON(t *testing.T) {
	v, op := buildValidator(t)
	res, err := v.ValidateRequest(op, []byte(`{not json`))
	if err != nil {
		t.Fatalf("validate request: %v", err)
	}
	if res.Valid {
		t.Fatal("expected malformed JSON body to fail validation")
	}
}

func TestValidateResponseByStatusCode(t *testing.T) {
	v, op := buildValidator(t)
	res, err := v.ValidateResponse(op, "201", []byte(`{"id":"w-1"}`))
	if err != nil {
		t.Fatalf("validate response: %v", err)
	}
	if !res.Valid {
		t.Fatalf("expected valid response, got errors: %+v", res.Errors)
	}
}

func TestValidateResponseUnregisteredStatusPassesThrough(t *testing.T) {
	v, op := buildValidator(t)
	res, err := v.ValidateResponse(op, "500", []byte(`{"whatever":true}`))
	if err != nil {
		t.Fatalf("validate response: %v", err)
	}
	if !res.Valid {
		t.Fatal("expected unregistered status code to pass through as valid")
	}
}
