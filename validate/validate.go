// Package validate performs JSON-schema-driven validation of request and
// response bodies referenced by operation id (component C). Schema
// compilation and evaluation is delegated to santhosh-tekuri/jsonschema,
// which owns $ref/oneOf/allOf resolution so this package doesn't reimplement
// a JSON Schema evaluator.
package validate

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/archimedes-run/archimedes/artifact"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Mode selects enforce-vs-monitor behavior for one validation direction.
// The validator itself never consults Mode — callers (the pipeline stages)
// decide what to do with a failing ValidationResult.
type Mode int

const (
	ModeEnforce Mode = iota
	ModeMonitor
)

// FieldError is one schema violation.
type FieldError struct {
	FieldPath  string `json:"field_path"`
	Message    string `json:"message"`
	SchemaPath string `json:"schema_path,omitempty"`
}

// Result is the outcome of one validation call.
type Result struct {
	Valid  bool
	Errors []FieldError
}

// Validator holds schemas compiled once at load time; each Validate* call is
// stateless and safe to share across concurrent requests.
type Validator struct {
	schemas map[string]*jsonschema.Schema
}

// New compiles every schema in the artifact's schema map.
func New(a *artifact.LoadedArtifact) (*Validator, error) {
	compiler := jsonschema.NewCompiler()
	for name, raw := range a.Schemas {
		if err := compiler.AddResource(name, bytes.NewReader(raw)); err != nil {
			return nil, fmt.Errorf("adding schema resource %q: %w", name, err)
		}
	}
	schemas := make(map[string]*jsonschema.Schema, len(a.Schemas))
	for name := range a.Schemas {
		s, err := compiler.Compile(name)
		if err != nil {
			return nil, fmt.Errorf("compiling schema %q: %w", name, err)
		}
		schemas[name] = s
	}
	return &Validator{schemas: schemas}, nil
}

func (v *Validator) validateAgainst(schemaRef string, body []byte) (Result, error) {
	if schemaRef == "" {
		return Result{Valid: true}, nil
	}
	schema, ok := v.schemas[schemaRef]
	if !ok {
		return Result{}, fmt.Errorf("unknown construct: schema reference %q is not indexed", schemaRef)
	}
	if len(body) == 0 {
		body = []byte("null")
	}
	var doc any
	if err := json.Unmarshal(body, &doc); err != nil {
		return Result{Valid: false, Errors: []FieldError{{FieldPath: "$", Message: "body is not valid JSON"}}}, nil
	}
	if err := schema.Validate(doc); err != nil {
		ve, ok := err.(*jsonschema.ValidationError)
		if !ok {
			return Result{}, fmt.Errorf("unknown construct: %w", err)
		}
		return Result{Valid: false, Errors: flatten(ve)}, nil
	}
	return Result{Valid: true}, nil
}

func flatten(ve *jsonschema.ValidationError) []FieldError {
	var out []FieldError
	var walk func(e *jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if len(e.Causes) == 0 {
			out = append(out, FieldError{
				FieldPath:  e.InstanceLocation,
				Message:    e.Message,
				SchemaPath: e.SchemaURL + e.KeywordLocation,
			})
			return
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)
	return out
}

// ValidateRequest checks a request body against the operation's request schema.
func (v *Validator) ValidateRequest(op *artifact.OperationDescriptor, body []byte) (Result, error) {
	return v.validateAgainst(op.RequestSchemaRef, body)
}

// ValidateResponse checks a response body against the schema registered for
// the given status code.
func (v *Validator) ValidateResponse(op *artifact.OperationDescriptor, statusCode string, body []byte) (Result, error) {
	ref, ok := op.ResponseSchemaRefs[statusCode]
	if !ok {
		return Result{Valid: true}, nil
	}
	return v.validateAgainst(ref, body)
}
