// Package artifact parses, checksum-verifies, and indexes contract
// artifacts (component M). An artifact enumerates the operations a service
// exposes plus the JSON schemas referenced by those operations.
package artifact

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/archimedes-run/archimedes/archerr"
	"gopkg.in/yaml.v3"
)

// OperationDescriptor is the static, load-time description of one operation.
type OperationDescriptor struct {
	ID                 string            `json:"id" yaml:"id"`
	Method             string            `json:"method" yaml:"method"`
	PathTemplate       string            `json:"path" yaml:"path"`
	Summary            string            `json:"summary,omitempty" yaml:"summary,omitempty"`
	Deprecated         bool              `json:"deprecated,omitempty" yaml:"deprecated,omitempty"`
	SecurityReqs       []string          `json:"security,omitempty" yaml:"security,omitempty"`
	RequestSchemaRef   string            `json:"request_schema,omitempty" yaml:"request_schema,omitempty"`
	ResponseSchemaRefs map[string]string `json:"response_schemas,omitempty" yaml:"response_schemas,omitempty"`
	Tags               []string          `json:"tags,omitempty" yaml:"tags,omitempty"`
}

// Checksum is the artifact's self-reported integrity record.
type Checksum struct {
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	Value     string `json:"value" yaml:"value"`
}

// Metadata carries non-functional artifact facts.
type Metadata struct {
	CreatedAt string `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// document is the on-disk/registry shape described in SPEC_FULL §6.
type document struct {
	Service    string                     `json:"service" yaml:"service"`
	Version    string                     `json:"version" yaml:"version"`
	Format     string                     `json:"format" yaml:"format"`
	Metadata   Metadata                   `json:"metadata" yaml:"metadata"`
	Checksum   Checksum                   `json:"checksum" yaml:"checksum"`
	Operations []OperationDescriptor      `json:"operations" yaml:"operations"`
	Schemas    map[string]json.RawMessage `json:"schemas" yaml:"schemas"`
}

// LoadedArtifact is the checksum-verified, indexed result of a successful load.
type LoadedArtifact struct {
	ServiceName string
	Version     string
	Format      string
	Operations  []OperationDescriptor
	Schemas     map[string]json.RawMessage

	byKey map[string]*OperationDescriptor // keyed by "METHOD path_template"
	byID  map[string]*OperationDescriptor
}

// ByMethodAndTemplate looks up an operation by its (method, path_template) pair.
func (a *LoadedArtifact) ByMethodAndTemplate(method, pathTemplate string) (*OperationDescriptor, bool) {
	op, ok := a.byKey[method+" "+pathTemplate]
	return op, ok
}

// ByID looks up an operation by its id.
func (a *LoadedArtifact) ByID(id string) (*OperationDescriptor, bool) {
	op, ok := a.byID[id]
	return op, ok
}

func index(ops []OperationDescriptor) (map[string]*OperationDescriptor, map[string]*OperationDescriptor, error) {
	byKey := make(map[string]*OperationDescriptor, len(ops))
	byID := make(map[string]*OperationDescriptor, len(ops))
	for i := range ops {
		op := &ops[i]
		key := op.Method + " " + op.PathTemplate
		if _, exists := byKey[key]; exists {
			return nil, nil, archerr.New(archerr.KindArtifactLoad,
				fmt.Sprintf("duplicate (method, path_template) pair in artifact: %s", key))
		}
		byKey[key] = op
		byID[op.ID] = op
	}
	return byKey, byID, nil
}

// canonicalize produces a deterministic byte sequence for checksum
// computation: operations sorted by id, schema keys sorted, embedded in a
// minimal JSON structure. This must match whatever produced the checksum at
// authoring time; a document that leaves checksum.value empty skips
// verification entirely (verifyChecksum treats it as unverifiable rather
// than as a failure).
func canonicalize(d *document) []byte {
	ops := append([]OperationDescriptor(nil), d.Operations...)
	sort.Slice(ops, func(i, j int) bool { return ops[i].ID < ops[j].ID })

	schemaKeys := make([]string, 0, len(d.Schemas))
	for k := range d.Schemas {
		schemaKeys = append(schemaKeys, k)
	}
	sort.Strings(schemaKeys)

	type canon struct {
		Operations []OperationDescriptor `json:"operations"`
		SchemaKeys []string              `json:"schema_keys"`
		Schemas    []json.RawMessage     `json:"schemas"`
	}
	c := canon{Operations: ops, SchemaKeys: schemaKeys}
	for _, k := range schemaKeys {
		c.Schemas = append(c.Schemas, d.Schemas[k])
	}
	b, _ := json.Marshal(c)
	return b
}

func verifyChecksum(d *document) error {
	if d.Checksum.Value == "" {
		return nil // no checksum bundled: treated as unverifiable, not a failure
	}
	switch d.Checksum.Algorithm {
	case "", "sha256":
		sum := sha256.Sum256(canonicalize(d))
		got := hex.EncodeToString(sum[:])
		if got != d.Checksum.Value {
			return archerr.New(archerr.KindArtifactLoad,
				fmt.Sprintf("checksum mismatch: artifact declares %s, computed %s", d.Checksum.Value, got))
		}
		return nil
	default:
		return archerr.New(archerr.KindArtifactLoad, "unsupported checksum algorithm: "+d.Checksum.Algorithm)
	}
}

func parse(raw []byte) (*document, error) {
	var d document
	jsonErr := json.Unmarshal(raw, &d)
	if jsonErr == nil && d.Service != "" {
		return &d, nil
	}
	if err := yaml.Unmarshal(raw, &d); err != nil {
		return nil, archerr.Wrap(archerr.KindArtifactLoad, err, "failed to parse contract artifact")
	}
	return &d, nil
}

// Build turns raw bytes into a LoadedArtifact: parse, checksum-verify, index.
func Build(raw []byte) (*LoadedArtifact, error) {
	d, err := parse(raw)
	if err != nil {
		return nil, err
	}
	if d.Service == "" {
		return nil, archerr.New(archerr.KindArtifactLoad, "artifact missing required field: service")
	}
	if err := verifyChecksum(d); err != nil {
		return nil, err
	}
	byKey, byID, err := index(d.Operations)
	if err != nil {
		return nil, err
	}
	return &LoadedArtifact{
		ServiceName: d.Service,
		Version:     d.Version,
		Format:      d.Format,
		Operations:  d.Operations,
		Schemas:     d.Schemas,
		byKey:       byKey,
		byID:        byID,
	}, nil
}
