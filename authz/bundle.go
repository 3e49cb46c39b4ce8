package authz

import (
	"archive/tar"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/archimedes-run/archimedes/archerr"
	"gopkg.in/yaml.v3"
)

// Manifest is the bundle's optional `.manifest` document.
type Manifest struct {
	Revision string   `json:"revision" yaml:"revision"`
	Roots    []string `json:"roots" yaml:"roots"`
}

// Bundle is a parsed policy bundle: Rego modules plus data documents. The
// tar+gzip container format is a close structural match for a real OPA
// bundle, so this loader hands modules and data straight to the
// open-policy-agent/opa rego package rather than reimplementing bundle
// semantics.
type Bundle struct {
	Manifest Manifest
	Modules  map[string]string // path -> rego source
	Data     map[string]any    // path -> parsed data.json document
}

// ParseBundle reads a tar+gzip archive containing a `.manifest`, any number
// of `.rego` policy source files, and `data.json` documents. Manifest is
// optional; when absent, zero-value defaults are used.
func ParseBundle(r io.Reader) (*Bundle, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return nil, archerr.Wrap(archerr.KindPolicyLoad, err, "policy bundle is not gzip")
	}
	defer gz.Close()

	tr := tar.NewReader(gz)
	b := &Bundle{Modules: make(map[string]string), Data: make(map[string]any)}

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, archerr.Wrap(archerr.KindPolicyLoad, err, "corrupt policy bundle tar stream")
		}
		if hdr.Typeflag != tar.TypeReg {
			continue
		}
		content, err := io.ReadAll(tr)
		if err != nil {
			return nil, archerr.Wrap(archerr.KindPolicyLoad, err, "failed reading bundle entry "+hdr.Name)
		}

		switch {
		case hdr.Name == ".manifest" || strings.HasSuffix(hdr.Name, "/.manifest"):
			if err := yaml.Unmarshal(content, &b.Manifest); err != nil {
				if jerr := json.Unmarshal(content, &b.Manifest); jerr != nil {
					return nil, archerr.Wrap(archerr.KindPolicyLoad, err, "failed parsing .manifest")
				}
			}
		case strings.HasSuffix(hdr.Name, ".rego"):
			b.Modules[hdr.Name] = string(content)
		case strings.HasSuffix(hdr.Name, "data.json"):
			var doc any
			if err := json.Unmarshal(content, &doc); err != nil {
				return nil, archerr.Wrap(archerr.KindPolicyLoad, err, "failed parsing "+hdr.Name)
			}
			b.Data[hdr.Name] = doc
		}
	}

	if len(b.Modules) == 0 {
		return nil, archerr.New(archerr.KindPolicyLoad, fmt.Sprintf("policy bundle %q contains no .rego modules", b.Manifest.Revision))
	}
	return b, nil
}
