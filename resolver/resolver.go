// Package resolver binds raw HTTP requests to their contract operation and
// typed path parameters (component B). It is built on top of router.Tree,
// indexed from a LoadedArtifact.
package resolver

import (
	"github.com/archimedes-run/archimedes/archerr"
	"github.com/archimedes-run/archimedes/artifact"
	"github.com/archimedes-run/archimedes/router"
)

// Resolution is the result of a successful resolve: the operation id, the
// matched template, and the bound path parameters.
type Resolution struct {
	OperationID  string
	PathTemplate string
	Params       map[string]string
}

// Resolver maps (method, path) to a contract operation.
type Resolver struct {
	tree     *router.Tree
	artifact *artifact.LoadedArtifact
}

// New builds a Resolver from a loaded artifact: every operation is
// registered into an internal router-like index keyed by
// (method_uppercase, template).
func New(a *artifact.LoadedArtifact) (*Resolver, error) {
	tree := router.New()
	for _, op := range a.Operations {
		if err := tree.Register(op.Method, op.PathTemplate, op.ID, op.ID); err != nil {
			return nil, archerr.Wrap(archerr.KindArtifactLoad, err, "failed to index operation "+op.ID)
		}
	}
	return &Resolver{tree: tree, artifact: a}, nil
}

// Resolve binds (method, path) to an OperationResolution, or reports
// OperationNotFound / a method mismatch.
func (r *Resolver) Resolve(method, path string) (*Resolution, error) {
	res := r.tree.Resolve(method, path)
	switch res.Outcome {
	case router.Matched:
		return &Resolution{
			OperationID:  res.Route.OperationID,
			PathTemplate: res.Route.PathTemplate,
			Params:       res.Params,
		}, nil
	case router.MethodNotAllowed:
		return nil, archerr.New(archerr.KindMethodNotAllowed, "method "+method+" not allowed for "+path)
	default:
		return nil, archerr.New(archerr.KindOperationNotFound, "no operation matches "+method+" "+path)
	}
}

// Operation returns the static descriptor for a resolved operation id.
func (r *Resolver) Operation(id string) (*artifact.OperationDescriptor, bool) {
	return r.artifact.ByID(id)
}
