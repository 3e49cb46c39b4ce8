// Package router implements Archimedes's contract-aware radix-style path
// matcher (component A). It is a from-scratch trie rather than a vendored
// router: ambiguous-registration detection and the NotFound/MethodNotAllowed
// distinction are core, test-bearing behavior the product owns directly.
package router

import (
	"sort"
	"strings"

	"github.com/archimedes-run/archimedes/archerr"
)

// Handler is the router's payload type: anything can be stashed on a route
// (an http.Handler, an operation id, a closure) and recovered on resolve.
type Handler any

// Route is the (method, path_template, operation_id, handler) tuple the
// spec assigns to the Router's storage.
type Route struct {
	Method       string
	PathTemplate string
	OperationID  string
	Handler      Handler
	Tags         []string
}

// Outcome is the tri-state result of Resolve.
type Outcome int

const (
	Matched Outcome = iota
	NotFound
	MethodNotAllowed
)

// Resolution is what Resolve returns on a match.
type Resolution struct {
	Outcome     Outcome
	Route       *Route
	Params      map[string]string
}

type nodeKind int

const (
	kindLiteral nodeKind = iota
	kindParam
)

type node struct {
	segment  string // literal text, or param name when kind==kindParam
	kind     nodeKind
	children map[string]*node // literal children keyed by segment text
	param    *node            // at most one parameter child
	routes   map[string]*Route // keyed by uppercase HTTP method, only on terminal nodes
}

func newNode(segment string, kind nodeKind) *node {
	return &node{segment: segment, kind: kind, children: make(map[string]*node)}
}

// Tree is the method-indexed radix trie described in §4.A.
type Tree struct {
	root *node
}

// New creates an empty router.
func New() *Tree {
	return &Tree{root: newNode("", kindLiteral)}
}

func splitPath(path string) []string {
	trimmed := strings.Trim(path, "/")
	if trimmed == "" {
		return nil
	}
	return strings.Split(trimmed, "/")
}

func isParamSegment(seg string) (string, bool) {
	if len(seg) >= 3 && seg[0] == '{' && seg[len(seg)-1] == '}' {
		return seg[1 : len(seg)-1], true
	}
	return "", false
}

// Register adds a route. It rejects duplicate (method, template)
// registrations and ambiguous precedence at the same trie position (two
// distinct parameter names claiming the same slot).
func (t *Tree) Register(method, pathTemplate, operationID string, handler Handler, tags ...string) error {
	method = strings.ToUpper(method)
	segments := splitPath(pathTemplate)

	cur := t.root
	for _, seg := range segments {
		if name, ok := isParamSegment(seg); ok {
			if cur.param == nil {
				cur.param = newNode(name, kindParam)
			} else if cur.param.segment != name {
				return archerr.New(archerr.KindHandlerRegistration,
					"ambiguous route: parameter segment name mismatch at same trie position ("+
						cur.param.segment+" vs "+name+")")
			}
			cur = cur.param
			continue
		}
		child, ok := cur.children[seg]
		if !ok {
			child = newNode(seg, kindLiteral)
			cur.children[seg] = child
		}
		cur = child
	}

	if cur.routes == nil {
		cur.routes = make(map[string]*Route)
	}
	if _, exists := cur.routes[method]; exists {
		return archerr.New(archerr.KindHandlerRegistration,
			"duplicate route registration for "+method+" "+pathTemplate)
	}
	cur.routes[method] = &Route{
		Method:       method,
		PathTemplate: pathTemplate,
		OperationID:  operationID,
		Handler:      handler,
		Tags:         tags,
	}
	return nil
}

// Resolve walks the trie for (method, path). Literal segments are preferred
// over parameter segments at each level, so exact matches always win.
// Trailing-slash-insensitive: slashes are trimmed on both registration and
// resolution, so "/foo/" and "/foo" always resolve to the same route, and
// registering both forms for one method is rejected as a duplicate.
func (t *Tree) Resolve(method, path string) Resolution {
	method = strings.ToUpper(method)
	segments := splitPath(path)
	params := make(map[string]string)

	n, ok := t.walk(t.root, segments, params)
	if !ok {
		return Resolution{Outcome: NotFound}
	}
	if n.routes == nil {
		return Resolution{Outcome: NotFound}
	}
	route, ok := n.routes[method]
	if !ok {
		if len(n.routes) > 0 {
			return Resolution{Outcome: MethodNotAllowed}
		}
		return Resolution{Outcome: NotFound}
	}
	return Resolution{Outcome: Matched, Route: route, Params: params}
}

func (t *Tree) walk(n *node, segments []string, params map[string]string) (*node, bool) {
	if len(segments) == 0 {
		return n, true
	}
	seg := segments[0]
	rest := segments[1:]

	if child, ok := n.children[seg]; ok {
		if found, ok := t.walk(child, rest, params); ok {
			return found, true
		}
	}
	if n.param != nil {
		params[n.param.segment] = seg
		if found, ok := t.walk(n.param, rest, params); ok {
			return found, true
		}
		delete(params, n.param.segment)
	}
	return nil, false
}

// Routes returns every registered route, sorted by (template, method), for
// introspection (contract docs, diagnostics).
func (t *Tree) Routes() []*Route {
	var out []*Route
	var walk func(n *node)
	walk = func(n *node) {
		for _, m := range sortedMethods(n.routes) {
			out = append(out, n.routes[m])
		}
		keys := make([]string, 0, len(n.children))
		for k := range n.children {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			walk(n.children[k])
		}
		if n.param != nil {
			walk(n.param)
		}
	}
	walk(t.root)
	return out
}

func sortedMethods(m map[string]*Route) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Nest mounts sub's routes under prefix, propagating tags. It returns an
// error if any nested route collides with an existing registration.
func (t *Tree) Nest(prefix string, sub *Tree) error {
	prefix = strings.TrimSuffix(prefix, "/")
	for _, r := range sub.Routes() {
		combined := prefix + "/" + strings.TrimPrefix(r.PathTemplate, "/")
		if err := t.Register(r.Method, combined, r.OperationID, r.Handler, r.Tags...); err != nil {
			return err
		}
	}
	return nil
}

// Merge unions sub's routes into t without a prefix change.
func (t *Tree) Merge(sub *Tree) error {
	for _, r := range sub.Routes() {
		if err := t.Register(r.Method, r.PathTemplate, r.OperationID, r.Handler, r.Tags...); err != nil {
			return err
		}
	}
	return nil
}
