package authz

import (
	"context"

	"github.com/archimedes-run/archimedes/identity"
)

// Authorizer produces allow/deny decisions ahead of handler execution. It
// owns the evaluator and the cache as plain fields — per the design notes,
// there is no back-pointer from the evaluator to the authorizer, breaking
// the cyclic reference the original design calls out.
type Authorizer struct {
	evaluator Evaluator
	cache     *Cache
	remote    *RemoteCache
	service   string
}

// New builds an Authorizer over an evaluator and cache config.
func New(service string, evaluator Evaluator, cacheCfg CacheConfig) *Authorizer {
	return &Authorizer{evaluator: evaluator, cache: NewCache(cacheCfg), service: service}
}

// WithRemoteCache attaches an optional shared second-tier cache, consulted
// on local-cache miss and populated alongside it. Returns the authorizer for
// chaining at construction time.
func (a *Authorizer) WithRemoteCache(r *RemoteCache) *Authorizer {
	a.remote = r
	return a
}

// AuthorizeInput is what a caller of Authorize supplies; it is translated
// into authz.Input for the evaluator and into a CacheKey for the cache.
type AuthorizeInput struct {
	Caller      identity.Caller
	OperationID string
	Method      string
	Path        string
	RequestID   string
}

// Authorize consults the decision cache; on miss it invokes the evaluator.
// A policy-evaluation error is treated as deny (fail-closed) with the
// underlying error surfaced as the reason.
func (a *Authorizer) Authorize(ctx context.Context, in AuthorizeInput) Decision {
	key := Fingerprint(in.Caller, a.service, in.OperationID, in.Method)
	if d, ok := a.cache.Get(key); ok {
		return d
	}
	if a.remote != nil {
		if d, ok := a.remote.Get(ctx, key); ok {
			a.cache.Put(key, d)
			return d
		}
	}

	d, err := a.evaluator.Evaluate(ctx, Input{
		Caller:      identityJSON(in.Caller),
		Service:     a.service,
		OperationID: in.OperationID,
		Method:      in.Method,
		Path:        in.Path,
		RequestID:   in.RequestID,
	})
	if err != nil {
		d = Decision{Allowed: false, Reason: err.Error()}
	}

	a.cache.Put(key, d)
	if a.remote != nil && (d.Allowed || a.cache.cfg.CacheDenies) {
		a.remote.Put(ctx, key, d)
	}
	return d
}

// ReloadBundle swaps in a freshly loaded policy bundle and forces a cache
// clear: a cached decision made under the old bundle must never be served
// after a reload.
func (a *Authorizer) ReloadBundle(ctx context.Context, bundle *Bundle) error {
	if err := a.evaluator.Reload(ctx, bundle); err != nil {
		return err
	}
	a.cache.Clear()
	return nil
}

// CacheStats exposes the decision cache's lifetime counters.
func (a *Authorizer) CacheStats() CacheStats { return a.cache.Stats() }

func identityJSON(c identity.Caller) map[string]any {
	return map[string]any{
		"kind": identity.Kind(c),
		"key":  identity.Key(c),
	}
}
