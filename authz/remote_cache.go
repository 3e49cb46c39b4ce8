package authz

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RemoteCache is an optional second-tier decision cache shared across
// Archimedes instances, grounded in the teacher gateway's
// redisclient/redis.go client construction. Unlike the local Cache, entries
// here are only evicted by TTL expiry: a policy reload clears the local
// tier immediately but a remote entry written under the old bundle can
// still be served to another instance until its TTL elapses. Callers that
// need stronger cross-instance consistency on reload should shorten TTL
// rather than rely on RemoteCache for correctness.
type RemoteCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRemoteCache dials a Redis instance from a connection URL (e.g.
// redis://host:6379/0). The prefix namespaces keys so multiple services can
// share one Redis instance without collision.
func NewRemoteCache(redisURL, prefix string, ttl time.Duration) (*RemoteCache, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	return &RemoteCache{client: redis.NewClient(opt), prefix: prefix, ttl: ttl}, nil
}

func (r *RemoteCache) key(k CacheKey) string {
	return fmt.Sprintf("%s:authz:%d", r.prefix, uint64(k))
}

// Get returns a decision if present in Redis and unexpired.
func (r *RemoteCache) Get(ctx context.Context, key CacheKey) (Decision, bool) {
	raw, err := r.client.Get(ctx, r.key(key)).Bytes()
	if err != nil {
		return Decision{}, false
	}
	var d Decision
	if err := json.Unmarshal(raw, &d); err != nil {
		return Decision{}, false
	}
	return d, true
}

// Put writes a decision with the configured TTL. Errors are swallowed: a
// failed remote write degrades to local-cache-only behavior rather than
// failing the request.
func (r *RemoteCache) Put(ctx context.Context, key CacheKey, d Decision) {
	raw, err := json.Marshal(d)
	if err != nil {
		return
	}
	_ = r.client.Set(ctx, r.key(key), raw, r.ttl).Err()
}

// Ping verifies connectivity, used at startup to fail fast on misconfigured
// Redis connection details.
func (r *RemoteCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// Close releases the underlying connection pool.
func (r *RemoteCache) Close() error {
	return r.client.Close()
}
