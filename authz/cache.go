// Package authz implements the policy-evaluation authorizer and its
// decision cache (component D). The cache's eviction and TTL semantics are
// grounded in the teacher gateway's semantic cache engine (sharded map +
// atomic counters + oldest-first eviction), adapted from similarity-based
// eviction to fingerprint/TTL-based eviction.
package authz

import (
	"hash/fnv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/archimedes-run/archimedes/identity"
)

// Decision is the allow/deny outcome produced by the authorizer.
type Decision struct {
	Allowed         bool
	Reason          string
	PolicyID        string
	PolicyVersion   string
	EvaluationNanos int64
}

// CacheKey is the fingerprint the decision cache is indexed by: a 64-bit
// hash of (caller identity, service, operation id, method). The open
// question in the design notes (whether this hash is meant to be stable
// across restarts) is resolved here as "no" — the fingerprint is
// process-lifetime only and is never persisted or compared cross-process.
type CacheKey uint64

// Fingerprint computes a CacheKey. Collisions are possible (it's a hash, not
// an identity); a collision causes a cache hit that serves a decision for a
// different but colliding input. This mirrors the non-cryptographic,
// debug-printed-identity hash the original design uses.
func Fingerprint(caller identity.Caller, service, operationID, method string) CacheKey {
	h := fnv.New64a()
	h.Write([]byte(identity.Kind(caller)))
	h.Write([]byte{0})
	h.Write([]byte(identity.Key(caller)))
	h.Write([]byte{0})
	h.Write([]byte(service))
	h.Write([]byte{0})
	h.Write([]byte(operationID))
	h.Write([]byte{0})
	h.Write([]byte(method))
	return CacheKey(h.Sum64())
}

type cacheEntry struct {
	decision  Decision
	createdAt time.Time
}

// CacheConfig configures the decision cache. Presets mirror the
// production/development/disabled shapes found in the original
// implementation's cache config (archimedes-authz/src/cache.rs), which the
// distilled spec.md dropped.
type CacheConfig struct {
	MaxEntries  int
	TTL         time.Duration
	CacheDenies bool
}

// ProductionCacheConfig is a conservative, higher-capacity preset.
func ProductionCacheConfig() CacheConfig {
	return CacheConfig{MaxEntries: 100_000, TTL: 60 * time.Second, CacheDenies: true}
}

// DevelopmentCacheConfig is a small, short-TTL preset for local iteration.
func DevelopmentCacheConfig() CacheConfig {
	return CacheConfig{MaxEntries: 1_000, TTL: 5 * time.Second, CacheDenies: false}
}

// DisabledCacheConfig turns the cache into a pass-through with zero capacity.
func DisabledCacheConfig() CacheConfig {
	return CacheConfig{MaxEntries: 0, TTL: 0, CacheDenies: false}
}

// CacheStats reports the cache's lifetime counters.
type CacheStats struct {
	Hits      uint64
	Misses    uint64
	Evictions uint64
}

// Cache is the fixed-capacity, TTL-governed decision cache.
type Cache struct {
	mu      sync.RWMutex
	entries map[CacheKey]cacheEntry
	cfg     CacheConfig

	hits      atomic.Uint64
	misses    atomic.Uint64
	evictions atomic.Uint64
}

// NewCache builds a decision cache from the given config.
func NewCache(cfg CacheConfig) *Cache {
	return &Cache{entries: make(map[CacheKey]cacheEntry), cfg: cfg}
}

// Get returns a decision if present and not expired, treating an expired
// hit as a miss.
func (c *Cache) Get(key CacheKey) (Decision, bool) {
	if c.cfg.MaxEntries == 0 {
		c.misses.Add(1)
		return Decision{}, false
	}
	c.mu.RLock()
	entry, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || time.Since(entry.createdAt) > c.cfg.TTL {
		c.misses.Add(1)
		return Decision{}, false
	}
	c.hits.Add(1)
	return entry.decision, true
}

// Put inserts a decision, applying the allow-always-cacheable /
// deny-cacheable-if-configured policy. On insert, if the cache is at
// capacity, expired entries are evicted first; if still full, the oldest
// entry (by creation instant) is evicted.
func (c *Cache) Put(key CacheKey, d Decision) {
	if c.cfg.MaxEntries == 0 {
		return
	}
	if !d.Allowed && !c.cfg.CacheDenies {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictExpiredLocked()
	}
	if len(c.entries) >= c.cfg.MaxEntries {
		c.evictOldestLocked()
	}
	c.entries[key] = cacheEntry{decision: d, createdAt: time.Now()}
}

func (c *Cache) evictExpiredLocked() {
	now := time.Now()
	for k, e := range c.entries {
		if now.Sub(e.createdAt) > c.cfg.TTL {
			delete(c.entries, k)
			c.evictions.Add(1)
		}
	}
}

func (c *Cache) evictOldestLocked() {
	var oldestKey CacheKey
	var oldestAt time.Time
	first := true
	for k, e := range c.entries {
		if first || e.createdAt.Before(oldestAt) {
			oldestKey = k
			oldestAt = e.createdAt
			first = false
		}
	}
	if !first {
		delete(c.entries, oldestKey)
		c.evictions.Add(1)
	}
}

// Clear discards every entry. Mandatory on policy bundle reload.
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[CacheKey]cacheEntry)
}

// Stats returns a snapshot of the lifetime counters.
func (c *Cache) Stats() CacheStats {
	return CacheStats{
		Hits:      c.hits.Load(),
		Misses:    c.misses.Load(),
		Evictions: c.evictions.Load(),
	}
}
