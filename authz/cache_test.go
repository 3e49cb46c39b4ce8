package authz

import (
	"testing"
	"time"

	"github.com/archimedes-run/archimedes/identity"
)

func TestCacheHitWithinTTL(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Minute, CacheDenies: true})
	key := Fingerprint(identity.Anonymous{}, "svc", "getUser", "GET")

	c.Put(key, Decision{Allowed: true})
	d, ok := c.Get(key)
	if !ok || !d.Allowed {
		t.Fatalf("expected cache hit with allowed decision, got %+v ok=%v", d, ok)
	}
	if c.Stats().Hits != 1 {
		t.Fatalf("expected 1 hit, got %d", c.Stats().Hits)
	}
}

func TestCacheExpiredTreatedAsMiss(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Millisecond, CacheDenies: true})
	key := Fingerprint(identity.Anonymous{}, "svc", "getUser", "GET")
	c.Put(key, Decision{Allowed: true})

	time.Sleep(5 * time.Millisecond)
	if _, ok := c.Get(key); ok {
		t.Fatal("expected expired entry to be treated as a miss")
	}
	if c.Stats().Misses != 1 {
		t.Fatalf("expected 1 miss, got %d", c.Stats().Misses)
	}
}

func TestCacheDenyNotCachedUnlessConfigured(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Minute, CacheDenies: false})
	key := Fingerprint(identity.Anonymous{}, "svc", "deleteUser", "DELETE")
	c.Put(key, Decision{Allowed: false, Reason: "not in scope"})

	if _, ok := c.Get(key); ok {
		t.Fatal("expected deny decision not to be cached when CacheDenies is false")
	}
}

func TestCacheEvictsOldestWhenFull(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 2, TTL: time.Hour, CacheDenies: true})
	k1 := Fingerprint(identity.Anonymous{}, "svc", "op1", "GET")
	k2 := Fingerprint(identity.Anonymous{}, "svc", "op2", "GET")
	k3 := Fingerprint(identity.Anonymous{}, "svc", "op3", "GET")

	c.Put(k1, Decision{Allowed: true})
	time.Sleep(time.Millisecond)
	c.Put(k2, Decision{Allowed: true})
	time.Sleep(time.Millisecond)
	c.Put(k3, Decision{Allowed: true})

	if _, ok := c.Get(k1); ok {
		t.Fatal("expected oldest entry to be evicted")
	}
	if _, ok := c.Get(k2); !ok {
		t.Fatal("expected k2 to still be present")
	}
	if _, ok := c.Get(k3); !ok {
		t.Fatal("expected k3 to still be present")
	}
	if c.Stats().Evictions != 1 {
		t.Fatalf("expected 1 eviction, got %d", c.Stats().Evictions)
	}
}

func TestCacheClearForcesReEvaluation(t *testing.T) {
	c := NewCache(CacheConfig{MaxEntries: 10, TTL: time.Hour, CacheDenies: true})
	key := Fingerprint(identity.Anonymous{}, "svc", "op", "GET")
	c.Put(key, Decision{Allowed: true})
	c.Clear()

	if _, ok := c.Get(key); ok {
		t.Fatal("expected Clear to discard every entry")
	}
}
