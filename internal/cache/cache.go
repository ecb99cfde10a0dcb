package cache

import (
	"context"
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"betledger/internal/address"
	"betledger/internal/metrics"
)

// DefaultTTL is how long a read-model entry stays fresh.
const DefaultTTL = 10 * time.Second

// Config configures a Cache.
type Config struct {
	Name    string
	TTL     time.Duration
	Now     func() time.Time
	Metrics *metrics.Metrics
}

type entry[V any] struct {
	value    V
	cachedAt time.Time
}

// Cache is a TTL cache for derived chain state keyed by normalized address.
// Concurrent misses for the same key share one in-flight fetch.
type Cache[V any] struct {
	name    string
	ttl     time.Duration
	now     func() time.Time
	metrics *metrics.Metrics

	mu      sync.Mutex
	entries map[address.Address]entry[V]
	pending singleflight.Group
}

// New builds an empty cache. Construct one per process and inject it into
// its consumers.
func New[V any](cfg Config) *Cache[V] {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Name == "" {
		cfg.Name = "default"
	}
	return &Cache[V]{
		name:    cfg.Name,
		ttl:     cfg.TTL,
		now:     cfg.Now,
		metrics: cfg.Metrics,
		entries: make(map[address.Address]entry[V]),
	}
}

// Get returns the cached value if it is still fresh. Stale entries are evicted.
func (c *Cache[V]) Get(key address.Address) (V, bool) {
	v, ok := c.lookup(key)
	c.metrics.ObserveCacheLookup(c.name, ok)
	return v, ok
}

func (c *Cache[V]) lookup(key address.Address) (V, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		var zero V
		return zero, false
	}
	if c.now().Sub(e.cachedAt) >= c.ttl {
		delete(c.entries, key)
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with the current time.
func (c *Cache[V]) Set(key address.Address, value V) {
	c.mu.Lock()
	c.entries[key] = entry[V]{value: value, cachedAt: c.now()}
	c.mu.Unlock()
}

// Invalidate drops key so the next GetOrFetch issues a fresh fetch.
func (c *Cache[V]) Invalidate(key address.Address) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache[V]) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// GetOrFetch returns the cached value for key or runs fetch, sharing a single
// in-flight call among concurrent callers. The result is written to the cache
// before the pending call is released, so later callers hit the cache.
//
// A failed fetch stores the zero value and returns it with the error; the
// zero value is served until it expires or the key is invalidated.
func (c *Cache[V]) GetOrFetch(ctx context.Context, key address.Address, fetch func(context.Context) (V, error)) (V, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}

	fetchCtx := context.WithoutCancel(ctx)
	ch := c.pending.DoChan(key.Hex(), func() (interface{}, error) {
		// a previous flight may have filled the entry after our miss
		if v, ok := c.lookup(key); ok {
			return v, nil
		}
		v, err := fetch(fetchCtx)
		c.metrics.ObserveCacheFetch(c.name, err)
		if err != nil {
			var zero V
			v = zero
		}
		c.Set(key, v)
		return v, err
	})

	select {
	case <-ctx.Done():
		var zero V
		return zero, ctx.Err()
	case res := <-ch:
		v, _ := res.Val.(V)
		return v, res.Err
	}
}
