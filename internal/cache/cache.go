// Package cache is a process-local TTL cache placed in front of the store.
//
// Entries carry an absolute expiry and are dropped lazily when read after it.
// Writers to the store must call Invalidate; the cache is not write-through.
package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
)

// Entry is a cached value with its absolute expiry.
type Entry struct {
	Key       string
	Value     any
	ExpiresAt time.Time
}

// Cache is a bounded TTL cache. It is safe for concurrent use.
type Cache struct {
	entries *lru.Cache[string, Entry]
	group   singleflight.Group

	mu  sync.Mutex
	now func() time.Time
}

// New returns a cache holding at most size entries.
func New(size int) (*Cache, error) {
	entries, err := lru.New[string, Entry](size)
	if err != nil {
		return nil, fmt.Errorf("failed to create cache: %w", err)
	}
	return &Cache{entries: entries, now: time.Now}, nil
}

// SetClock replaces the time source. Used by tests.
func (c *Cache) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *Cache) clock() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now()
}

// Get returns the live value for key.
func (c *Cache) Get(key string) (any, bool) {
	e, ok := c.entries.Get(key)
	if !ok {
		return nil, false
	}
	if !c.clock().Before(e.ExpiresAt) {
		c.entries.Remove(key)
		return nil, false
	}
	return e.Value, true
}

// Set stores value under key for ttl.
func (c *Cache) Set(key string, value any, ttl time.Duration) {
	c.entries.Add(key, Entry{Key: key, Value: value, ExpiresAt: c.clock().Add(ttl)})
}

// Invalidate drops key so the next read goes to the store.
func (c *Cache) Invalidate(key string) {
	c.entries.Remove(key)
	c.group.Forget(key)
}

// Len returns the number of stored entries, expired ones included.
func (c *Cache) Len() int {
	return c.entries.Len()
}

// GetOrCompute returns the cached value for key, or calls compute, caches its
// result for ttl and returns it. Concurrent misses on one key share a single
// compute call. Errors are not cached.
func (c *Cache) GetOrCompute(ctx context.Context, key string, compute func(context.Context) (any, error), ttl time.Duration) (any, error) {
	if v, ok := c.Get(key); ok {
		return v, nil
	}
	v, err, _ := c.group.Do(key, func() (any, error) {
		if v, ok := c.Get(key); ok {
			return v, nil
		}
		v, err := compute(ctx)
		if err != nil {
			return nil, err
		}
		c.Set(key, v, ttl)
		return v, nil
	})
	return v, err
}
