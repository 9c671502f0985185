package cache

import (
	"sync"
	"time"
)

type entry[V any] struct {
	value     V
	expiresAt time.Time
}

// Cache is a concurrency-safe time-boxed key/value memo. Reads vastly
// outnumber writes on the serving path, so lookups take the read lock only.
// Expired entries are overwritten on the next Set; there is no background
// sweeper.
type Cache[V any] struct {
	mu  sync.RWMutex
	ttl time.Duration
	m   map[string]entry[V]
}

// New creates a Cache whose entries expire ttl after they are set.
func New[V any](ttl time.Duration) *Cache[V] {
	return &Cache[V]{
		ttl: ttl,
		m:   make(map[string]entry[V]),
	}
}

// Get returns the value for key if it is present and not expired.
func (c *Cache[V]) Get(key string) (V, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	e, ok := c.m[key]
	if !ok || time.Now().After(e.expiresAt) {
		var zero V
		return zero, false
	}
	return e.value, true
}

// Set stores value under key with a fresh TTL.
func (c *Cache[V]) Set(key string, value V) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.m[key] = entry[V]{value: value, expiresAt: time.Now().Add(c.ttl)}
}
