// Package cache provides the short-lived result caches used to bound
// store load during validation and role lookups. The cache is an explicit
// injected component rather than ambient process-global state so tests can
// substitute [Nop] and multi-instance deployments can substitute a shared
// implementation.
package cache

import (
	"sync"
	"time"
)

// Cache stores values under string keys with a per-entry deadline. An
// entry must never be served past its deadline.
type Cache interface {
	Get(key string, now time.Time) (any, bool)
	Set(key string, value any, expiresAt time.Time)
	Delete(key string)
}

// Nop is a Cache that stores nothing. Every Get misses.
type Nop struct{}

func (Nop) Get(string, time.Time) (any, bool) { return nil, false }
func (Nop) Set(string, any, time.Time)        {}
func (Nop) Delete(string)                     {}

type entry struct {
	value     any
	expiresAt time.Time
}

// TTL is an in-process Cache with lazy expiry and periodic sweeps.
type TTL struct {
	mu      sync.RWMutex
	entries map[string]entry

	sweepEvery int
	writes     int
}

// NewTTL returns an empty in-process cache. A full sweep of expired
// entries runs every sweepEvery writes (default 256).
func NewTTL(sweepEvery int) *TTL {
	if sweepEvery <= 0 {
		sweepEvery = 256
	}
	return &TTL{
		entries:    make(map[string]entry),
		sweepEvery: sweepEvery,
	}
}

// Get returns the cached value if present and not yet expired at now.
func (c *TTL) Get(key string, now time.Time) (any, bool) {
	c.mu.RLock()
	e, ok := c.entries[key]
	c.mu.RUnlock()
	if !ok || !now.Before(e.expiresAt) {
		return nil, false
	}
	return e.value, true
}

// Set stores value until expiresAt. A non-positive deadline is ignored.
func (c *TTL) Set(key string, value any, expiresAt time.Time) {
	if expiresAt.IsZero() {
		return
	}
	c.mu.Lock()
	c.entries[key] = entry{value: value, expiresAt: expiresAt}
	c.writes++
	if c.writes >= c.sweepEvery {
		c.writes = 0
		c.sweepLocked(time.Now())
	}
	c.mu.Unlock()
}

// Delete evicts key immediately.
func (c *TTL) Delete(key string) {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
}

// Len returns the number of entries currently held, expired or not.
func (c *TTL) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *TTL) sweepLocked(now time.Time) {
	for k, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, k)
		}
	}
}
