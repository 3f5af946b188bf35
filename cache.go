package unitpool

import (
	"sort"
	"sync"
)

// LocalCache is a container's memo of resolved units, backed by its
// repository. A name, once bound, is never rebound.
type LocalCache struct {
	repo Repository

	mu    sync.RWMutex
	units map[string]cacheEntry
}

// cacheEntry remembers which container a unit came from when it was taken
// from another container's cache. A nil owner means the cache's own container.
type cacheEntry struct {
	unit  Unit
	owner *Container
}

func NewLocalCache(repo Repository) *LocalCache {
	return &LocalCache{
		repo:  repo,
		units: make(map[string]cacheEntry),
	}
}

// Lookup is the raw memo check.
func (c *LocalCache) Lookup(name string) (Unit, bool) {
	e, ok := c.entry(name)
	return e.unit, ok
}

func (c *LocalCache) entry(name string) (cacheEntry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.units[name]
	return e, ok
}

// Resolved checks the memo, then whether the repository already reports the
// unit materialized. A repository hit is recorded in the memo.
func (c *LocalCache) Resolved(name string) (Unit, bool) {
	if u, ok := c.Lookup(name); ok {
		return u, true
	}
	if c.repo == nil {
		return nil, false
	}
	u, ok := c.repo.Materialized(name)
	if !ok || u == nil {
		return nil, false
	}
	return c.Store(name, u), true
}

// Store binds name to u unless it is already bound, and returns the bound unit.
func (c *LocalCache) Store(name string, u Unit) Unit {
	return c.store(name, cacheEntry{unit: u}).unit
}

func (c *LocalCache) store(name string, e cacheEntry) cacheEntry {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.units[name]; ok {
		return existing
	}
	c.units[name] = e
	return e
}

// Names returns the memoized names in sorted order.
func (c *LocalCache) Names() []string {
	c.mu.RLock()
	names := make([]string, 0, len(c.units))
	for name := range c.units {
		names = append(names, name)
	}
	c.mu.RUnlock()
	sort.Strings(names)
	return names
}

// Len returns the number of memoized units.
func (c *LocalCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.units)
}
