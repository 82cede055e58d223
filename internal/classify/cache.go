package classify

import "github.com/jward/ipcguard/internal/typegraph"

// Cache memoizes classification results by node identity. It belongs to
// exactly one type graph (one project configuration) and is not safe for
// concurrent use.
type Cache struct {
	results    map[typegraph.NodeID]Result
	generation uint64
}

// NewCache returns an empty cache.
func NewCache() *Cache {
	return &Cache{results: make(map[typegraph.NodeID]Result)}
}

// Lookup returns the cached result for id.
func (c *Cache) Lookup(id typegraph.NodeID) (Result, bool) {
	r, ok := c.results[id]
	return r, ok
}

func (c *Cache) store(id typegraph.NodeID, r Result) { c.results[id] = r }

// Len returns the number of cached results.
func (c *Cache) Len() int { return len(c.results) }

// Reset drops every cached result.
func (c *Cache) Reset() {
	clear(c.results)
}

// Sync resets the cache when generation differs from the generation the
// cached results were computed under. It reports whether a reset happened.
func (c *Cache) Sync(generation uint64) bool {
	if generation == c.generation {
		return false
	}
	c.Reset()
	c.generation = generation
	return true
}
