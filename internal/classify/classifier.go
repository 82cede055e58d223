// Package classify decides whether a declared type can cross a process
// boundary as structurally serialized data: primitives, arrays and plain
// records of those, with no callables, symbols or undefined.
package classify

import (
	"math"

	"github.com/jward/ipcguard/internal/typegraph"
)

// Result is the outcome of classifying one type.
type Result int

const (
	NotSerializable Result = iota
	Serializable
)

// String returns a human-readable representation of the result.
func (r Result) String() string {
	if r == Serializable {
		return "serializable"
	}
	return "not serializable"
}

// Stats counts classifier work. Evaluations is the number of nodes whose
// structure was inspected; CacheHits the number answered from the cache;
// CycleAssumptions the number of revisits of an in-progress node.
type Stats struct {
	Evaluations      int
	CacheHits        int
	CycleAssumptions int
}

// Option configures a Classifier.
type Option func(*Classifier)

// WithPolicy sets the policy for missing declarations and cycles.
func WithPolicy(p Policy) Option {
	return func(c *Classifier) { c.policy = p }
}

// Classifier is a memoized serializability predicate over a type graph.
// Results are written to the Cache it was built with.
type Classifier struct {
	cache  *Cache
	policy Policy
	stats  Stats
}

// New creates a Classifier backed by cache. A nil cache gets a private one.
func New(cache *Cache, opts ...Option) *Classifier {
	if cache == nil {
		cache = NewCache()
	}
	c := &Classifier{cache: cache, policy: DefaultPolicy()}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Policy returns the policy in effect.
func (c *Classifier) Policy() Policy { return c.policy }

// Stats returns the work counters accumulated so far.
func (c *Classifier) Stats() Stats { return c.stats }

// Classify returns whether node is serializable. The result is cached.
func (c *Classifier) Classify(node typegraph.TypeNode) Result {
	if node == nil {
		return NotSerializable
	}
	r, _ := c.classify(node, make(map[typegraph.NodeID]int), 0)
	return r
}

// noAssumption is the assumption depth reported by a result that did not
// rely on any in-progress ancestor.
const noAssumption = math.MaxInt

// classify returns the result for node and the shallowest depth of an
// in-progress node whose assumed result it relied on. seen maps the IDs of
// the nodes on the current path to their depth.
//
// A result is only cached when every assumption it relied on refers to
// node itself or to a node below it; otherwise it is provisional on an
// ancestor that has not finished yet.
func (c *Classifier) classify(node typegraph.TypeNode, seen map[typegraph.NodeID]int, depth int) (Result, int) {
	id := node.ID()
	if r, ok := c.cache.Lookup(id); ok {
		c.stats.CacheHits++
		return r, noAssumption
	}
	if d, ok := seen[id]; ok {
		c.stats.CycleAssumptions++
		return c.policy.cycleAssumption(), d
	}

	c.stats.Evaluations++
	seen[id] = depth
	r, low := c.decide(node, seen, depth)
	delete(seen, id)

	if low < depth {
		return r, low
	}
	c.cache.store(id, r)
	return r, noAssumption
}

// decide applies the decision order to node; the first matching rule wins.
func (c *Classifier) decide(node typegraph.TypeNode, seen map[typegraph.NodeID]int, depth int) (Result, int) {
	low := noAssumption
	visit := func(child typegraph.TypeNode) Result {
		r, l := c.classify(child, seen, depth+1)
		low = min(low, l)
		return r
	}

	// 1. Unions need every member.
	if node.IsUnion() {
		for _, m := range node.UnionTypes() {
			if m == nil || visit(m) == NotSerializable {
				return NotSerializable, low
			}
		}
		return Serializable, low
	}

	// 2. Data primitives and string/number literals.
	if node.IsPrimitive(typegraph.PrimitiveString) ||
		node.IsPrimitive(typegraph.PrimitiveNumber) ||
		node.IsPrimitive(typegraph.PrimitiveBoolean) ||
		node.IsPrimitive(typegraph.PrimitiveNull) ||
		node.IsLiteral(typegraph.LiteralString) ||
		node.IsLiteral(typegraph.LiteralNumber) {
		return Serializable, low
	}

	// 3. undefined and symbol look like any other opaque type to the
	// structural predicates below.
	if text := node.Text(); text == "undefined" || text == "symbol" {
		return NotSerializable, low
	}

	// 4. Anything callable.
	if len(node.CallSignatures()) > 0 {
		return NotSerializable, low
	}

	// 5. Arrays follow their element.
	if node.IsArray() {
		elem := node.ArrayElementType()
		if elem == nil {
			return NotSerializable, low
		}
		return visit(elem), low
	}

	// 6. Records need every property.
	if node.IsRecord() {
		for _, prop := range node.Properties() {
			if prop.Type == nil {
				if c.policy.missingDeclaration() == NotSerializable {
					return NotSerializable, low
				}
				continue
			}
			if visit(prop.Type) == NotSerializable {
				return NotSerializable, low
			}
		}
		return Serializable, low
	}

	// 7. Closed world.
	return NotSerializable, low
}
