package classify

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ipcguard/internal/typegraph"
)

// fakeNode is a hand-built TypeNode.
type fakeNode struct {
	id      typegraph.NodeID
	text    string
	prim    typegraph.Primitive
	lit     typegraph.Literal
	isUnion bool
	members []typegraph.TypeNode
	sigs    []typegraph.Signature
	isArray bool
	elem    typegraph.TypeNode
	record  bool
	props   []typegraph.Property
}

func (f *fakeNode) ID() typegraph.NodeID                   { return f.id }
func (f *fakeNode) Text() string                           { return f.text }
func (f *fakeNode) IsUnion() bool                          { return f.isUnion }
func (f *fakeNode) UnionTypes() []typegraph.TypeNode       { return f.members }
func (f *fakeNode) IsPrimitive(p typegraph.Primitive) bool { return f.prim != 0 && f.prim == p }
func (f *fakeNode) IsLiteral(l typegraph.Literal) bool     { return f.lit != 0 && f.lit == l }
func (f *fakeNode) CallSignatures() []typegraph.Signature  { return f.sigs }
func (f *fakeNode) IsArray() bool                          { return f.isArray }
func (f *fakeNode) ArrayElementType() typegraph.TypeNode   { return f.elem }
func (f *fakeNode) IsRecord() bool                         { return f.record }
func (f *fakeNode) Properties() []typegraph.Property       { return f.props }

// graph hands out fake nodes with fresh IDs.
type graph struct{ next typegraph.NodeID }

func (g *graph) node(f *fakeNode) *fakeNode {
	g.next++
	f.id = g.next
	return f
}

func (g *graph) prim(p typegraph.Primitive) *fakeNode {
	return g.node(&fakeNode{prim: p, text: p.String()})
}

func (g *graph) lit(l typegraph.Literal, text string) *fakeNode {
	return g.node(&fakeNode{lit: l, text: text})
}

func (g *graph) union(members ...typegraph.TypeNode) *fakeNode {
	return g.node(&fakeNode{isUnion: true, members: members, text: "union"})
}

func (g *graph) array(elem typegraph.TypeNode) *fakeNode {
	return g.node(&fakeNode{isArray: true, elem: elem, text: "array"})
}

func (g *graph) record(props ...typegraph.Property) *fakeNode {
	return g.node(&fakeNode{record: true, props: props, text: "record"})
}

func (g *graph) fn() *fakeNode {
	return g.node(&fakeNode{text: "() => void", sigs: []typegraph.Signature{{Return: g.prim(typegraph.PrimitiveVoid)}}})
}

func (g *graph) opaque(text string) *fakeNode {
	return g.node(&fakeNode{text: text})
}

func prop(name string, t typegraph.TypeNode) typegraph.Property {
	return typegraph.Property{Name: name, Type: t}
}

// randomData builds a random type from data primitives, literals, unions,
// arrays and records.
func randomData(g *graph, r *rand.Rand, depth int) typegraph.TypeNode {
	leaf := func() typegraph.TypeNode {
		switch r.IntN(6) {
		case 0:
			return g.prim(typegraph.PrimitiveString)
		case 1:
			return g.prim(typegraph.PrimitiveNumber)
		case 2:
			return g.prim(typegraph.PrimitiveBoolean)
		case 3:
			return g.prim(typegraph.PrimitiveNull)
		case 4:
			return g.lit(typegraph.LiteralString, `"x"`)
		default:
			return g.lit(typegraph.LiteralNumber, "1")
		}
	}
	if depth == 0 {
		return leaf()
	}
	switch r.IntN(4) {
	case 0:
		return leaf()
	case 1:
		n := 1 + r.IntN(3)
		members := make([]typegraph.TypeNode, n)
		for i := range members {
			members[i] = randomData(g, r, depth-1)
		}
		return g.union(members...)
	case 2:
		return g.array(randomData(g, r, depth-1))
	default:
		n := r.IntN(4)
		props := make([]typegraph.Property, n)
		for i := range props {
			props[i] = prop("p", randomData(g, r, depth-1))
		}
		return g.record(props...)
	}
}

// =============================================================================
// Decision order
// =============================================================================

func TestClassify_DataShapesAreSerializable(t *testing.T) {
	t.Parallel()
	for seed := uint64(0); seed < 200; seed++ {
		g := &graph{}
		r := rand.New(rand.NewPCG(seed, seed*31+7))
		node := randomData(g, r, 4)
		assert.Equal(t, Serializable, New(NewCache()).Classify(node), "seed %d", seed)
	}
}

func TestClassify_CallablesPoisonEveryNesting(t *testing.T) {
	t.Parallel()
	wrappers := map[string]func(g *graph, inner, data typegraph.TypeNode) typegraph.TypeNode{
		"bare":  func(g *graph, inner, _ typegraph.TypeNode) typegraph.TypeNode { return inner },
		"union": func(g *graph, inner, data typegraph.TypeNode) typegraph.TypeNode { return g.union(data, inner) },
		"array": func(g *graph, inner, _ typegraph.TypeNode) typegraph.TypeNode { return g.array(inner) },
		"record": func(g *graph, inner, data typegraph.TypeNode) typegraph.TypeNode {
			return g.record(prop("a", data), prop("f", inner))
		},
		"nested": func(g *graph, inner, data typegraph.TypeNode) typegraph.TypeNode {
			return g.array(g.record(prop("list", g.union(data, g.array(inner)))))
		},
	}
	for name, wrap := range wrappers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for seed := uint64(0); seed < 50; seed++ {
				g := &graph{}
				r := rand.New(rand.NewPCG(seed, 99))
				node := wrap(g, g.fn(), randomData(g, r, 3))
				assert.Equal(t, NotSerializable, New(NewCache()).Classify(node), "seed %d", seed)
			}
		})
	}
}

func TestClassify_CallableRecordIsRejected(t *testing.T) {
	t.Parallel()
	g := &graph{}
	callable := g.record(prop("name", g.prim(typegraph.PrimitiveString)))
	callable.sigs = []typegraph.Signature{{}}
	assert.Equal(t, NotSerializable, New(nil).Classify(callable))
}

func TestClassify_UnionDistributes(t *testing.T) {
	t.Parallel()
	g := &graph{}
	good := []typegraph.TypeNode{g.prim(typegraph.PrimitiveString), g.array(g.prim(typegraph.PrimitiveNumber)), g.record()}
	bad := []typegraph.TypeNode{g.fn(), g.opaque("undefined"), g.prim(typegraph.PrimitiveVoid)}
	all := append(append([]typegraph.TypeNode{}, good...), bad...)

	for _, a := range all {
		for _, b := range all {
			c := New(NewCache())
			want := NotSerializable
			if c.Classify(a) == Serializable && c.Classify(b) == Serializable {
				want = Serializable
			}
			assert.Equal(t, want, New(NewCache()).Classify(g.union(a, b)), "%s | %s", a.Text(), b.Text())
		}
	}
}

func TestClassify_ArrayFollowsElement(t *testing.T) {
	t.Parallel()
	for seed := uint64(0); seed < 100; seed++ {
		g := &graph{}
		r := rand.New(rand.NewPCG(seed, 5))
		elem := randomData(g, r, 3)
		if seed%2 == 1 {
			elem = g.union(elem, g.fn())
		}
		assert.Equal(t, New(NewCache()).Classify(elem), New(NewCache()).Classify(g.array(elem)), "seed %d", seed)
	}
}

func TestClassify_EdgeCases(t *testing.T) {
	t.Parallel()
	g := &graph{}
	boolLit := g.lit(typegraph.LiteralBoolean, "true")
	boolLit.prim = typegraph.PrimitiveBoolean

	tests := []struct {
		name string
		node typegraph.TypeNode
		want Result
	}{
		{"empty union", g.union(), Serializable},
		{"boolean literal", boolLit, Serializable},
		{"undefined", g.opaque("undefined"), NotSerializable},
		{"symbol", g.opaque("symbol"), NotSerializable},
		{"void", g.prim(typegraph.PrimitiveVoid), NotSerializable},
		{"any", g.prim(typegraph.PrimitiveAny), NotSerializable},
		{"bigint", g.prim(typegraph.PrimitiveBigInt), NotSerializable},
		{"array without element", g.array(nil), NotSerializable},
		{"empty record", g.record(), Serializable},
		{"opaque", g.opaque("Date"), NotSerializable},
		{"optional string", g.union(g.prim(typegraph.PrimitiveString), g.opaque("undefined")), NotSerializable},
		{"nullable string", g.union(g.prim(typegraph.PrimitiveString), g.prim(typegraph.PrimitiveNull)), Serializable},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, New(NewCache()).Classify(tt.node))
		})
	}
}

// =============================================================================
// Policies
// =============================================================================

func TestClassify_MissingDeclarationPolicy(t *testing.T) {
	t.Parallel()
	g := &graph{}
	node := g.record(prop("known", g.prim(typegraph.PrimitiveString)), prop("opaque", nil))

	assert.Equal(t, Serializable, New(NewCache()).Classify(node))
	deny := New(NewCache(), WithPolicy(Policy{MissingDeclaration: Deny}))
	assert.Equal(t, NotSerializable, deny.Classify(node))
}

func TestClassify_SelfReferentialRecord(t *testing.T) {
	t.Parallel()
	g := &graph{}
	node := g.record(prop("name", g.prim(typegraph.PrimitiveString)))
	node.props = append(node.props, prop("parent", node))

	optimistic := New(NewCache())
	assert.Equal(t, Serializable, optimistic.Classify(node))
	assert.Equal(t, 1, optimistic.Stats().CycleAssumptions)

	pessimistic := New(NewCache(), WithPolicy(Policy{Cycle: Pessimistic}))
	assert.Equal(t, NotSerializable, pessimistic.Classify(node))
}

func TestClassify_CycleStillSeesOtherMembers(t *testing.T) {
	t.Parallel()
	g := &graph{}
	node := g.record()
	node.props = []typegraph.Property{prop("self", node), prop("cb", g.fn())}
	assert.Equal(t, NotSerializable, New(NewCache()).Classify(node))
}

func TestClassify_CycleThroughArrayAndUnion(t *testing.T) {
	t.Parallel()
	g := &graph{}
	// type Json = string | number | Json[] | { [k: string]: Json }
	json := g.union()
	json.members = []typegraph.TypeNode{
		g.prim(typegraph.PrimitiveString),
		g.prim(typegraph.PrimitiveNumber),
		g.array(json),
		g.record(prop("[string]", json)),
	}
	assert.Equal(t, Serializable, New(NewCache()).Classify(json))
}

func TestParsePolicies(t *testing.T) {
	t.Parallel()
	m, err := ParseMissingDeclaration("")
	require.NoError(t, err)
	assert.Equal(t, Permit, m)
	m, err = ParseMissingDeclaration("Deny")
	require.NoError(t, err)
	assert.Equal(t, Deny, m)
	_, err = ParseMissingDeclaration("maybe")
	assert.Error(t, err)

	c, err := ParseCycle("pessimistic")
	require.NoError(t, err)
	assert.Equal(t, Pessimistic, c)
	_, err = ParseCycle("sometimes")
	assert.Error(t, err)

	assert.Equal(t, "missing_declaration=permit,cycle=optimistic", DefaultPolicy().String())
}

// =============================================================================
// Cache
// =============================================================================

func TestClassify_IdempotentWithinCache(t *testing.T) {
	t.Parallel()
	g := &graph{}
	node := g.record(
		prop("id", g.prim(typegraph.PrimitiveString)),
		prop("tags", g.array(g.prim(typegraph.PrimitiveString))),
	)
	c := New(NewCache())

	first := c.Classify(node)
	evaluated := c.Stats().Evaluations
	require.Positive(t, evaluated)

	second := c.Classify(node)
	assert.Equal(t, first, second)
	assert.Equal(t, evaluated, c.Stats().Evaluations, "second classification must not re-traverse")
	assert.Equal(t, 1, c.Stats().CacheHits)
}

func TestClassify_SharedNodeEvaluatedOnce(t *testing.T) {
	t.Parallel()
	g := &graph{}
	shared := g.record(prop("v", g.prim(typegraph.PrimitiveNumber)))
	node := g.record(prop("a", shared), prop("b", shared), prop("c", g.array(shared)))

	c := New(NewCache())
	assert.Equal(t, Serializable, c.Classify(node))
	// node, shared, v, array
	assert.Equal(t, 4, c.Stats().Evaluations)
	assert.Equal(t, 2, c.Stats().CacheHits)
}

func TestClassify_ProvisionalResultsAreNotCached(t *testing.T) {
	t.Parallel()
	g := &graph{}
	a := g.record()
	b := g.record(prop("s", g.prim(typegraph.PrimitiveString)))
	a.props = []typegraph.Property{prop("b", b)}
	b.props = append(b.props, prop("a", a))

	cache := NewCache()
	c := New(cache)
	assert.Equal(t, Serializable, c.Classify(a))

	_, ok := cache.Lookup(a.ID())
	assert.True(t, ok, "top-level result is always cached")
	_, ok = cache.Lookup(b.ID())
	assert.False(t, ok, "b depended on an assumption about a")

	assert.Equal(t, Serializable, c.Classify(b))
	_, ok = cache.Lookup(b.ID())
	assert.True(t, ok)
}

func TestCache_Sync(t *testing.T) {
	t.Parallel()
	g := &graph{}
	cache := NewCache()
	New(cache).Classify(g.prim(typegraph.PrimitiveString))
	require.Equal(t, 1, cache.Len())

	assert.False(t, cache.Sync(0))
	assert.Equal(t, 1, cache.Len())
	assert.True(t, cache.Sync(1))
	assert.Equal(t, 0, cache.Len())
	assert.False(t, cache.Sync(1))
}

func TestClassify_NilNode(t *testing.T) {
	t.Parallel()
	assert.Equal(t, NotSerializable, New(nil).Classify(nil))
}
