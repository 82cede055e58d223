package typegraph

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// Options are the compiler settings that change how declared types read.
type Options struct {
	// StrictNullChecks keeps null and undefined as distinct union members
	// and adds undefined to optional properties and parameters.
	StrictNullChecks bool
	// ExactOptionalPropertyTypes stops optional properties from gaining
	// undefined. Parameters are unaffected.
	ExactOptionalPropertyTypes bool
}

// Project is a set of loaded modules sharing one type identity space.
//
// The module table is guarded by a mutex; type resolution itself is lazy and
// unsynchronized, so callers that query types from several goroutines must
// serialize access to one Project.
type Project struct {
	opts Options

	mu         sync.Mutex
	modules    map[string]*Module
	generation uint64

	internMu sync.Mutex
	interned map[string]*Type

	nextID atomic.Uint64
	prims  map[Primitive]*Type
}

// NewProject creates an empty Project.
func NewProject(opts Options) *Project {
	p := &Project{
		opts:     opts,
		modules:  make(map[string]*Module),
		interned: make(map[string]*Type),
		prims:    make(map[Primitive]*Type),
	}
	for _, k := range []Primitive{
		PrimitiveString, PrimitiveNumber, PrimitiveBoolean, PrimitiveNull,
		PrimitiveUndefined, PrimitiveVoid, PrimitiveAny, PrimitiveUnknown,
		PrimitiveNever, PrimitiveSymbol, PrimitiveBigInt,
	} {
		p.prims[k] = &Type{id: p.newID(), kind: kindPrimitive, prim: k, text: k.String()}
	}
	return p
}

// Options returns the settings the Project was created with.
func (p *Project) Options() Options { return p.opts }

// Generation increases every time a loaded module is replaced with
// different content. Anything derived from type identities of an older
// generation must be discarded.
func (p *Project) Generation() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.generation
}

// LoadModule parses src as the module at path and adds it to the Project.
// A nil src reads the file from disk. Loading a path that is already loaded
// replaces it; if the content differs the generation is bumped and every
// previously resolved type is forgotten.
func (p *Project) LoadModule(ctx context.Context, path string, src []byte) (*Module, error) {
	path = cleanPath(path)
	if src == nil {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("loading %s: %w", path, err)
		}
		src = data
	}

	p.mu.Lock()
	if old, ok := p.modules[path]; ok && bytes.Equal(old.src, src) {
		p.mu.Unlock()
		return old, nil
	}
	p.mu.Unlock()

	tree, err := Parse(ctx, path, src)
	if err != nil {
		return nil, err
	}
	m := newModule(p, path, src, tree)

	p.mu.Lock()
	_, replaced := p.modules[path]
	p.modules[path] = m
	if replaced {
		p.generation++
		for _, other := range p.modules {
			other.reset()
		}
	}
	gen := p.generation
	p.mu.Unlock()

	if replaced {
		p.internMu.Lock()
		p.interned = make(map[string]*Type)
		p.internMu.Unlock()
	}

	Logger().Debug("module loaded",
		zap.String("path", path),
		zap.Bool("replaced", replaced),
		zap.Uint64("generation", gen))
	return m, nil
}

// AddModuleIfExists returns the module at path, loading it from disk when it
// is not loaded yet. A missing file is reported as (nil, false, nil).
func (p *Project) AddModuleIfExists(ctx context.Context, path string) (*Module, bool, error) {
	path = cleanPath(path)
	if m, ok := p.Module(path); ok {
		return m, true, nil
	}
	src, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) || isDirErr(path) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("loading %s: %w", path, err)
	}
	m, err := p.LoadModule(ctx, path, src)
	if err != nil {
		return nil, false, err
	}
	return m, true, nil
}

// Module returns a loaded module.
func (p *Project) Module(path string) (*Module, bool) {
	path = cleanPath(path)
	p.mu.Lock()
	defer p.mu.Unlock()
	m, ok := p.modules[path]
	return m, ok
}

// Modules returns the paths of all loaded modules, sorted.
func (p *Project) Modules() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.modules))
	for path := range p.modules {
		out = append(out, path)
	}
	sort.Strings(out)
	return out
}

// moduleFor returns the module at path for type resolution, loading it from
// disk on demand. Load failures degrade to "not found".
func (p *Project) moduleFor(path string) *Module {
	m, ok, err := p.AddModuleIfExists(context.Background(), path)
	if err != nil {
		Logger().Debug("dependency not loadable", zap.String("path", path), zap.Error(err))
		return nil
	}
	if !ok {
		return nil
	}
	return m
}

func (p *Project) newID() NodeID { return NodeID(p.nextID.Add(1)) }

func (p *Project) primitive(k Primitive) *Type { return p.prims[k] }

func (p *Project) anyType() *Type { return p.prims[PrimitiveAny] }

func (p *Project) opaque(text string) *Type {
	return &Type{id: p.newID(), kind: kindOpaque, text: text}
}

func (p *Project) literal(l Literal, text string) *Type {
	key := "lit:" + l.String() + ":" + text
	p.internMu.Lock()
	defer p.internMu.Unlock()
	if t, ok := p.interned[key]; ok {
		return t
	}
	t := &Type{id: p.newID(), kind: kindLiteral, lit: l, text: text}
	p.interned[key] = t
	return t
}

// union builds a union of members. Nested unions that are already built
// are flattened and duplicates dropped; pending references are kept as
// members without being resolved.
func (p *Project) union(members []*Type) *Type {
	flat := make([]*Type, 0, len(members))
	seen := make(map[*Type]bool, len(members))
	var add func(m *Type)
	add = func(m *Type) {
		if m == nil {
			return
		}
		if m.kind == kindUnion {
			for _, inner := range m.members {
				add(inner)
			}
			return
		}
		if m.kind == kindPrimitive && m.prim == PrimitiveNever {
			return
		}
		if seen[m] {
			return
		}
		seen[m] = true
		flat = append(flat, m)
	}
	for _, m := range members {
		add(m)
	}

	if !p.opts.StrictNullChecks {
		kept := flat[:0:0]
		for _, m := range flat {
			if !m.isNullish() {
				kept = append(kept, m)
			}
		}
		if len(kept) > 0 {
			flat = kept
		}
	}

	if len(flat) == 1 {
		return flat[0]
	}
	t := &Type{id: p.newID(), kind: kindUnion, members: flat}
	t.textFn = func() string {
		parts := make([]string, len(flat))
		for i, m := range flat {
			parts[i] = m.Text()
		}
		return strings.Join(parts, " | ")
	}
	return t
}

// optional adds undefined to t when strict null checks are on.
func (p *Project) optional(t *Type) *Type {
	if !p.opts.StrictNullChecks {
		return t
	}
	return p.union([]*Type{t, p.primitive(PrimitiveUndefined)})
}

func (p *Project) array(elem *Type) *Type {
	t := &Type{id: p.newID(), kind: kindArray, elem: elem}
	t.textFn = func() string {
		inner := elem.Text()
		if elem.IsUnion() {
			inner = "(" + inner + ")"
		}
		return inner + "[]"
	}
	return t
}

func (p *Project) record(text string, shape func() ([]Property, []Signature)) *Type {
	return &Type{id: p.newID(), kind: kindRecord, text: text, shapeFn: shape}
}

func (p *Project) function(sigs []Signature) *Type {
	t := &Type{id: p.newID(), kind: kindFunction, sigs: sigs}
	t.textFn = func() string {
		if len(sigs) == 0 {
			return "() => void"
		}
		return signatureText(sigs[0])
	}
	return t
}

// promise builds Promise<elem>, a record whose then/catch/finally members
// are callable.
func (p *Project) promise(elem *Type) *Type {
	t := &Type{id: p.newID(), kind: kindPromise, elem: elem}
	t.textFn = func() string { return "Promise<" + elem.Text() + ">" }
	t.shapeFn = func() ([]Property, []Signature) {
		cb := p.function([]Signature{{Return: p.anyType()}})
		props := []Property{
			{Name: "then", Type: p.function([]Signature{{
				Params: []Param{{Name: "onfulfilled", Type: cb}, {Name: "onrejected", Type: p.optional(cb)}},
				Return: p.promise(p.anyType()),
			}})},
			{Name: "catch", Type: p.function([]Signature{{
				Params: []Param{{Name: "onrejected", Type: p.optional(cb)}},
				Return: p.promise(p.anyType()),
			}})},
			{Name: "finally", Type: p.function([]Signature{{
				Params: []Param{{Name: "onfinally", Type: p.optional(cb)}},
				Return: t,
			}})},
		}
		return props, nil
	}
	return t
}

// ref builds a lazily resolved forwarding node. text names the reference
// for display; fallback is used when resolution fails or re-enters itself.
func (p *Project) ref(text string, resolve func() *Type) *Type {
	return &Type{id: p.newID(), kind: kindRef, text: text, refFn: resolve, fallback: p.opaque(text)}
}

// intern returns the Type cached under key, creating it with build when it
// does not exist yet.
func (p *Project) intern(key string, build func() *Type) *Type {
	p.internMu.Lock()
	if t, ok := p.interned[key]; ok {
		p.internMu.Unlock()
		return t
	}
	p.internMu.Unlock()

	t := build()

	p.internMu.Lock()
	defer p.internMu.Unlock()
	if existing, ok := p.interned[key]; ok {
		return existing
	}
	p.interned[key] = t
	return t
}

func signatureText(sig Signature) string {
	var b strings.Builder
	b.WriteByte('(')
	for i, prm := range sig.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(prm.Name)
		if prm.Type != nil {
			b.WriteString(": ")
			b.WriteString(prm.Type.Text())
		}
	}
	b.WriteString(") => ")
	if sig.Return != nil {
		b.WriteString(sig.Return.Text())
	} else {
		b.WriteString("void")
	}
	return b.String()
}

func cleanPath(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		return abs
	}
	return filepath.Clean(path)
}

func isDirErr(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.IsDir()
}
