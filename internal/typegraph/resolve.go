package typegraph

import (
	"fmt"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

const (
	// maxInstantiationDepth bounds generic instantiation chains that grow
	// on every lap, such as type T<X> = { next: T<X[]> }.
	maxInstantiationDepth = 16
	// maxInferDepth bounds expression inference.
	maxInferDepth = 32
)

// scope is the context a type annotation or expression is read in: the
// enclosing module plus the type parameters bound at that point.
type scope struct {
	mod    *Module
	params map[string]*Type
	depth  int
}

func (m *Module) rootScope() *scope { return &scope{mod: m} }

func (sc *scope) project() *Project { return sc.mod.project }

func (sc *scope) text(n *sitter.Node) string { return nodeText(n, sc.mod.src) }

// bind returns a child scope with the type parameters declared by tparams
// bound to args. Missing arguments take the parameter's default, or an
// opaque placeholder named after the parameter.
func (sc *scope) bind(tparams *sitter.Node, args []*Type) *scope {
	if tparams == nil {
		return sc
	}
	child := &scope{mod: sc.mod, depth: sc.depth, params: make(map[string]*Type, len(sc.params)+2)}
	for k, v := range sc.params {
		child.params[k] = v
	}
	for i, tp := range namedChildren(tparams) {
		if tp.Type() != "type_parameter" {
			continue
		}
		name := sc.text(tp.ChildByFieldName("name"))
		switch {
		case i < len(args):
			child.params[name] = args[i]
		case tp.ChildByFieldName("value") != nil:
			if cs := namedChildren(tp.ChildByFieldName("value")); len(cs) > 0 {
				child.params[name] = child.typeOf(cs[0])
			} else {
				child.params[name] = sc.project().opaque(name)
			}
		default:
			child.params[name] = sc.project().opaque(name)
		}
	}
	return child
}

// instantiate returns the interned type of declaration d applied to args.
func (m *Module) instantiate(d *Declaration, args []*Type, depth int) *Type {
	p := m.project
	if depth > maxInstantiationDepth {
		return p.opaque(d.name)
	}
	var key strings.Builder
	key.WriteString(m.path)
	key.WriteByte('#')
	key.WriteString(d.name)
	for _, a := range args {
		fmt.Fprintf(&key, ",%p", a)
	}
	return p.intern(key.String(), func() *Type {
		return p.ref(d.name, func() *Type { return m.declaredType(d, args, depth+1) })
	})
}

func (m *Module) declaredType(d *Declaration, args []*Type, depth int) *Type {
	sc := &scope{mod: m, depth: depth}
	switch d.kind {
	case DeclTypeAlias:
		node := d.nodes[0]
		return sc.bind(node.ChildByFieldName("type_parameters"), args).typeOf(node.ChildByFieldName("value"))
	case DeclInterface:
		return sc.interfaceType(d, args)
	case DeclClass:
		return sc.classType(d, args)
	case DeclEnum:
		return sc.enumType(d)
	}
	return nil
}

// memberSet accumulates record members; a later member replaces an earlier
// one with the same name.
type memberSet struct {
	props []Property
	index map[string]int
	sigs  []Signature
}

func newMemberSet() *memberSet { return &memberSet{index: make(map[string]int)} }

func (ms *memberSet) add(name string, t TypeNode) {
	if i, ok := ms.index[name]; ok {
		ms.props[i].Type = t
		return
	}
	ms.index[name] = len(ms.props)
	ms.props = append(ms.props, Property{Name: name, Type: t})
}

func (ms *memberSet) inherit(base *Type) {
	for _, prop := range base.Properties() {
		ms.add(prop.Name, prop.Type)
	}
	ms.sigs = append(ms.sigs, base.CallSignatures()...)
}

func (sc *scope) interfaceType(d *Declaration, args []*Type) *Type {
	return sc.project().record(d.name, func() ([]Property, []Signature) {
		ms := newMemberSet()
		for _, node := range d.nodes {
			isc := sc.bind(node.ChildByFieldName("type_parameters"), args)
			if ext := firstNamedChildOfType(node, "extends_type_clause"); ext != nil {
				for _, base := range namedChildren(ext) {
					ms.inherit(isc.typeOf(base))
				}
			}
			isc.members(node.ChildByFieldName("body"), ms, false)
		}
		return ms.props, ms.sigs
	})
}

func (sc *scope) classType(d *Declaration, args []*Type) *Type {
	node := d.nodes[0]
	return sc.project().record(d.name, func() ([]Property, []Signature) {
		ms := newMemberSet()
		csc := sc.bind(node.ChildByFieldName("type_parameters"), args)
		if heritage := firstNamedChildOfType(node, "class_heritage"); heritage != nil {
			if ext := firstNamedChildOfType(heritage, "extends_clause"); ext != nil {
				if value := ext.ChildByFieldName("value"); value != nil && value.Type() == "identifier" {
					ms.inherit(csc.resolveTypeName(csc.text(value), csc.typeArgs(ext.ChildByFieldName("type_arguments"))))
				}
			}
		}
		csc.members(node.ChildByFieldName("body"), ms, true)
		return ms.props, nil
	})
}

func (sc *scope) enumType(d *Declaration) *Type {
	p := sc.project()
	body := d.nodes[0].ChildByFieldName("body")
	var members []*Type
	next := 0
	for _, c := range namedChildren(body) {
		if c.Type() != "enum_assignment" {
			members = append(members, p.literal(LiteralNumber, fmt.Sprint(next)))
			next++
			continue
		}
		value := c.ChildByFieldName("value")
		switch {
		case value == nil:
			members = append(members, p.primitive(PrimitiveNumber))
		case value.Type() == "string":
			members = append(members, p.literal(LiteralString, sc.text(value)))
		case value.Type() == "number":
			members = append(members, p.literal(LiteralNumber, sc.text(value)))
			if _, err := fmt.Sscan(sc.text(value), &next); err == nil {
				next++
			}
		default:
			members = append(members, p.primitive(PrimitiveNumber))
		}
	}
	return p.union(members)
}

// members reads the members of an object type, interface body or class
// body into ms.
func (sc *scope) members(body *sitter.Node, ms *memberSet, class bool) {
	if body == nil {
		return
	}
	p := sc.project()
	for _, c := range namedChildren(body) {
		if class && hasChild(c, "static") {
			continue
		}
		switch c.Type() {
		case "property_signature", "public_field_definition":
			name := sc.propertyName(c.ChildByFieldName("name"))
			var t *Type
			switch {
			case c.ChildByFieldName("type") != nil:
				t = sc.typeOf(c.ChildByFieldName("type"))
			case c.ChildByFieldName("value") != nil:
				t = sc.inferExpr(c.ChildByFieldName("value"), 0)
			default:
				t = p.anyType()
			}
			if hasChild(c, "?") {
				t = sc.optionalProperty(t)
			}
			ms.add(name, t)

		case "method_signature", "abstract_method_signature", "method_definition":
			name := sc.propertyName(c.ChildByFieldName("name"))
			if name == "constructor" {
				if class {
					sc.parameterProperties(c, ms)
				}
				continue
			}
			switch {
			case hasChild(c, "get"):
				ms.add(name, asType(p, sc.signature(c).Return))
			case hasChild(c, "set"):
				if _, ok := ms.index[name]; !ok {
					ms.add(name, p.anyType())
				}
			default:
				t := p.function([]Signature{sc.signature(c)})
				if hasChild(c, "?") {
					t = sc.optionalProperty(t)
				}
				ms.add(name, t)
			}

		case "call_signature":
			ms.sigs = append(ms.sigs, sc.signature(c))

		case "index_signature":
			var key string
			if clause := firstNamedChildOfType(c, "mapped_type_clause"); clause != nil {
				key = "[" + sc.text(clause) + "]"
			} else {
				key = "[" + sc.text(c.ChildByFieldName("index_type")) + "]"
			}
			t := p.anyType()
			if tn := c.ChildByFieldName("type"); tn != nil {
				t = sc.typeOf(tn)
			}
			ms.add(key, t)
		}
	}
}

// parameterProperties adds constructor parameters declared with an
// accessibility or readonly modifier as instance fields.
func (sc *scope) parameterProperties(ctor *sitter.Node, ms *memberSet) {
	params := ctor.ChildByFieldName("parameters")
	for _, prm := range namedChildren(params) {
		if firstNamedChildOfType(prm, "accessibility_modifier") == nil && !hasChild(prm, "readonly") {
			continue
		}
		pattern := prm.ChildByFieldName("pattern")
		if pattern == nil || pattern.Type() != "identifier" {
			continue
		}
		t := sc.project().anyType()
		if tn := prm.ChildByFieldName("type"); tn != nil {
			t = sc.typeOf(tn)
		}
		ms.add(sc.text(pattern), t)
	}
}

func (sc *scope) optionalProperty(t *Type) *Type {
	if sc.project().opts.ExactOptionalPropertyTypes {
		return t
	}
	return sc.project().optional(t)
}

func (sc *scope) propertyName(n *sitter.Node) string {
	if n == nil {
		return ""
	}
	if n.Type() == "string" {
		return unquote(n, sc.mod.src)
	}
	return sc.text(n)
}

func (sc *scope) typeArgs(n *sitter.Node) []*Type {
	if n == nil {
		return nil
	}
	var args []*Type
	for _, c := range namedChildren(n) {
		args = append(args, sc.typeOf(c))
	}
	return args
}

// typeOf reads a type annotation.
func (sc *scope) typeOf(n *sitter.Node) *Type {
	p := sc.project()
	if n == nil {
		return p.anyType()
	}
	switch n.Type() {
	case "type_annotation", "opting_type_annotation", "omitting_type_annotation",
		"parenthesized_type", "readonly_type", "default_type":
		cs := namedChildren(n)
		if len(cs) == 0 {
			return p.anyType()
		}
		return sc.typeOf(cs[len(cs)-1])

	case "type_predicate_annotation", "type_predicate":
		return p.primitive(PrimitiveBoolean)

	case "asserts_annotation", "asserts":
		return p.primitive(PrimitiveVoid)

	case "predefined_type":
		return sc.predefined(sc.text(n))

	case "literal_type":
		return sc.literalType(n)

	case "template_literal_type", "template_type":
		return p.primitive(PrimitiveString)

	case "existential_type":
		return p.anyType()

	case "this_type":
		return p.opaque("this")

	case "type_identifier", "identifier":
		return sc.resolveTypeName(sc.text(n), nil)

	case "nested_type_identifier":
		return sc.qualifiedType(n, nil)

	case "generic_type":
		args := sc.typeArgs(n.ChildByFieldName("type_arguments"))
		name := n.ChildByFieldName("name")
		if name != nil && name.Type() == "nested_type_identifier" {
			return sc.qualifiedType(name, args)
		}
		return sc.resolveTypeName(sc.text(name), args)

	case "union_type":
		var members []*Type
		for _, c := range namedChildren(n) {
			members = append(members, sc.typeOf(c))
		}
		return p.union(members)

	case "intersection_type":
		var parts []*Type
		for _, c := range namedChildren(n) {
			parts = append(parts, sc.typeOf(c))
		}
		return sc.intersection(compact(sc.text(n)), parts)

	case "array_type":
		cs := namedChildren(n)
		if len(cs) == 0 {
			return p.array(p.anyType())
		}
		return p.array(sc.typeOf(cs[0]))

	case "tuple_type":
		var members []*Type
		for _, c := range namedChildren(n) {
			members = append(members, sc.tupleMember(c))
		}
		return p.array(p.union(members))

	case "function_type":
		return p.function([]Signature{sc.signature(n)})

	case "constructor_type":
		return p.opaque(compact(sc.text(n)))

	case "object_type":
		text := compact(sc.text(n))
		return p.record(text, func() ([]Property, []Signature) {
			ms := newMemberSet()
			sc.members(n, ms, false)
			return ms.props, ms.sigs
		})

	case "type_query":
		cs := namedChildren(n)
		if len(cs) == 0 {
			return p.anyType()
		}
		return sc.valueOf(sc.text(cs[0]), n, 0)

	case "index_type_query":
		cs := namedChildren(n)
		if len(cs) == 0 {
			return p.primitive(PrimitiveString)
		}
		target := sc.typeOf(cs[0])
		return p.ref("keyof "+target.Text(), func() *Type {
			var keys []*Type
			for _, prop := range target.Properties() {
				keys = append(keys, p.literal(LiteralString, `"`+prop.Name+`"`))
			}
			if len(keys) == 0 {
				return p.primitive(PrimitiveString)
			}
			return p.union(keys)
		})

	case "lookup_type":
		cs := namedChildren(n)
		if len(cs) < 2 {
			return p.anyType()
		}
		obj, index := sc.typeOf(cs[0]), sc.typeOf(cs[1])
		return p.ref(compact(sc.text(n)), func() *Type {
			if obj.IsArray() && index.IsPrimitive(PrimitiveNumber) {
				return obj.deref().elem
			}
			for _, key := range stringKeys(index) {
				if t := obj.property(key); t != nil {
					return t
				}
			}
			return nil
		})
	}
	return p.opaque(compact(sc.text(n)))
}

func (sc *scope) tupleMember(c *sitter.Node) *Type {
	p := sc.project()
	switch c.Type() {
	case "optional_type":
		cs := namedChildren(c)
		if len(cs) == 0 {
			return p.anyType()
		}
		return p.optional(sc.typeOf(cs[0]))
	case "rest_type":
		cs := namedChildren(c)
		if len(cs) == 0 {
			return p.anyType()
		}
		inner := sc.typeOf(cs[0])
		return p.ref("..."+inner.Text(), func() *Type {
			if r := inner.deref(); r.kind == kindArray {
				return r.elem
			}
			return inner
		})
	case "required_parameter", "optional_parameter", "labeled_tuple_type_member":
		t := sc.typeOf(c.ChildByFieldName("type"))
		if c.Type() == "optional_parameter" {
			t = p.optional(t)
		}
		return t
	}
	return sc.typeOf(c)
}

func (sc *scope) predefined(text string) *Type {
	p := sc.project()
	switch text {
	case "string":
		return p.primitive(PrimitiveString)
	case "number":
		return p.primitive(PrimitiveNumber)
	case "boolean":
		return p.primitive(PrimitiveBoolean)
	case "void":
		return p.primitive(PrimitiveVoid)
	case "undefined":
		return p.primitive(PrimitiveUndefined)
	case "null":
		return p.primitive(PrimitiveNull)
	case "any":
		return p.primitive(PrimitiveAny)
	case "unknown":
		return p.primitive(PrimitiveUnknown)
	case "never":
		return p.primitive(PrimitiveNever)
	case "symbol", "unique symbol":
		return p.primitive(PrimitiveSymbol)
	case "bigint":
		return p.primitive(PrimitiveBigInt)
	case "object":
		return p.record("object", nil)
	}
	return p.opaque(text)
}

func (sc *scope) literalType(n *sitter.Node) *Type {
	p := sc.project()
	cs := namedChildren(n)
	if len(cs) == 0 {
		// null and undefined may be anonymous tokens.
		return sc.predefined(sc.text(n))
	}
	c := cs[0]
	switch c.Type() {
	case "string":
		return p.literal(LiteralString, sc.text(c))
	case "number", "unary_expression":
		return p.literal(LiteralNumber, sc.text(c))
	case "true", "false":
		return p.literal(LiteralBoolean, sc.text(c))
	case "null":
		return p.primitive(PrimitiveNull)
	case "undefined":
		return p.primitive(PrimitiveUndefined)
	case "template_string":
		return p.primitive(PrimitiveString)
	}
	return p.opaque(sc.text(c))
}

// resolveTypeName resolves a type reference by name: type parameters in
// scope first, then the module's own type declarations, then imports, then
// the built-in library types this package models.
func (sc *scope) resolveTypeName(name string, args []*Type) *Type {
	p := sc.project()
	if len(args) == 0 {
		if t, ok := sc.params[name]; ok {
			return t
		}
	}
	if d, ok := sc.mod.types[name]; ok {
		return sc.mod.instantiate(d, args, sc.depth)
	}
	if b, ok := sc.mod.imports[name]; ok && b.imported != "*" {
		if target := sc.mod.resolveImport(b.spec); target != nil {
			if d := target.exportedType(b.imported); d != nil {
				return d.module.instantiate(d, args, sc.depth)
			}
		}
	}
	if t := sc.builtin(name, args); t != nil {
		return t
	}
	return p.opaque(name)
}

// qualifiedType resolves ns.Name where ns is a namespace import.
func (sc *scope) qualifiedType(n *sitter.Node, args []*Type) *Type {
	p := sc.project()
	mod, name := n.ChildByFieldName("module"), n.ChildByFieldName("name")
	if mod == nil || name == nil {
		return p.opaque(sc.text(n))
	}
	if spec, ok := sc.mod.NamespaceImport(sc.text(mod)); ok {
		if target := sc.mod.resolveImport(spec); target != nil {
			if d := target.exportedType(sc.text(name)); d != nil {
				return d.module.instantiate(d, args, sc.depth)
			}
		}
	}
	return p.opaque(sc.text(n))
}

func (m *Module) exportedType(name string) *Declaration {
	for _, d := range m.exportNamed(name) {
		switch d.kind {
		case DeclInterface, DeclTypeAlias, DeclClass, DeclEnum:
			return d
		}
	}
	return nil
}

func (sc *scope) builtin(name string, args []*Type) *Type {
	p := sc.project()
	arg := func(i int) *Type {
		if i < len(args) {
			return args[i]
		}
		return p.primitive(PrimitiveUnknown)
	}
	switch name {
	case "Array", "ReadonlyArray":
		if len(args) == 0 {
			return p.array(p.anyType())
		}
		return p.array(args[0])
	case "Promise", "PromiseLike":
		return p.promise(arg(0))
	case "Awaited":
		t := arg(0)
		return p.ref("Awaited", func() *Type { return asType(p, Awaited(t)) })
	case "Readonly", "NonNullable":
		return arg(0)
	case "Partial", "Required":
		t := arg(0)
		partial := name == "Partial"
		return p.ref(name, func() *Type {
			if !t.IsRecord() {
				return t
			}
			return p.record(name+"<"+t.Text()+">", func() ([]Property, []Signature) {
				var props []Property
				for _, prop := range t.Properties() {
					pt := asType(p, prop.Type)
					if partial {
						pt = sc.optionalProperty(pt)
					} else {
						pt = p.withoutUndefined(pt)
					}
					props = append(props, Property{Name: prop.Name, Type: pt})
				}
				return props, nil
			})
		})
	case "Record":
		k, v := arg(0), arg(1)
		return p.ref("Record", func() *Type {
			return p.record("Record<"+k.Text()+", "+v.Text()+">", func() ([]Property, []Signature) {
				keys := stringKeys(k)
				if len(keys) == 0 {
					return []Property{{Name: "[" + k.Text() + "]", Type: v}}, nil
				}
				props := make([]Property, 0, len(keys))
				for _, key := range keys {
					props = append(props, Property{Name: key, Type: v})
				}
				return props, nil
			})
		})
	case "Pick", "Omit":
		t, k := arg(0), arg(1)
		pick := name == "Pick"
		return p.ref(name, func() *Type {
			return p.record(name+"<"+t.Text()+", "+k.Text()+">", func() ([]Property, []Signature) {
				keys := make(map[string]bool)
				for _, key := range stringKeys(k) {
					keys[key] = true
				}
				var props []Property
				for _, prop := range t.Properties() {
					if keys[prop.Name] == pick {
						props = append(props, prop)
					}
				}
				return props, nil
			})
		})
	case "Exclude", "Extract":
		t, u := arg(0), arg(1)
		extract := name == "Extract"
		return p.ref(name, func() *Type {
			drop := make(map[string]bool)
			for _, m := range unionMembers(u) {
				drop[m.Text()] = true
			}
			var kept []*Type
			for _, m := range unionMembers(t) {
				if drop[m.Text()] == extract {
					kept = append(kept, m)
				}
			}
			return p.union(kept)
		})
	case "ReturnType":
		f := arg(0)
		return p.ref("ReturnType", func() *Type {
			if sigs := f.CallSignatures(); len(sigs) > 0 {
				return asType(p, sigs[0].Return)
			}
			return nil
		})
	case "Uppercase", "Lowercase", "Capitalize", "Uncapitalize":
		return p.primitive(PrimitiveString)
	}
	return nil
}

// intersection resolves A & B lazily. A primitive member absorbs the rest
// (branded primitives); records merge; anything else stays opaque.
func (sc *scope) intersection(text string, parts []*Type) *Type {
	p := sc.project()
	return p.ref(text, func() *Type {
		for _, part := range parts {
			switch part.deref().kind {
			case kindPrimitive, kindLiteral:
				return part
			}
		}
		for _, part := range parts {
			switch part.deref().kind {
			case kindRecord, kindPromise:
			default:
				return nil
			}
		}
		return p.record(text, func() ([]Property, []Signature) {
			ms := newMemberSet()
			for _, part := range parts {
				ms.inherit(part)
			}
			return ms.props, ms.sigs
		})
	})
}

// withoutUndefined strips undefined from a union.
func (p *Project) withoutUndefined(t *Type) *Type {
	r := t.deref()
	if r.kind != kindUnion {
		return t
	}
	var kept []*Type
	for _, m := range r.members {
		if m.IsPrimitive(PrimitiveUndefined) {
			continue
		}
		kept = append(kept, m)
	}
	return p.union(kept)
}

func unionMembers(t *Type) []*Type {
	r := t.deref()
	if r.kind == kindUnion {
		return r.members
	}
	return []*Type{t}
}

// stringKeys returns the values of the string or number literal types in t.
func stringKeys(t *Type) []string {
	var keys []string
	for _, m := range unionMembers(t) {
		r := m.deref()
		if r.kind != kindLiteral || r.lit == LiteralBoolean {
			continue
		}
		keys = append(keys, strings.Trim(r.Text(), "\"'`"))
	}
	return keys
}

func asType(p *Project, n TypeNode) *Type {
	if t, ok := n.(*Type); ok && t != nil {
		return t
	}
	return p.anyType()
}

// compact collapses runs of whitespace in source text.
func compact(s string) string { return strings.Join(strings.Fields(s), " ") }
