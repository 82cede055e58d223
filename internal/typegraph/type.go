package typegraph

// kind is the structural category of a Type.
type kind int

const (
	kindOpaque kind = iota
	kindPrimitive
	kindLiteral
	kindUnion
	kindArray
	kindRecord
	kindFunction
	kindPromise
	kindRef
)

// String returns a human-readable representation of the kind.
func (k kind) String() string {
	switch k {
	case kindPrimitive:
		return "primitive"
	case kindLiteral:
		return "literal"
	case kindUnion:
		return "union"
	case kindArray:
		return "array"
	case kindRecord:
		return "record"
	case kindFunction:
		return "function"
	case kindPromise:
		return "promise"
	case kindRef:
		return "ref"
	default:
		return "opaque"
	}
}

// refState tracks lazy resolution of a kindRef Type.
type refState int

const (
	refUnresolved refState = iota
	refResolving
	refResolved
)

// Type is the Project's TypeNode implementation.
//
// A kindRef Type is a lazily resolved forwarding node used for named types
// (aliases, interfaces, generic instantiations, intersections). Every query
// forwards to its target, including ID, so a recursive alias visits the
// same identity on every lap. Records compute their members lazily for the
// same reason.
type Type struct {
	id   NodeID
	kind kind

	text   string
	textFn func() string

	prim Primitive
	lit  Literal

	members []*Type
	elem    *Type
	sigs    []Signature

	shapeDone bool
	shapeFn   func() ([]Property, []Signature)
	props     []Property

	refState refState
	refFn    func() *Type
	target   *Type
	fallback *Type
}

var _ TypeNode = (*Type)(nil)

func (t *Type) deref() *Type {
	if t.kind != kindRef {
		return t
	}
	switch t.refState {
	case refResolved:
		return t.target
	case refResolving:
		// type A = A
		return t.fallback
	}
	t.refState = refResolving
	target := t.refFn()
	if target == nil {
		target = t.fallback
	} else {
		target = target.deref()
	}
	t.target = target
	t.refState = refResolved
	t.refFn = nil
	return target
}

func (t *Type) shape() ([]Property, []Signature) {
	if !t.shapeDone {
		t.shapeDone = true
		if t.shapeFn != nil {
			props, sigs := t.shapeFn()
			t.props = props
			t.sigs = append(t.sigs, sigs...)
			t.shapeFn = nil
		}
	}
	return t.props, t.sigs
}

func (t *Type) ID() NodeID { return t.deref().id }

func (t *Type) Text() string {
	if t.kind == kindRef && t.text != "" {
		switch t.deref().kind {
		case kindPrimitive, kindLiteral:
		default:
			return t.text
		}
	}
	r := t.deref()
	if r.textFn != nil {
		r.text = r.textFn()
		r.textFn = nil
	}
	return r.text
}

func (t *Type) IsUnion() bool { return t.deref().kind == kindUnion }

func (t *Type) UnionTypes() []TypeNode {
	r := t.deref()
	if r.kind != kindUnion {
		return nil
	}
	out := make([]TypeNode, len(r.members))
	for i, m := range r.members {
		out[i] = m
	}
	return out
}

func (t *Type) IsPrimitive(p Primitive) bool {
	r := t.deref()
	switch r.kind {
	case kindPrimitive:
		return r.prim == p
	case kindLiteral:
		// true and false are members of boolean.
		return r.lit == LiteralBoolean && p == PrimitiveBoolean
	}
	return false
}

func (t *Type) IsLiteral(l Literal) bool {
	r := t.deref()
	return r.kind == kindLiteral && r.lit == l
}

func (t *Type) CallSignatures() []Signature {
	r := t.deref()
	switch r.kind {
	case kindFunction:
		return r.sigs
	case kindRecord:
		_, sigs := r.shape()
		return sigs
	}
	return nil
}

func (t *Type) IsArray() bool { return t.deref().kind == kindArray }

func (t *Type) ArrayElementType() TypeNode {
	r := t.deref()
	if r.kind != kindArray || r.elem == nil {
		return nil
	}
	return r.elem
}

func (t *Type) IsRecord() bool {
	k := t.deref().kind
	return k == kindRecord || k == kindPromise
}

func (t *Type) Properties() []Property {
	r := t.deref()
	switch r.kind {
	case kindRecord, kindPromise:
		props, _ := r.shape()
		return props
	}
	return nil
}

// AwaitedType reports the value type of a Promise.
func (t *Type) AwaitedType() (TypeNode, bool) {
	r := t.deref()
	if r.kind != kindPromise {
		return nil, false
	}
	return r.elem, true
}

// Kind returns the structural category name, for logging and tests.
func (t *Type) Kind() string { return t.deref().kind.String() }

// property returns the named member of a record, or nil.
func (t *Type) property(name string) *Type {
	for _, p := range t.Properties() {
		if p.Name == name {
			if pt, ok := p.Type.(*Type); ok {
				return pt
			}
			return nil
		}
	}
	return nil
}

// isNullish reports whether t is null or undefined without forcing a
// pending reference.
func (t *Type) isNullish() bool {
	return t.kind == kindPrimitive && (t.prim == PrimitiveNull || t.prim == PrimitiveUndefined)
}
