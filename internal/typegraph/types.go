package typegraph

// NodeID identifies a TypeNode within one Project. IDs are never reused by
// a Project, and IDs from different Projects are not comparable.
type NodeID uint64

// Primitive names a TypeScript keyword type.
type Primitive int

const (
	PrimitiveString Primitive = iota + 1
	PrimitiveNumber
	PrimitiveBoolean
	PrimitiveNull
	PrimitiveUndefined
	PrimitiveVoid
	PrimitiveAny
	PrimitiveUnknown
	PrimitiveNever
	PrimitiveSymbol
	PrimitiveBigInt
)

// String returns the keyword spelling of the primitive.
func (p Primitive) String() string {
	switch p {
	case PrimitiveString:
		return "string"
	case PrimitiveNumber:
		return "number"
	case PrimitiveBoolean:
		return "boolean"
	case PrimitiveNull:
		return "null"
	case PrimitiveUndefined:
		return "undefined"
	case PrimitiveVoid:
		return "void"
	case PrimitiveAny:
		return "any"
	case PrimitiveUnknown:
		return "unknown"
	case PrimitiveNever:
		return "never"
	case PrimitiveSymbol:
		return "symbol"
	case PrimitiveBigInt:
		return "bigint"
	default:
		return "invalid"
	}
}

// Literal names the kind of a literal type such as "a", 1 or true.
type Literal int

const (
	LiteralString Literal = iota + 1
	LiteralNumber
	LiteralBoolean
)

// String returns a human-readable literal kind.
func (l Literal) String() string {
	switch l {
	case LiteralString:
		return "string"
	case LiteralNumber:
		return "number"
	case LiteralBoolean:
		return "boolean"
	default:
		return "invalid"
	}
}

// TypeNode is a handle into the type graph. All methods are queries; none
// mutate the graph.
type TypeNode interface {
	// ID is the node's identity within its Project.
	ID() NodeID
	// Text is a display form of the type, e.g. "string", "User" or
	// "(x: string) => void".
	Text() string

	IsUnion() bool
	// UnionTypes returns the members of a union, nil otherwise.
	UnionTypes() []TypeNode

	IsPrimitive(p Primitive) bool
	IsLiteral(l Literal) bool

	// CallSignatures returns the call signatures of an invokable type.
	CallSignatures() []Signature

	IsArray() bool
	// ArrayElementType returns the element type of an array, nil otherwise.
	ArrayElementType() TypeNode

	IsRecord() bool
	// Properties returns the members of a record type in declaration order.
	Properties() []Property
}

// Property is a record member. Type is nil when the member has no
// declaration site the provider can inspect.
type Property struct {
	Name string
	Type TypeNode
}

// Param is a call-signature parameter. Type is nil when the parameter has
// no declaration site.
type Param struct {
	Name string
	Type TypeNode
}

// Signature is one call signature of a callable type.
type Signature struct {
	Params []Param
	Return TypeNode
}

// Awaited returns the resolved value type of a Promise-like node, or t
// itself when t is not a promise.
func Awaited(t TypeNode) TypeNode {
	if a, ok := t.(interface{ AwaitedType() (TypeNode, bool) }); ok {
		if inner, ok := a.AwaitedType(); ok && inner != nil {
			return inner
		}
	}
	return t
}
