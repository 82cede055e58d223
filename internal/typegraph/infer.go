package typegraph

import (
	sitter "github.com/smacker/go-tree-sitter"
)

// Inference here is shallow and syntax directed: it covers the expression
// forms API handlers are commonly written with and falls back to any for
// everything else.

var functionLike = map[string]bool{
	"function_declaration":           true,
	"generator_function_declaration": true,
	"function_signature":             true,
	"function_expression":            true,
	"function":                       true,
	"generator_function":             true,
	"arrow_function":                 true,
	"method_definition":              true,
}

func (sc *scope) functionType(nodes []*sitter.Node) *Type {
	sigs := make([]Signature, 0, len(nodes))
	for _, n := range nodes {
		sigs = append(sigs, sc.signature(n))
	}
	return sc.project().function(sigs)
}

// signature reads the call signature of a function-like node.
func (sc *scope) signature(n *sitter.Node) Signature { return sc.signatureAt(n, 0) }

func (sc *scope) signatureAt(n *sitter.Node, depth int) Signature {
	fsc := sc.bind(n.ChildByFieldName("type_parameters"), nil)
	return Signature{
		Params: fsc.paramList(n, depth),
		Return: fsc.returnType(n, depth),
	}
}

func (sc *scope) paramList(n *sitter.Node, depth int) []Param {
	p := sc.project()
	var out []Param
	if params := n.ChildByFieldName("parameters"); params != nil {
		for _, prm := range namedChildren(params) {
			if prm.Type() != "required_parameter" && prm.Type() != "optional_parameter" {
				continue
			}
			pattern := prm.ChildByFieldName("pattern")
			if pattern == nil || pattern.Type() == "this" {
				continue
			}
			var t *Type
			switch {
			case prm.ChildByFieldName("type") != nil:
				t = sc.typeOf(prm.ChildByFieldName("type"))
			case prm.ChildByFieldName("value") != nil:
				t = sc.inferExpr(prm.ChildByFieldName("value"), depth+1)
			case pattern.Type() == "rest_pattern":
				t = p.array(p.anyType())
			default:
				t = p.anyType()
			}
			if prm.Type() == "optional_parameter" {
				t = p.optional(t)
			}
			out = append(out, Param{Name: sc.paramName(pattern), Type: t})
		}
	} else if single := n.ChildByFieldName("parameter"); single != nil {
		out = []Param{{Name: sc.text(single), Type: p.anyType()}}
	}
	return out
}

func (sc *scope) paramName(pattern *sitter.Node) string {
	if pattern.Type() == "rest_pattern" {
		if cs := namedChildren(pattern); len(cs) > 0 {
			return sc.text(cs[0])
		}
	}
	return sc.text(pattern)
}

// returnType reads a declared return type, or infers one from the body.
// Async functions without an annotation return a Promise of the awaited
// body type.
func (sc *scope) returnType(n *sitter.Node, depth int) *Type {
	p := sc.project()
	if rt := n.ChildByFieldName("return_type"); rt != nil {
		return sc.typeOf(rt)
	}
	body := n.ChildByFieldName("body")
	if body == nil {
		return p.anyType()
	}
	if isGenerator(n) {
		return p.opaque("Generator")
	}
	t := sc.inferBody(body, depth)
	if hasChild(n, "async") {
		var members []*Type
		for _, m := range unionMembers(t) {
			members = append(members, asType(p, Awaited(m)))
		}
		return p.promise(p.union(members))
	}
	return t
}

func isGenerator(n *sitter.Node) bool {
	switch n.Type() {
	case "generator_function_declaration", "generator_function":
		return true
	}
	return hasChild(n, "*")
}

// inferBody infers the type a function body returns: the expression of a
// concise arrow body, or the union of every return statement that is not
// inside a nested function.
func (sc *scope) inferBody(body *sitter.Node, depth int) *Type {
	p := sc.project()
	if body.Type() != "statement_block" {
		return sc.inferExpr(body, depth)
	}
	var returns []*Type
	bare := 0
	var walk func(n *sitter.Node)
	walk = func(n *sitter.Node) {
		for _, c := range namedChildren(n) {
			switch {
			case functionLike[c.Type()], c.Type() == "class", c.Type() == "class_declaration":
				continue
			case c.Type() == "return_statement":
				if cs := namedChildren(c); len(cs) > 0 {
					returns = append(returns, sc.inferExpr(cs[0], depth+1))
				} else {
					bare++
				}
				continue
			}
			walk(c)
		}
	}
	walk(body)
	if len(returns) == 0 {
		return p.primitive(PrimitiveVoid)
	}
	if bare > 0 {
		returns = append(returns, p.primitive(PrimitiveUndefined))
	}
	return p.union(returns)
}

// declaratorType reads the type of a variable declarator from its
// annotation or its initializer.
func (sc *scope) declaratorType(decl *sitter.Node, depth int) *Type {
	switch {
	case decl.ChildByFieldName("type") != nil:
		return sc.typeOf(decl.ChildByFieldName("type"))
	case decl.ChildByFieldName("value") != nil:
		return sc.inferExpr(decl.ChildByFieldName("value"), depth)
	case decl.Type() != "variable_declarator":
		// export default <expr>
		return sc.inferExpr(decl, depth)
	}
	return sc.project().anyType()
}

// inferExpr infers the type of an expression.
func (sc *scope) inferExpr(n *sitter.Node, depth int) *Type {
	p := sc.project()
	if n == nil || depth > maxInferDepth {
		return p.anyType()
	}
	first := func() *sitter.Node {
		if cs := namedChildren(n); len(cs) > 0 {
			return cs[0]
		}
		return nil
	}
	last := func() *sitter.Node {
		if cs := namedChildren(n); len(cs) > 0 {
			return cs[len(cs)-1]
		}
		return nil
	}

	switch n.Type() {
	case "string", "template_string":
		return p.primitive(PrimitiveString)
	case "number":
		return p.primitive(PrimitiveNumber)
	case "true", "false":
		return p.primitive(PrimitiveBoolean)
	case "null":
		return p.primitive(PrimitiveNull)
	case "undefined":
		return p.primitive(PrimitiveUndefined)
	case "regex":
		return p.opaque("RegExp")
	case "this", "super":
		return p.anyType()

	case "identifier":
		return sc.valueOf(sc.text(n), n, depth+1)

	case "parenthesized_expression", "sequence_expression":
		return sc.inferExpr(last(), depth+1)

	case "object":
		return sc.objectLiteral(n, depth)

	case "array":
		var elems []*Type
		for _, c := range namedChildren(n) {
			if c.Type() == "spread_element" {
				inner := sc.inferExpr(first0(c), depth+1)
				if r := inner.deref(); r.kind == kindArray {
					elems = append(elems, r.elem)
				} else {
					elems = append(elems, p.anyType())
				}
				continue
			}
			elems = append(elems, sc.inferExpr(c, depth+1))
		}
		if len(elems) == 0 {
			return p.array(p.anyType())
		}
		return p.array(p.union(elems))

	case "arrow_function", "function_expression", "function", "generator_function":
		return p.function([]Signature{sc.signatureAt(n, depth+1)})

	case "class":
		return p.opaque("class")

	case "as_expression":
		cs := namedChildren(n)
		if len(cs) < 2 || hasChild(n, "const") {
			return sc.inferExpr(first(), depth+1)
		}
		return sc.typeOf(cs[len(cs)-1])

	case "satisfies_expression", "non_null_expression":
		return sc.inferExpr(first(), depth+1)

	case "type_assertion":
		if args := sc.typeArgs(firstNamedChildOfType(n, "type_arguments")); len(args) > 0 {
			return args[0]
		}
		return sc.inferExpr(last(), depth+1)

	case "await_expression":
		return asType(p, Awaited(sc.inferExpr(first(), depth+1)))

	case "new_expression":
		ctor := n.ChildByFieldName("constructor")
		if ctor == nil || (ctor.Type() != "identifier" && ctor.Type() != "type_identifier") {
			return p.anyType()
		}
		return sc.resolveTypeName(sc.text(ctor), sc.typeArgs(n.ChildByFieldName("type_arguments")))

	case "call_expression":
		return sc.callResult(n, depth)

	case "member_expression":
		obj := sc.inferExpr(n.ChildByFieldName("object"), depth+1)
		prop := sc.text(n.ChildByFieldName("property"))
		if t := obj.property(prop); t != nil {
			return t
		}
		if prop == "length" && (obj.IsArray() || obj.IsPrimitive(PrimitiveString)) {
			return p.primitive(PrimitiveNumber)
		}
		return p.anyType()

	case "subscript_expression":
		obj := sc.inferExpr(n.ChildByFieldName("object"), depth+1)
		if r := obj.deref(); r.kind == kindArray {
			return r.elem
		}
		return p.anyType()

	case "binary_expression":
		return sc.binaryResult(n, depth)

	case "unary_expression":
		switch sc.text(n.ChildByFieldName("operator")) {
		case "!", "delete":
			return p.primitive(PrimitiveBoolean)
		case "typeof":
			return p.primitive(PrimitiveString)
		case "void":
			return p.primitive(PrimitiveUndefined)
		}
		return p.primitive(PrimitiveNumber)

	case "update_expression":
		return p.primitive(PrimitiveNumber)

	case "ternary_expression":
		return p.union([]*Type{
			sc.inferExpr(n.ChildByFieldName("consequence"), depth+1),
			sc.inferExpr(n.ChildByFieldName("alternative"), depth+1),
		})

	case "assignment_expression", "augmented_assignment_expression":
		return sc.inferExpr(n.ChildByFieldName("right"), depth+1)

	case "spread_element":
		return sc.inferExpr(first(), depth+1)
	}
	return p.anyType()
}

func first0(n *sitter.Node) *sitter.Node {
	if cs := namedChildren(n); len(cs) > 0 {
		return cs[0]
	}
	return nil
}

func (sc *scope) objectLiteral(n *sitter.Node, depth int) *Type {
	p := sc.project()
	return p.record(compact(sc.text(n)), func() ([]Property, []Signature) {
		ms := newMemberSet()
		for _, c := range namedChildren(n) {
			switch c.Type() {
			case "pair":
				ms.add(sc.propertyName(c.ChildByFieldName("key")), sc.inferExpr(c.ChildByFieldName("value"), depth+1))
			case "shorthand_property_identifier":
				name := sc.text(c)
				ms.add(name, sc.valueOf(name, c, depth+1))
			case "method_definition":
				ms.add(sc.propertyName(c.ChildByFieldName("name")), p.function([]Signature{sc.signatureAt(c, depth+1)}))
			case "spread_element":
				inner := sc.inferExpr(first0(c), depth+1)
				for _, prop := range inner.Properties() {
					ms.add(prop.Name, prop.Type)
				}
			}
		}
		return ms.props, nil
	})
}

func (sc *scope) callResult(n *sitter.Node, depth int) *Type {
	p := sc.project()
	callee := n.ChildByFieldName("function")
	if callee == nil {
		return p.anyType()
	}
	var args []*sitter.Node
	if a := n.ChildByFieldName("arguments"); a != nil {
		args = namedChildren(a)
	}

	switch sc.text(callee) {
	case "String", "JSON.stringify":
		return p.primitive(PrimitiveString)
	case "Number", "parseInt", "parseFloat", "Date.now", "Math.random":
		return p.primitive(PrimitiveNumber)
	case "Boolean", "Array.isArray", "Number.isNaN":
		return p.primitive(PrimitiveBoolean)
	case "Promise.resolve":
		if len(args) == 0 {
			return p.promise(p.primitive(PrimitiveVoid))
		}
		return p.promise(asType(p, Awaited(sc.inferExpr(args[0], depth+1))))
	case "Promise.reject":
		return p.promise(p.primitive(PrimitiveNever))
	}

	ft := sc.inferExpr(callee, depth+1)
	if sigs := ft.CallSignatures(); len(sigs) > 0 {
		return asType(p, sigs[0].Return)
	}
	return p.anyType()
}

func (sc *scope) binaryResult(n *sitter.Node, depth int) *Type {
	p := sc.project()
	left := func() *Type { return sc.inferExpr(n.ChildByFieldName("left"), depth+1) }
	right := func() *Type { return sc.inferExpr(n.ChildByFieldName("right"), depth+1) }
	stringy := func(t *Type) bool { return t.IsPrimitive(PrimitiveString) || t.IsLiteral(LiteralString) }
	numeric := func(t *Type) bool { return t.IsPrimitive(PrimitiveNumber) || t.IsLiteral(LiteralNumber) }

	switch sc.text(n.ChildByFieldName("operator")) {
	case "+":
		l, r := left(), right()
		switch {
		case stringy(l) || stringy(r):
			return p.primitive(PrimitiveString)
		case numeric(l) && numeric(r):
			return p.primitive(PrimitiveNumber)
		}
		return p.anyType()
	case "-", "*", "/", "%", "**", "<<", ">>", ">>>", "&", "|", "^":
		return p.primitive(PrimitiveNumber)
	case "==", "===", "!=", "!==", "<", ">", "<=", ">=", "instanceof", "in":
		return p.primitive(PrimitiveBoolean)
	case "&&", "||", "??":
		return p.union([]*Type{left(), right()})
	}
	return p.anyType()
}

// valueOf resolves the type of the value named name as seen from node at:
// enclosing function parameters and block-scoped declarations first, then
// module declarations and imports.
func (sc *scope) valueOf(name string, at *sitter.Node, depth int) *Type {
	p := sc.project()
	if depth > maxInferDepth {
		return p.anyType()
	}
	for n := at.Parent(); n != nil && n.Type() != "program"; n = n.Parent() {
		if functionLike[n.Type()] {
			if t := sc.paramType(n, name, depth); t != nil {
				return t
			}
		}
		if n.Type() == "statement_block" {
			if t := sc.blockBinding(n, name, depth); t != nil {
				return t
			}
		}
	}

	m := sc.mod
	if d, ok := m.values[name]; ok {
		return d.valueType()
	}
	if b, ok := m.imports[name]; ok && !b.typeOnly {
		target := m.resolveImport(b.spec)
		if target == nil {
			return p.anyType()
		}
		if b.imported == "*" {
			return target.namespaceType(name)
		}
		for _, d := range target.exportNamed(b.imported) {
			if !d.TypeOnly() {
				return d.valueType()
			}
		}
		return p.anyType()
	}
	switch name {
	case "undefined":
		return p.primitive(PrimitiveUndefined)
	case "NaN", "Infinity":
		return p.primitive(PrimitiveNumber)
	}
	return p.anyType()
}

func (sc *scope) paramType(fn *sitter.Node, name string, depth int) *Type {
	if single := fn.ChildByFieldName("parameter"); single != nil {
		if sc.text(single) == name {
			return sc.project().anyType()
		}
		return nil
	}
	for _, prm := range sc.bind(fn.ChildByFieldName("type_parameters"), nil).paramList(fn, depth) {
		if prm.Name == name {
			return asType(sc.project(), prm.Type)
		}
	}
	return nil
}

func (sc *scope) blockBinding(block *sitter.Node, name string, depth int) *Type {
	for _, stmt := range namedChildren(block) {
		switch stmt.Type() {
		case "lexical_declaration", "variable_declaration":
			for _, decl := range namedChildren(stmt) {
				if decl.Type() != "variable_declarator" {
					continue
				}
				if id := decl.ChildByFieldName("name"); id != nil && sc.text(id) == name {
					return sc.declaratorType(decl, depth+1)
				}
			}
		case "function_declaration", "generator_function_declaration":
			if id := stmt.ChildByFieldName("name"); id != nil && sc.text(id) == name {
				return sc.project().function([]Signature{sc.signatureAt(stmt, depth+1)})
			}
		}
	}
	return nil
}

// namespaceType is the type of `import * as name`: a record of the module's
// exported values.
func (m *Module) namespaceType(name string) *Type {
	p := m.project
	return p.record("typeof "+name, func() ([]Property, []Signature) {
		var props []Property
		for _, ex := range m.ExportedDeclarations() {
			for _, d := range ex.Declarations {
				if d.TypeOnly() {
					continue
				}
				props = append(props, Property{Name: ex.Name, Type: d.valueType()})
				break
			}
		}
		return props, nil
	})
}
