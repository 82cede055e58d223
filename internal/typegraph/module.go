package typegraph

import (
	"os"
	"path/filepath"
	"strings"

	sitter "github.com/smacker/go-tree-sitter"
)

// DeclKind is the syntactic category of a Declaration.
type DeclKind int

const (
	DeclFunction DeclKind = iota + 1
	DeclVariable
	DeclClass
	DeclInterface
	DeclTypeAlias
	DeclEnum
)

// String returns a human-readable representation of the kind.
func (k DeclKind) String() string {
	switch k {
	case DeclFunction:
		return "function"
	case DeclVariable:
		return "variable"
	case DeclClass:
		return "class"
	case DeclInterface:
		return "interface"
	case DeclTypeAlias:
		return "type"
	case DeclEnum:
		return "enum"
	default:
		return "unknown"
	}
}

// Declaration is one named declaration site in a module. Overloaded
// functions and merged interfaces are a single Declaration spanning
// several syntax nodes.
type Declaration struct {
	name   string
	kind   DeclKind
	module *Module
	anchor *sitter.Node
	nodes  []*sitter.Node

	typ       *Type
	resolving bool
}

// Name returns the local name of the declaration.
func (d *Declaration) Name() string { return d.name }

// Kind returns the syntactic category of the declaration.
func (d *Declaration) Kind() DeclKind { return d.kind }

// Module returns the module the declaration lives in.
func (d *Declaration) Module() *Module { return d.module }

// TypeOnly reports whether the declaration introduces only a type and no
// runtime value.
func (d *Declaration) TypeOnly() bool {
	return d.kind == DeclInterface || d.kind == DeclTypeAlias
}

// Offset returns the byte offset where the declaration starts. For a
// function exported inline this is the export keyword; for a variable it is
// the declarator's name.
func (d *Declaration) Offset() int { return int(d.anchor.StartByte()) }

// Type returns the value type of the declaration. For interfaces and type
// aliases, which have no value, it returns the declared type.
func (d *Declaration) Type() TypeNode { return d.valueType() }

func (d *Declaration) valueType() *Type {
	if d.typ != nil {
		return d.typ
	}
	p := d.module.project
	if d.resolving {
		return p.anyType()
	}
	d.resolving = true
	defer func() { d.resolving = false }()

	sc := d.module.rootScope()
	var t *Type
	switch d.kind {
	case DeclFunction:
		t = sc.functionType(d.signatureNodes())
	case DeclVariable:
		t = sc.declaratorType(d.nodes[0], 0)
	case DeclClass:
		t = p.opaque("typeof " + d.name)
	case DeclEnum:
		t = p.opaque("typeof " + d.name)
	default:
		t = d.module.instantiate(d, nil, 0)
	}
	d.typ = t
	return t
}

// signatureNodes returns the overload signatures of a function, or its
// implementation when it has no overloads.
func (d *Declaration) signatureNodes() []*sitter.Node {
	var sigs []*sitter.Node
	for _, n := range d.nodes {
		if n.Type() == "function_signature" {
			sigs = append(sigs, n)
		}
	}
	if len(sigs) > 0 {
		return sigs
	}
	return d.nodes
}

// Export is one entry of a module's export table.
type Export struct {
	Name         string
	Declarations []*Declaration
}

// importBinding is a local name bound by an import statement. imported is
// "*" for namespace imports and "default" for default imports.
type importBinding struct {
	spec     string
	imported string
	typeOnly bool
}

// exportEntry is an export statement in source order, unresolved.
type exportEntry struct {
	name     string
	local    string
	spec     string
	imported string
	star     bool
	decls    []*Declaration
}

// Module is a parsed source file within a Project.
type Module struct {
	project *Project
	path    string
	src     []byte
	tree    *sitter.Tree

	imports      map[string]importBinding
	values       map[string]*Declaration
	types        map[string]*Declaration
	funcs        []*Declaration
	exported     map[string]bool
	entries      []exportEntry
	defaultValue *sitter.Node

	exports   []Export
	exporting bool
}

func newModule(p *Project, path string, src []byte, tree *sitter.Tree) *Module {
	m := &Module{
		project:  p,
		path:     path,
		src:      src,
		tree:     tree,
		imports:  make(map[string]importBinding),
		values:   make(map[string]*Declaration),
		types:    make(map[string]*Declaration),
		exported: make(map[string]bool),
	}
	m.index()
	return m
}

// Path returns the module's absolute path.
func (m *Module) Path() string { return m.path }

// Source returns the text the module was parsed from.
func (m *Module) Source() []byte { return m.src }

// Root returns the root node of the module's syntax tree.
func (m *Module) Root() *sitter.Node { return m.tree.RootNode() }

// reset forgets every resolved type so that they are rebuilt against the
// Project's current modules.
func (m *Module) reset() {
	for _, d := range m.values {
		d.typ = nil
	}
	for _, d := range m.types {
		d.typ = nil
	}
	m.exports = nil
}

func (m *Module) index() {
	root := m.tree.RootNode()
	for _, stmt := range namedChildren(root) {
		switch stmt.Type() {
		case "import_statement":
			m.indexImport(stmt)
		case "export_statement":
			m.indexExport(stmt)
		default:
			m.indexDeclaration(stmt, stmt, false)
		}
	}
}

func (m *Module) indexImport(stmt *sitter.Node) {
	source := stmt.ChildByFieldName("source")
	if source == nil {
		return
	}
	spec := unquote(source, m.src)
	typeOnly := hasChild(stmt, "type")
	clause := firstNamedChildOfType(stmt, "import_clause")
	if clause == nil {
		return
	}
	for _, c := range namedChildren(clause) {
		switch c.Type() {
		case "identifier":
			m.imports[nodeText(c, m.src)] = importBinding{spec: spec, imported: "default", typeOnly: typeOnly}
		case "namespace_import":
			if id := firstNamedChildOfType(c, "identifier"); id != nil {
				m.imports[nodeText(id, m.src)] = importBinding{spec: spec, imported: "*", typeOnly: typeOnly}
			}
		case "named_imports":
			for _, s := range namedChildren(c) {
				if s.Type() != "import_specifier" {
					continue
				}
				name := s.ChildByFieldName("name")
				if name == nil {
					continue
				}
				local := name
				if alias := s.ChildByFieldName("alias"); alias != nil {
					local = alias
				}
				m.imports[nodeText(local, m.src)] = importBinding{
					spec:     spec,
					imported: unquote(name, m.src),
					typeOnly: typeOnly || hasChild(s, "type"),
				}
			}
		}
	}
}

func (m *Module) indexExport(stmt *sitter.Node) {
	isDefault := hasChild(stmt, "default")
	if decl := stmt.ChildByFieldName("declaration"); decl != nil {
		decls := m.indexDeclaration(decl, stmt, true)
		for _, d := range decls {
			name := d.name
			if isDefault {
				name = "default"
			}
			m.entries = append(m.entries, exportEntry{name: name, decls: []*Declaration{d}})
		}
		if isDefault && len(decls) == 0 {
			// export default function () {}
			d := &Declaration{name: "default", module: m, anchor: stmt, nodes: []*sitter.Node{unwrapAmbient(decl)}}
			switch unwrapAmbient(decl).Type() {
			case "function_declaration", "generator_function_declaration", "function_signature":
				d.kind = DeclFunction
			default:
				d.kind = DeclClass
			}
			m.entries = append(m.entries, exportEntry{name: "default", decls: []*Declaration{d}})
		}
		return
	}

	if value := stmt.ChildByFieldName("value"); value != nil {
		if !isDefault {
			return
		}
		if m.defaultValue == nil {
			m.defaultValue = value
		}
		if value.Type() == "identifier" {
			m.entries = append(m.entries, exportEntry{name: "default", local: nodeText(value, m.src)})
			return
		}
		d := &Declaration{name: "default", kind: DeclVariable, module: m, anchor: stmt, nodes: []*sitter.Node{value}}
		m.entries = append(m.entries, exportEntry{name: "default", decls: []*Declaration{d}})
		return
	}

	var spec string
	if source := stmt.ChildByFieldName("source"); source != nil {
		spec = unquote(source, m.src)
	}

	if clause := firstNamedChildOfType(stmt, "export_clause"); clause != nil {
		for _, s := range namedChildren(clause) {
			if s.Type() != "export_specifier" {
				continue
			}
			nameNode := s.ChildByFieldName("name")
			if nameNode == nil {
				continue
			}
			name := unquote(nameNode, m.src)
			exportedAs := name
			if alias := s.ChildByFieldName("alias"); alias != nil {
				exportedAs = unquote(alias, m.src)
			}
			if spec != "" {
				m.entries = append(m.entries, exportEntry{name: exportedAs, spec: spec, imported: name})
				continue
			}
			m.exported[name] = true
			m.entries = append(m.entries, exportEntry{name: exportedAs, local: name})
		}
		return
	}

	if spec != "" && hasChild(stmt, "*") && firstNamedChildOfType(stmt, "namespace_export") == nil {
		m.entries = append(m.entries, exportEntry{spec: spec, star: true})
	}
}

func unwrapAmbient(n *sitter.Node) *sitter.Node {
	if n.Type() == "ambient_declaration" {
		if cs := namedChildren(n); len(cs) > 0 {
			return cs[0]
		}
	}
	return n
}

// indexDeclaration records the declarations introduced by stmt. anchor is
// the node diagnostics point at for function-like declarations.
func (m *Module) indexDeclaration(stmt, anchor *sitter.Node, exported bool) []*Declaration {
	stmt = unwrapAmbient(stmt)
	var out []*Declaration
	switch stmt.Type() {
	case "function_declaration", "generator_function_declaration", "function_signature":
		nameNode := stmt.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name := nodeText(nameNode, m.src)
		if d, ok := m.values[name]; ok && d.kind == DeclFunction {
			d.nodes = append(d.nodes, stmt)
			if exported {
				m.exported[name] = true
			}
			return []*Declaration{d}
		}
		d := &Declaration{name: name, kind: DeclFunction, module: m, anchor: anchor, nodes: []*sitter.Node{stmt}}
		m.values[name] = d
		m.funcs = append(m.funcs, d)
		out = append(out, d)

	case "lexical_declaration", "variable_declaration":
		for _, decl := range namedChildren(stmt) {
			if decl.Type() != "variable_declarator" {
				continue
			}
			nameNode := decl.ChildByFieldName("name")
			if nameNode == nil || nameNode.Type() != "identifier" {
				continue
			}
			name := nodeText(nameNode, m.src)
			d := &Declaration{name: name, kind: DeclVariable, module: m, anchor: decl, nodes: []*sitter.Node{decl}}
			m.values[name] = d
			out = append(out, d)
		}

	case "class_declaration", "abstract_class_declaration":
		nameNode := stmt.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name := nodeText(nameNode, m.src)
		d := &Declaration{name: name, kind: DeclClass, module: m, anchor: anchor, nodes: []*sitter.Node{stmt}}
		m.values[name] = d
		m.types[name] = d
		out = append(out, d)

	case "interface_declaration":
		nameNode := stmt.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name := nodeText(nameNode, m.src)
		if d, ok := m.types[name]; ok && d.kind == DeclInterface {
			d.nodes = append(d.nodes, stmt)
			return []*Declaration{d}
		}
		d := &Declaration{name: name, kind: DeclInterface, module: m, anchor: anchor, nodes: []*sitter.Node{stmt}}
		m.types[name] = d
		out = append(out, d)

	case "type_alias_declaration":
		nameNode := stmt.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name := nodeText(nameNode, m.src)
		d := &Declaration{name: name, kind: DeclTypeAlias, module: m, anchor: anchor, nodes: []*sitter.Node{stmt}}
		m.types[name] = d
		out = append(out, d)

	case "enum_declaration":
		nameNode := stmt.ChildByFieldName("name")
		if nameNode == nil {
			return nil
		}
		name := nodeText(nameNode, m.src)
		d := &Declaration{name: name, kind: DeclEnum, module: m, anchor: anchor, nodes: []*sitter.Node{stmt}}
		m.values[name] = d
		m.types[name] = d
		out = append(out, d)
	}
	if exported {
		for _, d := range out {
			m.exported[d.name] = true
		}
	}
	return out
}

// ExportedDeclarations returns the module's export table in source order.
// Explicit exports come first; names contributed by `export * from` follow
// and never override an explicit export. Entries whose target cannot be
// resolved are omitted.
func (m *Module) ExportedDeclarations() []Export {
	if m.exports != nil {
		return m.exports
	}
	if m.exporting {
		return nil
	}
	m.exporting = true
	defer func() { m.exporting = false }()

	var out []Export
	index := make(map[string]int)
	add := func(name string, decls []*Declaration) {
		if len(decls) == 0 {
			return
		}
		i, ok := index[name]
		if !ok {
			index[name] = len(out)
			out = append(out, Export{Name: name})
			i = len(out) - 1
		}
		for _, d := range decls {
			if !containsDecl(out[i].Declarations, d) {
				out[i].Declarations = append(out[i].Declarations, d)
			}
		}
	}

	for _, e := range m.entries {
		switch {
		case e.star:
			continue
		case e.decls != nil:
			add(e.name, e.decls)
		case e.spec != "":
			if target := m.resolveImport(e.spec); target != nil {
				add(e.name, target.exportNamed(e.imported))
			}
		default:
			add(e.name, m.localDeclarations(e.local))
		}
	}
	for _, e := range m.entries {
		if !e.star {
			continue
		}
		target := m.resolveImport(e.spec)
		if target == nil {
			continue
		}
		for _, ex := range target.ExportedDeclarations() {
			if ex.Name == "default" {
				continue
			}
			if _, ok := index[ex.Name]; ok {
				continue
			}
			add(ex.Name, ex.Declarations)
		}
	}

	if out == nil {
		out = []Export{}
	}
	m.exports = out
	return out
}

func (m *Module) exportNamed(name string) []*Declaration {
	for _, ex := range m.ExportedDeclarations() {
		if ex.Name == name {
			return ex.Declarations
		}
	}
	return nil
}

// localDeclarations returns the value and type declarations bound to name,
// following an import when the name is imported.
func (m *Module) localDeclarations(name string) []*Declaration {
	var out []*Declaration
	if d, ok := m.values[name]; ok {
		out = append(out, d)
	}
	if d, ok := m.types[name]; ok && !containsDecl(out, d) {
		out = append(out, d)
	}
	if len(out) > 0 {
		return out
	}
	if b, ok := m.imports[name]; ok && b.imported != "*" {
		if target := m.resolveImport(b.spec); target != nil {
			return target.exportNamed(b.imported)
		}
	}
	return nil
}

// ExportedFunctionNames returns the names of top-level function
// declarations that the module exports, in declaration order. Each name
// appears once regardless of overloads. Re-exports and anonymous default
// functions are not included.
func (m *Module) ExportedFunctionNames() []string {
	var names []string
	seen := make(map[string]bool)
	for _, d := range m.funcs {
		if !m.exported[d.name] || seen[d.name] {
			continue
		}
		seen[d.name] = true
		names = append(names, d.name)
	}
	return names
}

// DefaultExportValue returns the expression of `export default <expr>`,
// or nil when the module has none.
func (m *Module) DefaultExportValue() *sitter.Node { return m.defaultValue }

// NamespaceImport returns the module specifier bound by
// `import * as name from "<spec>"`.
func (m *Module) NamespaceImport(name string) (string, bool) {
	b, ok := m.imports[name]
	if !ok || b.imported != "*" {
		return "", false
	}
	return b.spec, true
}

// Dependencies returns the resolved paths of every relative module this
// module imports or re-exports from, deduplicated, in source order.
func (m *Module) Dependencies() []string {
	var specs []string
	for _, stmt := range namedChildren(m.tree.RootNode()) {
		switch stmt.Type() {
		case "import_statement", "export_statement":
			if source := stmt.ChildByFieldName("source"); source != nil {
				specs = append(specs, unquote(source, m.src))
			}
		}
	}
	var out []string
	seen := make(map[string]bool)
	for _, spec := range specs {
		path := m.resolveSpecPath(spec)
		if path == "" || seen[path] {
			continue
		}
		seen[path] = true
		out = append(out, path)
	}
	return out
}

// resolveImport returns the module a relative specifier points at, loading
// it on demand.
func (m *Module) resolveImport(spec string) *Module {
	path := m.resolveSpecPath(spec)
	if path == "" {
		return nil
	}
	return m.project.moduleFor(path)
}

var sourceSuffixes = []string{".ts", ".tsx", ".d.ts", ".mts", ".cts"}

var jsToTS = map[string][]string{
	".js":  {".ts", ".tsx", ".d.ts"},
	".jsx": {".tsx"},
	".mjs": {".mts"},
	".cjs": {".cts"},
}

// resolveSpecPath maps a relative module specifier to a file path. Bare
// package specifiers are not resolved.
func (m *Module) resolveSpecPath(spec string) string {
	if !strings.HasPrefix(spec, ".") && !filepath.IsAbs(spec) {
		return ""
	}
	base := spec
	if !filepath.IsAbs(base) {
		base = filepath.Join(filepath.Dir(m.path), spec)
	}

	var candidates []string
	ext := filepath.Ext(base)
	if IsSourceFile(base) {
		candidates = append(candidates, base)
	}
	if repl, ok := jsToTS[ext]; ok {
		stem := strings.TrimSuffix(base, ext)
		for _, r := range repl {
			candidates = append(candidates, stem+r)
		}
	}
	for _, s := range sourceSuffixes {
		candidates = append(candidates, base+s)
	}
	for _, s := range []string{"index.ts", "index.tsx", "index.d.ts"} {
		candidates = append(candidates, filepath.Join(base, s))
	}

	for _, c := range candidates {
		if _, ok := m.project.Module(c); ok {
			return c
		}
	}
	for _, c := range candidates {
		if info, err := os.Stat(c); err == nil && !info.IsDir() {
			return c
		}
	}
	return ""
}

func containsDecl(list []*Declaration, d *Declaration) bool {
	for _, x := range list {
		if x == d {
			return true
		}
	}
	return false
}
