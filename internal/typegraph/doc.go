// Package typegraph is a structural type graph over TypeScript modules,
// built on the tree-sitter TypeScript grammars.
//
// A [Project] owns a set of parsed modules keyed by absolute path. Modules
// are loaded explicitly with [Project.LoadModule] (re-loading a path
// overwrites it) or on demand when a relative import is followed. Each
// module exposes its exported declarations in source order; each
// declaration answers [Declaration.Type], a [TypeNode] that can be queried
// for unions, primitives, literals, arrays, records and call signatures.
//
// The graph is declared-types only. Unannotated values get a shallow,
// syntax-directed type (literals, object and array literals, function
// expressions, the returns of a function body); anything else reads as any.
//
// Named types (interfaces, aliases, classes, enums) are interned per
// project so that a recursive type yields the same node on every visit.
// The module table is guarded by a mutex, but type resolution is lazy and
// unsynchronized: a Project and the nodes it hands out must be used by one
// goroutine at a time.
package typegraph
