package typegraph

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeFiles writes name → content pairs under a fresh temp dir and returns
// the dir.
func writeFiles(t *testing.T, files map[string]string) string {
	t.Helper()
	dir := t.TempDir()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
	return dir
}

func loadTestModule(t *testing.T, opts Options, src string) *Module {
	t.Helper()
	p := NewProject(opts)
	m, err := p.LoadModule(context.Background(), filepath.Join(t.TempDir(), "api.ts"), []byte(src))
	require.NoError(t, err)
	return m
}

func exportNames(m *Module) []string {
	var names []string
	for _, ex := range m.ExportedDeclarations() {
		names = append(names, ex.Name)
	}
	return names
}

func exported(t *testing.T, m *Module, name string) *Declaration {
	t.Helper()
	for _, ex := range m.ExportedDeclarations() {
		if ex.Name == name {
			require.NotEmpty(t, ex.Declarations)
			return ex.Declarations[0]
		}
	}
	t.Fatalf("export %q not found in %v", name, exportNames(m))
	return nil
}

func firstSignature(t *testing.T, d *Declaration) Signature {
	t.Helper()
	sigs := d.Type().CallSignatures()
	require.NotEmpty(t, sigs, "declaration %s has no call signature", d.Name())
	return sigs[0]
}

// =============================================================================
// Export table
// =============================================================================

func TestExportedDeclarations_SourceOrder(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export function a(x: string): number { return 1; }
export const b = (y: number) => "s";
export interface I { n: number }
export type T = string;
function local(): void {}
export { local as c };
`)
	assert.Equal(t, []string{"a", "b", "I", "T", "c"}, exportNames(m))

	assert.Equal(t, DeclFunction, exported(t, m, "a").Kind())
	assert.Equal(t, DeclVariable, exported(t, m, "b").Kind())
	assert.True(t, exported(t, m, "I").TypeOnly())
	assert.True(t, exported(t, m, "T").TypeOnly())
	assert.Equal(t, "local", exported(t, m, "c").Name())
}

func TestExportedDeclarations_OverloadsAreOneDeclaration(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export function f(a: string): string;
export function f(a: number): number;
export function f(a: any): any { return a; }
`)
	exports := m.ExportedDeclarations()
	require.Len(t, exports, 1)
	require.Len(t, exports[0].Declarations, 1)

	sigs := exports[0].Declarations[0].Type().CallSignatures()
	require.Len(t, sigs, 2)
	assert.True(t, sigs[0].Params[0].Type.IsPrimitive(PrimitiveString))
	assert.True(t, sigs[1].Params[0].Type.IsPrimitive(PrimitiveNumber))
}

func TestExportedDeclarations_StarReexport(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"users.ts": `export function getUser(id: string): string { return id; }
export function hello(): string { return "x"; }
export default function () {}
`,
		"index.ts": `export * from "./users";
export function hello(name: string): string { return name; }
`,
	})
	p := NewProject(Options{})
	m, err := p.LoadModule(context.Background(), filepath.Join(dir, "index.ts"), nil)
	require.NoError(t, err)

	assert.Equal(t, []string{"hello", "getUser"}, exportNames(m))
	assert.Equal(t, m.Path(), exported(t, m, "hello").Module().Path())
	assert.Equal(t, filepath.Join(dir, "users.ts"), exported(t, m, "getUser").Module().Path())
}

func TestExportedFunctionNames(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export function hello(): void {}
export function over(a: string): void;
export function over(a: number): void;
export function over(a: any): void {}
function viaClause(): void {}
function hidden(): void {}
export const arrow = () => {};
export default function () {}
export { viaClause };
`)
	assert.Equal(t, []string{"hello", "over", "viaClause"}, m.ExportedFunctionNames())
}

func TestNamespaceImportAndDefaultValue(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `import * as greetApi from "./greet";
import { other } from "./other";
export default { greetApi };
`)
	spec, ok := m.NamespaceImport("greetApi")
	require.True(t, ok)
	assert.Equal(t, "./greet", spec)

	_, ok = m.NamespaceImport("other")
	assert.False(t, ok)

	require.NotNil(t, m.DefaultExportValue())
	assert.Equal(t, "object", m.DefaultExportValue().Type())
}

// =============================================================================
// Loading
// =============================================================================

func TestLoadModule_OverwriteBumpsGeneration(t *testing.T) {
	t.Parallel()
	p := NewProject(Options{})
	path := filepath.Join(t.TempDir(), "a.ts")
	ctx := context.Background()

	m1, err := p.LoadModule(ctx, path, []byte("export function a(): string { return ''; }"))
	require.NoError(t, err)
	assert.Equal(t, uint64(0), p.Generation())

	same, err := p.LoadModule(ctx, path, []byte("export function a(): string { return ''; }"))
	require.NoError(t, err)
	assert.Same(t, m1, same)
	assert.Equal(t, uint64(0), p.Generation())

	m2, err := p.LoadModule(ctx, path, []byte("export function b(): string { return ''; }"))
	require.NoError(t, err)
	assert.NotSame(t, m1, m2)
	assert.Equal(t, uint64(1), p.Generation())
	assert.Equal(t, []string{"b"}, exportNames(m2))

	got, ok := p.Module(path)
	require.True(t, ok)
	assert.Same(t, m2, got)
}

func TestLoadModule_SyntaxError(t *testing.T) {
	t.Parallel()
	p := NewProject(Options{})
	_, err := p.LoadModule(context.Background(), "/tmp/broken.ts", []byte("export function (: {"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSyntax)

	_, ok := p.Module("/tmp/broken.ts")
	assert.False(t, ok)
}

func TestAddModuleIfExists(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{"greet.ts": "export function hello(): void {}\n"})
	p := NewProject(Options{})
	ctx := context.Background()

	m, ok, err := p.AddModuleIfExists(ctx, filepath.Join(dir, "greet.ts"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []string{"hello"}, m.ExportedFunctionNames())

	again, ok, err := p.AddModuleIfExists(ctx, filepath.Join(dir, "greet.ts"))
	require.NoError(t, err)
	require.True(t, ok)
	assert.Same(t, m, again)

	_, ok, err = p.AddModuleIfExists(ctx, filepath.Join(dir, "missing.ts"))
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestDependencies(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"types.ts":      "export interface User { name: string }\n",
		"util/index.ts": "export const x = 1;\n",
		"handlers.ts":   "export function h(): void {}\n",
		"api.ts": `import type { User } from "./types";
import { x } from "./util";
import fs from "fs";
export * from "./handlers.js";
export * from "./missing";
`,
	})
	p := NewProject(Options{})
	m, err := p.LoadModule(context.Background(), filepath.Join(dir, "api.ts"), nil)
	require.NoError(t, err)
	assert.Equal(t, []string{
		filepath.Join(dir, "types.ts"),
		filepath.Join(dir, "util", "index.ts"),
		filepath.Join(dir, "handlers.ts"),
	}, m.Dependencies())
}

// =============================================================================
// Types
// =============================================================================

func TestDeclarationType_Primitives(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{StrictNullChecks: true}, `
export function f(a: string, b: number, c: boolean, d: null, e: undefined, g: symbol, h: "lit", i: 42, j: true): void {}
`)
	sig := firstSignature(t, exported(t, m, "f"))
	require.Len(t, sig.Params, 9)

	assert.True(t, sig.Params[0].Type.IsPrimitive(PrimitiveString))
	assert.True(t, sig.Params[1].Type.IsPrimitive(PrimitiveNumber))
	assert.True(t, sig.Params[2].Type.IsPrimitive(PrimitiveBoolean))
	assert.True(t, sig.Params[3].Type.IsPrimitive(PrimitiveNull))
	assert.Equal(t, "undefined", sig.Params[4].Type.Text())
	assert.Equal(t, "symbol", sig.Params[5].Type.Text())
	assert.True(t, sig.Params[6].Type.IsLiteral(LiteralString))
	assert.True(t, sig.Params[7].Type.IsLiteral(LiteralNumber))
	assert.True(t, sig.Params[8].Type.IsLiteral(LiteralBoolean))
	assert.True(t, sig.Params[8].Type.IsPrimitive(PrimitiveBoolean))
	assert.True(t, sig.Return.IsPrimitive(PrimitiveVoid))
}

func TestDeclarationType_ArraysUnionsFunctions(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{StrictNullChecks: true}, `
export function f(a: string[], b: Array<number>, c: string | number, d: () => void, e: [string, number]): void {}
`)
	sig := firstSignature(t, exported(t, m, "f"))
	require.Len(t, sig.Params, 5)

	assert.True(t, sig.Params[0].Type.IsArray())
	assert.True(t, sig.Params[0].Type.ArrayElementType().IsPrimitive(PrimitiveString))
	assert.True(t, sig.Params[1].Type.IsArray())
	assert.True(t, sig.Params[1].Type.ArrayElementType().IsPrimitive(PrimitiveNumber))
	assert.True(t, sig.Params[2].Type.IsUnion())
	assert.Len(t, sig.Params[2].Type.UnionTypes(), 2)
	assert.Len(t, sig.Params[3].Type.CallSignatures(), 1)
	assert.True(t, sig.Params[4].Type.IsArray())
	assert.True(t, sig.Params[4].Type.ArrayElementType().IsUnion())
}

func TestDeclarationType_GenericFunctionParams(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export function wrap<T = string>(v: T, n: number) { return v; }
`)
	sig := firstSignature(t, exported(t, m, "wrap"))
	require.Len(t, sig.Params, 2)
	assert.Equal(t, "v", sig.Params[0].Name)
	assert.True(t, sig.Params[0].Type.IsPrimitive(PrimitiveString))
	assert.True(t, sig.Params[1].Type.IsPrimitive(PrimitiveNumber))
	// The inferred return looks v up through the function's bound scope.
	assert.True(t, sig.Return.IsPrimitive(PrimitiveString))
}

func TestDeclarationType_RecursiveInterfaceIsStable(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export interface TreeNode { value: string; next: TreeNode }
export function walk(n: TreeNode): string { return ""; }
`)
	sig := firstSignature(t, exported(t, m, "walk"))
	node := sig.Params[0].Type
	require.True(t, node.IsRecord())

	props := node.Properties()
	require.Len(t, props, 2)
	assert.Equal(t, "value", props[0].Name)
	assert.Equal(t, "next", props[1].Name)
	assert.Equal(t, node.ID(), props[1].Type.ID())
	assert.Equal(t, "TreeNode", node.Text())
}

func TestDeclarationType_OptionalProperties(t *testing.T) {
	t.Parallel()
	src := `
export interface Opts { a?: string }
export function f(o: Opts, x?: number): void {}
`
	strict := loadTestModule(t, Options{StrictNullChecks: true}, src)
	sig := firstSignature(t, exported(t, strict, "f"))
	assert.True(t, sig.Params[0].Type.Properties()[0].Type.IsUnion())
	assert.True(t, sig.Params[1].Type.IsUnion())

	exact := loadTestModule(t, Options{StrictNullChecks: true, ExactOptionalPropertyTypes: true}, src)
	sig = firstSignature(t, exported(t, exact, "f"))
	assert.True(t, sig.Params[0].Type.Properties()[0].Type.IsPrimitive(PrimitiveString))
	assert.True(t, sig.Params[1].Type.IsUnion())

	loose := loadTestModule(t, Options{}, src)
	sig = firstSignature(t, exported(t, loose, "f"))
	assert.True(t, sig.Params[0].Type.Properties()[0].Type.IsPrimitive(PrimitiveString))
	assert.True(t, sig.Params[1].Type.IsPrimitive(PrimitiveNumber))
}

func TestDeclarationType_ImportedType(t *testing.T) {
	t.Parallel()
	dir := writeFiles(t, map[string]string{
		"types.ts": "export interface User { name: string; greet(): string }\n",
		"api.ts": `import type { User } from "./types";
export function save(u: User): boolean { return true; }
`,
	})
	p := NewProject(Options{})
	m, err := p.LoadModule(context.Background(), filepath.Join(dir, "api.ts"), nil)
	require.NoError(t, err)

	sig := firstSignature(t, exported(t, m, "save"))
	user := sig.Params[0].Type
	require.True(t, user.IsRecord())
	props := user.Properties()
	require.Len(t, props, 2)
	assert.True(t, props[0].Type.IsPrimitive(PrimitiveString))
	assert.Len(t, props[1].Type.CallSignatures(), 1)
}

func TestDeclarationType_GenericAliasAndUtilities(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
type Box<T> = { value: T };
interface Full { a: string; b: number; c: () => void }
export function f(x: Box<number>, y: Pick<Full, "a" | "b">, z: Record<string, number>): void {}
`)
	sig := firstSignature(t, exported(t, m, "f"))

	box := sig.Params[0].Type.Properties()
	require.Len(t, box, 1)
	assert.True(t, box[0].Type.IsPrimitive(PrimitiveNumber))

	picked := sig.Params[1].Type.Properties()
	require.Len(t, picked, 2)
	assert.Equal(t, "a", picked[0].Name)
	assert.Equal(t, "b", picked[1].Name)

	rec := sig.Params[2].Type.Properties()
	require.Len(t, rec, 1)
	assert.True(t, rec[0].Type.IsPrimitive(PrimitiveNumber))
}

func TestDeclarationType_InferredReturns(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
export async function load() { return 1; }
export const name = (id: string) => "user-" + id;
export function nothing() {}
export function untyped(x) { return x; }
`)
	loadRet := firstSignature(t, exported(t, m, "load")).Return
	assert.Equal(t, "promise", loadRet.(*Type).Kind())
	assert.True(t, Awaited(loadRet).IsPrimitive(PrimitiveNumber))

	assert.True(t, firstSignature(t, exported(t, m, "name")).Return.IsPrimitive(PrimitiveString))
	assert.True(t, firstSignature(t, exported(t, m, "nothing")).Return.IsPrimitive(PrimitiveVoid))

	untyped := firstSignature(t, exported(t, m, "untyped"))
	assert.True(t, untyped.Params[0].Type.IsPrimitive(PrimitiveAny))
	assert.True(t, untyped.Return.IsPrimitive(PrimitiveAny))
}

func TestDeclarationType_EnumIsLiteralUnion(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
enum Color { Red = "red", Green = "green" }
export function paint(c: Color): void {}
`)
	c := firstSignature(t, exported(t, m, "paint")).Params[0].Type
	require.True(t, c.IsUnion())
	for _, member := range c.UnionTypes() {
		assert.True(t, member.IsLiteral(LiteralString))
	}
}

func TestDeclarationType_SelfAliasTerminates(t *testing.T) {
	t.Parallel()
	m := loadTestModule(t, Options{}, `
type Loop = Loop;
export function f(x: Loop): void {}
`)
	x := firstSignature(t, exported(t, m, "f")).Params[0].Type
	assert.False(t, x.IsRecord())
	assert.Equal(t, "Loop", x.Text())
}

func TestPosition(t *testing.T) {
	t.Parallel()
	src := []byte("a\n😀x = 1\n")
	line, col := Position(src, 0)
	assert.Equal(t, 1, line)
	assert.Equal(t, 0, col)

	// "x" follows a surrogate pair: two UTF-16 units, four bytes.
	line, col = Position(src, 6)
	assert.Equal(t, 2, line)
	assert.Equal(t, 2, col)
}
