package expand

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/sebdah/goldie/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ipcguard/internal/typegraph"
)

func writeFiles(t *testing.T, dir string, files map[string]string) {
	t.Helper()
	for name, content := range files {
		path := filepath.Join(dir, name)
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	}
}

func newTransformer(t *testing.T, dir string, opts ...Option) *Transformer {
	t.Helper()
	return New(typegraph.NewProject(typegraph.Options{StrictNullChecks: true}), dir, opts...)
}

func golden(t *testing.T) *goldie.Goldie {
	return goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
}

const greetModule = `export function hello(name: string): string {
  return "hello " + name;
}

export function bye(): void {}

function internal() {}
`

func TestExpand_Greet(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"greet.ts": greetModule})

	src := []byte("import * as greetApi from \"./greet\";\nexport default { greetApi };\n")
	out, err := newTransformer(t, dir).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.NoError(t, err)

	golden(t).Assert(t, "greet", out)
}

func TestExpand_Mixed(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"greet.ts": greetModule,
		"empty.ts": "export const VERSION = 1;\nexport interface Options { verbose: boolean }\n",
		"users/index.ts": `export function list(): string[] { return []; }
export function get(id: string): string;
export function get(id: number): string;
export function get(id: string | number): string { return String(id); }
function remove(id: string): void {}
export { remove };
export const count = () => 0;
`,
	})

	src := []byte(`import * as greetApi from "./greet";
import * as emptyApi from "./empty";
import * as usersApi from "./users/index";
import * as missingApi from "./missing";
import { notNamespace } from "./greet";

const extra = 1;

export default {
  greetApi,
  emptyApi,
  usersApi,
  missingApi,
  notNamespace,
  extra: extra,
};
`)
	out, err := newTransformer(t, dir).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.NoError(t, err)

	golden(t).Assert(t, "mixed", out)
}

func TestExpand_PatternMismatchIsUnchanged(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"greet.ts": greetModule})

	tests := []struct {
		name string
		src  string
	}{
		{"no default export", "import * as greetApi from \"./greet\";\nexport const api = { greetApi };\n"},
		{"identifier default", "import * as greetApi from \"./greet\";\nconst api = { greetApi };\nexport default api;\n"},
		{"parenthesized default", "import * as greetApi from \"./greet\";\nexport default ({ greetApi });\n"},
		{"const assertion", "import * as greetApi from \"./greet\";\nexport default { greetApi } as const;\n"},
		{"function default", "export default function () {}\n"},
		{"empty file", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := []byte(tt.src)
			out, err := newTransformer(t, dir).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
			require.NoError(t, err)
			assert.Equal(t, tt.src, string(out))
		})
	}
}

func TestExpand_ParseError(t *testing.T) {
	dir := t.TempDir()
	src := []byte("import * as greetApi from \"./greet\";\nexport default { greetApi \n")
	_, err := newTransformer(t, dir).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrParse)
	assert.ErrorIs(t, err, typegraph.ErrSyntax)
}

func TestExpand_DeclarationParseErrorAborts(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"broken.ts": "export function (\n"})

	src := []byte("import * as brokenApi from \"./broken\";\nexport default { brokenApi };\n")
	_, err := newTransformer(t, dir).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.Error(t, err)
	assert.ErrorIs(t, err, typegraph.ErrSyntax)
	assert.NotErrorIs(t, err, ErrParse)
}

func TestExpand_Suffix(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"greet.ts":   greetModule,
		"greet.d.ts": "export declare function hello(name: string): string;\n",
	})

	src := []byte("import * as greetApi from \"./greet\";\nexport default { greetApi };\n")
	out, err := newTransformer(t, dir, WithSuffix(".d.ts")).Expand(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.NoError(t, err)
	assert.Equal(t, "import * as greetApi from \"./greet\";\nexport default { greetApi: { hello: () => {} } };\n", string(out))
}

func TestExpand_DeclarationsRoot(t *testing.T) {
	root := t.TempDir()
	decls := filepath.Join(root, "decls")
	writeFiles(t, root, map[string]string{"decls/greet.ts": greetModule})

	// The index lives elsewhere; specifiers resolve against the
	// declarations root, not the importing file.
	src := []byte("import * as greetApi from \"./greet\";\nexport default { greetApi };\n")
	out, err := newTransformer(t, decls).Expand(context.Background(), src, filepath.Join(root, "src", "index.ts"))
	require.NoError(t, err)
	assert.Contains(t, string(out), "greetApi: { hello: () => {}, bye: () => {} }")
}

func TestExpand_ReloadOverwrites(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{"greet.ts": greetModule})
	tr := newTransformer(t, dir)
	index := filepath.Join(dir, "index.ts")
	ctx := context.Background()

	_, err := tr.Expand(ctx, []byte("export default {};\n"), index)
	require.NoError(t, err)

	src := []byte("import * as greetApi from \"./greet\";\nexport default { greetApi };\n")
	out, err := tr.Expand(ctx, src, index)
	require.NoError(t, err)
	assert.Contains(t, string(out), "greetApi: { hello: () => {}, bye: () => {} }")

	m, ok := tr.project.Module(index)
	require.True(t, ok)
	assert.Equal(t, src, m.Source())
}

func TestStubs(t *testing.T) {
	dir := t.TempDir()
	writeFiles(t, dir, map[string]string{
		"greet.ts": greetModule,
		"math.ts":  "export function add(a: number, b: number) { return a + b; }\n",
	})

	src := []byte(`import * as greetApi from "./greet";
import * as mathApi from "./math";
export default { mathApi, greetApi };
`)
	stubs, err := newTransformer(t, dir).Stubs(context.Background(), src, filepath.Join(dir, "index.ts"))
	require.NoError(t, err)

	var channels []string
	for _, s := range stubs {
		channels = append(channels, s.Channel())
	}
	assert.Equal(t, []string{"mathApi.add", "greetApi.hello", "greetApi.bye"}, channels)
}

func TestExpansion_Text(t *testing.T) {
	assert.Equal(t, "api: {}", Expansion{API: "api"}.Text())
	assert.Equal(t, "api: { a: () => {} }", Expansion{API: "api", Functions: []string{"a"}}.Text())
	assert.Equal(t, "api: { a: () => {}, b: () => {} }", Expansion{API: "api", Functions: []string{"a", "b"}}.Text())
}

func TestEditSet(t *testing.T) {
	src := []byte("0123456789")

	var none editSet
	out, err := none.apply(src)
	require.NoError(t, err)
	assert.Equal(t, src, out)

	var s editSet
	s.replace(7, 9, "X")
	s.replace(1, 3, "abc")
	s.replace(5, 5, "+")
	out, err = s.apply(src)
	require.NoError(t, err)
	assert.Equal(t, "0abc34+56X9", string(out))

	var overlap editSet
	overlap.replace(1, 4, "a")
	overlap.replace(3, 5, "b")
	_, err = overlap.apply(src)
	assert.Error(t, err)

	var outOfRange editSet
	outOfRange.replace(8, 12, "z")
	_, err = outOfRange.apply(src)
	assert.Error(t, err)
}
