package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ipcguard/internal/classify"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestDefault(t *testing.T) {
	dir := t.TempDir()
	c := Default(dir)

	assert.Equal(t, dir, c.Dir)
	assert.Equal(t, filepath.Join(dir, "tsconfig.json"), c.Tsconfig)
	assert.Equal(t, "src/main/api/", c.Surface.Dir)
	assert.Empty(t, c.Surface.Script)
	assert.Equal(t, filepath.Join(dir, "src", "main", "api", "index.ts"), c.Expand.Target)
	assert.Equal(t, filepath.Join(dir, "src", "main", "api"), c.Expand.DeclarationsRoot)
	assert.Equal(t, ".ts", c.Expand.Suffix)
	assert.True(t, c.Prefilter)
	assert.False(t, c.Policy.AwaitReturns)
	assert.Equal(t, filepath.Join(dir, ".ipcguard", "index.db"), c.Database)

	p, err := c.ClassifyPolicy()
	require.NoError(t, err)
	assert.Equal(t, classify.DefaultPolicy(), p)
}

func TestLoad_FullFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, FileName)
	writeFile(t, path, `
tsconfig: config/tsconfig.app.json
surface:
  dir: src/ipc/
  script: scripts/surface.risor
expand:
  target: src/ipc/index.ts
  declarations_root: src/ipc/handlers
  suffix: .d.ts
policy:
  missing_declaration: deny
  cycle: pessimistic
  await_returns: true
prefilter: false
database: /var/tmp/ipcguard.db
`)

	c, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, dir, c.Dir)
	assert.Equal(t, filepath.Join(dir, "config", "tsconfig.app.json"), c.Tsconfig)
	assert.Equal(t, "src/ipc/", c.Surface.Dir)
	assert.Equal(t, filepath.Join(dir, "scripts", "surface.risor"), c.Surface.Script)
	assert.Equal(t, filepath.Join(dir, "src", "ipc", "index.ts"), c.Expand.Target)
	assert.Equal(t, filepath.Join(dir, "src", "ipc", "handlers"), c.Expand.DeclarationsRoot)
	assert.Equal(t, ".d.ts", c.Expand.Suffix)
	assert.True(t, c.Policy.AwaitReturns)
	assert.False(t, c.Prefilter)
	assert.Equal(t, "/var/tmp/ipcguard.db", c.Database)

	p, err := c.ClassifyPolicy()
	require.NoError(t, err)
	assert.Equal(t, classify.Policy{MissingDeclaration: classify.Deny, Cycle: classify.Pessimistic}, p)
}

func TestParse_PartialKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	c, err := Parse([]byte("policy:\n  cycle: pessimistic\n"), dir)
	require.NoError(t, err)

	assert.Equal(t, "pessimistic", c.Policy.Cycle)
	assert.Equal(t, "permit", c.Policy.MissingDeclaration)
	assert.False(t, c.Policy.AwaitReturns)
	assert.True(t, c.Prefilter)
	assert.Equal(t, "src/main/api/", c.Surface.Dir)
}

func TestParse_Empty(t *testing.T) {
	dir := t.TempDir()
	c, err := Parse(nil, dir)
	require.NoError(t, err)
	assert.Equal(t, Default(dir), c)
}

func TestParse_Invalid(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{"unknown key", "tsconfg: tsconfig.json\n"},
		{"unknown nested key", "policy:\n  cycles: optimistic\n"},
		{"bad enum", "policy:\n  cycle: sometimes\n"},
		{"wrong type", "prefilter: yes please\n"},
		{"bad target extension", "expand:\n  target: src/index.js\n"},
		{"suffix without dot", "expand:\n  suffix: ts\n"},
		{"empty database", "database: \"\"\n"},
		{"script extension", "surface:\n  script: surface.lua\n"},
		{"malformed yaml", "policy: [\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml), t.TempDir())
			require.Error(t, err)
			assert.ErrorIs(t, err, ErrInvalid)
		})
	}
}

func TestLoad_Missing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), FileName))
	require.Error(t, err)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestFind(t *testing.T) {
	root := t.TempDir()
	nested := filepath.Join(root, "a", "b", "c")
	require.NoError(t, os.MkdirAll(nested, 0o755))

	writeFile(t, filepath.Join(root, "a", FileName), "prefilter: false\n")
	found, err := Find(nested)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(root, "a", FileName), found)
}

func TestLoadOrDefault(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, FileName), "prefilter: false\n")
	sub := filepath.Join(root, "src")
	require.NoError(t, os.MkdirAll(sub, 0o755))

	c, err := LoadOrDefault("", sub)
	require.NoError(t, err)
	assert.False(t, c.Prefilter)
	assert.Equal(t, root, c.Dir)

	explicit := filepath.Join(root, "other.yaml")
	writeFile(t, explicit, "policy:\n  missing_declaration: deny\n")
	c, err = LoadOrDefault(explicit, sub)
	require.NoError(t, err)
	assert.Equal(t, "deny", c.Policy.MissingDeclaration)
	assert.True(t, c.Prefilter)
}
