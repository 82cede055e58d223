package ipcguard

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jward/ipcguard/internal/config"
)

// Golden test format.
type goldenFile struct {
	Diagnostics []goldenDiag `json:"diagnostics"`
}

type goldenDiag struct {
	Kind     string `json:"kind"`
	Function string `json:"function"`
	Param    string `json:"param,omitempty"`
	File     string `json:"file"`
	Line     int    `json:"line"`
}

// TestGolden walks testdata/{language}/ directories. Each level is a
// project root with a tsconfig.json, an optional ipcguard.yaml, sources
// under src/ and a golden.json listing the expected diagnostics.
func TestGolden(t *testing.T) {
	langDirs, err := os.ReadDir("testdata")
	if err != nil {
		t.Skip("no testdata directory found")
	}

	for _, langDir := range langDirs {
		if !langDir.IsDir() {
			continue
		}
		lang := langDir.Name()
		langRoot := filepath.Join("testdata", lang)
		levels, err := os.ReadDir(langRoot)
		if err != nil {
			continue
		}

		for _, level := range levels {
			if !level.IsDir() {
				continue
			}
			testDir := filepath.Join(langRoot, level.Name())
			goldenPath := filepath.Join(testDir, "golden.json")
			if _, err := os.Stat(goldenPath); err != nil {
				continue
			}

			t.Run(lang+"/"+level.Name(), func(t *testing.T) {
				t.Parallel()
				runGoldenTest(t, testDir, goldenPath)
			})
		}
	}
}

func runGoldenTest(t *testing.T, testDir, goldenPath string) {
	t.Helper()

	goldenData, err := os.ReadFile(goldenPath)
	require.NoError(t, err)
	var golden goldenFile
	require.NoError(t, json.Unmarshal(goldenData, &golden))

	root, err := filepath.Abs(testDir)
	require.NoError(t, err)

	// A level may carry its own ipcguard.yaml; the rest run on defaults.
	cfg := config.Default(root)
	if cfgPath := filepath.Join(root, config.FileName); fileExists(cfgPath) {
		cfg, err = config.Load(cfgPath)
		require.NoError(t, err)
	}

	// The database lives outside the fixture so testdata stays clean.
	dbPath := filepath.Join(t.TempDir(), "golden.db")
	engine, err := New(dbPath, cfg, WithLogger(zapNop()))
	require.NoError(t, err)
	defer engine.Close()

	ctx := context.Background()
	first, err := engine.CheckDirectory(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, first.Skipped)
	verifyDiagnostics(t, root, first.Diagnostics, golden.Diagnostics)

	// Nothing changed, so the second run replays the same diagnostics.
	second, err := engine.CheckDirectory(ctx, root)
	require.NoError(t, err)
	assert.Zero(t, second.Checked)
	assert.Equal(t, first.Checked, second.Skipped)
	verifyDiagnostics(t, root, second.Diagnostics, golden.Diagnostics)
}

func verifyDiagnostics(t *testing.T, root string, actual []Diagnostic, expected []goldenDiag) {
	t.Helper()
	got := make([]goldenDiag, 0, len(actual))
	for _, d := range actual {
		rel, err := filepath.Rel(root, d.Path)
		require.NoError(t, err)
		got = append(got, goldenDiag{
			Kind:     d.Kind.String(),
			Function: d.FuncName,
			Param:    d.ParamName,
			File:     filepath.ToSlash(rel),
			Line:     d.Line,
		})
	}
	if expected == nil {
		expected = []goldenDiag{}
	}
	assert.ElementsMatch(t, expected, got)
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
