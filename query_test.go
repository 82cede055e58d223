package ipcguard

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQuery_DiagnosticsByKind(t *testing.T) {
	root := usersProject(t)
	writeFile(t, root, "src/main/api/clock.ts", "export function tick(): () => void { return () => {}; }\n")
	e := newTestEngine(t, root)
	_, err := e.CheckDirectory(context.Background(), root)
	require.NoError(t, err)

	q := e.Query()
	params, err := q.DiagnosticsByKind("nonSerializableParam")
	require.NoError(t, err)
	require.Len(t, params, 1)
	assert.Equal(t, "subscribe", params[0].FuncName)

	returns, err := q.DiagnosticsByKind("nonSerializableReturn")
	require.NoError(t, err)
	require.Len(t, returns, 1)
	assert.Equal(t, "tick", returns[0].FuncName)
	assert.Equal(t, filepath.Join(root, "src", "main", "api", "clock.ts"), returns[0].Path)

	all, err := q.AllDiagnostics()
	require.NoError(t, err)
	require.Len(t, all, 2)
	// Ordered by file path.
	assert.Equal(t, "tick", all[0].FuncName)
	assert.Equal(t, "subscribe", all[1].FuncName)
}

func TestQuery_DiagnosticsRelativePath(t *testing.T) {
	root := usersProject(t)
	e := newTestEngine(t, root)
	_, err := e.CheckDirectory(context.Background(), root)
	require.NoError(t, err)

	wd, err := os.Getwd()
	require.NoError(t, err)
	rel, err := filepath.Rel(wd, filepath.Join(root, "src", "main", "api", "users.ts"))
	require.NoError(t, err)

	records, err := e.Query().Diagnostics(rel)
	require.NoError(t, err)
	assert.Len(t, records, 1)
}

func TestQuery_NeverChecked(t *testing.T) {
	root := usersProject(t)
	e := newTestEngine(t, root)

	records, err := e.Query().Diagnostics(filepath.Join(root, "src", "main", "api", "users.ts"))
	require.NoError(t, err)
	assert.Empty(t, records)

	run, err := e.Query().Run("missing")
	require.NoError(t, err)
	assert.Nil(t, run)

	sum, err := e.Query().Summary()
	require.NoError(t, err)
	assert.Zero(t, sum.Files)
	assert.Nil(t, sum.LastRun)
}
