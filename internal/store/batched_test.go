package store

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatchedStore_FakeIDs(t *testing.T) {
	t.Parallel()
	batch := NewBatchedStore()
	assert.True(t, batch.Empty())

	id1 := batch.AddFile(&File{Path: "/a.ts"})
	id2 := batch.AddFile(&File{Path: "/b.ts"})
	assert.Negative(t, id1, "batched IDs should be negative")
	assert.Negative(t, id2)
	assert.NotEqual(t, id1, id2)
	assert.False(t, batch.Empty())
}

func TestCommitBatch_RemapsFakeIDs(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	batch := NewBatchedStore()
	id := batch.AddFile(&File{Path: "/api/a.ts", Hash: "h", ConfigHash: "c", LastChecked: time.Now()})
	batch.AddDependency(&Dependency{FileID: id, Path: "/types.ts", Hash: "t"})
	batch.AddDiagnostic(&Diagnostic{FileID: id, RunID: "r", Kind: "param", FuncName: "f", ParamName: "x", Message: "m"})
	require.NoError(t, s.CommitBatch(batch))

	f, err := s.FileByPath("/api/a.ts")
	require.NoError(t, err)
	require.NotNil(t, f)
	assert.Positive(t, f.ID)

	deps, err := s.DependenciesByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, deps, 1)
	assert.Equal(t, f.ID, deps[0].FileID)

	diags, err := s.DiagnosticsByFile(f.ID)
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, f.ID, diags[0].FileID)
}

func TestCommitBatch_ReplacesExistingFile(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestFile(t, s, "/api/a.ts", map[string]string{"/old.ts": "1"},
		Diagnostic{RunID: "r1", Kind: "param", FuncName: "old", Message: "m"},
	)

	batch := NewBatchedStore()
	id := batch.AddFile(&File{Path: "/api/a.ts", Hash: "new", ConfigHash: "c"})
	batch.AddDiagnostic(&Diagnostic{FileID: id, RunID: "r2", Kind: "return", FuncName: "fresh", Message: "m"})
	require.NoError(t, s.CommitBatch(batch))

	f, err := s.FileByPath("/api/a.ts")
	require.NoError(t, err)
	assert.Equal(t, "new", f.Hash)

	deps, err := s.DependenciesByFile(f.ID)
	require.NoError(t, err)
	assert.Empty(t, deps)

	diags, err := s.DiagnosticsByPath("/api/a.ts")
	require.NoError(t, err)
	require.Len(t, diags, 1)
	assert.Equal(t, "fresh", diags[0].FuncName)
}

func TestCommitBatch_RemovesFiles(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	commitTestFile(t, s, "/gone.ts", nil)

	batch := NewBatchedStore()
	batch.RemoveFile("/gone.ts")
	require.NoError(t, s.CommitBatch(batch))

	f, err := s.FileByPath("/gone.ts")
	require.NoError(t, err)
	assert.Nil(t, f)
}

func TestCommitBatch_UnknownFakeIDRollsBack(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)

	batch := NewBatchedStore()
	batch.AddFile(&File{Path: "/a.ts", Hash: "h", ConfigHash: "c"})
	batch.AddDiagnostic(&Diagnostic{FileID: -42, RunID: "r", Kind: "param", FuncName: "f", Message: "m"})
	require.Error(t, s.CommitBatch(batch))

	f, err := s.FileByPath("/a.ts")
	require.NoError(t, err)
	assert.Nil(t, f, "failed commit must not leave partial rows")
}

func TestBatchedStore_ConcurrentAdds(t *testing.T) {
	t.Parallel()
	s := newTestStore(t)
	batch := NewBatchedStore()

	var wg sync.WaitGroup
	for i := range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			id := batch.AddFile(&File{Path: fmt.Sprintf("/f%02d.ts", i), Hash: "h", ConfigHash: "c"})
			batch.AddDiagnostic(&Diagnostic{FileID: id, RunID: "r", Kind: "param", FuncName: "f", Message: "m"})
		}()
	}
	wg.Wait()
	require.NoError(t, s.CommitBatch(batch))

	files, err := s.Files()
	require.NoError(t, err)
	assert.Len(t, files, 20)
	all, err := s.AllDiagnostics()
	require.NoError(t, err)
	assert.Len(t, all, 20)
}
