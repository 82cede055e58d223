package store

import "sync"

// BatchedStore buffers the results of one check run in memory using fake
// (negative) file IDs so concurrent checks never touch SQLite. CommitBatch
// writes everything in a single transaction.
//
// Thread safety: the mutex protects fake ID allocation and slice appends.
type BatchedStore struct {
	mu sync.Mutex

	Files       []File
	Removed     []string
	Deps        []Dependency
	Diagnostics []Diagnostic

	nextFakeID int64 // starts at -1, decrements
}

// NewBatchedStore creates an empty BatchedStore.
func NewBatchedStore() *BatchedStore {
	return &BatchedStore{nextFakeID: -1}
}

func (b *BatchedStore) allocFakeID() int64 {
	id := b.nextFakeID
	b.nextFakeID--
	return id
}

// AddFile buffers a checked file and returns its fake ID. The stored row
// for the same path, if any, is replaced on commit.
func (b *BatchedStore) AddFile(f *File) int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	f.ID = b.allocFakeID()
	b.Files = append(b.Files, *f)
	return f.ID
}

// AddDependency buffers a dependency of a file added with AddFile.
func (b *BatchedStore) AddDependency(d *Dependency) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Deps = append(b.Deps, *d)
}

// AddDiagnostic buffers a diagnostic of a file added with AddFile.
func (b *BatchedStore) AddDiagnostic(d *Diagnostic) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Diagnostics = append(b.Diagnostics, *d)
}

// RemoveFile schedules the stored data for path to be deleted on commit.
func (b *BatchedStore) RemoveFile(path string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.Removed = append(b.Removed, path)
}

// Empty reports whether the batch holds nothing to commit.
func (b *BatchedStore) Empty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.Files) == 0 && len(b.Removed) == 0
}
