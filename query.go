package ipcguard

import (
	"fmt"
	"path/filepath"

	"github.com/jward/ipcguard/internal/store"
)

// QueryBuilder provides read access to stored check results.
type QueryBuilder struct {
	store *store.Store
}

// Diagnostics returns the stored diagnostics of the file at path. A file
// that was never checked has none.
func (q *QueryBuilder) Diagnostics(path string) ([]*Record, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics: %w", err)
	}
	return q.store.DiagnosticsByPath(abs)
}

// AllDiagnostics returns every stored diagnostic ordered by file.
func (q *QueryBuilder) AllDiagnostics() ([]*Record, error) {
	return q.store.AllDiagnostics()
}

// DiagnosticsByKind returns the stored diagnostics with the given message
// ID, e.g. "nonSerializableReturn".
func (q *QueryBuilder) DiagnosticsByKind(kind string) ([]*Record, error) {
	return q.store.DiagnosticsByKind(kind)
}

// Runs returns the most recent check runs first. limit <= 0 returns all.
func (q *QueryBuilder) Runs(limit int) ([]*Run, error) {
	return q.store.Runs(limit)
}

// Run returns one run by its ID, or nil.
func (q *QueryBuilder) Run(runID string) (*Run, error) {
	return q.store.RunByID(runID)
}

// Summary aggregates the stored results.
func (q *QueryBuilder) Summary() (*Summary, error) {
	return q.store.Summary()
}
