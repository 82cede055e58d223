package ipcguard

import (
	"github.com/jward/ipcguard/internal/expand"
	"github.com/jward/ipcguard/internal/scan"
	"github.com/jward/ipcguard/internal/store"
)

// Public type aliases for internal types used in the Engine and
// QueryBuilder API.

type Store = store.Store
type Diagnostic = scan.Diagnostic
type Record = store.Diagnostic
type Run = store.Run
type Summary = store.Summary
type Stub = expand.Stub

// Report is the outcome of one check run. Diagnostics of skipped files are
// replayed from the store.
type Report struct {
	RunID       string
	Checked     int
	Skipped     int
	Diagnostics []Diagnostic
	Errors      []error
}

// Clean reports whether the run found no diagnostics and no errors.
func (r *Report) Clean() bool {
	return len(r.Diagnostics) == 0 && len(r.Errors) == 0
}
