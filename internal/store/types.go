package store

import "time"

type File struct {
	ID          int64
	Path        string
	Hash        string
	ConfigHash  string
	LastChecked time.Time
}

// Dependency records the content hash of a module a file's check read.
type Dependency struct {
	ID     int64
	FileID int64
	Path   string
	Hash   string
}

type Diagnostic struct {
	ID        int64
	FileID    int64
	Path      string // joined from files; not stored on the row
	RunID     string
	Kind      string
	FuncName  string
	ParamName string
	TypeText  string
	Line      int
	Col       int
	Offset    int
	DeclPath  string // declaring module when it differs from Path
	Message   string
}

type Run struct {
	ID           int64
	RunID        string
	StartedAt    time.Time
	FinishedAt   *time.Time
	ConfigHash   string
	FilesChecked int
	FilesSkipped int
	Diagnostics  int
	Errors       int
}

// Summary aggregates the stored state.
type Summary struct {
	Files             int
	FilesWithIssues   int
	Diagnostics       int
	DiagnosticsByKind map[string]int
	LastRun           *Run
}
