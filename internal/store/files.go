package store

import (
	"database/sql"
	"errors"
	"fmt"
)

// --- File operations ---

const fileCols = "id, path, hash, config_hash, last_checked"

func scanFile(scanner interface{ Scan(...any) error }) (*File, error) {
	f := &File{}
	var last sql.NullTime
	if err := scanner.Scan(&f.ID, &f.Path, &f.Hash, &f.ConfigHash, &last); err != nil {
		return nil, err
	}
	if last.Valid {
		f.LastChecked = last.Time
	}
	return f, nil
}

// FileByPath returns the stored file, or nil when the path was never
// checked.
func (s *Store) FileByPath(path string) (*File, error) {
	f, err := scanFile(s.db.QueryRow("SELECT "+fileCols+" FROM files WHERE path = ?", path))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("file by path: %w", err)
	}
	return f, nil
}

// Files returns every stored file ordered by path.
func (s *Store) Files() ([]*File, error) {
	rows, err := s.db.Query("SELECT " + fileCols + " FROM files ORDER BY path")
	if err != nil {
		return nil, fmt.Errorf("files: %w", err)
	}
	defer rows.Close()
	var files []*File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan file: %w", err)
		}
		files = append(files, f)
	}
	return files, rows.Err()
}

// --- Dependency operations ---

// DependenciesByFile returns the recorded dependencies of a file.
func (s *Store) DependenciesByFile(fileID int64) ([]*Dependency, error) {
	rows, err := s.db.Query("SELECT id, file_id, path, hash FROM dependencies WHERE file_id = ? ORDER BY path", fileID)
	if err != nil {
		return nil, fmt.Errorf("dependencies by file: %w", err)
	}
	defer rows.Close()
	var deps []*Dependency
	for rows.Next() {
		d := &Dependency{}
		if err := rows.Scan(&d.ID, &d.FileID, &d.Path, &d.Hash); err != nil {
			return nil, fmt.Errorf("scan dependency: %w", err)
		}
		deps = append(deps, d)
	}
	return deps, rows.Err()
}

// DependentFiles returns the paths of stored files that recorded any of
// paths as a dependency.
func (s *Store) DependentFiles(paths []string) ([]string, error) {
	if len(paths) == 0 {
		return nil, nil
	}
	query := `SELECT DISTINCT f.path
		FROM dependencies d
		JOIN files f ON f.id = d.file_id
		WHERE d.path IN (` + placeholderList(len(paths)) + `)
		ORDER BY f.path`
	rows, err := s.db.Query(query, stringsToArgs(paths)...)
	if err != nil {
		return nil, fmt.Errorf("dependent files: %w", err)
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, fmt.Errorf("scan path: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// --- Diagnostic operations ---

const diagnosticCols = `d.id, d.file_id, f.path, d.run_id, d.kind, d.func_name,
	COALESCE(d.param_name, ''), COALESCE(d.type_text, ''), d.line, d.col, d.byte_offset, COALESCE(d.decl_path, ''), d.message`

func (s *Store) queryDiagnostics(where string, args ...any) ([]*Diagnostic, error) {
	query := "SELECT " + diagnosticCols + " FROM diagnostics d JOIN files f ON f.id = d.file_id"
	if where != "" {
		query += " WHERE " + where
	}
	query += " ORDER BY f.path, d.id"
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var diags []*Diagnostic
	for rows.Next() {
		d := &Diagnostic{}
		if err := rows.Scan(&d.ID, &d.FileID, &d.Path, &d.RunID, &d.Kind, &d.FuncName,
			&d.ParamName, &d.TypeText, &d.Line, &d.Col, &d.Offset, &d.DeclPath, &d.Message); err != nil {
			return nil, fmt.Errorf("scan diagnostic: %w", err)
		}
		diags = append(diags, d)
	}
	return diags, rows.Err()
}

// DiagnosticsByFile returns a file's diagnostics in the order they were
// reported.
func (s *Store) DiagnosticsByFile(fileID int64) ([]*Diagnostic, error) {
	diags, err := s.queryDiagnostics("d.file_id = ?", fileID)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by file: %w", err)
	}
	return diags, nil
}

// DiagnosticsByPath returns the diagnostics of the file at path.
func (s *Store) DiagnosticsByPath(path string) ([]*Diagnostic, error) {
	diags, err := s.queryDiagnostics("f.path = ?", path)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by path: %w", err)
	}
	return diags, nil
}

// DiagnosticsByKind returns every diagnostic of the given kind.
func (s *Store) DiagnosticsByKind(kind string) ([]*Diagnostic, error) {
	diags, err := s.queryDiagnostics("d.kind = ?", kind)
	if err != nil {
		return nil, fmt.Errorf("diagnostics by kind: %w", err)
	}
	return diags, nil
}

// AllDiagnostics returns every stored diagnostic ordered by path.
func (s *Store) AllDiagnostics() ([]*Diagnostic, error) {
	diags, err := s.queryDiagnostics("")
	if err != nil {
		return nil, fmt.Errorf("all diagnostics: %w", err)
	}
	return diags, nil
}
