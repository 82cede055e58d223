package store

import (
	"database/sql"
	"fmt"
)

// CommitBatch writes all buffered data from a BatchedStore into SQLite
// within a single transaction. Fake (negative) file IDs are remapped to
// real IDs and every dependency and diagnostic is rewritten using the
// fakeToReal mapping.
//
// Order:
//  1. Removed paths and the previous rows of re-checked files
//  2. Files
//  3. Dependencies (depend on file_id)
//  4. Diagnostics (depend on file_id)
func (s *Store) CommitBatch(batch *BatchedStore) error {
	batch.mu.Lock()
	defer batch.mu.Unlock()

	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("commit batch: begin: %w", err)
	}
	defer tx.Rollback()

	// 1. Stale data
	for _, path := range batch.Removed {
		if err := deleteFileTx(tx, path); err != nil {
			return fmt.Errorf("commit batch: remove %q: %w", path, err)
		}
	}
	for _, f := range batch.Files {
		if err := deleteFileTx(tx, f.Path); err != nil {
			return fmt.Errorf("commit batch: replace %q: %w", f.Path, err)
		}
	}

	fakeToReal := make(map[int64]int64, len(batch.Files))

	// 2. Files
	for _, f := range batch.Files {
		realID, err := insertFileTx(tx, &f)
		if err != nil {
			return fmt.Errorf("commit batch: file %q: %w", f.Path, err)
		}
		fakeToReal[f.ID] = realID
	}

	// 3. Dependencies
	for _, d := range batch.Deps {
		fileID, err := remap(fakeToReal, d.FileID)
		if err != nil {
			return fmt.Errorf("commit batch: dependency %q: %w", d.Path, err)
		}
		d.FileID = fileID
		if err := insertDependencyTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: dependency %q: %w", d.Path, err)
		}
	}

	// 4. Diagnostics
	for _, d := range batch.Diagnostics {
		fileID, err := remap(fakeToReal, d.FileID)
		if err != nil {
			return fmt.Errorf("commit batch: diagnostic %s: %w", d.FuncName, err)
		}
		d.FileID = fileID
		if err := insertDiagnosticTx(tx, &d); err != nil {
			return fmt.Errorf("commit batch: diagnostic %s: %w", d.FuncName, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit batch: %w", err)
	}
	return nil
}

func remap(fakeToReal map[int64]int64, id int64) (int64, error) {
	if id >= 0 {
		return id, nil
	}
	realID, ok := fakeToReal[id]
	if !ok {
		return 0, fmt.Errorf("unknown file id %d", id)
	}
	return realID, nil
}

func insertFileTx(tx *sql.Tx, f *File) (int64, error) {
	res, err := tx.Exec(
		"INSERT INTO files (path, hash, config_hash, last_checked) VALUES (?, ?, ?, ?)",
		f.Path, f.Hash, f.ConfigHash, f.LastChecked,
	)
	if err != nil {
		return 0, err
	}
	return res.LastInsertId()
}

func insertDependencyTx(tx *sql.Tx, d *Dependency) error {
	_, err := tx.Exec(
		"INSERT INTO dependencies (file_id, path, hash) VALUES (?, ?, ?)",
		d.FileID, d.Path, d.Hash,
	)
	return err
}

func insertDiagnosticTx(tx *sql.Tx, d *Diagnostic) error {
	_, err := tx.Exec(
		`INSERT INTO diagnostics (file_id, run_id, kind, func_name, param_name, type_text, line, col, byte_offset, decl_path, message)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		d.FileID, d.RunID, d.Kind, d.FuncName, nullString(d.ParamName), nullString(d.TypeText),
		d.Line, d.Col, d.Offset, nullString(d.DeclPath), d.Message,
	)
	return err
}
