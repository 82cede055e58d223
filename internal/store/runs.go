package store

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// --- Run operations ---

// InsertRun records the start of a check run.
func (s *Store) InsertRun(r *Run) (int64, error) {
	res, err := s.db.Exec(
		"INSERT INTO runs (run_id, started_at, config_hash) VALUES (?, ?, ?)",
		r.RunID, r.StartedAt, r.ConfigHash,
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	r.ID = id
	return id, nil
}

// FinishRun stores the final counters of a run.
func (s *Store) FinishRun(r *Run) error {
	finished := time.Now()
	if r.FinishedAt != nil {
		finished = *r.FinishedAt
	}
	res, err := s.db.Exec(
		`UPDATE runs SET finished_at = ?, files_checked = ?, files_skipped = ?, diagnostics = ?, errors = ?
		 WHERE run_id = ?`,
		finished, r.FilesChecked, r.FilesSkipped, r.Diagnostics, r.Errors, r.RunID,
	)
	if err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("finish run: unknown run %s", r.RunID)
	}
	r.FinishedAt = &finished
	return nil
}

const runCols = "id, run_id, started_at, finished_at, config_hash, files_checked, files_skipped, diagnostics, errors"

func scanRun(scanner interface{ Scan(...any) error }) (*Run, error) {
	r := &Run{}
	var finished sql.NullTime
	if err := scanner.Scan(&r.ID, &r.RunID, &r.StartedAt, &finished, &r.ConfigHash,
		&r.FilesChecked, &r.FilesSkipped, &r.Diagnostics, &r.Errors); err != nil {
		return nil, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

// RunByID returns the run with the given run ID, or nil.
func (s *Store) RunByID(runID string) (*Run, error) {
	r, err := scanRun(s.db.QueryRow("SELECT "+runCols+" FROM runs WHERE run_id = ?", runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("run by id: %w", err)
	}
	return r, nil
}

// Runs returns the most recent runs first. limit <= 0 returns all.
func (s *Store) Runs(limit int) ([]*Run, error) {
	query := "SELECT " + runCols + " FROM runs ORDER BY started_at DESC, id DESC"
	var args []any
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("runs: %w", err)
	}
	defer rows.Close()
	var runs []*Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Summary aggregates stored files and diagnostics with the latest run.
func (s *Store) Summary() (*Summary, error) {
	sum := &Summary{DiagnosticsByKind: make(map[string]int)}
	if err := s.db.QueryRow("SELECT COUNT(*) FROM files").Scan(&sum.Files); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	if err := s.db.QueryRow("SELECT COUNT(DISTINCT file_id) FROM diagnostics").Scan(&sum.FilesWithIssues); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	rows, err := s.db.Query("SELECT kind, COUNT(*) FROM diagnostics GROUP BY kind")
	if err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var kind string
		var n int
		if err := rows.Scan(&kind, &n); err != nil {
			return nil, fmt.Errorf("summary: %w", err)
		}
		sum.DiagnosticsByKind[kind] = n
		sum.Diagnostics += n
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("summary: %w", err)
	}
	runs, err := s.Runs(1)
	if err != nil {
		return nil, err
	}
	if len(runs) > 0 {
		sum.LastRun = runs[0]
	}
	return sum, nil
}
