package database

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"pushback/internal/database/migrations"
	"pushback/internal/model"
	"pushback/internal/pushback"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// SQLiteHistory implements the History interface using SQLite.
type SQLiteHistory struct {
	db *sql.DB
}

// NewSQLiteHistory opens the history database at path and migrates it to the
// latest schema. path can be a file path or ":memory:" for an in-memory database.
func NewSQLiteHistory(path string) (*SQLiteHistory, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("creating history directory: %w", err)
		}
	}

	db, err := OpenConnection(path)
	if err != nil {
		return nil, err
	}
	if err := migrations.MigrateUp(db); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteHistory{db: db}, nil
}

// OpenConnection opens and configures a SQLite database connection with appropriate PRAGMAs.
// path can be a file path or ":memory:" for in-memory database.
func OpenConnection(path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Every pooled connection to ":memory:" is a separate database.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable foreign key constraints (SQLite default is OFF for backward compatibility)
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set busy timeout: %w", err)
	}

	return db, nil
}

// Run operations

func (s *SQLiteHistory) CreateRun(run *model.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO runs (id, project_path, project_name, fingerprint, snapshot_mode,
		                  time_suffix, dry_run, started_at, finished_at, status)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.ProjectPath, run.ProjectName, run.Fingerprint, run.SnapshotMode,
		run.TimeSuffix, run.DryRun, run.StartedAt, run.FinishedAt, run.Status,
	)
	if err != nil {
		return fmt.Errorf("creating run: %w", err)
	}
	return nil
}

func (s *SQLiteHistory) FinishRun(runID string, status string, finishedAt time.Time) error {
	res, err := s.db.Exec(
		"UPDATE runs SET status = ?, finished_at = ? WHERE id = ?",
		status, finishedAt, runID,
	)
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("finishing run: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("finishing run: run %s not found", runID)
	}
	return nil
}

// ListRuns returns up to limit runs, newest first.
func (s *SQLiteHistory) ListRuns(limit int) ([]*model.Run, error) {
	rows, err := s.db.Query(`
		SELECT id, project_path, project_name, fingerprint, snapshot_mode,
		       time_suffix, dry_run, started_at, finished_at, status
		FROM runs
		ORDER BY started_at DESC, rowid DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	defer rows.Close()

	var runs []*model.Run
	for rows.Next() {
		var r model.Run
		if err := rows.Scan(
			&r.ID, &r.ProjectPath, &r.ProjectName, &r.Fingerprint, &r.SnapshotMode,
			&r.TimeSuffix, &r.DryRun, &r.StartedAt, &r.FinishedAt, &r.Status,
		); err != nil {
			return nil, fmt.Errorf("scanning run: %w", err)
		}
		runs = append(runs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing runs: %w", err)
	}
	return runs, nil
}

// Target operations

func (s *SQLiteHistory) RecordTarget(rec *model.TargetRecord) error {
	res, err := s.db.Exec(`
		INSERT INTO run_targets (run_id, target, remote_dir, resolution, outcome, message, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.Target, rec.RemoteDir, rec.Resolution, rec.Outcome, rec.Message, rec.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("recording target: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("recording target: %w", err)
	}
	rec.ID = id
	return nil
}

// ListTargets returns the target records of a run in the order they were recorded.
func (s *SQLiteHistory) ListTargets(runID string) ([]*model.TargetRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, run_id, target, remote_dir, resolution, outcome, message, finished_at
		FROM run_targets
		WHERE run_id = ?
		ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	defer rows.Close()

	var recs []*model.TargetRecord
	for rows.Next() {
		var r model.TargetRecord
		if err := rows.Scan(
			&r.ID, &r.RunID, &r.Target, &r.RemoteDir, &r.Resolution, &r.Outcome, &r.Message, &r.FinishedAt,
		); err != nil {
			return nil, fmt.Errorf("scanning target: %w", err)
		}
		recs = append(recs, &r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("listing targets: %w", err)
	}
	return recs, nil
}

// CheckMigrations verifies the schema is at the latest version.
func (s *SQLiteHistory) CheckMigrations() error {
	return migrations.CheckDBMigrationStatus(s.db)
}

func (s *SQLiteHistory) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Compile-time check that SQLiteHistory implements pushback.History interface
var _ pushback.History = (*SQLiteHistory)(nil)
