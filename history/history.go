// Package history persists job and per-file outcomes to a local SQLite
// database so past runs can be inspected from the CLI.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("history: not found")

// JobRecord is one completed batch.
type JobRecord struct {
	ID         string
	ModelID    string
	FileCount  int
	DoneCount  int
	StartedAt  time.Time
	FinishedAt time.Time
}

// FileRecord is the outcome of one file within a job.
type FileRecord struct {
	JobID      string
	FileIndex  int
	InputPath  string
	OutputPath string
	Status     string
	Stage      string
	Error      string
	Duration   time.Duration
}

// Store wraps the SQLite connection.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database at path and bootstraps the
// schema. Pass ":memory:" for an in-memory database (used by tests).
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create history directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open history database: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping history database: %w", err)
	}

	// Single connection avoids "database is locked" under concurrent use.
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set journal mode: %w", err)
	}

	s := &Store{db: db}
	if err := s.bootstrap(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) bootstrap() error {
	_, err := s.db.Exec(`
		CREATE TABLE IF NOT EXISTS jobs (
			id          TEXT PRIMARY KEY,
			model_id    TEXT NOT NULL,
			file_count  INTEGER NOT NULL,
			done_count  INTEGER NOT NULL,
			started_at  TEXT NOT NULL,
			finished_at TEXT NOT NULL
		);
		CREATE TABLE IF NOT EXISTS file_results (
			job_id      TEXT NOT NULL REFERENCES jobs(id),
			file_index  INTEGER NOT NULL,
			input_path  TEXT NOT NULL,
			output_path TEXT NOT NULL DEFAULT '',
			status      TEXT NOT NULL,
			stage       TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			duration_ms INTEGER NOT NULL,
			PRIMARY KEY (job_id, file_index)
		);
		CREATE INDEX IF NOT EXISTS idx_file_results_job ON file_results (job_id);
	`)
	if err != nil {
		return fmt.Errorf("bootstrap history schema: %w", err)
	}
	return nil
}

// RecordJob stores a finished job and its per-file outcomes atomically.
func (s *Store) RecordJob(job JobRecord, files []FileRecord) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin history transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`
		INSERT INTO jobs (id, model_id, file_count, done_count, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.ModelID, job.FileCount, job.DoneCount,
		job.StartedAt.UTC().Format(time.RFC3339), job.FinishedAt.UTC().Format(time.RFC3339),
	); err != nil {
		return fmt.Errorf("insert job %s: %w", job.ID, err)
	}

	for _, f := range files {
		if _, err := tx.Exec(`
			INSERT INTO file_results (job_id, file_index, input_path, output_path, status, stage, error, duration_ms)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			job.ID, f.FileIndex, f.InputPath, f.OutputPath, f.Status, f.Stage, f.Error,
			f.Duration.Milliseconds(),
		); err != nil {
			return fmt.Errorf("insert file result %d of job %s: %w", f.FileIndex, job.ID, err)
		}
	}

	return tx.Commit()
}

// RecentJobs returns the most recently started jobs, newest first.
func (s *Store) RecentJobs(limit int) ([]JobRecord, error) {
	rows, err := s.db.Query(`
		SELECT id, model_id, file_count, done_count, started_at, finished_at
		FROM jobs ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var jobs []JobRecord
	for rows.Next() {
		var j JobRecord
		var started, finished string
		if err := rows.Scan(&j.ID, &j.ModelID, &j.FileCount, &j.DoneCount, &started, &finished); err != nil {
			return nil, err
		}
		if j.StartedAt, err = time.Parse(time.RFC3339, started); err != nil {
			return nil, fmt.Errorf("parse started_at for job %s: %w", j.ID, err)
		}
		if j.FinishedAt, err = time.Parse(time.RFC3339, finished); err != nil {
			return nil, fmt.Errorf("parse finished_at for job %s: %w", j.ID, err)
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// JobFiles returns a job's per-file outcomes in file order.
func (s *Store) JobFiles(jobID string) ([]FileRecord, error) {
	rows, err := s.db.Query(`
		SELECT job_id, file_index, input_path, output_path, status, stage, error, duration_ms
		FROM file_results WHERE job_id = ? ORDER BY file_index ASC`, jobID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var files []FileRecord
	for rows.Next() {
		var f FileRecord
		var ms int64
		if err := rows.Scan(&f.JobID, &f.FileIndex, &f.InputPath, &f.OutputPath, &f.Status, &f.Stage, &f.Error, &ms); err != nil {
			return nil, err
		}
		f.Duration = time.Duration(ms) * time.Millisecond
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(files) == 0 {
		var exists int
		if err := s.db.QueryRow("SELECT COUNT(*) FROM jobs WHERE id = ?", jobID).Scan(&exists); err != nil {
			return nil, err
		}
		if exists == 0 {
			return nil, fmt.Errorf("%w: job %s", ErrNotFound, jobID)
		}
	}
	return files, nil
}
