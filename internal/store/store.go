// Package store records training runs and served generations in a local
// SQLite database (pure Go driver, no CGO).
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// Run statuses.
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// ErrRunNotFound is returned by FinishRun for an unknown id.
var ErrRunNotFound = errors.New("training run not found")

// Run is one row of training_runs.
type Run struct {
	ID         string
	Model      string
	Dataset    string
	Examples   int
	Status     string
	Error      string
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// Generation is one row of generations.
type Generation struct {
	ID        string
	Prompt    string
	Response  string
	Duration  time.Duration
	CreatedAt time.Time
}

// Store wraps the SQLite handle.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open creates or opens the database at path and applies the schema.
func Open(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create db dir: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping sqlite: %w", err)
	}
	// single writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &Store{db: db, now: time.Now}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close releases the database.
func (s *Store) Close() error { return s.db.Close() }

func (s *Store) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS training_runs (
			id          TEXT PRIMARY KEY,
			model       TEXT NOT NULL,
			dataset     TEXT NOT NULL,
			examples    INTEGER NOT NULL DEFAULT 0,
			status      TEXT NOT NULL,
			error       TEXT NOT NULL DEFAULT '',
			started_at  INTEGER NOT NULL,
			finished_at INTEGER
		)`,
		`CREATE INDEX IF NOT EXISTS idx_runs_started ON training_runs(started_at)`,
		`CREATE TABLE IF NOT EXISTS generations (
			id          TEXT PRIMARY KEY,
			prompt      TEXT NOT NULL,
			response    TEXT NOT NULL,
			duration_ms INTEGER NOT NULL,
			created_at  INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_generations_created ON generations(created_at)`,
	}
	for _, m := range migrations {
		if _, err := s.db.Exec(m); err != nil {
			return fmt.Errorf("migration failed: %w\nSQL: %s", err, m)
		}
	}
	return nil
}

// StartRun inserts a running training run. An empty id gets a fresh UUID.
func (s *Store) StartRun(ctx context.Context, id, model, dataset string, examples int) (string, error) {
	if id == "" {
		id = uuid.NewString()
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO training_runs (id, model, dataset, examples, status, started_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, model, dataset, examples, StatusRunning, s.now().UnixMilli(),
	)
	if err != nil {
		return "", err
	}
	return id, nil
}

// FinishRun marks a run succeeded, or failed with runErr's message.
func (s *Store) FinishRun(ctx context.Context, id string, runErr error) error {
	status, msg := StatusSucceeded, ""
	if runErr != nil {
		status, msg = StatusFailed, runErr.Error()
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE training_runs SET status = ?, error = ?, finished_at = ? WHERE id = ?`,
		status, msg, s.now().UnixMilli(), id,
	)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrRunNotFound
	}
	return nil
}

// Runs lists training runs, newest first.
func (s *Store) Runs(ctx context.Context) ([]Run, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model, dataset, examples, status, error, started_at, finished_at
		 FROM training_runs ORDER BY started_at DESC, rowid DESC`,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Run
	for rows.Next() {
		var (
			r        Run
			started  int64
			finished sql.NullInt64
		)
		if err := rows.Scan(&r.ID, &r.Model, &r.Dataset, &r.Examples, &r.Status, &r.Error, &started, &finished); err != nil {
			return nil, err
		}
		r.StartedAt = time.UnixMilli(started)
		if finished.Valid {
			r.FinishedAt = time.UnixMilli(finished.Int64)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// RecordGeneration appends a served generation.
func (s *Store) RecordGeneration(ctx context.Context, prompt, response string, took time.Duration) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO generations (id, prompt, response, duration_ms, created_at) VALUES (?, ?, ?, ?, ?)`,
		uuid.NewString(), prompt, response, took.Milliseconds(), s.now().UnixMilli(),
	)
	return err
}

// Generations returns the most recent generations, newest first.
func (s *Store) Generations(ctx context.Context, limit int) ([]Generation, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, prompt, response, duration_ms, created_at FROM generations
		 ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Generation
	for rows.Next() {
		var (
			g       Generation
			ms, cat int64
		)
		if err := rows.Scan(&g.ID, &g.Prompt, &g.Response, &ms, &cat); err != nil {
			return nil, err
		}
		g.Duration = time.Duration(ms) * time.Millisecond
		g.CreatedAt = time.UnixMilli(cat)
		out = append(out, g)
	}
	return out, rows.Err()
}
