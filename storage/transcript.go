// Package storage provides SQLite persistence for extraction transcripts.
//
// Every extraction run can optionally be recorded: the rendered
// prompt, each raw backend response, the violations that triggered a
// retry, and the final outcome. Transcripts are what make a flaky
// backend debuggable after the fact.
//
// Information Hiding:
// - SQLite connection management hidden behind the store
// - Schema and migration details encapsulated
// - Thread-safe via sql.DB's built-in connection pooling

package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// Run outcomes.
const (
	OutcomePending = "pending"
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
)

// Run is one recorded extraction call.
type Run struct {
	ID           string
	Provider     string
	Model        string
	Instructions string
	Schema       string // rendered schema text as sent to the backend
	Outcome      string
	Attempts     int
	CreatedAt    time.Time
}

// Attempt is one backend round trip within a run.
type Attempt struct {
	RunID    string
	Number   int
	Prompt   string // the message that triggered this attempt
	Response string // raw backend text, empty on transport failure
	Failure  string // why the attempt was rejected, empty on success
}

// TranscriptStore records extraction runs and attempts in SQLite.
// Thread-safe: sql.DB handles connection pooling and concurrent access.
type TranscriptStore struct {
	db *sql.DB
}

// OpenTranscripts opens or creates a transcript database at the given
// path. Creates parent directories if they don't exist.
func OpenTranscripts(path string) (*TranscriptStore, error) {
	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite database: %w", err)
	}

	store := &TranscriptStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// NewTranscriptsInMemory creates an in-memory store (useful for testing).
func NewTranscriptsInMemory() (*TranscriptStore, error) {
	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory SQLite: %w", err)
	}

	store := &TranscriptStore{db: db}
	if err := store.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

// Close closes the database connection.
func (s *TranscriptStore) Close() error {
	return s.db.Close()
}

func (s *TranscriptStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			provider TEXT NOT NULL,
			model TEXT NOT NULL,
			instructions TEXT NOT NULL,
			schema_text TEXT NOT NULL,
			outcome TEXT NOT NULL DEFAULT 'pending',
			attempts INTEGER NOT NULL DEFAULT 0,
			created_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE TABLE IF NOT EXISTS attempts (
			run_id TEXT NOT NULL,
			attempt_number INTEGER NOT NULL,
			prompt TEXT NOT NULL,
			response TEXT NOT NULL,
			failure TEXT NOT NULL,
			FOREIGN KEY (run_id) REFERENCES runs(id) ON DELETE CASCADE,
			UNIQUE(run_id, attempt_number)
		);

		CREATE INDEX IF NOT EXISTS idx_attempts_run
		ON attempts(run_id, attempt_number);
	`
	_, err := s.db.Exec(schema)
	return err
}

// BeginRun records the start of an extraction call and returns its id.
func (s *TranscriptStore) BeginRun(ctx context.Context, provider, model, instructions, schemaText string) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, provider, model, instructions, schema_text, outcome)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		id, provider, model, instructions, schemaText, OutcomePending,
	)
	if err != nil {
		return "", fmt.Errorf("failed to record run: %w", err)
	}
	return id, nil
}

// RecordAttempt records one backend round trip within a run.
func (s *TranscriptStore) RecordAttempt(ctx context.Context, runID string, number int, prompt, response, failure string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO attempts (run_id, attempt_number, prompt, response, failure)
		 VALUES (?, ?, ?, ?, ?)`,
		runID, number, prompt, response, failure,
	)
	if err != nil {
		return fmt.Errorf("failed to record attempt: %w", err)
	}
	return nil
}

// FinishRun records the final outcome and attempt count of a run.
func (s *TranscriptStore) FinishRun(ctx context.Context, runID, outcome string, attempts int) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE runs SET outcome = ?, attempts = ? WHERE id = ?`,
		outcome, attempts, runID,
	)
	if err != nil {
		return fmt.Errorf("failed to finish run: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("run %s not found", runID)
	}
	return nil
}

// GetRun loads a run and its attempts in order.
func (s *TranscriptStore) GetRun(ctx context.Context, runID string) (*Run, []Attempt, error) {
	var run Run
	var createdAt string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, provider, model, instructions, schema_text, outcome, attempts, created_at
		 FROM runs WHERE id = ?`, runID,
	).Scan(&run.ID, &run.Provider, &run.Model, &run.Instructions, &run.Schema, &run.Outcome, &run.Attempts, &createdAt)
	if err == sql.ErrNoRows {
		return nil, nil, fmt.Errorf("run %s not found", runID)
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load run: %w", err)
	}
	if t, perr := time.Parse("2006-01-02 15:04:05", createdAt); perr == nil {
		run.CreatedAt = t
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT run_id, attempt_number, prompt, response, failure
		 FROM attempts WHERE run_id = ? ORDER BY attempt_number`, runID,
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		var a Attempt
		if err := rows.Scan(&a.RunID, &a.Number, &a.Prompt, &a.Response, &a.Failure); err != nil {
			return nil, nil, fmt.Errorf("failed to scan attempt: %w", err)
		}
		attempts = append(attempts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, nil, err
	}

	return &run, attempts, nil
}

// ListRuns returns the most recent runs, newest first.
func (s *TranscriptStore) ListRuns(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, provider, model, instructions, schema_text, outcome, attempts, created_at
		 FROM runs ORDER BY created_at DESC, id LIMIT ?`, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		var run Run
		var createdAt string
		if err := rows.Scan(&run.ID, &run.Provider, &run.Model, &run.Instructions, &run.Schema, &run.Outcome, &run.Attempts, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan run: %w", err)
		}
		if t, perr := time.Parse("2006-01-02 15:04:05", createdAt); perr == nil {
			run.CreatedAt = t
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}
