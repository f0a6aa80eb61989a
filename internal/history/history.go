// Package history persists terminal execution results so they can be
// inspected after the process that ran them is gone.
package history

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/joss/flowctl/internal/orchestrator"
)

// ErrNotFound is returned for unknown execution IDs.
var ErrNotFound = errors.New("execution not in history")

// Store is the sqlite-backed execution history. It implements
// orchestrator.ResultSink.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the history database under dataDir.
func Open(dataDir string) (*Store, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "history.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS executions (
		execution_id TEXT PRIMARY KEY,
		plan_id TEXT NOT NULL,
		status TEXT NOT NULL,
		total_steps INTEGER NOT NULL,
		completed_steps INTEGER NOT NULL,
		failed_steps INTEGER NOT NULL,
		skipped_steps INTEGER NOT NULL,
		total_retries INTEGER NOT NULL,
		max_parallel INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		error_summary TEXT,
		records TEXT NOT NULL,
		started_at DATETIME,
		finished_at DATETIME
	);

	CREATE INDEX IF NOT EXISTS idx_executions_plan ON executions(plan_id);
	CREATE INDEX IF NOT EXISTS idx_executions_finished ON executions(finished_at);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Append stores a terminal result. Results are write-once; replaying
// the same execution ID replaces the previous row.
func (s *Store) Append(ctx context.Context, res *orchestrator.ExecutionResult) error {
	records, err := json.Marshal(res.Records)
	if err != nil {
		return fmt.Errorf("marshal records: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO executions
		(execution_id, plan_id, status, total_steps, completed_steps, failed_steps,
		 skipped_steps, total_retries, max_parallel, duration_ms, error_summary,
		 records, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, res.ExecutionID, res.PlanID, string(res.Status), res.TotalSteps,
		res.CompletedSteps, res.FailedSteps, res.SkippedSteps, res.TotalRetries,
		res.MaxParallel, res.Duration.Milliseconds(), res.ErrorSummary,
		string(records), res.StartedAt, res.FinishedAt)
	if err != nil {
		return fmt.Errorf("insert execution: %w", err)
	}
	return nil
}

// Get returns the stored result for an execution ID.
func (s *Store) Get(ctx context.Context, executionID string) (*orchestrator.ExecutionResult, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT execution_id, plan_id, status, total_steps, completed_steps,
		       failed_steps, skipped_steps, total_retries, max_parallel,
		       duration_ms, error_summary, records, started_at, finished_at
		FROM executions WHERE execution_id = ?
	`, executionID)

	res, err := scanResult(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, executionID)
	}
	return res, err
}

// Recent returns the most recently finished executions, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]*orchestrator.ExecutionResult, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, plan_id, status, total_steps, completed_steps,
		       failed_steps, skipped_steps, total_retries, max_parallel,
		       duration_ms, error_summary, records, started_at, finished_at
		FROM executions ORDER BY finished_at DESC, rowid DESC LIMIT ?
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var results []*orchestrator.ExecutionResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

// ForPlan returns all stored executions of one plan, newest first.
func (s *Store) ForPlan(ctx context.Context, planID string) ([]*orchestrator.ExecutionResult, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT execution_id, plan_id, status, total_steps, completed_steps,
		       failed_steps, skipped_steps, total_retries, max_parallel,
		       duration_ms, error_summary, records, started_at, finished_at
		FROM executions WHERE plan_id = ? ORDER BY finished_at DESC, rowid DESC
	`, planID)
	if err != nil {
		return nil, fmt.Errorf("query executions: %w", err)
	}
	defer rows.Close()

	var results []*orchestrator.ExecutionResult
	for rows.Next() {
		res, err := scanResult(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, res)
	}
	return results, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanResult(row scanner) (*orchestrator.ExecutionResult, error) {
	var res orchestrator.ExecutionResult
	var status, records string
	var durationMs int64
	var summary sql.NullString

	err := row.Scan(&res.ExecutionID, &res.PlanID, &status, &res.TotalSteps,
		&res.CompletedSteps, &res.FailedSteps, &res.SkippedSteps,
		&res.TotalRetries, &res.MaxParallel, &durationMs, &summary,
		&records, &res.StartedAt, &res.FinishedAt)
	if err != nil {
		return nil, err
	}

	res.Status = orchestrator.ExecutionStatus(status)
	res.Duration = time.Duration(durationMs) * time.Millisecond
	res.ErrorSummary = summary.String
	if err := json.Unmarshal([]byte(records), &res.Records); err != nil {
		return nil, fmt.Errorf("unmarshal records: %w", err)
	}
	return &res, nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	return s.db.Close()
}
