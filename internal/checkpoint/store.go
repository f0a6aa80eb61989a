package checkpoint

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// SQLiteService persists checkpoints so a crashed run leaves an
// inspectable trail.
type SQLiteService struct {
	db *sql.DB
}

// OpenSQLite opens (or creates) the checkpoint database under dataDir.
func OpenSQLite(dataDir string) (*SQLiteService, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	dbPath := filepath.Join(dataDir, "checkpoints.db")
	db, err := sql.Open("sqlite3", dbPath+"?_journal=WAL&_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteService{db: db}
	if err := s.migrate(); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteService) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS checkpoints (
		id TEXT PRIMARY KEY,
		execution_id TEXT NOT NULL,
		step_id TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		rolled_back INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_checkpoints_execution ON checkpoints(execution_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Checkpoint issues and persists a new marker.
func (s *SQLiteService) Checkpoint(ctx context.Context, key Key) (string, error) {
	id := "ckpt-" + ulid.Make().String()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO checkpoints (id, execution_id, step_id, created_at)
		VALUES (?, ?, ?, ?)
	`, id, key.ExecutionID, key.StepID, time.Now())
	if err != nil {
		return "", fmt.Errorf("insert checkpoint: %w", err)
	}
	return id, nil
}

// Rollback marks the checkpoint as restored.
func (s *SQLiteService) Rollback(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE checkpoints SET rolled_back = 1 WHERE id = ?
	`, id)
	if err != nil {
		return fmt.Errorf("update checkpoint: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("unknown checkpoint: %s", id)
	}
	return nil
}

// ForExecution returns all checkpoints issued during one execution.
func (s *SQLiteService) ForExecution(ctx context.Context, executionID string) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, execution_id, step_id, created_at, rolled_back
		FROM checkpoints WHERE execution_id = ? ORDER BY rowid
	`, executionID)
	if err != nil {
		return nil, fmt.Errorf("query checkpoints: %w", err)
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		var rec Record
		var rolledBack int
		if err := rows.Scan(&rec.ID, &rec.Key.ExecutionID, &rec.Key.StepID, &rec.CreatedAt, &rolledBack); err != nil {
			return nil, fmt.Errorf("scan checkpoint: %w", err)
		}
		rec.RolledBack = rolledBack == 1
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Close releases the database handle.
func (s *SQLiteService) Close() error {
	return s.db.Close()
}
