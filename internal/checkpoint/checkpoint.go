// Package checkpoint issues opaque markers that a step runner can use
// to undo a step's side effects before a retry. Rollback scope is
// per-step only: a checkpoint covers the step that requested it, never
// earlier completed steps.
package checkpoint

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// Key identifies the step attempt a checkpoint belongs to.
type Key struct {
	ExecutionID string
	StepID      string
}

func (k Key) String() string {
	return k.ExecutionID + "/" + k.StepID
}

// Service issues checkpoints and attempts rollbacks.
type Service interface {
	// Checkpoint records the current state for the key and returns an
	// opaque checkpoint ID.
	Checkpoint(ctx context.Context, key Key) (string, error)

	// Rollback attempts to restore the state captured by the checkpoint.
	Rollback(ctx context.Context, id string) error
}

// Record is one issued checkpoint.
type Record struct {
	ID         string
	Key        Key
	CreatedAt  time.Time
	RolledBack bool
}

// MemoryService keeps checkpoints in process memory.
type MemoryService struct {
	mu      sync.Mutex
	records map[string]*Record
}

// NewMemoryService creates an empty in-memory service.
func NewMemoryService() *MemoryService {
	return &MemoryService{records: make(map[string]*Record)}
}

// Checkpoint issues a new marker for the key.
func (m *MemoryService) Checkpoint(ctx context.Context, key Key) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	id := "ckpt-" + ulid.Make().String()
	m.mu.Lock()
	m.records[id] = &Record{ID: id, Key: key, CreatedAt: time.Now()}
	m.mu.Unlock()
	return id, nil
}

// Rollback marks the checkpoint as restored. Unknown IDs fail.
func (m *MemoryService) Rollback(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.records[id]
	if !ok {
		return fmt.Errorf("unknown checkpoint: %s", id)
	}
	rec.RolledBack = true
	return nil
}

// Get returns the record for a checkpoint ID (for tests and inspection).
func (m *MemoryService) Get(id string) (*Record, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.records[id]
	return rec, ok
}

// Count returns the number of issued checkpoints.
func (m *MemoryService) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.records)
}
