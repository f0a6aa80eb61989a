package checkpoint

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryServiceRoundTrip(t *testing.T) {
	svc := NewMemoryService()
	ctx := context.Background()

	key := Key{ExecutionID: "exec-1", StepID: "a"}
	id, err := svc.Checkpoint(ctx, key)
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	require.NoError(t, svc.Rollback(ctx, id))

	rec, ok := svc.Get(id)
	require.True(t, ok)
	assert.True(t, rec.RolledBack)
	assert.Equal(t, key, rec.Key)
	assert.Equal(t, 1, svc.Count())
}

func TestMemoryServiceUnknownRollback(t *testing.T) {
	svc := NewMemoryService()
	err := svc.Rollback(context.Background(), "ckpt-missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown checkpoint")
}

func TestMemoryServiceCancelledContext(t *testing.T) {
	svc := NewMemoryService()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Checkpoint(ctx, Key{ExecutionID: "e", StepID: "s"})
	require.Error(t, err)
}

func TestSQLiteServiceRoundTrip(t *testing.T) {
	svc, err := OpenSQLite(t.TempDir())
	require.NoError(t, err)
	defer svc.Close()

	ctx := context.Background()
	id1, err := svc.Checkpoint(ctx, Key{ExecutionID: "exec-1", StepID: "a"})
	require.NoError(t, err)
	id2, err := svc.Checkpoint(ctx, Key{ExecutionID: "exec-1", StepID: "b"})
	require.NoError(t, err)

	require.NoError(t, svc.Rollback(ctx, id1))
	require.Error(t, svc.Rollback(ctx, "ckpt-missing"))

	records, err := svc.ForExecution(ctx, "exec-1")
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, id1, records[0].ID)
	assert.True(t, records[0].RolledBack)
	assert.Equal(t, id2, records[1].ID)
	assert.False(t, records[1].RolledBack)
}
