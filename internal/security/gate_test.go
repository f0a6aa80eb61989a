package security

import (
	"errors"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/flowctl/internal/plan"
)

func TestPatternWhitelist(t *testing.T) {
	wl := NewPatternWhitelist("file:*", "task:create", "*:read")

	tests := []struct {
		descriptor string
		allowed    bool
	}{
		{"file:write", true},
		{"file:delete", true},
		{"task:create", true},
		{"task:delete", false},
		{"calendar:read", true},
		{"web:fetch", false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.allowed, wl.IsAllowed(tt.descriptor, "alice"), tt.descriptor)
	}
}

func TestWhitelistAdd(t *testing.T) {
	wl := NewPatternWhitelist()
	assert.False(t, wl.IsAllowed("web:fetch", "u"))
	wl.Add("web:*")
	assert.True(t, wl.IsAllowed("web:fetch", "u"))
}

func TestGateValidateAllows(t *testing.T) {
	gate := NewGate(DefaultWhitelist(), NewMemorySwitch())
	p := &plan.Plan{
		ID: "p1",
		Steps: []plan.Step{
			{ID: "a", Service: "file", Operation: "read"},
			{ID: "b", Service: "task", Operation: "create"},
		},
	}
	require.NoError(t, gate.Validate(p, "alice"))
}

func TestGateValidateBlocksOperation(t *testing.T) {
	gate := NewGate(DefaultWhitelist(), NewMemorySwitch())
	p := &plan.Plan{
		ID: "p2",
		Steps: []plan.Step{
			{ID: "a", Service: "file", Operation: "read"},
			{ID: "b", Service: "file", Operation: "shred"},
		},
	}

	err := gate.Validate(p, "alice")
	require.Error(t, err)

	var blocked *PolicyBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Equal(t, "b", blocked.StepID)
	assert.Contains(t, blocked.Reason, "file:shred")
}

func TestGateValidateBlocksOnEmergencyStop(t *testing.T) {
	stop := NewMemorySwitch()
	stop.Activate()
	gate := NewGate(DefaultWhitelist(), stop)

	p := &plan.Plan{ID: "p3", Steps: []plan.Step{{ID: "a", Service: "file", Operation: "read"}}}
	err := gate.Validate(p, "alice")
	require.Error(t, err)

	var blocked *PolicyBlockedError
	require.True(t, errors.As(err, &blocked))
	assert.Contains(t, blocked.Reason, "emergency stop")
	assert.True(t, gate.StopActive())
}

func TestMemorySwitch(t *testing.T) {
	s := NewMemorySwitch()
	assert.False(t, s.IsActive())
	s.Activate()
	assert.True(t, s.IsActive())
	s.Reset()
	assert.False(t, s.IsActive())
}

func TestFileSwitch(t *testing.T) {
	path := filepath.Join(t.TempDir(), "STOP")
	s := NewFileSwitch(path)

	assert.False(t, s.IsActive())
	require.NoError(t, s.Activate())
	assert.True(t, s.IsActive())
	require.NoError(t, s.Reset())
	assert.False(t, s.IsActive())

	// Reset on a missing file is not an error.
	require.NoError(t, s.Reset())
}
