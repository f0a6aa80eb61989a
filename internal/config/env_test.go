package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEnvDefaults(t *testing.T) {
	ResetEnv()
	t.Setenv("FLOWCTL_USER", "")
	t.Setenv("FLOWCTL_MAX_PARALLEL", "")
	t.Setenv("FLOWCTL_BACKOFF_BASE", "")

	e := Env()
	assert.Equal(t, "local", e.UserID)
	assert.Equal(t, 4, e.MaxParallelSteps)
	assert.Equal(t, 3, e.DefaultMaxRetries)
	assert.Equal(t, time.Second, e.BackoffBase)
	assert.Equal(t, 2.0, e.BackoffMultiplier)
	assert.Equal(t, 30*time.Second, e.DefaultStepTimeout)
}

func TestEnvOverrides(t *testing.T) {
	ResetEnv()
	t.Setenv("FLOWCTL_USER", "carol")
	t.Setenv("FLOWCTL_MAX_PARALLEL", "8")
	t.Setenv("FLOWCTL_MAX_RETRIES", "5")
	t.Setenv("FLOWCTL_BACKOFF_BASE", "250ms")
	t.Setenv("FLOWCTL_BACKOFF_MULTIPLIER", "3")
	t.Setenv("FLOWCTL_STEP_TIMEOUT", "2m")

	e := Env()
	assert.Equal(t, "carol", e.UserID)
	assert.Equal(t, 8, e.MaxParallelSteps)
	assert.Equal(t, 5, e.DefaultMaxRetries)
	assert.Equal(t, 250*time.Millisecond, e.BackoffBase)
	assert.Equal(t, 3.0, e.BackoffMultiplier)
	assert.Equal(t, 2*time.Minute, e.DefaultStepTimeout)

	ResetEnv()
}

func TestEnvInvalidValuesFallBack(t *testing.T) {
	ResetEnv()
	t.Setenv("FLOWCTL_MAX_PARALLEL", "zero")
	t.Setenv("FLOWCTL_BACKOFF_BASE", "-5s")
	t.Setenv("FLOWCTL_BACKOFF_MULTIPLIER", "0.5")

	e := Env()
	assert.Equal(t, 4, e.MaxParallelSteps)
	assert.Equal(t, time.Second, e.BackoffBase)
	assert.Equal(t, 2.0, e.BackoffMultiplier)

	ResetEnv()
}

func TestEnvSingleton(t *testing.T) {
	ResetEnv()
	first := Env()
	second := Env()
	assert.Same(t, first, second)
}

func TestPaths(t *testing.T) {
	p := GetPaths()
	require.NotEmpty(t, p.Home)
	assert.Contains(t, p.Data, ".flowctl")
	assert.Contains(t, p.StopFile, "STOP")
	assert.Equal(t, p.Data, Path("data"))
}
