// Package config provides centralized configuration management.
// Eliminates scattered os.Getenv calls across the codebase.
package config

import (
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"
)

// FlowEnv holds all flowctl environment variables.
type FlowEnv struct {
	// UserID identifies the submitting user (FLOWCTL_USER)
	UserID string

	// SessionID is the current session identifier (FLOWCTL_SESSION_ID)
	SessionID string

	// MaxParallelSteps bounds concurrent step invocations (FLOWCTL_MAX_PARALLEL)
	MaxParallelSteps int

	// DefaultMaxRetries is the retry limit for steps that don't declare one (FLOWCTL_MAX_RETRIES)
	DefaultMaxRetries int

	// BackoffBase is the first retry delay (FLOWCTL_BACKOFF_BASE)
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay between attempts (FLOWCTL_BACKOFF_MULTIPLIER)
	BackoffMultiplier float64

	// DefaultStepTimeout bounds a single capability invocation (FLOWCTL_STEP_TIMEOUT)
	DefaultStepTimeout time.Duration

	// Neo4jURI is the graph database URI for audit persistence (NEO4J_URI)
	Neo4jURI string

	// Neo4jUser is the graph database user (NEO4J_USER)
	Neo4jUser string

	// Neo4jPassword is the graph database password (NEO4J_PASSWORD)
	Neo4jPassword string
}

var (
	env     *FlowEnv
	envOnce sync.Once
)

// Env returns the singleton environment configuration.
// Thread-safe, loads once on first call.
func Env() *FlowEnv {
	envOnce.Do(func() {
		env = &FlowEnv{
			UserID:             getEnvDefault("FLOWCTL_USER", "local"),
			SessionID:          os.Getenv("FLOWCTL_SESSION_ID"),
			MaxParallelSteps:   getEnvInt("FLOWCTL_MAX_PARALLEL", 4),
			DefaultMaxRetries:  getEnvInt("FLOWCTL_MAX_RETRIES", 3),
			BackoffBase:        getEnvDuration("FLOWCTL_BACKOFF_BASE", time.Second),
			BackoffMultiplier:  getEnvFloat("FLOWCTL_BACKOFF_MULTIPLIER", 2.0),
			DefaultStepTimeout: getEnvDuration("FLOWCTL_STEP_TIMEOUT", 30*time.Second),
			Neo4jURI:           getEnvDefault("NEO4J_URI", "bolt://localhost:7687"),
			Neo4jUser:          os.Getenv("NEO4J_USER"),
			Neo4jPassword:      os.Getenv("NEO4J_PASSWORD"),
		}
	})
	return env
}

// ResetEnv resets the cached environment (for testing).
func ResetEnv() {
	envOnce = sync.Once{}
	env = nil
}

func getEnvDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return fallback
}

func getEnvFloat(key string, fallback float64) float64 {
	if v := os.Getenv(key); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f >= 1 {
			return f
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil && d > 0 {
			return d
		}
	}
	return fallback
}

// Paths holds standard flowctl directory paths.
type Paths struct {
	// Home is the flowctl home directory (~/.flowctl)
	Home string

	// Data is the data directory (~/.flowctl/data)
	Data string

	// Plans is the default plan file directory (~/.flowctl/plans)
	Plans string

	// Sandbox is the root for file capability operations (~/.flowctl/sandbox)
	Sandbox string

	// StopFile is the emergency-stop flag file (~/.flowctl/STOP)
	StopFile string
}

var (
	paths     *Paths
	pathsOnce sync.Once
)

// GetPaths returns the singleton paths configuration.
func GetPaths() *Paths {
	pathsOnce.Do(func() {
		home, err := os.UserHomeDir()
		if err != nil {
			home = "."
		}
		flowHome := filepath.Join(home, ".flowctl")

		paths = &Paths{
			Home:     flowHome,
			Data:     filepath.Join(flowHome, "data"),
			Plans:    filepath.Join(flowHome, "plans"),
			Sandbox:  filepath.Join(flowHome, "sandbox"),
			StopFile: filepath.Join(flowHome, "STOP"),
		}
	})
	return paths
}

// Path returns a path under the flowctl home directory.
func Path(parts ...string) string {
	p := GetPaths()
	allParts := append([]string{p.Home}, parts...)
	return filepath.Join(allParts...)
}

// EnsureDir creates a directory if it doesn't exist.
func EnsureDir(path string) error {
	return os.MkdirAll(path, 0755)
}
