package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/joss/flowctl/internal/config"
	"github.com/joss/flowctl/internal/plan"
)

// Config bounds the scheduler and the retry policy.
type Config struct {
	// MaxParallelSteps bounds concurrent step invocations per execution.
	MaxParallelSteps int

	// DefaultMaxRetries applies to steps that don't declare a limit.
	DefaultMaxRetries int

	// BackoffBase is the delay after the first failed attempt.
	BackoffBase time.Duration

	// BackoffMultiplier grows the delay exponentially per attempt.
	BackoffMultiplier float64

	// DefaultStepTimeout bounds one capability invocation. The backoff
	// delay is outside this bound.
	DefaultStepTimeout time.Duration
}

// ConfigFromEnv builds a Config from the environment singleton.
func ConfigFromEnv() Config {
	env := config.Env()
	return Config{
		MaxParallelSteps:   env.MaxParallelSteps,
		DefaultMaxRetries:  env.DefaultMaxRetries,
		BackoffBase:        env.BackoffBase,
		BackoffMultiplier:  env.BackoffMultiplier,
		DefaultStepTimeout: env.DefaultStepTimeout,
	}
}

func (c Config) withDefaults() Config {
	if c.MaxParallelSteps <= 0 {
		c.MaxParallelSteps = 4
	}
	if c.DefaultMaxRetries < 0 {
		c.DefaultMaxRetries = 0
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = time.Second
	}
	if c.BackoffMultiplier < 1 {
		c.BackoffMultiplier = 2
	}
	if c.DefaultStepTimeout <= 0 {
		c.DefaultStepTimeout = 30 * time.Second
	}
	return c
}

// StepRecord is the orchestrator-owned, mutable state of one step.
type StepRecord struct {
	StepID       string     `json:"step_id"`
	Status       StepStatus `json:"status"`
	Attempts     int        `json:"attempts"`
	StartedAt    time.Time  `json:"started_at,omitempty"`
	FinishedAt   time.Time  `json:"finished_at,omitempty"`
	Result       any        `json:"result,omitempty"`
	LastError    string     `json:"last_error,omitempty"`
	CheckpointID string     `json:"checkpoint_id,omitempty"`
}

// ExecutionResult is the immutable terminal outcome of an execution.
type ExecutionResult struct {
	ExecutionID string          `json:"execution_id"`
	PlanID      string          `json:"plan_id"`
	Status      ExecutionStatus `json:"status"`

	TotalSteps     int `json:"total_steps"`
	CompletedSteps int `json:"completed_steps"`
	FailedSteps    int `json:"failed_steps"`
	SkippedSteps   int `json:"skipped_steps"`

	Records []StepRecord `json:"records"`

	StartedAt    time.Time     `json:"started_at"`
	FinishedAt   time.Time     `json:"finished_at"`
	Duration     time.Duration `json:"duration"`
	TotalRetries int           `json:"total_retries"`
	MaxParallel  int           `json:"max_parallel"`

	ErrorSummary string `json:"error_summary,omitempty"`
}

// Snapshot is a point-in-time view of an execution for status queries
// and progress sinks.
type Snapshot struct {
	ExecutionID string          `json:"execution_id"`
	PlanID      string          `json:"plan_id"`
	Status      ExecutionStatus `json:"status"`

	Total     int `json:"total"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Skipped   int `json:"skipped"`

	Running []string      `json:"running,omitempty"`
	Elapsed time.Duration `json:"elapsed"`
}

// execution is the registry entry for one in-flight plan. It is mutated
// by its own scheduler goroutine; status queries and Cancel take the
// lock.
type execution struct {
	mu sync.Mutex

	id     string
	plan   *plan.Plan
	userID string

	status  ExecutionStatus
	records map[string]*StepRecord

	startedAt   time.Time
	checkpoints []string
	progress    ProgressSink

	// runCtx is cancelled by Cancel so in-flight capability calls that
	// honor their context return early.
	runCtx    context.Context
	cancelRun context.CancelFunc

	// failReason, when set, overrides the per-step error summary.
	failReason string

	// result is set exactly once, at finalization.
	result *ExecutionResult
}

// snapshotLocked builds a Snapshot. Caller holds e.mu.
func (e *execution) snapshotLocked() Snapshot {
	snap := Snapshot{
		ExecutionID: e.id,
		PlanID:      e.plan.ID,
		Status:      e.status,
		Total:       len(e.plan.Steps),
	}
	if !e.startedAt.IsZero() {
		snap.Elapsed = time.Since(e.startedAt)
	}

	for _, rec := range e.records {
		switch rec.Status {
		case StepCompleted:
			snap.Completed++
		case StepFailed:
			snap.Failed++
		case StepSkipped:
			snap.Skipped++
		case StepRunning, StepRetrying:
			snap.Running = append(snap.Running, rec.StepID)
		}
	}
	return snap
}

// notify publishes a snapshot to the progress sink, outside the lock.
func (e *execution) notify() {
	if e.progress == nil {
		return
	}
	e.mu.Lock()
	snap := e.snapshotLocked()
	e.mu.Unlock()
	e.progress.Notify(snap)
}
