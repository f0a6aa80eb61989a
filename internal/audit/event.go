// Package audit provides best-effort security and execution auditing.
// Audit failures are logged and swallowed; they never fail the
// orchestrated operation.
package audit

import (
	"time"
)

// Category represents the type of operation being audited.
type Category string

const (
	CategoryExecution  Category = "execution"
	CategoryStep       Category = "step"
	CategorySecurity   Category = "security"
	CategoryCheckpoint Category = "checkpoint"
	CategorySystem     Category = "system"
)

// Status represents the outcome of an operation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusError   Status = "error"
	StatusBlocked Status = "blocked"
	StatusStopped Status = "stopped"
)

// Event represents a single auditable operation.
type Event struct {
	EventID string `json:"event_id"`

	// Operation details
	Category  Category `json:"category"`
	Operation string   `json:"operation"`

	// Execution context
	ExecutionID string `json:"execution_id,omitempty"`
	PlanID      string `json:"plan_id,omitempty"`
	StepID      string `json:"step_id,omitempty"`
	UserID      string `json:"user_id,omitempty"`

	// Result
	Status       Status         `json:"status"`
	ErrorMessage string         `json:"error_message,omitempty"`
	Details      map[string]any `json:"details,omitempty"`

	// Timing
	StartedAt   time.Time     `json:"started_at"`
	CompletedAt time.Time     `json:"completed_at,omitempty"`
	DurationMs  int64         `json:"duration_ms,omitempty"`
	Duration    time.Duration `json:"-"`

	SessionID string `json:"session_id,omitempty"`
}

// Complete finalizes the event with timing and status.
func (e *Event) Complete(status Status, err error) {
	e.CompletedAt = time.Now()
	e.Duration = e.CompletedAt.Sub(e.StartedAt)
	e.DurationMs = e.Duration.Milliseconds()
	e.Status = status

	if err != nil {
		e.ErrorMessage = err.Error()
		if status == "" {
			e.Status = StatusError
		}
	}
}
