package orchestrator

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned for lookups of unknown execution IDs.
var ErrNotFound = errors.New("execution not found")

// StepTimeoutError marks an attempt that exceeded its per-step timeout.
// Timeouts are retryable like any other transient failure.
type StepTimeoutError struct {
	StepID  string
	Timeout time.Duration
}

func (e *StepTimeoutError) Error() string {
	return fmt.Sprintf("step %s timed out after %s", e.StepID, e.Timeout)
}

// deadlockSummary describes an execution that stalled with waiting
// steps whose dependencies can never be satisfied.
func deadlockSummary(waiting []string) string {
	return fmt.Sprintf("deadlock: no runnable steps, %d still waiting %v", len(waiting), waiting)
}
