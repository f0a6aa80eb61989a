// Package orchestrator turns a declarative plan into a dependency-ordered,
// bounded-parallelism execution with per-step retry, rollback-on-retry and
// cooperative emergency stop.
package orchestrator

// ExecutionStatus is the lifecycle state of a whole execution.
type ExecutionStatus string

const (
	ExecutionPending          ExecutionStatus = "pending"
	ExecutionRunning          ExecutionStatus = "running"
	ExecutionCompleted        ExecutionStatus = "completed"
	ExecutionFailed           ExecutionStatus = "failed"
	ExecutionCancelled        ExecutionStatus = "cancelled"
	ExecutionEmergencyStopped ExecutionStatus = "emergency_stopped"
)

// Terminal reports whether no further transition can occur.
func (s ExecutionStatus) Terminal() bool {
	switch s {
	case ExecutionCompleted, ExecutionFailed, ExecutionCancelled, ExecutionEmergencyStopped:
		return true
	}
	return false
}

// StepStatus is the lifecycle state of a single step.
type StepStatus string

const (
	StepWaiting   StepStatus = "waiting"
	StepRunning   StepStatus = "running"
	StepRetrying  StepStatus = "retrying"
	StepCompleted StepStatus = "completed"
	StepFailed    StepStatus = "failed"
	StepSkipped   StepStatus = "skipped"
)

// Terminal reports whether the step is done.
func (s StepStatus) Terminal() bool {
	switch s {
	case StepCompleted, StepFailed, StepSkipped:
		return true
	}
	return false
}
