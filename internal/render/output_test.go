package render

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/joss/flowctl/internal/orchestrator"
)

func TestResultPlain(t *testing.T) {
	r := New(false)
	out := r.Result(&orchestrator.ExecutionResult{
		ExecutionID:    "exec-1",
		PlanID:         "plan-1",
		Status:         orchestrator.ExecutionFailed,
		TotalSteps:     2,
		CompletedSteps: 1,
		FailedSteps:    1,
		Duration:       1200 * time.Millisecond,
		ErrorSummary:   "step b: boom",
		Records: []orchestrator.StepRecord{
			{StepID: "a", Status: orchestrator.StepCompleted, Attempts: 1},
			{StepID: "b", Status: orchestrator.StepFailed, Attempts: 4, LastError: "boom"},
		},
	})

	assert.Contains(t, out, "execution=exec-1")
	assert.Contains(t, out, "status=failed")
	assert.Contains(t, out, "step=b status=failed attempts=4")
	assert.Contains(t, out, "error: boom")
}

func TestHistoryEmpty(t *testing.T) {
	r := New(true)
	assert.Equal(t, "No executions recorded\n", r.History(nil))
}

func TestProgressLine(t *testing.T) {
	r := New(false)
	line := r.Progress(orchestrator.Snapshot{
		Status:    orchestrator.ExecutionRunning,
		Total:     5,
		Completed: 2,
		Running:   []string{"c", "d"},
	})

	assert.True(t, strings.HasPrefix(line, "[2/5]"))
	assert.Contains(t, line, "running: c, d")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "250ms", FormatDuration(250*time.Millisecond))
	assert.Equal(t, "2.5s", FormatDuration(2500*time.Millisecond))
	assert.Equal(t, "1m30s", FormatDuration(90*time.Second))
}
