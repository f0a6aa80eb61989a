package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestRecordExecution(t *testing.T) {
	m := &Metrics{startTime: time.Now()}

	m.RecordExecution("completed", 100*time.Millisecond)
	m.RecordExecution("failed", 300*time.Millisecond)
	m.RecordExecution("cancelled", 0)
	m.RecordExecution("emergency_stopped", 0)

	if got := m.Executions.Load(); got != 4 {
		t.Errorf("Executions = %d, want 4", got)
	}
	if m.Completed.Load() != 1 || m.Failed.Load() != 1 || m.Cancelled.Load() != 1 || m.EmergencyStopped.Load() != 1 {
		t.Error("per-status counters wrong")
	}
}

func TestMovingAverage(t *testing.T) {
	m := &Metrics{startTime: time.Now()}

	m.RecordExecution("completed", 100*time.Millisecond)
	if avg := m.AvgDurationMs(); avg != 100 {
		t.Errorf("avg after one = %.1f, want 100", avg)
	}

	m.RecordExecution("completed", 300*time.Millisecond)
	if avg := m.AvgDurationMs(); avg != 200 {
		t.Errorf("avg after two = %.1f, want 200", avg)
	}
}

func TestRecordStep(t *testing.T) {
	m := &Metrics{startTime: time.Now()}

	m.RecordStep(true, 0)
	m.RecordStep(true, 2)
	m.RecordStep(false, 3)

	if m.StepsRun.Load() != 3 {
		t.Errorf("StepsRun = %d, want 3", m.StepsRun.Load())
	}
	if m.StepRetries.Load() != 5 {
		t.Errorf("StepRetries = %d, want 5", m.StepRetries.Load())
	}
	if m.StepFailures.Load() != 1 {
		t.Errorf("StepFailures = %d, want 1", m.StepFailures.Load())
	}
}

func TestHandlerOutput(t *testing.T) {
	m := &Metrics{startTime: time.Now()}
	m.RecordExecution("completed", 50*time.Millisecond)
	m.RecordBlocked()

	rec := httptest.NewRecorder()
	m.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))

	body := rec.Body.String()
	for _, want := range []string{
		"flowctl_executions_total 1",
		"flowctl_executions_completed_total 1",
		"flowctl_submissions_blocked_total 1",
		"flowctl_avg_execution_duration_ms 50.00",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("metrics output missing %q", want)
		}
	}
}

func TestGlobalSingleton(t *testing.T) {
	if Global() != Global() {
		t.Error("Global() returned different instances")
	}
}
