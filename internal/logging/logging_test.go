package logging

import (
	"bytes"
	"encoding/json"
	"errors"
	"os"
	"strings"
	"testing"
	"time"
)

func TestLoggerEmitsJSON(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	log := New("scheduler").WithExecution("exec-1").WithStep("step-a")
	log.Info("step_started", map[string]interface{}{"attempt": 1})

	var e Event
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if e.Component != "scheduler" {
		t.Errorf("component = %q, want scheduler", e.Component)
	}
	if e.Execution != "exec-1" || e.Step != "step-a" {
		t.Errorf("context not propagated: %+v", e)
	}
	if e.Level != LevelInfo {
		t.Errorf("level = %q, want info", e.Level)
	}
}

func TestLoggerErrorField(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	New("runner").Error("invoke_failed", nil, errors.New("boom"))

	if !strings.Contains(buf.String(), `"error":"boom"`) {
		t.Errorf("missing error field: %s", buf.String())
	}
}

func TestTimedEvent(t *testing.T) {
	var buf bytes.Buffer
	SetOutput(&buf)
	defer SetOutput(os.Stderr)

	start := time.Now().Add(-50 * time.Millisecond)
	New("runner").TimedEvent("step_finished", start, nil)

	var e Event
	if err := json.Unmarshal(buf.Bytes(), &e); err != nil {
		t.Fatalf("output is not JSON: %v", err)
	}
	if e.Duration < 50 {
		t.Errorf("duration_ms = %d, want >= 50", e.Duration)
	}
}

func TestWithContextDoesNotMutateParent(t *testing.T) {
	parent := New("gate")
	child := parent.WithExecution("exec-9")
	if parent.execution != "" {
		t.Error("parent logger mutated by WithExecution")
	}
	if child.execution != "exec-9" {
		t.Error("child logger missing execution context")
	}
}
