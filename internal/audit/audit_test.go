package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joss/flowctl/internal/graph"
)

// fakeDriver records writes and can be made to fail.
type fakeDriver struct {
	writes []map[string]any
	fail   bool
}

func (f *fakeDriver) Execute(ctx context.Context, query string, params map[string]any) ([]graph.Record, error) {
	return nil, nil
}

func (f *fakeDriver) ExecuteWrite(ctx context.Context, query string, params map[string]any) error {
	if f.fail {
		return errors.New("graph down")
	}
	f.writes = append(f.writes, params)
	return nil
}

func (f *fakeDriver) Close() error                   { return nil }
func (f *fakeDriver) Ping(ctx context.Context) error { return nil }

func TestLoggerEmitsJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithSession("sess-test"))

	event := l.Start(CategoryStep, "invoke")
	event.ExecutionID = "exec-1"
	event.StepID = "a"
	event.Complete(StatusSuccess, nil)
	l.Log(event)

	var decoded Event
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	assert.Equal(t, CategoryStep, decoded.Category)
	assert.Equal(t, "exec-1", decoded.ExecutionID)
	assert.Equal(t, StatusSuccess, decoded.Status)
	assert.Equal(t, "sess-test", decoded.SessionID)
	assert.False(t, decoded.CompletedAt.IsZero())
}

func TestLoggerPersistsToStore(t *testing.T) {
	fake := &fakeDriver{}
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithStore(NewStore(fake)))

	l.LogOp(CategorySecurity, "preflight", StatusBlocked, errors.New("not whitelisted"))

	require.Len(t, fake.writes, 1)
	assert.Equal(t, "blocked", fake.writes[0]["status"])
	assert.Equal(t, "not whitelisted", fake.writes[0]["error_message"])
}

func TestLoggerSurvivesStoreFailure(t *testing.T) {
	fake := &fakeDriver{fail: true}
	var buf bytes.Buffer
	l := NewLogger(WithOutput(&buf), WithStore(NewStore(fake)))

	// Must not panic or error; the JSON line is still written.
	l.LogOp(CategoryExecution, "finalize", StatusSuccess, nil)
	assert.True(t, strings.Contains(buf.String(), `"finalize"`))
}

func TestEventComplete(t *testing.T) {
	e := &Event{StartedAt: time.Now().Add(-20 * time.Millisecond)}
	e.Complete("", errors.New("boom"))

	assert.Equal(t, StatusError, e.Status)
	assert.Equal(t, "boom", e.ErrorMessage)
	assert.GreaterOrEqual(t, e.DurationMs, int64(20))
}
