package capability

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type echoBackend struct{}

func (echoBackend) Invoke(ctx context.Context, inv Invocation) (any, error) {
	return string(inv.Service) + ":" + inv.Operation, nil
}

func TestRouterDispatch(t *testing.T) {
	r := &Router{File: echoBackend{}, Task: echoBackend{}}

	out, err := r.Invoke(context.Background(), Invocation{Service: ServiceFile, Operation: "read"})
	require.NoError(t, err)
	assert.Equal(t, "file:read", out)

	_, err = r.Invoke(context.Background(), Invocation{Service: ServiceWeb, Operation: "fetch"})
	require.Error(t, err)
	assert.False(t, Retryable(err))

	_, err = r.Invoke(context.Background(), Invocation{Service: "mail", Operation: "send"})
	require.Error(t, err)
	assert.False(t, Retryable(err))
}

func TestRetryableClassification(t *testing.T) {
	assert.False(t, Retryable(nil))
	assert.True(t, Retryable(errors.New("transient")))
	assert.False(t, Retryable(NonRetryable(errors.New("bad args"))))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", NonRetryable(errors.New("bad")))))
	assert.False(t, Retryable(context.Canceled))
	assert.True(t, Retryable(context.DeadlineExceeded))
}

func TestFileBackendRoundTrip(t *testing.T) {
	root := t.TempDir()
	fb := NewFileBackend(root)
	ctx := context.Background()

	_, err := fb.Invoke(ctx, Invocation{Service: ServiceFile, Operation: "write", Params: map[string]any{
		"path": "notes/a.txt", "content": "hello",
	}})
	require.NoError(t, err)

	out, err := fb.Invoke(ctx, Invocation{Service: ServiceFile, Operation: "read", Params: map[string]any{
		"path": "notes/a.txt",
	}})
	require.NoError(t, err)
	assert.Equal(t, "hello", out)

	_, err = fb.Invoke(ctx, Invocation{Service: ServiceFile, Operation: "copy", Params: map[string]any{
		"src": "notes/a.txt", "dst": "notes/b.txt",
	}})
	require.NoError(t, err)

	out, err = fb.Invoke(ctx, Invocation{Service: ServiceFile, Operation: "list", Params: map[string]any{
		"pattern": "notes/*.txt",
	}})
	require.NoError(t, err)
	assert.Equal(t, []string{"notes/a.txt", "notes/b.txt"}, out)

	_, err = fb.Invoke(ctx, Invocation{Service: ServiceFile, Operation: "delete", Params: map[string]any{
		"path": "notes/b.txt",
	}})
	require.NoError(t, err)
	_, statErr := os.Stat(filepath.Join(root, "notes", "b.txt"))
	assert.True(t, os.IsNotExist(statErr))
}

func TestFileBackendSandboxEscape(t *testing.T) {
	fb := NewFileBackend(t.TempDir())

	_, err := fb.Invoke(context.Background(), Invocation{Service: ServiceFile, Operation: "read", Params: map[string]any{
		"path": "../../etc/passwd",
	}})
	// Clean("/../../etc/passwd") collapses into the sandbox, so the read
	// stays inside the root and simply misses.
	require.Error(t, err)

	_, err = fb.Invoke(context.Background(), Invocation{Service: ServiceFile, Operation: "frobnicate", Params: nil})
	require.Error(t, err)
	assert.False(t, Retryable(err))
}

func TestFileBackendMissingParams(t *testing.T) {
	fb := NewFileBackend(t.TempDir())
	_, err := fb.Invoke(context.Background(), Invocation{Service: ServiceFile, Operation: "read", Params: nil})
	require.Error(t, err)
	assert.False(t, Retryable(err))
}

func TestWebBackendFetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprint(w, "payload")
	}))
	defer srv.Close()

	wb := NewWebBackend()
	out, err := wb.Invoke(context.Background(), Invocation{Service: ServiceWeb, Operation: "fetch", Params: map[string]any{
		"url": srv.URL,
	}})
	require.NoError(t, err)
	assert.Equal(t, "payload", out)
}

func TestWebBackendFetchStatusClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	wb := NewWebBackend()

	_, err := wb.Invoke(context.Background(), Invocation{Service: ServiceWeb, Operation: "fetch", Params: map[string]any{
		"url": srv.URL + "/missing",
	}})
	require.Error(t, err)
	assert.False(t, Retryable(err), "404 should not be retried")

	_, err = wb.Invoke(context.Background(), Invocation{Service: ServiceWeb, Operation: "fetch", Params: map[string]any{
		"url": srv.URL + "/flaky",
	}})
	require.Error(t, err)
	assert.True(t, Retryable(err), "500 should be retried")
}

func TestCalendarAndTaskBackends(t *testing.T) {
	store, err := OpenStore(t.TempDir())
	require.NoError(t, err)
	defer store.Close()

	ctx := context.Background()
	cal := NewCalendarBackend(store)
	tasks := NewTaskBackend(store)

	out, err := cal.Invoke(ctx, Invocation{Service: ServiceCalendar, Operation: "create", Params: map[string]any{
		"title": "standup", "starts_at": "2026-09-01T09:00:00Z",
	}})
	require.NoError(t, err)
	ev := out.(CalendarEvent)
	assert.Equal(t, "standup", ev.Title)

	out, err = cal.Invoke(ctx, Invocation{Service: ServiceCalendar, Operation: "list", Params: nil})
	require.NoError(t, err)
	assert.Len(t, out.([]CalendarEvent), 1)

	out, err = tasks.Invoke(ctx, Invocation{Service: ServiceTask, Operation: "create", Params: map[string]any{
		"title": "file report", "assignee": "carol",
	}})
	require.NoError(t, err)
	task := out.(TrackedTask)
	assert.Equal(t, "open", task.Status)

	_, err = tasks.Invoke(ctx, Invocation{Service: ServiceTask, Operation: "close", Params: map[string]any{
		"id": task.ID,
	}})
	require.NoError(t, err)

	out, err = tasks.Invoke(ctx, Invocation{Service: ServiceTask, Operation: "list", Params: map[string]any{
		"status": "closed",
	}})
	require.NoError(t, err)
	assert.Len(t, out.([]TrackedTask), 1)

	_, err = tasks.Invoke(ctx, Invocation{Service: ServiceTask, Operation: "close", Params: map[string]any{
		"id": "tsk-nope",
	}})
	require.Error(t, err)
	assert.False(t, Retryable(err))
}
