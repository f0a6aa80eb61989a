package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// TaskBackend manages task-tracker items in the capability store.
type TaskBackend struct {
	store *Store
}

// NewTaskBackend creates a task backend over the store.
func NewTaskBackend(store *Store) *TaskBackend {
	return &TaskBackend{store: store}
}

// TrackedTask is one task-tracker item.
type TrackedTask struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	Status   string    `json:"status"`
	Assignee string    `json:"assignee,omitempty"`
	Created  time.Time `json:"created_at"`
	Updated  time.Time `json:"updated_at"`
}

// Invoke handles create, update, list and close operations.
func (t *TaskBackend) Invoke(ctx context.Context, inv Invocation) (any, error) {
	switch inv.Operation {
	case "create":
		return t.create(ctx, inv.Params)
	case "update":
		return t.update(ctx, inv.Params)
	case "close":
		return t.setStatus(ctx, inv.Params, "closed")
	case "list":
		return t.list(ctx, inv.Params)
	default:
		return nil, NonRetryable(fmt.Errorf("unknown task operation: %s", inv.Operation))
	}
}

func (t *TaskBackend) create(ctx context.Context, params map[string]any) (any, error) {
	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}

	now := time.Now()
	task := TrackedTask{
		ID:       "tsk-" + ulid.Make().String(),
		Title:    title,
		Status:   "open",
		Assignee: optStringParam(params, "assignee", ""),
		Created:  now,
		Updated:  now,
	}

	_, err = t.store.db.ExecContext(ctx, `
		INSERT INTO tasks (id, title, status, assignee, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, task.ID, task.Title, task.Status, task.Assignee, task.Created, task.Updated)
	if err != nil {
		return nil, fmt.Errorf("insert task: %w", err)
	}
	return task, nil
}

func (t *TaskBackend) update(ctx context.Context, params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	status := optStringParam(params, "status", "")
	if status == "" {
		return nil, NonRetryable(fmt.Errorf("missing parameter: status"))
	}
	return t.applyStatus(ctx, id, status)
}

func (t *TaskBackend) setStatus(ctx context.Context, params map[string]any, status string) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}
	return t.applyStatus(ctx, id, status)
}

func (t *TaskBackend) applyStatus(ctx context.Context, id, status string) (any, error) {
	res, err := t.store.db.ExecContext(ctx, `
		UPDATE tasks SET status = ?, updated_at = ? WHERE id = ?
	`, status, time.Now(), id)
	if err != nil {
		return nil, fmt.Errorf("update task: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NonRetryable(fmt.Errorf("task not found: %s", id))
	}
	return fmt.Sprintf("task %s is now %s", id, status), nil
}

func (t *TaskBackend) list(ctx context.Context, params map[string]any) (any, error) {
	status := optStringParam(params, "status", "")

	query := `SELECT id, title, status, assignee, created_at, updated_at FROM tasks`
	args := []any{}
	if status != "" {
		query += ` WHERE status = ?`
		args = append(args, status)
	}
	query += ` ORDER BY created_at`

	rows, err := t.store.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []TrackedTask
	for rows.Next() {
		var task TrackedTask
		if err := rows.Scan(&task.ID, &task.Title, &task.Status, &task.Assignee, &task.Created, &task.Updated); err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, task)
	}
	return tasks, rows.Err()
}
