package capability

import (
	"context"
	"fmt"
	"time"

	"github.com/oklog/ulid/v2"
)

// CalendarBackend manages calendar events in the capability store.
type CalendarBackend struct {
	store *Store
}

// NewCalendarBackend creates a calendar backend over the store.
func NewCalendarBackend(store *Store) *CalendarBackend {
	return &CalendarBackend{store: store}
}

// CalendarEvent is one scheduled entry.
type CalendarEvent struct {
	ID       string    `json:"id"`
	Title    string    `json:"title"`
	StartsAt time.Time `json:"starts_at"`
	EndsAt   time.Time `json:"ends_at,omitempty"`
	Notes    string    `json:"notes,omitempty"`
}

// Invoke handles create, list and delete operations.
func (c *CalendarBackend) Invoke(ctx context.Context, inv Invocation) (any, error) {
	switch inv.Operation {
	case "create":
		return c.create(ctx, inv.Params)
	case "list":
		return c.list(ctx)
	case "delete":
		return c.remove(ctx, inv.Params)
	default:
		return nil, NonRetryable(fmt.Errorf("unknown calendar operation: %s", inv.Operation))
	}
}

func (c *CalendarBackend) create(ctx context.Context, params map[string]any) (any, error) {
	title, err := stringParam(params, "title")
	if err != nil {
		return nil, err
	}

	startsAt := time.Now()
	if s := optStringParam(params, "starts_at", ""); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, NonRetryable(fmt.Errorf("bad starts_at %q: %w", s, err))
		}
		startsAt = parsed
	}

	var endsAt time.Time
	if s := optStringParam(params, "ends_at", ""); s != "" {
		parsed, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return nil, NonRetryable(fmt.Errorf("bad ends_at %q: %w", s, err))
		}
		endsAt = parsed
	}

	ev := CalendarEvent{
		ID:       "evt-" + ulid.Make().String(),
		Title:    title,
		StartsAt: startsAt,
		EndsAt:   endsAt,
		Notes:    optStringParam(params, "notes", ""),
	}

	_, err = c.store.db.ExecContext(ctx, `
		INSERT INTO calendar_events (id, title, starts_at, ends_at, notes, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`, ev.ID, ev.Title, ev.StartsAt, ev.EndsAt, ev.Notes, time.Now())
	if err != nil {
		return nil, fmt.Errorf("insert event: %w", err)
	}
	return ev, nil
}

func (c *CalendarBackend) list(ctx context.Context) (any, error) {
	rows, err := c.store.db.QueryContext(ctx, `
		SELECT id, title, starts_at, ends_at, notes
		FROM calendar_events ORDER BY starts_at
	`)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []CalendarEvent
	for rows.Next() {
		var ev CalendarEvent
		if err := rows.Scan(&ev.ID, &ev.Title, &ev.StartsAt, &ev.EndsAt, &ev.Notes); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, ev)
	}
	return events, rows.Err()
}

func (c *CalendarBackend) remove(ctx context.Context, params map[string]any) (any, error) {
	id, err := stringParam(params, "id")
	if err != nil {
		return nil, err
	}

	res, err := c.store.db.ExecContext(ctx, `DELETE FROM calendar_events WHERE id = ?`, id)
	if err != nil {
		return nil, fmt.Errorf("delete event: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, NonRetryable(fmt.Errorf("event not found: %s", id))
	}
	return "deleted " + id, nil
}
