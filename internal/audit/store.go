package audit

import (
	"context"
	"encoding/json"
	"time"

	"github.com/joss/flowctl/internal/graph"
)

// Store persists audit events to the graph database, linked to their
// session and execution nodes.
type Store struct {
	db graph.Driver
}

// NewStore creates a new audit store.
func NewStore(db graph.Driver) *Store {
	return &Store{db: db}
}

// Save persists an audit event to the graph.
func (s *Store) Save(ctx context.Context, event *Event) error {
	details := ""
	if event.Details != nil {
		if data, err := json.Marshal(event.Details); err == nil {
			details = string(data)
		}
	}

	query := `
		MERGE (sess:Session {session_id: $session_id})
		CREATE (e:AuditEvent {
			event_id: $event_id,
			category: $category,
			operation: $operation,
			status: $status,
			execution_id: $execution_id,
			plan_id: $plan_id,
			step_id: $step_id,
			user_id: $user_id,
			error_message: $error_message,
			details: $details,
			started_at: $started_at,
			completed_at: $completed_at,
			duration_ms: $duration_ms
		})
		CREATE (sess)-[:LOGGED]->(e)
	`

	return s.db.ExecuteWrite(ctx, query, map[string]any{
		"session_id":    event.SessionID,
		"event_id":      event.EventID,
		"category":      string(event.Category),
		"operation":     event.Operation,
		"status":        string(event.Status),
		"execution_id":  event.ExecutionID,
		"plan_id":       event.PlanID,
		"step_id":       event.StepID,
		"user_id":       event.UserID,
		"error_message": event.ErrorMessage,
		"details":       details,
		"started_at":    event.StartedAt.UTC().Format(time.RFC3339),
		"completed_at":  event.CompletedAt.UTC().Format(time.RFC3339),
		"duration_ms":   event.DurationMs,
	})
}

// ForExecution retrieves audit events for one execution, oldest first.
func (s *Store) ForExecution(ctx context.Context, executionID string, limit int) ([]Event, error) {
	if limit <= 0 {
		limit = 100
	}

	query := `
		MATCH (e:AuditEvent {execution_id: $execution_id})
		RETURN e.event_id as event_id,
		       e.category as category,
		       e.operation as operation,
		       e.status as status,
		       e.step_id as step_id,
		       e.error_message as error_message,
		       e.started_at as started_at,
		       e.duration_ms as duration_ms
		ORDER BY e.started_at
		LIMIT $limit
	`

	records, err := s.db.Execute(ctx, query, map[string]any{
		"execution_id": executionID,
		"limit":        limit,
	})
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(records))
	for _, r := range records {
		ev := Event{
			EventID:      r.AsString("event_id"),
			Category:     Category(r.AsString("category")),
			Operation:    r.AsString("operation"),
			Status:       Status(r.AsString("status")),
			StepID:       r.AsString("step_id"),
			ExecutionID:  executionID,
			ErrorMessage: r.AsString("error_message"),
			DurationMs:   r.AsInt64("duration_ms"),
		}
		if ts, err := time.Parse(time.RFC3339, r.AsString("started_at")); err == nil {
			ev.StartedAt = ts
		}
		events = append(events, ev)
	}
	return events, nil
}
