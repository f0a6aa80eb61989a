// Package capability defines the tool backends a plan step can invoke.
// Backends are selected by a typed service tag rather than a name-keyed
// map of handlers, so an unknown service is a compile-visible gap.
package capability

import (
	"context"
	"errors"
	"fmt"
)

// Service is the category of an external capability.
type Service string

const (
	ServiceFile     Service = "file"
	ServiceWeb      Service = "web"
	ServiceCalendar Service = "calendar"
	ServiceTask     Service = "task"
)

// Invocation is one request against a capability backend.
type Invocation struct {
	Service   Service
	Operation string
	Params    map[string]any
}

// Backend executes operations for one service category.
type Backend interface {
	Invoke(ctx context.Context, inv Invocation) (any, error)
}

// NonRetryableError marks a failure the step runner must not retry:
// bad arguments, sandbox violations, unknown operations.
type NonRetryableError struct {
	Err error
}

func (e *NonRetryableError) Error() string {
	return e.Err.Error()
}

func (e *NonRetryableError) Unwrap() error {
	return e.Err
}

// NonRetryable wraps err so the step runner fails fast.
func NonRetryable(err error) error {
	if err == nil {
		return nil
	}
	return &NonRetryableError{Err: err}
}

// Retryable reports whether a failed invocation may be attempted again.
// Everything is retryable unless flagged otherwise or the caller's
// context was cancelled.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	var nr *NonRetryableError
	if errors.As(err, &nr) {
		return false
	}
	return !errors.Is(err, context.Canceled)
}

// Router dispatches invocations to per-service backends. A nil field
// means the service is not configured.
type Router struct {
	File     Backend
	Web      Backend
	Calendar Backend
	Task     Backend
}

// Invoke routes to the backend for the invocation's service tag.
func (r *Router) Invoke(ctx context.Context, inv Invocation) (any, error) {
	var b Backend
	switch inv.Service {
	case ServiceFile:
		b = r.File
	case ServiceWeb:
		b = r.Web
	case ServiceCalendar:
		b = r.Calendar
	case ServiceTask:
		b = r.Task
	default:
		return nil, NonRetryable(fmt.Errorf("unknown service: %s", inv.Service))
	}

	if b == nil {
		return nil, NonRetryable(fmt.Errorf("service not configured: %s", inv.Service))
	}
	return b.Invoke(ctx, inv)
}

// stringParam extracts a required string parameter.
func stringParam(params map[string]any, key string) (string, error) {
	v, ok := params[key]
	if !ok {
		return "", NonRetryable(fmt.Errorf("missing parameter: %s", key))
	}
	s, ok := v.(string)
	if !ok || s == "" {
		return "", NonRetryable(fmt.Errorf("parameter %s must be a non-empty string", key))
	}
	return s, nil
}

// optStringParam extracts an optional string parameter.
func optStringParam(params map[string]any, key, fallback string) string {
	if v, ok := params[key].(string); ok && v != "" {
		return v
	}
	return fallback
}
