package audit

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/joss/flowctl/internal/config"
)

// Logger writes audit events as JSON lines and optionally persists
// them to the graph store.
type Logger struct {
	mu        sync.Mutex
	sessionID string
	output    io.Writer
	store     *Store
}

// LoggerOption configures the logger.
type LoggerOption func(*Logger)

// WithStore sets the graph store for persistence.
func WithStore(store *Store) LoggerOption {
	return func(l *Logger) {
		l.store = store
	}
}

// WithSession sets the session ID.
func WithSession(id string) LoggerOption {
	return func(l *Logger) {
		l.sessionID = id
	}
}

// WithOutput sets the output writer.
func WithOutput(w io.Writer) LoggerOption {
	return func(l *Logger) {
		l.output = w
	}
}

// NewLogger creates a new audit logger.
func NewLogger(opts ...LoggerOption) *Logger {
	l := &Logger{
		sessionID: config.Env().SessionID,
		output:    os.Stderr,
	}

	for _, opt := range opts {
		opt(l)
	}

	if l.sessionID == "" {
		l.sessionID = fmt.Sprintf("sess-%d", time.Now().UnixNano())
	}

	return l
}

// Start begins tracking an operation.
func (l *Logger) Start(category Category, operation string) *Event {
	return &Event{
		EventID:   "evt-" + ulid.Make().String(),
		Category:  category,
		Operation: operation,
		StartedAt: time.Now(),
		SessionID: l.sessionID,
	}
}

// Log writes a completed event. Persistence errors are swallowed so an
// unreachable store never fails the operation being audited.
func (l *Logger) Log(event *Event) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if event.CompletedAt.IsZero() {
		event.CompletedAt = time.Now()
		event.Duration = event.CompletedAt.Sub(event.StartedAt)
		event.DurationMs = event.Duration.Milliseconds()
	}

	if data, err := json.Marshal(event); err == nil {
		fmt.Fprintf(l.output, "%s\n", data)
	}

	if l.store != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_ = l.store.Save(ctx, event)
	}
}

// LogOp logs a complete operation in one call.
func (l *Logger) LogOp(category Category, operation string, status Status, err error) {
	event := l.Start(category, operation)
	event.Complete(status, err)
	l.Log(event)
}

// SessionID returns the current session ID.
func (l *Logger) SessionID() string {
	return l.sessionID
}

// Global logger instance
var (
	globalLogger *Logger
	globalOnce   sync.Once
)

// Global returns the global audit logger.
func Global() *Logger {
	globalOnce.Do(func() {
		globalLogger = NewLogger()
	})
	return globalLogger
}

// SetGlobal sets the global logger.
func SetGlobal(l *Logger) {
	globalLogger = l
}
