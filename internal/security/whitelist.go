// Package security provides the pre-flight and per-iteration gate that
// stands between a submitted plan and any tool invocation.
package security

import (
	"strings"
	"sync"

	"github.com/bmatcuk/doublestar/v4"
)

// Whitelist decides whether a capability descriptor may run for a user.
type Whitelist interface {
	IsAllowed(descriptor, userID string) bool
}

// PatternWhitelist matches "<service>:<operation>" descriptors against
// glob patterns ("file:*", "task:create", "*:read").
type PatternWhitelist struct {
	mu       sync.RWMutex
	patterns []string
}

// NewPatternWhitelist creates a whitelist from the given patterns.
func NewPatternWhitelist(patterns ...string) *PatternWhitelist {
	return &PatternWhitelist{patterns: patterns}
}

// DefaultWhitelist allows the low-risk read-side operations plus the
// bookkeeping writes a typical plan needs.
func DefaultWhitelist() *PatternWhitelist {
	return NewPatternWhitelist(
		"file:read",
		"file:list",
		"file:write",
		"file:copy",
		"web:fetch",
		"web:render",
		"calendar:*",
		"task:*",
	)
}

// Add appends patterns at runtime.
func (w *PatternWhitelist) Add(patterns ...string) {
	w.mu.Lock()
	w.patterns = append(w.patterns, patterns...)
	w.mu.Unlock()
}

// IsAllowed reports whether the descriptor matches any pattern.
// The user ID is accepted for interface compatibility; per-user rules
// belong to an external policy service.
func (w *PatternWhitelist) IsAllowed(descriptor, userID string) bool {
	w.mu.RLock()
	defer w.mu.RUnlock()

	descriptor = strings.TrimSpace(descriptor)
	for _, p := range w.patterns {
		if ok, err := doublestar.Match(p, descriptor); err == nil && ok {
			return true
		}
	}
	return false
}
