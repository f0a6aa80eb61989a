// Package plan defines the declarative plan model consumed by the orchestrator.
// Plans are produced by an upstream planner and are never mutated here.
package plan

import (
	"fmt"
	"time"
)

// RiskTier is the declared risk level of a step.
type RiskTier string

const (
	RiskLow    RiskTier = "low"
	RiskMedium RiskTier = "medium"
	RiskHigh   RiskTier = "high"
)

// Step is a single unit of work inside a plan.
type Step struct {
	ID        string         `json:"id" yaml:"id"`
	Service   string         `json:"service" yaml:"service"`
	Operation string         `json:"operation" yaml:"operation"`
	Params    map[string]any `json:"params,omitempty" yaml:"params,omitempty"`

	// Reason is the human-readable rationale from the planner.
	Reason string `json:"reason,omitempty" yaml:"reason,omitempty"`

	DependsOn []string `json:"depends_on,omitempty" yaml:"depends_on,omitempty"`
	Risk      RiskTier `json:"risk,omitempty" yaml:"risk,omitempty"`

	Estimate Duration `json:"estimate,omitempty" yaml:"estimate,omitempty"`
	Timeout  Duration `json:"timeout,omitempty" yaml:"timeout,omitempty"`

	// MaxRetries overrides the orchestrator default when set.
	MaxRetries *int `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
}

// Descriptor returns the "<service>:<operation>" capability descriptor
// used for whitelist checks.
func (s *Step) Descriptor() string {
	return s.Service + ":" + s.Operation
}

// Plan is the immutable input describing a goal as dependency-ordered steps.
type Plan struct {
	ID        string    `json:"id" yaml:"id"`
	Goal      string    `json:"goal" yaml:"goal"`
	Steps     []Step    `json:"steps" yaml:"steps"`
	CreatedBy string    `json:"created_by,omitempty" yaml:"created_by,omitempty"`
	CreatedAt time.Time `json:"created_at,omitempty" yaml:"created_at,omitempty"`
}

// Step returns the step with the given ID, or nil.
func (p *Plan) Step(id string) *Step {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// TotalEstimate sums the per-step duration estimates.
func (p *Plan) TotalEstimate() time.Duration {
	var total time.Duration
	for i := range p.Steps {
		total += p.Steps[i].Estimate.Duration()
	}
	return total
}

// ValidationError reports a malformed plan. It fails submission before
// any side effect.
type ValidationError struct {
	PlanID string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid plan %s: %s", e.PlanID, e.Reason)
}

// Validate checks the plan shape: non-empty steps, unique step IDs,
// populated capability descriptors, and dependency references that
// resolve within the plan. The upstream planner is expected to
// guarantee all of this; the check is defensive.
//
// Cycles are deliberately not rejected here: an unsatisfiable graph is
// detected by the scheduler, which terminates the execution as failed.
func (p *Plan) Validate() error {
	if p.ID == "" {
		return &ValidationError{PlanID: p.ID, Reason: "missing plan id"}
	}
	if len(p.Steps) == 0 {
		return &ValidationError{PlanID: p.ID, Reason: "plan has no steps"}
	}

	seen := make(map[string]bool, len(p.Steps))
	for i := range p.Steps {
		s := &p.Steps[i]
		if s.ID == "" {
			return &ValidationError{PlanID: p.ID, Reason: fmt.Sprintf("step %d has no id", i)}
		}
		if seen[s.ID] {
			return &ValidationError{PlanID: p.ID, Reason: "duplicate step id: " + s.ID}
		}
		seen[s.ID] = true
		if s.Service == "" || s.Operation == "" {
			return &ValidationError{PlanID: p.ID, Reason: "step " + s.ID + " has no capability descriptor"}
		}
		if s.MaxRetries != nil && *s.MaxRetries < 0 {
			return &ValidationError{PlanID: p.ID, Reason: "step " + s.ID + " has negative max_retries"}
		}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		for _, dep := range s.DependsOn {
			if !seen[dep] {
				return &ValidationError{PlanID: p.ID, Reason: fmt.Sprintf("step %s depends on unknown step %s", s.ID, dep)}
			}
			if dep == s.ID {
				return &ValidationError{PlanID: p.ID, Reason: "step " + s.ID + " depends on itself"}
			}
		}
	}

	return nil
}

// FindCycle returns the step IDs of one dependency cycle, or nil when the
// graph is acyclic. Used by the CLI to warn before submission; the
// scheduler handles cycles at runtime regardless.
func (p *Plan) FindCycle() []string {
	const (
		white = 0 // unvisited
		gray  = 1 // on stack
		black = 2 // done
	)

	color := make(map[string]int, len(p.Steps))
	var stack []string
	var cycle []string

	var visit func(id string) bool
	visit = func(id string) bool {
		color[id] = gray
		stack = append(stack, id)

		step := p.Step(id)
		if step != nil {
			for _, dep := range step.DependsOn {
				switch color[dep] {
				case gray:
					// Slice the stack from the first occurrence of dep.
					for i, s := range stack {
						if s == dep {
							cycle = append([]string{}, stack[i:]...)
							return true
						}
					}
				case white:
					if visit(dep) {
						return true
					}
				}
			}
		}

		stack = stack[:len(stack)-1]
		color[id] = black
		return false
	}

	for i := range p.Steps {
		if color[p.Steps[i].ID] == white {
			if visit(p.Steps[i].ID) {
				return cycle
			}
		}
	}
	return nil
}

// Roots returns the IDs of steps with no dependencies. They are eligible
// for launch at time zero.
func (p *Plan) Roots() []string {
	var roots []string
	for i := range p.Steps {
		if len(p.Steps[i].DependsOn) == 0 {
			roots = append(roots, p.Steps[i].ID)
		}
	}
	return roots
}
