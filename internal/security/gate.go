package security

import (
	"fmt"

	"github.com/joss/flowctl/internal/logging"
	"github.com/joss/flowctl/internal/plan"
)

// PolicyBlockedError reports a plan rejected by the gate. It is raised
// before any tool invocation, so a blocked plan has zero side effects.
type PolicyBlockedError struct {
	PlanID string
	StepID string
	Reason string
}

func (e *PolicyBlockedError) Error() string {
	if e.StepID != "" {
		return fmt.Sprintf("plan %s blocked at step %s: %s", e.PlanID, e.StepID, e.Reason)
	}
	return fmt.Sprintf("plan %s blocked: %s", e.PlanID, e.Reason)
}

// Gate performs pre-flight and per-iteration security checks.
type Gate struct {
	whitelist Whitelist
	stop      StopSwitch
	log       *logging.Logger
}

// NewGate creates a gate over the given whitelist and stop switch.
func NewGate(whitelist Whitelist, stop StopSwitch) *Gate {
	return &Gate{
		whitelist: whitelist,
		stop:      stop,
		log:       logging.New("gate"),
	}
}

// Validate runs the pre-flight check: emergency stop must be inactive
// and every step's descriptor must be whitelisted. Fails fast on the
// first violation.
func (g *Gate) Validate(p *plan.Plan, userID string) error {
	if g.stop.IsActive() {
		g.log.Warn("preflight_blocked", map[string]interface{}{"plan": p.ID, "reason": "emergency stop active"}, nil)
		return &PolicyBlockedError{PlanID: p.ID, Reason: "emergency stop active"}
	}

	for i := range p.Steps {
		s := &p.Steps[i]
		if !g.whitelist.IsAllowed(s.Descriptor(), userID) {
			g.log.Warn("preflight_blocked", map[string]interface{}{
				"plan":       p.ID,
				"step":       s.ID,
				"descriptor": s.Descriptor(),
			}, nil)
			return &PolicyBlockedError{
				PlanID: p.ID,
				StepID: s.ID,
				Reason: "operation not whitelisted: " + s.Descriptor(),
			}
		}
	}

	return nil
}

// StopActive reports whether the emergency-stop signal is set. Called
// once per scheduler iteration.
func (g *Gate) StopActive() bool {
	return g.stop.IsActive()
}
