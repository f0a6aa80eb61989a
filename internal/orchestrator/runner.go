package orchestrator

import (
	"context"
	"errors"
	"math"
	"time"

	"github.com/joss/flowctl/internal/audit"
	"github.com/joss/flowctl/internal/capability"
	"github.com/joss/flowctl/internal/checkpoint"
	"github.com/joss/flowctl/internal/plan"
)

// runStep drives one step through its attempt loop: checkpoint, invoke
// under the per-step timeout, classify the failure, roll back and wait
// out the backoff before the next attempt. The final outcome goes to
// the scheduler over the results channel.
func (eng *Engine) runStep(e *execution, st *plan.Step, results chan<- stepOutcome) {
	log := eng.log.WithExecution(e.id).WithStep(st.ID)

	maxRetries := eng.cfg.DefaultMaxRetries
	if st.MaxRetries != nil {
		maxRetries = *st.MaxRetries
	}
	timeout := st.Timeout.Duration()
	if timeout <= 0 {
		timeout = eng.cfg.DefaultStepTimeout
	}

	inv := capability.Invocation{
		Service:   capability.Service(st.Service),
		Operation: st.Operation,
		Params:    st.Params,
	}
	out := stepOutcome{stepID: st.ID}

	for attempt := 1; ; attempt++ {
		out.attempts = attempt
		e.updateRecord(st.ID, func(rec *StepRecord) {
			rec.Status = StepRunning
			rec.Attempts = attempt
		})

		if ck, err := eng.ckpt.Checkpoint(e.runCtx, checkpoint.Key{ExecutionID: e.id, StepID: st.ID}); err != nil {
			log.Warn("checkpoint_failed", nil, err)
		} else {
			out.checkpointID = ck
			e.updateRecord(st.ID, func(rec *StepRecord) { rec.CheckpointID = ck })
		}

		invCtx, cancel := context.WithTimeout(e.runCtx, timeout)
		start := time.Now()
		result, err := eng.backend.Invoke(invCtx, inv)
		cancel()

		if err == nil {
			log.TimedEvent("step_completed", start, map[string]interface{}{"attempt": attempt})
			out.result = result
			out.err = nil
			results <- out
			return
		}

		// A deadline hit on the attempt context is this step's timeout;
		// a dead run context means the whole execution is going down.
		if errors.Is(err, context.DeadlineExceeded) && e.runCtx.Err() == nil {
			err = &StepTimeoutError{StepID: st.ID, Timeout: timeout}
		}

		if !capability.Retryable(err) || attempt > maxRetries {
			log.Error("step_failed", map[string]interface{}{"attempt": attempt}, err)
			ev := eng.audit.Start(audit.CategoryStep, st.Descriptor())
			ev.ExecutionID = e.id
			ev.PlanID = e.plan.ID
			ev.StepID = st.ID
			ev.Details = map[string]any{"attempts": attempt}
			ev.Complete(audit.StatusError, err)
			eng.audit.Log(ev)

			out.err = err
			results <- out
			return
		}

		e.updateRecord(st.ID, func(rec *StepRecord) {
			rec.Status = StepRetrying
			rec.LastError = err.Error()
		})
		e.notify()

		if out.checkpointID != "" {
			if rbErr := eng.ckpt.Rollback(e.runCtx, out.checkpointID); rbErr != nil {
				// Rollback failure is logged, never fatal; the retry
				// proceeds against whatever state the step left behind.
				log.Warn("rollback_failed", map[string]interface{}{"checkpoint": out.checkpointID}, rbErr)
				eng.audit.LogOp(audit.CategoryCheckpoint, "rollback", audit.StatusError, rbErr)
			}
		}

		delay := eng.backoffDelay(attempt)
		log.Warn("step_retrying", map[string]interface{}{
			"attempt":  attempt,
			"delay_ms": delay.Milliseconds(),
		}, err)

		timer := time.NewTimer(delay)
		select {
		case <-timer.C:
		case <-e.runCtx.Done():
			timer.Stop()
			out.err = err
			results <- out
			return
		}
	}
}

// backoffDelay returns the wait after the given failed attempt:
// base * multiplier^(attempt-1).
func (eng *Engine) backoffDelay(attempt int) time.Duration {
	d := float64(eng.cfg.BackoffBase) * math.Pow(eng.cfg.BackoffMultiplier, float64(attempt-1))
	return time.Duration(d)
}

// updateRecord mutates a step record under the lock, unless the
// execution is already finalized.
func (e *execution) updateRecord(id string, fn func(*StepRecord)) {
	e.mu.Lock()
	if rec := e.records[id]; rec != nil && e.result == nil {
		fn(rec)
	}
	e.mu.Unlock()
}
