package orchestrator

import (
	"time"
)

// stepOutcome is the step runner's report back to the scheduler.
type stepOutcome struct {
	stepID       string
	result       any
	err          error
	attempts     int
	checkpointID string
}

// schedule runs the dependency-ordered launch loop until the execution
// reaches a terminal status. Each iteration: observe cancellation,
// check the emergency stop, skip permanently blocked steps, launch
// ready steps up to the parallelism bound, then wait for the first
// completion.
func (eng *Engine) schedule(e *execution) {
	log := eng.log.WithExecution(e.id)
	results := make(chan stepOutcome, len(e.plan.Steps))
	running := 0

	for {
		e.mu.Lock()
		if e.status != ExecutionRunning {
			e.mu.Unlock()
			break
		}

		if eng.gate.StopActive() {
			e.status = ExecutionEmergencyStopped
			e.failReason = "emergency stop active"
			e.mu.Unlock()
			log.Warn("emergency_stop", map[string]interface{}{"running": running}, nil)
			break
		}

		e.skipBlockedLocked()
		ready := e.readyLocked()

		launched := 0
		for _, id := range ready {
			if running >= eng.cfg.MaxParallelSteps {
				break
			}
			rec := e.records[id]
			rec.Status = StepRunning
			rec.StartedAt = time.Now()
			go eng.runStep(e, e.plan.Step(id), results)
			running++
			launched++
		}

		if running == 0 {
			// Nothing runnable and nothing in flight: either the plan is
			// done or the remaining waiting steps form a cycle.
			waiting := e.waitingLocked()
			if len(waiting) > 0 {
				e.status = ExecutionFailed
				e.failReason = deadlockSummary(waiting)
				e.mu.Unlock()
				log.Error("deadlock_detected", map[string]interface{}{"waiting": waiting}, nil)
				break
			}
			e.status = e.naturalStatusLocked()
			e.mu.Unlock()
			break
		}
		e.mu.Unlock()

		if launched > 0 {
			e.notify()
		}

		select {
		case out := <-results:
			running--
			eng.applyOutcome(e, out)
			e.notify()
		case <-e.runCtx.Done():
			// Either Cancel already moved the status, or the caller's
			// context expired; record the latter as a cancellation.
			e.mu.Lock()
			if e.status == ExecutionRunning {
				e.status = ExecutionCancelled
				e.failReason = "context cancelled"
			}
			e.mu.Unlock()
		}
	}

	// Let in-flight steps finish. Under emergency stop their outcomes
	// still land in the result; after Cancel the result is already
	// sealed and applyOutcome is a no-op.
	for running > 0 {
		out := <-results
		running--
		eng.applyOutcome(e, out)
		e.notify()
	}
}

// applyOutcome moves a step record to its terminal state. Outcomes
// arriving after finalization are discarded.
func (eng *Engine) applyOutcome(e *execution, out stepOutcome) {
	e.mu.Lock()
	rec := e.records[out.stepID]
	if e.result != nil || rec == nil || rec.Status.Terminal() {
		e.mu.Unlock()
		return
	}

	rec.Attempts = out.attempts
	rec.FinishedAt = time.Now()
	if out.checkpointID != "" {
		rec.CheckpointID = out.checkpointID
	}
	if out.err == nil {
		rec.Status = StepCompleted
		rec.Result = out.result
	} else {
		rec.Status = StepFailed
		rec.LastError = out.err.Error()
	}
	e.mu.Unlock()

	eng.metrics.RecordStep(out.err == nil, out.attempts-1)
}

// skipBlockedLocked marks waiting steps whose dependencies failed or
// were skipped as Skipped, cascading until stable. Caller holds e.mu.
func (e *execution) skipBlockedLocked() {
	for changed := true; changed; {
		changed = false
		for _, rec := range e.records {
			if rec.Status != StepWaiting {
				continue
			}
			step := e.plan.Step(rec.StepID)
			for _, dep := range step.DependsOn {
				ds := e.records[dep].Status
				if ds == StepFailed || ds == StepSkipped {
					rec.Status = StepSkipped
					changed = true
					break
				}
			}
		}
	}
}

// readyLocked returns waiting steps whose dependencies all completed,
// in plan order. Caller holds e.mu.
func (e *execution) readyLocked() []string {
	var ready []string
	for i := range e.plan.Steps {
		step := &e.plan.Steps[i]
		rec := e.records[step.ID]
		if rec.Status != StepWaiting {
			continue
		}
		ok := true
		for _, dep := range step.DependsOn {
			if e.records[dep].Status != StepCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, step.ID)
		}
	}
	return ready
}

// waitingLocked returns the IDs of steps still waiting, in plan order.
// Caller holds e.mu.
func (e *execution) waitingLocked() []string {
	var waiting []string
	for i := range e.plan.Steps {
		if e.records[e.plan.Steps[i].ID].Status == StepWaiting {
			waiting = append(waiting, e.plan.Steps[i].ID)
		}
	}
	return waiting
}

// naturalStatusLocked derives the terminal status once every step is
// terminal. Caller holds e.mu.
func (e *execution) naturalStatusLocked() ExecutionStatus {
	for _, rec := range e.records {
		if rec.Status != StepCompleted {
			return ExecutionFailed
		}
	}
	return ExecutionCompleted
}
