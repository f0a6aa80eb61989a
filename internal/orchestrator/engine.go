package orchestrator

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/joss/flowctl/internal/audit"
	"github.com/joss/flowctl/internal/capability"
	"github.com/joss/flowctl/internal/checkpoint"
	"github.com/joss/flowctl/internal/logging"
	"github.com/joss/flowctl/internal/metrics"
	"github.com/joss/flowctl/internal/plan"
	"github.com/joss/flowctl/internal/security"
)

// ResultSink persists terminal results, typically to the history store.
// Append failures are logged and swallowed.
type ResultSink interface {
	Append(ctx context.Context, res *ExecutionResult) error
}

// PerformanceSummary is a point-in-time view of the engine's counters.
type PerformanceSummary struct {
	Executions       int64   `json:"executions"`
	Completed        int64   `json:"completed"`
	Failed           int64   `json:"failed"`
	Cancelled        int64   `json:"cancelled"`
	EmergencyStopped int64   `json:"emergency_stopped"`
	Blocked          int64   `json:"blocked"`
	StepsRun         int64   `json:"steps_run"`
	StepRetries      int64   `json:"step_retries"`
	StepFailures     int64   `json:"step_failures"`
	AvgDurationMs    float64 `json:"avg_duration_ms"`
}

// Engine validates, gates and executes plans. One engine serves many
// concurrent executions; each execution gets its own scheduler
// goroutine and registry entry.
type Engine struct {
	cfg     Config
	gate    *security.Gate
	backend capability.Backend
	ckpt    checkpoint.Service
	metrics *metrics.Metrics
	audit   *audit.Logger
	sink    ResultSink
	log     *logging.Logger

	mu     sync.RWMutex
	active map[string]*execution
	done   map[string]*ExecutionResult
}

// Option configures an Engine.
type Option func(*Engine)

// WithMetrics overrides the global metrics instance (for tests).
func WithMetrics(m *metrics.Metrics) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithAudit sets the audit logger.
func WithAudit(a *audit.Logger) Option {
	return func(e *Engine) { e.audit = a }
}

// WithResultSink sets the persistent history sink.
func WithResultSink(s ResultSink) Option {
	return func(e *Engine) { e.sink = s }
}

// NewEngine creates an engine over the given gate, capability backend
// and checkpoint service.
func NewEngine(cfg Config, gate *security.Gate, backend capability.Backend, ckpt checkpoint.Service, opts ...Option) *Engine {
	eng := &Engine{
		cfg:     cfg.withDefaults(),
		gate:    gate,
		backend: backend,
		ckpt:    ckpt,
		metrics: metrics.Global(),
		audit:   audit.Global(),
		log:     logging.New("orchestrator"),
		active:  make(map[string]*execution),
		done:    make(map[string]*ExecutionResult),
	}
	for _, opt := range opts {
		opt(eng)
	}
	return eng
}

// ExecOption configures a single submission.
type ExecOption func(*execution)

// WithProgress attaches a progress sink to the execution.
func WithProgress(sink ProgressSink) ExecOption {
	return func(e *execution) { e.progress = sink }
}

// Submit validates, gates and runs the plan to completion, returning
// its terminal result. Validation and policy failures return an error
// before any step runs.
func (eng *Engine) Submit(ctx context.Context, p *plan.Plan, userID string, opts ...ExecOption) (*ExecutionResult, error) {
	e, err := eng.admit(ctx, p, userID, opts...)
	if err != nil {
		return nil, err
	}
	return eng.run(e), nil
}

// Start is the asynchronous variant of Submit: it returns the execution
// ID immediately and runs the plan in the background. The result is
// retrievable via Status and Result.
func (eng *Engine) Start(ctx context.Context, p *plan.Plan, userID string, opts ...ExecOption) (string, error) {
	e, err := eng.admit(ctx, p, userID, opts...)
	if err != nil {
		return "", err
	}
	go eng.run(e)
	return e.id, nil
}

// admit validates the plan, runs the security pre-flight and registers
// the execution. Rejections here have zero side effects.
func (eng *Engine) admit(ctx context.Context, p *plan.Plan, userID string, opts ...ExecOption) (*execution, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}

	if err := eng.gate.Validate(p, userID); err != nil {
		eng.metrics.RecordBlocked()
		ev := eng.audit.Start(audit.CategorySecurity, "preflight")
		ev.PlanID = p.ID
		ev.UserID = userID
		ev.Complete(audit.StatusBlocked, err)
		eng.audit.Log(ev)
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	e := &execution{
		id:        "exec-" + uuid.NewString()[:8],
		plan:      p,
		userID:    userID,
		status:    ExecutionPending,
		records:   make(map[string]*StepRecord, len(p.Steps)),
		runCtx:    runCtx,
		cancelRun: cancel,
	}
	for i := range p.Steps {
		id := p.Steps[i].ID
		e.records[id] = &StepRecord{StepID: id, Status: StepWaiting}
	}
	for _, opt := range opts {
		opt(e)
	}

	eng.mu.Lock()
	eng.active[e.id] = e
	eng.mu.Unlock()

	eng.log.WithExecution(e.id).Info("execution_admitted", map[string]interface{}{
		"plan":  p.ID,
		"steps": len(p.Steps),
		"user":  userID,
	})
	return e, nil
}

// run drives the execution to a terminal state and finalizes it.
func (eng *Engine) run(e *execution) *ExecutionResult {
	e.mu.Lock()
	if e.result != nil || e.status.Terminal() {
		// Cancelled between admission and launch.
		e.mu.Unlock()
		return eng.finalize(e)
	}
	e.status = ExecutionRunning
	e.startedAt = time.Now()
	e.mu.Unlock()
	e.notify()

	eng.schedule(e)
	return eng.finalize(e)
}

// Status returns a snapshot for an active or finished execution.
func (eng *Engine) Status(id string) (Snapshot, error) {
	eng.mu.RLock()
	e := eng.active[id]
	res := eng.done[id]
	eng.mu.RUnlock()

	if e != nil {
		e.mu.Lock()
		snap := e.snapshotLocked()
		e.mu.Unlock()
		return snap, nil
	}
	if res != nil {
		return snapshotFromResult(res), nil
	}
	return Snapshot{}, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// Result returns the terminal result of a finished execution.
func (eng *Engine) Result(id string) (*ExecutionResult, error) {
	eng.mu.RLock()
	res := eng.done[id]
	eng.mu.RUnlock()

	if res == nil {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return res, nil
}

// Cancel requests cooperative cancellation of an active execution. It
// returns true exactly once per execution: repeat calls and calls on
// finished or unknown executions return false. Running steps are
// signalled through their context; work already completed is kept.
func (eng *Engine) Cancel(id string) bool {
	eng.mu.RLock()
	e := eng.active[id]
	eng.mu.RUnlock()
	if e == nil {
		return false
	}

	e.mu.Lock()
	if e.result != nil || e.status.Terminal() {
		e.mu.Unlock()
		return false
	}
	e.status = ExecutionCancelled
	e.failReason = "cancelled by caller"
	e.mu.Unlock()

	e.cancelRun()
	eng.finalize(e)
	eng.log.WithExecution(id).Info("execution_cancelled", nil)
	return true
}

// PerformanceMetrics returns the engine's aggregate counters.
func (eng *Engine) PerformanceMetrics() PerformanceSummary {
	m := eng.metrics
	return PerformanceSummary{
		Executions:       m.Executions.Load(),
		Completed:        m.Completed.Load(),
		Failed:           m.Failed.Load(),
		Cancelled:        m.Cancelled.Load(),
		EmergencyStopped: m.EmergencyStopped.Load(),
		Blocked:          m.Blocked.Load(),
		StepsRun:         m.StepsRun.Load(),
		StepRetries:      m.StepRetries.Load(),
		StepFailures:     m.StepFailures.Load(),
		AvgDurationMs:    m.AvgDurationMs(),
	}
}

// finalize builds the terminal result exactly once, moves the
// execution out of the registry and records metrics, audit and
// history. Safe to call from both the scheduler and Cancel.
func (eng *Engine) finalize(e *execution) *ExecutionResult {
	e.mu.Lock()
	if e.result != nil {
		res := e.result
		e.mu.Unlock()
		return res
	}
	if !e.status.Terminal() {
		e.status = ExecutionFailed
	}

	now := time.Now()
	for _, rec := range e.records {
		if !rec.Status.Terminal() {
			rec.Status = StepSkipped
			if !rec.StartedAt.IsZero() && rec.FinishedAt.IsZero() {
				rec.FinishedAt = now
			}
		}
	}

	res := &ExecutionResult{
		ExecutionID: e.id,
		PlanID:      e.plan.ID,
		Status:      e.status,
		TotalSteps:  len(e.plan.Steps),
		StartedAt:   e.startedAt,
		FinishedAt:  now,
		MaxParallel: eng.cfg.MaxParallelSteps,
	}
	if !e.startedAt.IsZero() {
		res.Duration = now.Sub(e.startedAt)
	}

	var failures []string
	for i := range e.plan.Steps {
		rec := e.records[e.plan.Steps[i].ID]
		res.Records = append(res.Records, *rec)
		if rec.Attempts > 1 {
			res.TotalRetries += rec.Attempts - 1
		}
		switch rec.Status {
		case StepCompleted:
			res.CompletedSteps++
		case StepFailed:
			res.FailedSteps++
			failures = append(failures, fmt.Sprintf("step %s: %s", rec.StepID, rec.LastError))
		case StepSkipped:
			res.SkippedSteps++
		}
	}

	switch {
	case e.failReason != "":
		res.ErrorSummary = e.failReason
	case len(failures) > 0:
		res.ErrorSummary = strings.Join(failures, "; ")
	}

	e.result = res
	e.mu.Unlock()

	e.cancelRun()

	eng.mu.Lock()
	delete(eng.active, e.id)
	eng.done[e.id] = res
	eng.mu.Unlock()

	eng.metrics.RecordExecution(string(res.Status), res.Duration)

	ev := eng.audit.Start(audit.CategoryExecution, "finalize")
	ev.ExecutionID = e.id
	ev.PlanID = e.plan.ID
	ev.UserID = e.userID
	ev.Details = map[string]any{
		"status":    string(res.Status),
		"completed": res.CompletedSteps,
		"failed":    res.FailedSteps,
		"skipped":   res.SkippedSteps,
	}
	ev.Complete(auditStatus(res.Status), nil)
	if res.ErrorSummary != "" {
		ev.ErrorMessage = res.ErrorSummary
	}
	eng.audit.Log(ev)

	if eng.sink != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := eng.sink.Append(ctx, res); err != nil {
			eng.log.WithExecution(e.id).Warn("history_append_failed", nil, err)
		}
		cancel()
	}

	eng.log.WithExecution(e.id).Info("execution_finalized", map[string]interface{}{
		"status":    string(res.Status),
		"completed": res.CompletedSteps,
		"failed":    res.FailedSteps,
		"skipped":   res.SkippedSteps,
		"retries":   res.TotalRetries,
	})

	e.notify()
	return res
}

func auditStatus(s ExecutionStatus) audit.Status {
	switch s {
	case ExecutionCompleted:
		return audit.StatusSuccess
	case ExecutionEmergencyStopped:
		return audit.StatusStopped
	default:
		return audit.StatusError
	}
}

func snapshotFromResult(res *ExecutionResult) Snapshot {
	return Snapshot{
		ExecutionID: res.ExecutionID,
		PlanID:      res.PlanID,
		Status:      res.Status,
		Total:       res.TotalSteps,
		Completed:   res.CompletedSteps,
		Failed:      res.FailedSteps,
		Skipped:     res.SkippedSteps,
		Elapsed:     res.Duration,
	}
}
