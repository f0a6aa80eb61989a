// Package metrics provides a simple Prometheus-compatible metrics endpoint.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"sync"
	"sync/atomic"
	"time"
)

// Metrics holds runtime performance counters for the orchestrator.
// These are the only cross-execution shared mutable state.
type Metrics struct {
	// Execution outcomes
	Executions       atomic.Int64
	Completed        atomic.Int64
	Failed           atomic.Int64
	Cancelled        atomic.Int64
	EmergencyStopped atomic.Int64
	Blocked          atomic.Int64

	// Step-level counters
	StepsRun     atomic.Int64
	StepRetries  atomic.Int64
	StepFailures atomic.Int64

	// Moving average execution duration (ms), updated on finalize
	avgMu         sync.Mutex
	avgDurationMs float64

	startTime time.Time
}

var (
	global     *Metrics
	globalOnce sync.Once
)

// Global returns the global metrics instance
func Global() *Metrics {
	globalOnce.Do(func() {
		global = &Metrics{startTime: time.Now()}
	})
	return global
}

// RecordExecution records a terminal execution outcome.
func (m *Metrics) RecordExecution(status string, duration time.Duration) {
	m.Executions.Add(1)
	switch status {
	case "completed":
		m.Completed.Add(1)
	case "failed":
		m.Failed.Add(1)
	case "cancelled":
		m.Cancelled.Add(1)
	case "emergency_stopped":
		m.EmergencyStopped.Add(1)
	}

	m.avgMu.Lock()
	n := float64(m.Executions.Load())
	m.avgDurationMs += (float64(duration.Milliseconds()) - m.avgDurationMs) / n
	m.avgMu.Unlock()
}

// RecordBlocked records a submission rejected by the security gate.
func (m *Metrics) RecordBlocked() {
	m.Blocked.Add(1)
}

// RecordStep records one step outcome and its retry count.
func (m *Metrics) RecordStep(success bool, retries int) {
	m.StepsRun.Add(1)
	m.StepRetries.Add(int64(retries))
	if !success {
		m.StepFailures.Add(1)
	}
}

// AvgDurationMs returns the moving average execution duration.
func (m *Metrics) AvgDurationMs() float64 {
	m.avgMu.Lock()
	defer m.avgMu.Unlock()
	return m.avgDurationMs
}

// Handler returns an HTTP handler for the /metrics endpoint
func (m *Metrics) Handler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4")

		uptime := time.Since(m.startTime).Seconds()

		fmt.Fprintf(w, "# HELP flowctl_uptime_seconds Time since flowctl started\n")
		fmt.Fprintf(w, "# TYPE flowctl_uptime_seconds gauge\n")
		fmt.Fprintf(w, "flowctl_uptime_seconds %.2f\n\n", uptime)

		fmt.Fprintf(w, "# HELP flowctl_executions_total Total plan executions\n")
		fmt.Fprintf(w, "# TYPE flowctl_executions_total counter\n")
		fmt.Fprintf(w, "flowctl_executions_total %d\n\n", m.Executions.Load())

		fmt.Fprintf(w, "# HELP flowctl_executions_completed_total Executions that completed\n")
		fmt.Fprintf(w, "# TYPE flowctl_executions_completed_total counter\n")
		fmt.Fprintf(w, "flowctl_executions_completed_total %d\n\n", m.Completed.Load())

		fmt.Fprintf(w, "# HELP flowctl_executions_failed_total Executions that failed\n")
		fmt.Fprintf(w, "# TYPE flowctl_executions_failed_total counter\n")
		fmt.Fprintf(w, "flowctl_executions_failed_total %d\n\n", m.Failed.Load())

		fmt.Fprintf(w, "# HELP flowctl_executions_cancelled_total Executions cancelled by the caller\n")
		fmt.Fprintf(w, "# TYPE flowctl_executions_cancelled_total counter\n")
		fmt.Fprintf(w, "flowctl_executions_cancelled_total %d\n\n", m.Cancelled.Load())

		fmt.Fprintf(w, "# HELP flowctl_executions_stopped_total Executions halted by emergency stop\n")
		fmt.Fprintf(w, "# TYPE flowctl_executions_stopped_total counter\n")
		fmt.Fprintf(w, "flowctl_executions_stopped_total %d\n\n", m.EmergencyStopped.Load())

		fmt.Fprintf(w, "# HELP flowctl_submissions_blocked_total Submissions rejected by the security gate\n")
		fmt.Fprintf(w, "# TYPE flowctl_submissions_blocked_total counter\n")
		fmt.Fprintf(w, "flowctl_submissions_blocked_total %d\n\n", m.Blocked.Load())

		fmt.Fprintf(w, "# HELP flowctl_steps_total Total step invocations started\n")
		fmt.Fprintf(w, "# TYPE flowctl_steps_total counter\n")
		fmt.Fprintf(w, "flowctl_steps_total %d\n\n", m.StepsRun.Load())

		fmt.Fprintf(w, "# HELP flowctl_step_retries_total Total step retry attempts\n")
		fmt.Fprintf(w, "# TYPE flowctl_step_retries_total counter\n")
		fmt.Fprintf(w, "flowctl_step_retries_total %d\n\n", m.StepRetries.Load())

		fmt.Fprintf(w, "# HELP flowctl_step_failures_total Steps that exhausted their retries\n")
		fmt.Fprintf(w, "# TYPE flowctl_step_failures_total counter\n")
		fmt.Fprintf(w, "flowctl_step_failures_total %d\n\n", m.StepFailures.Load())

		fmt.Fprintf(w, "# HELP flowctl_avg_execution_duration_ms Moving average execution duration\n")
		fmt.Fprintf(w, "# TYPE flowctl_avg_execution_duration_ms gauge\n")
		fmt.Fprintf(w, "flowctl_avg_execution_duration_ms %.2f\n", m.AvgDurationMs())
	}
}

// Server wraps the metrics HTTP server
type Server struct {
	srv *http.Server
}

// NewServer creates a metrics server on the given port
func NewServer(port int) *Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/metrics", Global().Handler())
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	return &Server{
		srv: &http.Server{
			Addr:    fmt.Sprintf(":%d", port),
			Handler: mux,
		},
	}
}

// Start starts the metrics server in background
func (s *Server) Start() error {
	go s.srv.ListenAndServe()
	return nil
}

// Stop gracefully shuts down the metrics server
func (s *Server) Stop(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
