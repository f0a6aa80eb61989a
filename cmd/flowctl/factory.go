package main

import (
	"fmt"

	"github.com/joss/flowctl/internal/audit"
	"github.com/joss/flowctl/internal/capability"
	"github.com/joss/flowctl/internal/checkpoint"
	"github.com/joss/flowctl/internal/config"
	"github.com/joss/flowctl/internal/graph"
	"github.com/joss/flowctl/internal/history"
	"github.com/joss/flowctl/internal/orchestrator"
	"github.com/joss/flowctl/internal/security"
)

// runtime bundles the wired engine and its backing services for one
// CLI invocation.
type runtime struct {
	engine  *orchestrator.Engine
	history *history.Store
	stop    *security.FileSwitch

	closers []func() error
}

// buildRuntime wires the full stack: whitelist gate over the file-based
// stop switch, sqlite-backed capability store, checkpoints and history,
// and best-effort graph persistence for the audit trail.
func buildRuntime(cfg orchestrator.Config, allow []string) (*runtime, error) {
	paths := config.GetPaths()
	for _, dir := range []string{paths.Home, paths.Data, paths.Sandbox} {
		if err := config.EnsureDir(dir); err != nil {
			return nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}

	rt := &runtime{stop: security.NewFileSwitch(paths.StopFile)}

	whitelist := security.DefaultWhitelist()
	whitelist.Add(allow...)
	gate := security.NewGate(whitelist, rt.stop)

	capStore, err := capability.OpenStore(paths.Data)
	if err != nil {
		return nil, fmt.Errorf("capability store: %w", err)
	}
	rt.closers = append(rt.closers, capStore.Close)

	web := capability.NewWebBackend()
	rt.closers = append(rt.closers, web.Close)

	router := &capability.Router{
		File:     capability.NewFileBackend(paths.Sandbox),
		Web:      web,
		Calendar: capability.NewCalendarBackend(capStore),
		Task:     capability.NewTaskBackend(capStore),
	}

	ckpt, err := checkpoint.OpenSQLite(paths.Data)
	if err != nil {
		return nil, fmt.Errorf("checkpoint store: %w", err)
	}
	rt.closers = append(rt.closers, ckpt.Close)

	hist, err := history.Open(paths.Data)
	if err != nil {
		return nil, fmt.Errorf("history store: %w", err)
	}
	rt.history = hist
	rt.closers = append(rt.closers, hist.Close)

	// Audit events always go to stderr; the graph store is optional and
	// its absence degrades silently.
	var auditOpts []audit.LoggerOption
	if db := graph.ConnectWithRetry(1); db != nil {
		auditOpts = append(auditOpts, audit.WithStore(audit.NewStore(db)))
		rt.closers = append(rt.closers, db.Close)
	}
	auditLogger := audit.NewLogger(auditOpts...)
	audit.SetGlobal(auditLogger)

	rt.engine = orchestrator.NewEngine(cfg, gate, router, ckpt,
		orchestrator.WithAudit(auditLogger),
		orchestrator.WithResultSink(hist),
	)
	return rt, nil
}

// Close releases all backing services in reverse acquisition order.
func (rt *runtime) Close() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i]()
	}
}

// openHistory opens just the history store, for read-only commands.
func openHistory() (*history.Store, error) {
	paths := config.GetPaths()
	if err := config.EnsureDir(paths.Data); err != nil {
		return nil, err
	}
	return history.Open(paths.Data)
}
