package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/joss/flowctl/internal/config"
	"github.com/joss/flowctl/internal/metrics"
	"github.com/joss/flowctl/internal/orchestrator"
	"github.com/joss/flowctl/internal/plan"
	"github.com/joss/flowctl/internal/render"
	"github.com/joss/flowctl/internal/tui"
)

func runCmd() *cobra.Command {
	var (
		watch       bool
		user        string
		parallel    int
		allow       []string
		metricsPort int
	)

	cmd := &cobra.Command{
		Use:   "run <plan.yaml>",
		Short: "Execute a plan",
		Long: `Execute a plan file: dependency-ordered steps with bounded
parallelism, retry with backoff and checkpoint rollback.

The plan is validated and checked against the operation whitelist
before any step runs. Ctrl+C cancels cooperatively: in-flight steps
are signalled, completed work is kept.

Examples:
  flowctl run plan.yaml
  flowctl run plan.yaml --watch
  flowctl run plan.yaml --parallel 8 --allow "file:delete"`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := plan.Load(args[0])
			if err != nil {
				fatalError(err)
			}
			if cycle := p.FindCycle(); cycle != nil {
				fmt.Fprintf(os.Stderr, "Warning: dependency cycle %s, execution will fail\n",
					strings.Join(cycle, " -> "))
			}

			cfg := orchestrator.ConfigFromEnv()
			if parallel > 0 {
				cfg.MaxParallelSteps = parallel
			}

			rt, err := buildRuntime(cfg, allow)
			if err != nil {
				fatalError(err)
			}
			defer rt.Close()

			if user == "" {
				user = config.Env().UserID
			}

			if metricsPort > 0 {
				srv := metrics.NewServer(metricsPort)
				srv.Start()
				defer func() {
					ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
					defer cancel()
					srv.Stop(ctx)
				}()
			}

			r := render.New(pretty)
			var res *orchestrator.ExecutionResult
			if watch {
				res, err = runWatched(rt, p, user)
			} else {
				res, err = runPlain(rt, p, user, r)
			}
			if err != nil {
				fatalError(err)
			}

			fmt.Print(r.Result(res))
			if res.Status != orchestrator.ExecutionCompleted {
				os.Exit(1)
			}
		},
	}

	cmd.Flags().BoolVarP(&watch, "watch", "w", false, "Show the live progress monitor")
	cmd.Flags().StringVarP(&user, "user", "u", "", "Submitting user (default from FLOWCTL_USER)")
	cmd.Flags().IntVarP(&parallel, "parallel", "p", 0, "Max parallel steps (default from FLOWCTL_MAX_PARALLEL)")
	cmd.Flags().StringSliceVar(&allow, "allow", nil, "Extra whitelist patterns (e.g. \"file:delete\")")
	cmd.Flags().IntVar(&metricsPort, "metrics-port", 0, "Serve /metrics on this port during the run")

	return cmd
}

// runWatched executes asynchronously behind the TUI monitor.
func runWatched(rt *runtime, p *plan.Plan, user string) (*orchestrator.ExecutionResult, error) {
	sink := orchestrator.NewChannelSink(64)
	id, err := rt.engine.Start(context.Background(), p, user, orchestrator.WithProgress(sink))
	if err != nil {
		return nil, err
	}

	if err := tui.Watch(id, sink, func() bool { return rt.engine.Cancel(id) }); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: monitor failed: %v\n", err)
	}

	// The monitor quits on the terminal snapshot; the result may land in
	// the registry a moment later.
	deadline := time.Now().Add(5 * time.Second)
	for {
		res, err := rt.engine.Result(id)
		if err == nil {
			return res, nil
		}
		if time.Now().After(deadline) {
			return nil, err
		}
		time.Sleep(20 * time.Millisecond)
	}
}

// runPlain executes synchronously with a one-line progress ticker on
// interactive terminals.
func runPlain(rt *runtime, p *plan.Plan, user string, r *render.Renderer) (*orchestrator.ExecutionResult, error) {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	var opts []orchestrator.ExecOption
	interactive := term.IsTerminal(int(os.Stderr.Fd()))
	if interactive {
		opts = append(opts, orchestrator.WithProgress(orchestrator.NewFuncSink(func(s orchestrator.Snapshot) {
			fmt.Fprintf(os.Stderr, "\r\033[K%s", r.Progress(s))
		})))
	}

	res, err := rt.engine.Submit(ctx, p, user, opts...)
	if interactive {
		fmt.Fprintln(os.Stderr)
	}
	return res, err
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <plan.yaml>",
		Short: "Validate a plan file without executing it",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			p, err := plan.Load(args[0])
			if err != nil {
				fatalError(err)
			}

			fmt.Printf("Plan %s: %d steps", p.ID, len(p.Steps))
			if est := p.TotalEstimate(); est > 0 {
				fmt.Printf(", estimated %s", render.FormatDuration(est))
			}
			fmt.Println()

			if cycle := p.FindCycle(); cycle != nil {
				fmt.Fprintf(os.Stderr, "Warning: dependency cycle %s\n", strings.Join(cycle, " -> "))
				os.Exit(1)
			}
			fmt.Println("OK")
		},
	}
}
