// Package main administrative commands: status, history, stop, metrics.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"time"

	"github.com/spf13/cobra"

	"github.com/joss/flowctl/internal/config"
	"github.com/joss/flowctl/internal/metrics"
	"github.com/joss/flowctl/internal/render"
	"github.com/joss/flowctl/internal/security"
)

func statusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <execution-id>",
		Short: "Show a finished execution",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			hist, err := openHistory()
			if err != nil {
				fatalError(err)
			}
			defer hist.Close()

			res, err := hist.Get(context.Background(), args[0])
			if err != nil {
				fatalError(err)
			}

			r := render.New(pretty)
			fmt.Print(r.Result(res))
		},
	}
}

func historyCmd() *cobra.Command {
	var limit int
	var planID string

	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show past executions",
		Run: func(cmd *cobra.Command, args []string) {
			hist, err := openHistory()
			if err != nil {
				fatalError(err)
			}
			defer hist.Close()

			ctx := context.Background()
			results, err := hist.Recent(ctx, limit)
			if planID != "" {
				results, err = hist.ForPlan(ctx, planID)
			}
			if err != nil {
				fatalError(err)
			}

			r := render.New(pretty)
			fmt.Print(r.History(results))
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of executions to show")
	cmd.Flags().StringVar(&planID, "plan", "", "Filter by plan ID")
	return cmd
}

func stopCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Trip or clear the emergency stop",
		Long: `Trip the emergency stop. Running flowctl processes observe the flag
file once per scheduler iteration: no new step launches, in-flight
steps finish, executions terminate as emergency_stopped. New
submissions are rejected until the flag is cleared.`,
		Run: func(cmd *cobra.Command, args []string) {
			paths := config.GetPaths()
			if err := config.EnsureDir(paths.Home); err != nil {
				fatalError(err)
			}
			sw := security.NewFileSwitch(paths.StopFile)

			if clear {
				if err := sw.Reset(); err != nil {
					fatalError(err)
				}
				fmt.Println("Emergency stop cleared")
				return
			}

			if err := sw.Activate(); err != nil {
				fatalError(err)
			}
			fmt.Printf("Emergency stop active (%s)\n", paths.StopFile)
			fmt.Println("Clear with: flowctl stop --clear")
		},
	}

	cmd.Flags().BoolVar(&clear, "clear", false, "Clear the emergency stop")
	return cmd
}

func metricsCmd() *cobra.Command {
	var port int

	cmd := &cobra.Command{
		Use:   "metrics",
		Short: "Serve the Prometheus metrics endpoint",
		Long: `Serve /metrics and /health until interrupted. Counters reflect the
executions run by this process; use 'flowctl run --metrics-port' to
scrape a run directly.`,
		Run: func(cmd *cobra.Command, args []string) {
			srv := metrics.NewServer(port)
			if err := srv.Start(); err != nil {
				fatalError(err)
			}
			fmt.Printf("Serving metrics on :%d/metrics\n", port)

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
			defer stop()
			<-ctx.Done()

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Stop(shutdownCtx)
		},
	}

	cmd.Flags().IntVar(&port, "port", 9090, "Listen port")
	return cmd
}
