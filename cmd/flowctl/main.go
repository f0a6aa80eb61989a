// Package main provides the flowctl CLI entrypoint.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0"
	pretty  = true
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "flowctl",
		Short: "Dependency-aware plan execution orchestrator",
		Long: `flowctl executes declarative multi-step plans produced by an upstream
planner: dependency ordering, bounded parallelism, per-step retry with
checkpoint rollback, whitelist gating and an emergency stop.

Usage:
  flowctl run plan.yaml        Execute a plan
  flowctl run plan.yaml -w     Execute with the live monitor
  flowctl history              Show past executions
  flowctl stop                 Trip the emergency stop`,
	}

	rootCmd.PersistentFlags().BoolVar(&pretty, "pretty", true, "Pretty print output")

	rootCmd.AddCommand(
		runCmd(),
		validateCmd(),
		statusCmd(),
		historyCmd(),
		stopCmd(),
		metricsCmd(),
		versionCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show flowctl version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("flowctl version %s\n", version)
		},
	}
}

func fatalError(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
