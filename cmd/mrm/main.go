package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var (
	version = "0.1.0-dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "mrm",
		Short: "Batched MDP rollout simulator",
		Long: `mrm simulates batched rollouts of a policy through a stochastic
transition model and tunes the policy by gated random search.

Runs are recorded in a SQLite database and can be exported as replay
fixtures that pin every seed of the run.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "YAML config file (defaults are used when empty)")
	rootCmd.PersistentFlags().String("db", "", "run database path (overrides config and MRM_DB)")
	rootCmd.PersistentFlags().String("log-level", "", "warn, info, debug or trace (overrides config)")
	rootCmd.PersistentFlags().Bool("json", false, "Output as JSON")

	rootCmd.AddCommand(
		newVersionCmd(),
		newSimulateCmd(),
		newTrainCmd(),
		newRunsCmd(),
		newReplayCmd(),
		newServePolicyCmd(),
	)
	return rootCmd
}
