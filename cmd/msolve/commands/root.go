package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	// Global flags
	policyDirs  []string
	environment string
	verbose     bool
	jsonOutput  bool

	// Version published to telemetry, set by Execute.
	appVersion string
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	appVersion = version
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "msolve",
		Short: "macrosolve - regime-switching state-space solver",
		Long: `macrosolve computes rational-expectations transition solutions for
linear state-space models with Markov-switching policy regimes.

Features:
  - Model files in YAML or CUE, with Starlark generator scripts
  - Single-regime and regime-switching gensys solves
  - Temporary-policy windows with credibility-weighted lift-off
  - Policy guardrails via OPA/rego
  - SQLite-backed solution cache keyed by conditions content`,
		Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
	}

	// Persistent flags available to all commands
	rootCmd.PersistentFlags().StringSliceVar(&policyDirs, "policy-dir", nil, "extra guardrail policy files or directories")
	rootCmd.PersistentFlags().StringVar(&environment, "env", "development", "deployment environment")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output in JSON format")

	// Add subcommands
	rootCmd.AddCommand(newSolveCommand())
	rootCmd.AddCommand(newValidateCommand())
	rootCmd.AddCommand(newWatchCommand())
	rootCmd.AddCommand(newRunsCommand())

	return rootCmd
}
