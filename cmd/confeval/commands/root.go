package commands

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

// Execute runs the root command
func Execute(ctx context.Context, version, commit, buildDate string) error {
	rootCmd := newRootCommand(version, commit, buildDate)
	return rootCmd.ExecuteContext(ctx)
}

func newRootCommand(version, commit, buildDate string) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "confeval",
		Short: "confeval - schema-driven configuration evaluator",
		Long: `confeval evaluates schema declarations and instance configs into
plain YAML or JSON.

Features:
  - Schemas with single inheritance, mixins and check expressions
  - Starlark expressions for defaults, statements and checks
  - Union, override, add and subtract merge operators
  - CUE overlays with constraint definitions
  - Rego policies over evaluated instances
  - Evaluation history in SQLite
  - Caret diagnostics with file, line and column`,
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, buildDate),
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file path (default ./confeval.yaml)")
	rootCmd.PersistentFlags().BoolP("verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().String("log-level", "warn", "evaluation log level (trace, debug, info, warn, error, disabled)")

	rootCmd.AddCommand(newEvalCommand(version))
	rootCmd.AddCommand(newValidateCommand(version))
	rootCmd.AddCommand(newSchemasCommand())
	rootCmd.AddCommand(newHistoryCommand())

	return rootCmd
}
