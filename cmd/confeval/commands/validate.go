package commands

import (
	"context"
	"fmt"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/openfroyo/confeval/pkg/diag"
	"github.com/openfroyo/confeval/pkg/telemetry"
)

func newValidateCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate <declarations.yaml>",
		Short: "Check declarations without printing instances",
		Long: `Evaluate every instance and report all errors.

This command checks:
  - YAML structure and declaration fields
  - Expression syntax of defaults, statements and checks
  - Inheritance and mixin rules
  - Attribute types, required attributes and index signatures
  - Schema checks and CUE constraint definitions
  - Rego policies given with --policy or --builtin-policies`,
		Example: `  # Validate a declaration file
  confeval validate app.yaml

  # Validate with an overlay
  confeval validate app.yaml --cue prod.cue

  # Validate against policies
  confeval validate app.yaml --policy policies/`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runValidate(cmd.Context(), cfg, version, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addEvaluationFlags(cmd.Flags())

	return cmd
}

func runValidate(ctx context.Context, cfg *Config, version, path string, stdout, stderr io.Writer) error {
	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	hist, err := openHistory(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer hist.Close()

	opts := cfg.Options(tel)
	runID := hist.start(ctx, "validate", path, diag.CollectAll)
	instances := 0
	err = func() error {
		p, err := compile(ctx, path, cfg, tel.Logger)
		if err != nil {
			return err
		}
		instances = len(p.Instances)
		return p.Validate(ctx, opts)
	}()
	hist.finish(ctx, runID, instances, err)
	if err != nil {
		return report(stderr, err)
	}

	fmt.Fprintf(stdout, "%s: %d instance(s) valid\n", path, instances)
	return nil
}
