package commands

import (
	"context"
	"io"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/openfroyo/confeval/pkg/decl"
	"github.com/openfroyo/confeval/pkg/telemetry"
	"github.com/openfroyo/confeval/pkg/value"
)

func addEvaluationFlags(flags *pflag.FlagSet) {
	flags.StringSlice("cue", nil, "CUE overlay file or package directory (repeatable)")
	flags.StringSlice("policy", nil, "Rego policy file or directory (repeatable)")
	flags.String("policy-data", "", "YAML or JSON document published to policies as data")
	flags.Bool("builtin-policies", false, "enable the built-in policies")
	flags.String("history", "", "record runs in this history database")
	flags.Bool("include-none", false, "keep None attributes in the output")
	flags.Int("max-depth", 0, "maximum nested instantiation depth")
	flags.Uint64("max-steps", 0, "execution step budget per expression (0 = unlimited)")
	flags.String("metrics-addr", "", "serve Prometheus metrics on this address")
	flags.String("trace", "none", "trace exporter (none, stdout, otlp)")
	flags.String("trace-endpoint", "", "OTLP collector endpoint")
}

func newEvalCommand(version string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "eval <declarations.yaml>",
		Short: "Evaluate declared instances",
		Long: `Evaluate every instance of a declaration file and print the result.

Overlays given with --cue are unioned into the instance configs they name
and their #Schema definitions constrain the evaluated instances. Rego
policies given with --policy run against every evaluated instance; error
and critical findings fail the evaluation, warnings are logged.`,
		Example: `  # Evaluate to YAML
  confeval eval app.yaml

  # Apply an overlay and print JSON
  confeval eval app.yaml --cue prod.cue -o json

  # Enforce policies
  confeval eval app.yaml --policy policies/ --builtin-policies

  # Report every error instead of stopping at the first
  confeval eval app.yaml --collect-all

  # Re-evaluate on every change and expose metrics
  confeval eval app.yaml --watch --metrics-addr :9090`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := LoadConfig(cmd.Flags())
			if err != nil {
				return err
			}
			return runEval(cmd.Context(), cfg, version, args[0], cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}

	addEvaluationFlags(cmd.Flags())
	cmd.Flags().StringP("output", "o", "yaml", "output format (yaml, json)")
	cmd.Flags().Bool("collect-all", false, "collect every error instead of stopping at the first")
	cmd.Flags().BoolP("watch", "w", false, "re-evaluate when declaration, overlay or policy files change")

	return cmd
}

func runEval(ctx context.Context, cfg *Config, version, path string, stdout, stderr io.Writer) error {
	tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(version))
	if err != nil {
		return err
	}
	defer func() {
		if err := tel.Shutdown(context.Background()); err != nil {
			log.Warn().Err(err).Msg("Telemetry shutdown failed")
		}
	}()

	if cfg.MetricsAddr != "" {
		go func() {
			if err := tel.Metrics.Serve(ctx); err != nil {
				log.Error().Err(err).Str("addr", cfg.MetricsAddr).Msg("Metrics server failed")
			}
		}()
	}

	log.Debug().
		Str("path", path).
		Strs("cue", cfg.CUE).
		Str("config", cfg.File).
		Bool("collect_all", cfg.CollectAll).
		Msg("Evaluating declarations")

	hist, err := openHistory(ctx, cfg.History)
	if err != nil {
		return err
	}
	defer hist.Close()

	opts := cfg.Options(tel)
	evaluate := func(ctx context.Context) error {
		runID := hist.start(ctx, "eval", path, opts.Mode)
		instances := 0
		err := func() error {
			p, err := compile(ctx, path, cfg, tel.Logger)
			if err != nil {
				return err
			}
			instances = len(p.Instances)
			out, err := p.Evaluate(ctx, opts)
			if err != nil {
				return err
			}
			return render(stdout, value.FromDict(out), cfg.Output, cfg.IncludeNone)
		}()
		hist.finish(ctx, runID, instances, err)
		if err != nil {
			return report(stderr, err)
		}
		return nil
	}

	if !cfg.Watch {
		return evaluate(ctx)
	}

	if err := evaluate(ctx); err != nil && err != errReported {
		return err
	}
	watched := append(append([]string{path}, cfg.CUE...), cfg.Policy...)
	if cfg.PolicyData != "" {
		watched = append(watched, cfg.PolicyData)
	}
	w, err := decl.NewWatcher(watched, tel.Logger)
	if err != nil {
		return err
	}
	return w.Run(ctx, evaluate)
}

// compile loads a declaration file, applies the overlays in order and
// attaches the policy engine when policies are configured.
func compile(ctx context.Context, path string, cfg *Config, logger *telemetry.Logger) (*decl.Program, error) {
	p, err := decl.LoadFile(path)
	if err != nil {
		return nil, err
	}
	for _, o := range cfg.CUE {
		overlay, err := decl.LoadCUE(o)
		if err != nil {
			return nil, err
		}
		if err := p.Apply(overlay); err != nil {
			return nil, err
		}
	}

	engine, err := policyEngine(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	if engine != nil {
		p.Constrain(engine)
	}
	return p, nil
}
