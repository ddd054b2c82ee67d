// Package telemetry provides logging, tracing and metrics for evaluation
// hosts.
//
// The package bundles structured logging (zerolog), tracing (OpenTelemetry)
// and Prometheus metrics behind one Telemetry value that an evaluation
// context receives through schema.Options. A nil bundle is replaced with
// NopTelemetry, so library callers pay nothing unless they opt in.
//
// # Usage
//
//	cfg := telemetry.DefaultConfig()
//	cfg.Metrics.Enabled = true
//	cfg.Tracing.Enabled = true
//	cfg.Tracing.Exporter = "stdout"
//
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
//	go tel.Metrics.Serve(ctx)
//
//	out, err := program.Evaluate(ctx, schema.Options{Telemetry: tel})
//
// # Logging
//
// Loggers are derived per component and carry the evaluation id and the
// schema under construction:
//
//	logger := tel.Logger.NewComponentLogger("schema").WithEvalID(id)
//	logger.WithSchema("Server", 3).Debug("instance finished")
//
// Levels: trace, debug, info, warn, error, disabled.
//
// # Tracing
//
// Every evaluation context opens a confeval.evaluate span and every
// instantiation a nested schema.instantiate span carrying the schema name
// and depth. Exporters: "stdout", "otlp" (gRPC) and "none".
//
// # Metrics
//
// Metrics live on a private registry and are exposed by Metrics.Serve at
// Config.Metrics.Path:
//
//   - confeval_evaluations_total{status}
//   - confeval_instantiations_total{schema,status}
//   - confeval_instantiation_duration_seconds{schema}
//   - confeval_errors_total{kind}
//   - confeval_attribute_backtracks_total
package telemetry
