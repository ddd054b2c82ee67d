package telemetry

import (
	"bytes"
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		modify  func(*Config)
		wantErr string
	}{
		{name: "default", modify: func(*Config) {}},
		{name: "no service", modify: func(c *Config) { c.ServiceName = "" }, wantErr: "service name is required"},
		{name: "bad level", modify: func(c *Config) { c.Logging.Level = "loud" }, wantErr: "invalid log level"},
		{name: "bad format", modify: func(c *Config) { c.Logging.Format = "xml" }, wantErr: "invalid log format"},
		{
			name: "bad exporter",
			modify: func(c *Config) {
				c.Tracing.Enabled = true
				c.Tracing.Exporter = "jaeger"
			},
			wantErr: "invalid trace exporter",
		},
		{name: "bad sampling", modify: func(c *Config) { c.Tracing.SamplingRate = 2 }, wantErr: "sampling rate"},
		{
			name: "metrics without address",
			modify: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.ListenAddress = ""
			},
			wantErr: "listen address is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.modify(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			assert.ErrorContains(t, err, tt.wantErr)
		})
	}
}

func TestLogger_Fields(t *testing.T) {
	var buf bytes.Buffer
	logger := NewLoggerTo(&buf, LoggingConfig{Level: "debug", Format: "json"})

	logger.NewComponentLogger("schema").WithEvalID("e1").WithSchema("Server", 4).
		WithError(errors.New("boom")).Debug("failed")

	out := buf.String()
	for _, want := range []string{`"component":"schema"`, `"eval_id":"e1"`, `"schema":"Server"`, `"instance_id":4`, `"error":"boom"`, `"message":"failed"`} {
		assert.Contains(t, out, want)
	}

	buf.Reset()
	logger.Trace("hidden")
	assert.Empty(t, buf.String())
	assert.False(t, logger.Enabled(ParseLevel("trace")))
	assert.True(t, logger.Enabled(ParseLevel("warn")))
}

func TestLogger_Context(t *testing.T) {
	logger := NewLoggerTo(&bytes.Buffer{}, LoggingConfig{Level: "info", Format: "json"})
	ctx := logger.WithContext(context.Background())
	assert.Same(t, logger, FromContext(ctx))
	assert.NotNil(t, FromContext(context.Background()))

	tel := NopTelemetry()
	ctx = tel.WithContext(context.Background())
	assert.Same(t, tel, FromTelemetryContext(ctx))
	assert.Nil(t, FromTelemetryContext(context.Background()))
}

func TestMetrics_Record(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "confeval"})
	require.NoError(t, err)

	m.RecordEvaluation("success")
	m.RecordEvaluation("failure")
	m.RecordEvaluation("failure")
	m.RecordInstantiation("Server", "success", 3*time.Millisecond)
	m.RecordError("TypeMismatch")
	m.RecordBacktrack()
	m.RecordBacktrack()

	assert.Equal(t, 2.0, testutil.ToFloat64(m.evaluations.WithLabelValues("failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.instantiations.WithLabelValues("Server", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.errorsByKind.WithLabelValues("TypeMismatch")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.backtracks))

	expected := `
# HELP confeval_attribute_backtracks_total Attribute reads resolved on demand before their declaration position
# TYPE confeval_attribute_backtracks_total counter
confeval_attribute_backtracks_total 2
`
	require.NoError(t, testutil.GatherAndCompare(m.Registry(), strings.NewReader(expected), "confeval_attribute_backtracks_total"))
}

func TestMetrics_Disabled(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{})
	require.NoError(t, err)
	assert.Nil(t, m.Registry())

	m.RecordEvaluation("success")
	m.RecordBacktrack()

	var nilMetrics *Metrics
	nilMetrics.RecordError("TypeMismatch")
	require.NoError(t, nilMetrics.Serve(context.Background()))

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMetrics_Handler(t *testing.T) {
	m, err := NewMetrics(MetricsConfig{Enabled: true, Namespace: "confeval"})
	require.NoError(t, err)
	m.RecordInstantiation("Web", "failure", time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `confeval_instantiations_total{schema="Web",status="failure"} 1`)
}

func TestTracer_Spans(t *testing.T) {
	recorder := tracetest.NewSpanRecorder()
	provider := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(recorder))
	tr := &Tracer{provider: provider, tracer: provider.Tracer("test")}

	ctx, root := tr.StartEvaluationSpan(context.Background(), "e1")
	_, child := tr.StartInstantiateSpan(ctx, "Server", 1)
	RecordError(child, errors.New("check failed"))
	child.End()
	RecordSuccess(root)
	root.End()

	spans := recorder.Ended()
	require.Len(t, spans, 2)
	assert.Equal(t, "schema.instantiate", spans[0].Name())
	assert.Equal(t, "check failed", spans[0].Status().Description)
	assert.Equal(t, spans[1].SpanContext().SpanID(), spans[0].Parent().SpanID())
	assert.Contains(t, spans[0].Attributes(), AttrSchema.String("Server"))

	require.NoError(t, tr.Shutdown(context.Background()))
	require.NoError(t, NoopTracer().Shutdown(context.Background()))
}

func TestNewTelemetry_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Logging.Level = "loud"
	_, err := NewTelemetry(cfg)
	assert.Error(t, err)
}
