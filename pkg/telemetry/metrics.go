package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics provides Prometheus metrics for schema evaluation. A nil *Metrics
// and a disabled one are both valid and record nothing.
type Metrics struct {
	config MetricsConfig

	evaluations           *prometheus.CounterVec
	instantiations        *prometheus.CounterVec
	instantiationDuration *prometheus.HistogramVec
	errorsByKind          *prometheus.CounterVec
	backtracks            prometheus.Counter

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector on a private registry.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	buckets := cfg.Buckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}
	namespace := cfg.Namespace

	registry := prometheus.NewRegistry()

	m := &Metrics{
		config:   cfg,
		registry: registry,

		evaluations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "evaluations_total",
				Help:      "Total number of evaluation contexts completed",
			},
			[]string{"status"},
		),
		instantiations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "instantiations_total",
				Help:      "Total number of schema instantiations",
			},
			[]string{"schema", "status"},
		),
		instantiationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "instantiation_duration_seconds",
				Help:      "Duration of schema instantiation in seconds",
				Buckets:   buckets,
			},
			[]string{"schema"},
		),
		errorsByKind: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "errors_total",
				Help:      "Total number of evaluation errors by kind",
			},
			[]string{"kind"},
		),
		backtracks: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "attribute_backtracks_total",
				Help:      "Attribute reads resolved on demand before their declaration position",
			},
		),
	}

	registry.MustRegister(
		m.evaluations,
		m.instantiations,
		m.instantiationDuration,
		m.errorsByKind,
		m.backtracks,
	)

	return m, nil
}

// RecordEvaluation records a completed evaluation context.
func (m *Metrics) RecordEvaluation(status string) {
	if m == nil || m.evaluations == nil {
		return
	}
	m.evaluations.WithLabelValues(status).Inc()
}

// RecordInstantiation records one schema instantiation.
func (m *Metrics) RecordInstantiation(schema, status string, duration time.Duration) {
	if m == nil || m.instantiations == nil {
		return
	}
	m.instantiations.WithLabelValues(schema, status).Inc()
	m.instantiationDuration.WithLabelValues(schema).Observe(duration.Seconds())
}

// RecordError records an error by kind.
func (m *Metrics) RecordError(kind string) {
	if m == nil || m.errorsByKind == nil {
		return
	}
	m.errorsByKind.WithLabelValues(kind).Inc()
}

// RecordBacktrack records an out-of-order attribute resolution.
func (m *Metrics) RecordBacktrack() {
	if m == nil || m.backtracks == nil {
		return
	}
	m.backtracks.Inc()
}

// Registry returns the private registry, or nil when disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.registry
}

// Timer provides a convenient way to time operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time since the timer was created.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns an HTTP handler for the metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	if m == nil || m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// Serve exposes the metrics endpoint until ctx is cancelled.
func (m *Metrics) Serve(ctx context.Context) error {
	if m == nil || !m.config.Enabled {
		return nil
	}

	path := m.config.Path
	if path == "" {
		path = "/metrics"
	}
	mux := http.NewServeMux()
	mux.Handle(path, m.Handler())

	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
