package telemetry

import (
	"context"
	"errors"
	"net/http"
	"time"

	"courier/internal/fallback"
	logx "courier/pkg/logx"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Config struct {
	Enabled   bool
	Namespace string
	Listen    string
}

// Metrics holds the delivery pipeline's Prometheus collectors. A nil or
// disabled Metrics accepts every call and records nothing.
type Metrics struct {
	cfg      Config
	registry *prometheus.Registry

	attempts        *prometheus.CounterVec
	attemptDuration *prometheus.HistogramVec
	deliveries      *prometheus.CounterVec
	deliveryLatency *prometheus.HistogramVec
	enrichFields    *prometheus.CounterVec
	initState       *prometheus.GaugeVec
}

func New(cfg Config) *Metrics {
	if !cfg.Enabled {
		return &Metrics{cfg: cfg}
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "courier"
	}
	ns := cfg.Namespace
	reg := prometheus.NewRegistry()

	m := &Metrics{
		cfg:      cfg,
		registry: reg,
		attempts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "chain_attempts_total",
			Help:      "Fallback chain attempts by goal, strategy and outcome.",
		}, []string{"goal", "strategy", "outcome"}),
		attemptDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "chain_attempt_duration_seconds",
			Help:      "Duration of fallback chain attempts.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"goal", "strategy"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "deliveries_total",
			Help:      "Deliveries by outcome and the transport that carried them.",
		}, []string{"outcome", "transport"}),
		deliveryLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: ns,
			Name:      "delivery_duration_seconds",
			Help:      "End-to-end delivery duration.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"outcome"}),
		enrichFields: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns,
			Name:      "enrichment_fields_total",
			Help:      "Rendered enrichment fields by state.",
		}, []string{"state"}),
		initState: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns,
			Name:      "remote_config_state",
			Help:      "1 for the current remote config state, 0 otherwise.",
		}, []string{"state"}),
	}
	reg.MustRegister(m.attempts, m.attemptDuration, m.deliveries, m.deliveryLatency, m.enrichFields, m.initState)
	return m
}

func (m *Metrics) enabled() bool { return m != nil && m.registry != nil }

// Registry returns nil when metrics are disabled.
func (m *Metrics) Registry() *prometheus.Registry {
	if !m.enabled() {
		return nil
	}
	return m.registry
}

// ObserveAttempt is a fallback.Chain OnAttempt hook.
func (m *Metrics) ObserveAttempt(a fallback.Attempt) {
	if !m.enabled() {
		return
	}
	outcome := "success"
	switch {
	case errors.Is(a.Err, fallback.ErrAttemptTimeout):
		outcome = "timeout"
	case a.Err != nil:
		outcome = "failure"
	}
	m.attempts.WithLabelValues(a.Goal, a.Strategy, outcome).Inc()
	m.attemptDuration.WithLabelValues(a.Goal, a.Strategy).Observe(a.Took.Seconds())
}

// RecordDelivery counts one delivery. transport is empty when nothing
// carried the payload.
func (m *Metrics) RecordDelivery(ok bool, transport string, took time.Duration) {
	if !m.enabled() {
		return
	}
	outcome := "failed"
	if ok {
		outcome = "sent"
	}
	if transport == "" {
		transport = "none"
	}
	m.deliveries.WithLabelValues(outcome, transport).Inc()
	m.deliveryLatency.WithLabelValues(outcome).Observe(took.Seconds())
}

// RecordEnrichment counts rendered fields per state name.
func (m *Metrics) RecordEnrichment(state string, n int) {
	if !m.enabled() || n <= 0 {
		return
	}
	m.enrichFields.WithLabelValues(state).Add(float64(n))
}

// SetInitState marks current as the active remote config state.
func (m *Metrics) SetInitState(current string, all ...string) {
	if !m.enabled() {
		return
	}
	for _, s := range all {
		m.initState.WithLabelValues(s).Set(0)
	}
	m.initState.WithLabelValues(current).Set(1)
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if !m.enabled() {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{EnableOpenMetrics: true})
}

// Serve exposes /metrics on cfg.Listen until ctx ends. It returns nil right
// away when metrics are disabled or no listen address is set.
func (m *Metrics) Serve(ctx context.Context, log logx.Logger) error {
	if !m.enabled() || m.cfg.Listen == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.Handler())
	srv := &http.Server{
		Addr:              m.cfg.Listen,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()
	log.Info("metrics listening", logx.String("addr", m.cfg.Listen))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 2*time.Second)
		defer cancel()
		return srv.Shutdown(sctx)
	}
}
