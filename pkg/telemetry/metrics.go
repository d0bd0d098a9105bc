package telemetry

import (
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics collects Prometheus metrics for the solve pipeline. The
// zero-value methods are no-ops when metrics are disabled.
type Metrics struct {
	config MetricsConfig

	solvesStarted   *prometheus.CounterVec
	solvesCompleted *prometheus.CounterVec
	solveDuration   *prometheus.HistogramVec

	regimeSolves        *prometheus.CounterVec
	regimeSolveDuration *prometheus.HistogramVec

	failuresByClass *prometheus.CounterVec

	blends  prometheus.Counter
	splices *prometheus.HistogramVec

	conditionCopies  prometheus.Counter
	transitionCopies prometheus.Counter

	storeLookups *prometheus.CounterVec

	activeSolves prometheus.Gauge

	registry *prometheus.Registry
}

// NewMetrics creates a metrics collector. When disabled, every record
// method is a no-op.
func NewMetrics(cfg MetricsConfig) (*Metrics, error) {
	if !cfg.Enabled {
		return &Metrics{config: cfg}, nil
	}

	namespace := cfg.Namespace
	buckets := cfg.DefaultHistogramBuckets
	if len(buckets) == 0 {
		buckets = prometheus.DefBuckets
	}

	registry := prometheus.NewRegistry()
	m := &Metrics{
		config:   cfg,
		registry: registry,

		solvesStarted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_started_total",
				Help:      "Total number of solves started",
			},
			[]string{"method"},
		),
		solvesCompleted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solves_completed_total",
				Help:      "Total number of solves completed",
			},
			[]string{"status"},
		),
		solveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "solve_duration_seconds",
				Help:      "Duration of full solves in seconds",
				Buckets:   buckets,
			},
			[]string{"method", "status"},
		),

		regimeSolves: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "regime_solves_total",
				Help:      "Total number of single-regime kernel solves",
			},
			[]string{"status"},
		),
		regimeSolveDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "regime_solve_duration_seconds",
				Help:      "Duration of single-regime kernel solves in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		failuresByClass: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "solve_failures_total",
				Help:      "Total number of solve failures by error class",
			},
			[]string{"class"},
		),

		blends: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "credibility_blends_total",
				Help:      "Total number of credibility-weighted blends",
			},
		),
		splices: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "window_splice_duration_seconds",
				Help:      "Duration of temporary-policy window splices in seconds",
				Buckets:   buckets,
			},
			[]string{"status"},
		),

		conditionCopies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "condition_copies_total",
				Help:      "Total number of identical-regime condition copies",
			},
		),
		transitionCopies: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transition_copies_total",
				Help:      "Total number of identical-regime transition copies",
			},
		),

		storeLookups: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "store_lookups_total",
				Help:      "Total number of solution-store lookups",
			},
			[]string{"result"},
		),

		activeSolves: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "active_solves",
				Help:      "Current number of in-flight solves",
			},
		),
	}

	registry.MustRegister(
		m.solvesStarted,
		m.solvesCompleted,
		m.solveDuration,
		m.regimeSolves,
		m.regimeSolveDuration,
		m.failuresByClass,
		m.blends,
		m.splices,
		m.conditionCopies,
		m.transitionCopies,
		m.storeLookups,
		m.activeSolves,
	)
	return m, nil
}

// RecordSolveStarted increments the started counter.
func (m *Metrics) RecordSolveStarted(method string) {
	if m.solvesStarted == nil {
		return
	}
	m.solvesStarted.WithLabelValues(method).Inc()
	m.activeSolves.Inc()
}

// RecordSolveCompleted records a finished solve.
func (m *Metrics) RecordSolveCompleted(method, status string, duration time.Duration) {
	if m.solvesCompleted == nil {
		return
	}
	m.solvesCompleted.WithLabelValues(status).Inc()
	m.solveDuration.WithLabelValues(method, status).Observe(duration.Seconds())
	m.activeSolves.Dec()
}

// RecordRegimeSolve records one kernel invocation.
func (m *Metrics) RecordRegimeSolve(status string, duration time.Duration) {
	if m.regimeSolves == nil {
		return
	}
	m.regimeSolves.WithLabelValues(status).Inc()
	m.regimeSolveDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordFailure records a classified solve failure.
func (m *Metrics) RecordFailure(class string) {
	if m.failuresByClass == nil {
		return
	}
	m.failuresByClass.WithLabelValues(class).Inc()
}

// RecordBlend records one credibility-weighted blend.
func (m *Metrics) RecordBlend() {
	if m.blends == nil {
		return
	}
	m.blends.Inc()
}

// RecordSplice records one temporary-policy window splice.
func (m *Metrics) RecordSplice(status string, duration time.Duration) {
	if m.splices == nil {
		return
	}
	m.splices.WithLabelValues(status).Observe(duration.Seconds())
}

// RecordConditionCopy records one identical-regime condition copy.
func (m *Metrics) RecordConditionCopy() {
	if m.conditionCopies == nil {
		return
	}
	m.conditionCopies.Inc()
}

// RecordTransitionCopy records one identical-regime transition copy.
func (m *Metrics) RecordTransitionCopy() {
	if m.transitionCopies == nil {
		return
	}
	m.transitionCopies.Inc()
}

// RecordStoreLookup records a solution-store lookup result (hit,
// miss).
func (m *Metrics) RecordStoreLookup(result string) {
	if m.storeLookups == nil {
		return
	}
	m.storeLookups.WithLabelValues(result).Inc()
}

// Timer times an operation.
type Timer struct {
	start time.Time
}

// NewTimer starts a timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Duration returns the elapsed time.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}

// Handler returns the metrics HTTP handler.
func (m *Metrics) Handler() http.Handler {
	if m.registry == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	})
}

// StartMetricsServer exposes the metrics endpoint in the background.
func (m *Metrics) StartMetricsServer() error {
	if !m.config.Enabled {
		return nil
	}

	mux := http.NewServeMux()
	mux.Handle(m.config.Path, m.Handler())
	server := &http.Server{
		Addr:              m.config.ListenAddress,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			fmt.Printf("metrics server error: %v\n", err)
		}
	}()
	return nil
}
