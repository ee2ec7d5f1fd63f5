package learning

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"portkiller/internal/knowledge"
)

const metricsNamespace = "portkiller"

// Metrics tracks learning activity in a private registry so tests and
// multiple coordinators never collide on the default one.
type Metrics struct {
	registry *prometheus.Registry

	sightings        *prometheus.CounterVec
	promotions       prometheus.Counter
	dropped          prometheus.Counter
	duplicates       prometheus.Counter
	classifications  *prometheus.CounterVec
	remoteFailures   *prometheus.CounterVec
	classifyDuration *prometheus.HistogramVec
	pending          prometheus.Gauge
}

// NewMetrics registers the learning collectors in a fresh registry.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Metrics{
		registry: reg,
		sightings: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "sightings_total",
			Help:      "Sightings recorded, by outcome",
		}, []string{"outcome"}),
		promotions: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "promotions_total",
			Help:      "Fingerprints handed to the worker for classification",
		}),
		dropped: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "pending_dropped_total",
			Help:      "New fingerprints ignored because the pending map was full",
		}),
		duplicates: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "inflight_duplicates_total",
			Help:      "Promotions skipped because the fingerprint was already queued",
		}),
		classifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "classifications_total",
			Help:      "Classification results applied, by source",
		}, []string{"source"}),
		remoteFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "remote_failures_total",
			Help:      "Remote classifier failures, by kind",
		}, []string{"kind"}),
		classifyDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "classify_duration_seconds",
			Help:      "Time spent classifying one fingerprint",
			Buckets:   []float64{0.001, 0.01, 0.1, 0.5, 1, 2, 5, 10, 30},
		}, []string{"source"}),
		pending: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: "learning",
			Name:      "pending_entries",
			Help:      "Fingerprints waiting for enough sightings",
		}),
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// Registry exposes the underlying registry.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeSighting(outcome knowledge.SightingOutcome) {
	if m == nil {
		return
	}
	m.sightings.WithLabelValues(outcome.String()).Inc()
	switch outcome {
	case knowledge.OutcomePromoted:
		m.promotions.Inc()
	case knowledge.OutcomeDropped:
		m.dropped.Inc()
	}
}

func (m *Metrics) observeDuplicate() {
	if m == nil {
		return
	}
	m.duplicates.Inc()
}

func (m *Metrics) observeResult(res Result) {
	if m == nil {
		return
	}
	m.classifications.WithLabelValues(string(res.Source)).Inc()
	m.classifyDuration.WithLabelValues(string(res.Source)).Observe(res.Duration.Seconds())
}

func (m *Metrics) observeRemoteFailure(kind string) {
	if m == nil {
		return
	}
	m.remoteFailures.WithLabelValues(kind).Inc()
}

func (m *Metrics) setPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
