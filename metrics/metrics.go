package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all collectors. A nil *Metrics is valid and records nothing,
// so components can be constructed without metrics in tests and CLI tasks.
type Metrics struct {
	registry *prometheus.Registry

	RegistryAggregations *prometheus.CounterVec
	MetadataFallbacks    *prometheus.CounterVec
	Disclosures          *prometheus.CounterVec
	DisclosureDuration   prometheus.Histogram
	Mutations            *prometheus.CounterVec
}

// NewMetrics creates collectors under namespace, registered on a fresh
// registry together with the Go runtime and process collectors.
func NewMetrics(namespace string) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),

		RegistryAggregations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "aggregations_total",
			Help:      "Token list requests by outcome (cached, fetched, failed)",
		}, []string{"outcome"}),
		MetadataFallbacks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "registry",
			Name:      "metadata_fallbacks_total",
			Help:      "Metadata fields replaced by their default after a failed read",
		}, []string{"field"}),
		Disclosures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "disclosure",
			Name:      "sessions_total",
			Help:      "Balance disclosure sessions by terminal state",
		}, []string{"state"}),
		DisclosureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "disclosure",
			Name:      "duration_seconds",
			Help:      "Time from handle read to terminal state",
			Buckets:   prometheus.DefBuckets,
		}),
		Mutations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "mutation",
			Name:      "transitions_total",
			Help:      "Mutation state transitions by kind and status",
		}, []string{"kind", "status"}),
	}

	m.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		m.RegistryAggregations,
		m.MetadataFallbacks,
		m.Disclosures,
		m.DisclosureDuration,
		m.Mutations,
	)
	return m
}

// Registry returns the registry all collectors are registered on.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) ObserveAggregation(outcome string) {
	if m == nil {
		return
	}
	m.RegistryAggregations.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveMetadataFallback(field string) {
	if m == nil {
		return
	}
	m.MetadataFallbacks.WithLabelValues(field).Inc()
}

func (m *Metrics) ObserveDisclosure(state string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Disclosures.WithLabelValues(state).Inc()
	m.DisclosureDuration.Observe(elapsed.Seconds())
}

func (m *Metrics) ObserveMutation(kind, status string) {
	if m == nil {
		return
	}
	m.Mutations.WithLabelValues(kind, status).Inc()
}

// MetricsServer exports Metrics on /metrics.
type MetricsServer struct {
	metrics *Metrics
	srv     *http.Server
}

// New creates the collectors under namespace and a server for them listening on addr.
func New(namespace, addr string) (*MetricsServer, error) {
	m := NewMetrics(namespace)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry}))

	return &MetricsServer{
		metrics: m,
		srv: &http.Server{
			Addr:              addr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}, nil
}

// Metrics returns the collectors served by this server.
func (s *MetricsServer) Metrics() *Metrics {
	return s.metrics
}

// Handler returns the HTTP handler serving /metrics.
func (s *MetricsServer) Handler() http.Handler {
	return s.srv.Handler
}

func (s *MetricsServer) ListenAndServe() error {
	return s.srv.ListenAndServe()
}

func (s *MetricsServer) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
