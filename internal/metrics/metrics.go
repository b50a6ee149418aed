// Package metrics exposes resolver tier and outcome metrics to Prometheus.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"fleetsite/api/internal/resolver"
)

const prefix = "fleetsite_"

var tierDurationBuckets = []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.2, 0.3, 0.5, 0.7, 0.8, 1, 2}

type Metrics struct {
	registry     *prometheus.Registry
	resolutions  *prometheus.CounterVec
	tierAttempts *prometheus.CounterVec
	tierDuration *prometheus.HistogramVec
}

// New registers the resolver metrics on a fresh registry together with the
// Go runtime and process collectors.
func New() *Metrics {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(registry)

	return &Metrics{
		registry: registry,
		resolutions: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "resolutions_total",
				Help: "Resolved list requests by endpoint and serving source",
			},
			[]string{"endpoint", "source"},
		),
		tierAttempts: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: prefix + "tier_attempts_total",
				Help: "Tier attempts by endpoint, tier and status",
			},
			[]string{"endpoint", "tier", "status"},
		),
		tierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    prefix + "tier_duration_seconds",
				Help:    "Wall-clock time of a single tier attempt",
				Buckets: tierDurationBuckets,
			},
			[]string{"endpoint", "tier"},
		),
	}
}

func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

// For binds the metrics to one endpoint label.
func (m *Metrics) For(endpoint string) resolver.Observer {
	return endpointObserver{metrics: m, endpoint: endpoint}
}

type endpointObserver struct {
	metrics  *Metrics
	endpoint string
}

func (o endpointObserver) ObserveAttempt(tier resolver.Source, status resolver.Status, elapsed time.Duration) {
	o.metrics.tierAttempts.WithLabelValues(o.endpoint, string(tier), status.String()).Inc()
	o.metrics.tierDuration.WithLabelValues(o.endpoint, string(tier)).Observe(elapsed.Seconds())
}

func (o endpointObserver) ObserveOutcome(source resolver.Source, _ time.Duration) {
	o.metrics.resolutions.WithLabelValues(o.endpoint, string(source)).Inc()
}
