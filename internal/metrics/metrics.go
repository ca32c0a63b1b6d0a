// Package metrics holds the Prometheus collectors exported on /metrics.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// UpstreamRequests counts calls to third-party APIs by provider and outcome
	UpstreamRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_upstream_requests_total",
			Help: "Total number of upstream API requests.",
		},
		[]string{"provider", "outcome"},
	)
	UpstreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_upstream_request_duration_seconds",
			Help:    "Latency of upstream API requests.",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10},
		},
		[]string{"provider"},
	)

	// SnapshotCache counts snapshot cache lookups by result (hit, miss, stale, error)
	SnapshotCache = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_snapshot_cache_total",
			Help: "Snapshot cache lookups by result.",
		},
		[]string{"result"},
	)

	// DegradedFigures counts sub-steps that fell back to a zero default
	DegradedFigures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wallet_degraded_figures_total",
			Help: "Figures that degraded to zero after a non-critical failure.",
		},
		[]string{"figure"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wallet_http_request_duration_seconds",
			Help:    "Latency of inbound HTTP requests.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "status"},
	)
)

func init() {
	prometheus.MustRegister(
		UpstreamRequests,
		UpstreamDuration,
		SnapshotCache,
		DegradedFigures,
		HTTPRequestDuration,
	)
}

// ObserveUpstream records the outcome and latency of one upstream call.
func ObserveUpstream(provider string, start time.Time, err error) {
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	UpstreamRequests.WithLabelValues(provider, outcome).Inc()
	UpstreamDuration.WithLabelValues(provider).Observe(time.Since(start).Seconds())
}
