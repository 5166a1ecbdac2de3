// internal/common/metrics/metrics.go
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RelayRequests = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_requests_total",
			Help: "Total number of relay requests by operation and outcome",
		},
		[]string{"operation", "status"},
	)

	RelayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "relay_request_duration_seconds",
			Help:    "Duration of relay operations in seconds",
			Buckets: []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 40, 80},
		},
		[]string{"operation"},
	)

	StreamEvents = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_stream_events_total",
			Help: "Total number of stream events emitted by type",
		},
		[]string{"type"},
	)

	StreamsActive = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "relay_streams_active",
			Help: "Number of article streams currently open",
		},
	)

	DisambiguationCandidates = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "relay_disambiguation_candidates",
			Help:    "Number of candidates returned per disambiguation",
			Buckets: []float64{0, 1, 2, 3, 4, 5},
		},
	)

	CacheLookups = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "relay_cache_lookups_total",
			Help: "Disambiguation cache lookups by result",
		},
		[]string{"result"},
	)
)
