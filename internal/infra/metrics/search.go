package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(searchRequestsTotal, searchLatency) }

var (
	searchRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "search_requests_total",
			Help: "Web search requests by provider and outcome.",
		},
		[]string{"provider", "outcome"}, // 'ok', 'empty', 'error'
	)

	searchLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "search_request_duration_seconds",
			Help:    "Web search latency in seconds.",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"provider"},
	)
)

func ObserveSearch(provider, outcome string, took time.Duration) {
	searchRequestsTotal.WithLabelValues(norm(provider), norm(outcome)).Inc()
	searchLatency.WithLabelValues(norm(provider)).Observe(took.Seconds())
}
