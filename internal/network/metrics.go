package network

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	wikidotRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "wikidot_requests_total",
			Help: "Total number of HTTP requests sent to Wikidot",
		},
		[]string{"method", "status"},
	)

	wikidotRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "wikidot_request_duration_seconds",
			Help:    "Wikidot HTTP request duration in seconds",
			Buckets: []float64{.05, .1, .25, .5, 1, 2.5, 5, 10, 30},
		},
		[]string{"method"},
	)
)

func observeRequest(method, status string, start time.Time) {
	wikidotRequestsTotal.WithLabelValues(method, status).Inc()
	wikidotRequestDuration.WithLabelValues(method).Observe(time.Since(start).Seconds())
}
