package apiclient

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	requestsInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "shopauth_api_requests_in_flight",
			Help: "Number of storefront API requests currently in flight",
		},
	)

	requestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopauth_api_requests_total",
			Help: "Total number of storefront API requests by method and outcome",
		},
		[]string{"method", "outcome"},
	)

	requestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "shopauth_api_request_duration_seconds",
			Help:    "Duration of storefront API requests including retries",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method"},
	)

	retriesTotal = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "shopauth_api_retries_total",
			Help: "Total number of storefront API request retries",
		},
	)

	// tokenRefreshesTotal counts refreshes by reason (proactive, unauthorized) and outcome.
	tokenRefreshesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "shopauth_api_token_refreshes_total",
			Help: "Total number of token refreshes triggered by the API client",
		},
		[]string{"reason", "outcome"},
	)
)
