package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingflow_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "code", "method"},
	)

	FlowTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "bookingflow_transitions_total",
			Help: "Flow state transitions",
		},
		[]string{"from", "to"},
	)

	UpstreamRequestSeconds = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "bookingflow_upstream_request_seconds",
			Help:    "Duration of booking API calls",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"endpoint"},
	)

	VerificationFailures = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookingflow_verification_failures_total",
			Help: "Payment verifications that did not confirm",
		},
	)

	FlowsAbandoned = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookingflow_flows_abandoned_total",
			Help: "Flow attempts abandoned before confirmation",
		},
	)

	OutboxLag = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "bookingflow_outbox_lag_seconds",
			Help: "Lag of outbox publishing",
		},
	)

	RateLimitExceeded = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "bookingflow_rate_limit_exceeded_total",
			Help: "Total rate limit exceeded",
		},
	)
)
