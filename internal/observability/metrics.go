// README: Prometheus collectors for matching, ride transitions and HTTP traffic.
package observability

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "ride_dispatch"

var (
	// MatchOutcomes is labelled by the stage that decided the match
	// ("eligibility", "schedule", "free", "busy") and "ok" or "none".
	MatchOutcomes = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "match_outcomes_total", Help: "Driver matching outcomes by deciding stage"},
		[]string{"stage", "result"},
	)
	MatchLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "match_latency_seconds",
		Help:      "Driver matching latency seconds",
		Buckets:   prometheus.DefBuckets,
	})
	AssignConflicts = promauto.NewCounter(prometheus.CounterOpts{Namespace: namespace, Name: "assign_conflicts_total", Help: "Driver assignments lost to a concurrent commit"})

	RideTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "ride_transitions_total", Help: "Committed ride state transitions"},
		[]string{"to"},
	)
	NotifyFailures = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "notify_failures_total", Help: "Ride events that failed to reach a sink"},
		[]string{"sink"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "http_requests_total", Help: "Total HTTP requests handled"},
		[]string{"method", "path", "status"},
	)
	HTTPRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request latency distribution",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)
)
