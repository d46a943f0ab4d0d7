package services

import "github.com/prometheus/client_golang/prometheus"

var (
	// quotaDecisions counts daily quota checks by outcome
	// (allowed, rejected, unlimited).
	quotaDecisions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counselor_quota_decisions_total",
			Help: "Daily message quota decisions by outcome.",
		},
		[]string{"outcome"},
	)

	// threadEvents counts thread resolutions by transition.
	threadEvents = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "counselor_thread_events_total",
			Help: "Conversation thread resolutions by transition.",
		},
		[]string{"event"},
	)

	// assistantLatency records full question round trips.
	assistantLatency = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "counselor_assistant_duration_seconds",
			Help:    "Duration of assistant round trips in seconds.",
			Buckets: []float64{0.5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"result"},
	)
)

func init() {
	prometheus.MustRegister(quotaDecisions, threadEvents, assistantLatency)
}
