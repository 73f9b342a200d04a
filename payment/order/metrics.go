package order

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type Metrics struct {
	verifications *prometheus.CounterVec
	errors        *prometheus.CounterVec
	transitions   *prometheus.CounterVec
	pollDuration  prometheus.Histogram
	pollSkipped   prometheus.Counter
}

// NewMetrics registers the engine's collectors on reg. A nil reg gives
// unregistered collectors, which is what tests want.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		verifications: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_verifications_total",
			Help: "Verdicts returned by chain verifiers.",
		}, []string{"chain", "token", "verdict"}),
		errors: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_verification_errors_total",
			Help: "Verifications that ended with a transient error.",
		}, []string{"chain"}),
		transitions: f.NewCounterVec(prometheus.CounterOpts{
			Name: "payment_order_transitions_total",
			Help: "Orders moved to a terminal status by the engine.",
		}, []string{"status"}),
		pollDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "payment_poll_duration_seconds",
			Help:    "Time spent processing one batch of due orders.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 10),
		}),
		pollSkipped: f.NewCounter(prometheus.CounterOpts{
			Name: "payment_poll_skipped_total",
			Help: "Polls skipped because the previous batch was still running.",
		}),
	}
}
