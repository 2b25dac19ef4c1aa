// Package metrics declares the Prometheus collectors of the capsule service.
//
// Collectors register on the default registry through promauto and are
// exposed by the server's /metrics endpoint.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "capsule"

var (
	// CapsulesCreated counts successfully stored capsules.
	CapsulesCreated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "created_total",
		Help:      "Capsules created",
	})

	// CreateRejected counts Create calls that failed validation.
	CreateRejected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "create_rejected_total",
		Help:      "Capsule definitions rejected by validation",
	})

	// OpenOutcomes counts Open calls by outcome: opened, already_open, race_lost, not_yet_eligible, error.
	OpenOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "open_total",
		Help:      "Open attempts by outcome",
	}, []string{"outcome"})

	// OpenLag observes the delay between the scheduled and the actual open time.
	OpenLag = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "open_lag_seconds",
		Help:      "Delay between open_at and the recorded opened_at",
		Buckets:   []float64{0.1, 1, 5, 15, 60, 300, 900, 3600},
	})

	// EventPublishFailures counts opened events that could not be published.
	EventPublishFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "event_publish_failures_total",
		Help:      "Opened events that failed to publish",
	})

	// Notifications counts notification sends by role and result.
	Notifications = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "notifications_total",
		Help:      "Notification attempts by role and result",
	}, []string{"role", "result"})

	// DispatchDuplicates counts opened events dropped because the capsule was already dispatched.
	DispatchDuplicates = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "dispatch_duplicates_total",
		Help:      "Duplicate opened events ignored by the dispatcher",
	})

	// SweepRuns counts sweep passes by result.
	SweepRuns = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Name:      "sweep_runs_total",
		Help:      "Sweep passes by result",
	}, []string{"result"})

	// SweepDuration observes one sweep pass.
	SweepDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "sweep_duration_seconds",
		Help:      "Duration of a sweep pass",
		Buckets:   prometheus.DefBuckets,
	})

	// RPCDuration observes unary gRPC handlers by method and code.
	RPCDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Name:      "rpc_duration_seconds",
		Help:      "Unary RPC latency",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method", "code"})
)

// Open outcomes.
const (
	OutcomeOpened         = "opened"
	OutcomeAlreadyOpen    = "already_open"
	OutcomeRaceLost       = "race_lost"
	OutcomeNotYetEligible = "not_yet_eligible"
	OutcomeError          = "error"
)

// RecordOpen counts one Open call.
func RecordOpen(outcome string) { OpenOutcomes.WithLabelValues(outcome).Inc() }

// RecordNotification counts one send; ok selects the "sent" or "failed" label.
func RecordNotification(role string, ok bool) {
	result := "sent"
	if !ok {
		result = "failed"
	}
	Notifications.WithLabelValues(role, result).Inc()
}

// ObserveRPC records a finished unary call.
func ObserveRPC(method, code string, d time.Duration) {
	RPCDuration.WithLabelValues(method, code).Observe(d.Seconds())
}
