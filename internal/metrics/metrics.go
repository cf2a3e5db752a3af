package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Store operation outcomes.
const (
	OutcomeSuccess = "success"
	OutcomeFailure = "failure"
	OutcomeSkipped = "skipped"
)

var (
	// Transaction store
	StoreOperationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "store",
		Name:      "operations_total",
		Help:      "Total transaction store operations by outcome",
	}, []string{"operation", "outcome"})

	StoreOperationLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "payments",
		Subsystem: "store",
		Name:      "operation_duration_seconds",
		Help:      "Transaction store operation duration",
		Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5},
	}, []string{"operation"})

	StoreCoalescedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "store",
		Name:      "coalesced_mutations_total",
		Help:      "Mutations that joined an in-flight call for the same transaction",
	}, []string{"operation"})

	// Notifications
	NotificationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "notify",
		Name:      "notifications_total",
		Help:      "Total notifications emitted by kind",
	}, []string{"kind"})

	// Sessions
	SessionsOpened = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "session",
		Name:      "opened_total",
		Help:      "Total transaction store sessions opened",
	})

	SessionsInvalidated = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "payments",
		Subsystem: "session",
		Name:      "invalidated_total",
		Help:      "Total per-user session invalidations",
	})
)
