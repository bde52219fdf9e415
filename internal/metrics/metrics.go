package metrics

import (
	"errors"
	"sync"
	"time"

	"coachbook/internal/domain"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "coachbook"

var (
	once sync.Once

	operations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_operations_total",
			Help:      "Scheduling operations by name and result.",
		},
		[]string{"operation", "result"},
	)

	conflicts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "booking_conflicts_total",
			Help:      "Rejected creates and reschedules due to overlapping bookings.",
		},
		[]string{"operation"},
	)

	lockWait = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "resource_lock_wait_seconds",
			Help:      "Time spent waiting for a per-resource lock.",
			Buckets:   []float64{.001, .005, .01, .05, .1, .25, .5, 1, 2.5, 5},
		},
	)

	sweepCompleted = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_completed_total",
			Help:      "Bookings moved to completed by the sweeper.",
		},
	)

	sweepFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sweep_failures_total",
			Help:      "Per-booking sweep failures.",
		},
	)

	sweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "sweep_duration_seconds",
			Help:      "Duration of completion sweeps.",
			Buckets:   prometheus.DefBuckets,
		},
	)

	staleBookings = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "stale_bookings",
			Help:      "Pending or rescheduled bookings whose date has passed.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(operations, conflicts, lockWait, sweepCompleted, sweepFailures, sweepDuration, staleBookings)
	})
}

// ObserveOperation counts one scheduling call, labelled by its outcome.
func ObserveOperation(operation string, err error) {
	result := Result(err)
	operations.WithLabelValues(operation, result).Inc()
	if result == "conflict" {
		conflicts.WithLabelValues(operation).Inc()
	}
}

// Result maps an operation error onto a low-cardinality label.
func Result(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, domain.ErrConflict):
		return "conflict"
	case errors.Is(err, domain.ErrLockTimeout), errors.Is(err, domain.ErrConcurrentModification):
		return "retryable"
	case errors.Is(err, domain.ErrNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrInvalidTimeRange),
		errors.Is(err, domain.ErrPastDate),
		errors.Is(err, domain.ErrDateTooFar),
		errors.Is(err, domain.ErrUnknownParticipant),
		errors.Is(err, domain.ErrInvalidTransition):
		return "rejected"
	default:
		return "error"
	}
}

func ObserveLockWait(d time.Duration) {
	lockWait.Observe(d.Seconds())
}

func AddSweepCompleted(n int) {
	sweepCompleted.Add(float64(n))
}

func IncSweepFailure() {
	sweepFailures.Inc()
}

func ObserveSweepDuration(d time.Duration) {
	sweepDuration.Observe(d.Seconds())
}

func SetStaleBookings(n int) {
	staleBookings.Set(float64(n))
}
