package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"coachbook/internal/domain"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		ObserveLockWait(10 * time.Millisecond)
		ObserveSweepDuration(time.Second)
		IncSweepFailure()
	})
}

func TestObserveOperation(t *testing.T) {
	before := testutil.ToFloat64(operations.WithLabelValues("create", "conflict"))
	beforeConflicts := testutil.ToFloat64(conflicts.WithLabelValues("create"))

	ObserveOperation("create", &domain.ConflictError{ResourceID: "C1"})

	assert.Equal(t, before+1, testutil.ToFloat64(operations.WithLabelValues("create", "conflict")))
	assert.Equal(t, beforeConflicts+1, testutil.ToFloat64(conflicts.WithLabelValues("create")))

	okBefore := testutil.ToFloat64(operations.WithLabelValues("cancel", "ok"))
	ObserveOperation("cancel", nil)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(operations.WithLabelValues("cancel", "ok")))
}

func TestResult(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "ok"},
		{&domain.ConflictError{}, "conflict"},
		{fmt.Errorf("wrap: %w", domain.ErrLockTimeout), "retryable"},
		{domain.ErrConcurrentModification, "retryable"},
		{fmt.Errorf("booking x: %w", domain.ErrNotFound), "not_found"},
		{domain.ErrPastDate, "rejected"},
		{&domain.TransitionError{}, "rejected"},
		{errors.New("disk full"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Result(tt.err), "%v", tt.err)
	}
}

func TestSweepGauges(t *testing.T) {
	SetStaleBookings(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(staleBookings))

	before := testutil.ToFloat64(sweepCompleted)
	AddSweepCompleted(2)
	assert.Equal(t, before+2, testutil.ToFloat64(sweepCompleted))
}
