package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"coachbook/internal/models"
)

var (
	ErrInvalidTimeRange       = errors.New("start time must be before end time")
	ErrPastDate               = errors.New("date is in the past")
	ErrDateTooFar             = errors.New("date is beyond the booking horizon")
	ErrNotFound               = errors.New("booking not found")
	ErrUnknownParticipant     = errors.New("unknown resource or subject")
	ErrConflict               = errors.New("resource already booked for this slot")
	ErrInvalidTransition      = errors.New("invalid status transition")
	ErrLockTimeout            = errors.New("resource is busy, try again")
	ErrConcurrentModification = errors.New("booking was modified concurrently")
)

// ConflictError names the resource that was unavailable.
type ConflictError struct {
	ResourceID     string
	Date           time.Time
	ConflictingIDs []string
}

func (e *ConflictError) Error() string {
	msg := fmt.Sprintf("resource %s already booked on %s", e.ResourceID, models.FormatDate(e.Date))
	if len(e.ConflictingIDs) > 0 {
		msg += " (conflicts with " + strings.Join(e.ConflictingIDs, ", ") + ")"
	}
	return msg
}

func (e *ConflictError) Is(target error) bool {
	return target == ErrConflict
}

// TransitionError carries the rejected from/to pair.
type TransitionError struct {
	From models.Status
	To   models.Status
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("invalid status transition %s -> %s", e.From, e.To)
}

func (e *TransitionError) Is(target error) bool {
	return target == ErrInvalidTransition
}

// IsRetryable reports whether the caller may simply try the same operation again.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrLockTimeout) || errors.Is(err, ErrConcurrentModification)
}
