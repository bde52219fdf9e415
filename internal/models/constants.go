package models

import "fmt"

// Status is the closed set of booking lifecycle states.
type Status string

const (
	StatusPending     Status = "pending"
	StatusConfirmed   Status = "confirmed"
	StatusCancelled   Status = "cancelled"
	StatusCompleted   Status = "completed"
	StatusRescheduled Status = "rescheduled"
)

// AllStatuses lists every known status in declaration order.
var AllStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusCancelled,
	StatusCompleted,
	StatusRescheduled,
}

// ActiveStatuses hold a slot and take part in conflict detection.
var ActiveStatuses = []Status{
	StatusPending,
	StatusConfirmed,
	StatusRescheduled,
}

// String returns the stored form of s.
func (s Status) String() string {
	return string(s)
}

// IsValid reports whether s is one of the known statuses.
func (s Status) IsValid() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusCancelled, StatusCompleted, StatusRescheduled:
		return true
	default:
		return false
	}
}

// IsActive reports whether bookings in this status occupy their slot.
func (s Status) IsActive() bool {
	switch s {
	case StatusPending, StatusConfirmed, StatusRescheduled:
		return true
	default:
		return false
	}
}

// ParseStatus converts a stored value into a Status.
func ParseStatus(s string) (Status, error) {
	status := Status(s)
	if !status.IsValid() {
		return "", fmt.Errorf("invalid booking status: %q", s)
	}
	return status, nil
}

const (
	// DateLayout is the canonical calendar date format.
	DateLayout = "2006-01-02"

	// MinutesPerDay upper bound for TimeOfDay
	MinutesPerDay = 24 * 60

	// DefaultSweepTime local time of the daily completion sweep
	DefaultSweepTime = "00:05"

	// DefaultLockTTL lifetime of a resource lock in milliseconds
	DefaultLockTTL = 10_000

	// DefaultLockWait how long a caller waits for a resource lock in milliseconds
	DefaultLockWait = 3_000
)
