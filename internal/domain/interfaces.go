package domain

import (
	"context"
	"time"

	"coachbook/internal/models"
)

// Repository is the persistence contract of the scheduling core.
type Repository interface {
	GetBooking(ctx context.Context, id string) (*models.Booking, error)
	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetActiveBookings(ctx context.Context, resourceID string, date time.Time) ([]*models.Booking, error)
	// Versioned writes stamp updated_at with at and fail with ErrConcurrentModification
	// when the stored version differs.
	UpdateBookingStatusWithVersion(ctx context.Context, id string, version int64, status models.Status, at time.Time) error
	UpdateBookingSlotWithVersion(
		ctx context.Context,
		id string,
		version int64,
		date time.Time,
		start, end models.TimeOfDay,
		status models.Status,
		at time.Time,
	) error
	GetBookingsByStatusBefore(ctx context.Context, status models.Status, before time.Time) ([]*models.Booking, error)
	CountBookingsByStatusBefore(ctx context.Context, statuses []models.Status, before time.Time) (int, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	GetSubjectHistory(ctx context.Context, subjectID string, today time.Time) ([]*models.Booking, error)
	HasCompletedBooking(ctx context.Context, subjectID, resourceID string) (bool, error)
}

// ResourceLocker serializes check-then-write sequences per resource.
// Lock waits a bounded time and returns ErrLockTimeout when the lock stays busy.
type ResourceLocker interface {
	Lock(ctx context.Context, key string) (release func(), err error)
}

// Directory resolves coach and member identifiers owned by the identity provider.
type Directory interface {
	ResourceExists(ctx context.Context, resourceID string) (bool, error)
	SubjectExists(ctx context.Context, subjectID string) (bool, error)
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

type SchedulingService interface {
	Create(ctx context.Context, params models.CreateBookingParams) (*models.Booking, error)
	Reschedule(ctx context.Context, bookingID string, date time.Time, start, end models.TimeOfDay) (*models.Booking, error)
	Cancel(ctx context.Context, bookingID string) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	AcceptReschedule(ctx context.Context, bookingID string) (*models.Booking, error)
	RejectReschedule(ctx context.Context, bookingID string) (*models.Booking, error)
	GetBooking(ctx context.Context, bookingID string) (*models.Booking, error)
	ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error)
	UpcomingForSubject(ctx context.Context, subjectID string) ([]*models.Booking, error)
	HistoryForSubject(ctx context.Context, subjectID string) ([]*models.Booking, error)
	ResourceSchedule(ctx context.Context, resourceID string, date time.Time) ([]*models.Booking, error)
	FindConflicts(ctx context.Context, slot models.Slot, excludeID string) ([]*models.Booking, error)
	HasCompletedBooking(ctx context.Context, subjectID, resourceID string) (bool, error)
}

type Sweeper interface {
	RunSweep(ctx context.Context) (int, error)
}
