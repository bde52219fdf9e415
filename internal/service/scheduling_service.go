package service

import (
	"context"
	"fmt"
	"time"

	"coachbook/internal/clock"
	"coachbook/internal/domain"
	"coachbook/internal/events"
	"coachbook/internal/lock"
	"coachbook/internal/metrics"
	"coachbook/internal/models"
	"coachbook/internal/scheduler"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type SchedulingService struct {
	repo           domain.Repository
	locker         domain.ResourceLocker
	clock          clock.Clock
	directory      domain.Directory
	eventBus       domain.EventPublisher
	maxBookingDays int
	logger         *zerolog.Logger
}

var _ domain.SchedulingService = (*SchedulingService)(nil)

// NewSchedulingService wires the booking core. A nil directory trusts every id,
// a nil eventBus disables events and maxBookingDays <= 0 means no horizon.
func NewSchedulingService(
	repo domain.Repository,
	locker domain.ResourceLocker,
	clk clock.Clock,
	directory domain.Directory,
	eventBus domain.EventPublisher,
	maxBookingDays int,
	logger *zerolog.Logger,
) *SchedulingService {
	if locker == nil {
		locker = lock.NewMemoryLocker(models.DefaultLockWait * time.Millisecond)
	}
	if clk == nil {
		clk = clock.NewSystem(time.UTC)
	}
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &SchedulingService{
		repo:           repo,
		locker:         locker,
		clock:          clk,
		directory:      directory,
		eventBus:       eventBus,
		maxBookingDays: maxBookingDays,
		logger:         logger,
	}
}

// ValidateBookingDate rejects dates before today and, when a horizon is set, dates past it.
func (s *SchedulingService) ValidateBookingDate(date time.Time) error {
	today := s.clock.Today()
	date = models.DateOf(date)

	if date.Before(today) {
		return domain.ErrPastDate
	}
	if s.maxBookingDays > 0 && date.After(today.AddDate(0, 0, s.maxBookingDays)) {
		return domain.ErrDateTooFar
	}
	return nil
}

func (s *SchedulingService) Create(ctx context.Context, params models.CreateBookingParams) (*models.Booking, error) {
	booking, err := s.create(ctx, params)
	s.observe("create", bookingID(booking), err)
	return booking, err
}

func (s *SchedulingService) create(ctx context.Context, params models.CreateBookingParams) (*models.Booking, error) {
	slot := models.Slot{
		ResourceID: params.ResourceID,
		Date:       models.DateOf(params.Date),
		Start:      params.StartTime,
		End:        params.EndTime,
	}
	if err := s.validateSlot(slot); err != nil {
		return nil, err
	}
	if err := s.checkParticipants(ctx, params.ResourceID, params.SubjectID); err != nil {
		return nil, err
	}

	release, err := s.lockResource(ctx, slot.ResourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := s.ensureFree(ctx, slot, ""); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		ID:         uuid.NewString(),
		ResourceID: params.ResourceID,
		SubjectID:  params.SubjectID,
		Date:       slot.Date,
		StartTime:  params.StartTime,
		EndTime:    params.EndTime,
		Location:   params.Location,
		Status:     models.StatusPending,
		CreatedAt:  s.clock.Now(),
	}
	if err := s.repo.CreateBooking(ctx, booking); err != nil {
		return nil, err
	}

	s.publishEvent(events.EventBookingCreated, booking, "")
	return booking, nil
}

func (s *SchedulingService) Reschedule(
	ctx context.Context,
	bookingID string,
	date time.Time,
	start, end models.TimeOfDay,
) (*models.Booking, error) {
	booking, err := s.reschedule(ctx, bookingID, date, start, end)
	s.observe("reschedule", bookingID, err)
	return booking, err
}

func (s *SchedulingService) reschedule(
	ctx context.Context,
	bookingID string,
	date time.Time,
	start, end models.TimeOfDay,
) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	slot := models.Slot{ResourceID: current.ResourceID, Date: models.DateOf(date), Start: start, End: end}
	if err := s.validateSlot(slot); err != nil {
		return nil, err
	}
	if err := scheduler.ValidateTransition(current.Status, models.StatusRescheduled); err != nil {
		return nil, err
	}

	release, err := s.lockResource(ctx, current.ResourceID)
	if err != nil {
		return nil, err
	}
	defer release()

	// Re-read under the lock so the version and status used for the write are current.
	current, err = s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}
	if err := scheduler.ValidateTransition(current.Status, models.StatusRescheduled); err != nil {
		return nil, err
	}
	if err := s.ensureFree(ctx, slot, current.ID); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	err = s.repo.UpdateBookingSlotWithVersion(ctx, current.ID, current.Version, slot.Date, start, end, models.StatusRescheduled, now)
	if err != nil {
		return nil, err
	}

	previous := current.Status
	updated := *current
	updated.Date = slot.Date
	updated.StartTime = start
	updated.EndTime = end
	updated.Status = models.StatusRescheduled
	updated.Version++
	updated.UpdatedAt = now

	s.publishEvent(events.EventBookingRescheduled, &updated, previous)
	return &updated, nil
}

// Cancel moves any non-terminal booking to cancelled.
func (s *SchedulingService) Cancel(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.changeStatus(ctx, bookingID, nil, models.StatusCancelled, events.EventBookingCancelled)
	s.observe("cancel", bookingID, err)
	return booking, err
}

func (s *SchedulingService) ConfirmBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.changeStatus(ctx, bookingID,
		[]models.Status{models.StatusPending}, models.StatusConfirmed, events.EventBookingConfirmed)
	s.observe("confirm", bookingID, err)
	return booking, err
}

func (s *SchedulingService) AcceptReschedule(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.changeStatus(ctx, bookingID,
		[]models.Status{models.StatusRescheduled}, models.StatusConfirmed, events.EventBookingRescheduleAccepted)
	s.observe("accept_reschedule", bookingID, err)
	return booking, err
}

func (s *SchedulingService) RejectReschedule(ctx context.Context, bookingID string) (*models.Booking, error) {
	booking, err := s.changeStatus(ctx, bookingID,
		[]models.Status{models.StatusRescheduled}, models.StatusCancelled, events.EventBookingRescheduleRejected)
	s.observe("reject_reschedule", bookingID, err)
	return booking, err
}

// changeStatus applies a single status edge with an optimistic version check.
// When from is non-empty the current status must be one of it.
func (s *SchedulingService) changeStatus(
	ctx context.Context,
	bookingID string,
	from []models.Status,
	to models.Status,
	eventType string,
) (*models.Booking, error) {
	current, err := s.repo.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, err
	}

	if len(from) > 0 && !containsStatus(from, current.Status) {
		return nil, &domain.TransitionError{From: current.Status, To: to}
	}
	if err := scheduler.ValidateTransition(current.Status, to); err != nil {
		return nil, err
	}

	now := s.clock.Now()
	if err := s.repo.UpdateBookingStatusWithVersion(ctx, current.ID, current.Version, to, now); err != nil {
		return nil, err
	}

	previous := current.Status
	updated := *current
	updated.Status = to
	updated.Version++
	updated.UpdatedAt = now

	s.publishEvent(eventType, &updated, previous)
	return &updated, nil
}

func (s *SchedulingService) GetBooking(ctx context.Context, bookingID string) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, bookingID)
}

func (s *SchedulingService) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	return s.repo.ListBookings(ctx, filter)
}

// UpcomingForSubject lists a member's active bookings from today on, soonest first.
func (s *SchedulingService) UpcomingForSubject(ctx context.Context, subjectID string) ([]*models.Booking, error) {
	return s.repo.ListBookings(ctx, models.BookingFilter{
		SubjectID: subjectID,
		Statuses:  models.ActiveStatuses,
		From:      s.clock.Today(),
		Ascending: true,
	})
}

// HistoryForSubject lists a member's past or finished bookings, newest first.
func (s *SchedulingService) HistoryForSubject(ctx context.Context, subjectID string) ([]*models.Booking, error) {
	return s.repo.GetSubjectHistory(ctx, subjectID, s.clock.Today())
}

// ResourceSchedule lists the slots a coach has taken on a date.
func (s *SchedulingService) ResourceSchedule(ctx context.Context, resourceID string, date time.Time) ([]*models.Booking, error) {
	return s.repo.GetActiveBookings(ctx, resourceID, models.DateOf(date))
}

// FindConflicts lists the active bookings a candidate slot would collide with.
func (s *SchedulingService) FindConflicts(ctx context.Context, slot models.Slot, excludeID string) ([]*models.Booking, error) {
	if err := scheduler.ValidateSlot(slot); err != nil {
		return nil, err
	}
	existing, err := s.repo.GetActiveBookings(ctx, slot.ResourceID, models.DateOf(slot.Date))
	if err != nil {
		return nil, err
	}
	return scheduler.FindConflicts(existing, slot, excludeID), nil
}

// HasCompletedBooking reports whether a member finished at least one session with a coach.
func (s *SchedulingService) HasCompletedBooking(ctx context.Context, subjectID, resourceID string) (bool, error) {
	return s.repo.HasCompletedBooking(ctx, subjectID, resourceID)
}

func (s *SchedulingService) validateSlot(slot models.Slot) error {
	if err := scheduler.ValidateSlot(slot); err != nil {
		return err
	}
	return s.ValidateBookingDate(slot.Date)
}

func (s *SchedulingService) checkParticipants(ctx context.Context, resourceID, subjectID string) error {
	if s.directory == nil {
		return nil
	}

	ok, err := s.directory.ResourceExists(ctx, resourceID)
	if err != nil {
		return fmt.Errorf("failed to check resource: %w", err)
	}
	if !ok {
		return fmt.Errorf("resource %s: %w", resourceID, domain.ErrUnknownParticipant)
	}

	ok, err = s.directory.SubjectExists(ctx, subjectID)
	if err != nil {
		return fmt.Errorf("failed to check subject: %w", err)
	}
	if !ok {
		return fmt.Errorf("subject %s: %w", subjectID, domain.ErrUnknownParticipant)
	}
	return nil
}

// ensureFree must be called with the resource lock held.
func (s *SchedulingService) ensureFree(ctx context.Context, slot models.Slot, excludeID string) error {
	existing, err := s.repo.GetActiveBookings(ctx, slot.ResourceID, slot.Date)
	if err != nil {
		return err
	}
	if conflicts := scheduler.FindConflicts(existing, slot, excludeID); len(conflicts) > 0 {
		return scheduler.NewConflictError(slot, conflicts)
	}
	return nil
}

func (s *SchedulingService) lockResource(ctx context.Context, resourceID string) (func(), error) {
	started := time.Now()
	release, err := s.locker.Lock(ctx, "resource:"+resourceID)
	metrics.ObserveLockWait(time.Since(started))
	if err != nil {
		return nil, err
	}
	return release, nil
}

func (s *SchedulingService) observe(operation, bookingID string, err error) {
	metrics.ObserveOperation(operation, err)

	if err == nil {
		s.logger.Info().Str("operation", operation).Str("booking_id", bookingID).Msg("booking updated")
		return
	}
	event := s.logger.Warn()
	if metrics.Result(err) == "error" {
		event = s.logger.Error()
	}
	event.Err(err).Str("operation", operation).Str("booking_id", bookingID).Msg("booking operation failed")
}

func (s *SchedulingService) publishEvent(eventType string, booking *models.Booking, previous models.Status) {
	if s.eventBus == nil {
		return
	}

	payload := events.NewBookingEventPayload(booking, previous, s.clock.Now())
	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Str("booking_id", booking.ID).Msg("publish event error")
	}
}

func bookingID(b *models.Booking) string {
	if b == nil {
		return ""
	}
	return b.ID
}

func containsStatus(list []models.Status, s models.Status) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
