package service

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"coachbook/internal/clock"
	"coachbook/internal/domain"
	"coachbook/internal/events"
	"coachbook/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}
func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}
func (m *mockRepo) GetActiveBookings(ctx context.Context, resourceID string, date time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, resourceID, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) UpdateBookingStatusWithVersion(ctx context.Context, id string, v int64, s models.Status, at time.Time) error {
	return m.Called(ctx, id, v, s, at).Error(0)
}
func (m *mockRepo) UpdateBookingSlotWithVersion(
	ctx context.Context, id string, v int64, date time.Time, start, end models.TimeOfDay, s models.Status, at time.Time,
) error {
	return m.Called(ctx, id, v, date, start, end, s, at).Error(0)
}
func (m *mockRepo) GetBookingsByStatusBefore(ctx context.Context, s models.Status, before time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, s, before)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) CountBookingsByStatusBefore(ctx context.Context, s []models.Status, before time.Time) (int, error) {
	args := m.Called(ctx, s, before)
	return args.Int(0), args.Error(1)
}
func (m *mockRepo) ListBookings(ctx context.Context, f models.BookingFilter) ([]*models.Booking, error) {
	args := m.Called(ctx, f)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) GetSubjectHistory(ctx context.Context, subjectID string, today time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, subjectID, today)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}
func (m *mockRepo) HasCompletedBooking(ctx context.Context, subjectID, resourceID string) (bool, error) {
	args := m.Called(ctx, subjectID, resourceID)
	return args.Bool(0), args.Error(1)
}

type mockLocker struct {
	mock.Mock
}

func (m *mockLocker) Lock(ctx context.Context, key string) (func(), error) {
	args := m.Called(ctx, key)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(func()), args.Error(1)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}

var (
	jan5  = time.Date(2024, 1, 5, 9, 0, 0, 0, time.UTC)
	jan10 = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)
)

func tod(s string) models.TimeOfDay { return models.MustTimeOfDay(s) }

func newMockedService(repo *mockRepo, locker *mockLocker, pub *mockPublisher, dir domain.Directory) *SchedulingService {
	logger := zerolog.New(io.Discard)
	var publisher domain.EventPublisher
	if pub != nil {
		publisher = pub
	}
	return NewSchedulingService(repo, locker, clock.NewManual(jan5), dir, publisher, 30, &logger)
}

func TestCreateValidationShortCircuits(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		params  models.CreateBookingParams
		wantErr error
	}{
		{
			name:    "end before start",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M1", Date: jan10, StartTime: tod("11:00"), EndTime: tod("10:00")},
			wantErr: domain.ErrInvalidTimeRange,
		},
		{
			name:    "empty interval",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("10:00")},
			wantErr: domain.ErrInvalidTimeRange,
		},
		{
			name:    "invalid range wins over past date",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M1", Date: jan5.AddDate(0, 0, -3), StartTime: tod("11:00"), EndTime: tod("10:00")},
			wantErr: domain.ErrInvalidTimeRange,
		},
		{
			name:    "past date",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M1", Date: jan5.AddDate(0, 0, -1), StartTime: tod("10:00"), EndTime: tod("11:00")},
			wantErr: domain.ErrPastDate,
		},
		{
			name:    "beyond horizon",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M1", Date: jan5.AddDate(0, 0, 31), StartTime: tod("10:00"), EndTime: tod("11:00")},
			wantErr: domain.ErrDateTooFar,
		},
		{
			name:    "unknown coach",
			params:  models.CreateBookingParams{ResourceID: "C9", SubjectID: "M1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00")},
			wantErr: domain.ErrUnknownParticipant,
		},
		{
			name:    "unknown member",
			params:  models.CreateBookingParams{ResourceID: "C1", SubjectID: "M9", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00")},
			wantErr: domain.ErrUnknownParticipant,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(mockRepo)
			locker := new(mockLocker)
			svc := newMockedService(repo, locker, nil, NewStaticDirectory([]string{"C1"}, []string{"M1"}))

			got, err := svc.Create(ctx, tt.params)
			assert.Nil(t, got)
			assert.ErrorIs(t, err, tt.wantErr)

			repo.AssertNotCalled(t, "GetActiveBookings", mock.Anything, mock.Anything, mock.Anything)
			repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
			locker.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
		})
	}
}

func TestCreateSameDayIsAllowed(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	svc := newMockedService(repo, locker, nil, nil)

	today := models.DateOf(jan5)
	locker.On("Lock", ctx, "resource:C1").Return(func() {}, nil).Once()
	repo.On("GetActiveBookings", ctx, "C1", today).Return([]*models.Booking{}, nil).Once()
	repo.On("CreateBooking", ctx, mock.AnythingOfType("*models.Booking")).Return(nil).Once()

	got, err := svc.Create(ctx, models.CreateBookingParams{
		ResourceID: "C1", SubjectID: "M1", Date: jan5, StartTime: tod("07:00"), EndTime: tod("08:00"),
	})
	require.NoError(t, err)
	assert.Equal(t, today, got.Date)
	repo.AssertExpectations(t)
}

func TestCreateLockTimeout(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	svc := newMockedService(repo, locker, nil, nil)

	locker.On("Lock", ctx, "resource:C1").Return(nil, domain.ErrLockTimeout).Once()

	_, err := svc.Create(ctx, models.CreateBookingParams{
		ResourceID: "C1", SubjectID: "M1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00"),
	})
	assert.ErrorIs(t, err, domain.ErrLockTimeout)
	assert.True(t, domain.IsRetryable(err))
	repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestCreateConflictHoldsAndReleasesLock(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	svc := newMockedService(repo, locker, nil, nil)

	released := 0
	locker.On("Lock", ctx, "resource:C1").Return(func() { released++ }, nil).Once()
	existing := []*models.Booking{{
		ID: "A", ResourceID: "C1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00"), Status: models.StatusConfirmed,
	}}
	repo.On("GetActiveBookings", ctx, "C1", jan10).Return(existing, nil).Once()

	_, err := svc.Create(ctx, models.CreateBookingParams{
		ResourceID: "C1", SubjectID: "M2", Date: jan10, StartTime: tod("10:30"), EndTime: tod("11:30"),
	})

	var conflict *domain.ConflictError
	require.ErrorAs(t, err, &conflict)
	assert.Equal(t, "C1", conflict.ResourceID)
	assert.Equal(t, []string{"A"}, conflict.ConflictingIDs)
	assert.Equal(t, 1, released)
	repo.AssertNotCalled(t, "CreateBooking", mock.Anything, mock.Anything)
}

func TestCreatePublishesEvent(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	pub := new(mockPublisher)
	svc := newMockedService(repo, locker, pub, nil)

	locker.On("Lock", ctx, "resource:C1").Return(func() {}, nil).Once()
	repo.On("GetActiveBookings", ctx, "C1", jan10).Return(nil, nil).Once()
	repo.On("CreateBooking", ctx, mock.AnythingOfType("*models.Booking")).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingCreated, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.ResourceID == "C1" && p.Status == models.StatusPending && p.Date == "2024-01-10"
	})).Return(errors.New("subscriber failed")).Once()

	got, err := svc.Create(ctx, models.CreateBookingParams{
		ResourceID: "C1", SubjectID: "M1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00"), Location: "Court 2",
	})
	require.NoError(t, err, "event delivery failures do not fail the write")
	assert.NotEmpty(t, got.ID)
	assert.Equal(t, models.StatusPending, got.Status)
	assert.Equal(t, "Court 2", got.Location)
	assert.Equal(t, jan5, got.CreatedAt)
	pub.AssertExpectations(t)
}

func TestRescheduleNotFound(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	svc := newMockedService(repo, locker, nil, nil)

	repo.On("GetBooking", ctx, "missing").Return(nil, domain.ErrNotFound).Once()

	_, err := svc.Reschedule(ctx, "missing", jan10, tod("10:00"), tod("11:00"))
	assert.ErrorIs(t, err, domain.ErrNotFound)
	locker.AssertNotCalled(t, "Lock", mock.Anything, mock.Anything)
}

func TestRescheduleLostRace(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	locker := new(mockLocker)
	svc := newMockedService(repo, locker, nil, nil)

	current := &models.Booking{
		ID: "A", ResourceID: "C1", Date: jan10, StartTime: tod("10:00"), EndTime: tod("11:00"),
		Status: models.StatusPending, Version: 1,
	}
	newDate := jan10.AddDate(0, 0, 1)
	repo.On("GetBooking", ctx, "A").Return(current, nil).Twice()
	locker.On("Lock", ctx, "resource:C1").Return(func() {}, nil).Once()
	repo.On("GetActiveBookings", ctx, "C1", newDate).Return(nil, nil).Once()
	repo.On("UpdateBookingSlotWithVersion", ctx, "A", int64(1), newDate, tod("12:00"), tod("13:00"), models.StatusRescheduled, jan5).
		Return(domain.ErrConcurrentModification).Once()

	_, err := svc.Reschedule(ctx, "A", newDate, tod("12:00"), tod("13:00"))
	assert.ErrorIs(t, err, domain.ErrConcurrentModification)
	repo.AssertExpectations(t)
}

func TestConfirmBookingWrongState(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := newMockedService(repo, new(mockLocker), nil, nil)

	repo.On("GetBooking", ctx, "A").Return(&models.Booking{ID: "A", Status: models.StatusRescheduled, Version: 2}, nil).Once()

	_, err := svc.ConfirmBooking(ctx, "A")
	var transition *domain.TransitionError
	require.ErrorAs(t, err, &transition)
	assert.Equal(t, models.StatusRescheduled, transition.From)
	assert.Equal(t, models.StatusConfirmed, transition.To)
	repo.AssertNotCalled(t, "UpdateBookingStatusWithVersion", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCancelUsesVersion(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	pub := new(mockPublisher)
	svc := newMockedService(repo, new(mockLocker), pub, nil)

	repo.On("GetBooking", ctx, "A").Return(&models.Booking{ID: "A", Status: models.StatusConfirmed, Version: 4}, nil).Once()
	repo.On("UpdateBookingStatusWithVersion", ctx, "A", int64(4), models.StatusCancelled, jan5).Return(nil).Once()
	pub.On("PublishJSON", events.EventBookingCancelled, mock.MatchedBy(func(p events.BookingEventPayload) bool {
		return p.PreviousStatus == models.StatusConfirmed && p.Status == models.StatusCancelled && p.Version == 5
	})).Return(nil).Once()

	got, err := svc.Cancel(ctx, "A")
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, int64(5), got.Version)
	assert.Equal(t, jan5, got.UpdatedAt)
	repo.AssertExpectations(t)
	pub.AssertExpectations(t)
}

func TestQueriesUseClock(t *testing.T) {
	ctx := context.Background()
	repo := new(mockRepo)
	svc := newMockedService(repo, new(mockLocker), nil, nil)
	today := models.DateOf(jan5)

	repo.On("ListBookings", ctx, models.BookingFilter{
		SubjectID: "M1", Statuses: models.ActiveStatuses, From: today, Ascending: true,
	}).Return([]*models.Booking{}, nil).Once()
	repo.On("GetSubjectHistory", ctx, "M1", today).Return([]*models.Booking{}, nil).Once()
	repo.On("HasCompletedBooking", ctx, "M1", "C1").Return(true, nil).Once()

	_, err := svc.UpcomingForSubject(ctx, "M1")
	require.NoError(t, err)
	_, err = svc.HistoryForSubject(ctx, "M1")
	require.NoError(t, err)
	ok, err := svc.HasCompletedBooking(ctx, "M1", "C1")
	require.NoError(t, err)
	assert.True(t, ok)

	repo.AssertExpectations(t)
}

func TestFindConflictsRejectsInvalidSlot(t *testing.T) {
	repo := new(mockRepo)
	svc := newMockedService(repo, new(mockLocker), nil, nil)

	_, err := svc.FindConflicts(context.Background(), models.Slot{ResourceID: "C1", Date: jan10, Start: tod("12:00"), End: tod("11:00")}, "")
	assert.ErrorIs(t, err, domain.ErrInvalidTimeRange)
	repo.AssertNotCalled(t, "GetActiveBookings", mock.Anything, mock.Anything, mock.Anything)
}

func TestStaticDirectory(t *testing.T) {
	ctx := context.Background()

	open := NewStaticDirectory(nil, nil)
	ok, _ := open.ResourceExists(ctx, "anyone")
	assert.True(t, ok)
	ok, _ = open.SubjectExists(ctx, "  ")
	assert.False(t, ok)

	closed := NewStaticDirectory([]string{" C1 "}, []string{"M1"})
	ok, _ = closed.ResourceExists(ctx, "C1")
	assert.True(t, ok)
	ok, _ = closed.ResourceExists(ctx, "C2")
	assert.False(t, ok)
	ok, _ = closed.SubjectExists(ctx, "M1")
	assert.True(t, ok)
}
