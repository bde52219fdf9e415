package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"coachbook/internal/domain"
	"coachbook/internal/models"

	"github.com/mattn/go-sqlite3"
)

const bookingColumns = `id, resource_id, subject_id, date, start_minute, end_minute,
                        location, status, created_at, updated_at, version`

type rowScanner interface {
	Scan(dest ...any) error
}

func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	query := `INSERT INTO bookings (` + bookingColumns + `) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	created := booking.CreatedAt
	if created.IsZero() {
		return errors.New("failed to create booking: created_at is required")
	}
	if booking.Status == "" {
		booking.Status = models.StatusPending
	}

	_, err := db.ExecContext(ctx, query,
		booking.ID,
		booking.ResourceID,
		booking.SubjectID,
		models.FormatDate(booking.Date),
		int(booking.StartTime),
		int(booking.EndTime),
		booking.Location,
		string(booking.Status),
		created,
		created,
		1,
	)
	if err != nil {
		return fmt.Errorf("failed to create booking: %w", mapWriteError(err, booking.ResourceID, booking.Date))
	}

	booking.Date = models.DateOf(booking.Date)
	booking.CreatedAt = created
	booking.UpdatedAt = created
	booking.Version = 1
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	return booking, nil
}

// GetActiveBookings returns the bookings that currently hold slots of a resource on a date.
func (db *DB) GetActiveBookings(ctx context.Context, resourceID string, date time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE resource_id = ? AND date = ? AND status IN ` + inList(models.ActiveStatuses) + `
              ORDER BY start_minute ASC, created_at ASC`
	bookings, err := db.queryBookings(ctx, query, resourceID, models.FormatDate(date))
	if err != nil {
		return nil, fmt.Errorf("failed to get active bookings: %w", err)
	}
	return bookings, nil
}

// UpdateBookingStatusWithVersion sets the status and stamps updated_at with at.
func (db *DB) UpdateBookingStatusWithVersion(
	ctx context.Context,
	id string,
	fromVersion int64,
	status models.Status,
	at time.Time,
) error {
	query := `UPDATE bookings SET status = ?, version = version + 1, updated_at = ? WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query, string(status), at, id, fromVersion)
	if err != nil {
		resourceID, date := db.slotOwner(ctx, id)
		return fmt.Errorf("failed to update booking status: %w", mapWriteError(err, resourceID, date))
	}
	return db.checkVersionedWrite(ctx, result, id)
}

// UpdateBookingSlotWithVersion moves a booking and sets its status in one statement.
func (db *DB) UpdateBookingSlotWithVersion(
	ctx context.Context,
	id string,
	fromVersion int64,
	date time.Time,
	start, end models.TimeOfDay,
	status models.Status,
	at time.Time,
) error {
	query := `UPDATE bookings
              SET date = ?, start_minute = ?, end_minute = ?, status = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := db.ExecContext(ctx, query,
		models.FormatDate(date), int(start), int(end), string(status), at, id, fromVersion)
	if err != nil {
		resourceID, _ := db.slotOwner(ctx, id)
		return fmt.Errorf("failed to update booking slot: %w", mapWriteError(err, resourceID, date))
	}
	return db.checkVersionedWrite(ctx, result, id)
}

// GetBookingsByStatusBefore returns bookings in status dated strictly before the given day.
func (db *DB) GetBookingsByStatusBefore(ctx context.Context, status models.Status, before time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE status = ? AND date < ?
              ORDER BY date ASC, start_minute ASC`
	bookings, err := db.queryBookings(ctx, query, string(status), models.FormatDate(before))
	if err != nil {
		return nil, fmt.Errorf("failed to get bookings by status: %w", err)
	}
	return bookings, nil
}

func (db *DB) CountBookingsByStatusBefore(ctx context.Context, statuses []models.Status, before time.Time) (int, error) {
	if len(statuses) == 0 {
		return 0, nil
	}
	query := `SELECT COUNT(*) FROM bookings WHERE status IN ` + inList(statuses) + ` AND date < ?`
	var count int
	if err := db.QueryRowContext(ctx, query, models.FormatDate(before)).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count bookings: %w", err)
	}
	return count, nil
}

func (db *DB) ListBookings(ctx context.Context, filter models.BookingFilter) ([]*models.Booking, error) {
	var (
		where []string
		args  []any
	)
	if filter.ResourceID != "" {
		where = append(where, "resource_id = ?")
		args = append(args, filter.ResourceID)
	}
	if filter.SubjectID != "" {
		where = append(where, "subject_id = ?")
		args = append(args, filter.SubjectID)
	}
	if len(filter.Statuses) > 0 {
		for _, s := range filter.Statuses {
			if !s.IsValid() {
				return nil, fmt.Errorf("invalid status filter: %q", s)
			}
		}
		where = append(where, "status IN "+inList(filter.Statuses))
	}
	if !filter.From.IsZero() {
		where = append(where, "date >= ?")
		args = append(args, models.FormatDate(filter.From))
	}
	if !filter.To.IsZero() {
		where = append(where, "date <= ?")
		args = append(args, models.FormatDate(filter.To))
	}

	query := `SELECT ` + bookingColumns + ` FROM bookings`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	if filter.Ascending {
		query += " ORDER BY date ASC, start_minute ASC, created_at ASC"
	} else {
		query += " ORDER BY date DESC, start_minute DESC, created_at DESC"
	}
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	bookings, err := db.queryBookings(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list bookings: %w", err)
	}
	return bookings, nil
}

// GetSubjectHistory returns a member's past or finished bookings, newest first.
func (db *DB) GetSubjectHistory(ctx context.Context, subjectID string, today time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings
              WHERE subject_id = ? AND (date < ? OR status IN ` + inList(terminalStatuses) + `)
              ORDER BY date DESC, start_minute DESC, created_at DESC`
	bookings, err := db.queryBookings(ctx, query, subjectID, models.FormatDate(today))
	if err != nil {
		return nil, fmt.Errorf("failed to get subject history: %w", err)
	}
	return bookings, nil
}

func (db *DB) HasCompletedBooking(ctx context.Context, subjectID, resourceID string) (bool, error) {
	query := `SELECT EXISTS (SELECT 1 FROM bookings WHERE subject_id = ? AND resource_id = ? AND status = ?)`
	var exists bool
	if err := db.QueryRowContext(ctx, query, subjectID, resourceID, string(models.StatusCompleted)).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check completed booking: %w", err)
	}
	return exists, nil
}

var terminalStatuses = []models.Status{models.StatusCancelled, models.StatusCompleted}

// slotOwner looks up the resource and date of a booking for error reporting.
// A failed lookup yields zero values.
func (db *DB) slotOwner(ctx context.Context, id string) (string, time.Time) {
	current, err := db.GetBooking(ctx, id)
	if err != nil {
		return "", time.Time{}
	}
	return current.ResourceID, current.Date
}

func (db *DB) checkVersionedWrite(ctx context.Context, result sql.Result, id string) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows > 0 {
		return nil
	}

	var exists bool
	if err := db.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM bookings WHERE id = ?)`, id).Scan(&exists); err != nil {
		return fmt.Errorf("failed to check booking existence: %w", err)
	}
	if !exists {
		return fmt.Errorf("booking %s: %w", id, domain.ErrNotFound)
	}
	return domain.ErrConcurrentModification
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []*models.Booking
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return bookings, nil
}

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b          models.Booking
		dateStr    string
		statusStr  string
		start, end int
	)
	err := row.Scan(
		&b.ID, &b.ResourceID, &b.SubjectID, &dateStr, &start, &end,
		&b.Location, &statusStr, &b.CreatedAt, &b.UpdatedAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}

	b.Date, err = models.ParseDate(dateStr)
	if err != nil {
		return nil, fmt.Errorf("failed to parse booking date %s: %w", dateStr, err)
	}
	b.Status, err = models.ParseStatus(statusStr)
	if err != nil {
		return nil, err
	}
	b.StartTime = models.TimeOfDay(start)
	b.EndTime = models.TimeOfDay(end)
	return &b, nil
}

// mapWriteError translates SQLite constraint failures into domain errors.
func mapWriteError(err error, resourceID string, date time.Time) error {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return err
	}
	switch {
	case strings.Contains(sqliteErr.Error(), overlapTrigger):
		return &domain.ConflictError{ResourceID: resourceID, Date: models.DateOf(date)}
	case sqliteErr.ExtendedCode == sqlite3.ErrConstraintCheck:
		return fmt.Errorf("%w: %v", domain.ErrInvalidTimeRange, err)
	default:
		return err
	}
}
