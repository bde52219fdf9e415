package models

import "time"

// Booking is a single reservation of one resource (coach) by one subject (member)
// for the half-open interval [StartTime, EndTime) on Date.
type Booking struct {
	ID         string    `json:"id"`
	ResourceID string    `json:"resource_id"`
	SubjectID  string    `json:"subject_id"`
	Date       time.Time `json:"date"`
	StartTime  TimeOfDay `json:"start_time"`
	EndTime    TimeOfDay `json:"end_time"`
	Location   string    `json:"location"`
	Status     Status    `json:"status"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
	Version    int64     `json:"version"`
}

// IsActive reports whether the booking still holds its slot.
func (b *Booking) IsActive() bool {
	return b != nil && b.Status.IsActive()
}

// SameDay reports whether the booking falls on the given calendar date.
func (b *Booking) SameDay(date time.Time) bool {
	return DateOf(b.Date).Equal(DateOf(date))
}

// BookingFilter narrows ListBookings. Zero values mean "any".
type BookingFilter struct {
	ResourceID string
	SubjectID  string
	Statuses   []Status
	From       time.Time
	To         time.Time
	Limit      int
	Ascending  bool
}

// Slot is a candidate interval for a resource on a date.
type Slot struct {
	ResourceID string
	Date       time.Time
	Start      TimeOfDay
	End        TimeOfDay
}

// SlotOf returns the slot currently held by b.
func SlotOf(b *Booking) Slot {
	return Slot{ResourceID: b.ResourceID, Date: b.Date, Start: b.StartTime, End: b.EndTime}
}

// CreateBookingParams is the input of a new booking request.
type CreateBookingParams struct {
	ResourceID string
	SubjectID  string
	Date       time.Time
	StartTime  TimeOfDay
	EndTime    TimeOfDay
	Location   string
}

// DateOf returns the calendar date of t as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// ParseDate parses a YYYY-MM-DD date.
func ParseDate(s string) (time.Time, error) {
	t, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, err
	}
	return DateOf(t), nil
}

// FormatDate formats the calendar date of t as YYYY-MM-DD.
func FormatDate(t time.Time) string {
	return DateOf(t).Format(DateLayout)
}
