package scheduler

import (
	"errors"
	"testing"
	"time"

	"coachbook/internal/domain"
	"coachbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var day = time.Date(2024, 1, 10, 0, 0, 0, 0, time.UTC)

func tod(s string) models.TimeOfDay { return models.MustTimeOfDay(s) }

func booking(id, resource string, date time.Time, start, end string, status models.Status) *models.Booking {
	return &models.Booking{
		ID:         id,
		ResourceID: resource,
		SubjectID:  "M1",
		Date:       date,
		StartTime:  tod(start),
		EndTime:    tod(end),
		Status:     status,
	}
}

func TestOverlapsSymmetric(t *testing.T) {
	// every interval on a 15-minute grid between 08:00 and 11:00
	var points []models.TimeOfDay
	for m := 8 * 60; m <= 11*60; m += 15 {
		points = append(points, models.TimeOfDay(m))
	}
	for _, aStart := range points {
		for _, aEnd := range points {
			if aEnd <= aStart {
				continue
			}
			for _, bStart := range points {
				for _, bEnd := range points {
					if bEnd <= bStart {
						continue
					}
					assert.Equal(t,
						Overlaps(aStart, aEnd, bStart, bEnd),
						Overlaps(bStart, bEnd, aStart, aEnd),
						"%s-%s vs %s-%s", aStart, aEnd, bStart, bEnd)
				}
			}
		}
	}
}

func TestOverlapsBoundaries(t *testing.T) {
	tests := []struct {
		name       string
		a1, a2     string
		b1, b2     string
		overlapped bool
	}{
		{"touching after", "09:00", "10:00", "10:00", "11:00", false},
		{"touching before", "10:00", "11:00", "09:00", "10:00", false},
		{"partial", "09:00", "10:00", "09:30", "10:30", true},
		{"contained", "09:00", "12:00", "10:00", "11:00", true},
		{"identical", "09:00", "10:00", "09:00", "10:00", true},
		{"disjoint", "08:00", "09:00", "10:00", "11:00", false},
		{"one minute", "09:00", "10:01", "10:00", "11:00", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.overlapped, Overlaps(tod(tt.a1), tod(tt.a2), tod(tt.b1), tod(tt.b2)))
		})
	}
}

func TestValidateSlot(t *testing.T) {
	ok := models.Slot{ResourceID: "C1", Date: day, Start: tod("09:00"), End: tod("10:00")}
	assert.NoError(t, ValidateSlot(ok))

	equal := ok
	equal.End = equal.Start
	assert.ErrorIs(t, ValidateSlot(equal), domain.ErrInvalidTimeRange)

	reversed := ok
	reversed.Start, reversed.End = ok.End, ok.Start
	assert.ErrorIs(t, ValidateSlot(reversed), domain.ErrInvalidTimeRange)

	outOfRange := ok
	outOfRange.End = models.TimeOfDay(models.MinutesPerDay + 1)
	assert.ErrorIs(t, ValidateSlot(outOfRange), domain.ErrInvalidTimeRange)
}

func TestHasConflict(t *testing.T) {
	existing := []*models.Booking{
		booking("A", "C1", day, "09:00", "10:00", models.StatusConfirmed),
		booking("X", "C1", day, "12:00", "13:00", models.StatusCancelled),
		booking("Y", "C1", day, "13:00", "14:00", models.StatusCompleted),
		booking("P", "C1", day, "15:00", "16:00", models.StatusPending),
		booking("R", "C1", day, "17:00", "18:00", models.StatusRescheduled),
		booking("O", "C2", day, "10:00", "11:00", models.StatusConfirmed),
		booking("N", "C1", day.AddDate(0, 0, 1), "10:00", "11:00", models.StatusConfirmed),
	}
	slot := func(start, end string) models.Slot {
		return models.Slot{ResourceID: "C1", Date: day, Start: tod(start), End: tod(end)}
	}

	assert.True(t, HasConflict(existing, slot("09:30", "10:30"), ""), "partial overlap with confirmed")
	assert.False(t, HasConflict(existing, slot("10:00", "11:00"), ""), "touching boundary")
	assert.False(t, HasConflict(existing, slot("12:00", "14:00"), ""), "cancelled and completed free the slot")
	assert.True(t, HasConflict(existing, slot("15:30", "15:45"), ""), "pending holds the slot")
	assert.True(t, HasConflict(existing, slot("16:59", "17:01"), ""), "rescheduled holds the slot")
	assert.False(t, HasConflict(existing, slot("09:00", "10:00"), "A"), "self exclusion")
	assert.False(t, HasConflict(nil, slot("09:00", "10:00"), ""))

	other := models.Slot{ResourceID: "C3", Date: day, Start: tod("09:00"), End: tod("10:00")}
	assert.False(t, HasConflict(existing, other, ""))
}

func TestFindConflicts(t *testing.T) {
	existing := []*models.Booking{
		booking("A", "C1", day, "09:00", "10:00", models.StatusConfirmed),
		booking("B", "C1", day, "10:00", "11:00", models.StatusPending),
		booking("C", "C1", day, "11:00", "12:00", models.StatusPending),
	}
	candidate := models.Slot{ResourceID: "C1", Date: day, Start: tod("09:30"), End: tod("10:30")}

	conflicts := FindConflicts(existing, candidate, "")
	require.Len(t, conflicts, 2)
	assert.Equal(t, "A", conflicts[0].ID)
	assert.Equal(t, "B", conflicts[1].ID)

	err := NewConflictError(candidate, conflicts)
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, "C1", err.ResourceID)
	assert.Equal(t, []string{"A", "B"}, err.ConflictingIDs)
}
