// Package scheduler holds the pure scheduling rules: interval conflicts and
// the booking status state machine. Nothing here touches storage.
package scheduler

import (
	"coachbook/internal/domain"
	"coachbook/internal/models"
)

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Touching intervals (aEnd == bStart) do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd models.TimeOfDay) bool {
	return aStart < bEnd && aEnd > bStart
}

// ValidateSlot checks the half-open interval invariant.
func ValidateSlot(slot models.Slot) error {
	if !slot.Start.Valid() || !slot.End.Valid() || slot.Start >= slot.End {
		return domain.ErrInvalidTimeRange
	}
	return nil
}

// HasConflict reports whether any active booking of the same resource and date
// overlaps the candidate. The booking with excludeID is ignored.
func HasConflict(existing []*models.Booking, candidate models.Slot, excludeID string) bool {
	for _, b := range existing {
		if collides(b, candidate, excludeID) {
			return true
		}
	}
	return false
}

// FindConflicts is the enumerating variant of HasConflict.
func FindConflicts(existing []*models.Booking, candidate models.Slot, excludeID string) []*models.Booking {
	var conflicts []*models.Booking
	for _, b := range existing {
		if collides(b, candidate, excludeID) {
			conflicts = append(conflicts, b)
		}
	}
	return conflicts
}

// NewConflictError builds the caller-facing error for a set of conflicting bookings.
func NewConflictError(candidate models.Slot, conflicts []*models.Booking) *domain.ConflictError {
	ids := make([]string, 0, len(conflicts))
	for _, b := range conflicts {
		ids = append(ids, b.ID)
	}
	return &domain.ConflictError{
		ResourceID:     candidate.ResourceID,
		Date:           models.DateOf(candidate.Date),
		ConflictingIDs: ids,
	}
}

func collides(b *models.Booking, candidate models.Slot, excludeID string) bool {
	if b == nil || !b.IsActive() {
		return false
	}
	if excludeID != "" && b.ID == excludeID {
		return false
	}
	if b.ResourceID != candidate.ResourceID || !b.SameDay(candidate.Date) {
		return false
	}
	return Overlaps(candidate.Start, candidate.End, b.StartTime, b.EndTime)
}
