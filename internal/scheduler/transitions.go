package scheduler

import (
	"coachbook/internal/domain"
	"coachbook/internal/models"
)

// transitions is the complete lifecycle graph. Anything absent is illegal.
var transitions = map[models.Status][]models.Status{
	models.StatusPending:     {models.StatusConfirmed, models.StatusCancelled, models.StatusRescheduled},
	models.StatusConfirmed:   {models.StatusCancelled, models.StatusCompleted, models.StatusRescheduled},
	models.StatusRescheduled: {models.StatusConfirmed, models.StatusCancelled},
	models.StatusCancelled:   {},
	models.StatusCompleted:   {},
}

// CanTransition reports whether from -> to is a legal edge.
func CanTransition(from, to models.Status) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// ValidateTransition returns a *domain.TransitionError for illegal edges.
func ValidateTransition(from, to models.Status) error {
	if !CanTransition(from, to) {
		return &domain.TransitionError{From: from, To: to}
	}
	return nil
}

// IsTerminal reports whether no transition leaves s.
func IsTerminal(s models.Status) bool {
	return len(transitions[s]) == 0
}

// AllowedTransitions returns a copy of the outgoing edges of s.
func AllowedTransitions(s models.Status) []models.Status {
	return append([]models.Status(nil), transitions[s]...)
}
