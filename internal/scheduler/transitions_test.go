package scheduler

import (
	"errors"
	"testing"

	"coachbook/internal/domain"
	"coachbook/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type edge struct{ from, to models.Status }

var legalEdges = map[edge]bool{
	{models.StatusPending, models.StatusConfirmed}:     true,
	{models.StatusPending, models.StatusCancelled}:     true,
	{models.StatusConfirmed, models.StatusCancelled}:   true,
	{models.StatusConfirmed, models.StatusCompleted}:   true,
	{models.StatusPending, models.StatusRescheduled}:   true,
	{models.StatusConfirmed, models.StatusRescheduled}: true,
	{models.StatusRescheduled, models.StatusConfirmed}: true,
	{models.StatusRescheduled, models.StatusCancelled}: true,
}

func TestTransitionTableClosure(t *testing.T) {
	for _, from := range models.AllStatuses {
		for _, to := range models.AllStatuses {
			err := ValidateTransition(from, to)
			if legalEdges[edge{from, to}] {
				assert.NoError(t, err, "%s -> %s", from, to)
				assert.True(t, CanTransition(from, to))
				continue
			}

			require.Error(t, err, "%s -> %s", from, to)
			assert.ErrorIs(t, err, domain.ErrInvalidTransition)

			var te *domain.TransitionError
			require.True(t, errors.As(err, &te))
			assert.Equal(t, from, te.From)
			assert.Equal(t, to, te.To)
		}
	}
}

func TestUnknownStatusRejected(t *testing.T) {
	assert.Error(t, ValidateTransition("changed", models.StatusConfirmed))
	assert.Error(t, ValidateTransition(models.StatusPending, "changed"))
}

func TestTerminalStates(t *testing.T) {
	assert.True(t, IsTerminal(models.StatusCancelled))
	assert.True(t, IsTerminal(models.StatusCompleted))
	assert.False(t, IsTerminal(models.StatusPending))
	assert.False(t, IsTerminal(models.StatusConfirmed))
	assert.False(t, IsTerminal(models.StatusRescheduled))
}

func TestAllowedTransitionsIsCopy(t *testing.T) {
	allowed := AllowedTransitions(models.StatusRescheduled)
	assert.ElementsMatch(t, []models.Status{models.StatusConfirmed, models.StatusCancelled}, allowed)

	allowed[0] = models.StatusCompleted
	assert.False(t, CanTransition(models.StatusRescheduled, models.StatusCompleted))
}
