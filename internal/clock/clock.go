// Package clock supplies the scheduling core with "now".
package clock

import (
	"sync"
	"time"

	"coachbook/internal/models"
)

// Clock is the only source of the current time for validation and sweeps.
type Clock interface {
	Now() time.Time
	// Today returns the current calendar date as midnight UTC.
	Today() time.Time
}

// System reads the wall clock in a single canonical location.
type System struct {
	loc *time.Location
}

// NewSystem returns a wall clock for loc; nil means UTC.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.UTC
	}
	return &System{loc: loc}
}

func (c *System) Now() time.Time {
	return time.Now().In(c.loc)
}

func (c *System) Today() time.Time {
	return models.DateOf(c.Now())
}

func (c *System) Location() *time.Location {
	return c.loc
}

// Manual is a controllable clock for tests and replays.
type Manual struct {
	mu      sync.Mutex
	current time.Time
}

func NewManual(start time.Time) *Manual {
	return &Manual{current: start}
}

func (c *Manual) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

func (c *Manual) Today() time.Time {
	return models.DateOf(c.Now())
}

// Set moves the clock to t.
func (c *Manual) Set(t time.Time) {
	c.mu.Lock()
	c.current = t
	c.mu.Unlock()
}

// Advance moves the clock forward by d and returns the new time.
func (c *Manual) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = c.current.Add(d)
	return c.current
}
