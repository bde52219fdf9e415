package events

import (
	"encoding/json"
	"errors"
	"sync"
	"time"

	"coachbook/internal/models"

	"github.com/google/uuid"
)

const (
	EventBookingCreated            = "booking_created"
	EventBookingConfirmed          = "booking_confirmed"
	EventBookingCancelled          = "booking_cancelled"
	EventBookingRescheduled        = "booking_rescheduled"
	EventBookingRescheduleAccepted = "booking_reschedule_accepted"
	EventBookingRescheduleRejected = "booking_reschedule_rejected"
	EventBookingCompleted          = "booking_completed"
)

// BookingEventPayload is the booking snapshot handed to event consumers.
type BookingEventPayload struct {
	BookingID      string           `json:"booking_id"`
	ResourceID     string           `json:"resource_id"`
	SubjectID      string           `json:"subject_id"`
	Date           string           `json:"date"`
	StartTime      models.TimeOfDay `json:"start_time"`
	EndTime        models.TimeOfDay `json:"end_time"`
	Location       string           `json:"location,omitempty"`
	Status         models.Status    `json:"status"`
	PreviousStatus models.Status    `json:"previous_status,omitempty"`
	Version        int64            `json:"version"`
	OccurredAt     time.Time        `json:"occurred_at"`
}

// NewBookingEventPayload snapshots b after a change from previous.
func NewBookingEventPayload(b *models.Booking, previous models.Status, at time.Time) BookingEventPayload {
	return BookingEventPayload{
		BookingID:      b.ID,
		ResourceID:     b.ResourceID,
		SubjectID:      b.SubjectID,
		Date:           models.FormatDate(b.Date),
		StartTime:      b.StartTime,
		EndTime:        b.EndTime,
		Location:       b.Location,
		Status:         b.Status,
		PreviousStatus: previous,
		Version:        b.Version,
		OccurredAt:     at,
	}
}

// Event represents a lightweight domain event.
type Event struct {
	ID        string
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// EventHandler reacts to an event.
type EventHandler func(event *Event) error

// EventBus provides in-process pub/sub for events.
type EventBus struct {
	subscribers map[string][]EventHandler
	mu          sync.RWMutex
}

// NewEventBus constructs an empty bus.
func NewEventBus() *EventBus {
	return &EventBus{subscribers: make(map[string][]EventHandler)}
}

// Subscribe registers a handler for a given event type.
func (b *EventBus) Subscribe(eventType string, handler EventHandler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type. Every handler runs even if an
// earlier one fails; their errors are joined.
func (b *EventBus) Publish(event *Event) error {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	var errs []error
	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		if err := handler(event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload interface{}) error {
	if b == nil {
		return nil
	}

	event, err := NewJSONEvent(eventType, payload)
	if err != nil {
		return err
	}
	return b.Publish(&event)
}

// NewJSONEvent builds an Event with JSON payload for manual publishing.
func NewJSONEvent(eventType string, payload interface{}) (Event, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Event{}, err
	}

	return Event{ID: uuid.NewString(), Type: eventType, Payload: raw, CreatedAt: time.Now()}, nil
}
