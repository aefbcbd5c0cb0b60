package events

import (
	"encoding/json"
	"sync"
	"time"

	"zenteach/internal/models"
)

// Reservation lifecycle event types.
const (
	ReservationCreated   = "reservation.created"
	ReservationConfirmed = "reservation.confirmed"
	ReservationCancelled = "reservation.cancelled"
)

// Event represents a lightweight domain event.
type Event struct {
	Type      string
	Payload   []byte
	CreatedAt time.Time
}

// ReservationPayload is the JSON payload carried by reservation events.
type ReservationPayload struct {
	ID          int64     `json:"id"`
	Reference   string    `json:"reference"`
	UserID      int64     `json:"user_id"`
	ServiceID   int64     `json:"service_id"`
	ServiceName string    `json:"service_name"`
	ScheduledAt time.Time `json:"scheduled_at"`
	Status      string    `json:"status"`
}

// Handler reacts to an event.
type Handler func(event Event) error

// Bus provides in-process pub/sub for reservation lifecycle events.
type Bus struct {
	subscribers map[string][]Handler
	mu          sync.RWMutex
}

// NewBus constructs an empty bus.
func NewBus() *Bus {
	return &Bus{subscribers: make(map[string][]Handler)}
}

// Subscribe registers a handler for a given event type.
func (b *Bus) Subscribe(eventType string, handler Handler) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subscribers[eventType] = append(b.subscribers[eventType], handler)
}

// Publish notifies subscribers of the event type.
func (b *Bus) Publish(event Event) {
	b.mu.RLock()
	handlers := append([]Handler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishReservation publishes a lifecycle event for a reservation.
func (b *Bus) PublishReservation(eventType string, r *models.Reservation) {
	if r == nil {
		return
	}
	payload, err := json.Marshal(ReservationPayload{
		ID:          r.ID,
		Reference:   r.Reference,
		UserID:      r.UserID,
		ServiceID:   r.ServiceID,
		ServiceName: r.ServiceName,
		ScheduledAt: r.ScheduledAt,
		Status:      r.Status,
	})
	if err != nil {
		return
	}
	b.Publish(Event{Type: eventType, Payload: payload})
}
