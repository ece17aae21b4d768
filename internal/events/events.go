package events

import (
	"encoding/json"
	"sync"
	"time"

	"klimatik/internal/models"
)

const (
	EventOrderCreated       = "order_created"
	EventOrderStatusChanged = "order_status_changed"
	EventReviewSubmitted    = "review_submitted"
)

// OrderEventPayload describes the minimal order snapshot for event consumers.
type OrderEventPayload struct {
	OrderID    int64              `json:"order_id"`
	Kind       string             `json:"kind"`
	ItemID     int64              `json:"item_id"`
	ItemName   string             `json:"item_name"`
	Date       time.Time          `json:"date"`
	TimeSlot   string             `json:"time_slot"`
	Phone      string             `json:"phone"`
	Customer   string             `json:"customer"`
	Status     models.OrderStatus `json:"status"`
	PrevStatus models.OrderStatus `json:"prev_status,omitempty"`
	ChangedBy  string             `json:"changed_by,omitempty"`
}

// ReviewEventPayload — новый отзыв, ждущий модерации.
type ReviewEventPayload struct {
	ReviewID int64  `json:"review_id"`
	Name     string `json:"name"`
	Rating   int    `json:"rating"`
	Text     string `json:"text"`
}

// Event represents a lightweight domain event.
type Event struct {
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

// Publish notifies subscribers of the event type.
func (b *EventBus) Publish(event *Event) {
	b.mu.RLock()
	handlers := append([]EventHandler(nil), b.subscribers[event.Type]...)
	b.mu.RUnlock()

	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now()
	}

	for _, handler := range handlers {
		// Handlers run synchronously; caller decides concurrency model.
		_ = handler(event)
	}
}

// PublishJSON serializes the payload and publishes an event.
func (b *EventBus) PublishJSON(eventType string, payload any) error {
	if b == nil {
		return nil
	}

	raw, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	b.Publish(&Event{Type: eventType, Payload: raw, CreatedAt: time.Now()})
	return nil
}

// DecodeOrderPayload unmarshals an order payload from an event.
func DecodeOrderPayload(event *Event) (OrderEventPayload, error) {
	var p OrderEventPayload
	err := json.Unmarshal(event.Payload, &p)
	return p, err
}

// DecodeReviewPayload unmarshals a review payload from an event.
func DecodeReviewPayload(event *Event) (ReviewEventPayload, error) {
	var p ReviewEventPayload
	err := json.Unmarshal(event.Payload, &p)
	return p, err
}
