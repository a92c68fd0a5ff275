package domain

import "time"

// EventType identifies a domain event.
type EventType string

const (
	EventOrderCreated   EventType = "ORDER_CREATED"
	EventOrderUpdated   EventType = "ORDER_UPDATED"
	EventOrderCancelled EventType = "ORDER_CANCELLED"
	EventOrderExpired   EventType = "ORDER_EXPIRED"
)

// Event is a domain event raised by an entity during a mutation. Events
// accumulate on the entity and are drained with TakeEvents after the
// operation that raised them succeeds.
type Event struct {
	Type    EventType `json:"type"`
	OrderID string    `json:"order_id"`
	Symbol  string    `json:"symbol"`
	Status  Status    `json:"status"`
	Qty     float64   `json:"qty,omitempty"`
	Price   float64   `json:"price,omitempty"`
	At      time.Time `json:"at"`
}
