package execution

import (
	"context"

	"trading-core/internal/domain"
)

// ── Boundary Port Interfaces ──
// The coordinator depends on these instead of concrete infrastructure.
// Implementations live under internal/store and internal/events; tests
// substitute in-memory fakes.

// OrderRepository persists orders. Implementations return errors of kind
// PersistenceFailure (or NotFound) rather than panicking across the
// boundary.
type OrderRepository interface {
	Save(ctx context.Context, o *domain.Order) error
	FindByID(ctx context.Context, id string) (*domain.Order, error)
	FindByClientOrderID(ctx context.Context, clientOrderID string) (*domain.Order, error)
	FindActiveOrders(ctx context.Context) ([]*domain.Order, error)
	FindBySymbol(ctx context.Context, symbol string) ([]*domain.Order, error)
	Update(ctx context.Context, o *domain.Order) error
	Delete(ctx context.Context, id string) error
}

// VenueAck is the execution venue's response to a submission or cancel.
type VenueAck struct {
	OrderID string `json:"order_id"`
	Status  string `json:"status"` // ACCEPTED, REJECTED
	Message string `json:"message"`
}

const (
	VenueAccepted = "ACCEPTED"
	VenueRejected = "REJECTED"
)

// VenueClient submits orders to the external execution venue. Calls may fail
// independently of domain validity; callers impose timeouts via ctx.
type VenueClient interface {
	SubmitOrder(ctx context.Context, o *domain.Order) (VenueAck, error)
	CancelOrder(ctx context.Context, orderID string) (VenueAck, error)
}

// Validator performs structural validation of an order before the built-in
// risk checks run.
type Validator interface {
	ValidateOrder(o *domain.Order) error
}

// EventSink receives the ordered batch of domain events raised by one
// successful operation.
type EventSink interface {
	Publish(ctx context.Context, events []domain.Event) error
}
