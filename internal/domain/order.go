// Package domain holds the order entity and its state machine, the value
// types shared across the core, and the typed errors every fallible
// operation returns.
//
// Entities are not thread-safe; the execution coordinator serializes
// mutations per order id.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// Side is the order direction.
type Side string

const (
	Buy  Side = "BUY"
	Sell Side = "SELL"
)

// OrderType distinguishes order kinds.
type OrderType string

const (
	Market   OrderType = "MARKET"
	Limit    OrderType = "LIMIT"
	StopLoss OrderType = "STOP_LOSS"
	Iceberg  OrderType = "ICEBERG"
)

// Status is the order lifecycle state.
type Status string

const (
	StatusPending         Status = "PENDING"
	StatusNew             Status = "NEW"
	StatusPartiallyFilled Status = "PARTIALLY_FILLED"
	StatusFilled          Status = "FILLED"
	StatusCancelled       Status = "CANCELLED"
	StatusRejected        Status = "REJECTED"
	StatusExpired         Status = "EXPIRED"
)

// TimeInForce is the order lifetime policy.
type TimeInForce string

const (
	GTC TimeInForce = "GTC" // good till cancelled
	IOC TimeInForce = "IOC" // immediate or cancel
	FOK TimeInForce = "FOK" // fill or kill
	Day TimeInForce = "DAY"
	GTD TimeInForce = "GTD" // good till date
)

// Order is a tracked, mutable order. Created in StatusPending by one of the
// factory functions; mutated only through Fill, Cancel, Expire, ModifyPrice
// and ModifyQuantity. Terminal states (Filled, Cancelled, Rejected, Expired)
// are immutable.
//
// Invariants held at all times: FilledQty + RemainingQty == Qty;
// RemainingQty >= 0; AvgFillPrice > 0 iff FilledQty > 0; market orders carry
// no limit price.
type Order struct {
	ID            string      `json:"id"`
	ClientOrderID string      `json:"client_order_id,omitempty"`
	Symbol        string      `json:"symbol"`
	Side          Side        `json:"side"`
	Type          OrderType   `json:"type"`
	Qty           Quantity    `json:"qty"`
	LimitPrice    Price       `json:"limit_price,omitempty"`
	StopPrice     Price       `json:"stop_price,omitempty"`
	VisibleQty    Quantity    `json:"visible_qty,omitempty"`
	TIF           TimeInForce `json:"tif"`
	Status        Status      `json:"status"`
	FilledQty     Quantity    `json:"filled_qty"`
	RemainingQty  Quantity    `json:"remaining_qty"`
	AvgFillPrice  float64     `json:"avg_fill_price"`
	RejectReason  string      `json:"reject_reason,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
	ExpiresAt     *time.Time  `json:"expires_at,omitempty"`

	events []Event
}

func newOrder(symbol string, side Side, typ OrderType, qty float64, tif TimeInForce, clientOrderID string) (*Order, error) {
	if symbol == "" {
		return nil, Errf(KindInvalidArgument, "symbol is required")
	}
	if side != Buy && side != Sell {
		return nil, Errf(KindInvalidArgument, "invalid side %q", side)
	}
	q, err := NewQuantity(qty)
	if err != nil {
		return nil, err
	}
	if q.IsZero() {
		return nil, Errf(KindInvalidArgument, "quantity must be positive")
	}
	if tif == "" {
		tif = GTC
	}
	now := time.Now().UTC()
	o := &Order{
		ID:            uuid.NewString(),
		ClientOrderID: clientOrderID,
		Symbol:        symbol,
		Side:          side,
		Type:          typ,
		Qty:           q,
		TIF:           tif,
		Status:        StatusPending,
		RemainingQty:  q,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	o.record(EventOrderCreated, float64(q), 0)
	return o, nil
}

// NewLimitOrder creates a pending limit order. Quantity and price must be
// strictly positive.
func NewLimitOrder(symbol string, side Side, qty, price float64, tif TimeInForce, clientOrderID string) (*Order, error) {
	p, err := NewPrice(price)
	if err != nil {
		return nil, err
	}
	o, err := newOrder(symbol, side, Limit, qty, tif, clientOrderID)
	if err != nil {
		return nil, err
	}
	o.LimitPrice = p
	return o, nil
}

// NewMarketOrder creates a pending market order. Market orders never carry a
// limit price.
func NewMarketOrder(symbol string, side Side, qty float64, tif TimeInForce, clientOrderID string) (*Order, error) {
	return newOrder(symbol, side, Market, qty, tif, clientOrderID)
}

// NewStopLossOrder creates a pending stop-loss order triggered at stopPrice.
func NewStopLossOrder(symbol string, side Side, qty, stopPrice float64, tif TimeInForce, clientOrderID string) (*Order, error) {
	p, err := NewPrice(stopPrice)
	if err != nil {
		return nil, err
	}
	o, err := newOrder(symbol, side, StopLoss, qty, tif, clientOrderID)
	if err != nil {
		return nil, err
	}
	o.StopPrice = p
	return o, nil
}

// NewIcebergOrder creates a pending iceberg order displaying visibleQty of
// the full qty. visibleQty must be positive and must not exceed qty.
func NewIcebergOrder(symbol string, side Side, qty, price, visibleQty float64, tif TimeInForce, clientOrderID string) (*Order, error) {
	p, err := NewPrice(price)
	if err != nil {
		return nil, err
	}
	vq, err := NewQuantity(visibleQty)
	if err != nil {
		return nil, err
	}
	if vq.IsZero() {
		return nil, Errf(KindInvalidArgument, "visible quantity must be positive")
	}
	if float64(vq) > qty {
		return nil, Errf(KindInvalidArgument, "visible quantity %v exceeds order quantity %v", visibleQty, qty)
	}
	o, err := newOrder(symbol, side, Iceberg, qty, tif, clientOrderID)
	if err != nil {
		return nil, err
	}
	o.LimitPrice = p
	o.VisibleQty = vq
	return o, nil
}

// IsActive reports whether the order can still receive fills.
func (o *Order) IsActive() bool {
	return o.Status == StatusNew || o.Status == StatusPartiallyFilled
}

// IsTerminal reports whether the order reached a final state.
func (o *Order) IsTerminal() bool {
	switch o.Status {
	case StatusFilled, StatusCancelled, StatusRejected, StatusExpired:
		return true
	}
	return false
}

// Activate moves a pending order to NEW, making it eligible for fills.
func (o *Order) Activate() error {
	if o.Status != StatusPending {
		return Errf(KindInactiveOrder, "cannot activate order in status %s", o.Status)
	}
	o.Status = StatusNew
	o.touch()
	return nil
}

// Reject marks a pending order as rejected with a reason. Terminal.
func (o *Order) Reject(reason string) error {
	if o.Status != StatusPending {
		return Errf(KindInactiveOrder, "cannot reject order in status %s", o.Status)
	}
	o.Status = StatusRejected
	o.RejectReason = reason
	o.touch()
	return nil
}

// Fill applies a fill of qty units at price. The running average fill price
// is updated as the quantity-weighted mean of all fills so far, so applying
// a fill is O(1) regardless of fill count. The order becomes FILLED when
// remaining quantity reaches zero, PARTIALLY_FILLED otherwise.
func (o *Order) Fill(qty, price float64) error {
	if !o.IsActive() {
		return Errf(KindInactiveOrder, "order %s is %s, not fillable", o.ID, o.Status)
	}
	q, err := NewQuantity(qty)
	if err != nil {
		return err
	}
	if q.IsZero() {
		return Errf(KindInvalidArgument, "fill quantity must be positive")
	}
	p, err := NewPrice(price)
	if err != nil {
		return err
	}
	remaining, err := o.RemainingQty.Sub(q)
	if err != nil {
		return Errf(KindOverFill, "fill %v exceeds remaining %v on order %s", qty, float64(o.RemainingQty), o.ID)
	}

	filledBefore := float64(o.FilledQty)
	o.AvgFillPrice = (o.AvgFillPrice*filledBefore + float64(p)*float64(q)) / (filledBefore + float64(q))
	o.FilledQty += q
	o.RemainingQty = remaining
	if o.RemainingQty.IsZero() {
		o.Status = StatusFilled
	} else {
		o.Status = StatusPartiallyFilled
	}
	o.touch()
	o.record(EventOrderUpdated, float64(q), float64(p))
	return nil
}

// Cancel transitions an active order to CANCELLED.
func (o *Order) Cancel() error {
	if !o.IsActive() {
		return Errf(KindNotCancellable, "order %s is %s, not cancellable", o.ID, o.Status)
	}
	o.Status = StatusCancelled
	o.touch()
	o.record(EventOrderCancelled, 0, 0)
	return nil
}

// Expire transitions an active order to EXPIRED. Callers implementing
// good-till-date semantics invoke this once ExpiresAt has passed.
func (o *Order) Expire() error {
	if !o.IsActive() {
		return Errf(KindNotCancellable, "order %s is %s, not expirable", o.ID, o.Status)
	}
	o.Status = StatusExpired
	o.touch()
	o.record(EventOrderExpired, 0, 0)
	return nil
}

// ModifyPrice replaces the limit price of an active order. Market orders do
// not carry a price and reject the modification.
func (o *Order) ModifyPrice(newPrice float64) error {
	if !o.IsActive() {
		return Errf(KindNotModifiable, "order %s is %s, not modifiable", o.ID, o.Status)
	}
	if o.Type == Market {
		return Errf(KindUnsupportedForType, "market orders have no price to modify")
	}
	p, err := NewPrice(newPrice)
	if err != nil {
		return err
	}
	if o.Type == StopLoss {
		o.StopPrice = p
	} else {
		o.LimitPrice = p
	}
	o.touch()
	o.record(EventOrderUpdated, 0, float64(p))
	return nil
}

// ModifyQuantity replaces the requested quantity of an active order. The new
// quantity must cover what has already been filled; remaining is recomputed
// so that filled + remaining == newQty again.
func (o *Order) ModifyQuantity(newQty float64) error {
	if !o.IsActive() {
		return Errf(KindNotModifiable, "order %s is %s, not modifiable", o.ID, o.Status)
	}
	q, err := NewQuantity(newQty)
	if err != nil {
		return err
	}
	if q.IsZero() {
		return Errf(KindInvalidArgument, "quantity must be positive")
	}
	remaining, err := q.Sub(o.FilledQty)
	if err != nil {
		return Errf(KindInvalidArgument, "new quantity %v is below filled quantity %v", newQty, float64(o.FilledQty))
	}
	o.Qty = q
	o.RemainingQty = remaining
	if o.RemainingQty.IsZero() {
		o.Status = StatusFilled
	}
	o.touch()
	o.record(EventOrderUpdated, float64(q), 0)
	return nil
}

// FillPercentage returns how much of the requested quantity has filled,
// 0..100.
func (o *Order) FillPercentage() float64 {
	if o.Qty.IsZero() {
		return 0
	}
	return float64(o.FilledQty) / float64(o.Qty) * 100
}

// NotionalValue returns qty x limit price. Market orders have no fixed price
// and return UnsupportedForOrderType.
func (o *Order) NotionalValue() (float64, error) {
	switch o.Type {
	case Market:
		return 0, Errf(KindUnsupportedForType, "market orders have no fixed price")
	case StopLoss:
		return Notional(o.Qty, o.StopPrice), nil
	default:
		return Notional(o.Qty, o.LimitPrice), nil
	}
}

// DisplayedQty returns the quantity visible to the market: the iceberg
// visible slice capped at remaining, or remaining for other order types.
func (o *Order) DisplayedQty() Quantity {
	if o.Type == Iceberg && o.VisibleQty < o.RemainingQty {
		return o.VisibleQty
	}
	return o.RemainingQty
}

// Clone returns a copy of the order without its pending events. Stores keep
// clones so undispatched events never round-trip through persistence.
func (o *Order) Clone() *Order {
	cp := *o
	cp.events = nil
	return &cp
}

// TakeEvents drains and returns the events accumulated since the last call,
// in the order they were raised. Callers dispatch them exactly once after a
// successful operation.
func (o *Order) TakeEvents() []Event {
	evts := o.events
	o.events = nil
	return evts
}

func (o *Order) touch() {
	o.UpdatedAt = time.Now().UTC()
}

func (o *Order) record(typ EventType, qty, price float64) {
	o.events = append(o.events, Event{
		Type:    typ,
		OrderID: o.ID,
		Symbol:  o.Symbol,
		Status:  o.Status,
		Qty:     qty,
		Price:   price,
		At:      time.Now().UTC(),
	})
}
