package execution

import (
	"context"
	"fmt"
	"sync"
	"time"

	"trading-core/internal/domain"
)

// PaperFill is a simulated execution produced by the paper venue.
type PaperFill struct {
	OrderID   string    `json:"order_id"`
	Symbol    string    `json:"symbol"`
	Qty       float64   `json:"qty"`
	FillPrice float64   `json:"fill_price"`
	Slippage  float64   `json:"slippage"`
	FilledAt  time.Time `json:"filled_at"`
}

// PaperVenue simulates an execution venue without external calls. It
// acknowledges submissions immediately and emits a full fill for each
// accepted order on its fill channel, applying configurable slippage.
// Useful for paper trading and coordinator tests.
type PaperVenue struct {
	mu       sync.RWMutex
	fills    []PaperFill
	fillCh   chan PaperFill
	venueSeq int64

	// slippageBps is simulated slippage in basis points (5 = 0.05%).
	slippageBps float64

	// RejectFn, when set, is consulted per order; a non-empty return
	// rejects the submission with that message.
	RejectFn func(o *domain.Order) string
}

// NewPaperVenue creates a paper venue with the given fill buffer and
// slippage in basis points.
func NewPaperVenue(fillBufferSize int, slippageBps float64) *PaperVenue {
	return &PaperVenue{
		fills:       make([]PaperFill, 0, 1000),
		fillCh:      make(chan PaperFill, fillBufferSize),
		slippageBps: slippageBps,
	}
}

// Fills returns the channel of simulated fills. The coordinator's fill
// handler consumes it.
func (v *PaperVenue) Fills() <-chan PaperFill {
	return v.fillCh
}

// FillHistory returns a snapshot of all fills emitted so far.
func (v *PaperVenue) FillHistory() []PaperFill {
	v.mu.RLock()
	defer v.mu.RUnlock()
	cp := make([]PaperFill, len(v.fills))
	copy(cp, v.fills)
	return cp
}

// SubmitOrder acknowledges the order and queues a simulated full fill at the
// order's reference price plus slippage. Market orders carry no price the
// simulator could fill at and are rejected.
func (v *PaperVenue) SubmitOrder(_ context.Context, o *domain.Order) (VenueAck, error) {
	if v.RejectFn != nil {
		if msg := v.RejectFn(o); msg != "" {
			return VenueAck{OrderID: o.ID, Status: VenueRejected, Message: msg}, nil
		}
	}

	refPrice := float64(o.LimitPrice)
	if o.Type == domain.StopLoss {
		refPrice = float64(o.StopPrice)
	}
	if refPrice <= 0 {
		return VenueAck{OrderID: o.ID, Status: VenueRejected,
			Message: "paper venue cannot price a market order"}, nil
	}

	slip := refPrice * v.slippageBps / 10000
	fillPrice := refPrice
	if o.Side == domain.Buy {
		fillPrice += slip // buy higher
	} else {
		fillPrice -= slip // sell lower
	}

	v.mu.Lock()
	v.venueSeq++
	fill := PaperFill{
		OrderID:   o.ID,
		Symbol:    o.Symbol,
		Qty:       float64(o.RemainingQty),
		FillPrice: fillPrice,
		Slippage:  slip,
		FilledAt:  time.Now().UTC(),
	}
	v.fills = append(v.fills, fill)
	v.mu.Unlock()

	select {
	case v.fillCh <- fill:
	default:
		// Fill buffer full; the ack still stands, history keeps the fill.
	}

	return VenueAck{
		OrderID: o.ID,
		Status:  VenueAccepted,
		Message: fmt.Sprintf("paper fill queued at %.4f", fillPrice),
	}, nil
}

// CancelOrder acknowledges any cancel request.
func (v *PaperVenue) CancelOrder(_ context.Context, orderID string) (VenueAck, error) {
	return VenueAck{OrderID: orderID, Status: VenueAccepted, Message: "paper cancel"}, nil
}
