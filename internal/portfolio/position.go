package portfolio

import (
	"time"

	"github.com/google/uuid"

	"trading-core/internal/domain"
)

// PositionSide is the direction of exposure.
type PositionSide string

const (
	Long  PositionSide = "LONG"
	Short PositionSide = "SHORT"
	Flat  PositionSide = "FLAT"
)

// PositionStatus tracks whether a position still carries exposure.
type PositionStatus string

const (
	PositionOpen   PositionStatus = "OPEN"
	PositionClosed PositionStatus = "CLOSED"
)

// Position is one instrument's exposure inside a portfolio. Opened when a
// fill creates new exposure, updated on subsequent fills and mark-price
// ticks, closed when quantity returns to zero. Realized P&L is fixed once
// the position is closed.
type Position struct {
	ID           string          `json:"id"`
	Symbol       string          `json:"symbol"`
	Side         PositionSide    `json:"side"`
	Qty          domain.Quantity `json:"qty"`
	AvgOpenPrice float64         `json:"avg_open_price"`
	MarkPrice    float64         `json:"mark_price"`
	RealizedPnL  float64         `json:"realized_pnl"`
	Commission   float64         `json:"commission"`
	Status       PositionStatus  `json:"status"`
	OpenedAt     time.Time       `json:"opened_at"`
	ClosedAt     *time.Time      `json:"closed_at,omitempty"`

	// entryValue is the cumulative cost basis of every tranche that opened
	// this position. It is what settlement returns to cash on removal.
	entryValue float64
}

// NewPosition opens a position from an initial fill.
func NewPosition(symbol string, side PositionSide, qty, price float64) (*Position, error) {
	if symbol == "" {
		return nil, domain.Errf(domain.KindInvalidArgument, "symbol is required")
	}
	if side != Long && side != Short {
		return nil, domain.Errf(domain.KindInvalidArgument, "invalid position side %q", side)
	}
	q, err := domain.NewQuantity(qty)
	if err != nil {
		return nil, err
	}
	if q.IsZero() {
		return nil, domain.Errf(domain.KindInvalidArgument, "position quantity must be positive")
	}
	p, err := domain.NewPrice(price)
	if err != nil {
		return nil, err
	}
	return &Position{
		ID:           uuid.NewString(),
		Symbol:       symbol,
		Side:         side,
		Qty:          q,
		AvgOpenPrice: float64(p),
		MarkPrice:    float64(p),
		Status:       PositionOpen,
		OpenedAt:     time.Now().UTC(),
		entryValue:   domain.Notional(q, p),
	}, nil
}

func (p *Position) sideSign() float64 {
	if p.Side == Short {
		return -1
	}
	return 1
}

// Notional returns open quantity x mark price.
func (p *Position) Notional() float64 {
	return float64(p.Qty) * p.MarkPrice
}

// MarketValue is the mark-to-market value of the open quantity. Zero once
// closed.
func (p *Position) MarketValue() float64 {
	return p.Notional()
}

// UnrealizedPnL recomputes from (mark - average open price) x qty x side
// sign. Zero once closed.
func (p *Position) UnrealizedPnL() float64 {
	return (p.MarkPrice - p.AvgOpenPrice) * float64(p.Qty) * p.sideSign()
}

// TotalPnL is realized plus unrealized, net of commission.
func (p *Position) TotalPnL() float64 {
	return p.RealizedPnL + p.UnrealizedPnL() - p.Commission
}

// SettlementValue is what closing returned (or would return) to cash: the
// cost basis still tied up plus total P&L.
func (p *Position) SettlementValue() float64 {
	return p.entryValue + p.TotalPnL()
}

// Mark updates the mark price used for unrealized P&L.
func (p *Position) Mark(price float64) error {
	if p.Status == PositionClosed {
		return domain.Errf(domain.KindInvalidArgument, "position %s is closed", p.ID)
	}
	pr, err := domain.NewPrice(price)
	if err != nil {
		return err
	}
	p.MarkPrice = float64(pr)
	return nil
}

// Increase adds qty at price to the open quantity, recomputing the average
// open price as a quantity-weighted mean.
func (p *Position) Increase(qty, price float64) error {
	if p.Status == PositionClosed {
		return domain.Errf(domain.KindInvalidArgument, "position %s is closed", p.ID)
	}
	q, err := domain.NewQuantity(qty)
	if err != nil {
		return err
	}
	if q.IsZero() {
		return domain.Errf(domain.KindInvalidArgument, "increase quantity must be positive")
	}
	pr, err := domain.NewPrice(price)
	if err != nil {
		return err
	}
	before := float64(p.Qty)
	p.AvgOpenPrice = (p.AvgOpenPrice*before + float64(pr)*float64(q)) / (before + float64(q))
	p.Qty += q
	p.MarkPrice = float64(pr)
	p.entryValue += domain.Notional(q, pr)
	return nil
}

// Reduce removes qty at price from the open quantity and realizes the P&L on
// the reduced tranche. Reducing to zero closes the position, fixing realized
// P&L permanently. Returns the realized delta.
func (p *Position) Reduce(qty, price float64) (float64, error) {
	if p.Status == PositionClosed {
		return 0, domain.Errf(domain.KindInvalidArgument, "position %s is closed", p.ID)
	}
	q, err := domain.NewQuantity(qty)
	if err != nil {
		return 0, err
	}
	if q.IsZero() {
		return 0, domain.Errf(domain.KindInvalidArgument, "reduce quantity must be positive")
	}
	pr, err := domain.NewPrice(price)
	if err != nil {
		return 0, err
	}
	remaining, err := p.Qty.Sub(q)
	if err != nil {
		return 0, domain.Errf(domain.KindOverFill, "reduce %v exceeds open quantity %v on %s", qty, float64(p.Qty), p.Symbol)
	}

	realized := (float64(pr) - p.AvgOpenPrice) * float64(q) * p.sideSign()
	p.RealizedPnL += realized
	p.Qty = remaining
	p.MarkPrice = float64(pr)
	if p.Qty.IsZero() {
		p.Status = PositionClosed
		p.Side = Flat
		now := time.Now().UTC()
		p.ClosedAt = &now
	}
	return realized, nil
}

// AddCommission accrues trading costs against the position's P&L.
func (p *Position) AddCommission(amount float64) {
	if amount > 0 {
		p.Commission += amount
	}
}
