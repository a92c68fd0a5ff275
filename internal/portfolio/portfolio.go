// Package portfolio owns cash, open and closed positions, and risk limits.
//
// It admits positions through the risk evaluator, keeps cash consistent with
// admissions and settlements, and computes valuation, P&L, and trade
// statistics. All methods are safe for concurrent use; check-then-act
// admission holds the portfolio lock so the cash debit is always consistent
// with the risk check that authorized it.
package portfolio

import (
	"sync"

	"trading-core/internal/domain"
)

// Portfolio is the aggregate for one account.
type Portfolio struct {
	mu sync.RWMutex

	accountID      string
	baseCurrency   string
	initialBalance float64
	cash           float64
	limits         RiskLimits

	open     map[string]*Position // by position id
	bySymbol map[string]string    // open position id by symbol
	closed   []*Position
}

// New creates a portfolio with an initial cash balance.
func New(accountID, baseCurrency string, initialBalance float64, limits RiskLimits) (*Portfolio, error) {
	if accountID == "" {
		return nil, domain.Errf(domain.KindInvalidArgument, "account id is required")
	}
	if initialBalance <= 0 {
		return nil, domain.Errf(domain.KindInvalidArgument, "initial balance must be positive, got %v", initialBalance)
	}
	if baseCurrency == "" {
		baseCurrency = "USD"
	}
	return &Portfolio{
		accountID:      accountID,
		baseCurrency:   baseCurrency,
		initialBalance: initialBalance,
		cash:           initialBalance,
		limits:         limits,
		open:           make(map[string]*Position),
		bySymbol:       make(map[string]string),
	}, nil
}

// AccountID returns the owning account id.
func (pf *Portfolio) AccountID() string { return pf.accountID }

// BaseCurrency returns the portfolio currency.
func (pf *Portfolio) BaseCurrency() string { return pf.baseCurrency }

// Cash returns the current cash balance.
func (pf *Portfolio) Cash() float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.cash
}

// Limits returns the current risk limits.
func (pf *Portfolio) Limits() RiskLimits {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	return pf.limits
}

// AdjustLimits replaces the risk limits. Administrative; takes effect for
// subsequent admissions only.
func (pf *Portfolio) AdjustLimits(limits RiskLimits) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	pf.limits = limits
}

func (pf *Portfolio) marketValueLocked() float64 {
	var mv float64
	for _, p := range pf.open {
		mv += p.MarketValue()
	}
	return mv
}

func (pf *Portfolio) totalValueLocked() float64 {
	return pf.cash + pf.marketValueLocked()
}

func (pf *Portfolio) exposureLocked() Exposure {
	mv := pf.marketValueLocked()
	return Exposure{MarketValue: mv, TotalValue: pf.cash + mv}
}

// CanAdmit runs the pre-trade risk checks for a proposed notional without
// mutating anything: position size, concentration, leverage, then cash
// sufficiency.
func (pf *Portfolio) CanAdmit(notional float64) error {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if err := EvaluateAdmission(pf.limits, notional, pf.exposureLocked()); err != nil {
		return err
	}
	if notional > pf.cash {
		return domain.Errf(domain.KindInsufficientCash,
			"notional %.2f exceeds cash balance %.2f", notional, pf.cash)
	}
	return nil
}

// AddPosition admits a position: duplicate check, risk evaluation, cash
// debit by the position's notional, then insertion. The evaluator's
// rejection is returned unchanged. Cash never goes negative; an admission
// that would overdraw fails with InsufficientCash instead.
func (pf *Portfolio) AddPosition(p *Position) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	if _, exists := pf.open[p.ID]; exists {
		return domain.Errf(domain.KindDuplicatePosition, "position %s already exists", p.ID)
	}
	notional := p.Notional()
	if err := EvaluateAdmission(pf.limits, notional, pf.exposureLocked()); err != nil {
		return err
	}
	if notional > pf.cash {
		return domain.Errf(domain.KindInsufficientCash,
			"notional %.2f exceeds cash balance %.2f", notional, pf.cash)
	}

	pf.cash -= notional
	pf.open[p.ID] = p
	if _, taken := pf.bySymbol[p.Symbol]; !taken {
		pf.bySymbol[p.Symbol] = p.ID
	}
	return nil
}

// RemovePosition removes a position from the open collection and returns
// it. A closed position settles: cash is credited with its cost basis plus
// total P&L, and it is archived in the closed set. An open position is
// handed back without settlement.
func (pf *Portfolio) RemovePosition(id string) (*Position, error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.open[id]
	if !ok {
		return nil, domain.Errf(domain.KindNotFound, "position %s not found", id)
	}
	delete(pf.open, id)
	if pf.bySymbol[p.Symbol] == id {
		delete(pf.bySymbol, p.Symbol)
	}
	if p.Status == PositionClosed {
		pf.cash += p.SettlementValue()
		pf.closed = append(pf.closed, p)
	}
	return p, nil
}

// IncreasePosition adds quantity to an open position, debiting cash by the
// added notional.
func (pf *Portfolio) IncreasePosition(id string, qty, price float64) error {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.open[id]
	if !ok {
		return domain.Errf(domain.KindNotFound, "position %s not found", id)
	}
	added := qty * price
	if added > pf.cash {
		return domain.Errf(domain.KindInsufficientCash,
			"notional %.2f exceeds cash balance %.2f", added, pf.cash)
	}
	if err := p.Increase(qty, price); err != nil {
		return err
	}
	pf.cash -= added
	return nil
}

// ReducePosition realizes P&L on a closing fill. Returns the realized delta
// and whether the position is now closed; settlement back to cash happens at
// RemovePosition.
func (pf *Portfolio) ReducePosition(id string, qty, price float64) (realized float64, closed bool, err error) {
	pf.mu.Lock()
	defer pf.mu.Unlock()

	p, ok := pf.open[id]
	if !ok {
		return 0, false, domain.Errf(domain.KindNotFound, "position %s not found", id)
	}
	realized, err = p.Reduce(qty, price)
	if err != nil {
		return 0, false, err
	}
	return realized, p.Status == PositionClosed, nil
}

// UpdatePositionPrices applies a batch of mark prices keyed by symbol.
// Best-effort: symbols without an open position and non-positive prices are
// silently skipped, and the call never fails.
func (pf *Portfolio) UpdatePositionPrices(prices map[string]float64) {
	pf.mu.Lock()
	defer pf.mu.Unlock()
	for _, p := range pf.open {
		price, ok := prices[p.Symbol]
		if !ok || price <= 0 {
			continue
		}
		p.MarkPrice = price
	}
}

// OpenPositionID returns the id of the open position on symbol, if any.
func (pf *Portfolio) OpenPositionID(symbol string) (string, bool) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	id, ok := pf.bySymbol[symbol]
	return id, ok
}

// Position returns a copy of the open position with the given id.
func (pf *Portfolio) Position(id string) (Position, error) {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	p, ok := pf.open[id]
	if !ok {
		return Position{}, domain.Errf(domain.KindNotFound, "position %s not found", id)
	}
	return *p, nil
}

// OpenPositions returns a snapshot of all open positions.
func (pf *Portfolio) OpenPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.open))
	for _, p := range pf.open {
		result = append(result, *p)
	}
	return result
}

// ClosedPositions returns a snapshot of the closed set, oldest first.
func (pf *Portfolio) ClosedPositions() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	result := make([]Position, 0, len(pf.closed))
	for _, p := range pf.closed {
		result = append(result, *p)
	}
	return result
}

// CheckStopLoss returns open positions whose adverse move from the average
// open price exceeds the configured stop-loss percentage.
func (pf *Portfolio) CheckStopLoss() []Position {
	pf.mu.RLock()
	defer pf.mu.RUnlock()
	if pf.limits.StopLossPct <= 0 {
		return nil
	}
	var breached []Position
	for _, p := range pf.open {
		if p.AvgOpenPrice <= 0 {
			continue
		}
		movePct := (p.MarkPrice - p.AvgOpenPrice) / p.AvgOpenPrice * 100 * p.sideSign()
		if movePct < -pf.limits.StopLossPct {
			breached = append(breached, *p)
		}
	}
	return breached
}
