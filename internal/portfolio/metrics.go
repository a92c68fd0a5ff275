package portfolio

import "sort"

// marginRequirement is the fixed fraction of open market value reported as
// margin used.
const marginRequirement = 0.25

// Metrics is the portfolio-level valuation snapshot.
type Metrics struct {
	CashBalance   float64 `json:"cash_balance"`
	MarketValue   float64 `json:"market_value"`
	TotalValue    float64 `json:"total_value"`
	RealizedPnL   float64 `json:"realized_pnl"`
	UnrealizedPnL float64 `json:"unrealized_pnl"`
	TotalPnL      float64 `json:"total_pnl"`
	// DayPnL approximates the daily figure with total unrealized P&L; a true
	// value needs a start-of-day mark snapshot the core does not keep.
	DayPnL          float64 `json:"day_pnl"`
	ReturnPct       float64 `json:"return_pct"`
	MarginUsed      float64 `json:"margin_used"`
	Leverage        float64 `json:"leverage"`
	OpenPositions   int     `json:"open_positions"`
	ClosedPositions int     `json:"closed_positions"`
}

// CalculateMetrics aggregates valuation and P&L across open and closed
// positions. Realized P&L from closed positions counts once, permanently.
func (pf *Portfolio) CalculateMetrics() Metrics {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	var mv, realized, unrealized float64
	for _, p := range pf.open {
		mv += p.MarketValue()
		realized += p.RealizedPnL - p.Commission
		unrealized += p.UnrealizedPnL()
	}
	for _, p := range pf.closed {
		realized += p.RealizedPnL - p.Commission
	}

	total := pf.cash + mv
	m := Metrics{
		CashBalance:     pf.cash,
		MarketValue:     mv,
		TotalValue:      total,
		RealizedPnL:     realized,
		UnrealizedPnL:   unrealized,
		TotalPnL:        realized + unrealized,
		DayPnL:          unrealized,
		MarginUsed:      mv * marginRequirement,
		OpenPositions:   len(pf.open),
		ClosedPositions: len(pf.closed),
	}
	if pf.initialBalance > 0 {
		m.ReturnPct = (total - pf.initialBalance) / pf.initialBalance * 100
	}
	if total > 0 {
		m.Leverage = mv / total
	}
	return m
}

// Summary holds trade statistics over closed positions only.
type Summary struct {
	ClosedTrades int     `json:"closed_trades"`
	Wins         int     `json:"wins"`
	Losses       int     `json:"losses"`
	WinRate      float64 `json:"win_rate"`      // percent of closed trades that won
	ProfitFactor float64 `json:"profit_factor"` // sum(wins) / sum(|losses|), 0 if no losses
	AvgWin       float64 `json:"avg_win"`
	AvgLoss      float64 `json:"avg_loss"`
	LargestWin   float64 `json:"largest_win"`
	LargestLoss  float64 `json:"largest_loss"`
}

// CalculateSummary computes win/loss statistics over the closed set.
func (pf *Portfolio) CalculateSummary() Summary {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	s := Summary{ClosedTrades: len(pf.closed)}
	var sumWins, sumLosses float64
	for _, p := range pf.closed {
		pnl := p.TotalPnL()
		if pnl >= 0 {
			s.Wins++
			sumWins += pnl
			if pnl > s.LargestWin {
				s.LargestWin = pnl
			}
		} else {
			s.Losses++
			sumLosses += -pnl
			if -pnl > -s.LargestLoss {
				s.LargestLoss = pnl
			}
		}
	}
	if s.ClosedTrades > 0 {
		s.WinRate = float64(s.Wins) / float64(s.ClosedTrades) * 100
	}
	if s.Losses > 0 {
		s.ProfitFactor = sumWins / sumLosses
	}
	if s.Wins > 0 {
		s.AvgWin = sumWins / float64(s.Wins)
	}
	if s.Losses > 0 {
		s.AvgLoss = -sumLosses / float64(s.Losses)
	}
	return s
}

// Diversification returns each open symbol's share of total open market
// value, in percent.
func (pf *Portfolio) Diversification() map[string]float64 {
	pf.mu.RLock()
	defer pf.mu.RUnlock()

	mv := pf.marketValueLocked()
	result := make(map[string]float64, len(pf.open))
	if mv <= 0 {
		return result
	}
	for _, p := range pf.open {
		result[p.Symbol] += p.MarketValue() / mv * 100
	}
	return result
}

func (pf *Portfolio) rankedOpen(less func(a, b *Position) bool, n int) []Position {
	// Copy by value under the read lock; the comparators below run unlocked
	// and must not read live positions while a mark update writes them.
	pf.mu.RLock()
	snapshot := make([]Position, 0, len(pf.open))
	for _, p := range pf.open {
		snapshot = append(snapshot, *p)
	}
	pf.mu.RUnlock()

	// Pre-sort by id so the stable ranking is deterministic across map
	// iteration orders.
	sort.Slice(snapshot, func(i, j int) bool { return snapshot[i].ID < snapshot[j].ID })
	sort.SliceStable(snapshot, func(i, j int) bool { return less(&snapshot[i], &snapshot[j]) })

	if n < 0 {
		n = 0
	}
	if n > len(snapshot) {
		n = len(snapshot)
	}
	return snapshot[:n:n]
}

// TopPositions returns the n largest open positions by market value.
func (pf *Portfolio) TopPositions(n int) []Position {
	return pf.rankedOpen(func(a, b *Position) bool { return a.MarketValue() > b.MarketValue() }, n)
}

// BestPerformers returns the n open positions with the highest unrealized
// P&L.
func (pf *Portfolio) BestPerformers(n int) []Position {
	return pf.rankedOpen(func(a, b *Position) bool { return a.UnrealizedPnL() > b.UnrealizedPnL() }, n)
}

// WorstPerformers returns the n open positions with the lowest unrealized
// P&L.
func (pf *Portfolio) WorstPerformers(n int) []Position {
	return pf.rankedOpen(func(a, b *Position) bool { return a.UnrealizedPnL() < b.UnrealizedPnL() }, n)
}

// DailyLossBreached reports whether the day's P&L approximation has fallen
// past the configured maximum daily loss. Advisory; used by the post-trade
// check.
func (pf *Portfolio) DailyLossBreached() bool {
	limits := pf.Limits()
	if limits.MaxDailyLoss <= 0 {
		return false
	}
	return pf.CalculateMetrics().DayPnL < -limits.MaxDailyLoss
}
