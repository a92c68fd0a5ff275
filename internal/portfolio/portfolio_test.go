package portfolio

import (
	"errors"
	"math"
	"sync"
	"testing"

	"trading-core/internal/domain"
)

func testLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:       50000,
		MaxDailyLoss:          5000,
		MaxLeverage:           2.0,
		ConcentrationLimitPct: 20,
		StopLossPct:           5,
	}
}

func newTestPortfolio(t *testing.T) *Portfolio {
	t.Helper()
	pf, err := New("acct-1", "USD", 100000, testLimits())
	if err != nil {
		t.Fatalf("new portfolio: %v", err)
	}
	return pf
}

func mustPosition(t *testing.T, symbol string, side PositionSide, qty, price float64) *Position {
	t.Helper()
	p, err := NewPosition(symbol, side, qty, price)
	if err != nil {
		t.Fatalf("new position: %v", err)
	}
	return p
}

func TestAddPosition_ConcentrationScenario(t *testing.T) {
	pf := newTestPortfolio(t)

	// $25,000 notional on a $100,000 portfolio is 25% > 20% limit.
	big := mustPosition(t, "AAPL", Long, 100, 250)
	err := pf.AddPosition(big)
	if !errors.Is(err, domain.ErrConcentration) {
		t.Fatalf("expected ConcentrationExceeded, got %v", err)
	}
	if pf.Cash() != 100000 {
		t.Errorf("cash changed on rejected admission: %v", pf.Cash())
	}

	// $15,000 is 15%, admitted; cash drops to $85,000.
	ok := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(ok); err != nil {
		t.Fatalf("expected admission, got %v", err)
	}
	if got := pf.Cash(); math.Abs(got-85000) > 1e-9 {
		t.Errorf("expected cash 85000, got %v", got)
	}
}

func TestAddPosition_Duplicate(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 10, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	if err := pf.AddPosition(p); !errors.Is(err, domain.ErrDuplicatePosition) {
		t.Fatalf("expected DuplicatePosition, got %v", err)
	}
}

func TestAddPosition_InsufficientCash(t *testing.T) {
	pf, err := New("acct-1", "USD", 1000, RiskLimits{}) // zero limits disable risk checks
	if err != nil {
		t.Fatal(err)
	}
	p := mustPosition(t, "AAPL", Long, 10, 150) // $1,500 > $1,000
	if err := pf.AddPosition(p); !errors.Is(err, domain.ErrInsufficientCash) {
		t.Fatalf("expected InsufficientCash, got %v", err)
	}
	if pf.Cash() != 1000 {
		t.Errorf("cash changed on rejected admission: %v", pf.Cash())
	}
}

func TestCash_NeverNegative(t *testing.T) {
	pf, err := New("acct-1", "USD", 10000, RiskLimits{})
	if err != nil {
		t.Fatal(err)
	}

	// Hammer admissions and removals; cash must never go below zero.
	for i := 0; i < 50; i++ {
		p, err := NewPosition("SYM", Long, 10, 120+float64(i))
		if err != nil {
			t.Fatal(err)
		}
		if err := pf.AddPosition(p); err != nil {
			if !errors.Is(err, domain.ErrInsufficientCash) {
				t.Fatalf("unexpected rejection: %v", err)
			}
		} else if i%3 == 0 {
			if _, _, err := pf.ReducePosition(p.ID, 10, 119); err != nil {
				t.Fatal(err)
			}
			if _, err := pf.RemovePosition(p.ID); err != nil {
				t.Fatal(err)
			}
		}
		if pf.Cash() < 0 {
			t.Fatalf("cash went negative: %v", pf.Cash())
		}
	}
}

func TestConcentrationBound_AfterAdmission(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	m := pf.CalculateMetrics()
	frac := p.Notional() / m.TotalValue
	if frac > pf.Limits().ConcentrationLimitPct/100+1e-9 {
		t.Errorf("concentration bound violated: %v", frac)
	}
}

func TestReduceAndRemove_SettlesCash(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	// cash = 85,000 after admission

	realized, closed, err := pf.ReducePosition(p.ID, 100, 160)
	if err != nil {
		t.Fatalf("reduce: %v", err)
	}
	if !closed {
		t.Fatal("expected position to close")
	}
	if math.Abs(realized-1000) > 1e-9 {
		t.Errorf("expected realized 1000, got %v", realized)
	}

	removed, err := pf.RemovePosition(p.ID)
	if err != nil {
		t.Fatalf("remove: %v", err)
	}
	if removed.Status != PositionClosed {
		t.Errorf("expected closed, got %s", removed.Status)
	}
	// Settlement: entry 15,000 + realized 1,000 back into cash.
	if got := pf.Cash(); math.Abs(got-101000) > 1e-9 {
		t.Errorf("expected cash 101000, got %v", got)
	}
	if len(pf.ClosedPositions()) != 1 {
		t.Errorf("expected 1 closed position, got %d", len(pf.ClosedPositions()))
	}

	// Realized P&L is fixed after close.
	if removed.RealizedPnL != 1000 {
		t.Errorf("realized changed after close: %v", removed.RealizedPnL)
	}
}

func TestRemovePosition_NotFound(t *testing.T) {
	pf := newTestPortfolio(t)
	if _, err := pf.RemovePosition("missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected NotFound, got %v", err)
	}
}

func TestRemovePosition_OpenIsNotSettled(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	cashBefore := pf.Cash()
	removed, err := pf.RemovePosition(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if removed.Status != PositionOpen {
		t.Errorf("expected open, got %s", removed.Status)
	}
	if pf.Cash() != cashBefore {
		t.Errorf("open removal moved cash: %v -> %v", cashBefore, pf.Cash())
	}
	if len(pf.ClosedPositions()) != 0 {
		t.Error("open removal must not archive")
	}
}

func TestUpdatePositionPrices_BestEffort(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	// Unknown symbols and junk prices are skipped, known ones applied.
	pf.UpdatePositionPrices(map[string]float64{
		"AAPL": 155,
		"MSFT": 400,
		"TSLA": -1,
	})

	got, err := pf.Position(p.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.MarkPrice != 155 {
		t.Errorf("expected mark 155, got %v", got.MarkPrice)
	}
	if math.Abs(got.UnrealizedPnL()-500) > 1e-9 {
		t.Errorf("expected unrealized 500, got %v", got.UnrealizedPnL())
	}
}

func TestCalculateMetrics(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}
	pf.UpdatePositionPrices(map[string]float64{"AAPL": 160})

	m := pf.CalculateMetrics()
	if math.Abs(m.MarketValue-16000) > 1e-9 {
		t.Errorf("market value: want 16000, got %v", m.MarketValue)
	}
	if math.Abs(m.CashBalance-85000) > 1e-9 {
		t.Errorf("cash: want 85000, got %v", m.CashBalance)
	}
	if math.Abs(m.TotalValue-101000) > 1e-9 {
		t.Errorf("total value: want 101000, got %v", m.TotalValue)
	}
	if math.Abs(m.UnrealizedPnL-1000) > 1e-9 {
		t.Errorf("unrealized: want 1000, got %v", m.UnrealizedPnL)
	}
	if math.Abs(m.DayPnL-m.UnrealizedPnL) > 1e-9 {
		t.Errorf("day pnl approximation should equal unrealized, got %v", m.DayPnL)
	}
	if math.Abs(m.ReturnPct-1.0) > 1e-9 {
		t.Errorf("return pct: want 1.0, got %v", m.ReturnPct)
	}
	wantLev := 16000.0 / 101000.0
	if math.Abs(m.Leverage-wantLev) > 1e-9 {
		t.Errorf("leverage: want %v, got %v", wantLev, m.Leverage)
	}
	if math.Abs(m.MarginUsed-16000*0.25) > 1e-9 {
		t.Errorf("margin used: want %v, got %v", 16000*0.25, m.MarginUsed)
	}
}

// closeAt reduces the whole position at exitPrice and archives it.
func closeAt(t *testing.T, pf *Portfolio, p *Position, exitPrice float64) {
	t.Helper()
	if _, _, err := pf.ReducePosition(p.ID, float64(p.Qty), exitPrice); err != nil {
		t.Fatalf("reduce %s: %v", p.Symbol, err)
	}
	if _, err := pf.RemovePosition(p.ID); err != nil {
		t.Fatalf("remove %s: %v", p.Symbol, err)
	}
}

func TestCalculateSummary_ClosedOnly(t *testing.T) {
	pf, err := New("acct-1", "USD", 1000000, RiskLimits{})
	if err != nil {
		t.Fatal(err)
	}

	// Two winners (+1000, +200), one loser (-400).
	w1 := mustPosition(t, "AAPL", Long, 100, 150)
	w2 := mustPosition(t, "MSFT", Long, 10, 400)
	l1 := mustPosition(t, "TSLA", Long, 40, 200)
	for _, p := range []*Position{w1, w2, l1} {
		if err := pf.AddPosition(p); err != nil {
			t.Fatal(err)
		}
	}
	closeAt(t, pf, w1, 160)
	closeAt(t, pf, w2, 420)
	closeAt(t, pf, l1, 190)

	// A still-open position must not affect the summary.
	open := mustPosition(t, "NVDA", Long, 10, 500)
	if err := pf.AddPosition(open); err != nil {
		t.Fatal(err)
	}

	s := pf.CalculateSummary()
	if s.ClosedTrades != 3 || s.Wins != 2 || s.Losses != 1 {
		t.Fatalf("counts: %+v", s)
	}
	if math.Abs(s.WinRate-2.0/3.0*100) > 1e-9 {
		t.Errorf("win rate: got %v", s.WinRate)
	}
	if math.Abs(s.ProfitFactor-1200.0/400.0) > 1e-9 {
		t.Errorf("profit factor: want 3, got %v", s.ProfitFactor)
	}
	if math.Abs(s.AvgWin-600) > 1e-9 {
		t.Errorf("avg win: want 600, got %v", s.AvgWin)
	}
	if math.Abs(s.AvgLoss+400) > 1e-9 {
		t.Errorf("avg loss: want -400, got %v", s.AvgLoss)
	}
	if math.Abs(s.LargestWin-1000) > 1e-9 || math.Abs(s.LargestLoss+400) > 1e-9 {
		t.Errorf("largest win/loss: %v / %v", s.LargestWin, s.LargestLoss)
	}
}

func TestSummary_NoLosses_ProfitFactorZero(t *testing.T) {
	pf, err := New("acct-1", "USD", 1000000, RiskLimits{})
	if err != nil {
		t.Fatal(err)
	}
	w := mustPosition(t, "AAPL", Long, 10, 100)
	if err := pf.AddPosition(w); err != nil {
		t.Fatal(err)
	}
	closeAt(t, pf, w, 110)

	if s := pf.CalculateSummary(); s.ProfitFactor != 0 {
		t.Errorf("profit factor with no losses: want 0, got %v", s.ProfitFactor)
	}
}

func TestRankings(t *testing.T) {
	pf, err := New("acct-1", "USD", 1000000, RiskLimits{})
	if err != nil {
		t.Fatal(err)
	}
	a := mustPosition(t, "AAPL", Long, 100, 150) // mv 15000
	b := mustPosition(t, "MSFT", Long, 10, 400)  // mv 4000
	c := mustPosition(t, "TSLA", Long, 40, 200)  // mv 8000
	for _, p := range []*Position{a, b, c} {
		if err := pf.AddPosition(p); err != nil {
			t.Fatal(err)
		}
	}
	pf.UpdatePositionPrices(map[string]float64{
		"AAPL": 145, // -500
		"MSFT": 450, // +500
		"TSLA": 200, // 0
	})

	top := pf.TopPositions(2)
	if len(top) != 2 || top[0].Symbol != "AAPL" || top[1].Symbol != "TSLA" {
		t.Errorf("top positions wrong: %+v", symbols(top))
	}
	best := pf.BestPerformers(1)
	if len(best) != 1 || best[0].Symbol != "MSFT" {
		t.Errorf("best performer wrong: %+v", symbols(best))
	}
	worst := pf.WorstPerformers(1)
	if len(worst) != 1 || worst[0].Symbol != "AAPL" {
		t.Errorf("worst performer wrong: %+v", symbols(worst))
	}

	div := pf.Diversification()
	var total float64
	for _, pct := range div {
		total += pct
	}
	if math.Abs(total-100) > 1e-6 {
		t.Errorf("diversification should sum to 100, got %v", total)
	}
}

func TestRankings_ConcurrentWithMarkUpdates(t *testing.T) {
	pf, err := New("acct-1", "USD", 10000000, RiskLimits{})
	if err != nil {
		t.Fatal(err)
	}
	syms := []string{"AAPL", "MSFT", "TSLA", "NVDA", "AMZN"}
	for _, sym := range syms {
		p := mustPosition(t, sym, Long, 10, 100)
		if err := pf.AddPosition(p); err != nil {
			t.Fatal(err)
		}
	}

	// Rankings read mark prices while the feed rewrites them; run under
	// -race this must stay clean.
	var wg sync.WaitGroup
	stop := make(chan struct{})
	wg.Add(1)
	go func() {
		defer wg.Done()
		marks := make(map[string]float64, len(syms))
		for i := 0; ; i++ {
			select {
			case <-stop:
				return
			default:
			}
			for _, sym := range syms {
				marks[sym] = 100 + float64(i%50)
			}
			pf.UpdatePositionPrices(marks)
		}
	}()

	for i := 0; i < 200; i++ {
		if got := pf.TopPositions(3); len(got) != 3 {
			t.Errorf("top: expected 3, got %d", len(got))
		}
		if got := pf.BestPerformers(2); len(got) != 2 {
			t.Errorf("best: expected 2, got %d", len(got))
		}
		if got := pf.WorstPerformers(2); len(got) != 2 {
			t.Errorf("worst: expected 2, got %d", len(got))
		}
	}
	close(stop)
	wg.Wait()
}

func TestRankings_NonPositiveN(t *testing.T) {
	pf := newTestPortfolio(t)
	p := mustPosition(t, "AAPL", Long, 10, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	if got := pf.TopPositions(-1); len(got) != 0 {
		t.Errorf("negative n must return empty, got %d", len(got))
	}
	if got := pf.BestPerformers(0); len(got) != 0 {
		t.Errorf("zero n must return empty, got %d", len(got))
	}
	if got := pf.WorstPerformers(-5); len(got) != 0 {
		t.Errorf("negative n must return empty, got %d", len(got))
	}
}

func symbols(ps []Position) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.Symbol
	}
	return out
}

func TestCheckStopLoss(t *testing.T) {
	pf := newTestPortfolio(t) // stop loss 5%
	p := mustPosition(t, "AAPL", Long, 100, 150)
	if err := pf.AddPosition(p); err != nil {
		t.Fatal(err)
	}

	pf.UpdatePositionPrices(map[string]float64{"AAPL": 144}) // -4%
	if breached := pf.CheckStopLoss(); len(breached) != 0 {
		t.Errorf("no breach expected at -4%%, got %d", len(breached))
	}

	pf.UpdatePositionPrices(map[string]float64{"AAPL": 142}) // -5.33%
	breached := pf.CheckStopLoss()
	if len(breached) != 1 || breached[0].Symbol != "AAPL" {
		t.Errorf("expected AAPL breach, got %+v", symbols(breached))
	}
}

func TestAdjustLimits(t *testing.T) {
	pf := newTestPortfolio(t)
	limits := pf.Limits()
	limits.ConcentrationLimitPct = 50
	pf.AdjustLimits(limits)

	// 25% now passes under the raised limit.
	p := mustPosition(t, "AAPL", Long, 100, 250)
	if err := pf.AddPosition(p); err != nil {
		t.Fatalf("expected admission after limit adjust, got %v", err)
	}
}

func TestShortPosition_PnLSign(t *testing.T) {
	p := mustPosition(t, "AAPL", Short, 100, 150)
	if err := p.Mark(140); err != nil {
		t.Fatal(err)
	}
	if math.Abs(p.UnrealizedPnL()-1000) > 1e-9 {
		t.Errorf("short gains when price falls: want 1000, got %v", p.UnrealizedPnL())
	}

	realized, err := p.Reduce(100, 140)
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(realized-1000) > 1e-9 {
		t.Errorf("realized on short close: want 1000, got %v", realized)
	}
	if p.Status != PositionClosed || p.Side != Flat {
		t.Errorf("expected closed flat position, got %s/%s", p.Status, p.Side)
	}
}
