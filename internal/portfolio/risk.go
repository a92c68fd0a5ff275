package portfolio

import "trading-core/internal/domain"

// RiskLimits defines the configurable pre-trade risk thresholds. Limits are
// passed explicitly into the portfolio and evaluator rather than read from
// ambient state, so every instance is testable in isolation.
type RiskLimits struct {
	MaxPositionSize       float64 `json:"max_position_size" yaml:"max_position_size"`             // max notional per position
	MaxDailyLoss          float64 `json:"max_daily_loss" yaml:"max_daily_loss"`                   // max loss per trading day
	MaxLeverage           float64 `json:"max_leverage" yaml:"max_leverage"`                       // open notional / total value
	ConcentrationLimitPct float64 `json:"concentration_limit_pct" yaml:"concentration_limit_pct"` // max % of total value in one position
	StopLossPct           float64 `json:"stop_loss_pct" yaml:"stop_loss_pct"`                     // per-position adverse move alert threshold
}

// DefaultRiskLimits returns conservative defaults.
func DefaultRiskLimits() RiskLimits {
	return RiskLimits{
		MaxPositionSize:       50000,
		MaxDailyLoss:          5000,
		MaxLeverage:           2.0,
		ConcentrationLimitPct: 20,
		StopLossPct:           5,
	}
}

// Exposure is the portfolio state the risk evaluator reads: mark-to-market
// value of open positions and total value (cash + market value) before the
// proposed admission.
type Exposure struct {
	MarketValue float64
	TotalValue  float64
}

// EvaluateAdmission decides whether a position of the given notional may be
// admitted. Checks run in fixed order and short-circuit on the first
// failure: position size first (cheapest and most specific to report), then
// concentration, then leverage. Admission converts cash into exposure, so
// total value is unchanged by the admission itself.
func EvaluateAdmission(limits RiskLimits, notional float64, exp Exposure) error {
	if limits.MaxPositionSize > 0 && notional > limits.MaxPositionSize {
		return domain.Errf(domain.KindPositionTooLarge,
			"notional %.2f exceeds max position size %.2f", notional, limits.MaxPositionSize)
	}
	if limits.ConcentrationLimitPct > 0 && exp.TotalValue > 0 {
		pct := notional / exp.TotalValue * 100
		if pct > limits.ConcentrationLimitPct {
			return domain.Errf(domain.KindConcentration,
				"position would be %.2f%% of portfolio, limit is %.2f%%", pct, limits.ConcentrationLimitPct)
		}
	}
	if limits.MaxLeverage > 0 && exp.TotalValue > 0 {
		lev := (exp.MarketValue + notional) / exp.TotalValue
		if lev > limits.MaxLeverage {
			return domain.Errf(domain.KindLeverageExceeded,
				"leverage would be %.2fx, limit is %.2fx", lev, limits.MaxLeverage)
		}
	}
	return nil
}
