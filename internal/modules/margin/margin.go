// Package margin applies leverage expansion and per-instrument caps to a
// normalized desired allocation before the order generator turns it into
// lot-level trades (C5).
package margin

import "github.com/vvolkov/rebalancer/internal/domain"

// Result reports the margin layer's outcome alongside the adjusted target
// RUB values.
type Result struct {
	// TargetValues is ticker -> target value in RUB after leverage
	// expansion and per-instrument capping.
	TargetValues map[string]float64

	TotalMarginUsed float64
	WithinLimits    bool
}

// Apply expands the desired percentages by the configured multiplier
// against totalPortfolioValue, then caps any non-cash target at
// MaxMarginSize per the configured strategy. No-op (identity) when margin
// trading is disabled.
func Apply(cfg domain.MarginTradingConfig, desired domain.DesiredWallet, totalPortfolioValue float64) Result {
	targets := make(map[string]float64, len(desired))
	for ticker, pct := range desired {
		targets[ticker] = totalPortfolioValue * pct / 100
	}

	if !cfg.Enabled {
		return Result{TargetValues: targets, WithinLimits: true}
	}

	multiplier := cfg.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}

	expanded := make(map[string]float64, len(targets))
	for ticker, v := range targets {
		if ticker == domain.CashTicker {
			expanded[ticker] = v // cash is never leveraged
			continue
		}
		expanded[ticker] = v * multiplier
	}

	capped, totalUsed, within := capTargets(cfg, expanded)
	return Result{TargetValues: capped, TotalMarginUsed: totalUsed, WithinLimits: within}
}

// capTargets enforces targetValue <= MaxMarginSize for every non-cash
// target. On overflow, "remove" hard-clamps; "keep_if_small" clamps only
// when the overflow exceeds FreeThreshold. Excess removed from clamped
// targets is renormalized onto the remaining non-cash, non-clamped targets,
// proportional to their current value.
func capTargets(cfg domain.MarginTradingConfig, targets map[string]float64) (map[string]float64, float64, bool) {
	if cfg.MaxMarginSize <= 0 {
		total := 0.0
		for _, v := range targets {
			total += v
		}
		return targets, total, true
	}

	out := make(map[string]float64, len(targets))
	clamped := make(map[string]bool, len(targets))
	within := true
	excess := 0.0
	for ticker, v := range targets {
		if ticker == domain.CashTicker || v <= cfg.MaxMarginSize {
			out[ticker] = v
			continue
		}

		overflow := v - cfg.MaxMarginSize
		switch cfg.BalancingStrategy {
		case domain.MarginStrategyKeepIfSmall:
			if overflow > cfg.FreeThreshold {
				out[ticker] = cfg.MaxMarginSize
				clamped[ticker] = true
				within = false
				excess += overflow
			} else {
				out[ticker] = v
			}
		case domain.MarginStrategyRemove:
			fallthrough
		default:
			out[ticker] = cfg.MaxMarginSize
			clamped[ticker] = true
			within = false
			excess += overflow
		}
	}

	if excess > 0 {
		redistributeExcess(out, clamped, excess)
	}

	total := 0.0
	for _, v := range out {
		total += v
	}
	return out, total, within
}

// redistributeExcess renormalizes excess removed from clamped targets onto
// the remaining non-cash, non-clamped targets, proportional to their
// current value, so the capped layer absorbs the overflow wherever
// headroom exists instead of letting it vanish.
func redistributeExcess(out map[string]float64, clamped map[string]bool, excess float64) {
	base := 0.0
	for ticker, v := range out {
		if ticker == domain.CashTicker || clamped[ticker] {
			continue
		}
		base += v
	}
	if base <= 0 {
		return
	}
	for ticker, v := range out {
		if ticker == domain.CashTicker || clamped[ticker] {
			continue
		}
		out[ticker] = v + excess*(v/base)
	}
}
