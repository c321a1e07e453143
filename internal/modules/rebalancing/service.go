package rebalancing

import (
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/allocation"
	"github.com/vvolkov/rebalancer/internal/modules/margin"
	"github.com/vvolkov/rebalancer/internal/modules/portfolio"
)

// MarginInfo mirrors the margin layer's outcome on the final plan result.
type MarginInfo struct {
	TotalMarginUsed float64
	WithinLimits    bool
}

// Result is the engine's output for one tick: the wallet with per-position
// ToBuyLots/ToBuyNumber populated, plus the bookkeeping a caller needs to
// decide whether (and how) to submit orders. The engine never errors for
// data-quality reasons (§7); a degraded tick still produces a Result, with
// Underfunded/MarginInfo.WithinLimits reporting the degradation.
type Result struct {
	Wallet              domain.Wallet
	FinalPercents       domain.DesiredWallet
	ModeUsed            domain.DesiredMode
	TotalPortfolioValue float64
	MarginInfo          *MarginInfo
	Underfunded         bool
}

// Run executes the full per-tick pipeline: C3 (desired-mode resolution) ->
// C5 (margin layer) -> C7 (order generator, pass 1) -> C6 (buy-requires-
// sell, if applicable) -> C7 (pass 2, merging C6's sell decisions).
func Run(
	cfg domain.BalancingConfig,
	wallet domain.Wallet,
	catalog domain.Catalog,
	prices portfolio.PriceSource,
	md allocation.MarketData,
) Result {
	valued := portfolio.Valuate(wallet, prices)
	totalValue := portfolio.TotalValue(valued)
	freeRub := portfolio.FreeCash(valued)

	desired := allocation.Resolve(cfg, valued, md)

	var marginInfo *MarginInfo
	targetAmounts := make(map[string]float64, len(desired))
	for ticker, pct := range desired {
		targetAmounts[ticker] = totalValue * pct / 100
	}
	if cfg.MarginTrading.Enabled {
		m := margin.Apply(cfg.MarginTrading, desired, totalValue)
		targetAmounts = m.TargetValues
		marginInfo = &MarginInfo{TotalMarginUsed: m.TotalMarginUsed, WithinLimits: m.WithinLimits}
	}

	pass1 := GenerateOrders(valued, targetAmounts, catalog, prices, cfg.MinBuyRebalancePercent, totalValue)

	underfunded := false
	final := pass1
	if cfg.BuyRequiresSell.Enabled && cfg.BuyRequiresSell.Mode != domain.BRSModeNone {
		sells, fullyCovered := PlanSells(pass1, cfg.BuyRequiresSell, freeRub)
		underfunded = !fullyCovered

		if len(sells) > 0 {
			final = mergeSells(pass1, sells)

			// Second order-generator pass: the non-marginal targets that
			// triggered BRS can only buy as much as settled cash plus the
			// funds the planner actually freed up, never the original
			// (potentially unfunded) desired amount.
			available := freeRub
			for _, sp := range sells {
				available += sp.SellAmount
			}
			capped := make(map[string]float64, len(cfg.BuyRequiresSell.Instruments))
			for _, ticker := range cfg.BuyRequiresSell.Instruments {
				pos, ok := pass1.Find(ticker)
				if !ok || pos.ToBuyNumber <= 0 {
					continue
				}
				amt := targetAmounts[ticker]
				if amt > available {
					amt = available
				}
				capped[ticker] = amt
			}
			if len(capped) > 0 {
				final = GenerateOrders(final, capped, catalog, prices, cfg.MinBuyRebalancePercent, totalValue)
			}
		}
	}

	return Result{
		Wallet:              final,
		FinalPercents:       desired,
		ModeUsed:            cfg.DesiredMode,
		TotalPortfolioValue: totalValue,
		MarginInfo:          marginInfo,
		Underfunded:         underfunded,
	}
}

// mergeSells applies the buy-requires-sell planner's decisions onto a
// wallet that has already been through one order-generator pass: for every
// ticker the planner selected as a seller, the planner's decision
// overrides any prior toBuyLots/toBuyNumber for that position.
func mergeSells(wallet domain.Wallet, sells map[string]SellPlan) domain.Wallet {
	out := domain.Wallet{Positions: append([]domain.Position(nil), wallet.Positions...)}
	for i, p := range out.Positions {
		if plan, ok := sells[p.Base]; ok {
			out.Positions[i].ToBuyLots = -plan.SellLots
			out.Positions[i].ToBuyNumber = -plan.SellAmount
		}
	}
	return out
}
