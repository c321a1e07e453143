package rebalancing

import (
	"math"
	"sort"

	"github.com/vvolkov/rebalancer/internal/domain"
)

// SellPlan is one planner decision: liquidate sellLots lots worth
// sellAmount RUB.
type SellPlan struct {
	SellLots   int64
	SellAmount float64
}

// PlanSells runs the buy-requires-sell planner (C6) against a wallet whose
// positions have already been through one GenerateOrders pass. It returns
// the tickers that must be partially liquidated to fund the non-marginal
// purchases named in cfg.Instruments, and whether the plan fully covers
// the required funds (false => underfunded, reported on the result but
// never an error).
func PlanSells(wallet domain.Wallet, cfg domain.BuyRequiresSellConfig, freeRub float64) (map[string]SellPlan, bool) {
	if !cfg.Enabled || cfg.Mode == domain.BRSModeNone {
		return map[string]SellPlan{}, true
	}

	targets := make(map[string]bool, len(cfg.Instruments))
	for _, t := range cfg.Instruments {
		targets[t] = true
	}

	requiredTotal := 0.0
	for _, p := range wallet.Positions {
		if targets[p.Base] && p.ToBuyNumber > 0 {
			requiredTotal += p.ToBuyNumber
		}
	}
	if requiredTotal <= 0 {
		return map[string]SellPlan{}, true
	}

	deficit := math.Max(0, requiredTotal-freeRub)
	if deficit <= 0 {
		return map[string]SellPlan{}, true
	}

	switch cfg.Mode {
	case domain.BRSModeOnlyPositivePositionsSell:
		return planOnlyPositive(wallet, targets, deficit)
	case domain.BRSModeEqualInPercents:
		return planEqualInPercents(wallet, targets, deficit)
	default:
		return map[string]SellPlan{}, true
	}
}

type sellCandidate struct {
	pos           domain.Position
	profitAmount  float64
}

func planOnlyPositive(wallet domain.Wallet, targets map[string]bool, deficit float64) (map[string]SellPlan, bool) {
	var candidates []sellCandidate
	for _, p := range wallet.Positions {
		if p.IsCash() || targets[p.Base] {
			continue
		}
		if p.Amount == 0 {
			continue
		}
		if !p.LotPriceNumber.Present || p.LotPriceNumber.Value <= 0 {
			continue
		}
		if !p.PriceNumber.Present || p.PriceNumber.Value <= 0 {
			continue
		}
		if !p.AveragePositionPriceFifoNumber.Present {
			continue
		}
		profit := p.PriceNumber.Value - p.AveragePositionPriceFifoNumber.Value
		if profit <= 0 {
			continue
		}
		candidates = append(candidates, sellCandidate{pos: p, profitAmount: profit * p.Amount})
	}

	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].profitAmount != candidates[j].profitAmount {
			return candidates[i].profitAmount > candidates[j].profitAmount
		}
		return candidates[i].pos.Base < candidates[j].pos.Base
	})

	out := make(map[string]SellPlan, len(candidates))
	remaining := deficit
	for _, c := range candidates {
		if remaining <= 0 {
			break
		}
		take := math.Min(remaining, valueOf(c.pos))
		plan, ok := sizeSell(c.pos, take)
		if !ok {
			continue
		}
		out[c.pos.Base] = plan
		remaining -= plan.SellAmount
	}
	return out, remaining <= 1e-9
}

func planEqualInPercents(wallet domain.Wallet, targets map[string]bool, deficit float64) (map[string]SellPlan, bool) {
	var candidates []domain.Position
	sumValue := 0.0
	for _, p := range wallet.Positions {
		if p.IsCash() || targets[p.Base] {
			continue
		}
		if !p.LotPriceNumber.Present || p.LotPriceNumber.Value <= 0 {
			continue
		}
		candidates = append(candidates, p)
		sumValue += valueOf(p)
	}
	if sumValue <= 0 {
		return map[string]SellPlan{}, false
	}

	out := make(map[string]SellPlan, len(candidates))
	covered := 0.0
	for _, p := range candidates {
		desiredSellValue := deficit * valueOf(p) / sumValue
		plan, ok := sizeSell(p, desiredSellValue)
		if !ok {
			continue
		}
		out[p.Base] = plan
		covered += plan.SellAmount
	}
	return out, covered >= deficit-1e-6
}

func valueOf(p domain.Position) float64 {
	if p.TotalPriceNumber.Present {
		return p.TotalPriceNumber.Value
	}
	return 0
}

// sizeSell converts a desired RUB sell value into an integral lot count,
// clamped so the sale never exceeds currently held lots.
func sizeSell(p domain.Position, desiredSellValue float64) (SellPlan, bool) {
	if !p.LotPriceNumber.Present || p.LotPriceNumber.Value <= 0 || desiredSellValue <= 0 {
		return SellPlan{}, false
	}
	lotSize := p.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}

	sellLots := int64(math.Ceil(desiredSellValue / p.LotPriceNumber.Value))
	maxLots := int64(p.Amount) / lotSize
	if sellLots > maxLots {
		sellLots = maxLots
	}
	if sellLots <= 0 {
		return SellPlan{}, false
	}
	return SellPlan{SellLots: sellLots, SellAmount: float64(sellLots) * p.LotPriceNumber.Value}, true
}
