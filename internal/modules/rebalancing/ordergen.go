// Package rebalancing implements the order generator (C7) and the
// buy-requires-sell planner (C6): the two components that turn a
// normalized desired allocation into a lot-level trade plan.
package rebalancing

import (
	"math"

	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/portfolio"
)

// GenerateOrders is one pure pass of the order generator (C7). For every
// ticker in desiredAmounts it finds or synthesizes a Position, computes
// DesiredAmountNumber / CanBuyBeforeTargetLots / ToBuyLots / ToBuyNumber,
// and applies the rebalance threshold. It is run twice per tick: once to
// discover required funds for the buy-requires-sell planner, and once more
// after the planner has decided its sellers.
//
// desiredAmounts is ticker -> target value in RUB (post margin-layer
// adjustment, or simply percent*totalPortfolioValue when margin is
// disabled).
func GenerateOrders(
	wallet domain.Wallet,
	desiredAmounts map[string]float64,
	catalog domain.Catalog,
	prices portfolio.PriceSource,
	minBuyRebalancePercent float64,
	totalPortfolioValue float64,
) domain.Wallet {
	out := domain.Wallet{Positions: append([]domain.Position(nil), wallet.Positions...)}
	index := make(map[string]int, len(out.Positions))
	for i, p := range out.Positions {
		index[p.Base] = i
	}

	for ticker, amount := range desiredAmounts {
		if ticker == domain.CashTicker {
			continue
		}

		i, ok := index[ticker]
		if !ok {
			pos, synthesized := synthesize(ticker, catalog, prices)
			if !synthesized {
				continue // InstrumentUnknown and PriceMissing: skip this ticker
			}
			out.Positions = append(out.Positions, pos)
			i = len(out.Positions) - 1
			index[ticker] = i
		}

		out.Positions[i] = applyOrderGen(out.Positions[i], amount, minBuyRebalancePercent, totalPortfolioValue)
	}

	return out
}

// synthesize builds a zero-amount Position for a desired ticker that isn't
// currently held, using the instrument catalog for lot size/FIGI and the
// price source for a last-price lookup. Returns ok=false when either is
// unavailable (InstrumentUnknown / PriceMissing).
func synthesize(ticker string, catalog domain.Catalog, prices portfolio.PriceSource) (domain.Position, bool) {
	entry, inCatalog := catalog[ticker]
	price, hasPrice := prices.Price(ticker)
	if !inCatalog || !hasPrice {
		return domain.Position{}, false
	}

	lotSize := entry.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}

	pos := domain.Position{
		Base:             ticker,
		Quote:            domain.CashTicker,
		FIGI:             entry.FIGI,
		LotSize:          lotSize,
		Amount:           0,
		PriceNumber:      domain.Some(price),
		LotPriceNumber:   domain.Some(price * float64(lotSize)),
		TotalPriceNumber: domain.Some(0),
	}
	return pos, true
}

// applyOrderGen computes the core §4.7 arithmetic for one position given
// its desired RUB target.
func applyOrderGen(p domain.Position, desiredAmountNumber, minBuyRebalancePercent, totalPortfolioValue float64) domain.Position {
	p.DesiredAmountNumber = desiredAmountNumber

	if !p.LotPriceNumber.Present || p.LotPriceNumber.Value <= 0 {
		// NegativeOrZeroLotPrice: exclude from sizing entirely (open
		// question #2: non-finite toBuyNumber leaves toBuyLots at 0).
		p.ToBuyLots = 0
		p.ToBuyNumber = 0
		return p
	}
	lotPrice := p.LotPriceNumber.Value

	totalPrice := 0.0
	if p.TotalPriceNumber.Present {
		totalPrice = p.TotalPriceNumber.Value
	}
	p.BeforeDiffNumber = desiredAmountNumber - totalPrice

	desiredLotsFractional := desiredAmountNumber / lotPrice
	if math.IsNaN(desiredLotsFractional) || math.IsInf(desiredLotsFractional, 0) {
		p.ToBuyLots = 0
		p.ToBuyNumber = 0
		return p
	}

	// Rounding toward zero in both directions so a single pass never
	// overshoots the target, per the open-question resolution for
	// negative (sell-direction) targets.
	canBuyBeforeTargetLots := int64(math.Trunc(desiredLotsFractional))
	p.CanBuyBeforeTargetLots = canBuyBeforeTargetLots

	currentLots := p.CurrentLots()
	toBuyLots := canBuyBeforeTargetLots - currentLots
	toBuyNumber := float64(toBuyLots) * lotPrice

	// Rebalance threshold: suppress small positive (buy) moves only.
	threshold := minBuyRebalancePercent / 100 * totalPortfolioValue
	if toBuyNumber >= 0 && toBuyNumber < threshold {
		toBuyLots = 0
		toBuyNumber = 0
	}

	p.ToBuyLots = toBuyLots
	p.ToBuyNumber = toBuyNumber
	return p
}
