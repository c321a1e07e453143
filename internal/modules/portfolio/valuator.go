// Package portfolio computes total portfolio value and per-position
// valuation from a wallet and a last-price source — the pure valuation
// step (C4) that runs before the desired-mode resolver and order
// generator.
package portfolio

import (
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/money"
)

// PriceSource resolves a ticker to its current unit price in the
// position's quote currency. Returns ok=false when no price is known.
type PriceSource interface {
	Price(ticker string) (price float64, ok bool)
}

// Valuate populates PriceNumber, LotPriceNumber and TotalPriceNumber for
// every position in the wallet. A position whose price cannot be resolved
// keeps all three fields Absent — callers downstream must not treat that
// as zero.
func Valuate(wallet domain.Wallet, prices PriceSource) domain.Wallet {
	out := domain.Wallet{Positions: make([]domain.Position, len(wallet.Positions))}
	for i, p := range wallet.Positions {
		out.Positions[i] = valuateOne(p, prices)
	}
	return out
}

func valuateOne(p domain.Position, prices PriceSource) domain.Position {
	lotSize := p.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}

	price, ok := prices.Price(p.Base)
	if !ok {
		// fall back to the position's own FixedMoney price field, if any
		if p.Price != (money.Fixed{}) {
			price = p.Price.ToNumber()
			ok = true
		}
	}
	if !ok {
		p.PriceNumber = domain.None
		p.LotPriceNumber = domain.None
		p.TotalPriceNumber = domain.None
		return p
	}

	lotPrice := price * float64(lotSize)
	total := price * p.Amount

	p.PriceNumber = domain.Some(price)
	p.LotPriceNumber = domain.Some(lotPrice)
	p.TotalPriceNumber = domain.Some(total)
	return p
}

// TotalValue sums TotalPriceNumber over every position, including cash.
// Positions with an absent TotalPriceNumber contribute zero.
func TotalValue(wallet domain.Wallet) float64 {
	total := 0.0
	for _, p := range wallet.Positions {
		if p.TotalPriceNumber.Present {
			total += p.TotalPriceNumber.Value
		}
	}
	return total
}

// SecuritiesValue sums TotalPriceNumber over every non-cash position, used
// by read-only telemetry that reports securities exposure separately from
// cash.
func SecuritiesValue(wallet domain.Wallet) float64 {
	total := 0.0
	for _, p := range wallet.Positions {
		if p.IsCash() {
			continue
		}
		if p.TotalPriceNumber.Present {
			total += p.TotalPriceNumber.Value
		}
	}
	return total
}

// FreeCash returns the wallet's cash-position amount, or 0 if absent.
func FreeCash(wallet domain.Wallet) float64 {
	cash, ok := wallet.Cash()
	if !ok {
		return 0
	}
	return cash.Amount
}
