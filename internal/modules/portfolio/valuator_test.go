package portfolio

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vvolkov/rebalancer/internal/domain"
)

type fakePrices map[string]float64

func (f fakePrices) Price(ticker string) (float64, bool) {
	v, ok := f[ticker]
	return v, ok
}

func TestValuate_PopulatesNumbers(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 1, Amount: 10},
		{Base: "RUB", Quote: "RUB", Amount: 5000},
	}}

	out := Valuate(wallet, fakePrices{"TRUR": 100})

	trur, _ := out.Find("TRUR")
	assert.True(t, trur.PriceNumber.Present)
	assert.InDelta(t, 100, trur.PriceNumber.Value, 1e-9)
	assert.InDelta(t, 1000, trur.TotalPriceNumber.Value, 1e-9)
}

func TestValuate_MissingPriceIsAbsentNotZero(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "UNKNOWN", Quote: "RUB", LotSize: 1, Amount: 10},
	}}

	out := Valuate(wallet, fakePrices{})

	pos, _ := out.Find("UNKNOWN")
	assert.False(t, pos.PriceNumber.Present)
	assert.False(t, pos.TotalPriceNumber.Present)
}

func TestTotalValue_IncludesCash(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 1, Amount: 10, TotalPriceNumber: domain.Some(1000)},
		{Base: "RUB", Quote: "RUB", Amount: 5000, TotalPriceNumber: domain.Some(5000)},
	}}

	assert.InDelta(t, 6000, TotalValue(wallet), 1e-9)
	assert.InDelta(t, 1000, SecuritiesValue(wallet), 1e-9)
}

func TestFreeCash(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "RUB", Quote: "RUB", Amount: 1234},
	}}
	assert.InDelta(t, 1234, FreeCash(wallet), 1e-9)
	assert.Equal(t, 0.0, FreeCash(domain.Wallet{}))
}
