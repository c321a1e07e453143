package rebalancing

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

// S1 (trivial manual): wallet [{TRUR, amount=0, lotSize=1, priceNumber=100},
// {RUB, amount=10_000}], desired {TRUR:100}, min_buy_rebalance_percent=0.
func TestGenerateOrders_S1_TrivialManual(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 1, Amount: 0,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(0)},
		{Base: "RUB", Quote: "RUB", Amount: 10_000, TotalPriceNumber: domain.Some(10_000)},
	}}

	out := GenerateOrders(wallet, map[string]float64{"TRUR": 10_000}, domain.Catalog{}, fakePrices{}, 0, 10_000)

	trur, _ := out.Find("TRUR")
	assert.EqualValues(t, 100, trur.ToBuyLots)
	assert.InDelta(t, 10_000, trur.ToBuyNumber, 1e-9)
}

// S2 (rebalance threshold): TRUR's toBuyNumber=110, threshold=220 -> suppressed.
func TestGenerateOrders_S2_ThresholdSuppression(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 1, Amount: 0,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(0)},
		{Base: "TMOS", Quote: "RUB", LotSize: 1, Amount: 10,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(1000)},
		{Base: "RUB", Quote: "RUB", Amount: 10_000},
	}}

	total := 11_000.0
	desired := map[string]float64{"TMOS": total * 0.99, "TRUR": total * 0.01}

	out := GenerateOrders(wallet, desired, domain.Catalog{}, fakePrices{}, 2, total)

	trur, _ := out.Find("TRUR")
	assert.EqualValues(t, 0, trur.ToBuyLots)
}

// S5 (market-cap mode) is exercised in allocation/resolver_test.go; here we
// confirm a lot-rounded buy never overshoots its resolved target value.
func TestGenerateOrders_NoOvershoot(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 3, Amount: 0,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(300), TotalPriceNumber: domain.Some(0)},
	}}

	out := GenerateOrders(wallet, map[string]float64{"TRUR": 1000}, domain.Catalog{}, fakePrices{}, 0, 1000)

	trur, _ := out.Find("TRUR")
	assert.LessOrEqual(t, float64(trur.CurrentLots()+trur.ToBuyLots)*300, 1000.0)
}

func TestGenerateOrders_SellBound(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TMOS", Quote: "RUB", LotSize: 1, Amount: 5,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(500)},
	}}

	out := GenerateOrders(wallet, map[string]float64{"TMOS": 0}, domain.Catalog{}, fakePrices{}, 0, 500)

	tmos, _ := out.Find("TMOS")
	assert.LessOrEqual(t, float64(-tmos.ToBuyLots)*1, tmos.Amount)
}

func TestGenerateOrders_LotIntegrality(t *testing.T) {
	wallet := domain.Wallet{Positions: []domain.Position{
		{Base: "TRUR", Quote: "RUB", LotSize: 2, Amount: 4,
			PriceNumber: domain.Some(50), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(200)},
	}}

	out := GenerateOrders(wallet, map[string]float64{"TRUR": 1000}, domain.Catalog{}, fakePrices{}, 0, 1000)

	trur, _ := out.Find("TRUR")
	assert.InDelta(t, float64(trur.ToBuyLots)*100, trur.ToBuyNumber, 1e-9)
}

func TestGenerateOrders_Monotonicity(t *testing.T) {
	base := func(total domain.Optional) domain.Wallet {
		return domain.Wallet{Positions: []domain.Position{
			{Base: "TRUR", Quote: "RUB", LotSize: 1, Amount: 5,
				PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: total},
		}}
	}

	low := GenerateOrders(base(domain.Some(500)), map[string]float64{"TRUR": 1000}, domain.Catalog{}, fakePrices{}, 0, 1000)
	high := GenerateOrders(base(domain.Some(900)), map[string]float64{"TRUR": 1000}, domain.Catalog{}, fakePrices{}, 0, 1000)

	lowPos, _ := low.Find("TRUR")
	highPos, _ := high.Find("TRUR")
	assert.LessOrEqual(t, highPos.ToBuyLots, lowPos.ToBuyLots)
}

func TestGenerateOrders_SynthesizesFromCatalog(t *testing.T) {
	catalog := domain.Catalog{"TPAY": {Ticker: "TPAY", FIGI: "FIGI-1", LotSize: 10}}
	out := GenerateOrders(domain.Wallet{}, map[string]float64{"TPAY": 1000}, catalog, fakePrices{"TPAY": 100}, 0, 1000)

	tpay, ok := out.Find("TPAY")
	assert.True(t, ok)
	assert.EqualValues(t, 1, tpay.ToBuyLots) // floor(1000/1000) lots of size 10
}

func TestGenerateOrders_UnknownInstrumentSkipped(t *testing.T) {
	out := GenerateOrders(domain.Wallet{}, map[string]float64{"GHOST": 1000}, domain.Catalog{}, fakePrices{}, 0, 1000)
	_, ok := out.Find("GHOST")
	assert.False(t, ok)
}
