package rebalancing

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vvolkov/rebalancer/internal/domain"
)

func s3Wallet() domain.Wallet {
	return domain.Wallet{Positions: []domain.Position{
		{Base: "TMON", Quote: "RUB", LotSize: 1, Amount: 0,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(0),
			ToBuyNumber: 500},
		{Base: "TPAY", Quote: "RUB", LotSize: 1, Amount: 10,
			PriceNumber: domain.Some(100), LotPriceNumber: domain.Some(100), TotalPriceNumber: domain.Some(1000),
			AveragePositionPriceFifoNumber: domain.Some(90)},
		{Base: "RUB", Quote: "RUB", Amount: 0},
	}}
}

func brsConfig() domain.BuyRequiresSellConfig {
	return domain.BuyRequiresSellConfig{
		Enabled:     true,
		Instruments: []string{"TMON"},
		Mode:        domain.BRSModeOnlyPositivePositionsSell,
	}
}

// S3 (BRS - only_positive): expects sellLots[TPAY]=5, sellAmount=500.
func TestPlanSells_S3_OnlyPositive(t *testing.T) {
	sells, fullyCovered := PlanSells(s3Wallet(), brsConfig(), 0)

	plan, ok := sells["TPAY"]
	assert.True(t, ok)
	assert.EqualValues(t, 5, plan.SellLots)
	assert.InDelta(t, 500, plan.SellAmount, 1e-9)
	assert.True(t, fullyCovered)
}

// S4 (BRS - insufficient): TPAY amount=1 -> only 100 RUB sellable.
func TestPlanSells_S4_Insufficient(t *testing.T) {
	wallet := s3Wallet()
	for i := range wallet.Positions {
		if wallet.Positions[i].Base == "TPAY" {
			wallet.Positions[i].Amount = 1
		}
	}

	sells, fullyCovered := PlanSells(wallet, brsConfig(), 0)

	plan, ok := sells["TPAY"]
	assert.True(t, ok)
	assert.EqualValues(t, 1, plan.SellLots)
	assert.InDelta(t, 100, plan.SellAmount, 1e-9)
	assert.False(t, fullyCovered)
}

func TestPlanSells_Idempotent(t *testing.T) {
	wallet := s3Wallet()
	cfg := brsConfig()

	first, _ := PlanSells(wallet, cfg, 0)
	second, _ := PlanSells(wallet, cfg, 0)

	assert.Equal(t, first, second)
}

func TestPlanSells_ModeNone_NoOp(t *testing.T) {
	cfg := domain.BuyRequiresSellConfig{Enabled: true, Mode: domain.BRSModeNone, Instruments: []string{"TMON"}}
	sells, fullyCovered := PlanSells(s3Wallet(), cfg, 0)
	assert.Empty(t, sells)
	assert.True(t, fullyCovered)
}

func TestPlanSells_FreeRubSufficient_EmptyMapping(t *testing.T) {
	sells, fullyCovered := PlanSells(s3Wallet(), brsConfig(), 500)
	assert.Empty(t, sells)
	assert.True(t, fullyCovered)
}
