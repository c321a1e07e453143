package market_hours

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vvolkov/rebalancer/internal/domain"
)

func TestIsOpen(t *testing.T) {
	schedule := &domain.TradingSchedule{
		Exchange: "MOEX",
		Days: []domain.TradingDay{
			{Date: "2026-07-31", IsTradingDay: true, StartTime: 1000, EndTime: 2000},
		},
	}

	assert.Equal(t, StateOpen, IsOpen(schedule, 1500))
	assert.Equal(t, StateUnknown, IsOpen(schedule, 2000)) // end is exclusive, no matching day
	assert.Equal(t, StateUnknown, IsOpen(schedule, 500))
}

func TestIsOpen_NonTradingDay(t *testing.T) {
	schedule := &domain.TradingSchedule{Days: []domain.TradingDay{
		{IsTradingDay: false, StartTime: 1000, EndTime: 2000},
	}}
	assert.Equal(t, StateClosed, IsOpen(schedule, 1500))
}

func TestIsOpen_NilScheduleIsUnknown(t *testing.T) {
	assert.Equal(t, StateUnknown, IsOpen(nil, 1500))
}

func TestShouldRunEngine(t *testing.T) {
	assert.True(t, ShouldRunEngine(StateOpen, ExchangeClosureBehavior{Mode: SkipIteration}))
	assert.False(t, ShouldRunEngine(StateClosed, ExchangeClosureBehavior{Mode: SkipIteration}))
	assert.True(t, ShouldRunEngine(StateClosed, ExchangeClosureBehavior{Mode: UpdateIterationResult}))
	assert.True(t, ShouldRunEngine(StateUnknown, ExchangeClosureBehavior{Mode: ForceOrders}))
}

// Exchange gate property: with skip_iteration and isTradingDay=false, zero
// orders are submitted.
func TestShouldSubmitOrders_SkipIterationGate(t *testing.T) {
	assert.False(t, ShouldSubmitOrders(StateClosed, ExchangeClosureBehavior{Mode: SkipIteration}))
	assert.False(t, ShouldSubmitOrders(StateUnknown, ExchangeClosureBehavior{Mode: SkipIteration}))
	assert.True(t, ShouldSubmitOrders(StateOpen, ExchangeClosureBehavior{Mode: SkipIteration}))
	assert.True(t, ShouldSubmitOrders(StateClosed, ExchangeClosureBehavior{Mode: ForceOrders}))
}
