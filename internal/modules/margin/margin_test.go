package margin

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/vvolkov/rebalancer/internal/domain"
)

func TestApply_Disabled_Identity(t *testing.T) {
	cfg := domain.MarginTradingConfig{Enabled: false}
	result := Apply(cfg, domain.DesiredWallet{"X": 100}, 800_000)
	assert.InDelta(t, 800_000, result.TargetValues["X"], 1e-6)
	assert.True(t, result.WithinLimits)
}

func TestApply_MarginClamp_Remove(t *testing.T) {
	// S6: multiplier=2, max_margin_size=1_000_000, strategy=remove.
	// Portfolio value 800_000, desired {X:100}. Pre-clamp target = 1_600_000.
	// Post-clamp target for X = 1_000_000.
	cfg := domain.MarginTradingConfig{
		Enabled:           true,
		Multiplier:        2,
		MaxMarginSize:     1_000_000,
		BalancingStrategy: domain.MarginStrategyRemove,
	}
	result := Apply(cfg, domain.DesiredWallet{"X": 100}, 800_000)

	assert.InDelta(t, 1_000_000, result.TargetValues["X"], 1e-6)
	assert.False(t, result.WithinLimits)
}

func TestApply_KeepIfSmall_WithinThreshold(t *testing.T) {
	cfg := domain.MarginTradingConfig{
		Enabled:           true,
		Multiplier:        1,
		MaxMarginSize:     1_000_000,
		FreeThreshold:     50_000,
		BalancingStrategy: domain.MarginStrategyKeepIfSmall,
	}
	result := Apply(cfg, domain.DesiredWallet{"X": 100}, 1_020_000)

	assert.InDelta(t, 1_020_000, result.TargetValues["X"], 1e-6)
	assert.True(t, result.WithinLimits)
}

func TestApply_KeepIfSmall_ExceedsThreshold(t *testing.T) {
	cfg := domain.MarginTradingConfig{
		Enabled:           true,
		Multiplier:        1,
		MaxMarginSize:     1_000_000,
		FreeThreshold:     10_000,
		BalancingStrategy: domain.MarginStrategyKeepIfSmall,
	}
	result := Apply(cfg, domain.DesiredWallet{"X": 100}, 1_020_000)

	assert.InDelta(t, 1_000_000, result.TargetValues["X"], 1e-6)
	assert.False(t, result.WithinLimits)
}

func TestApply_MarginClamp_RedistributesExcessToOtherTargets(t *testing.T) {
	// multiplier=2, max_margin_size=1_000_000, strategy=remove.
	// Pre-clamp: X=1_600_000 (clamped to 1_000_000, overflow 600_000),
	// Y=200_000, Z=200_000 (untouched headroom). The 600_000 overflow is
	// renormalized across Y and Z proportional to their current value,
	// raising each to 500_000.
	cfg := domain.MarginTradingConfig{
		Enabled:           true,
		Multiplier:        2,
		MaxMarginSize:     1_000_000,
		BalancingStrategy: domain.MarginStrategyRemove,
	}
	result := Apply(cfg, domain.DesiredWallet{"X": 80, "Y": 10, "Z": 10}, 1_000_000)

	assert.InDelta(t, 1_000_000, result.TargetValues["X"], 1e-6)
	assert.InDelta(t, 500_000, result.TargetValues["Y"], 1e-6)
	assert.InDelta(t, 500_000, result.TargetValues["Z"], 1e-6)
	assert.False(t, result.WithinLimits)
}

func TestApply_CashNeverLeveraged(t *testing.T) {
	cfg := domain.MarginTradingConfig{Enabled: true, Multiplier: 3}
	result := Apply(cfg, domain.DesiredWallet{domain.CashTicker: 10, "X": 90}, 100_000)

	assert.InDelta(t, 10_000, result.TargetValues[domain.CashTicker], 1e-6)
	assert.InDelta(t, 270_000, result.TargetValues["X"], 1e-6)
}
