/**
 * Package domain provides the core data model shared by every stage of the
 * balancing pipeline: positions, wallets, desired allocations and the
 * per-account configuration that drives the engine.
 *
 * These are pure value types with no infrastructure dependencies, following
 * clean architecture principles used throughout this module.
 */
package domain

import "github.com/vvolkov/rebalancer/internal/money"

/**
 * Position represents one held (or synthesized-but-not-yet-held) instrument
 * in a Wallet.
 *
 * The FixedMoney fields (Price, LotPrice, TotalPrice) and the *Number
 * fields are stored separately. The valuator fills the *Number fields from
 * the price source, falling back to Price only when the source has no
 * quote; it never writes the FixedMoney fields and never reads LotPrice or
 * TotalPrice, so the two representations are not kept in step.
 */
type Position struct {
	Base string // ticker of the held asset
	Quote string // currency (RUB, USD, EUR, ...)
	FIGI  string // instrument identifier
	LotSize int64 // lot size, >= 1

	Amount float64 // units currently held (integer or fractional for currency)

	Price      money.Fixed
	LotPrice   money.Fixed
	TotalPrice money.Fixed

	// *Number mirrors are computed by the portfolio valuator (C4). A field
	// is Absent when price data could not be resolved for this position;
	// downstream stages must not treat Absent as zero.
	PriceNumber      Optional
	LotPriceNumber   Optional
	TotalPriceNumber Optional

	// AveragePositionPriceFifoNumber is the FIFO cost basis per unit, used
	// by the buy-requires-sell planner's profit detection. Absent when no
	// cost basis is known.
	AveragePositionPriceFifoNumber Optional

	IsMargin bool

	// Computed during a pass (C3-C7):
	DesiredAmountNumber    float64
	DesiredLots            int64
	CanBuyBeforeTargetLots int64
	BeforeDiffNumber       float64
	ToBuyLots              int64
	ToBuyNumber            float64
}

// Optional distinguishes "no value computed" from "value is zero". The
// zero value of Optional is absent, matching Go's usual zero-value idiom.
type Optional struct {
	Value   float64
	Present bool
}

// Some constructs a present Optional.
func Some(v float64) Optional { return Optional{Value: v, Present: true} }

// None is the absent Optional, exported for readability at call sites.
var None = Optional{}

// CurrentLots returns floor(amount / lotSize), the number of whole lots
// currently held. LotSize <= 0 is treated defensively as 1 lot per unit.
func (p Position) CurrentLots() int64 {
	lotSize := p.LotSize
	if lotSize <= 0 {
		lotSize = 1
	}
	return int64(p.Amount) / lotSize
}

// IsCash reports whether this position is the wallet's cash leg.
func (p Position) IsCash() bool {
	return p.Base == p.Quote
}

/**
 * Wallet is an ordered sequence of Positions with at most one position per
 * Base ticker, and exactly one cash position where Base == Quote.
 */
type Wallet struct {
	Positions []Position
}

// CashTicker is the canonical cash-leg ticker for all accounts in this
// deployment; the engine supports a single base currency per account.
const CashTicker = "RUB"

// Cash returns the wallet's cash position, if present.
func (w Wallet) Cash() (Position, bool) {
	for _, p := range w.Positions {
		if p.IsCash() {
			return p, true
		}
	}
	return Position{}, false
}

// Find returns the position for a given ticker, if present.
func (w Wallet) Find(base string) (Position, bool) {
	for _, p := range w.Positions {
		if p.Base == base {
			return p, true
		}
	}
	return Position{}, false
}

// DesiredWallet maps ticker to a non-negative target percentage. It is
// normalized iff the values sum to 100 +/- epsilon.
type DesiredWallet map[string]float64

/**
 * BalancingConfig is the slice of per-account configuration relevant to the
 * decision core (the rest of CONFIG.json — broker credentials, schedule
 * intervals — lives in internal/config).
 */
type BalancingConfig struct {
	DesiredMode    DesiredMode
	DesiredWallet  DesiredWallet
	MarginTrading  MarginTradingConfig
	BuyRequiresSell BuyRequiresSellConfig

	// MinBuyRebalancePercent gates both the order generator's rebalance
	// threshold (C7) and the BRS activation threshold (C6).
	MinBuyRebalancePercent float64
}

// DesiredMode selects how the desired allocation percentages are derived.
type DesiredMode string

const (
	ModeManual                 DesiredMode = "manual"
	ModeDefault                DesiredMode = "default"
	ModeMarketCap              DesiredMode = "marketcap"
	ModeAUM                    DesiredMode = "aum"
	ModeDecorrelation          DesiredMode = "decorrelation"
	ModeMarketCapAUM           DesiredMode = "marketcap_aum"
	ModeAUMDecorrelation       DesiredMode = "aum_decorrelation"
	ModeDecorrelationMarketCap DesiredMode = "decorrelation_marketcap"
)

// MarginBalancingStrategy selects what happens when a per-instrument target
// exceeds MaxMarginSize.
type MarginBalancingStrategy string

const (
	MarginStrategyRemove       MarginBalancingStrategy = "remove"
	MarginStrategyKeepIfSmall  MarginBalancingStrategy = "keep_if_small"
)

// MarginTradingConfig configures the margin layer (C5).
type MarginTradingConfig struct {
	Enabled           bool                     `json:"enabled"`
	Multiplier        float64                  `json:"multiplier"` // 1..4
	FreeThreshold     float64                  `json:"free_threshold"`
	MaxMarginSize     float64                  `json:"max_margin_size"`
	BalancingStrategy MarginBalancingStrategy   `json:"balancing_strategy"`
}

// BuyRequiresSellMode selects the sell-source selection strategy for C6.
type BuyRequiresSellMode string

const (
	BRSModeOnlyPositivePositionsSell BuyRequiresSellMode = "only_positive_positions_sell"
	BRSModeEqualInPercents           BuyRequiresSellMode = "equal_in_percents"
	BRSModeNone                      BuyRequiresSellMode = "none"
)

// BuyRequiresSellConfig configures the buy-requires-sell planner (C6).
type BuyRequiresSellConfig struct {
	Enabled                bool                `json:"enabled"`
	Instruments            []string            `json:"instruments"`
	Mode                   BuyRequiresSellMode `json:"mode"`
	MinBuyRebalancePercent float64             `json:"min_buy_rebalance_percent"`
}

/**
 * CatalogEntry is one row of the instrument catalog: metadata needed to
 * synthesize a Position for a desired ticker that isn't currently held.
 */
type CatalogEntry struct {
	Ticker         string
	FIGI           string
	LotSize        int64
	ClassCode      string
	Exchange       string
	TradingStatus  string
}

// Catalog is an immutable-after-load snapshot of the instrument catalog,
// keyed by normalized ticker.
type Catalog map[string]CatalogEntry
