// Package catalog builds and maintains the instrument catalog (§3): an
// immutable-after-load map of ticker to lot size, class code, exchange,
// and trading status, used to synthesize Positions the order generator
// doesn't yet hold. Adapted from the teacher's security-repository /
// product-type idiom, trimmed to what the decision core actually reads.
package catalog

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/ticker"
)

// ProductType classifies a catalog entry, mirroring the broker's
// instrument-type taxonomy. Indices are excluded from tradability.
type ProductType string

const (
	ProductTypeEquity     ProductType = "EQUITY"
	ProductTypeETF        ProductType = "ETF"
	ProductTypeETC        ProductType = "ETC"
	ProductTypeMutualFund ProductType = "MUTUALFUND"
	ProductTypeIndex      ProductType = "INDEX"
	ProductTypeUnknown    ProductType = "UNKNOWN"
)

// IsTradable reports whether this product type can be bought or sold.
func (pt ProductType) IsTradable() bool {
	switch pt {
	case ProductTypeEquity, ProductTypeETF, ProductTypeETC, ProductTypeMutualFund:
		return true
	default:
		return false
	}
}

// Builder loads catalog entries for a set of tickers from the broker's
// symbol-lookup RPC. The resulting domain.Catalog is immutable after
// Load returns; callers share it read-only across account tasks.
type Builder struct {
	broker domain.BrokerClient
	log    zerolog.Logger
}

// NewBuilder creates a catalog Builder.
func NewBuilder(broker domain.BrokerClient, log zerolog.Logger) *Builder {
	return &Builder{
		broker: broker,
		log:    log.With().Str("component", "catalog_builder").Logger(),
	}
}

// Load resolves catalog entries for tickers, skipping (and logging) any
// that the broker cannot identify — an InstrumentUnknown condition the
// order generator (C7) is responsible for handling, not this loader.
func (b *Builder) Load(tickers []string) domain.Catalog {
	out := make(domain.Catalog, len(tickers))
	for _, t := range tickers {
		norm := ticker.Normalize(t)
		if norm == "" {
			continue
		}
		info, err := b.broker.FindSymbol(norm)
		if err != nil {
			b.log.Warn().Err(err).Str("ticker", norm).Msg("catalog lookup failed")
			continue
		}
		if info == nil {
			b.log.Warn().Str("ticker", norm).Msg("instrument unknown")
			continue
		}
		out[norm] = domain.CatalogEntry{
			Ticker:        norm,
			FIGI:          info.FIGI,
			LotSize:       maxInt64(1, info.LotSize),
			ClassCode:     info.ClassCode,
			Exchange:      info.Exchange,
			TradingStatus: info.TradingStatus,
		}
	}
	return out
}

// Merge returns a new catalog combining base with overrides, overrides
// winning on ticker collision. Used at startup to layer the freshly
// broker-resolved catalog over the persisted catalog snapshot.
func Merge(base domain.Catalog, overrides domain.Catalog) domain.Catalog {
	out := make(domain.Catalog, len(base)+len(overrides))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range overrides {
		out[k] = v
	}
	return out
}

// Validate reports InstrumentUnknown-style errors for any ticker in
// wanted that has no catalog entry, without mutating the catalog.
func Validate(cat domain.Catalog, wanted []string) []error {
	var errs []error
	for _, t := range wanted {
		norm := ticker.Normalize(t)
		if norm == "" {
			continue
		}
		if _, ok := cat[norm]; !ok {
			errs = append(errs, fmt.Errorf("instrument unknown: %s", norm))
		}
	}
	return errs
}

func maxInt64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}
