// Package marketdata assembles the allocation.MarketData auxiliary maps
// (marketCap, aum, shares) the desired-mode resolver (C3) needs for its
// market-cap/AUM/decorrelation modes, from persisted etf_metrics/<TICKER>.json
// snapshots (spec.md §6) plus live FX conversion. The actual HTML/feed
// scraping that produces those snapshots is an out-of-core collaborator
// (spec.md §1); this client only reads and converts.
package marketdata

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/clients/exchangerate"
	"github.com/vvolkov/rebalancer/internal/modules/allocation"
	"github.com/vvolkov/rebalancer/internal/modules/catalog"
	"github.com/vvolkov/rebalancer/internal/ticker"
)

// FXSource converts an amount in fromCurrency to RUB. Implementations:
// internal/clients/exchangerate.Client.
type FXSource interface {
	GetRate(fromCurrency, toCurrency string) (float64, error)
}

// MetricSource reads a persisted per-ticker metric snapshot.
// Implementations: internal/modules/catalog.MetricsWriter.
type MetricSource interface {
	Read(symbol string) (*catalog.Metric, error)
}

// Client assembles allocation.MarketData for a tick. Results are cached
// in memory for the duration of one tick per the concurrency model
// (spec.md §5); callers construct a fresh per-tick cache via Fetch and
// discard it at the tick boundary — Client itself holds no tick state.
type Client struct {
	metrics MetricSource
	fx      FXSource
	log     zerolog.Logger

	// aumCurrency is each metric snapshot's AUM currency when not already
	// RUB; the teacher's scrapers report USD for most UCITS ETFs.
	aumCurrency string
}

// Config configures a Client.
type Config struct {
	Metrics     MetricSource
	FX          FXSource
	Log         zerolog.Logger
	AUMCurrency string // defaults to "USD"
}

// New builds a market-data client.
func New(cfg Config) *Client {
	currency := cfg.AUMCurrency
	if currency == "" {
		currency = "USD"
	}
	return &Client{
		metrics:     cfg.Metrics,
		fx:          cfg.FX,
		log:         cfg.Log.With().Str("component", "marketdata_client").Logger(),
		aumCurrency: currency,
	}
}

// Fetch implements scheduler.MarketDataSource: it builds one tick's
// allocation.MarketData from whatever metric snapshots are available for
// tickers, skipping (and logging) any that are missing or malformed
// rather than failing the whole tick (spec.md §7's MalformedFeed policy).
func (c *Client) Fetch(tickers []string) allocation.MarketData {
	md := allocation.MarketData{
		MarketCap: make(map[string]float64),
		AUM:       make(map[string]float64),
		Shares:    make(map[string]int64),
	}

	rate := c.fxRateCached()

	for _, t := range tickers {
		norm := ticker.Normalize(t)
		if norm == "" {
			continue
		}
		m, err := c.metrics.Read(norm)
		if err != nil {
			c.log.Warn().Err(err).Str("ticker", norm).Msg("metric read failed")
			continue
		}
		if m == nil {
			continue
		}
		if m.MarketCap > 0 {
			md.MarketCap[norm] = m.MarketCap
		}
		if m.AUM > 0 {
			md.AUM[norm] = m.AUM * rate
		}
		if m.SharesCount != nil {
			md.Shares[norm] = *m.SharesCount
		}
	}
	return md
}

// fxRateCached fetches the aumCurrency->RUB rate once, logging and
// falling back to 1.0 (no conversion) on failure — a market-data outage
// degrades allocation quality but must not halt the scheduler.
func (c *Client) fxRateCached() float64 {
	if c.aumCurrency == "RUB" {
		return 1
	}
	rate, err := c.fx.GetRate(c.aumCurrency, "RUB")
	if err != nil {
		c.log.Warn().Err(err).Str("currency", c.aumCurrency).Msg("fx rate fetch failed, using 1.0")
		return 1
	}
	return rate
}

// memoFXSource wraps an FXSource with the teacher's 1-hour cache idiom,
// for FXSource implementations (like a raw scraper client) that don't
// already cache.
type memoFXSource struct {
	inner FXSource
	mu    sync.RWMutex
	rates map[string]memoRate
	ttl   time.Duration
}

type memoRate struct {
	value     float64
	expiresAt time.Time
}

// NewMemoizedFXSource wraps inner with an in-memory TTL cache.
func NewMemoizedFXSource(inner FXSource, ttl time.Duration) FXSource {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &memoFXSource{inner: inner, rates: make(map[string]memoRate), ttl: ttl}
}

func (m *memoFXSource) GetRate(fromCurrency, toCurrency string) (float64, error) {
	key := fromCurrency + ":" + toCurrency
	m.mu.RLock()
	if cached, ok := m.rates[key]; ok && time.Now().Before(cached.expiresAt) {
		m.mu.RUnlock()
		return cached.value, nil
	}
	m.mu.RUnlock()

	rate, err := m.inner.GetRate(fromCurrency, toCurrency)
	if err != nil {
		return 0, err
	}

	m.mu.Lock()
	m.rates[key] = memoRate{value: rate, expiresAt: time.Now().Add(m.ttl)}
	m.mu.Unlock()
	return rate, nil
}

var _ FXSource = (*exchangerate.Client)(nil)
