package scheduler

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/domain"
	"github.com/vvolkov/rebalancer/internal/modules/allocation"
	"github.com/vvolkov/rebalancer/internal/modules/market_hours"
	"github.com/vvolkov/rebalancer/internal/modules/rebalancing"
	"github.com/vvolkov/rebalancer/internal/money"
	"github.com/vvolkov/rebalancer/internal/utils"
)

// MarketDataSource supplies the per-tick auxiliary market-data maps the
// desired-mode resolver needs. Results are expected to be cached by the
// caller for the duration of one tick and invalidated at the tick
// boundary, per the concurrency model.
type MarketDataSource interface {
	Fetch(tickers []string) allocation.MarketData
}

// PriceCache is a last-known-good price fallback, consulted when a tick's
// live quote fetch degrades and updated whenever it succeeds.
// Implementations: internal/database.PriceCacheRepo.
type PriceCache interface {
	Save(ticker string, price float64) error
	Last(ticker string) (float64, bool)
}

// AccountJob is the per-account scheduler loop (C8): gate on exchange-open,
// fetch positions+prices, run the engine, submit orders sequentially with
// an inter-order sleep.
type AccountJob struct {
	log zerolog.Logger

	accountID string
	exchange  string

	broker     domain.BrokerClient
	catalog    func() domain.Catalog
	marketData MarketDataSource
	priceCache PriceCache

	cfg             domain.BalancingConfig
	closureBehavior market_hours.ExchangeClosureBehavior

	sleepBetweenOrders time.Duration

	// nowFunc and scheduleWindow are overridable for tests.
	nowFunc       func() int64
	scheduleWindow time.Duration
}

// AccountJobConfig configures one account's tick loop.
type AccountJobConfig struct {
	Log                zerolog.Logger
	AccountID          string
	Exchange           string
	Broker             domain.BrokerClient
	Catalog            func() domain.Catalog
	MarketData         MarketDataSource
	PriceCache         PriceCache
	BalancingConfig    domain.BalancingConfig
	ClosureBehavior    market_hours.ExchangeClosureBehavior
	SleepBetweenOrders time.Duration
}

// NewAccountJob builds an AccountJob from config.
func NewAccountJob(cfg AccountJobConfig) *AccountJob {
	return &AccountJob{
		log:                cfg.Log.With().Str("job", "account_tick").Str("account_id", cfg.AccountID).Logger(),
		accountID:          cfg.AccountID,
		exchange:           cfg.Exchange,
		broker:             cfg.Broker,
		catalog:            cfg.Catalog,
		marketData:         cfg.MarketData,
		priceCache:         cfg.PriceCache,
		cfg:                cfg.BalancingConfig,
		closureBehavior:    cfg.ClosureBehavior,
		sleepBetweenOrders: cfg.SleepBetweenOrders,
		nowFunc:            func() int64 { return time.Now().Unix() },
		scheduleWindow:     24 * time.Hour,
	}
}

// Name returns the job name.
func (j *AccountJob) Name() string {
	return "account:" + j.accountID
}

// Run performs exactly one tick: exchange gate, fetch, decide, submit.
func (j *AccountJob) Run() error {
	tickID := uuid.New().String()
	log := j.log.With().Str("tick_id", tickID).Logger()

	now := j.nowFunc()
	log = log.With().Str("tick_date", utils.UnixToDate(now)).Logger()
	schedule, err := j.broker.GetTradingSchedules(j.exchange, now, now+int64(j.scheduleWindow.Seconds()))
	if err != nil {
		log.Warn().Err(err).Msg("trading schedule lookup failed, treating exchange state as unknown")
	}
	state := market_hours.IsOpen(schedule, now)

	if !market_hours.ShouldRunEngine(state, j.closureBehavior) {
		log.Info().Str("exchange_state", exchangeStateLabel(state)).Msg("skipping tick, exchange closed")
		return nil
	}

	wallet, err := FetchWallet(j.broker, j.accountID)
	if err != nil {
		return fmt.Errorf("fetch wallet: %w", err)
	}

	tickers := tickersOf(wallet, j.cfg.DesiredWallet)
	prices, err := FetchPrices(j.broker, tickers)
	if err != nil {
		log.Warn().Err(err).Msg("price fetch degraded, continuing with partial data")
		prices = brokerPriceSource{prices: map[string]float64{domain.CashTicker: 1}}
	}
	if j.priceCache != nil {
		prices = applyPriceCacheFallback(prices, tickers, j.priceCache, log)
	}

	md := allocation.MarketData{}
	if j.marketData != nil {
		md = j.marketData.Fetch(tickers)
	}

	result := rebalancing.Run(j.cfg, wallet, j.catalog(), prices, md)
	log.Info().
		Float64("total_portfolio_value", result.TotalPortfolioValue).
		Bool("underfunded", result.Underfunded).
		Msg("engine produced plan")

	if !market_hours.ShouldSubmitOrders(state, j.closureBehavior) {
		log.Info().Msg("telemetry-only tick, orders not submitted")
		return nil
	}

	return j.submitOrders(log, result.Wallet)
}

func (j *AccountJob) submitOrders(log zerolog.Logger, wallet domain.Wallet) error {
	for _, p := range wallet.Positions {
		if p.ToBuyLots == 0 || p.IsCash() {
			continue
		}
		side := "BUY"
		lots := p.ToBuyLots
		if lots < 0 {
			side = "SELL"
			lots = -lots
		}
		if _, err := j.broker.PlaceOrder(j.accountID, p.Base, side, lots); err != nil {
			log.Error().Err(err).Str("symbol", p.Base).Msg("order placement failed")
			continue
		}
		time.Sleep(j.sleepBetweenOrders)
	}
	return nil
}

// FetchWallet builds a domain.Wallet from the broker's current positions
// and cash balances for accountID. Exported so the HTTP dry-run handler
// (internal/app) can assemble the same snapshot the scheduler loop sees.
func FetchWallet(broker domain.BrokerClient, accountID string) (domain.Wallet, error) {
	positions, err := broker.GetPortfolio(accountID)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get portfolio: %w", err)
	}
	cash, err := broker.GetCashBalances(accountID)
	if err != nil {
		return domain.Wallet{}, fmt.Errorf("get cash balances: %w", err)
	}

	wallet := domain.Wallet{Positions: make([]domain.Position, 0, len(positions)+1)}
	for _, bp := range positions {
		lotSize := bp.LotSize
		if lotSize <= 0 {
			lotSize = 1
		}
		wallet.Positions = append(wallet.Positions, domain.Position{
			Base:    bp.Symbol,
			Quote:   domain.CashTicker,
			FIGI:    bp.FIGI,
			LotSize: lotSize,
			Amount:  bp.Quantity,
		})
	}
	for _, cb := range cash {
		if cb.Currency != domain.CashTicker {
			continue
		}
		wallet.Positions = append(wallet.Positions, domain.Position{
			Base:   domain.CashTicker,
			Quote:  domain.CashTicker,
			Amount: cb.Amount,
		})
	}
	if _, ok := wallet.Cash(); !ok {
		wallet.Positions = append(wallet.Positions, domain.Position{Base: domain.CashTicker, Quote: domain.CashTicker})
	}
	return wallet, nil
}

// FetchPrices builds a portfolio.PriceSource from a batch broker quote
// call for tickers. Exported alongside FetchWallet for the same reason.
func FetchPrices(broker domain.BrokerClient, tickers []string) (brokerPriceSource, error) {
	quotes, err := broker.GetQuotes(tickers)
	if err != nil {
		return brokerPriceSource{}, err
	}
	prices := make(map[string]float64, len(quotes))
	for symbol, q := range quotes {
		if q == nil {
			continue
		}
		parsed := money.Parse(q.Price)
		if parsed.Present {
			prices[symbol] = parsed.Value
		}
	}
	prices[domain.CashTicker] = 1
	return brokerPriceSource{prices: prices}, nil
}

// brokerPriceSource adapts a flat price map to portfolio.PriceSource.
type brokerPriceSource struct {
	prices map[string]float64
}

func (b brokerPriceSource) Price(ticker string) (float64, bool) {
	v, ok := b.prices[ticker]
	return v, ok
}

// applyPriceCacheFallback fills any ticker missing from prices with its
// last cached value, and persists every fresh price it finds for the next
// tick's fallback. A ticker absent from both sources is left unset —
// InstrumentUnpriced handling downstream (C7) is unaffected.
func applyPriceCacheFallback(prices brokerPriceSource, tickers []string, cache PriceCache, log zerolog.Logger) brokerPriceSource {
	if prices.prices == nil {
		prices.prices = map[string]float64{}
	}
	for _, t := range tickers {
		if v, ok := prices.prices[t]; ok {
			if err := cache.Save(t, v); err != nil {
				log.Warn().Err(err).Str("ticker", t).Msg("failed to persist price cache entry")
			}
			continue
		}
		if last, ok := cache.Last(t); ok {
			prices.prices[t] = last
		}
	}
	return prices
}

func tickersOf(wallet domain.Wallet, desired domain.DesiredWallet) []string {
	seen := map[string]bool{}
	var out []string
	add := func(t string) {
		if t == "" || seen[t] {
			return
		}
		seen[t] = true
		out = append(out, t)
	}
	for _, p := range wallet.Positions {
		add(p.Base)
	}
	for t := range desired {
		add(t)
	}
	return out
}

func exchangeStateLabel(state market_hours.State) string {
	switch state {
	case market_hours.StateOpen:
		return "open"
	case market_hours.StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
