// Package domain also defines the interfaces that isolate the engine from
// its external collaborators: the brokerage RPC client. Business logic
// depends on this abstraction, never on a concrete broker SDK.
package domain

// BrokerClient is the broker-agnostic contract for everything the
// scheduler and engine need from the brokerage RPC: positions, quotes,
// instrument lookup, trading schedules and order placement.
//
// Implementations: internal/clients/broker (Tradernet-backed adapter).
type BrokerClient interface {
	// GetPortfolio retrieves all portfolio positions from the broker.
	GetPortfolio(accountID string) ([]BrokerPosition, error)

	// GetCashBalances retrieves all cash balances from the broker.
	GetCashBalances(accountID string) ([]BrokerCashBalance, error)

	// PlaceOrder places an order. Side is "BUY" or "SELL"; quantity is
	// expressed in lots.
	PlaceOrder(accountID, symbol, side string, lots int64) (*BrokerOrderResult, error)

	// GetQuote retrieves a single security quote.
	GetQuote(symbol string) (*BrokerQuote, error)

	// GetQuotes fetches quotes for multiple symbols in one batch call.
	// Symbols not found are simply omitted (not an error).
	GetQuotes(symbols []string) (map[string]*BrokerQuote, error)

	// FindSymbol looks up catalog metadata (lot size, FIGI, exchange) for
	// a ticker.
	FindSymbol(symbol string) (*BrokerSecurityInfo, error)

	// GetFXRates retrieves currency exchange rates relative to baseCurrency
	// for today.
	GetFXRates(baseCurrency string, currencies []string) (map[string]float64, error)

	// GetTradingSchedules interprets the exchange trading calendar between
	// from and to (unix seconds), used by the exchange-open oracle (C9).
	GetTradingSchedules(exchange string, from, to int64) (*TradingSchedule, error)

	// IsConnected reports whether the broker client is connected.
	IsConnected() bool

	// HealthCheck performs a broker connection health check.
	HealthCheck() (*BrokerHealthResult, error)
}
