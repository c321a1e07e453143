// Package broker implements domain.BrokerClient against the Tradernet
// REST RPC (NetTradeX/Freedom24-compatible), adapted from the project's
// prior Tradernet adapter: a small HMAC-signed HTTP client plus a
// transform layer that turns the API's loosely-typed JSON into the
// engine's domain types.
package broker

import (
	"bytes"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/vvolkov/rebalancer/internal/clientdata"
	"github.com/vvolkov/rebalancer/internal/domain"
)

const defaultBaseURL = "https://tradernet.com/api"

// Client is an HMAC-authenticated RPC client for the Tradernet API. It
// implements domain.BrokerClient directly; accountID is threaded through
// per-call since one process may drive several accounts under the same
// or different credentials.
type Client struct {
	httpClient *http.Client
	log        zerolog.Logger

	baseURL   string
	apiKey    string
	apiSecret string

	// quoteCache is optional: when set, GetQuotes serves recently-seen
	// symbols from it instead of re-querying the RPC, bounded by
	// clientdata.TTLCurrentPrice.
	quoteCache *clientdata.Cache

	connected bool
}

// Config configures a Client.
type Config struct {
	Log        zerolog.Logger
	APIKey     string
	APISecret  string
	BaseURL    string        // defaults to defaultBaseURL
	Timeout    time.Duration // defaults to 30s, per spec.md §5's bounded-deadline guidance
	QuoteCache *clientdata.Cache // optional on-disk TTL cache for GetQuotes
}

var _ domain.BrokerClient = (*Client)(nil)

// New builds a Tradernet-backed broker client.
func New(cfg Config) *Client {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		httpClient: &http.Client{Timeout: timeout},
		log:        cfg.Log.With().Str("component", "broker_client").Logger(),
		baseURL:    baseURL,
		apiKey:     cfg.APIKey,
		apiSecret:  cfg.APISecret,
		quoteCache: cfg.QuoteCache,
	}
}

// sign computes the HMAC-SHA256 signature Tradernet requires over the
// request body, matching the vendor SDK's scheme.
func sign(secret, message string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(message))
	return hex.EncodeToString(mac.Sum(nil))
}

// call invokes one Tradernet RPC method and decodes the JSON response
// body into a map for the transform helpers below.
func (c *Client) call(method string, params map[string]interface{}) (map[string]interface{}, error) {
	if params == nil {
		params = map[string]interface{}{}
	}
	body, err := json.Marshal(params)
	if err != nil {
		return nil, fmt.Errorf("marshal params for %s: %w", method, err)
	}

	form := url.Values{}
	form.Set("cmd", method)
	form.Set("params", string(body))
	form.Set("apiKey", c.apiKey)
	form.Set("sig", sign(c.apiSecret, string(body)))

	req, err := http.NewRequest(http.MethodPost, c.baseURL, bytes.NewBufferString(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("build request for %s: %w", method, err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.connected = false
		return nil, fmt.Errorf("rpc %s: %w", method, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response for %s: %w", method, err)
	}
	if resp.StatusCode == http.StatusUnauthorized {
		c.connected = false
		return nil, fmt.Errorf("rpc %s: unauthorized", method)
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("rpc %s: rate limited", method)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("rpc %s: unexpected status %d", method, resp.StatusCode)
	}

	var parsed map[string]interface{}
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, fmt.Errorf("decode response for %s: %w", method, err)
	}
	c.connected = true
	return parsed, nil
}

// GetPortfolio implements domain.BrokerClient.
func (c *Client) GetPortfolio(accountID string) ([]domain.BrokerPosition, error) {
	resp, err := c.call("getPositions", map[string]interface{}{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	return transformPositions(resp), nil
}

// GetCashBalances implements domain.BrokerClient.
func (c *Client) GetCashBalances(accountID string) ([]domain.BrokerCashBalance, error) {
	resp, err := c.call("getCashBalances", map[string]interface{}{"account_id": accountID})
	if err != nil {
		return nil, err
	}
	return transformCashBalances(resp), nil
}

// PlaceOrder implements domain.BrokerClient.
func (c *Client) PlaceOrder(accountID, symbol, side string, lots int64) (*domain.BrokerOrderResult, error) {
	resp, err := c.call("putTradeOrder", map[string]interface{}{
		"account_id": accountID,
		"instr_name": symbol,
		"action":     orderActionCode(side),
		"qty":        lots,
	})
	if err != nil {
		return nil, err
	}
	return transformOrderResult(resp, symbol, side, float64(lots)), nil
}

// GetQuote implements domain.BrokerClient.
func (c *Client) GetQuote(symbol string) (*domain.BrokerQuote, error) {
	quotes, err := c.GetQuotes([]string{symbol})
	if err != nil {
		return nil, err
	}
	return quotes[symbol], nil
}

// GetQuotes implements domain.BrokerClient. When a quote cache is
// configured, symbols with a fresh cached price are served from it and
// only the remainder round-trip to the RPC.
func (c *Client) GetQuotes(symbols []string) (map[string]*domain.BrokerQuote, error) {
	out := make(map[string]*domain.BrokerQuote, len(symbols))
	var toFetch []string

	if c.quoteCache != nil {
		for _, s := range symbols {
			if cached, ok := c.quoteCache.Get(quoteCacheKey(s)); ok {
				out[s] = &domain.BrokerQuote{Symbol: s, Price: string(cached)}
				continue
			}
			toFetch = append(toFetch, s)
		}
	} else {
		toFetch = symbols
	}

	if len(toFetch) == 0 {
		return out, nil
	}

	resp, err := c.call("getQuotes", map[string]interface{}{"tickers": toFetch})
	if err != nil {
		return nil, err
	}
	fetched := transformQuotes(resp)
	for symbol, q := range fetched {
		out[symbol] = q
		if c.quoteCache != nil && q != nil {
			_ = c.quoteCache.Set(quoteCacheKey(symbol), []byte(q.Price), clientdata.TTLCurrentPrice)
		}
	}
	return out, nil
}

func quoteCacheKey(symbol string) string {
	return "quote_" + symbol
}

// FindSymbol implements domain.BrokerClient.
func (c *Client) FindSymbol(symbol string) (*domain.BrokerSecurityInfo, error) {
	resp, err := c.call("tickerFinder", map[string]interface{}{"query": symbol})
	if err != nil {
		return nil, err
	}
	return transformSecurityInfo(resp), nil
}

// GetFXRates implements domain.BrokerClient.
func (c *Client) GetFXRates(baseCurrency string, currencies []string) (map[string]float64, error) {
	resp, err := c.call("getCurrencyRates", map[string]interface{}{
		"base": baseCurrency, "currencies": currencies,
	})
	if err != nil {
		return nil, err
	}
	return transformFXRates(resp), nil
}

// GetTradingSchedules implements domain.BrokerClient.
func (c *Client) GetTradingSchedules(exchange string, from, to int64) (*domain.TradingSchedule, error) {
	resp, err := c.call("getTradingSchedule", map[string]interface{}{
		"exchange": exchange,
		"from":     strconv.FormatInt(from, 10),
		"to":       strconv.FormatInt(to, 10),
	})
	if err != nil {
		return nil, err
	}
	return transformTradingSchedule(exchange, resp), nil
}

// IsConnected implements domain.BrokerClient.
func (c *Client) IsConnected() bool {
	return c.connected
}

// HealthCheck implements domain.BrokerClient.
func (c *Client) HealthCheck() (*domain.BrokerHealthResult, error) {
	_, err := c.call("ping", nil)
	return &domain.BrokerHealthResult{
		Connected: err == nil,
		Timestamp: time.Now().UTC().Format(time.RFC3339),
	}, nil
}

func orderActionCode(side string) string {
	if side == "SELL" {
		return "2"
	}
	return "1"
}
