package domain

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

// mockBrokerClient is a minimal in-memory BrokerClient used to pin down the
// interface contract.
type mockBrokerClient struct {
	portfolio   []BrokerPosition
	cash        []BrokerCashBalance
	quote       *BrokerQuote
	security    *BrokerSecurityInfo
	schedule    *TradingSchedule
	health      *BrokerHealthResult
	orderResult *BrokerOrderResult
	connected   bool
	returnError bool
}

func (m *mockBrokerClient) GetPortfolio(accountID string) ([]BrokerPosition, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.portfolio, nil
}

func (m *mockBrokerClient) GetCashBalances(accountID string) ([]BrokerCashBalance, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.cash, nil
}

func (m *mockBrokerClient) PlaceOrder(accountID, symbol, side string, lots int64) (*BrokerOrderResult, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.orderResult, nil
}

func (m *mockBrokerClient) GetQuote(symbol string) (*BrokerQuote, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.quote, nil
}

func (m *mockBrokerClient) GetQuotes(symbols []string) (map[string]*BrokerQuote, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	out := map[string]*BrokerQuote{}
	if m.quote != nil {
		out[m.quote.Symbol] = m.quote
	}
	return out, nil
}

func (m *mockBrokerClient) FindSymbol(symbol string) (*BrokerSecurityInfo, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.security, nil
}

func (m *mockBrokerClient) GetFXRates(baseCurrency string, currencies []string) (map[string]float64, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	out := map[string]float64{}
	for _, c := range currencies {
		out[c] = 1.0
	}
	return out, nil
}

func (m *mockBrokerClient) GetTradingSchedules(exchange string, from, to int64) (*TradingSchedule, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.schedule, nil
}

func (m *mockBrokerClient) IsConnected() bool {
	return m.connected
}

func (m *mockBrokerClient) HealthCheck() (*BrokerHealthResult, error) {
	if m.returnError {
		return nil, errors.New("mock error")
	}
	return m.health, nil
}

var _ BrokerClient = (*mockBrokerClient)(nil)

func TestBrokerClient_GetPortfolio(t *testing.T) {
	mock := &mockBrokerClient{portfolio: []BrokerPosition{{Symbol: "TRUR", Quantity: 10}}}

	positions, err := mock.GetPortfolio("acc-1")
	assert.NoError(t, err)
	assert.Len(t, positions, 1)
	assert.Equal(t, "TRUR", positions[0].Symbol)
}

func TestBrokerClient_PlaceOrder(t *testing.T) {
	mock := &mockBrokerClient{orderResult: &BrokerOrderResult{OrderID: "o-1", Symbol: "TMOS", Side: "BUY"}}

	result, err := mock.PlaceOrder("acc-1", "TMOS", "BUY", 5)
	assert.NoError(t, err)
	assert.Equal(t, "o-1", result.OrderID)
}

func TestBrokerClient_GetTradingSchedules(t *testing.T) {
	mock := &mockBrokerClient{schedule: &TradingSchedule{Exchange: "MOEX", Days: []TradingDay{{IsTradingDay: true}}}}

	sched, err := mock.GetTradingSchedules("MOEX", 0, 86400)
	assert.NoError(t, err)
	assert.True(t, sched.Days[0].IsTradingDay)
}

func TestBrokerClient_Errors(t *testing.T) {
	mock := &mockBrokerClient{returnError: true}

	_, err := mock.GetPortfolio("acc-1")
	assert.Error(t, err)

	_, err = mock.GetTradingSchedules("MOEX", 0, 1)
	assert.Error(t, err)
}

func TestBrokerClient_IsConnected(t *testing.T) {
	assert.True(t, (&mockBrokerClient{connected: true}).IsConnected())
	assert.False(t, (&mockBrokerClient{connected: false}).IsConnected())
}
