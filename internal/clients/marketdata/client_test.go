package marketdata

import (
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vvolkov/rebalancer/internal/modules/catalog"
)

type fakeMetrics struct {
	data map[string]*catalog.Metric
	err  error
}

func (f fakeMetrics) Read(symbol string) (*catalog.Metric, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.data[symbol], nil
}

type fakeFX struct {
	rate float64
	err  error
}

func (f fakeFX) GetRate(from, to string) (float64, error) {
	if f.err != nil {
		return 0, f.err
	}
	return f.rate, nil
}

func metricWithShares(symbol string, shares int64, marketCap, aum float64) *catalog.Metric {
	return &catalog.Metric{Symbol: symbol, SharesCount: &shares, MarketCap: marketCap, AUM: aum}
}

func TestFetch_ConvertsAUMToRUB(t *testing.T) {
	metrics := fakeMetrics{data: map[string]*catalog.Metric{
		"TRUR": metricWithShares("TRUR", 1000, 100000, 1000), // AUM in USD
	}}
	c := New(Config{Metrics: metrics, FX: fakeFX{rate: 90}, Log: zerolog.Nop(), AUMCurrency: "USD"})

	md := c.Fetch([]string{"TRUR"})

	assert.Equal(t, 100000.0, md.MarketCap["TRUR"])
	assert.Equal(t, 90000.0, md.AUM["TRUR"]) // 1000 USD * 90
	assert.Equal(t, int64(1000), md.Shares["TRUR"])
}

func TestFetch_RUBCurrencySkipsConversion(t *testing.T) {
	metrics := fakeMetrics{data: map[string]*catalog.Metric{
		"TRUR": metricWithShares("TRUR", 1000, 100000, 1000),
	}}
	c := New(Config{Metrics: metrics, FX: fakeFX{rate: 999}, Log: zerolog.Nop(), AUMCurrency: "RUB"})

	md := c.Fetch([]string{"TRUR"})
	assert.Equal(t, 1000.0, md.AUM["TRUR"])
}

func TestFetch_MissingMetricSkipped(t *testing.T) {
	metrics := fakeMetrics{data: map[string]*catalog.Metric{}}
	c := New(Config{Metrics: metrics, FX: fakeFX{rate: 1}, Log: zerolog.Nop()})

	md := c.Fetch([]string{"UNKNOWN"})
	assert.Empty(t, md.MarketCap)
}

func TestFetch_FXFailureFallsBackToOne(t *testing.T) {
	metrics := fakeMetrics{data: map[string]*catalog.Metric{
		"TRUR": metricWithShares("TRUR", 1000, 100000, 1000),
	}}
	c := New(Config{Metrics: metrics, FX: fakeFX{err: errors.New("fx down")}, Log: zerolog.Nop(), AUMCurrency: "USD"})

	md := c.Fetch([]string{"TRUR"})
	assert.Equal(t, 1000.0, md.AUM["TRUR"])
}

func TestFetch_NormalizesTickerAliases(t *testing.T) {
	metrics := fakeMetrics{data: map[string]*catalog.Metric{
		"TPAY": metricWithShares("TPAY", 10, 1000, 0),
	}}
	c := New(Config{Metrics: metrics, FX: fakeFX{rate: 1}, Log: zerolog.Nop()})

	md := c.Fetch([]string{"TRAY@"})
	assert.Equal(t, 1000.0, md.MarketCap["TPAY"])
}

func TestMemoizedFXSource_CachesWithinTTL(t *testing.T) {
	calls := 0
	inner := countingFX{rate: 80, calls: &calls}
	src := NewMemoizedFXSource(inner, time.Hour)

	r1, err := src.GetRate("USD", "RUB")
	require.NoError(t, err)
	r2, err := src.GetRate("USD", "RUB")
	require.NoError(t, err)

	assert.Equal(t, r1, r2)
	assert.Equal(t, 1, calls)
}

type countingFX struct {
	rate  float64
	calls *int
}

func (c countingFX) GetRate(from, to string) (float64, error) {
	*c.calls++
	return c.rate, nil
}
