package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
)

// Metric is one persisted etf_metrics/<TICKER>.json document (spec.md §6).
// Written by the market-data scrape collaborator, not by the decision
// core; the core only ever reads marketCap/aum/shares maps derived from
// these files via internal/clients/marketdata.
type Metric struct {
	Symbol           string  `json:"symbol"`
	Timestamp        string  `json:"timestamp"` // ISO-8601
	SharesCount      *int64  `json:"sharesCount"`
	Price            float64 `json:"price"`
	MarketCap        float64 `json:"marketCap"`
	AUM              float64 `json:"aum"`
	DecorrelationPct float64 `json:"decorrelationPct"`
	FIGI             string  `json:"figi"`
	UID              string  `json:"uid"`
	SharesSearchURL  string  `json:"sharesSearchUrl"`
}

// NewMetric derives a Metric from the raw scraped inputs, enforcing the
// two invariants spec.md §6 names: marketCap = sharesCount * price, and
// decorrelationPct = (marketCap - aum) / aum * 100 when aum > 0.
func NewMetric(symbol string, sharesCount *int64, price, aum float64, figi, uid, sharesSearchURL string, now time.Time) Metric {
	var marketCap float64
	if sharesCount != nil {
		marketCap = float64(*sharesCount) * price
	}
	var decorrelationPct float64
	if aum > 0 {
		decorrelationPct = (marketCap - aum) / aum * 100
	}
	return Metric{
		Symbol:           symbol,
		Timestamp:        now.UTC().Format(time.RFC3339),
		SharesCount:      sharesCount,
		Price:            price,
		MarketCap:        marketCap,
		AUM:              aum,
		DecorrelationPct: decorrelationPct,
		FIGI:             figi,
		UID:              uid,
		SharesSearchURL:  sharesSearchURL,
	}
}

// MetricsWriter persists Metric snapshots to etf_metrics/<TICKER>.json
// under a configured data directory.
type MetricsWriter struct {
	dir string
	log zerolog.Logger
}

// NewMetricsWriter creates a MetricsWriter rooted at dataDir/etf_metrics.
func NewMetricsWriter(dataDir string, log zerolog.Logger) *MetricsWriter {
	return &MetricsWriter{
		dir: filepath.Join(dataDir, "etf_metrics"),
		log: log.With().Str("component", "etf_metrics_writer").Logger(),
	}
}

// Write persists one ticker's metric snapshot. A FileSystemError here is
// logged and does not affect trading decisions (spec.md §7).
func (w *MetricsWriter) Write(m Metric) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		w.log.Error().Err(err).Msg("failed to create etf_metrics directory")
		return fmt.Errorf("mkdir etf_metrics: %w", err)
	}
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal metric for %s: %w", m.Symbol, err)
	}
	path := filepath.Join(w.dir, m.Symbol+".json")
	if err := os.WriteFile(path, data, 0o644); err != nil {
		w.log.Error().Err(err).Str("ticker", m.Symbol).Msg("failed to write metric file")
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}

// Read loads a previously persisted metric snapshot, if present.
func (w *MetricsWriter) Read(symbol string) (*Metric, error) {
	path := filepath.Join(w.dir, symbol+".json")
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	var m Metric
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal %s: %w", path, err)
	}
	return &m, nil
}
