package database

import (
	"context"
	"fmt"
	"time"

	"github.com/vvolkov/rebalancer/internal/domain"
)

// CatalogRepo persists the instrument catalog snapshot (C2/C7's
// collaborator) so a restart doesn't require a full broker re-scan before
// the first tick.
type CatalogRepo struct {
	db *DB
}

// NewCatalogRepo wraps an already-migrated catalog DB.
func NewCatalogRepo(db *DB) *CatalogRepo {
	return &CatalogRepo{db: db}
}

// LoadAll returns every persisted catalog entry.
func (r *CatalogRepo) LoadAll(ctx context.Context) (domain.Catalog, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT ticker, figi, lot_size, class_code, exchange, trading_status FROM instruments`)
	if err != nil {
		return nil, fmt.Errorf("load catalog: %w", err)
	}
	defer rows.Close()

	cat := make(domain.Catalog)
	for rows.Next() {
		var e domain.CatalogEntry
		if err := rows.Scan(&e.Ticker, &e.FIGI, &e.LotSize, &e.ClassCode, &e.Exchange, &e.TradingStatus); err != nil {
			return nil, fmt.Errorf("scan catalog row: %w", err)
		}
		cat[e.Ticker] = e
	}
	return cat, rows.Err()
}

// Upsert writes or replaces a single entry, tagged with the product type
// string the catalog builder resolved it to.
func (r *CatalogRepo) Upsert(ctx context.Context, e domain.CatalogEntry, productType string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO instruments (ticker, figi, lot_size, class_code, exchange, trading_status, product_type, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET
			figi=excluded.figi, lot_size=excluded.lot_size, class_code=excluded.class_code,
			exchange=excluded.exchange, trading_status=excluded.trading_status,
			product_type=excluded.product_type, updated_at=excluded.updated_at
	`, e.Ticker, e.FIGI, e.LotSize, e.ClassCode, e.Exchange, e.TradingStatus, productType, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("upsert instrument %s: %w", e.Ticker, err)
	}
	return nil
}

// PriceCacheRepo persists the last known quote per ticker, used as a
// stale-but-present fallback when a broker quote call degrades mid-tick.
type PriceCacheRepo struct {
	db *DB
}

// NewPriceCacheRepo wraps an already-migrated price cache DB.
func NewPriceCacheRepo(db *DB) *PriceCacheRepo {
	return &PriceCacheRepo{db: db}
}

// Save records ticker's last observed price.
func (r *PriceCacheRepo) Save(ticker string, price float64) error {
	_, err := r.db.Exec(`
		INSERT INTO last_quotes (ticker, price, fetched_at) VALUES (?, ?, ?)
		ON CONFLICT(ticker) DO UPDATE SET price=excluded.price, fetched_at=excluded.fetched_at
	`, ticker, price, time.Now().Unix())
	if err != nil {
		return fmt.Errorf("save last quote %s: %w", ticker, err)
	}
	return nil
}

// Last returns ticker's last cached price, if any.
func (r *PriceCacheRepo) Last(ticker string) (float64, bool) {
	var price float64
	err := r.db.QueryRow(`SELECT price FROM last_quotes WHERE ticker = ?`, ticker).Scan(&price)
	if err != nil {
		return 0, false
	}
	return price, true
}

// JobHistoryRepo records one row per completed scheduler tick, for audit
// and for diagnosing a stuck account from outside the process.
type JobHistoryRepo struct {
	db *DB
}

// NewJobHistoryRepo wraps an already-migrated job history DB.
func NewJobHistoryRepo(db *DB) *JobHistoryRepo {
	return &JobHistoryRepo{db: db}
}

// RecordRun inserts one job-run row.
func (r *JobHistoryRepo) RecordRun(jobName string, started, finished time.Time, runErr error) error {
	success := 1
	errMsg := ""
	if runErr != nil {
		success = 0
		errMsg = runErr.Error()
	}
	_, err := r.db.Exec(`
		INSERT INTO job_runs (job_name, started_at, finished_at, success, error) VALUES (?, ?, ?, ?, ?)
	`, jobName, started.Unix(), finished.Unix(), success, errMsg)
	if err != nil {
		return fmt.Errorf("record job run %s: %w", jobName, err)
	}
	return nil
}
