package database

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/vvolkov/rebalancer/internal/domain"
)

func newTestDB(t *testing.T, name string) *DB {
	t.Helper()
	db, err := New(Config{Path: filepath.Join(t.TempDir(), name+".sqlite"), Name: name})
	require.NoError(t, err)
	require.NoError(t, db.Migrate())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestCatalogRepo_UpsertAndLoad(t *testing.T) {
	db := newTestDB(t, "catalog")
	repo := NewCatalogRepo(db)

	entry := domain.CatalogEntry{Ticker: "TRUR", FIGI: "BBG1", LotSize: 1, ClassCode: "ETF", Exchange: "MOEX", TradingStatus: "NORMAL"}
	require.NoError(t, repo.Upsert(context.Background(), entry, "etf"))

	cat, err := repo.LoadAll(context.Background())
	require.NoError(t, err)
	require.Contains(t, cat, "TRUR")
	require.Equal(t, "BBG1", cat["TRUR"].FIGI)

	// Upsert again with a changed field to exercise the ON CONFLICT path.
	entry.LotSize = 10
	require.NoError(t, repo.Upsert(context.Background(), entry, "etf"))
	cat, err = repo.LoadAll(context.Background())
	require.NoError(t, err)
	require.EqualValues(t, 10, cat["TRUR"].LotSize)
}

func TestPriceCacheRepo_SaveAndLast(t *testing.T) {
	db := newTestDB(t, "price_cache")
	repo := NewPriceCacheRepo(db)

	_, ok := repo.Last("TRUR")
	require.False(t, ok)

	require.NoError(t, repo.Save("TRUR", 123.45))
	price, ok := repo.Last("TRUR")
	require.True(t, ok)
	require.Equal(t, 123.45, price)
}

func TestJobHistoryRepo_RecordRun(t *testing.T) {
	db := newTestDB(t, "job_history")
	repo := NewJobHistoryRepo(db)

	start := time.Now().Add(-time.Second)
	require.NoError(t, repo.RecordRun("account:acc1", start, time.Now(), nil))
	require.NoError(t, repo.RecordRun("account:acc1", start, time.Now(), errors.New("broker down")))

	var count int
	require.NoError(t, db.QueryRow(`SELECT COUNT(*) FROM job_runs`).Scan(&count))
	require.Equal(t, 2, count)
}
