// Package clientdata provides the small on-disk caches that sit in front
// of slow or rate-limited external sources: exchange rates, current
// prices, and scraped AUM/market-cap/shares-outstanding snapshots. Each
// entry carries its own expiry, computed from the TTL constants below.
package clientdata

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/vmihailenco/msgpack/v5"
)

// TTL constants for different data types.
// These are added to time.Now() when storing to calculate expires_at.
const (
	// Very stable data (rarely changes)
	TTLSymbolToISIN = 30 * 24 * time.Hour // 30 days - Symbol-to-ISIN mappings rarely change

	// Short-lived data (changes frequently)
	TTLExchangeRate = time.Hour        // 1 hour - Currency exchange rates
	TTLCurrentPrice = 10 * time.Minute // 10 minutes - Current price cache for batch operations
)

// entry is one cached value plus its expiry, msgpack-encoded on disk for a
// more compact footprint than the JSON the rest of this module uses for
// human-inspectable snapshots (etf_metrics/*.json).
type entry struct {
	Value     []byte    `msgpack:"value"`
	ExpiresAt time.Time `msgpack:"expires_at"`
}

// Cache is a TTL-bounded key/value store persisted as one msgpack file per
// key under dir. It is safe for concurrent use.
type Cache struct {
	dir string
	mu  sync.Mutex
}

// NewCache roots a Cache at dir, creating it if necessary.
func NewCache(dir string) (*Cache, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create cache dir %s: %w", dir, err)
	}
	return &Cache{dir: dir}, nil
}

// Set stores value under key with the given TTL.
func (c *Cache) Set(key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	e := entry{Value: value, ExpiresAt: time.Now().Add(ttl)}
	encoded, err := msgpack.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode cache entry %s: %w", key, err)
	}
	if err := os.WriteFile(c.path(key), encoded, 0o644); err != nil {
		return fmt.Errorf("write cache entry %s: %w", key, err)
	}
	return nil
}

// Get returns key's cached value if present and not expired.
func (c *Cache) Get(key string) ([]byte, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	raw, err := os.ReadFile(c.path(key))
	if err != nil {
		return nil, false
	}
	var e entry
	if err := msgpack.Unmarshal(raw, &e); err != nil {
		return nil, false
	}
	if time.Now().After(e.ExpiresAt) {
		return nil, false
	}
	return e.Value, true
}

func (c *Cache) path(key string) string {
	return filepath.Join(c.dir, key+".mp")
}
