// internal/balance/cache.go
package balance

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/rovshanmuradov/tokenbalance/internal/utils/metrics"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const (
	DefaultCacheTTL        = 5 * time.Minute
	DefaultCacheMaxEntries = 10000
	DefaultStaleRetention  = 24 * time.Hour
)

// Entry is the last known balance of a wallet.
type Entry struct {
	Balance    decimal.Decimal
	CapturedAt time.Time
}

// CacheStats is a point-in-time view of cache usage.
type CacheStats struct {
	Entries int
	Hits    uint64
	Misses  uint64
}

// Cache keeps wallet balances for a freshness window and retains expired
// entries as a fallback until they are evicted or purged.
type Cache struct {
	mu      sync.Mutex
	store   *lru.Cache[string, Entry]
	ttl     time.Duration
	clock   clock.Clock
	logger  *zap.Logger
	metrics *metrics.Collector

	hits   uint64
	misses uint64
}

// NewCache creates a bounded cache. When full, the entry written longest ago is evicted.
func NewCache(maxEntries int, ttl time.Duration, clk clock.Clock, logger *zap.Logger, m *metrics.Collector) (*Cache, error) {
	if maxEntries <= 0 {
		maxEntries = DefaultCacheMaxEntries
	}
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if clk == nil {
		clk = clock.Real()
	}

	store, err := lru.New[string, Entry](maxEntries)
	if err != nil {
		return nil, err
	}

	return &Cache{
		store:   store,
		ttl:     ttl,
		clock:   clk,
		logger:  logger.Named("balance-cache"),
		metrics: m,
	}, nil
}

// Get returns a balance only while it is fresh. Expired entries stay in place.
func (c *Cache) Get(wallet string) (decimal.Decimal, bool) {
	entry, ok := c.fresh(wallet)
	return entry.Balance, ok
}

func (c *Cache) fresh(wallet string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	// Peek keeps eviction order tied to writes
	entry, ok := c.store.Peek(wallet)
	if !ok || c.clock.Now().Sub(entry.CapturedAt) >= c.ttl {
		c.misses++
		c.metrics.RecordCacheLookup("miss")
		return Entry{Balance: decimal.Zero}, false
	}

	c.hits++
	c.metrics.RecordCacheLookup("hit")
	return entry, true
}

// Set replaces the wallet's entry and stamps it with the current time.
func (c *Cache) Set(wallet string, balance decimal.Decimal) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if evicted := c.store.Add(wallet, Entry{Balance: balance, CapturedAt: c.clock.Now()}); evicted {
		c.logger.Debug("Evicted oldest balance entry", zap.Int("entries", c.store.Len()))
	}
	c.metrics.SetCacheEntries(c.store.Len())
}

// GetStale returns the wallet's entry regardless of age.
func (c *Cache) GetStale(wallet string) (Entry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.store.Peek(wallet)
}

// PurgeOlderThan drops entries captured more than maxAge ago and returns how many were removed.
func (c *Cache) PurgeOlderThan(maxAge time.Duration) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	removed := 0
	for _, wallet := range c.store.Keys() {
		entry, ok := c.store.Peek(wallet)
		if !ok || now.Sub(entry.CapturedAt) <= maxAge {
			continue
		}
		c.store.Remove(wallet)
		removed++
	}

	c.metrics.SetCacheEntries(c.store.Len())
	return removed
}

// Stats returns entry count and hit/miss counters.
func (c *Cache) Stats() CacheStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return CacheStats{
		Entries: c.store.Len(),
		Hits:    c.hits,
		Misses:  c.misses,
	}
}

// Len returns the number of stored entries, fresh or not.
func (c *Cache) Len() int {
	return c.store.Len()
}
