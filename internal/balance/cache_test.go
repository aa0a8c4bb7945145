package balance

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/rovshanmuradov/tokenbalance/internal/utils/clock"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var t0 = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestCache(t *testing.T, maxEntries int, clk clock.Clock) *Cache {
	t.Helper()
	c, err := NewCache(maxEntries, 5*time.Minute, clk, zap.NewNop(), nil)
	require.NoError(t, err)
	return c
}

func TestCacheFreshness(t *testing.T) {
	clk := clock.NewFake(t0)
	c := newTestCache(t, 10, clk)

	c.Set("wallet", decimal.NewFromInt(42))

	got, ok := c.Get("wallet")
	require.True(t, ok)
	assert.True(t, decimal.NewFromInt(42).Equal(got))

	clk.Advance(5*time.Minute - time.Second)
	_, ok = c.Get("wallet")
	assert.True(t, ok)

	clk.Advance(time.Second)
	_, ok = c.Get("wallet")
	assert.False(t, ok, "entry at TTL is expired")

	stale, ok := c.GetStale("wallet")
	require.True(t, ok, "expired entry is kept for fallback")
	assert.Equal(t, t0, stale.CapturedAt)

	stats := c.Stats()
	assert.Equal(t, 1, stats.Entries)
	assert.Equal(t, uint64(2), stats.Hits)
	assert.Equal(t, uint64(1), stats.Misses)
}

func TestCacheSetOverwrites(t *testing.T) {
	clk := clock.NewFake(t0)
	c := newTestCache(t, 10, clk)

	c.Set("wallet", decimal.NewFromInt(1))
	clk.Advance(time.Minute)
	c.Set("wallet", decimal.Zero)

	entry, ok := c.GetStale("wallet")
	require.True(t, ok)
	assert.True(t, entry.Balance.IsZero())
	assert.Equal(t, t0.Add(time.Minute), entry.CapturedAt)
	assert.Equal(t, 1, c.Len())
}

func TestCacheEvictsOldestWrite(t *testing.T) {
	clk := clock.NewFake(t0)
	c := newTestCache(t, 2, clk)

	c.Set("a", decimal.NewFromInt(1))
	clk.Advance(time.Second)
	c.Set("b", decimal.NewFromInt(2))

	// reads do not refresh eviction order
	_, _ = c.Get("a")
	_, _ = c.GetStale("a")

	clk.Advance(time.Second)
	c.Set("c", decimal.NewFromInt(3))

	_, ok := c.GetStale("a")
	assert.False(t, ok)
	_, ok = c.GetStale("b")
	assert.True(t, ok)
	_, ok = c.GetStale("c")
	assert.True(t, ok)
	assert.Equal(t, 2, c.Len())
}

func TestCachePurgeOlderThan(t *testing.T) {
	clk := clock.NewFake(t0)
	c := newTestCache(t, 10, clk)

	c.Set("old", decimal.NewFromInt(1))
	clk.Advance(2 * time.Hour)
	c.Set("new", decimal.NewFromInt(2))
	clk.Advance(time.Minute)

	removed := c.PurgeOlderThan(time.Hour)
	assert.Equal(t, 1, removed)

	_, ok := c.GetStale("old")
	assert.False(t, ok)
	_, ok = c.GetStale("new")
	assert.True(t, ok)
}

func TestCacheConcurrentAccess(t *testing.T) {
	c := newTestCache(t, 100, clock.NewFake(t0))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				wallet := fmt.Sprintf("wallet_%d", j%20)
				c.Set(wallet, decimal.NewFromInt(int64(id)))
				_, _ = c.Get(wallet)
				_, _ = c.GetStale(wallet)
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 20, c.Len())
}
