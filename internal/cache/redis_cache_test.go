package cache

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vendepos/backend/internal/domain"
)

func TestNoopStatsCacheNeverHits(t *testing.T) {
	var c StatsCache = NoopStatsCache{}
	ctx := context.Background()

	require.NoError(t, c.Set(ctx, "k", &domain.StatisticsReport{Period: "today"}, time.Minute))
	got, ok, err := c.Get(ctx, "k")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Nil(t, got)
	assert.NoError(t, c.Invalidate(ctx))
}

func newTestRedisCache(t *testing.T) *RedisStatsCache {
	t.Helper()
	addr := os.Getenv("VENDEPOS_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("VENDEPOS_TEST_REDIS_ADDR is not set")
	}
	c := NewRedisStatsCache(addr, "", 0)
	c.prefix = "vendepos-test:" + t.Name() + ":"
	if err := c.Ping(context.Background()); err != nil {
		t.Skipf("redis not available at %s: %v", addr, err)
	}
	t.Cleanup(func() {
		_ = c.Invalidate(context.Background())
		_ = c.Close()
	})
	return c
}

func TestRedisStatsCacheRoundTripAndInvalidate(t *testing.T) {
	c := newTestRedisCache(t)
	ctx := context.Background()

	report := &domain.StatisticsReport{
		Period:  "week",
		Metrics: &domain.Metrics{TotalSales: 2, TotalRevenue: decimal.NewFromInt(1200)},
	}
	require.NoError(t, c.Set(ctx, "week:1:2", report, time.Minute))
	require.NoError(t, c.Set(ctx, "today:1:2", report, time.Minute))

	got, ok, err := c.Get(ctx, "week:1:2")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, 2, got.Metrics.TotalSales)
	assert.True(t, got.Metrics.TotalRevenue.Equal(decimal.NewFromInt(1200)))

	require.NoError(t, c.Invalidate(ctx))
	_, ok, err = c.Get(ctx, "week:1:2")
	require.NoError(t, err)
	assert.False(t, ok)
	_, ok, err = c.Get(ctx, "today:1:2")
	require.NoError(t, err)
	assert.False(t, ok)
}
