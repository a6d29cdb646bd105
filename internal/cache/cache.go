package cache

import (
	"context"
	"time"

	"vendepos/backend/internal/domain"
)

// StatsCache stores computed statistics reports keyed by resolved range.
type StatsCache interface {
	Get(ctx context.Context, key string) (*domain.StatisticsReport, bool, error)
	Set(ctx context.Context, key string, value *domain.StatisticsReport, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopStatsCache struct{}

func (NoopStatsCache) Get(_ context.Context, _ string) (*domain.StatisticsReport, bool, error) {
	return nil, false, nil
}

func (NoopStatsCache) Set(_ context.Context, _ string, _ *domain.StatisticsReport, _ time.Duration) error {
	return nil
}

func (NoopStatsCache) Invalidate(_ context.Context) error {
	return nil
}
