package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"vendepos/backend/internal/domain"
	"vendepos/backend/internal/stats"
)

type StatisticsQuery struct {
	Period string
	Start  string
	End    string
}

const (
	reportDateLayout    = "2006-01-02"
	statsComputeTimeout = 30 * time.Second
)

// Statistics reports metrics for the requested period. An unset custom range
// yields an empty report rather than an error.
func (s *Service) Statistics(ctx context.Context, query StatisticsQuery) (domain.StatisticsReport, error) {
	if _, err := s.authorize(ctx, domain.CapViewStatistics); err != nil {
		return domain.StatisticsReport{}, err
	}

	rng, ok, err := stats.ResolveRange(query.Period, s.now(), s.loc, query.Start, query.End)
	if err != nil {
		return domain.StatisticsReport{}, invalid("%v", err)
	}
	if !ok {
		return domain.StatisticsReport{Period: rng.Period, Empty: true}, nil
	}

	gen := s.statsGen.Load()
	key := statsKey(rng, gen)
	if cached, hit, err := s.statsCache.Get(ctx, key); err != nil {
		s.logger.Warn("statistics cache read failed", zap.String("key", key), zap.Error(err))
	} else if hit {
		return *cached, nil
	}

	// The shared computation outlives any single caller; a caller that goes
	// away only stops waiting for it.
	ch := s.flight.DoChan(key, func() (any, error) {
		computeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), statsComputeTimeout)
		defer cancel()
		return s.computeReport(computeCtx, rng, gen)
	})

	var res singleflight.Result
	select {
	case res = <-ch:
	case <-ctx.Done():
		return domain.StatisticsReport{}, ctx.Err()
	}
	if res.Err != nil {
		return domain.StatisticsReport{}, res.Err
	}
	report, ok := res.Val.(domain.StatisticsReport)
	if !ok {
		return domain.StatisticsReport{}, errors.New("unexpected statistics result")
	}
	if res.Shared {
		s.logger.Debug("statistics computation shared", zap.String("key", key))
	}
	return report, nil
}

func statsKey(rng stats.Range, gen uint64) string {
	return fmt.Sprintf("%s:g%d", rng.Key(), gen)
}

// computeReport builds the report and caches it under generation gen. The
// write is skipped when an invalidation happened meanwhile, since the sales
// read may predate it.
func (s *Service) computeReport(ctx context.Context, rng stats.Range, gen uint64) (domain.StatisticsReport, error) {
	sales, err := s.repo.QuerySales(ctx, rng.Start.UTC(), rng.End.UTC())
	if err != nil {
		return domain.StatisticsReport{}, storeErr("query sales", err)
	}
	products, err := s.repo.ListProducts(ctx, domain.ProductFilter{})
	if err != nil {
		return domain.StatisticsReport{}, storeErr("list products", err)
	}

	metrics := stats.Compute(rng, sales, products, stats.Options{LowStockThreshold: s.lowStock})
	report := domain.StatisticsReport{
		Period:  rng.Period,
		Start:   rng.Start.Format(reportDateLayout),
		End:     rng.End.AddDate(0, 0, -1).Format(reportDateLayout),
		Metrics: &metrics,
	}

	if s.statsGen.Load() != gen {
		return report, nil
	}
	key := statsKey(rng, gen)
	if err := s.statsCache.Set(ctx, key, &report, s.statsTTL); err != nil {
		s.logger.Warn("statistics cache write failed", zap.String("key", key), zap.Error(err))
	}
	return report, nil
}
