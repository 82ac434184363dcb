package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/stats"
)

// StatsService serves bucketed historical series for the charting endpoints.
// Raw hourly records come from the stat store; cumulative metrics are
// converted to per-hour deltas before bucketing.
type StatsService struct {
	store  domain.StatStore
	logger *slog.Logger
	now    func() time.Time
}

// NewStatsService creates a StatsService.
func NewStatsService(store domain.StatStore, logger *slog.Logger) *StatsService {
	return &StatsService{
		store:  store,
		logger: logger,
		now:    time.Now,
	}
}

// GetSeries returns the bucketed series for one metric over the trailing
// `days` days. The bucket width follows the zoom level: hourly up to one day,
// six-hourly up to a week, daily beyond that.
func (s *StatsService) GetSeries(ctx context.Context, market, metric string, days int) ([]domain.StatRecord, error) {
	if !domain.KnownMetric(metric) {
		return nil, fmt.Errorf("stats_service: metric %q: %w", metric, domain.ErrNotFound)
	}
	if days <= 0 {
		return nil, fmt.Errorf("stats_service: non-positive day window %d", days)
	}

	until := s.now().UTC()
	since := until.Add(-time.Duration(days) * 24 * time.Hour)

	// For cumulative metrics the window is widened by one sample so the first
	// in-window delta is anchored on the preceding running total instead of
	// passing the total through as a bar.
	querySince := since
	if domain.CumulativeMetric(metric) {
		querySince = since.Add(-time.Hour)
	}

	records, err := s.store.List(ctx, market, metric, querySince, until)
	if err != nil {
		return nil, fmt.Errorf("stats_service: list %s/%s: %w", market, metric, err)
	}
	if len(records) == 0 {
		return nil, nil
	}

	if domain.CumulativeMetric(metric) {
		records = stats.CumulativeToDelta(records)
		// Drop the anchor sample if it landed in the widened window.
		for len(records) > 0 && records[0].Timestamp.Before(since) {
			records = records[1:]
		}
	}

	return stats.BucketSum(records, stats.IntervalHoursForDays(days)), nil
}

// LatestValue returns the most recent stored sample for a metric. For
// cumulative metrics this is the running total to date.
func (s *StatsService) LatestValue(ctx context.Context, market, metric string) (domain.StatRecord, error) {
	if !domain.KnownMetric(metric) {
		return domain.StatRecord{}, fmt.Errorf("stats_service: metric %q: %w", metric, domain.ErrNotFound)
	}

	ts, err := s.store.GetLastTimestamp(ctx, market, metric)
	if err != nil {
		return domain.StatRecord{}, fmt.Errorf("stats_service: last timestamp %s/%s: %w", market, metric, err)
	}

	records, err := s.store.List(ctx, market, metric, ts, ts.Add(time.Millisecond))
	if err != nil {
		return domain.StatRecord{}, fmt.Errorf("stats_service: list %s/%s: %w", market, metric, err)
	}
	if len(records) == 0 {
		return domain.StatRecord{}, fmt.Errorf("stats_service: %s/%s: %w", market, metric, domain.ErrNotFound)
	}
	return records[len(records)-1], nil
}
