package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/notify"
)

// maxBackfillWindow bounds how far back the first scrape of a fresh
// market/metric pair reaches. The stats API itself rejects windows longer
// than 31 days, so backfill pages month by month.
const (
	maxBackfillWindow = 90 * 24 * time.Hour
	statsPageWindow   = 30 * 24 * time.Hour
)

// StatFetcher retrieves hourly stat samples from the exchange API.
type StatFetcher interface {
	GetStatHistory(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error)
}

// MarketLister provides the set of market names to scrape stats for.
type MarketLister interface {
	ActiveNames(ctx context.Context) ([]string, error)
}

// StatsScraper pulls hourly statistics from the exchange for every active
// market and metric, resuming each series from its last stored timestamp.
type StatsScraper struct {
	fetcher  StatFetcher
	markets  MarketLister
	store    domain.StatStore
	metrics  []string
	alerts   Alerter
	logger   *slog.Logger
	failures int
}

// NewStatsScraper creates a new StatsScraper. metrics defaults to all known
// metrics when empty; alerts may be nil.
func NewStatsScraper(fetcher StatFetcher, markets MarketLister, store domain.StatStore, metrics []string, alerts Alerter, logger *slog.Logger) *StatsScraper {
	if len(metrics) == 0 {
		metrics = []string{
			domain.MetricFees,
			domain.MetricVolume,
			domain.MetricOpenInterest,
			domain.MetricDeposits,
			domain.MetricBorrows,
		}
	}
	return &StatsScraper{
		fetcher: fetcher,
		markets: markets,
		store:   store,
		metrics: metrics,
		alerts:  alerts,
		logger:  logger,
	}
}

// Run executes a single scrape pass over every active market and configured
// metric. A failure on one series is logged and the pass continues; the run
// itself fails only when markets cannot be listed or every series failed.
func (s *StatsScraper) Run(ctx context.Context) error {
	names, err := s.markets.ActiveNames(ctx)
	if err != nil {
		return fmt.Errorf("stats scraper: list markets: %w", err)
	}

	now := time.Now().UTC()
	var total, attempted, failed int

	for _, market := range names {
		for _, metric := range s.metrics {
			if err := ctx.Err(); err != nil {
				return err
			}

			attempted++
			n, err := s.scrapeSeries(ctx, market, metric, now)
			if err != nil {
				failed++
				s.logger.Error("stat series scrape failed",
					slog.String("market", market),
					slog.String("metric", metric),
					slog.String("error", err.Error()),
				)
				continue
			}
			total += n
		}
	}

	if attempted > 0 && failed == attempted {
		return fmt.Errorf("stats scraper: all %d series failed", failed)
	}

	s.logger.Info("stats scrape complete",
		slog.Int("markets", len(names)),
		slog.Int("records", total),
		slog.Int("failed_series", failed),
	)
	return nil
}

// scrapeSeries backfills one market/metric series up to now, paging by
// month-sized windows, and returns the number of records written.
func (s *StatsScraper) scrapeSeries(ctx context.Context, market, metric string, now time.Time) (int, error) {
	since, err := s.store.GetLastTimestamp(ctx, market, metric)
	switch {
	case err == nil:
		// Resume just after the last stored sample. The API returns
		// inclusive-from, so re-fetching the last hour would duplicate it.
		since = since.Add(time.Hour)
	case errors.Is(err, domain.ErrNotFound):
		since = now.Add(-maxBackfillWindow)
	default:
		return 0, fmt.Errorf("last timestamp: %w", err)
	}

	var total int
	for since.Before(now) {
		until := since.Add(statsPageWindow)
		if until.After(now) {
			until = now
		}

		records, err := s.fetcher.GetStatHistory(ctx, market, metric, since, until)
		if err != nil {
			return total, fmt.Errorf("fetch window %s..%s: %w",
				since.Format(time.RFC3339), until.Format(time.RFC3339), err)
		}

		if len(records) > 0 {
			if err := s.store.UpsertBatch(ctx, records); err != nil {
				return total, fmt.Errorf("upsert %d records: %w", len(records), err)
			}
			total += len(records)
		}

		since = until
	}
	return total, nil
}

// RunLoop runs the stats scraper on a repeating interval until the context is
// cancelled. The first run fires immediately. A transient failure logs at
// WARN; repeated consecutive failed passes escalate to ERROR and raise an
// alert.
func (s *StatsScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	s.runAndLog(ctx)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("stats scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
			s.runAndLog(ctx)
		}
	}
}

func (s *StatsScraper) runAndLog(ctx context.Context) {
	err := s.Run(ctx)
	if err == nil {
		s.failures = 0
		return
	}

	s.failures++
	level := slog.LevelWarn
	if s.failures >= failureEscalation {
		level = slog.LevelError
	}
	s.logger.Log(ctx, level, "stats scrape failed",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", s.failures),
	)

	if s.failures == failureEscalation && s.alerts != nil {
		_ = s.alerts.Alert(ctx, notify.EventScrapeFailed, "stats scraping failing",
			fmt.Sprintf("%d consecutive failed stats passes, last error: %v", s.failures, err))
	}
}
