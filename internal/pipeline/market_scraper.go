// Package pipeline contains the background collection jobs: market metadata
// sync, hourly stats backfill, trade stream draining, and cold-storage
// archival, coordinated by the Orchestrator.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/notify"
)

// failureEscalation is how many consecutive failed runs a scrape loop
// tolerates at WARN before logging at ERROR and raising an alert.
const failureEscalation = 3

// Alerter pushes operational alerts to external channels when a pipeline
// degrades beyond what a log line conveys.
type Alerter interface {
	Alert(ctx context.Context, event, title, body string) error
}

// MarketSyncer performs one full sync of market metadata from the exchange
// into the store and returns the number of markets written.
type MarketSyncer interface {
	Sync(ctx context.Context) (int, error)
}

// MarketScraper keeps the markets table in sync with the exchange listing on
// a repeating interval.
type MarketScraper struct {
	syncer   MarketSyncer
	alerts   Alerter
	logger   *slog.Logger
	failures int
}

// NewMarketScraper creates a new MarketScraper. alerts may be nil.
func NewMarketScraper(syncer MarketSyncer, alerts Alerter, logger *slog.Logger) *MarketScraper {
	return &MarketScraper{
		syncer: syncer,
		alerts: alerts,
		logger: logger,
	}
}

// Run executes a single sync run.
func (s *MarketScraper) Run(ctx context.Context) error {
	count, err := s.syncer.Sync(ctx)
	if err != nil {
		return err
	}
	s.logger.Info("market scrape complete", slog.Int("markets", count))
	return nil
}

// RunLoop runs the market scraper on a repeating interval until the context
// is cancelled. The first run fires immediately. A transient failure logs at
// WARN; repeated consecutive failures escalate to ERROR.
func (s *MarketScraper) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		s.runAndLog(ctx)

		select {
		case <-ctx.Done():
			s.logger.Info("market scraper loop stopped")
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (s *MarketScraper) runAndLog(ctx context.Context) {
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
	s.logger.Log(ctx, level, "market scrape failed",
		slog.String("error", err.Error()),
		slog.Int("consecutive_failures", s.failures),
	)

	if s.failures == failureEscalation && s.alerts != nil {
		_ = s.alerts.Alert(ctx, notify.EventScrapeFailed, "market sync failing",
			fmt.Sprintf("%d consecutive market sync failures, last error: %v", s.failures, err))
	}
}
