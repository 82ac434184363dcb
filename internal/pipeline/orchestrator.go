package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"
)

// Orchestrator manages all collection goroutines: market metadata sync,
// stats scraping, trade stream collection, and cold-storage archival.
type Orchestrator struct {
	marketScraper   *MarketScraper
	statsScraper    *StatsScraper
	tradeCollector  *TradeCollector
	archiver        *Archiver
	marketInterval  time.Duration
	statsInterval   time.Duration
	collectInterval time.Duration
	archiveCron     string
	logger          *slog.Logger
}

// NewOrchestrator creates a new Orchestrator that coordinates all collection
// sub-systems.
func NewOrchestrator(
	marketScraper *MarketScraper,
	statsScraper *StatsScraper,
	tradeCollector *TradeCollector,
	archiver *Archiver,
	marketInterval time.Duration,
	statsInterval time.Duration,
	collectInterval time.Duration,
	archiveCron string,
	logger *slog.Logger,
) *Orchestrator {
	return &Orchestrator{
		marketScraper:   marketScraper,
		statsScraper:    statsScraper,
		tradeCollector:  tradeCollector,
		archiver:        archiver,
		marketInterval:  marketInterval,
		statsInterval:   statsInterval,
		collectInterval: collectInterval,
		archiveCron:     archiveCron,
		logger:          logger,
	}
}

// Run starts all sub-pipelines as concurrent goroutines using an errgroup.
// Each goroutine respects ctx cancellation. If any goroutine returns a
// non-context error, the errgroup cancels the shared context and Run returns
// that error.
func (o *Orchestrator) Run(ctx context.Context) error {
	o.logger.Info("collection orchestrator starting",
		slog.Duration("market_interval", o.marketInterval),
		slog.Duration("stats_interval", o.statsInterval),
		slog.Duration("collect_interval", o.collectInterval),
		slog.String("archive_cron", o.archiveCron),
	)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		o.logger.Info("starting market scraper loop")
		err := o.marketScraper.RunLoop(ctx, o.marketInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("market scraper: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting stats scraper loop")
		err := o.statsScraper.RunLoop(ctx, o.statsInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("stats scraper: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting trade collector loop")
		err := o.tradeCollector.RunLoop(ctx, o.collectInterval)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("trade collector: %w", err)
	})

	g.Go(func() error {
		o.logger.Info("starting archiver cron")
		err := o.archiver.RunCron(ctx, o.archiveCron)
		if ctx.Err() != nil {
			return nil // clean shutdown
		}
		return fmt.Errorf("archiver: %w", err)
	})

	err := g.Wait()
	if err != nil {
		o.logger.Error("collection orchestrator stopped with error", slog.String("error", err.Error()))
		return err
	}

	o.logger.Info("collection orchestrator stopped cleanly")
	return nil
}
