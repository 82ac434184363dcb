package app

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/feed"
	"github.com/dexlens/dexlens/internal/notify"
	"github.com/dexlens/dexlens/internal/pipeline"
	"github.com/dexlens/dexlens/internal/server"
	"github.com/dexlens/dexlens/internal/server/handler"
	"github.com/dexlens/dexlens/internal/server/ws"
	"github.com/dexlens/dexlens/internal/service"
)

// tradeCollectInterval is how often the trade collector polls the durable
// trade stream.
const tradeCollectInterval = 2 * time.Second

// shutdownTimeout bounds graceful HTTP server shutdown.
const shutdownTimeout = 10 * time.Second

// ServerMode runs the read-side API: HTTP handlers backed by the caches and
// stores, plus the WebSocket hub bridging the signal bus to browser clients.
// It does not ingest data; a collect-mode process feeds the caches.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger

	priceSvc := service.NewPriceService(deps.PriceCache, deps.BookCache, deps.TradeCache, deps.SignalBus, logger)
	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketAPI, logger)
	estimateSvc := service.NewEstimateService(deps.BookCache, deps.TradeCache, logger)
	statsSvc := service.NewStatsService(deps.StatStore, logger)

	health := map[string]handler.Pinger{
		"postgres": deps.PgPing,
		"redis":    deps.RedisPing,
	}
	if deps.S3Ping != nil {
		health["s3"] = deps.S3Ping
	}

	handlers := server.Handlers{
		Health:    handler.NewHealthHandler(health, logger),
		Markets:   handler.NewMarketHandler(marketSvc, priceSvc, logger),
		Estimates: handler.NewEstimateHandler(estimateSvc, logger),
		Stats:     handler.NewStatsHandler(statsSvc, logger),
	}

	hub := ws.NewHub(deps.SignalBus, a.cfg.Mode, logger)

	srv := server.NewServer(server.Config{
		Port:        a.cfg.Server.Port,
		CORSOrigins: a.cfg.Server.CORSOrigins,
		APIKey:      a.cfg.Server.APIKey,
		RateLimit:   a.cfg.Server.RateLimitRPM,
		RateWindow:  time.Minute,
	}, handlers, hub, deps.RateLimiter, logger)

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := hub.Run(ctx)
		if ctx.Err() != nil {
			return nil
		}
		return fmt.Errorf("ws hub: %w", err)
	})

	g.Go(func() error {
		return srv.Start()
	})

	g.Go(func() error {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

// CollectMode runs the write side: the live WebSocket feed into the caches
// and signal bus, plus the background pipelines (market sync, stats scraping,
// trade collection, archival).
func (a *App) CollectMode(ctx context.Context, deps *Dependencies) error {
	logger := a.logger

	priceSvc := service.NewPriceService(deps.PriceCache, deps.BookCache, deps.TradeCache, deps.SignalBus, logger)
	marketSvc := service.NewMarketService(deps.MarketStore, deps.MarketAPI, logger)

	// Sync markets once before subscribing so the watch list is current.
	if _, err := marketSvc.Sync(ctx); err != nil {
		logger.WarnContext(ctx, "initial market sync failed, using stored markets",
			slog.String("error", err.Error()),
		)
	}

	names, err := marketSvc.ActiveNames(ctx)
	if err != nil {
		return fmt.Errorf("collect mode: list markets: %w", err)
	}
	if max := a.cfg.Gateway.MaxMarkets; max > 0 && len(names) > max {
		names = names[:max]
	}

	wsFeed := feed.NewMarketWSFeed(
		a.cfg.Gateway.WsHost,
		names,
		func(ctx context.Context, snap domain.OrderbookSnapshot) {
			if err := priceSvc.HandleBookUpdate(ctx, snap); err != nil {
				logger.ErrorContext(ctx, "book update failed", slog.String("error", err.Error()))
			}
		},
		func(ctx context.Context, change domain.PriceChange) {
			if err := priceSvc.HandleLevelUpdate(ctx, change); err != nil {
				logger.ErrorContext(ctx, "level update failed", slog.String("error", err.Error()))
			}
		},
		func(ctx context.Context, trade domain.LastTrade) {
			if err := priceSvc.HandleTrade(ctx, trade); err != nil {
				logger.ErrorContext(ctx, "trade ingest failed", slog.String("error", err.Error()))
			}
		},
		logger,
	)
	defer wsFeed.Close()

	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := wsFeed.Run(ctx)
		if ctx.Err() != nil || err == nil {
			return nil
		}
		_ = deps.Notifier.Alert(ctx, notify.EventFeedDown, "market feed stopped", err.Error())
		return fmt.Errorf("market ws feed: %w", err)
	})

	tradeCollector := pipeline.NewTradeCollector(deps.SignalBus, deps.TradeStore, logger)

	if a.cfg.Pipeline.Enabled {
		orch := pipeline.NewOrchestrator(
			pipeline.NewMarketScraper(marketSvc, deps.Notifier, logger),
			pipeline.NewStatsScraper(deps.StatsAPI, marketSvc, deps.StatStore, nil, deps.Notifier, logger),
			tradeCollector,
			pipeline.NewArchiver(deps.Archiver, a.cfg.Pipeline.ArchiveRetentionDays, deps.Notifier, logger),
			a.cfg.Pipeline.MarketSyncInterval.Duration,
			a.cfg.Pipeline.StatsScrapeInterval.Duration,
			tradeCollectInterval,
			a.cfg.Pipeline.ArchiveCron,
			logger,
		)
		g.Go(func() error {
			err := orch.Run(ctx)
			if ctx.Err() != nil {
				return nil
			}
			return err
		})
	} else {
		// Without the pipelines, still drain fills into the database.
		g.Go(func() error {
			err := tradeCollector.RunLoop(ctx, tradeCollectInterval)
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("trade collector: %w", err)
		})
	}

	return g.Wait()
}

// FullMode runs the server and collector in a single process.
func (a *App) FullMode(ctx context.Context, deps *Dependencies) error {
	g, ctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return a.ServerMode(ctx, deps)
	})
	g.Go(func() error {
		return a.CollectMode(ctx, deps)
	})

	return g.Wait()
}
