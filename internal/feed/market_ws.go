// Package feed runs the long-lived WebSocket subscription against the
// exchange and fans messages out to service handlers.
package feed

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/platform/dexapi"
)

// BookHandler is called for each full orderbook snapshot.
type BookHandler func(ctx context.Context, snap domain.OrderbookSnapshot)

// LevelHandler is called for each incremental price level update.
type LevelHandler func(ctx context.Context, change domain.PriceChange)

// TradeHandler is called for each fill.
type TradeHandler func(ctx context.Context, trade domain.LastTrade)

// MarketWSFeed connects to the exchange WebSocket, subscribes to the book,
// level, and trade channels for the given markets, and invokes the provided
// handlers on each message. It reconnects on disconnect.
type MarketWSFeed struct {
	wsURL     string
	markets   []string
	onBook    BookHandler
	onLevel   LevelHandler
	onTrade   TradeHandler
	logger    *slog.Logger
	closeOnce sync.Once
	done      chan struct{}
}

// NewMarketWSFeed creates a feed that will subscribe to the given markets.
// Any of the handlers may be nil.
func NewMarketWSFeed(wsURL string, markets []string, onBook BookHandler, onLevel LevelHandler, onTrade TradeHandler, logger *slog.Logger) *MarketWSFeed {
	return &MarketWSFeed{
		wsURL:   wsURL,
		markets: markets,
		onBook:  onBook,
		onLevel: onLevel,
		onTrade: onTrade,
		logger:  logger.With(slog.String("component", "market_ws_feed")),
		done:    make(chan struct{}),
	}
}

// Run connects, subscribes to all three channels for the configured markets,
// and runs until ctx is cancelled. Reconnects with backoff on disconnect.
func (f *MarketWSFeed) Run(ctx context.Context) error {
	if len(f.markets) == 0 {
		f.logger.Info("no markets to subscribe, exiting")
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-f.done:
			return nil
		default:
		}
		err := f.runConnection(ctx)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
		f.logger.Warn("market ws disconnected, reconnecting", slog.String("error", err.Error()))
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(2 * time.Second):
		}
	}
}

func (f *MarketWSFeed) runConnection(ctx context.Context) error {
	client := dexapi.NewWSClient(f.wsURL)
	defer client.Close()

	client.OnBook(func(snap domain.OrderbookSnapshot) {
		if f.onBook != nil {
			f.onBook(context.Background(), snap)
		}
	})
	client.OnLevel(func(change domain.PriceChange) {
		if f.onLevel != nil {
			f.onLevel(context.Background(), change)
		}
	})
	client.OnTrade(func(trade domain.LastTrade) {
		if f.onTrade != nil {
			f.onTrade(context.Background(), trade)
		}
	})

	connCtx, cancel := context.WithTimeout(ctx, 15*time.Second)
	err := client.Connect(connCtx)
	cancel()
	if err != nil {
		return err
	}

	channels := []string{"book", "level", "trade"}
	if err := client.Subscribe(ctx, channels, f.markets); err != nil {
		return err
	}
	f.logger.Info("market ws subscribed", slog.Int("markets", len(f.markets)))

	<-ctx.Done()
	return ctx.Err()
}

// Close stops the feed.
func (f *MarketWSFeed) Close() {
	f.closeOnce.Do(func() { close(f.done) })
}
