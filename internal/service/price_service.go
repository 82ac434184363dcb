// Package service contains the application services that sit between the
// transport layer and the caches, stores, and exchange clients.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
)

// PriceService handles orderbook and trade updates from the feed by
// coordinating the price cache, orderbook cache, trade tape, and signal bus.
type PriceService struct {
	priceCache domain.PriceCache
	bookCache  domain.OrderbookCache
	tradeCache domain.TradeTapeCache
	bus        domain.SignalBus
	logger     *slog.Logger
}

// NewPriceService creates a PriceService with all required dependencies.
func NewPriceService(
	priceCache domain.PriceCache,
	bookCache domain.OrderbookCache,
	tradeCache domain.TradeTapeCache,
	bus domain.SignalBus,
	logger *slog.Logger,
) *PriceService {
	return &PriceService{
		priceCache: priceCache,
		bookCache:  bookCache,
		tradeCache: tradeCache,
		bus:        bus,
		logger:     logger,
	}
}

// HandleBookUpdate processes a full orderbook snapshot: persists it in the
// orderbook cache, updates the mid price in the price cache, and publishes
// a book update event.
func (s *PriceService) HandleBookUpdate(ctx context.Context, snap domain.OrderbookSnapshot) error {
	if err := s.bookCache.SetSnapshot(ctx, snap.Market, snap); err != nil {
		return fmt.Errorf("price_service: set snapshot for %q: %w", snap.Market, err)
	}

	if err := s.priceCache.SetPrice(ctx, snap.Market, snap.MidPrice, snap.Timestamp); err != nil {
		return fmt.Errorf("price_service: set price for %q: %w", snap.Market, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "book_update",
		"market":    snap.Market,
		"best_bid":  snap.BestBid,
		"best_ask":  snap.BestAsk,
		"mid_price": snap.MidPrice,
		"timestamp": snap.Timestamp.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish book update event failed",
			slog.String("market", snap.Market),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

// HandleLevelUpdate processes an incremental orderbook level update:
// updates the specific level in the orderbook cache, recomputes the BBO,
// updates the mid price, and publishes an event.
func (s *PriceService) HandleLevelUpdate(ctx context.Context, change domain.PriceChange) error {
	if err := s.bookCache.UpdateLevel(ctx, change.Market, change.Side, change.Price, change.Size); err != nil {
		return fmt.Errorf("price_service: update level for %q: %w", change.Market, err)
	}

	bestBid, bestAsk, err := s.bookCache.GetBBO(ctx, change.Market)
	if err != nil {
		return fmt.Errorf("price_service: get BBO for %q: %w", change.Market, err)
	}

	var midPrice float64
	if bestBid > 0 && bestAsk > 0 {
		midPrice = (bestBid + bestAsk) / 2
	}

	if err := s.priceCache.SetPrice(ctx, change.Market, midPrice, change.Timestamp); err != nil {
		return fmt.Errorf("price_service: set price for %q: %w", change.Market, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "level_update",
		"market":    change.Market,
		"side":      change.Side,
		"price":     change.Price,
		"size":      change.Size,
		"best_bid":  bestBid,
		"best_ask":  bestAsk,
		"mid_price": midPrice,
		"timestamp": change.Timestamp.Format(time.RFC3339Nano),
	})
	if pubErr := s.bus.Publish(ctx, "prices", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish level update event failed",
			slog.String("market", change.Market),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

// HandleTrade records a fill on the trade tape, appends it to the durable
// trade stream for the collector, and publishes a trade event.
func (s *PriceService) HandleTrade(ctx context.Context, trade domain.LastTrade) error {
	if err := s.tradeCache.SetLastTrade(ctx, trade); err != nil {
		return fmt.Errorf("price_service: set last trade for %q: %w", trade.Market, err)
	}

	evt, _ := json.Marshal(map[string]any{
		"event":     "trade",
		"market":    trade.Market,
		"price":     trade.Price,
		"size":      trade.Size,
		"side":      trade.Side,
		"timestamp": trade.Timestamp.Format(time.RFC3339Nano),
	})
	if err := s.bus.StreamAppend(ctx, "trades", evt); err != nil {
		return fmt.Errorf("price_service: append trade for %q: %w", trade.Market, err)
	}
	if pubErr := s.bus.Publish(ctx, "trades", evt); pubErr != nil {
		s.logger.WarnContext(ctx, "price_service: publish trade event failed",
			slog.String("market", trade.Market),
			slog.String("error", pubErr.Error()),
		)
	}

	return nil
}

// GetPrice returns the latest cached mid price and its timestamp for one
// market.
func (s *PriceService) GetPrice(ctx context.Context, market string) (float64, time.Time, error) {
	price, ts, err := s.priceCache.GetPrice(ctx, market)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("price_service: get price for %q: %w", market, err)
	}
	return price, ts, nil
}

// GetPrices returns the latest cached mid prices for a set of markets.
// Markets with no cached price are absent from the result.
func (s *PriceService) GetPrices(ctx context.Context, markets []string) (map[string]float64, error) {
	prices, err := s.priceCache.GetPrices(ctx, markets)
	if err != nil {
		return nil, fmt.Errorf("price_service: get prices: %w", err)
	}
	return prices, nil
}
