package domain

import (
	"context"
	"time"
)

// PriceCache provides fast access to the latest mid prices.
type PriceCache interface {
	SetPrice(ctx context.Context, market string, price float64, ts time.Time) error
	GetPrice(ctx context.Context, market string) (float64, time.Time, error)
	GetPrices(ctx context.Context, markets []string) (map[string]float64, error)
}

// OrderbookCache stores live orderbook state.
type OrderbookCache interface {
	SetSnapshot(ctx context.Context, market string, snap OrderbookSnapshot) error
	GetSnapshot(ctx context.Context, market string) (OrderbookSnapshot, error)
	UpdateLevel(ctx context.Context, market string, side Side, price, size float64) error
	GetBBO(ctx context.Context, market string) (bestBid, bestAsk float64, err error)
}

// TradeTapeCache stores the most recent fills per market.
type TradeTapeCache interface {
	SetLastTrade(ctx context.Context, trade LastTrade) error
	GetLastTrade(ctx context.Context, market string) (LastTrade, error)
}

// RateLimiter provides distributed rate limiting.
type RateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

// StreamMessage is a single entry from a durable stream.
type StreamMessage struct {
	ID      string
	Payload []byte
}

// SignalBus provides pub/sub and durable streams for intra-service events.
type SignalBus interface {
	Publish(ctx context.Context, channel string, payload []byte) error
	Subscribe(ctx context.Context, channel string) (<-chan []byte, error)
	StreamAppend(ctx context.Context, stream string, payload []byte) error
	StreamRead(ctx context.Context, stream string, lastID string, count int) ([]StreamMessage, error)
}
