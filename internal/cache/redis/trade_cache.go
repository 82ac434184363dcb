package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dexlens/dexlens/internal/domain"
)

// TradeTapeCache implements domain.TradeTapeCache using a Redis hash per
// market at key "dexlens:tape:{market}" holding the most recent fill. The
// mark price derivation only needs the latest print, so no history is kept
// here.
type TradeTapeCache struct {
	rdb *redis.Client
}

// NewTradeTapeCache creates a TradeTapeCache backed by the given Client.
func NewTradeTapeCache(c *Client) *TradeTapeCache {
	return &TradeTapeCache{rdb: c.Underlying()}
}

func lastTradeKey(market string) string {
	return "dexlens:tape:" + market
}

// SetLastTrade stores the most recent fill for a market.
func (tc *TradeTapeCache) SetLastTrade(ctx context.Context, trade domain.LastTrade) error {
	fields := map[string]interface{}{
		"price": strconv.FormatFloat(trade.Price, 'f', -1, 64),
		"size":  strconv.FormatFloat(trade.Size, 'f', -1, 64),
		"side":  string(trade.Side),
		"ts":    strconv.FormatInt(trade.Timestamp.UnixNano(), 10),
	}
	if err := tc.rdb.HSet(ctx, lastTradeKey(trade.Market), fields).Err(); err != nil {
		return fmt.Errorf("redis: set last trade %s: %w", trade.Market, err)
	}
	return nil
}

// GetLastTrade retrieves the most recent fill for a market.
// It returns domain.ErrNotFound when no trade has been recorded.
func (tc *TradeTapeCache) GetLastTrade(ctx context.Context, market string) (domain.LastTrade, error) {
	vals, err := tc.rdb.HGetAll(ctx, lastTradeKey(market)).Result()
	if err != nil {
		return domain.LastTrade{}, fmt.Errorf("redis: get last trade %s: %w", market, err)
	}
	if len(vals) == 0 {
		return domain.LastTrade{}, domain.ErrNotFound
	}

	trade := domain.LastTrade{Market: market}

	priceStr, ok := vals["price"]
	if !ok {
		return domain.LastTrade{}, domain.ErrNotFound
	}
	trade.Price, err = strconv.ParseFloat(priceStr, 64)
	if err != nil {
		return domain.LastTrade{}, fmt.Errorf("redis: parse last trade price %s: %w", market, err)
	}

	if sizeStr, ok := vals["size"]; ok {
		trade.Size, _ = strconv.ParseFloat(sizeStr, 64)
	}
	if sideStr, ok := vals["side"]; ok {
		trade.Side = domain.Side(sideStr)
	}
	if tsStr, ok := vals["ts"]; ok {
		if tsNano, err := strconv.ParseInt(tsStr, 10, 64); err == nil {
			trade.Timestamp = time.Unix(0, tsNano)
		}
	}

	return trade, nil
}

// Compile-time interface check.
var _ domain.TradeTapeCache = (*TradeTapeCache)(nil)
