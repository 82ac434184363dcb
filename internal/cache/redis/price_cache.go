package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dexlens/dexlens/internal/domain"
)

const (
	// priceKeyPrefix namespaces per-market price hashes.
	priceKeyPrefix = "dexlens:px:"

	// priceTTL expires entries for markets that stop trading so the cache
	// never serves an arbitrarily stale mark. Every write refreshes it.
	priceTTL = 24 * time.Hour

	priceField = "px"
	stampField = "at"
)

// PriceCache keeps the most recent trade price per market in Redis.
//
// Each market maps to a hash at "dexlens:px:{market}" holding the price and
// the observation time in Unix milliseconds.
type PriceCache struct {
	rdb *redis.Client
}

// NewPriceCache creates a PriceCache backed by the given Client.
func NewPriceCache(c *Client) *PriceCache {
	return &PriceCache{rdb: c.Underlying()}
}

// SetPrice stores the latest price and timestamp for a market and refreshes
// the entry's expiry.
func (pc *PriceCache) SetPrice(ctx context.Context, market string, price float64, ts time.Time) error {
	key := priceKeyPrefix + market

	pipe := pc.rdb.TxPipeline()
	pipe.HSet(ctx, key,
		priceField, strconv.FormatFloat(price, 'f', -1, 64),
		stampField, strconv.FormatInt(ts.UnixMilli(), 10),
	)
	pipe.Expire(ctx, key, priceTTL)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set price %s: %w", market, err)
	}
	return nil
}

// GetPrice retrieves the latest price and timestamp for a market. It returns
// domain.ErrNotFound when the market has no cached price.
func (pc *PriceCache) GetPrice(ctx context.Context, market string) (float64, time.Time, error) {
	vals, err := pc.rdb.HMGet(ctx, priceKeyPrefix+market, priceField, stampField).Result()
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", market, err)
	}

	price, stamp, err := decodePriceFields(vals)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return 0, time.Time{}, domain.ErrNotFound
		}
		return 0, time.Time{}, fmt.Errorf("redis: get price %s: %w", market, err)
	}
	return price, stamp, nil
}

// GetPrices retrieves the latest prices for multiple markets in one
// round-trip. Markets without a cached price are omitted from the result.
func (pc *PriceCache) GetPrices(ctx context.Context, markets []string) (map[string]float64, error) {
	out := make(map[string]float64, len(markets))
	if len(markets) == 0 {
		return out, nil
	}

	pipe := pc.rdb.Pipeline()
	cmds := make([]*redis.SliceCmd, len(markets))
	for i, m := range markets {
		cmds[i] = pipe.HMGet(ctx, priceKeyPrefix+m, priceField, stampField)
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get prices: %w", err)
	}

	for i, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil {
			continue
		}
		price, _, err := decodePriceFields(vals)
		if err != nil {
			continue
		}
		out[markets[i]] = price
	}
	return out, nil
}

// decodePriceFields turns an HMGet reply of [price, stamp] into typed values.
// A nil price field means the hash does not exist.
func decodePriceFields(vals []any) (float64, time.Time, error) {
	if len(vals) != 2 || vals[0] == nil {
		return 0, time.Time{}, domain.ErrNotFound
	}

	rawPrice, ok := vals[0].(string)
	if !ok {
		return 0, time.Time{}, fmt.Errorf("unexpected price field type %T", vals[0])
	}
	price, err := strconv.ParseFloat(rawPrice, 64)
	if err != nil {
		return 0, time.Time{}, fmt.Errorf("parse price: %w", err)
	}

	var stamp time.Time
	if rawStamp, ok := vals[1].(string); ok {
		ms, err := strconv.ParseInt(rawStamp, 10, 64)
		if err != nil {
			return 0, time.Time{}, fmt.Errorf("parse timestamp: %w", err)
		}
		stamp = time.UnixMilli(ms)
	}

	return price, stamp, nil
}

// Compile-time interface check.
var _ domain.PriceCache = (*PriceCache)(nil)
