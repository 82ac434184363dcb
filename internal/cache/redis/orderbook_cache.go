package redis

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dexlens/dexlens/internal/domain"
)

//go:embed scripts/orderbook_update.lua
var orderbookUpdateSrc string

// OrderbookCache implements domain.OrderbookCache using Redis sorted sets and
// hashes for each market's orderbook.
//
// Key schema, all under "dexlens:book:{market}:":
//
//	bids      sorted set of bid prices (score = price)
//	asks      sorted set of ask prices (score = price)
//	bid:size  hash mapping price -> size for bids
//	ask:size  hash mapping price -> size for asks
//	bbo       hash with fields "bid" and "ask" (best prices)
//	meta      hash with "ts" field (snapshot timestamp, Unix nanoseconds)
type OrderbookCache struct {
	rdb    *redis.Client
	update *redis.Script
}

// NewOrderbookCache creates an OrderbookCache backed by the given Client.
func NewOrderbookCache(c *Client) *OrderbookCache {
	return &OrderbookCache{
		rdb:    c.Underlying(),
		update: redis.NewScript(orderbookUpdateSrc),
	}
}

func bookKey(market, suffix string) string {
	return "dexlens:book:" + market + ":" + suffix
}

func fmtFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// SetSnapshot atomically replaces the entire orderbook snapshot for a market.
// It clears existing data and repopulates all sorted sets, size hashes, the
// BBO hash, and the metadata hash.
func (oc *OrderbookCache) SetSnapshot(ctx context.Context, market string, snap domain.OrderbookSnapshot) error {
	bidsKey := bookKey(market, "bids")
	asksKey := bookKey(market, "asks")
	bidSizeKey := bookKey(market, "bid:size")
	askSizeKey := bookKey(market, "ask:size")
	bboKey := bookKey(market, "bbo")
	metaKey := bookKey(market, "meta")

	pipe := oc.rdb.TxPipeline()
	pipe.Del(ctx, bidsKey, asksKey, bidSizeKey, askSizeKey, bboKey, metaKey)

	queueLevels(ctx, pipe, bidsKey, bidSizeKey, snap.Bids)
	queueLevels(ctx, pipe, asksKey, askSizeKey, snap.Asks)

	if snap.BestBid > 0 {
		pipe.HSet(ctx, bboKey, "bid", fmtFloat(snap.BestBid))
	}
	if snap.BestAsk > 0 {
		pipe.HSet(ctx, bboKey, "ask", fmtFloat(snap.BestAsk))
	}
	pipe.HSet(ctx, metaKey, "ts", strconv.FormatInt(snap.Timestamp.UnixNano(), 10))

	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set orderbook snapshot %s: %w", market, err)
	}
	return nil
}

// queueLevels appends the ZADD/HSET commands for one side of the book.
func queueLevels(ctx context.Context, pipe redis.Pipeliner, zKey, sizeKey string, levels []domain.PriceLevel) {
	for _, lvl := range levels {
		price := fmtFloat(lvl.Price)
		pipe.ZAdd(ctx, zKey, redis.Z{Score: lvl.Price, Member: price})
		pipe.HSet(ctx, sizeKey, price, fmtFloat(lvl.Size))
	}
}

// GetSnapshot reconstructs a full OrderbookSnapshot from Redis. Bids come
// back sorted descending and asks ascending, matching ladder order. It
// returns domain.ErrNotFound if no snapshot data exists for the market.
func (oc *OrderbookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	pipe := oc.rdb.Pipeline()
	bidsCmd := pipe.ZRevRangeWithScores(ctx, bookKey(market, "bids"), 0, -1)
	asksCmd := pipe.ZRangeWithScores(ctx, bookKey(market, "asks"), 0, -1)
	bidSizeCmd := pipe.HGetAll(ctx, bookKey(market, "bid:size"))
	askSizeCmd := pipe.HGetAll(ctx, bookKey(market, "ask:size"))
	bboCmd := pipe.HGetAll(ctx, bookKey(market, "bbo"))
	metaCmd := pipe.HGetAll(ctx, bookKey(market, "meta"))

	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return domain.OrderbookSnapshot{}, fmt.Errorf("redis: get orderbook snapshot %s: %w", market, err)
	}

	metaVals, _ := metaCmd.Result()
	if len(metaVals) == 0 {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}

	snap := domain.OrderbookSnapshot{Market: market}
	if raw, ok := metaVals["ts"]; ok {
		if nanos, err := strconv.ParseInt(raw, 10, 64); err == nil {
			snap.Timestamp = time.Unix(0, nanos)
		}
	}

	bidSizes, _ := bidSizeCmd.Result()
	bidsZ, _ := bidsCmd.Result()
	snap.Bids = decodeLevels(bidsZ, bidSizes)

	askSizes, _ := askSizeCmd.Result()
	asksZ, _ := asksCmd.Result()
	snap.Asks = decodeLevels(asksZ, askSizes)

	bboVals, _ := bboCmd.Result()
	if raw, ok := bboVals["bid"]; ok {
		snap.BestBid, _ = strconv.ParseFloat(raw, 64)
	}
	if raw, ok := bboVals["ask"]; ok {
		snap.BestAsk, _ = strconv.ParseFloat(raw, 64)
	}
	if snap.BestBid > 0 && snap.BestAsk > 0 {
		snap.MidPrice = (snap.BestBid + snap.BestAsk) / 2
	}

	return snap, nil
}

// decodeLevels pairs sorted-set prices with their sizes from the side's size
// hash. A price missing from the hash decodes with size zero.
func decodeLevels(entries []redis.Z, sizes map[string]string) []domain.PriceLevel {
	levels := make([]domain.PriceLevel, 0, len(entries))
	for _, z := range entries {
		price, ok := z.Member.(string)
		if !ok {
			continue
		}
		var size float64
		if raw, exists := sizes[price]; exists {
			size, _ = strconv.ParseFloat(raw, 64)
		}
		levels = append(levels, domain.PriceLevel{Price: z.Score, Size: size})
	}
	return levels
}

// UpdateLevel applies an incremental orderbook level update using an atomic
// Lua script. If size > 0 the level is added or updated; if size == 0 the
// level is removed. The script recomputes the BBO after the update.
func (oc *OrderbookCache) UpdateLevel(ctx context.Context, market string, side domain.Side, price, size float64) error {
	var zKey, sizeKey, sideArg string
	switch side {
	case domain.SideBuy:
		zKey, sizeKey, sideArg = bookKey(market, "bids"), bookKey(market, "bid:size"), "bids"
	case domain.SideSell:
		zKey, sizeKey, sideArg = bookKey(market, "asks"), bookKey(market, "ask:size"), "asks"
	default:
		return fmt.Errorf("redis: update level: %w: %q", domain.ErrInvalidSide, side)
	}

	keys := []string{zKey, sizeKey, bookKey(market, "bbo")}
	err := oc.update.Run(ctx, oc.rdb, keys, fmtFloat(price), fmtFloat(size), sideArg).Err()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("redis: update level %s %s@%s: %w", market, sideArg, fmtFloat(price), err)
	}
	return nil
}

// GetBBO retrieves the current best bid and best ask from the BBO hash.
// It returns domain.ErrNotFound if no BBO data exists.
func (oc *OrderbookCache) GetBBO(ctx context.Context, market string) (bestBid, bestAsk float64, err error) {
	vals, err := oc.rdb.HGetAll(ctx, bookKey(market, "bbo")).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("redis: get bbo %s: %w", market, err)
	}
	if len(vals) == 0 {
		return 0, 0, domain.ErrNotFound
	}

	if raw, ok := vals["bid"]; ok {
		bestBid, _ = strconv.ParseFloat(raw, 64)
	}
	if raw, ok := vals["ask"]; ok {
		bestAsk, _ = strconv.ParseFloat(raw, 64)
	}
	return bestBid, bestAsk, nil
}

// Compile-time interface check.
var _ domain.OrderbookCache = (*OrderbookCache)(nil)
