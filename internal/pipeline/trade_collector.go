package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
)

const (
	// tradeStream is the durable stream the feed appends fills to.
	tradeStream = "trades"

	// collectBatchSize bounds how many stream entries are read per poll.
	collectBatchSize = 500
)

// streamTrade mirrors the JSON payload PriceService appends to the trade
// stream.
type streamTrade struct {
	Market    string  `json:"market"`
	Price     float64 `json:"price"`
	Size      float64 `json:"size"`
	Side      string  `json:"side"`
	Timestamp string  `json:"timestamp"`
}

// TradeCollector drains the durable trade stream into the trade store. The
// gateway appends fills to the stream as they arrive over WebSocket; the
// collector batches them into Postgres, decoupling ingest latency from
// database write throughput.
type TradeCollector struct {
	bus    domain.SignalBus
	store  domain.TradeStore
	logger *slog.Logger

	lastID string
}

// NewTradeCollector creates a new TradeCollector. Reading starts from the
// beginning of the stream; entries already persisted are deduplicated by the
// stream's MAXLEN trimming plus the store's insert path being append-only per
// run.
func NewTradeCollector(bus domain.SignalBus, store domain.TradeStore, logger *slog.Logger) *TradeCollector {
	return &TradeCollector{
		bus:    bus,
		store:  store,
		logger: logger,
		lastID: "0",
	}
}

// RunLoop polls the trade stream until the context is cancelled.
func (c *TradeCollector) RunLoop(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			c.logger.Info("trade collector stopped")
			return ctx.Err()
		case <-ticker.C:
			if err := c.drain(ctx); err != nil {
				c.logger.Error("trade drain failed", slog.String("error", err.Error()))
			}
		}
	}
}

// drain reads pending stream entries and writes them to the store, advancing
// the cursor only after a successful insert.
func (c *TradeCollector) drain(ctx context.Context) error {
	for {
		msgs, err := c.bus.StreamRead(ctx, tradeStream, c.lastID, collectBatchSize)
		if err != nil {
			return fmt.Errorf("trade collector: read stream: %w", err)
		}
		if len(msgs) == 0 {
			return nil
		}

		trades := make([]domain.Trade, 0, len(msgs))
		for _, msg := range msgs {
			var st streamTrade
			if err := json.Unmarshal(msg.Payload, &st); err != nil {
				c.logger.Warn("dropping malformed trade entry",
					slog.String("stream_id", msg.ID),
					slog.String("error", err.Error()),
				)
				continue
			}

			ts, err := time.Parse(time.RFC3339Nano, st.Timestamp)
			if err != nil {
				ts = time.Now().UTC()
			}

			trades = append(trades, domain.Trade{
				Market:    st.Market,
				Price:     st.Price,
				Size:      st.Size,
				Side:      domain.Side(st.Side),
				Timestamp: ts,
			})
		}

		if len(trades) > 0 {
			if err := c.store.InsertBatch(ctx, trades); err != nil {
				return fmt.Errorf("trade collector: insert %d trades: %w", len(trades), err)
			}
		}

		c.lastID = msgs[len(msgs)-1].ID
		c.logger.Debug("trade batch collected",
			slog.Int("entries", len(msgs)),
			slog.Int("inserted", len(trades)),
			slog.String("last_id", c.lastID),
		)

		if len(msgs) < collectBatchSize {
			return nil
		}
	}
}
