package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexlens/dexlens/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, market, price, size, side, order_id, ts`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.Market, &t.Price, &t.Size, &t.Side, &t.OrderID, &t.Timestamp,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// InsertBatch writes fills inside a single transaction.
func (s *TradeStore) InsertBatch(ctx context.Context, trades []domain.Trade) error {
	if len(trades) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin trade batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, t := range trades {
		if _, err := tx.Exec(ctx,
			`INSERT INTO trades (market, price, size, side, order_id, ts)
			 VALUES ($1, $2, $3, $4, $5, $6)`,
			t.Market, t.Price, t.Size, t.Side, t.OrderID, t.Timestamp.UTC(),
		); err != nil {
			return fmt.Errorf("postgres: insert trade %s@%s: %w",
				t.Market, t.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit trade batch: %w", err)
	}
	return nil
}

// ListByMarket returns fills for a market, newest first, with pagination.
func (s *TradeStore) ListByMarket(ctx context.Context, market string, opts domain.ListOpts) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+`
		 FROM trades WHERE market = $1
		 ORDER BY ts DESC LIMIT $2 OFFSET $3`,
		market, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades %s: %w", market, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// GetLastTimestamp returns the newest fill timestamp for a market, or
// domain.ErrNotFound when no fills are stored.
func (s *TradeStore) GetLastTimestamp(ctx context.Context, market string) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT ts FROM trades WHERE market = $1 ORDER BY ts DESC LIMIT 1`,
		market).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: last trade timestamp %s: %w", market, err)
	}
	return ts, nil
}

// ListBefore returns up to limit fills older than the cutoff, ordered
// ascending, for archival.
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.Trade, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+tradeSelectCols+`
		 FROM trades WHERE ts < $1 ORDER BY ts LIMIT $2`,
		before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades: %w", err)
	}
	return trades, nil
}

// DeleteBefore removes fills older than the cutoff and returns the number of
// rows deleted.
func (s *TradeStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM trades WHERE ts < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete trades before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
