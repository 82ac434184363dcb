package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/dexlens/dexlens/internal/domain"
)

// MarketStore implements domain.MarketStore using PostgreSQL.
type MarketStore struct {
	pool *pgxpool.Pool
}

// NewMarketStore creates a new MarketStore backed by the given connection
// pool.
func NewMarketStore(pool *pgxpool.Pool) *MarketStore {
	return &MarketStore{pool: pool}
}

const marketSelectCols = `name, base_symbol, quote_symbol, kind, address,
	tick_size, lot_size, taker_fee_bps, active, updated_at`

const marketUpsert = `
	INSERT INTO markets (name, base_symbol, quote_symbol, kind, address,
		tick_size, lot_size, taker_fee_bps, active, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NOW())
	ON CONFLICT (name) DO UPDATE SET
		base_symbol = EXCLUDED.base_symbol,
		quote_symbol = EXCLUDED.quote_symbol,
		kind = EXCLUDED.kind,
		address = EXCLUDED.address,
		tick_size = EXCLUDED.tick_size,
		lot_size = EXCLUDED.lot_size,
		taker_fee_bps = EXCLUDED.taker_fee_bps,
		active = EXCLUDED.active,
		updated_at = NOW()`

func scanMarketRows(rows pgx.Rows) ([]domain.Market, error) {
	var markets []domain.Market
	for rows.Next() {
		var m domain.Market
		if err := rows.Scan(
			&m.Name, &m.BaseSymbol, &m.QuoteSymbol, &m.Kind, &m.Address,
			&m.TickSize, &m.LotSize, &m.TakerFeeBps, &m.Active, &m.UpdatedAt,
		); err != nil {
			return nil, err
		}
		markets = append(markets, m)
	}
	return markets, rows.Err()
}

// Upsert inserts or updates a single market.
func (s *MarketStore) Upsert(ctx context.Context, market domain.Market) error {
	_, err := s.pool.Exec(ctx, marketUpsert,
		market.Name, market.BaseSymbol, market.QuoteSymbol, market.Kind,
		market.Address, market.TickSize, market.LotSize, market.TakerFeeBps,
		market.Active,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert market %s: %w", market.Name, err)
	}
	return nil
}

// UpsertBatch inserts or updates markets inside a single transaction.
func (s *MarketStore) UpsertBatch(ctx context.Context, markets []domain.Market) error {
	if len(markets) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin market batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, m := range markets {
		if _, err := tx.Exec(ctx, marketUpsert,
			m.Name, m.BaseSymbol, m.QuoteSymbol, m.Kind, m.Address,
			m.TickSize, m.LotSize, m.TakerFeeBps, m.Active,
		); err != nil {
			return fmt.Errorf("postgres: upsert market %s in batch: %w", m.Name, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit market batch: %w", err)
	}
	return nil
}

// GetByName returns a single market by its name. It returns
// domain.ErrNotFound when the market does not exist.
func (s *MarketStore) GetByName(ctx context.Context, name string) (domain.Market, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+marketSelectCols+` FROM markets WHERE name = $1`, name)

	var m domain.Market
	err := row.Scan(
		&m.Name, &m.BaseSymbol, &m.QuoteSymbol, &m.Kind, &m.Address,
		&m.TickSize, &m.LotSize, &m.TakerFeeBps, &m.Active, &m.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Market{}, domain.ErrNotFound
		}
		return domain.Market{}, fmt.Errorf("postgres: get market %s: %w", name, err)
	}
	return m, nil
}

// ListActive returns active markets ordered by name with pagination.
func (s *MarketStore) ListActive(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+marketSelectCols+`
		 FROM markets WHERE active ORDER BY name LIMIT $1 OFFSET $2`,
		opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active markets: %w", err)
	}
	defer rows.Close()

	markets, err := scanMarketRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan markets: %w", err)
	}
	return markets, nil
}

// Count returns the total number of markets.
func (s *MarketStore) Count(ctx context.Context) (int64, error) {
	var count int64
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM markets`).Scan(&count); err != nil {
		return 0, fmt.Errorf("postgres: count markets: %w", err)
	}
	return count, nil
}

// Compile-time interface check.
var _ domain.MarketStore = (*MarketStore)(nil)
