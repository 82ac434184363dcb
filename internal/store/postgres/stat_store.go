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

// StatStore implements domain.StatStore using PostgreSQL. Rows are keyed by
// (market, metric, ts), so re-scraping an hour is an idempotent upsert.
type StatStore struct {
	pool *pgxpool.Pool
}

// NewStatStore creates a new StatStore backed by the given connection pool.
func NewStatStore(pool *pgxpool.Pool) *StatStore {
	return &StatStore{pool: pool}
}

const statUpsert = `
	INSERT INTO market_stats (market, metric, ts, value)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (market, metric, ts) DO UPDATE SET value = EXCLUDED.value`

func scanStatRows(rows pgx.Rows) ([]domain.StatRecord, error) {
	var records []domain.StatRecord
	for rows.Next() {
		var r domain.StatRecord
		if err := rows.Scan(&r.Market, &r.Metric, &r.Timestamp, &r.Value); err != nil {
			return nil, err
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// UpsertBatch writes stat records inside a single transaction.
func (s *StatStore) UpsertBatch(ctx context.Context, records []domain.StatRecord) error {
	if len(records) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin stat batch: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, r := range records {
		if _, err := tx.Exec(ctx, statUpsert,
			r.Market, r.Metric, r.Timestamp.UTC(), r.Value,
		); err != nil {
			return fmt.Errorf("postgres: upsert stat %s/%s@%s: %w",
				r.Market, r.Metric, r.Timestamp.Format(time.RFC3339), err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit stat batch: %w", err)
	}
	return nil
}

// List returns stat records for a market and metric within [since, until),
// ordered ascending by timestamp.
func (s *StatStore) List(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market, metric, ts, value
		 FROM market_stats
		 WHERE market = $1 AND metric = $2 AND ts >= $3 AND ts < $4
		 ORDER BY ts`,
		market, metric, since.UTC(), until.UTC())
	if err != nil {
		return nil, fmt.Errorf("postgres: list stats %s/%s: %w", market, metric, err)
	}
	defer rows.Close()

	records, err := scanStatRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stats: %w", err)
	}
	return records, nil
}

// GetLastTimestamp returns the newest stored timestamp for a market/metric
// pair, or domain.ErrNotFound when no rows exist yet.
func (s *StatStore) GetLastTimestamp(ctx context.Context, market, metric string) (time.Time, error) {
	var ts time.Time
	err := s.pool.QueryRow(ctx,
		`SELECT ts FROM market_stats
		 WHERE market = $1 AND metric = $2
		 ORDER BY ts DESC LIMIT 1`,
		market, metric).Scan(&ts)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return time.Time{}, domain.ErrNotFound
		}
		return time.Time{}, fmt.Errorf("postgres: last stat timestamp %s/%s: %w", market, metric, err)
	}
	return ts, nil
}

// ListBefore returns up to limit records older than the cutoff, ordered
// ascending, for archival.
func (s *StatStore) ListBefore(ctx context.Context, before time.Time, limit int) ([]domain.StatRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT market, metric, ts, value
		 FROM market_stats WHERE ts < $1 ORDER BY ts LIMIT $2`,
		before.UTC(), limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list stats before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	records, err := scanStatRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan stats: %w", err)
	}
	return records, nil
}

// DeleteBefore removes records older than the cutoff and returns the number
// of rows deleted.
func (s *StatStore) DeleteBefore(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM market_stats WHERE ts < $1`, before.UTC())
	if err != nil {
		return 0, fmt.Errorf("postgres: delete stats before %s: %w", before.Format(time.RFC3339), err)
	}
	return tag.RowsAffected(), nil
}

// Compile-time interface check.
var _ domain.StatStore = (*StatStore)(nil)
