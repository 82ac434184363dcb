package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore persists market metadata.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	UpsertBatch(ctx context.Context, markets []Market) error
	GetByName(ctx context.Context, name string) (Market, error)
	ListActive(ctx context.Context, opts ListOpts) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// StatStore persists hourly statistics records.
type StatStore interface {
	UpsertBatch(ctx context.Context, records []StatRecord) error
	List(ctx context.Context, market, metric string, since, until time.Time) ([]StatRecord, error)
	GetLastTimestamp(ctx context.Context, market, metric string) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]StatRecord, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}

// TradeStore persists fills from the market-data gateway.
type TradeStore interface {
	InsertBatch(ctx context.Context, trades []Trade) error
	ListByMarket(ctx context.Context, market string, opts ListOpts) ([]Trade, error)
	GetLastTimestamp(ctx context.Context, market string) (time.Time, error)
	ListBefore(ctx context.Context, before time.Time, limit int) ([]Trade, error)
	DeleteBefore(ctx context.Context, before time.Time) (int64, error)
}
