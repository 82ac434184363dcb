package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/platform/dexapi"
)

// MarketService serves market metadata from the store and keeps it in sync
// with the exchange's markets endpoint.
type MarketService struct {
	store  domain.MarketStore
	api    *dexapi.RestClient
	logger *slog.Logger
}

// NewMarketService creates a MarketService. api may be nil in server-only
// deployments where the scraper runs elsewhere; Sync then fails fast.
func NewMarketService(store domain.MarketStore, api *dexapi.RestClient, logger *slog.Logger) *MarketService {
	return &MarketService{
		store:  store,
		api:    api,
		logger: logger,
	}
}

// Sync fetches the full market list from the exchange and upserts it into
// the store. It returns the number of markets written.
func (s *MarketService) Sync(ctx context.Context) (int, error) {
	if s.api == nil {
		return 0, fmt.Errorf("market_service: no API client configured")
	}

	markets, err := s.api.GetMarkets(ctx)
	if err != nil {
		return 0, fmt.Errorf("market_service: fetch markets: %w", err)
	}

	if err := s.store.UpsertBatch(ctx, markets); err != nil {
		return 0, fmt.Errorf("market_service: upsert markets: %w", err)
	}

	s.logger.InfoContext(ctx, "markets synced", slog.Int("count", len(markets)))
	return len(markets), nil
}

// List returns active markets with pagination.
func (s *MarketService) List(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	if opts.Limit <= 0 {
		opts.Limit = 100
	}
	markets, err := s.store.ListActive(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	return markets, nil
}

// Get returns one market by name, or domain.ErrNotFound.
func (s *MarketService) Get(ctx context.Context, name string) (domain.Market, error) {
	market, err := s.store.GetByName(ctx, name)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %q: %w", name, err)
	}
	return market, nil
}

// ActiveNames returns the names of every active market, used to build the
// WebSocket subscription list.
func (s *MarketService) ActiveNames(ctx context.Context) ([]string, error) {
	markets, err := s.store.ListActive(ctx, domain.ListOpts{Limit: 1000})
	if err != nil {
		return nil, fmt.Errorf("market_service: list markets: %w", err)
	}
	names := make([]string, 0, len(markets))
	for _, m := range markets {
		names = append(names, m.Name)
	}
	return names, nil
}
