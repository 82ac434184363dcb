package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dexlens/dexlens/internal/book"
	"github.com/dexlens/dexlens/internal/domain"
)

// Estimate is the full set of figures derived for a prospective market order.
type Estimate struct {
	Market     string      `json:"market"`
	Side       domain.Side `json:"side"`
	Size       float64     `json:"size"`
	FillPrice  float64     `json:"fillPrice"`
	LimitPrice float64     `json:"limitPrice"`
	Slippage   float64     `json:"slippagePct"`
	MarkPrice  float64     `json:"markPrice,omitempty"`
	HasMark    bool        `json:"hasMark"`
	BookTime   time.Time   `json:"bookTime"`

	// Sufficient is false when the visible ladder cannot cover the requested
	// size; the price fields are zero in that case.
	Sufficient bool `json:"sufficient"`
}

// EstimateService computes fill, limit, slippage, and mark figures from the
// cached live orderbook and trade tape.
type EstimateService struct {
	bookCache  domain.OrderbookCache
	tradeCache domain.TradeTapeCache
	logger     *slog.Logger
}

// NewEstimateService creates an EstimateService.
func NewEstimateService(bookCache domain.OrderbookCache, tradeCache domain.TradeTapeCache, logger *slog.Logger) *EstimateService {
	return &EstimateService{
		bookCache:  bookCache,
		tradeCache: tradeCache,
		logger:     logger,
	}
}

// Estimate computes all order figures for the given market, size, and side.
//
// Insufficient ladder depth is not an error at this layer: the returned
// Estimate carries Sufficient=false with the mark price still populated when
// one can be derived. domain.ErrNotFound is returned when no orderbook is
// cached for the market, and domain.ErrInvalidSide for an unknown side.
func (s *EstimateService) Estimate(ctx context.Context, market string, size float64, side domain.Side) (Estimate, error) {
	if !side.Valid() {
		return Estimate{}, fmt.Errorf("estimate_service: %w: %q", domain.ErrInvalidSide, side)
	}
	if size < 0 {
		return Estimate{}, fmt.Errorf("estimate_service: negative size %v", size)
	}

	snap, err := s.bookCache.GetSnapshot(ctx, market)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate_service: get snapshot for %q: %w", market, err)
	}

	est := Estimate{
		Market:   market,
		Side:     side,
		Size:     size,
		BookTime: snap.Timestamp,
	}

	// The trade tape is best-effort: a missing last trade only shrinks the
	// mark price candidate set.
	var lastTrade *domain.LastTrade
	if lt, err := s.tradeCache.GetLastTrade(ctx, market); err == nil {
		lastTrade = &lt
	} else if !errors.Is(err, domain.ErrNotFound) {
		s.logger.WarnContext(ctx, "estimate_service: get last trade failed",
			slog.String("market", market),
			slog.String("error", err.Error()),
		)
	}

	est.MarkPrice, est.HasMark = book.MarkPrice(snap, lastTrade)

	fill, err := book.EstimatedFillPrice(snap, size, side)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientLiquidity) {
			return est, nil
		}
		return Estimate{}, fmt.Errorf("estimate_service: fill price for %q: %w", market, err)
	}
	est.Sufficient = true
	est.FillPrice = fill

	limit, err := book.LimitPriceWithBuffer(snap, size, side)
	if err != nil {
		return Estimate{}, fmt.Errorf("estimate_service: limit price for %q: %w", market, err)
	}
	est.LimitPrice = limit

	// The slippage reference must be non-zero when one ladder side is empty,
	// so only derive it from a usable mark price.
	if est.HasMark {
		slip, err := book.SlippagePercent(snap, size, side, est.MarkPrice)
		if err != nil {
			return Estimate{}, fmt.Errorf("estimate_service: slippage for %q: %w", market, err)
		}
		est.Slippage = slip
	}

	return est, nil
}

// Slippage computes only the slippage percentage for the given order.
// It returns domain.ErrInsufficientLiquidity when the ladder cannot cover
// the size.
func (s *EstimateService) Slippage(ctx context.Context, market string, size float64, side domain.Side) (float64, error) {
	if !side.Valid() {
		return 0, fmt.Errorf("estimate_service: %w: %q", domain.ErrInvalidSide, side)
	}

	snap, err := s.bookCache.GetSnapshot(ctx, market)
	if err != nil {
		return 0, fmt.Errorf("estimate_service: get snapshot for %q: %w", market, err)
	}

	var lastTrade *domain.LastTrade
	if lt, err := s.tradeCache.GetLastTrade(ctx, market); err == nil {
		lastTrade = &lt
	}
	mark, hasMark := book.MarkPrice(snap, lastTrade)
	if !hasMark {
		return 0, fmt.Errorf("estimate_service: no reference price for %q: %w", market, domain.ErrInsufficientLiquidity)
	}

	slip, err := book.SlippagePercent(snap, size, side, mark)
	if err != nil {
		return 0, fmt.Errorf("estimate_service: slippage for %q: %w", market, err)
	}
	return slip, nil
}

// MarkPrice returns the synthetic mark price for a market. The boolean is
// false when neither side of the book nor a last trade is available.
func (s *EstimateService) MarkPrice(ctx context.Context, market string) (float64, bool, error) {
	snap, err := s.bookCache.GetSnapshot(ctx, market)
	if err != nil {
		return 0, false, fmt.Errorf("estimate_service: get snapshot for %q: %w", market, err)
	}

	var lastTrade *domain.LastTrade
	if lt, err := s.tradeCache.GetLastTrade(ctx, market); err == nil {
		lastTrade = &lt
	}

	mark, ok := book.MarkPrice(snap, lastTrade)
	return mark, ok, nil
}
