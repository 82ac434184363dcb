package service

import (
	"context"
	"log/slog"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
)

type fakeBookCache struct {
	snaps map[string]domain.OrderbookSnapshot
}

func (f *fakeBookCache) SetSnapshot(ctx context.Context, market string, snap domain.OrderbookSnapshot) error {
	if f.snaps == nil {
		f.snaps = make(map[string]domain.OrderbookSnapshot)
	}
	f.snaps[market] = snap
	return nil
}

func (f *fakeBookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	snap, ok := f.snaps[market]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (f *fakeBookCache) UpdateLevel(ctx context.Context, market string, side domain.Side, price, size float64) error {
	return nil
}

func (f *fakeBookCache) GetBBO(ctx context.Context, market string) (float64, float64, error) {
	snap, ok := f.snaps[market]
	if !ok {
		return 0, 0, domain.ErrNotFound
	}
	return snap.BestBid, snap.BestAsk, nil
}

type fakeTradeCache struct {
	trades map[string]domain.LastTrade
}

func (f *fakeTradeCache) SetLastTrade(ctx context.Context, trade domain.LastTrade) error {
	if f.trades == nil {
		f.trades = make(map[string]domain.LastTrade)
	}
	f.trades[trade.Market] = trade
	return nil
}

func (f *fakeTradeCache) GetLastTrade(ctx context.Context, market string) (domain.LastTrade, error) {
	trade, ok := f.trades[market]
	if !ok {
		return domain.LastTrade{}, domain.ErrNotFound
	}
	return trade, nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func estimateFixture(t *testing.T) (*EstimateService, time.Time) {
	t.Helper()

	bookTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"BTC-PERP": {
			Market:    "BTC-PERP",
			Bids:      []domain.PriceLevel{{Price: 99, Size: 2}, {Price: 98, Size: 5}},
			Asks:      []domain.PriceLevel{{Price: 101, Size: 2}, {Price: 102, Size: 5}},
			BestBid:   99,
			BestAsk:   101,
			MidPrice:  100,
			Timestamp: bookTime,
		},
	}}
	tape := &fakeTradeCache{trades: map[string]domain.LastTrade{
		"BTC-PERP": {Market: "BTC-PERP", Price: 100, Size: 1, Side: domain.SideBuy, Timestamp: bookTime},
	}}

	return NewEstimateService(books, tape, testLogger()), bookTime
}

func TestEstimateBuyOrder(t *testing.T) {
	svc, bookTime := estimateFixture(t)

	est, err := svc.Estimate(context.Background(), "BTC-PERP", 3, domain.SideBuy)
	require.NoError(t, err)

	assert.True(t, est.Sufficient)
	assert.Equal(t, 102.0, est.FillPrice)
	assert.InDelta(t, 107.1, est.LimitPrice, 1e-9)
	// mid is (99+101)/2 = 100, fill is 102, so slippage is 2%
	assert.InDelta(t, 2.0, est.Slippage, 1e-9)
	assert.True(t, est.HasMark)
	// candidates {99, 100, 101}, median 100
	assert.Equal(t, 100.0, est.MarkPrice)
	assert.Equal(t, bookTime, est.BookTime)
}

func TestEstimateSellOrder(t *testing.T) {
	svc, _ := estimateFixture(t)

	est, err := svc.Estimate(context.Background(), "BTC-PERP", 5, domain.SideSell)
	require.NoError(t, err)

	assert.True(t, est.Sufficient)
	assert.Equal(t, 98.0, est.FillPrice)
	assert.InDelta(t, 98*0.95, est.LimitPrice, 1e-9)
}

func TestEstimateInsufficientDepthIsNotAnError(t *testing.T) {
	svc, _ := estimateFixture(t)

	est, err := svc.Estimate(context.Background(), "BTC-PERP", 1000, domain.SideBuy)
	require.NoError(t, err)

	assert.False(t, est.Sufficient)
	assert.Zero(t, est.FillPrice)
	assert.Zero(t, est.LimitPrice)
	// the mark is still derivable from the book and last trade
	assert.True(t, est.HasMark)
	assert.Equal(t, 100.0, est.MarkPrice)
}

func TestEstimateValidation(t *testing.T) {
	svc, _ := estimateFixture(t)

	_, err := svc.Estimate(context.Background(), "BTC-PERP", 1, domain.Side("hold"))
	assert.ErrorIs(t, err, domain.ErrInvalidSide)

	_, err = svc.Estimate(context.Background(), "BTC-PERP", -1, domain.SideBuy)
	assert.Error(t, err)

	_, err = svc.Estimate(context.Background(), "NO-SUCH-MARKET", 1, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestEstimateWithoutLastTrade(t *testing.T) {
	bookTime := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"ETH-PERP": {
			Market:    "ETH-PERP",
			Bids:      []domain.PriceLevel{{Price: 10, Size: 100}},
			Asks:      []domain.PriceLevel{{Price: 12, Size: 100}},
			BestBid:   10,
			BestAsk:   12,
			MidPrice:  11,
			Timestamp: bookTime,
		},
	}}
	svc := NewEstimateService(books, &fakeTradeCache{}, testLogger())

	est, err := svc.Estimate(context.Background(), "ETH-PERP", 1, domain.SideBuy)
	require.NoError(t, err)

	// with two candidates the upper one wins
	assert.True(t, est.HasMark)
	assert.Equal(t, 12.0, est.MarkPrice)
}

func TestSlippagePropagatesInsufficientLiquidity(t *testing.T) {
	svc, _ := estimateFixture(t)

	_, err := svc.Slippage(context.Background(), "BTC-PERP", 1000, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)

	slip, err := svc.Slippage(context.Background(), "BTC-PERP", 3, domain.SideBuy)
	require.NoError(t, err)
	assert.InDelta(t, 2.0, slip, 1e-9)
}

func TestSlippageOneSidedBookUsesMarkReference(t *testing.T) {
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"SOL-PERP": {
			Market:  "SOL-PERP",
			Asks:    []domain.PriceLevel{{Price: 50, Size: 10}},
			BestAsk: 50,
		},
	}}
	svc := NewEstimateService(books, &fakeTradeCache{}, testLogger())

	// The only candidate is the best ask, so the reference equals the fill
	// price and slippage is exactly zero rather than NaN.
	slip, err := svc.Slippage(context.Background(), "SOL-PERP", 5, domain.SideBuy)
	require.NoError(t, err)
	assert.Zero(t, slip)

	est, err := svc.Estimate(context.Background(), "SOL-PERP", 5, domain.SideBuy)
	require.NoError(t, err)
	assert.True(t, est.Sufficient)
	assert.False(t, math.IsNaN(est.Slippage))
	assert.Zero(t, est.Slippage)
}

func TestSlippageEmptyBookHasNoReference(t *testing.T) {
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"DEAD-PERP": {Market: "DEAD-PERP"},
	}}
	svc := NewEstimateService(books, &fakeTradeCache{}, testLogger())

	_, err := svc.Slippage(context.Background(), "DEAD-PERP", 1, domain.SideBuy)
	assert.ErrorIs(t, err, domain.ErrInsufficientLiquidity)
}

func TestMarkPriceEmptyBook(t *testing.T) {
	books := &fakeBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"DEAD-PERP": {Market: "DEAD-PERP"},
	}}
	svc := NewEstimateService(books, &fakeTradeCache{}, testLogger())

	_, ok, err := svc.MarkPrice(context.Background(), "DEAD-PERP")
	require.NoError(t, err)
	assert.False(t, ok)
}
