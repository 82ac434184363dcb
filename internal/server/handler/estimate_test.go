package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/service"
)

type stubBookCache struct {
	snaps map[string]domain.OrderbookSnapshot
}

func (s *stubBookCache) SetSnapshot(ctx context.Context, market string, snap domain.OrderbookSnapshot) error {
	return nil
}

func (s *stubBookCache) GetSnapshot(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	snap, ok := s.snaps[market]
	if !ok {
		return domain.OrderbookSnapshot{}, domain.ErrNotFound
	}
	return snap, nil
}

func (s *stubBookCache) UpdateLevel(ctx context.Context, market string, side domain.Side, price, size float64) error {
	return nil
}

func (s *stubBookCache) GetBBO(ctx context.Context, market string) (float64, float64, error) {
	return 0, 0, domain.ErrNotFound
}

type stubTradeCache struct{}

func (s *stubTradeCache) SetLastTrade(ctx context.Context, trade domain.LastTrade) error { return nil }

func (s *stubTradeCache) GetLastTrade(ctx context.Context, market string) (domain.LastTrade, error) {
	return domain.LastTrade{}, domain.ErrNotFound
}

func newEstimateHandler() *EstimateHandler {
	books := &stubBookCache{snaps: map[string]domain.OrderbookSnapshot{
		"BTC-PERP": {
			Market:    "BTC-PERP",
			Bids:      []domain.PriceLevel{{Price: 99, Size: 2}},
			Asks:      []domain.PriceLevel{{Price: 101, Size: 2}},
			BestBid:   99,
			BestAsk:   101,
			MidPrice:  100,
			Timestamp: time.Now().UTC(),
		},
	}}
	logger := slog.New(slog.DiscardHandler)
	svc := service.NewEstimateService(books, &stubTradeCache{}, logger)
	return NewEstimateHandler(svc, logger)
}

func doEstimateRequest(t *testing.T, h http.HandlerFunc, pattern, url string) *httptest.ResponseRecorder {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc(pattern, h)
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, url, nil))
	return rec
}

func TestEstimateEndpoint(t *testing.T) {
	h := newEstimateHandler()

	rec := doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/BTC-PERP/estimate?size=1&side=buy")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "BTC-PERP", body["market"])
	assert.Equal(t, 101.0, body["fillPrice"])
	assert.Equal(t, true, body["sufficient"])
}

func TestEstimateEndpointValidation(t *testing.T) {
	h := newEstimateHandler()

	rec := doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/BTC-PERP/estimate?size=abc&side=buy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/BTC-PERP/estimate?size=1&side=hold")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/NOPE/estimate?size=1&side=buy")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestEstimateEndpointRejectsNonPositiveSize(t *testing.T) {
	h := newEstimateHandler()

	rec := doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/BTC-PERP/estimate?size=0&side=buy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doEstimateRequest(t, h.Estimate,
		"GET /api/markets/{name}/estimate", "/api/markets/BTC-PERP/estimate?size=-1&side=buy")
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doEstimateRequest(t, h.Slippage,
		"GET /api/markets/{name}/slippage", "/api/markets/BTC-PERP/slippage?size=0&side=sell")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestSlippageEndpointInsufficientDepth(t *testing.T) {
	h := newEstimateHandler()

	rec := doEstimateRequest(t, h.Slippage,
		"GET /api/markets/{name}/slippage", "/api/markets/BTC-PERP/slippage?size=1000&side=buy")
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestMarkPriceEndpoint(t *testing.T) {
	h := newEstimateHandler()

	rec := doEstimateRequest(t, h.MarkPrice,
		"GET /api/markets/{name}/mark-price", "/api/markets/BTC-PERP/mark-price")
	require.Equal(t, http.StatusOK, rec.Code)

	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, true, body["hasMark"])
	// two candidates, the upper one wins
	assert.Equal(t, 101.0, body["markPrice"])
}
