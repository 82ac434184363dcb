package dexapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
)

// RestClient is the client for the exchange's public REST API. It covers the
// read-only data endpoints: markets, historical stats, and recent fills.
type RestClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRestClient creates a new REST client.
//
// baseURL is the API root, e.g. "https://api.dex.example". apiKey may be
// empty; public endpoints work without one but rate limits are tighter.
func NewRestClient(baseURL, apiKey string) *RestClient {
	return &RestClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// GetMarkets returns every market listed on the exchange.
func (c *RestClient) GetMarkets(ctx context.Context) ([]domain.Market, error) {
	respBody, err := c.doRequest(ctx, "/markets", nil)
	if err != nil {
		return nil, fmt.Errorf("dexapi: get markets: %w", err)
	}

	var apiMarkets []APIMarket
	if err := json.Unmarshal(respBody, &apiMarkets); err != nil {
		return nil, fmt.Errorf("dexapi: decode markets: %w", err)
	}

	markets := make([]domain.Market, 0, len(apiMarkets))
	for i := range apiMarkets {
		markets = append(markets, apiMarkets[i].ToDomainMarket())
	}
	return markets, nil
}

// GetStatHistory returns hourly samples of one metric for a market within
// [since, until). The API rejects windows longer than 31 days, so callers
// page by month when backfilling.
func (c *RestClient) GetStatHistory(ctx context.Context, market, metric string, since, until time.Time) ([]domain.StatRecord, error) {
	if !domain.KnownMetric(metric) {
		return nil, fmt.Errorf("dexapi: unknown metric %q", metric)
	}

	q := url.Values{}
	q.Set("market", market)
	q.Set("metric", metric)
	q.Set("from", strconv.FormatInt(since.UnixMilli(), 10))
	q.Set("to", strconv.FormatInt(until.UnixMilli(), 10))

	respBody, err := c.doRequest(ctx, "/stats/history", q)
	if err != nil {
		return nil, fmt.Errorf("dexapi: get stat history %s/%s: %w", market, metric, err)
	}

	var points []APIStatPoint
	if err := json.Unmarshal(respBody, &points); err != nil {
		return nil, fmt.Errorf("dexapi: decode stat history: %w", err)
	}

	records := make([]domain.StatRecord, 0, len(points))
	for i := range points {
		records = append(records, points[i].ToDomainStat(market, metric))
	}
	return records, nil
}

// GetRecentTrades returns the most recent fills for a market, newest first,
// up to limit.
func (c *RestClient) GetRecentTrades(ctx context.Context, market string, limit int) ([]domain.Trade, error) {
	q := url.Values{}
	q.Set("market", market)
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	respBody, err := c.doRequest(ctx, "/trades", q)
	if err != nil {
		return nil, fmt.Errorf("dexapi: get recent trades %s: %w", market, err)
	}

	var apiTrades []APITrade
	if err := json.Unmarshal(respBody, &apiTrades); err != nil {
		return nil, fmt.Errorf("dexapi: decode trades: %w", err)
	}

	trades := make([]domain.Trade, 0, len(apiTrades))
	for i := range apiTrades {
		trades = append(trades, apiTrades[i].ToDomainTrade())
	}
	return trades, nil
}

// GetOrderbook fetches a point-in-time orderbook snapshot over REST. The
// WebSocket feed is the primary source; this covers cold starts and gap
// recovery.
func (c *RestClient) GetOrderbook(ctx context.Context, market string) (domain.OrderbookSnapshot, error) {
	q := url.Values{}
	q.Set("market", market)

	respBody, err := c.doRequest(ctx, "/orderbook", q)
	if err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("dexapi: get orderbook %s: %w", market, err)
	}

	var book BookMessage
	if err := json.Unmarshal(respBody, &book); err != nil {
		return domain.OrderbookSnapshot{}, fmt.Errorf("dexapi: decode orderbook: %w", err)
	}
	if book.Market == "" {
		book.Market = market
	}

	return BookToDomainSnapshot(&book), nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doRequest builds, sends, and reads a GET request against the API. It
// returns the raw response body.
func (c *RestClient) doRequest(ctx context.Context, path string, query url.Values) ([]byte, error) {
	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-API-Key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if err := checkHTTPStatus(resp.StatusCode, respBody); err != nil {
		return nil, err
	}

	return respBody, nil
}

// checkHTTPStatus maps non-2xx status codes to appropriate domain errors.
func checkHTTPStatus(statusCode int, body []byte) error {
	if statusCode >= 200 && statusCode < 300 {
		return nil
	}

	bodyStr := string(body)
	switch statusCode {
	case http.StatusNotFound:
		return fmt.Errorf("%w: %s", domain.ErrNotFound, bodyStr)
	case http.StatusUnauthorized, http.StatusForbidden:
		return fmt.Errorf("%w: %s", domain.ErrUnauthorized, bodyStr)
	case http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", domain.ErrRateLimited, bodyStr)
	default:
		return fmt.Errorf("HTTP %d: %s", statusCode, bodyStr)
	}
}
