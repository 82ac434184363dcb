package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/service"
)

// marketResponse is the wire form of a market, optionally enriched with the
// latest cached mid price.
type marketResponse struct {
	Name        string  `json:"name"`
	BaseSymbol  string  `json:"baseSymbol"`
	QuoteSymbol string  `json:"quoteSymbol"`
	Kind        string  `json:"kind"`
	Address     string  `json:"address,omitempty"`
	TickSize    float64 `json:"tickSize"`
	LotSize     float64 `json:"lotSize"`
	TakerFeeBps float64 `json:"takerFeeBps"`
	Active      bool    `json:"active"`
	MidPrice    float64 `json:"midPrice,omitempty"`
	PriceTime   string  `json:"priceTime,omitempty"`
}

func toMarketResponse(m domain.Market) marketResponse {
	return marketResponse{
		Name:        m.Name,
		BaseSymbol:  m.BaseSymbol,
		QuoteSymbol: m.QuoteSymbol,
		Kind:        string(m.Kind),
		Address:     m.Address,
		TickSize:    m.TickSize,
		LotSize:     m.LotSize,
		TakerFeeBps: m.TakerFeeBps,
		Active:      m.Active,
	}
}

// MarketHandler serves market metadata endpoints.
type MarketHandler struct {
	markets *service.MarketService
	prices  *service.PriceService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler. prices may be nil when no cache
// is wired; responses then omit the mid price.
func NewMarketHandler(markets *service.MarketService, prices *service.PriceService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		prices:  prices,
		logger:  logHandler(logger, "market"),
	}
}

// ListMarkets returns active markets with pagination, enriched with the
// latest cached mid prices.
// GET /api/markets
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	markets, err := h.markets.List(r.Context(), opts)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list markets failed", slog.String("error", err.Error()))
		writeDomainError(w, err)
		return
	}

	var priceByName map[string]float64
	if h.prices != nil && len(markets) > 0 {
		names := make([]string, 0, len(markets))
		for _, m := range markets {
			names = append(names, m.Name)
		}
		if prices, err := h.prices.GetPrices(r.Context(), names); err == nil {
			priceByName = prices
		}
	}

	out := make([]marketResponse, 0, len(markets))
	for _, m := range markets {
		resp := toMarketResponse(m)
		if p, ok := priceByName[m.Name]; ok {
			resp.MidPrice = p
		}
		out = append(out, resp)
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"markets": out,
		"limit":   opts.Limit,
		"offset":  opts.Offset,
	})
}

// GetMarket returns a single market by name with its latest cached mid price.
// GET /api/markets/{name}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing market name")
		return
	}

	market, err := h.markets.Get(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := toMarketResponse(market)
	if h.prices != nil {
		if price, ts, err := h.prices.GetPrice(r.Context(), name); err == nil {
			resp.MidPrice = price
			resp.PriceTime = ts.UTC().Format(time.RFC3339)
		}
	}

	writeJSON(w, http.StatusOK, resp)
}
