package handler

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/service"
)

// EstimateHandler serves the order-estimation endpoints backed by the live
// orderbook cache.
type EstimateHandler struct {
	estimates *service.EstimateService
	logger    *slog.Logger
}

// NewEstimateHandler creates an EstimateHandler.
func NewEstimateHandler(estimates *service.EstimateService, logger *slog.Logger) *EstimateHandler {
	return &EstimateHandler{
		estimates: estimates,
		logger:    logHandler(logger, "estimate"),
	}
}

// parseOrderQuery extracts the size and side query parameters.
func parseOrderQuery(r *http.Request) (float64, domain.Side, error) {
	q := r.URL.Query()

	size, err := strconv.ParseFloat(q.Get("size"), 64)
	if err != nil || size <= 0 {
		return 0, "", errors.New("size must be a positive number")
	}

	side := domain.Side(q.Get("side"))
	if !side.Valid() {
		return 0, "", errors.New("side must be \"buy\" or \"sell\"")
	}

	return size, side, nil
}

// Estimate returns the full set of order figures (fill price, buffered limit
// price, slippage, mark price) for a prospective market order.
// GET /api/markets/{name}/estimate?size=&side=
func (h *EstimateHandler) Estimate(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	size, side, err := parseOrderQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	est, err := h.estimates.Estimate(r.Context(), name, size, side)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "estimate failed",
			slog.String("market", name),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, est)
}

// Slippage returns only the slippage percentage for a prospective order.
// Insufficient ladder depth is reported as 422.
// GET /api/markets/{name}/slippage?size=&side=
func (h *EstimateHandler) Slippage(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	size, side, err := parseOrderQuery(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	slip, err := h.estimates.Slippage(r.Context(), name, size, side)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market":      name,
		"side":        side,
		"size":        size,
		"slippagePct": slip,
	})
}

// MarkPrice returns the synthetic mark price for a market. When no candidate
// price exists the response carries hasMark=false rather than an error.
// GET /api/markets/{name}/mark-price
func (h *EstimateHandler) MarkPrice(w http.ResponseWriter, r *http.Request) {
	name := pathParam(r, "name")
	if name == "" {
		writeError(w, http.StatusBadRequest, "missing market name")
		return
	}

	mark, ok, err := h.estimates.MarkPrice(r.Context(), name)
	if err != nil {
		writeDomainError(w, err)
		return
	}

	resp := map[string]any{
		"market":  name,
		"hasMark": ok,
	}
	if ok {
		resp["markPrice"] = mark
	}
	writeJSON(w, http.StatusOK, resp)
}
