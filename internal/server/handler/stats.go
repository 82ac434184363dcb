package handler

import (
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dexlens/dexlens/internal/service"
)

// statPoint is one bucketed sample in a chart series.
type statPoint struct {
	Timestamp int64   `json:"t"` // unix millis of the bucket start
	Value     float64 `json:"v"`
}

// StatsHandler serves the bucketed historical series endpoints.
type StatsHandler struct {
	stats  *service.StatsService
	logger *slog.Logger
}

// NewStatsHandler creates a StatsHandler.
func NewStatsHandler(stats *service.StatsService, logger *slog.Logger) *StatsHandler {
	return &StatsHandler{
		stats:  stats,
		logger: logHandler(logger, "stats"),
	}
}

// GetSeries returns the bucketed series for one metric over a trailing day
// window. days defaults to 1 and is capped at 90.
// GET /api/stats/{metric}?market=&days=
func (h *StatsHandler) GetSeries(w http.ResponseWriter, r *http.Request) {
	metric := pathParam(r, "metric")
	market := r.URL.Query().Get("market")
	if market == "" {
		writeError(w, http.StatusBadRequest, "missing market query parameter")
		return
	}

	days := 1
	if v := r.URL.Query().Get("days"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "days must be a positive integer")
			return
		}
		days = n
	}
	if days > 90 {
		days = 90
	}

	records, err := h.stats.GetSeries(r.Context(), market, metric, days)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "get series failed",
			slog.String("market", market),
			slog.String("metric", metric),
			slog.String("error", err.Error()),
		)
		writeDomainError(w, err)
		return
	}

	points := make([]statPoint, 0, len(records))
	for _, rec := range records {
		points = append(points, statPoint{
			Timestamp: rec.Timestamp.UnixMilli(),
			Value:     rec.Value,
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"market": market,
		"metric": metric,
		"days":   days,
		"points": points,
	})
}
