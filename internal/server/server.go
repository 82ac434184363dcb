// Package server assembles the HTTP API: routes, middleware chain, and the
// WebSocket endpoint.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dexlens/dexlens/internal/domain"
	"github.com/dexlens/dexlens/internal/server/handler"
	"github.com/dexlens/dexlens/internal/server/middleware"
	"github.com/dexlens/dexlens/internal/server/ws"
)

// Config holds the HTTP server configuration.
type Config struct {
	Port        int
	CORSOrigins []string
	APIKey      string // if empty, authentication is disabled

	// RateLimit is the per-client request budget per RateWindow. Zero
	// disables rate limiting.
	RateLimit  int
	RateWindow time.Duration
}

// Handlers aggregates all HTTP handlers that the server needs to register.
type Handlers struct {
	Health    *handler.HealthHandler
	Markets   *handler.MarketHandler
	Estimates *handler.EstimateHandler
	Stats     *handler.StatsHandler
}

// Server is the headless HTTP + WebSocket API server for dexlens.
type Server struct {
	httpServer *http.Server
	logger     *slog.Logger
}

// NewServer creates a new Server with all routes registered and the
// middleware chain (CORS, logging, rate limiting, auth) applied. limiter may
// be nil when rate limiting is disabled.
func NewServer(cfg Config, handlers Handlers, wsHub *ws.Hub, limiter domain.RateLimiter, logger *slog.Logger) *Server {
	mux := http.NewServeMux()
	registerRoutes(mux, handlers, wsHub)

	// Innermost first; the last entry sees the request first.
	chain := []func(http.Handler) http.Handler{
		middleware.Auth(cfg.APIKey),
	}
	if limiter != nil && cfg.RateLimit > 0 {
		window := cfg.RateWindow
		if window <= 0 {
			window = time.Minute
		}
		chain = append(chain, middleware.RateLimit(limiter, cfg.RateLimit, window))
	}
	chain = append(chain,
		middleware.Logging(logger),
		middleware.CORS(cfg.CORSOrigins),
	)

	var h http.Handler = mux
	for _, wrap := range chain {
		h = wrap(h)
	}

	return &Server{
		httpServer: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           h,
			ReadHeaderTimeout: 5 * time.Second,
			ReadTimeout:       15 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		},
		logger: logger,
	}
}

// registerRoutes attaches every API route to the mux. The health check is
// registered first so it stays reachable even if handler wiring changes.
func registerRoutes(mux *http.ServeMux, handlers Handlers, wsHub *ws.Hub) {
	mux.HandleFunc("GET /api/health", handlers.Health.HealthCheck)

	// Market metadata.
	mux.HandleFunc("GET /api/markets", handlers.Markets.ListMarkets)
	mux.HandleFunc("GET /api/markets/{name}", handlers.Markets.GetMarket)

	// Order estimation against the live book.
	mux.HandleFunc("GET /api/markets/{name}/estimate", handlers.Estimates.Estimate)
	mux.HandleFunc("GET /api/markets/{name}/slippage", handlers.Estimates.Slippage)
	mux.HandleFunc("GET /api/markets/{name}/mark-price", handlers.Estimates.MarkPrice)

	// Historical chart series.
	mux.HandleFunc("GET /api/stats/{metric}", handlers.Stats.GetSeries)

	if wsHub != nil {
		mux.HandleFunc("GET /ws", wsHub.HandleWS)
	}
}

// Start begins listening for HTTP requests. It blocks until the server
// encounters an error or is shut down.
func (s *Server) Start() error {
	s.logger.Info("server: starting", slog.String("addr", s.httpServer.Addr))

	err := s.httpServer.ListenAndServe()
	if err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: listen: %w", err)
	}
	return nil
}

// Shutdown gracefully shuts down the server, waiting for in-flight requests
// to complete within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("server: shutting down")
	if err := s.httpServer.Shutdown(ctx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	return nil
}
