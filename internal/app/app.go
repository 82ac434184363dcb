// Package app provides the top-level application lifecycle management for
// dexlens. It wires together all dependencies (stores, caches, blob storage,
// API clients, services, and pipelines) and starts the appropriate goroutines
// based on the configured operating mode.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/dexlens/dexlens/internal/config"
)

// App is the root application object. It owns the configuration, logger, and a
// list of cleanup functions that are called in reverse order on shutdown.
type App struct {
	cfg     *config.Config
	logger  *slog.Logger
	closers []func()
}

// New creates a new App from the given configuration and logger.
func New(cfg *config.Config, logger *slog.Logger) *App {
	return &App{
		cfg:    cfg,
		logger: logger.With(slog.String("component", "app")),
	}
}

// Run is the main entry point. It wires all dependencies, starts the
// goroutines for the configured operating mode, and blocks until the context
// is cancelled.
func (a *App) Run(ctx context.Context) error {
	run, err := a.modeRunner()
	if err != nil {
		return err
	}

	a.logger.InfoContext(ctx, "starting application",
		slog.String("mode", a.cfg.Mode),
		slog.String("log_level", a.cfg.LogLevel),
	)

	deps, cleanup, err := Wire(ctx, a.cfg)
	if err != nil {
		return fmt.Errorf("app: wire dependencies: %w", err)
	}
	a.closers = append(a.closers, cleanup)

	return run(ctx, deps)
}

// modeRunner resolves the configured operating mode to its entry point, so
// an unknown mode fails before any dependency is dialed.
func (a *App) modeRunner() (func(context.Context, *Dependencies) error, error) {
	switch strings.ToLower(a.cfg.Mode) {
	case "server":
		return a.ServerMode, nil
	case "collect":
		return a.CollectMode, nil
	case "full":
		return a.FullMode, nil
	default:
		return nil, fmt.Errorf("app: unsupported mode %q", a.cfg.Mode)
	}
}

// Close tears down all resources in reverse registration order. It is safe to
// call multiple times; subsequent calls are no-ops.
func (a *App) Close() {
	a.logger.Info("shutting down application")
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}
