// Package app wires configuration into the store, feed, and services shared
// by cmd/api and cmd/admin.
package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/db"
	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/provider/sportmonks"
	"github.com/albapepper/scoracle-league/internal/settlement"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/store/memstore"
	"github.com/albapepper/scoracle-league/internal/store/pgstore"
	"github.com/albapepper/scoracle-league/internal/wager"
)

// App holds every long-lived component.
type App struct {
	Config     *config.Config
	Store      store.Store
	Cache      *cache.Cache
	Metrics    *metrics.Manager
	Feed       *sportmonks.Feed
	Forecaster *forecast.Forecaster
	Ledger     *ledger.Ledger
	Wagers     *wager.Service
	Leagues    *league.Manager
	Engine     *settlement.Engine
	Poller     *settlement.Poller
}

// OpenStore connects the configured store driver.
func OpenStore(ctx context.Context, cfg *config.Config, logger *slog.Logger) (store.Store, error) {
	switch cfg.StoreDriver {
	case config.StoreMemory:
		logger.Warn("Using in-memory store; balances are lost on restart")
		return memstore.New(), nil
	case config.StorePostgres:
		pool, err := db.New(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("connect to database: %w", err)
		}
		logger.Info("Database connected",
			"min_conns", cfg.DBPoolMinConns,
			"max_conns", cfg.DBPoolMaxConns)
		return pgstore.New(pool), nil
	default:
		return nil, fmt.Errorf("unknown store driver %q", cfg.StoreDriver)
	}
}

// New builds the application on an open store.
func New(cfg *config.Config, st store.Store, logger *slog.Logger) *App {
	m := metrics.NewManager()
	c := cache.New(cfg.CacheEnabled)

	if cfg.SportMonksAPIToken == "" {
		logger.Warn("SPORTMONKS_API_TOKEN not set; forecasts and settlement will find no data")
	}
	client := sportmonks.NewClient(cfg.SportMonksAPIToken, cfg.FeedRequestsPerMin, logger,
		sportmonks.WithBaseURL(cfg.SportMonksBaseURL),
		sportmonks.WithCache(c),
		sportmonks.WithMetrics(m))
	feed := sportmonks.NewFeed(client, logger)
	fc := forecast.NewForecaster(feed, logger)

	engine := settlement.NewEngine(st, logger, settlement.WithMetrics(m))
	poller := settlement.NewPoller(engine, st, feed, settlement.PollerConfig{
		Workers:       cfg.SettlementWorkers,
		SettlePlayers: cfg.SettlePlayerWagers,
		Metrics:       m,
	}, logger)
	wagers := wager.NewService(st, fc, logger,
		wager.WithMetrics(m),
		wager.WithRetries(cfg.PlacementRetries))

	return &App{
		Config:     cfg,
		Store:      st,
		Cache:      c,
		Metrics:    m,
		Feed:       feed,
		Forecaster: fc,
		Ledger:     ledger.New(st),
		Wagers:     wagers,
		Leagues:    league.NewManager(st, logger, league.WithMetrics(m)),
		Engine:     engine,
		Poller:     poller,
	}
}

// Close releases the store and cache.
func (a *App) Close() {
	a.Cache.Close()
	a.Store.Close()
}
