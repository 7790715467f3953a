// Command api is the Scoracle League API server. It also runs the
// settlement poller and the seasonal round sweep.
//
// Usage:
//
//	scoracle-api
//	API_PORT=8080 STORE_DRIVER=memory scoracle-api

// @title Scoracle League API
// @version 1.0.0
// @description Fantasy prediction leagues: match forecasts, wager pricing, placement, and league standings.
// @host localhost:8000
// @BasePath /api/v1
// @schemes http https
// @contact.name Scoracle
// @license.name MIT
package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"

	"github.com/albapepper/scoracle-league/internal/api"
	"github.com/albapepper/scoracle-league/internal/api/handler"
	"github.com/albapepper/scoracle-league/internal/app"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/maintenance"

	_ "github.com/albapepper/scoracle-league/docs" // swagger docs
)

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)

	// Load .env if present
	_ = godotenv.Load(".env")

	cfg, err := config.Load()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	logger.Info("Opening store...", "driver", cfg.StoreDriver)
	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		logger.Error("Failed to open store", "error", err)
		os.Exit(1)
	}
	a := app.New(cfg, st, logger)
	defer a.Close()
	logger.Info("Cache initialized", "enabled", cfg.CacheEnabled)

	// Settlement poll and seasonal round sweep
	go maintenance.Start(ctx, maintenance.Tasks{
		Settler: a.Poller,
		Rounds:  a.Leagues,
		Hooks:   maintenance.Hooks{Cache: a.Cache},
	}, maintenance.Config{
		SettlementInterval: cfg.SettlementPollInterval,
		RoundSweepInterval: cfg.RoundSweepInterval,
	}, logger)

	router := api.NewRouter(handler.Deps{
		Store:      a.Store,
		Cache:      a.Cache,
		Config:     cfg,
		Forecaster: a.Forecaster,
		Wagers:     a.Wagers,
		Leagues:    a.Leagues,
		Ledger:     a.Ledger,
		Logger:     logger,
	}, a.Metrics, cfg)

	addr := fmt.Sprintf("%s:%d", cfg.APIHost, cfg.APIPort)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		logger.Info("Starting Scoracle League API",
			"addr", addr,
			"environment", cfg.Environment,
			"docs", fmt.Sprintf("http://localhost:%d/docs/", cfg.APIPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("Server failed", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Shutdown error", "error", err)
	}
	logger.Info("Server stopped")
}
