// Package handler provides HTTP handlers for all API endpoints.
// Handlers decode requests, call the wagering services, and map domain
// errors onto the standard error shape.
package handler

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/wager"
)

// Forecaster is what the forecast and quote endpoints read from.
type Forecaster interface {
	wager.Forecaster
	LikelyPlayers(ctx context.Context, leagueCode string, season int, matchID int64) (forecast.MatchPlayers, error)
}

// Deps are the services a Handler serves.
type Deps struct {
	Store      store.Store
	Cache      *cache.Cache
	Config     *config.Config
	Forecaster Forecaster
	Wagers     *wager.Service
	Leagues    *league.Manager
	Ledger     *ledger.Ledger
	Logger     *slog.Logger
}

// Handler holds shared dependencies for all endpoint handlers.
type Handler struct {
	store      store.Store
	cache      *cache.Cache
	cfg        *config.Config
	forecaster Forecaster
	wagers     *wager.Service
	leagues    *league.Manager
	ledger     *ledger.Ledger
	logger     *slog.Logger
}

// New creates a Handler with shared dependencies.
func New(d Deps) *Handler {
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Cache == nil {
		d.Cache = cache.New(false)
	}
	if d.Ledger == nil {
		d.Ledger = ledger.New(d.Store)
	}
	return &Handler{
		store:      d.Store,
		cache:      d.Cache,
		cfg:        d.Config,
		forecaster: d.Forecaster,
		wagers:     d.Wagers,
		leagues:    d.Leagues,
		ledger:     d.Ledger,
		logger:     d.Logger,
	}
}

// Root serves API info at /.
// @Summary API root info
// @Description Returns API name, version, status, and the supported feed leagues.
// @Tags meta
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router / [get]
func (h *Handler) Root(w http.ResponseWriter, r *http.Request) {
	leagues := make([]string, 0, len(config.LeagueRegistry))
	for code := range config.LeagueRegistry {
		leagues = append(leagues, code)
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"name":    "Scoracle League API",
		"version": "1.0.0",
		"status":  "running",
		"docs":    "/docs",
		"leagues": leagues,
		"stake": map[string]int{
			"min": config.MinStake,
			"max": config.MaxStake,
		},
	})
}

// HealthCheck returns basic health status.
// @Summary Health check
// @Description Returns basic health status and timestamp.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health [get]
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckDB verifies storage connectivity.
// @Summary Database health check
// @Description Verifies the wager store is reachable.
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Failure 503 {object} map[string]interface{}
// @Router /health/db [get]
func (h *Handler) HealthCheckDB(w http.ResponseWriter, r *http.Request) {
	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Warn("Store health check failed", "error", err)
		respond.WriteJSONObject(w, http.StatusServiceUnavailable, map[string]interface{}{
			"status":    "unhealthy",
			"database":  "disconnected",
			"error":     "Database connection check failed",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"database":  "connected",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// HealthCheckCache returns cache statistics.
// @Summary Cache health check
// @Description Returns in-memory cache statistics (active keys, expired keys).
// @Tags health
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /health/cache [get]
func (h *Handler) HealthCheckCache(w http.ResponseWriter, r *http.Request) {
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"status":    "healthy",
		"cache":     h.cache.Stats(),
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}

// --------------------------------------------------------------------------
// Error mapping
// --------------------------------------------------------------------------

type errorMapping struct {
	target error
	status int
	code   string
}

// Order matters: the first match wins.
var errorMappings = []errorMapping{
	{store.ErrInvalidStake, http.StatusBadRequest, "INVALID_STAKE"},
	{store.ErrInvalidPrediction, http.StatusBadRequest, "INVALID_PREDICTION"},
	{store.ErrInvalidLeague, http.StatusBadRequest, "INVALID_LEAGUE"},
	{store.ErrNotSeasonal, http.StatusBadRequest, "NOT_SEASONAL"},
	{store.ErrMalformedResult, http.StatusBadRequest, "MALFORMED_RESULT"},
	{store.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
	{store.ErrNotMember, http.StatusForbidden, "NOT_MEMBER"},
	{store.ErrInvalidJoinCode, http.StatusForbidden, "INVALID_JOIN_CODE"},
	{store.ErrMatchClosed, http.StatusConflict, "MATCH_CLOSED"},
	{store.ErrResultConflict, http.StatusConflict, "RESULT_CONFLICT"},
	{store.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
	{store.ErrNoActiveAccounts, http.StatusConflict, "NO_ACTIVE_ACCOUNTS"},
	{store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
	{provider.ErrDataUnavailable, http.StatusNotFound, "DATA_UNAVAILABLE"},
	{store.ErrPersistence, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE"},
}

// StatusFor returns the HTTP status and error code for a domain error.
func StatusFor(err error) (int, string) {
	for _, m := range errorMappings {
		if errors.Is(err, m.target) {
			return m.status, m.code
		}
	}
	return http.StatusInternalServerError, "INTERNAL_ERROR"
}

func (h *Handler) writeErr(w http.ResponseWriter, r *http.Request, err error) {
	status, code := StatusFor(err)
	if status >= http.StatusInternalServerError {
		h.logger.Error("Request failed", "path", r.URL.Path, "code", code, "error", err)
		respond.WriteError(w, status, code, http.StatusText(status))
		return
	}
	respond.WriteErrorDetail(w, status, code, http.StatusText(status), err.Error())
}
