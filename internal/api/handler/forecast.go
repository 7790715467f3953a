package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/pricing"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// matchParams reads {leagueCode}, {matchID}, and the optional season query
// parameter, writing a 400 on bad input.
func matchParams(w http.ResponseWriter, r *http.Request) (code string, season int, matchID int64, ok bool) {
	code = chi.URLParam(r, "leagueCode")
	lc, known := config.LookupLeague(code)
	if !known {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_LEAGUE", fmt.Sprintf("Unknown league code %q", code))
		return "", 0, 0, false
	}
	matchID, err := strconv.ParseInt(chi.URLParam(r, "matchID"), 10, 64)
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "Match ID must be an integer")
		return "", 0, 0, false
	}
	season, ok = seasonParam(w, r, lc)
	return code, season, matchID, ok
}

func seasonParam(w http.ResponseWriter, r *http.Request, lc config.LeagueConfig) (int, bool) {
	s := r.URL.Query().Get("season")
	if s == "" {
		return lc.CurrentSeason, true
	}
	season, err := strconv.Atoi(s)
	if err != nil || season < 2000 || season > lc.CurrentSeason+1 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_SEASON",
			fmt.Sprintf("Season must be between 2000 and %d", lc.CurrentSeason+1))
		return 0, false
	}
	return season, true
}

// serveCached writes a cached body or renders, caches, and writes a fresh one.
func (h *Handler) serveCached(w http.ResponseWriter, r *http.Request, key string, ttl time.Duration, render func() (any, error)) {
	if data, etag, ok := h.cache.Get(key); ok {
		respond.WriteCached(w, r, respond.Cached{Body: data, ETag: etag, TTL: ttl, Hit: true})
		return
	}

	v, err := render()
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	etag := h.cache.Set(key, data, ttl)
	respond.WriteCached(w, r, respond.Cached{Body: data, ETag: etag, TTL: ttl})
}

// GetForecast returns the model forecast for a match.
// @Summary Get match forecast
// @Description Returns expected goals, performance ratios, opposition factors, and outcome probabilities for a fixture.
// @Tags forecast
// @Produce json
// @Param leagueCode path string true "Feed league code" Enums(EPL, La_liga, Bundesliga, Serie_A, Ligue_1)
// @Param matchID path int true "Match ID"
// @Param season query int false "Season year (defaults to current)"
// @Success 200 {object} forecast.MatchForecast
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /forecast/{leagueCode}/{matchID} [get]
func (h *Handler) GetForecast(w http.ResponseWriter, r *http.Request) {
	code, season, matchID, ok := matchParams(w, r)
	if !ok {
		return
	}
	key := fmt.Sprintf("forecast:%s:%d:%d", code, season, matchID)
	h.serveCached(w, r, key, cache.TTLForecast, func() (any, error) {
		return h.forecaster.ForecastMatch(r.Context(), code, season, matchID)
	})
}

// GetMatchPlayers returns the likely players of both sides.
// @Summary Get likely match players
// @Description Returns up to 18 players per side ranked by likelihood of featuring, with per-match projections.
// @Tags forecast
// @Produce json
// @Param leagueCode path string true "Feed league code"
// @Param matchID path int true "Match ID"
// @Param season query int false "Season year (defaults to current)"
// @Success 200 {object} forecast.MatchPlayers
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /matches/{leagueCode}/{matchID}/players [get]
func (h *Handler) GetMatchPlayers(w http.ResponseWriter, r *http.Request) {
	code, season, matchID, ok := matchParams(w, r)
	if !ok {
		return
	}
	key := fmt.Sprintf("players:%s:%d:%d", code, season, matchID)
	h.serveCached(w, r, key, cache.TTLForecast, func() (any, error) {
		return h.forecaster.LikelyPlayers(r.Context(), code, season, matchID)
	})
}

// --------------------------------------------------------------------------
// Quotes
// --------------------------------------------------------------------------

// matchTarget identifies a match in request bodies.
type matchTarget struct {
	LeagueCode string `json:"league_code"`
	Season     int    `json:"season,omitempty"`
	MatchID    int64  `json:"match_id"`
}

func (t *matchTarget) resolve() error {
	lc, ok := config.LookupLeague(t.LeagueCode)
	if !ok {
		return fmt.Errorf("league code %q: %w", t.LeagueCode, store.ErrInvalidLeague)
	}
	if t.Season == 0 {
		t.Season = lc.CurrentSeason
	}
	if t.MatchID <= 0 {
		return fmt.Errorf("match id %d: %w", t.MatchID, store.ErrNotFound)
	}
	return nil
}

// QuoteRequest asks for the price of a match prediction.
type QuoteRequest struct {
	matchTarget
	Kind    store.WagerKind  `json:"kind"`
	Home    int              `json:"home"`
	Away    int              `json:"away"`
	Outcome provider.Outcome `json:"outcome,omitempty"`
	Stake   int64            `json:"stake,omitempty"`
}

// QuoteResponse carries whichever quote matches the request kind.
type QuoteResponse struct {
	Forecast forecast.MatchForecast   `json:"forecast"`
	Exact    *pricing.ExactScoreQuote `json:"exact,omitempty"`
	Outcome  *pricing.OutcomeQuote    `json:"outcome,omitempty"`
}

// stakeOrBase prices against BasePoints when no stake is given.
func stakeOrBase(stake int64) (int64, error) {
	if stake == 0 {
		return pricing.BasePoints, nil
	}
	return stake, ledger.ValidateStake(stake)
}

// PostExactQuote prices an exact-score or outcome prediction without placing it.
// @Summary Quote a match prediction
// @Description Prices an exact score (kind=exact) or a home/draw/away outcome (kind=outcome) against the current forecast. Stake defaults to 100 points.
// @Tags quotes
// @Accept json
// @Produce json
// @Param body body QuoteRequest true "Prediction"
// @Success 200 {object} QuoteResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /quotes/exact [post]
func (h *Handler) PostExactQuote(w http.ResponseWriter, r *http.Request) {
	var req QuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.resolve(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	stake, err := stakeOrBase(req.Stake)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	var resp QuoteResponse
	switch req.Kind {
	case store.KindExact, "":
		if req.Home < 0 || req.Away < 0 {
			h.writeErr(w, r, fmt.Errorf("negative score: %w", store.ErrInvalidPrediction))
			return
		}
	case store.KindOutcome:
		if !req.Outcome.Valid() {
			h.writeErr(w, r, fmt.Errorf("outcome %q: %w", req.Outcome, store.ErrInvalidPrediction))
			return
		}
	default:
		h.writeErr(w, r, fmt.Errorf("kind %q: %w", req.Kind, store.ErrInvalidPrediction))
		return
	}

	fc, err := h.forecaster.ForecastMatch(r.Context(), req.LeagueCode, req.Season, req.MatchID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	resp.Forecast = fc
	if req.Kind == store.KindOutcome {
		q := pricing.PriceOutcome(fc, req.Outcome, stake)
		resp.Outcome = &q
	} else {
		q := pricing.PriceExactScore(fc, req.Home, req.Away, stake)
		resp.Exact = &q
	}
	respond.WriteJSONObject(w, http.StatusOK, resp)
}

// PlayerQuoteRequest asks for the price of a player prediction.
type PlayerQuoteRequest struct {
	matchTarget
	PlayerID       int64 `json:"player_id"`
	PredictedGoals int   `json:"predicted_goals"`
	PredictedShots int   `json:"predicted_shots"`
	Stake          int64 `json:"stake,omitempty"`
}

// PlayerQuoteResponse is a player quote with the projection it was priced on.
type PlayerQuoteResponse struct {
	Projection forecast.PlayerProjection `json:"projection"`
	Quote      pricing.PlayerQuote       `json:"quote"`
	Stake      int64                     `json:"stake"`
	Payout     int64                     `json:"payout"`
}

// PostPlayerQuote prices a goals/shots prediction for one player.
// @Summary Quote a player prediction
// @Description Prices predicted goals and shots for a player against their projection. Stake defaults to 100 points.
// @Tags quotes
// @Accept json
// @Produce json
// @Param body body PlayerQuoteRequest true "Prediction"
// @Success 200 {object} PlayerQuoteResponse
// @Failure 400 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /quotes/player [post]
func (h *Handler) PostPlayerQuote(w http.ResponseWriter, r *http.Request) {
	var req PlayerQuoteRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := req.resolve(); err != nil {
		h.writeErr(w, r, err)
		return
	}
	if req.PredictedGoals < 0 || req.PredictedShots < 0 {
		h.writeErr(w, r, fmt.Errorf("negative player prediction: %w", store.ErrInvalidPrediction))
		return
	}
	stake, err := stakeOrBase(req.Stake)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}

	proj, _, err := h.forecaster.ProjectPlayer(r.Context(), req.LeagueCode, req.Season, req.MatchID, req.PlayerID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	q := pricing.PricePlayer(proj, req.PredictedGoals, req.PredictedShots)
	respond.WriteJSONObject(w, http.StatusOK, PlayerQuoteResponse{
		Projection: proj,
		Quote:      q,
		Stake:      stake,
		Payout:     q.Payout(stake),
	})
}

func decodeBody(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		respond.WriteErrorDetail(w, http.StatusBadRequest, "INVALID_BODY", "Request body is not valid JSON", err.Error())
		return false
	}
	return true
}
