package handler

import (
	"net/http"

	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/wager"
)

// WagerRequest places a match wager. LeagueID defaults to the global league.
type WagerRequest struct {
	matchTarget
	LeagueID   int64            `json:"league_id,omitempty"`
	Stake      int64            `json:"stake"`
	Prediction wager.Prediction `json:"prediction"`
}

// PostWager places or replaces a match wager.
// @Summary Place a match wager
// @Description Debits the stake from the league account (mirrored to the global league) and records the wager. Placing again on the same match replaces the earlier wager and refunds its stake.
// @Tags wagers
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param body body WagerRequest true "Wager"
// @Success 201 {object} wager.Receipt
// @Failure 400 {object} respond.ErrorResponse
// @Failure 402 {object} respond.ErrorResponse
// @Failure 403 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /wagers [post]
func (h *Handler) PostWager(w http.ResponseWriter, r *http.Request) {
	var req WagerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LeagueID == 0 {
		req.LeagueID = config.GlobalLeagueID
	}

	rec, err := h.wagers.Place(r.Context(), wager.Request{
		UserID:     userFrom(r).ID,
		LeagueID:   req.LeagueID,
		LeagueCode: req.LeagueCode,
		Season:     req.Season,
		MatchID:    req.MatchID,
		Stake:      req.Stake,
		Prediction: req.Prediction,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidateLeaderboards(req.LeagueID)
	respond.WriteJSONObject(w, http.StatusCreated, rec)
}

// PlayerWagerRequest places a player wager.
type PlayerWagerRequest struct {
	matchTarget
	LeagueID         int64 `json:"league_id,omitempty"`
	PlayerID         int64 `json:"player_id"`
	Stake            int64 `json:"stake"`
	PredictedGoals   int   `json:"predicted_goals"`
	PredictedShots   int   `json:"predicted_shots"`
	PredictedMinutes *int  `json:"predicted_minutes,omitempty"`
}

// PostPlayerWager places or replaces a player wager.
// @Summary Place a player wager
// @Description Debits the stake and records a goals/shots prediction for one player in a match.
// @Tags wagers
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param body body PlayerWagerRequest true "Wager"
// @Success 201 {object} wager.PlayerReceipt
// @Failure 400 {object} respond.ErrorResponse
// @Failure 402 {object} respond.ErrorResponse
// @Failure 409 {object} respond.ErrorResponse
// @Router /player-wagers [post]
func (h *Handler) PostPlayerWager(w http.ResponseWriter, r *http.Request) {
	var req PlayerWagerRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.LeagueID == 0 {
		req.LeagueID = config.GlobalLeagueID
	}

	rec, err := h.wagers.PlacePlayer(r.Context(), wager.PlayerRequest{
		UserID:           userFrom(r).ID,
		LeagueID:         req.LeagueID,
		LeagueCode:       req.LeagueCode,
		Season:           req.Season,
		MatchID:          req.MatchID,
		PlayerID:         req.PlayerID,
		Stake:            req.Stake,
		PredictedGoals:   req.PredictedGoals,
		PredictedShots:   req.PredictedShots,
		PredictedMinutes: req.PredictedMinutes,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidateLeaderboards(req.LeagueID)
	respond.WriteJSONObject(w, http.StatusCreated, rec)
}

// GetLeagueWagers lists the caller's outstanding wagers in a league.
// @Summary List outstanding wagers
// @Tags wagers
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path int true "League ID"
// @Success 200 {object} map[string]interface{}
// @Router /leagues/{id}/wagers [get]
func (h *Handler) GetLeagueWagers(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDParam(w, r)
	if !ok {
		return
	}
	wagers, err := h.wagers.Wagers(r.Context(), userFrom(r).ID, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"league_id": id,
		"wagers":    wagers,
	})
}
