package handler

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/store"
)

func leagueIDParam(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_ID", "League ID must be a positive integer")
		return 0, false
	}
	return id, true
}

func leaderboardKey(leagueID int64) string {
	return fmt.Sprintf("%s%d:", cache.LeaderboardPrefix, leagueID)
}

// invalidateLeaderboards drops the cached boards a balance change touched.
func (h *Handler) invalidateLeaderboards(leagueID int64) {
	h.cache.DeletePrefix(leaderboardKey(leagueID))
	if leagueID != config.GlobalLeagueID {
		h.cache.DeletePrefix(leaderboardKey(config.GlobalLeagueID))
	}
}

// GetBalance returns the caller's balance in a league.
// @Summary Get league balance
// @Tags leagues
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path int true "League ID"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} respond.ErrorResponse
// @Router /leagues/{id}/balance [get]
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDParam(w, r)
	if !ok {
		return
	}
	u := userFrom(r)
	bal, err := h.ledger.Balance(r.Context(), u.ID, id)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"user_id":   u.ID,
		"league_id": id,
		"balance":   bal,
	})
}

// GetLeaderboard ranks a league's members by balance.
// @Summary Get league leaderboard
// @Description Members ordered by balance, highest first. Seasonal leagues include trophies.
// @Tags leagues
// @Produce json
// @Param id path int true "League ID"
// @Success 200 {object} league.Leaderboard
// @Failure 404 {object} respond.ErrorResponse
// @Router /leagues/{id}/leaderboard [get]
func (h *Handler) GetLeaderboard(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDParam(w, r)
	if !ok {
		return
	}
	h.serveCached(w, r, leaderboardKey(id), cache.TTLLeaderboard, func() (any, error) {
		lb, err := h.leagues.Leaderboard(r.Context(), id)
		if err != nil {
			return nil, err
		}
		// Join codes are for members to share, not for public boards.
		lb.League.JoinCode = ""
		return lb, nil
	})
}

// CreateLeagueRequest creates a league owned by the caller.
type CreateLeagueRequest struct {
	Name    string           `json:"name"`
	Type    store.LeagueType `json:"type"`
	Privacy store.Privacy    `json:"privacy"`
}

// PostLeague creates a league and joins its creator.
// @Summary Create a league
// @Description Classic or seasonal, public or private. Private leagues return their join code.
// @Tags leagues
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param body body CreateLeagueRequest true "League"
// @Success 201 {object} store.League
// @Failure 400 {object} respond.ErrorResponse
// @Router /leagues [post]
func (h *Handler) PostLeague(w http.ResponseWriter, r *http.Request) {
	var req CreateLeagueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.Type == "" {
		req.Type = store.LeagueClassic
	}
	if req.Privacy == "" {
		req.Privacy = store.Public
	}

	l, err := h.leagues.Create(r.Context(), league.CreateRequest{
		Name:      req.Name,
		Type:      req.Type,
		Privacy:   req.Privacy,
		CreatorID: userFrom(r).ID,
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusCreated, l)
}

// JoinLeagueRequest carries the join code of a private league.
type JoinLeagueRequest struct {
	JoinCode string `json:"join_code,omitempty"`
}

// PostJoinLeague adds the caller to a league.
// @Summary Join a league
// @Description Opens an account at the initial balance. Private leagues need their join code.
// @Tags leagues
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param id path int true "League ID"
// @Param body body JoinLeagueRequest false "Join code"
// @Success 200 {object} store.Account
// @Failure 403 {object} respond.ErrorResponse
// @Failure 404 {object} respond.ErrorResponse
// @Router /leagues/{id}/join [post]
func (h *Handler) PostJoinLeague(w http.ResponseWriter, r *http.Request) {
	id, ok := leagueIDParam(w, r)
	if !ok {
		return
	}
	var req JoinLeagueRequest
	if r.ContentLength != 0 && !decodeBody(w, r, &req) {
		return
	}

	acct, err := h.leagues.Join(r.Context(), userFrom(r).ID, id, req.JoinCode)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidateLeaderboards(id)
	respond.WriteJSONObject(w, http.StatusOK, acct)
}

// PostJoinByCode joins the private league a code belongs to.
// @Summary Join a league by code
// @Tags leagues
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param body body JoinLeagueRequest true "Join code"
// @Success 200 {object} map[string]interface{}
// @Failure 403 {object} respond.ErrorResponse
// @Router /leagues/join [post]
func (h *Handler) PostJoinByCode(w http.ResponseWriter, r *http.Request) {
	var req JoinLeagueRequest
	if !decodeBody(w, r, &req) {
		return
	}
	l, acct, err := h.leagues.JoinByCode(r.Context(), userFrom(r).ID, req.JoinCode)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.invalidateLeaderboards(l.ID)
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"league":  l,
		"account": acct,
	})
}

// --------------------------------------------------------------------------
// Current user
// --------------------------------------------------------------------------

// GetMyLeagues lists the caller's leagues.
// @Summary List my leagues
// @Tags users
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Success 200 {object} map[string]interface{}
// @Router /users/me/leagues [get]
func (h *Handler) GetMyLeagues(w http.ResponseWriter, r *http.Request) {
	u := userFrom(r)
	leagues, err := h.leagues.UserLeagues(r.Context(), u.ID)
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	respond.WriteJSONObject(w, http.StatusOK, map[string]interface{}{
		"user":    u,
		"leagues": leagues,
	})
}

// UpdateUserRequest lists the updatable user fields. Absent fields are kept.
type UpdateUserRequest struct {
	Username      *string `json:"username,omitempty"`
	FavouriteTeam *string `json:"favourite_team,omitempty"`
}

func (req UpdateUserRequest) fields() ([]store.UserField, error) {
	var fields []store.UserField
	if req.Username != nil {
		name := strings.TrimSpace(*req.Username)
		if name == "" || len(name) > 50 {
			return nil, fmt.Errorf("username must be 1-50 characters")
		}
		fields = append(fields, store.SetUsername(name))
	}
	if req.FavouriteTeam != nil {
		fields = append(fields, store.SetFavouriteTeam(strings.TrimSpace(*req.FavouriteTeam)))
	}
	return fields, nil
}

// PatchMe updates the caller's profile.
// @Summary Update my profile
// @Description Only username and favourite_team can be changed.
// @Tags users
// @Accept json
// @Produce json
// @Param X-User-ID header string true "User ID"
// @Param body body UpdateUserRequest true "Fields"
// @Success 200 {object} store.User
// @Failure 400 {object} respond.ErrorResponse
// @Router /users/me [patch]
func (h *Handler) PatchMe(w http.ResponseWriter, r *http.Request) {
	var req UpdateUserRequest
	if !decodeBody(w, r, &req) {
		return
	}
	fields, err := req.fields()
	if err != nil {
		respond.WriteError(w, http.StatusBadRequest, "INVALID_FIELD", err.Error())
		return
	}

	u := userFrom(r)
	if len(fields) == 0 {
		respond.WriteJSONObject(w, http.StatusOK, u)
		return
	}
	err = h.store.WithTx(r.Context(), func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = tx.UpdateUser(ctx, u.ID, fields...)
		return err
	})
	if err != nil {
		h.writeErr(w, r, err)
		return
	}
	h.cache.DeletePrefix(cache.LeaderboardPrefix)
	respond.WriteJSONObject(w, http.StatusOK, u)
}
