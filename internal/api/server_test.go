package api

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/api/handler"
	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/store/memstore"
	"github.com/albapepper/scoracle-league/internal/wager"
)

type mockForecaster struct {
	mock.Mock
}

func (m *mockForecaster) ForecastMatch(ctx context.Context, leagueCode string, season int, matchID int64) (forecast.MatchForecast, error) {
	args := m.Called(ctx, leagueCode, season, matchID)
	return args.Get(0).(forecast.MatchForecast), args.Error(1)
}

func (m *mockForecaster) ProjectPlayer(ctx context.Context, leagueCode string, season int, matchID, playerID int64) (forecast.PlayerProjection, provider.Match, error) {
	args := m.Called(ctx, leagueCode, season, matchID, playerID)
	return args.Get(0).(forecast.PlayerProjection), args.Get(1).(provider.Match), args.Error(2)
}

func (m *mockForecaster) LikelyPlayers(ctx context.Context, leagueCode string, season int, matchID int64) (forecast.MatchPlayers, error) {
	args := m.Called(ctx, leagueCode, season, matchID)
	return args.Get(0).(forecast.MatchPlayers), args.Error(1)
}

type testServer struct {
	srv     *httptest.Server
	fc      *mockForecaster
	store   store.Store
	cache   *cache.Cache
	metrics *metrics.Manager
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	st := memstore.New()
	fc := &mockForecaster{}
	m := metrics.NewManager()
	c := cache.New(true)
	t.Cleanup(c.Close)

	cfg := &config.Config{CORSAllowOrigins: []string{"http://localhost:5173"}}
	router := NewRouter(handler.Deps{
		Store:      st,
		Cache:      c,
		Forecaster: fc,
		Wagers:     wager.NewService(st, fc, nil, wager.WithMetrics(m)),
		Leagues:    league.NewManager(st, nil, league.WithMetrics(m)),
	}, m, cfg)

	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{srv: srv, fc: fc, store: st, cache: c, metrics: m}
}

func (ts *testServer) do(t *testing.T, method, path, user, body string) (*http.Response, map[string]any) {
	t.Helper()
	req, err := http.NewRequest(method, ts.srv.URL+path, strings.NewReader(body))
	require.NoError(t, err)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if user != "" {
		req.Header.Set(handler.HeaderUserID, user)
		req.Header.Set(handler.HeaderUsername, user+"-name")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 && strings.HasPrefix(resp.Header.Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp, out
}

func upcoming(matchID int64) forecast.MatchForecast {
	return forecast.MatchForecast{
		MatchID:      matchID,
		LeagueCode:   "EPL",
		Season:       2025,
		Kickoff:      time.Now().Add(48 * time.Hour),
		HomeExpected: 1.8,
		AwayExpected: 1.1,
		Outcomes:     forecast.Probabilities{HomeWin: 0.5, Draw: 0.2, AwayWin: 0.3},
	}
}

func errorCode(body map[string]any) string {
	e, _ := body["error"].(map[string]any)
	code, _ := e["code"].(string)
	return code
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t)

	for _, path := range []string{"/", "/health/", "/health/db", "/health/cache"} {
		resp, body := ts.do(t, http.MethodGet, path, "", "")
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
		assert.NotEmpty(t, body, path)
	}
}

func TestForecast_CachedWithETag(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(100)).Return(upcoming(100), nil).Once()

	resp, body := ts.do(t, http.MethodGet, "/api/v1/forecast/EPL/100", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	assert.Equal(t, 1.8, body["home_expected"])
	etag := resp.Header.Get("ETag")
	require.NotEmpty(t, etag)

	resp, _ = ts.do(t, http.MethodGet, "/api/v1/forecast/EPL/100", "", "")
	assert.Equal(t, "HIT", resp.Header.Get("X-Cache"))

	req, _ := http.NewRequest(http.MethodGet, ts.srv.URL+"/api/v1/forecast/EPL/100", nil)
	req.Header.Set("If-None-Match", etag)
	nm, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	nm.Body.Close()
	assert.Equal(t, http.StatusNotModified, nm.StatusCode)

	ts.fc.AssertExpectations(t)
}

func TestForecast_BadInput(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(404)).
		Return(forecast.MatchForecast{}, provider.ErrDataUnavailable)

	cases := []struct {
		path   string
		status int
		code   string
	}{
		{"/api/v1/forecast/MLS/100", http.StatusBadRequest, "INVALID_LEAGUE"},
		{"/api/v1/forecast/EPL/abc", http.StatusBadRequest, "INVALID_ID"},
		{"/api/v1/forecast/EPL/100?season=1990", http.StatusBadRequest, "INVALID_SEASON"},
		{"/api/v1/forecast/EPL/404", http.StatusNotFound, "DATA_UNAVAILABLE"},
	}
	for _, tc := range cases {
		resp, body := ts.do(t, http.MethodGet, tc.path, "", "")
		assert.Equal(t, tc.status, resp.StatusCode, tc.path)
		assert.Equal(t, tc.code, errorCode(body), tc.path)
	}
}

func TestQuotes(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(100)).Return(upcoming(100), nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/quotes/exact", "",
		`{"league_code":"EPL","match_id":100,"home":2,"away":1}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	exact := body["exact"].(map[string]any)
	assert.Equal(t, 1.15, exact["multiplier"])
	assert.Equal(t, float64(115), exact["exact_score_payout"], "priced on 100 base points")

	resp, body = ts.do(t, http.MethodPost, "/api/v1/quotes/exact", "",
		`{"league_code":"EPL","match_id":100,"kind":"outcome","outcome":"draw","stake":200}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	outcome := body["outcome"].(map[string]any)
	assert.Equal(t, 2.2, outcome["multiplier"])
	assert.Equal(t, float64(440), outcome["payout"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/quotes/exact", "",
		`{"league_code":"EPL","match_id":100,"home":2,"away":1,"stake":5}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_STAKE", errorCode(body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/quotes/exact", "", `{"league_code":"EPL","match_id":100,"bogus":1}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_BODY", errorCode(body))
}

func TestPlayerQuote(t *testing.T) {
	ts := newTestServer(t)
	proj := forecast.PlayerProjection{PlayerID: 10, Name: "Saka", ExpectedGoals: 0.4, ExpectedShots: 2.5}
	ts.fc.On("ProjectPlayer", mock.Anything, "EPL", 2025, int64(100), int64(10)).Return(proj, provider.Match{ID: 100}, nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/quotes/player", "",
		`{"league_code":"EPL","match_id":100,"player_id":10,"predicted_goals":0,"predicted_shots":2}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(100), body["stake"])
	quote := body["quote"].(map[string]any)
	assert.GreaterOrEqual(t, quote["multiplier"].(float64), 1.0)
}

func TestWagerFlow(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(100)).Return(upcoming(100), nil)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/wagers", "", `{}`)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Equal(t, "MISSING_USER", errorCode(body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_code":"EPL","match_id":100,"stake":100,"prediction":{"kind":"exact","home":2,"away":1}}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	assert.Equal(t, float64(900), body["balance"])
	w := body["wager"].(map[string]any)
	assert.Equal(t, float64(115), w["potential_payout"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/leagues/1/balance", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, float64(900), body["balance"])

	resp, body = ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_code":"EPL","match_id":100,"stake":501,"prediction":{"kind":"exact","home":2,"away":1}}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_STAKE", errorCode(body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_id":99,"league_code":"EPL","match_id":100,"stake":50,"prediction":{"kind":"outcome","outcome":"home"}}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "NOT_MEMBER", errorCode(body))

	resp, body = ts.do(t, http.MethodGet, "/api/v1/leagues/1/wagers", "u1", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["wagers"], 1)

	_, metricsBody := ts.do(t, http.MethodGet, "/metrics", "", "")
	assert.Nil(t, metricsBody, "exposition format is text")
	mresp, err := http.Get(ts.srv.URL + "/metrics")
	require.NoError(t, err)
	raw, _ := io.ReadAll(mresp.Body)
	mresp.Body.Close()
	assert.Contains(t, string(raw), `scoracle_wagers_placed_total{kind="exact"} 1`)
	assert.Contains(t, string(raw), `route="/api/v1/wagers"`)
}

func TestWager_InsufficientFundsAndClosed(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(100)).Return(upcoming(100), nil)
	closed := upcoming(200)
	closed.Kickoff = time.Now().Add(-time.Hour)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(200)).Return(closed, nil)

	// Register, then drain the global account.
	ts.do(t, http.MethodGet, "/api/v1/users/me/leagues", "u1", "")
	require.NoError(t, ts.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, "u1", config.GlobalLeagueID, 40)
	}))

	resp, body := ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_code":"EPL","match_id":100,"stake":50,"prediction":{"kind":"exact","home":1,"away":1}}`)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)
	assert.Equal(t, "INSUFFICIENT_FUNDS", errorCode(body))

	resp, body = ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_code":"EPL","match_id":200,"stake":10,"prediction":{"kind":"exact","home":1,"away":1}}`)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)
	assert.Equal(t, "MATCH_CLOSED", errorCode(body))
}

func TestLeagues(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPost, "/api/v1/leagues", "alice",
		`{"name":"Sunday Club","type":"seasonal","privacy":"private"}`)
	require.Equal(t, http.StatusCreated, resp.StatusCode, body)
	id := int64(body["id"].(float64))
	code := body["join_code"].(string)
	assert.Len(t, code, 8)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/leagues/"+itoa(id)+"/join", "bob", `{"join_code":"WRONG"}`)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)
	assert.Equal(t, "INVALID_JOIN_CODE", errorCode(body))

	resp, _ = ts.do(t, http.MethodPost, "/api/v1/leagues/"+itoa(id)+"/join", "bob", `{"join_code":"`+strings.ToLower(code)+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	resp, body = ts.do(t, http.MethodPost, "/api/v1/leagues/join", "carol", `{"join_code":"`+code+`"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.NotNil(t, body["account"])

	resp, body = ts.do(t, http.MethodGet, "/api/v1/leagues/"+itoa(id)+"/leaderboard", "", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	rows := body["rows"].([]any)
	require.Len(t, rows, 3)
	first := rows[0].(map[string]any)
	assert.Equal(t, float64(1), first["rank"])
	assert.Equal(t, float64(0), first["trophies"])
	lg := body["league"].(map[string]any)
	assert.NotContains(t, lg, "join_code")

	resp, body = ts.do(t, http.MethodGet, "/api/v1/users/me/leagues", "bob", "")
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Len(t, body["leagues"], 2, "global + Sunday Club")

	resp, body = ts.do(t, http.MethodPost, "/api/v1/leagues", "alice", `{"name":"","type":"classic"}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_LEAGUE", errorCode(body))

	resp, body = ts.do(t, http.MethodGet, "/api/v1/leagues/999/leaderboard", "", "")
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.Equal(t, "NOT_FOUND", errorCode(body))
}

func TestLeaderboard_InvalidatedAfterWager(t *testing.T) {
	ts := newTestServer(t)
	ts.fc.On("ForecastMatch", mock.Anything, "EPL", 2025, int64(100)).Return(upcoming(100), nil)
	ts.do(t, http.MethodGet, "/api/v1/users/me/leagues", "u1", "")

	_, body := ts.do(t, http.MethodGet, "/api/v1/leagues/1/leaderboard", "", "")
	row := body["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(config.InitialBalance), row["balance"])
	assert.NotContains(t, row, "trophies", "classic leagues omit trophies")

	ts.do(t, http.MethodPost, "/api/v1/wagers", "u1",
		`{"league_code":"EPL","match_id":100,"stake":100,"prediction":{"kind":"exact","home":2,"away":1}}`)

	resp, body := ts.do(t, http.MethodGet, "/api/v1/leagues/1/leaderboard", "", "")
	assert.Equal(t, "MISS", resp.Header.Get("X-Cache"))
	row = body["rows"].([]any)[0].(map[string]any)
	assert.Equal(t, float64(900), row["balance"])
}

func TestPatchMe(t *testing.T) {
	ts := newTestServer(t)

	resp, body := ts.do(t, http.MethodPatch, "/api/v1/users/me", "u1", `{"username":"Gaffer","favourite_team":"Arsenal"}`)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Gaffer", body["username"])
	assert.Equal(t, "Arsenal", body["favourite_team"])

	resp, body = ts.do(t, http.MethodPatch, "/api/v1/users/me", "u1", `{"username":"  "}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "INVALID_FIELD", errorCode(body))

	resp, body = ts.do(t, http.MethodPatch, "/api/v1/users/me", "u1", `{"balance":1000000}`)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode, "only closed user fields are updatable")
	assert.Equal(t, "INVALID_BODY", errorCode(body))
}

func TestRateLimit(t *testing.T) {
	h := RateLimitMiddleware(2, time.Minute)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	}))
	call := func(user string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.0.0.1:5555"
		if user != "" {
			req.Header.Set(handler.HeaderUserID, user)
		}
		h.ServeHTTP(rec, req)
		return rec
	}

	statuses := make([]int, 0, 3)
	var last *httptest.ResponseRecorder
	for i := 0; i < 3; i++ {
		last = call("")
		statuses = append(statuses, last.Code)
	}
	assert.Equal(t, []int{http.StatusNoContent, http.StatusTooManyRequests, http.StatusTooManyRequests}, statuses)
	assert.Equal(t, "30", last.Header().Get("Retry-After"))

	// Identified users behind the same address get their own bucket.
	assert.Equal(t, http.StatusNoContent, call("alice").Code)
	assert.Equal(t, http.StatusNoContent, call("bob").Code)
	assert.Equal(t, http.StatusTooManyRequests, call("alice").Code)
}

func itoa(n int64) string {
	b, _ := json.Marshal(n)
	return string(b)
}
