package sportmonks

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/provider"
)

const seasonsBody = `{"data":{"id":8,"seasons":[{"id":25583,"name":"2025/2026"},{"id":23614,"name":"2024/2025"}]}}`

const fixturesBody = `{"data":[
 {"id":100,"starting_at_timestamp":1755356400,
  "participants":[{"id":1,"name":"Arsenal","meta":{"location":"home"}},{"id":2,"name":"Chelsea","meta":{"location":"away"}}],
  "scores":[
   {"participant_id":1,"description":"1ST_HALF","score":{"goals":1,"participant":"home"}},
   {"participant_id":1,"description":"CURRENT","score":{"goals":2,"participant":"home"}},
   {"participant_id":2,"description":"CURRENT","score":{"goals":1,"participant":"away"}}],
  "xgfixture":[
   {"type_id":5304,"location":"home","data":{"value":1.84}},
   {"type_id":5304,"location":"away","data":{"value":0.91}},
   {"type_id":7939,"location":"home","data":{"value":0.3}}],
  "state":{"state":"FT","developer_name":"FT"}},
 {"id":101,"starting_at_timestamp":1755961200,
  "participants":[{"id":2,"name":"Chelsea","meta":{"location":"home"}},{"id":3,"name":"Spurs","meta":{"location":"away"}}],
  "scores":[],
  "state":{"state":"NS","developer_name":"NS"}},
 {"id":102,"starting_at_timestamp":1755874800,
  "participants":[{"id":3,"name":"Spurs","meta":{"location":"home"}},{"id":1,"name":"Arsenal","meta":{"location":"away"}}],
  "scores":[
   {"participant_id":3,"description":"CURRENT","score":{"goals":0,"participant":"home"}},
   {"participant_id":1,"description":"CURRENT","score":{"goals":0,"participant":"away"}}],
  "state":{"state":"FT","developer_name":"FT"}}
],"pagination":{"has_more":false}}`

const standingsBody = `{"data":[
 {"participant_id":2,"position":2,"points":30,"participant":{"id":2,"name":"Chelsea"},
  "details":[{"type":{"code":"overall-matches-played"},"value":14},{"type":{"code":"overall-goals-for"},"value":25}]},
 {"participant_id":1,"position":1,"points":33,"participant":{"id":1,"name":"Arsenal"},
  "details":[{"type":{"code":"overall-matches-played"},"value":14},{"type":{"code":"overall-goals-against"},"value":"8"}]}
]}`

const lineupsBody = `{"data":{"id":100,"lineups":[
 {"player_id":10,"team_id":1,"player_name":"Saka","position_id":27,"details":[
   {"type":{"code":"minutes-played"},"data":{"value":90}},
   {"type":{"code":"goals"},"data":{"value":1}},
   {"type":{"code":"shots-total"},"data":{"value":4}},
   {"type":{"code":"shots-on-target"},"data":{"value":2}}]},
 {"player_id":11,"team_id":1,"player_name":"Bench","details":[]},
 {"player_id":20,"team_id":2,"player_name":"Palmer","position_id":26,"details":[
   {"type":{"code":"minutes-played"},"data":{"value":78}}]}
]}}`

const squadBody = `{"data":[{"player_id":10},{"id":12},{"player_id":0}]}`

const playerBody = `{"data":{"id":10,"display_name":"Bukayo Saka","position_id":27,"statistics":[
 {"season":{"league":{"id":82}},"details":[{"type":{"code":"goals"},"value":{"total":99}}]},
 {"season":{"league":{"id":8}},"details":[
   {"type":{"code":"appearances"},"value":{"total":14}},
   {"type":{"code":"minutes-played"},"value":{"total":1180}},
   {"type":{"code":"goals"},"value":{"total":6,"goals":5,"penalties":1}},
   {"type":{"code":"shots-total"},"value":{"total":38}},
   {"type":{"code":"expected-goals"},"value":{"total":5.2}}]}
]}}`

func newTestFeed(t *testing.T, ch *cache.Cache) (*Feed, *int32) {
	t.Helper()
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "secret", r.URL.Query().Get("api_token"))
		var body string
		switch r.URL.Path {
		case "/leagues/8":
			body = seasonsBody
		case "/fixtures":
			assert.Equal(t, "fixtureSeasons:25583", r.URL.Query().Get("filters"))
			body = fixturesBody
		case "/standings/seasons/25583":
			body = standingsBody
		case "/fixtures/100":
			body = lineupsBody
		case "/squads/seasons/25583/teams/1":
			body = squadBody
		case "/players/10":
			body = playerBody
		default:
			http.Error(w, `{"message":"not found"}`, http.StatusNotFound)
			return
		}
		fmt.Fprint(w, body)
	}))
	t.Cleanup(srv.Close)

	client := NewClient("secret", 6000, nil, WithBaseURL(srv.URL), WithCache(ch))
	return NewFeed(client, nil), &calls
}

func TestFeed_ResultsAndFixtures(t *testing.T) {
	feed, _ := newTestFeed(t, nil)
	ctx := context.Background()

	results, err := feed.LeagueResults(ctx, "EPL", 2025)
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, int64(102), results[0].ID, "most recent first")

	m := results[1]
	assert.Equal(t, "Arsenal", m.Home.Name)
	assert.Equal(t, int64(2), m.Away.ID)
	require.NotNil(t, m.HomeGoals)
	assert.Equal(t, 2, *m.HomeGoals)
	assert.Equal(t, 1, *m.AwayGoals)
	assert.InDelta(t, 1.84, *m.HomeXG, 1e-9)
	assert.InDelta(t, 0.91, *m.AwayXG, 1e-9)
	assert.True(t, m.Finished)

	fixtures, err := feed.LeagueFixtures(ctx, "EPL", 2025)
	require.NoError(t, err)
	require.Len(t, fixtures, 1)
	assert.Equal(t, int64(101), fixtures[0].ID)
	assert.False(t, fixtures[0].Finished)

	teamResults, err := feed.TeamResults(ctx, "EPL", 2025, 2)
	require.NoError(t, err)
	require.Len(t, teamResults, 1)
	assert.Equal(t, int64(100), teamResults[0].ID)

	_, err = feed.TeamFixtures(ctx, "EPL", 2025, 1)
	assert.ErrorIs(t, err, provider.ErrDataUnavailable)
}

func TestFeed_UnknownLeagueAndSeason(t *testing.T) {
	feed, _ := newTestFeed(t, nil)
	ctx := context.Background()

	_, err := feed.LeagueResults(ctx, "MLS", 2025)
	assert.ErrorIs(t, err, provider.ErrDataUnavailable)

	_, err = feed.LeagueResults(ctx, "EPL", 1999)
	assert.ErrorIs(t, err, provider.ErrDataUnavailable)

	_, err = feed.LeagueTable(ctx, "Serie_A", 2025)
	assert.ErrorIs(t, err, provider.ErrDataUnavailable, "http 404 degrades")
}

func TestFeed_LeagueTable(t *testing.T) {
	feed, _ := newTestFeed(t, nil)

	table, err := feed.LeagueTable(context.Background(), "EPL", 2025)
	require.NoError(t, err)
	require.Len(t, table, 2)
	assert.Equal(t, "Arsenal", table[0].TeamName)
	assert.Equal(t, 1, table[0].Position)
	assert.Equal(t, 8, table[0].GoalsAgainst)
	assert.Equal(t, 14, table[1].Played)
	assert.Equal(t, 25, table[1].GoalsFor)
}

func TestFeed_MatchPlayersAndShots(t *testing.T) {
	feed, _ := newTestFeed(t, nil)
	ctx := context.Background()

	lines, err := feed.MatchPlayers(ctx, 100)
	require.NoError(t, err)
	require.Len(t, lines, 2, "unused substitutes dropped")
	assert.Equal(t, provider.PlayerLine{
		PlayerID: 10, TeamID: 1, Name: "Saka", Position: "Attacker",
		Minutes: 90, Goals: 1, Shots: 4,
	}, lines[0])

	shots, err := feed.MatchShots(ctx, 100)
	require.NoError(t, err)
	require.Len(t, shots, 1)
	assert.Equal(t, provider.ShotSummary{PlayerID: 10, TeamID: 1, Total: 4, OnTarget: 2}, shots[0])

	_, err = feed.MatchPlayers(ctx, 555)
	assert.ErrorIs(t, err, provider.ErrDataUnavailable)
}

func TestFeed_TeamPlayers(t *testing.T) {
	feed, _ := newTestFeed(t, nil)

	players, err := feed.TeamPlayers(context.Background(), "EPL", 2025, 1)
	require.NoError(t, err)
	require.Len(t, players, 1, "player 12 fetch fails and is skipped")

	p := players[0]
	assert.Equal(t, "Bukayo Saka", p.Name)
	assert.Equal(t, "Attacker", p.Position)
	assert.Equal(t, 14, p.Games)
	assert.Equal(t, 1180, p.Minutes)
	assert.Equal(t, 6, p.Goals)
	assert.Equal(t, 38, p.Shots)
	assert.InDelta(t, 5.2, p.XG, 1e-9)
}

func TestFeed_CachesBodies(t *testing.T) {
	ch := cache.New(true)
	defer ch.Close()
	feed, calls := newTestFeed(t, ch)
	ctx := context.Background()

	_, err := feed.LeagueResults(ctx, "EPL", 2025)
	require.NoError(t, err)
	first := atomic.LoadInt32(calls)
	assert.Equal(t, int32(2), first, "seasons + fixtures")

	_, err = feed.LeagueFixtures(ctx, "EPL", 2025)
	require.NoError(t, err)
	assert.Equal(t, first, atomic.LoadInt32(calls))
}

func TestEndpointLabel(t *testing.T) {
	assert.Equal(t, "/fixtures/:id", endpointLabel("/fixtures/19134"))
	assert.Equal(t, "/squads/seasons/:id/teams/:id", endpointLabel("/squads/seasons/25583/teams/9"))
	assert.Equal(t, "/fixtures", endpointLabel("/fixtures"))
}
