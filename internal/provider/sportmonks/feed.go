package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/provider"
)

// Feed fetches and normalizes football data from SportMonks.
type Feed struct {
	client *Client
	logger *slog.Logger

	mu      sync.Mutex
	seasons map[seasonKey]int
}

type seasonKey struct {
	providerLeague int
	year           int
}

var _ provider.Feed = (*Feed)(nil)

// NewFeed wraps a client as a provider.Feed.
func NewFeed(client *Client, logger *slog.Logger) *Feed {
	if logger == nil {
		logger = slog.Default()
	}
	return &Feed{
		client:  client,
		logger:  logger,
		seasons: make(map[seasonKey]int),
	}
}

func unavailable(op string, err error) error {
	if err == nil {
		return fmt.Errorf("%s: %w", op, provider.ErrDataUnavailable)
	}
	return fmt.Errorf("%s: %w: %w", op, provider.ErrDataUnavailable, err)
}

// --------------------------------------------------------------------------
// Code override maps: SportMonks codes that don't match our canonical keys
// after simple hyphen-to-underscore replacement.
// --------------------------------------------------------------------------

var playerCodeOverrides = map[string]string{
	"appearances":     "games",
	"minutes-played":  "minutes",
	"shots-total":     "shots",
	"shots-on-target": "shots_on_target",
	"expected-goals":  "xg",
}

var standingCodeOverrides = map[string]string{
	"overall-matches-played": "played",
	"overall-goals-for":      "goals_for",
	"overall-goals-against":  "goals_against",
}

func normalizeCode(code string, overrides map[string]string) string {
	if mapped, ok := overrides[code]; ok {
		return mapped
	}
	return strings.ReplaceAll(code, "-", "_")
}

// smDetail is a typed stat value. Season statistics carry the value inline,
// lineup details nest it under data.
type smDetail struct {
	Type  *struct{ Code string } `json:"type"`
	Value provider.StatValue     `json:"value"`
	Data  *struct {
		Value provider.StatValue `json:"value"`
	} `json:"data"`
}

func detailStats(details []smDetail, overrides map[string]string) map[string]float64 {
	stats := make(map[string]float64, len(details))
	for _, d := range details {
		if d.Type == nil || d.Type.Code == "" {
			continue
		}
		v := d.Value
		if !v.Valid && d.Data != nil {
			v = d.Data.Value
		}
		if v.Valid {
			stats[normalizeCode(d.Type.Code, overrides)] = v.Value
		}
	}
	return stats
}

// --------------------------------------------------------------------------
// Seasons
// --------------------------------------------------------------------------

type smSeason struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// seasonID maps a league code and start year ("2025" for 2025/2026) to the
// SportMonks season ID. Results are memoized for the life of the Feed.
func (f *Feed) seasonID(ctx context.Context, leagueCode string, season int) (int, error) {
	lc, ok := config.LookupLeague(leagueCode)
	if !ok {
		return 0, unavailable("resolve season", fmt.Errorf("unknown league code %q", leagueCode))
	}
	key := seasonKey{providerLeague: lc.ProviderID, year: season}

	f.mu.Lock()
	id, ok := f.seasons[key]
	f.mu.Unlock()
	if ok {
		return id, nil
	}

	resp, err := f.client.get(ctx, fmt.Sprintf("/leagues/%d", lc.ProviderID), url.Values{
		"include": {"seasons"},
	}, cache.TTLSquad)
	if err != nil {
		return 0, unavailable("fetch league seasons", err)
	}

	var leagueData struct {
		Seasons []smSeason `json:"seasons"`
	}
	if err := json.Unmarshal(resp.Data, &leagueData); err != nil {
		return 0, unavailable("decode league seasons", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range leagueData.Seasons {
		startYear, err := strconv.Atoi(strings.TrimSpace(strings.Split(s.Name, "/")[0]))
		if err != nil {
			continue
		}
		k := seasonKey{providerLeague: lc.ProviderID, year: startYear}
		if _, exists := f.seasons[k]; !exists {
			f.seasons[k] = s.ID
		}
	}
	id, ok = f.seasons[key]
	if !ok {
		return 0, unavailable("resolve season", fmt.Errorf("no %s season starting %d", leagueCode, season))
	}
	return id, nil
}

// --------------------------------------------------------------------------
// Fixtures and results
// --------------------------------------------------------------------------

// xgTypeID is the SportMonks type for team expected goals.
const xgTypeID = 5304

var finishedStates = map[string]bool{
	"FT":      true,
	"AET":     true,
	"FT_PEN":  true,
	"AWARDED": true,
}

type smFixtureRaw struct {
	ID           int64  `json:"id"`
	StartingAt   string `json:"starting_at"`
	Timestamp    int64  `json:"starting_at_timestamp"`
	Participants []struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
		Meta struct {
			Location string `json:"location"`
		} `json:"meta"`
	} `json:"participants"`
	Scores []struct {
		ParticipantID int64  `json:"participant_id"`
		Description   string `json:"description"`
		Score         struct {
			Goals       int    `json:"goals"`
			Participant string `json:"participant"`
		} `json:"score"`
	} `json:"scores"`
	XGFixture []struct {
		TypeID   int    `json:"type_id"`
		Location string `json:"location"`
		Data     struct {
			Value float64 `json:"value"`
		} `json:"data"`
	} `json:"xgfixture"`
	State *struct {
		State         string `json:"state"`
		DeveloperName string `json:"developer_name"`
	} `json:"state"`
}

func normalizeFixture(raw smFixtureRaw, leagueCode string, season int) provider.Match {
	m := provider.Match{ID: raw.ID, LeagueCode: leagueCode, Season: season}

	switch {
	case raw.Timestamp > 0:
		m.Kickoff = time.Unix(raw.Timestamp, 0).UTC()
	case raw.StartingAt != "":
		if t, err := time.Parse("2006-01-02 15:04:05", raw.StartingAt); err == nil {
			m.Kickoff = t.UTC()
		}
	}

	for _, p := range raw.Participants {
		ref := provider.TeamRef{ID: p.ID, Name: p.Name}
		if p.Meta.Location == "away" {
			m.Away = ref
		} else {
			m.Home = ref
		}
	}

	if raw.State != nil {
		state := raw.State.DeveloperName
		if state == "" {
			state = raw.State.State
		}
		m.Finished = finishedStates[state]
	}

	for _, s := range raw.Scores {
		if s.Description != "CURRENT" {
			continue
		}
		goals := s.Score.Goals
		if s.Score.Participant == "away" {
			m.AwayGoals = &goals
		} else {
			m.HomeGoals = &goals
		}
	}

	for _, x := range raw.XGFixture {
		if x.TypeID != xgTypeID {
			continue
		}
		v := x.Data.Value
		if x.Location == "away" {
			m.AwayXG = &v
		} else {
			m.HomeXG = &v
		}
	}

	if m.Finished && (m.HomeGoals == nil || m.AwayGoals == nil) {
		m.Finished = false
	}
	return m
}

// seasonMatches returns every fixture of a league-season, finished or not.
func (f *Feed) seasonMatches(ctx context.Context, leagueCode string, season int) ([]provider.Match, error) {
	sid, err := f.seasonID(ctx, leagueCode, season)
	if err != nil {
		return nil, err
	}

	rawItems, err := f.client.getPaginated(ctx, "/fixtures", url.Values{
		"filters": {fmt.Sprintf("fixtureSeasons:%d", sid)},
		"include": {"participants;scores;xGFixture;state"},
	}, 50, cache.TTLFeed)
	if err != nil {
		return nil, unavailable("fetch fixtures", err)
	}

	matches := make([]provider.Match, 0, len(rawItems))
	for _, raw := range rawItems {
		var fx smFixtureRaw
		if err := json.Unmarshal(raw, &fx); err != nil {
			f.logger.Warn("decode fixture", "error", err)
			continue
		}
		matches = append(matches, normalizeFixture(fx, leagueCode, season))
	}
	return matches, nil
}

func (f *Feed) split(ctx context.Context, leagueCode string, season int, keep func(provider.Match) bool, finished bool) ([]provider.Match, error) {
	all, err := f.seasonMatches(ctx, leagueCode, season)
	if err != nil {
		return nil, err
	}
	out := make([]provider.Match, 0, len(all))
	for _, m := range all {
		if m.Finished == finished && keep(m) {
			out = append(out, m)
		}
	}
	if len(out) == 0 {
		return nil, unavailable("filter matches", nil)
	}
	if finished {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Kickoff.After(out[j].Kickoff) })
	} else {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Kickoff.Before(out[j].Kickoff) })
	}
	return out, nil
}

func anyMatch(provider.Match) bool { return true }

func involves(teamID int64) func(provider.Match) bool {
	return func(m provider.Match) bool { return m.Home.ID == teamID || m.Away.ID == teamID }
}

// LeagueFixtures returns unfinished matches, soonest first.
func (f *Feed) LeagueFixtures(ctx context.Context, leagueCode string, season int) ([]provider.Match, error) {
	return f.split(ctx, leagueCode, season, anyMatch, false)
}

// LeagueResults returns finished matches, most recent first.
func (f *Feed) LeagueResults(ctx context.Context, leagueCode string, season int) ([]provider.Match, error) {
	return f.split(ctx, leagueCode, season, anyMatch, true)
}

func (f *Feed) TeamResults(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.Match, error) {
	return f.split(ctx, leagueCode, season, involves(teamID), true)
}

func (f *Feed) TeamFixtures(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.Match, error) {
	return f.split(ctx, leagueCode, season, involves(teamID), false)
}

// --------------------------------------------------------------------------
// League table
// --------------------------------------------------------------------------

type smStandingRaw struct {
	ParticipantID int64 `json:"participant_id"`
	Participant   *struct {
		ID   int64  `json:"id"`
		Name string `json:"name"`
	} `json:"participant"`
	Points   *int       `json:"points"`
	Position *int       `json:"position"`
	Details  []smDetail `json:"details"`
}

// LeagueTable fetches standings ordered by position.
func (f *Feed) LeagueTable(ctx context.Context, leagueCode string, season int) ([]provider.Standing, error) {
	sid, err := f.seasonID(ctx, leagueCode, season)
	if err != nil {
		return nil, err
	}

	resp, err := f.client.get(ctx,
		fmt.Sprintf("/standings/seasons/%d", sid),
		url.Values{"include": {"participant;details.type"}}, cache.TTLFeed)
	if err != nil {
		return nil, unavailable("fetch standings", err)
	}

	var raw []smStandingRaw
	if err := json.Unmarshal(resp.Data, &raw); err != nil {
		return nil, unavailable("decode standings", err)
	}
	if len(raw) == 0 {
		return nil, unavailable("fetch standings", nil)
	}

	table := make([]provider.Standing, 0, len(raw))
	for _, r := range raw {
		table = append(table, normalizeStanding(r))
	}
	sort.SliceStable(table, func(i, j int) bool { return table[i].Position < table[j].Position })
	return table, nil
}

func normalizeStanding(raw smStandingRaw) provider.Standing {
	stats := detailStats(raw.Details, standingCodeOverrides)
	s := provider.Standing{
		TeamID:       raw.ParticipantID,
		Played:       int(stats["played"]),
		GoalsFor:     int(stats["goals_for"]),
		GoalsAgainst: int(stats["goals_against"]),
	}
	if raw.Participant != nil {
		s.TeamName = raw.Participant.Name
		if s.TeamID == 0 {
			s.TeamID = raw.Participant.ID
		}
	}
	if raw.Points != nil {
		s.Points = *raw.Points
	}
	if raw.Position != nil {
		s.Position = *raw.Position
	}
	return s
}
