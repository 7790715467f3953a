// Package provider defines canonical football data types that the statistics
// feed normalizes into, and the Feed contract the forecasting and settlement
// layers consume.
//
// Adding a new provider means implementing Feed. The models and the ledger
// never change.
package provider

import (
	"context"
	"errors"
	"time"
)

// ErrDataUnavailable is returned when the feed has no matching fixture,
// result, or stat line. Transport failures and empty responses degrade to it.
var ErrDataUnavailable = errors.New("data unavailable")

// Outcome is the result bucket of a match.
type Outcome string

const (
	OutcomeHome Outcome = "home"
	OutcomeDraw Outcome = "draw"
	OutcomeAway Outcome = "away"
)

// ResultOf derives the outcome of a scoreline.
func ResultOf(homeGoals, awayGoals int) Outcome {
	switch {
	case homeGoals > awayGoals:
		return OutcomeHome
	case homeGoals < awayGoals:
		return OutcomeAway
	default:
		return OutcomeDraw
	}
}

// Valid reports whether o is one of the three buckets.
func (o Outcome) Valid() bool {
	return o == OutcomeHome || o == OutcomeDraw || o == OutcomeAway
}

// TeamRef identifies a team within a league-season.
type TeamRef struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// Match is a fixture or result. Goals and xG are nil until the feed has them.
type Match struct {
	ID         int64     `json:"id"`
	LeagueCode string    `json:"league_code"`
	Season     int       `json:"season"`
	Kickoff    time.Time `json:"kickoff"`
	Home       TeamRef   `json:"home"`
	Away       TeamRef   `json:"away"`
	HomeGoals  *int      `json:"home_goals,omitempty"`
	AwayGoals  *int      `json:"away_goals,omitempty"`
	HomeXG     *float64  `json:"home_xg,omitempty"`
	AwayXG     *float64  `json:"away_xg,omitempty"`
	Finished   bool      `json:"finished"`
}

// TeamMatch is a finished match seen from one side.
type TeamMatch struct {
	MatchID    int64
	Date       time.Time
	OpponentID int64
	XGFor      float64
	GoalsFor   int
}

// ForTeam returns the match from teamID's perspective. ok is false when the
// team did not play in the match or the match has no result yet.
func (m Match) ForTeam(teamID int64) (TeamMatch, bool) {
	if !m.Finished || m.HomeGoals == nil || m.AwayGoals == nil {
		return TeamMatch{}, false
	}
	tm := TeamMatch{MatchID: m.ID, Date: m.Kickoff}
	switch teamID {
	case m.Home.ID:
		tm.OpponentID = m.Away.ID
		tm.GoalsFor = *m.HomeGoals
		if m.HomeXG != nil {
			tm.XGFor = *m.HomeXG
		}
	case m.Away.ID:
		tm.OpponentID = m.Home.ID
		tm.GoalsFor = *m.AwayGoals
		if m.AwayXG != nil {
			tm.XGFor = *m.AwayXG
		}
	default:
		return TeamMatch{}, false
	}
	return tm, true
}

// Score returns the final score. ok is false until the match has finished.
func (m Match) Score() (home, away int, ok bool) {
	if !m.Finished || m.HomeGoals == nil || m.AwayGoals == nil {
		return 0, 0, false
	}
	return *m.HomeGoals, *m.AwayGoals, true
}

// Standing is one row of a league table.
type Standing struct {
	TeamID       int64  `json:"team_id"`
	TeamName     string `json:"team_name"`
	Position     int    `json:"position"`
	Played       int    `json:"played"`
	Points       int    `json:"points"`
	GoalsFor     int    `json:"goals_for"`
	GoalsAgainst int    `json:"goals_against"`
}

// PlayerLine is a player's stat line for a single match.
type PlayerLine struct {
	PlayerID int64   `json:"player_id"`
	TeamID   int64   `json:"team_id"`
	Name     string  `json:"name"`
	Position string  `json:"position,omitempty"`
	Minutes  int     `json:"minutes"`
	Goals    int     `json:"goals"`
	Shots    int     `json:"shots"`
	XG       float64 `json:"xg"`
}

// ShotSummary aggregates a player's shots in one match.
type ShotSummary struct {
	PlayerID int64 `json:"player_id"`
	TeamID   int64 `json:"team_id"`
	Total    int   `json:"total"`
	OnTarget int   `json:"on_target"`
}

// PlayerSeason is a player's season-to-date totals for one team.
type PlayerSeason struct {
	PlayerID int64   `json:"player_id"`
	TeamID   int64   `json:"team_id"`
	Name     string  `json:"name"`
	Position string  `json:"position,omitempty"`
	Games    int     `json:"games"`
	Minutes  int     `json:"minutes"`
	Goals    int     `json:"goals"`
	Shots    int     `json:"shots"`
	XG       float64 `json:"xg"`
}

// Feed is the read-only statistics provider. Every method returns
// ErrDataUnavailable (possibly wrapped) when the provider has nothing usable.
// Results are ordered most recent first; fixtures soonest first.
type Feed interface {
	LeagueTable(ctx context.Context, leagueCode string, season int) ([]Standing, error)
	LeagueFixtures(ctx context.Context, leagueCode string, season int) ([]Match, error)
	LeagueResults(ctx context.Context, leagueCode string, season int) ([]Match, error)
	TeamResults(ctx context.Context, leagueCode string, season int, teamID int64) ([]Match, error)
	TeamFixtures(ctx context.Context, leagueCode string, season int, teamID int64) ([]Match, error)
	TeamPlayers(ctx context.Context, leagueCode string, season int, teamID int64) ([]PlayerSeason, error)
	MatchPlayers(ctx context.Context, matchID int64) ([]PlayerLine, error)
	MatchShots(ctx context.Context, matchID int64) ([]ShotSummary, error)
}

// FindMatch looks a match up among a league-season's fixtures and results.
// A failed listing counts as an empty one.
func FindMatch(ctx context.Context, feed Feed, leagueCode string, season int, matchID int64) (Match, error) {
	for _, list := range []func(context.Context, string, int) ([]Match, error){feed.LeagueFixtures, feed.LeagueResults} {
		matches, err := list(ctx, leagueCode, season)
		if err != nil {
			continue
		}
		for _, m := range matches {
			if m.ID == matchID {
				return m, nil
			}
		}
	}
	return Match{}, ErrDataUnavailable
}
