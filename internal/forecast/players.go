package forecast

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/albapepper/scoracle-league/internal/provider"
)

const (
	// LikelySquadSize is how many players per side are offered for wagers.
	LikelySquadSize = 18

	recentWeight = 0.7
	seasonWeight = 0.3
)

// PlayerProjection is a player's expected output for one match.
type PlayerProjection struct {
	PlayerID int64  `json:"player_id"`
	TeamID   int64  `json:"team_id"`
	Name     string `json:"name"`
	Position string `json:"position,omitempty"`

	Games         int     `json:"games"`
	SeasonMinutes int     `json:"season_minutes"`
	SeasonGoals   int     `json:"season_goals"`
	SeasonShots   int     `json:"season_shots"`
	SeasonXG      float64 `json:"season_xg"`
	GoalsPer90    float64 `json:"goals_per_90"`
	ShotsPer90    float64 `json:"shots_per_90"`

	RecentlyPlayed bool    `json:"recently_played"`
	LastMinutes    int     `json:"last_minutes"`
	Likelihood     float64 `json:"likelihood"`

	ExpectedMinutes int     `json:"expected_minutes"`
	ExpectedGoals   float64 `json:"expected_goals"`
	ExpectedShots   float64 `json:"expected_shots"`
}

// Project builds a projection from season totals and, when the player
// featured recently, the minutes of the latest appearance.
func Project(season provider.PlayerSeason, last *provider.PlayerLine) PlayerProjection {
	p := PlayerProjection{
		PlayerID:      season.PlayerID,
		TeamID:        season.TeamID,
		Name:          season.Name,
		Position:      season.Position,
		Games:         season.Games,
		SeasonMinutes: season.Minutes,
		SeasonGoals:   season.Goals,
		SeasonShots:   season.Shots,
		SeasonXG:      season.XG,
	}
	if season.Minutes > 0 {
		p.GoalsPer90 = float64(season.Goals) / float64(season.Minutes) * 90
		p.ShotsPer90 = float64(season.Shots) / float64(season.Minutes) * 90
	}

	var expMinutes float64
	if last != nil {
		p.RecentlyPlayed = true
		p.LastMinutes = last.Minutes
		p.Likelihood = float64(last.Minutes)*recentWeight + float64(season.Minutes)*seasonWeight
		expMinutes = float64(last.Minutes)
		if p.Position == "" {
			p.Position = last.Position
		}
	} else {
		p.Likelihood = float64(season.Minutes) * seasonWeight
		if season.Games > 0 {
			expMinutes = float64(season.Minutes) / float64(season.Games)
		}
	}

	p.ExpectedMinutes = int(math.Round(expMinutes))
	p.ExpectedGoals = round2(p.GoalsPer90 * expMinutes / 90)
	p.ExpectedShots = round2(p.ShotsPer90 * expMinutes / 90)
	return p
}

// RankPlayers projects a squad against its recent lines (most recent match
// first) and orders by likelihood of playing. limit <= 0 keeps everyone.
func RankPlayers(squad []provider.PlayerSeason, recent []provider.PlayerLine, limit int) []PlayerProjection {
	latest := make(map[int64]provider.PlayerLine, len(recent))
	for _, line := range recent {
		if _, seen := latest[line.PlayerID]; !seen {
			latest[line.PlayerID] = line
		}
	}

	out := make([]PlayerProjection, 0, len(squad))
	for _, ps := range squad {
		var last *provider.PlayerLine
		if line, ok := latest[ps.PlayerID]; ok {
			last = &line
		}
		out = append(out, Project(ps, last))
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Likelihood != out[j].Likelihood {
			return out[i].Likelihood > out[j].Likelihood
		}
		return out[i].PlayerID < out[j].PlayerID
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// MatchPlayers are the likely players for both sides of a match.
type MatchPlayers struct {
	Match provider.Match     `json:"match"`
	Home  []PlayerProjection `json:"home_players"`
	Away  []PlayerProjection `json:"away_players"`
}

// LikelyPlayers ranks each side's squad for an upcoming match.
func (f *Forecaster) LikelyPlayers(ctx context.Context, leagueCode string, season int, matchID int64) (MatchPlayers, error) {
	match, err := provider.FindMatch(ctx, f.feed, leagueCode, season, matchID)
	if err != nil {
		return MatchPlayers{}, fmt.Errorf("find match %d: %w", matchID, err)
	}
	home, err := f.sidePlayers(ctx, match, match.Home.ID, LikelySquadSize)
	if err != nil {
		return MatchPlayers{}, err
	}
	away, err := f.sidePlayers(ctx, match, match.Away.ID, LikelySquadSize)
	if err != nil {
		return MatchPlayers{}, err
	}
	return MatchPlayers{Match: match, Home: home, Away: away}, nil
}

// ProjectPlayer returns one player's projection for a match, searching both
// full squads.
func (f *Forecaster) ProjectPlayer(ctx context.Context, leagueCode string, season int, matchID, playerID int64) (PlayerProjection, provider.Match, error) {
	match, err := provider.FindMatch(ctx, f.feed, leagueCode, season, matchID)
	if err != nil {
		return PlayerProjection{}, provider.Match{}, fmt.Errorf("find match %d: %w", matchID, err)
	}
	for _, teamID := range []int64{match.Home.ID, match.Away.ID} {
		players, err := f.sidePlayers(ctx, match, teamID, 0)
		if err != nil {
			continue
		}
		for _, p := range players {
			if p.PlayerID == playerID {
				return p, match, nil
			}
		}
	}
	return PlayerProjection{}, match, fmt.Errorf("player %d in match %d: %w", playerID, matchID, provider.ErrDataUnavailable)
}

func (f *Forecaster) sidePlayers(ctx context.Context, match provider.Match, teamID int64, limit int) ([]PlayerProjection, error) {
	squad, err := f.feed.TeamPlayers(ctx, match.LeagueCode, match.Season, teamID)
	if err != nil {
		return nil, fmt.Errorf("squad for team %d: %w", teamID, err)
	}

	var recent []provider.PlayerLine
	results := f.teamResults(ctx, match.LeagueCode, match.Season, teamID)
	results = priorTo(results, match)
	if len(results) > FormLength {
		results = results[:FormLength]
	}
	for _, m := range results {
		lines, err := f.feed.MatchPlayers(ctx, m.ID)
		if err != nil {
			f.logger.Warn("Match lineups unavailable", "match_id", m.ID, "error", err)
			continue
		}
		for _, line := range lines {
			if line.TeamID == teamID {
				recent = append(recent, line)
			}
		}
	}
	return RankPlayers(squad, recent, limit), nil
}
