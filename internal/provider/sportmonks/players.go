package sportmonks

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/albapepper/scoracle-league/internal/cache"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/provider"
)

var positionNames = map[int]string{24: "Goalkeeper", 25: "Defender", 26: "Midfielder", 27: "Attacker"}

// --------------------------------------------------------------------------
// Match lineups
// --------------------------------------------------------------------------

type smLineupRaw struct {
	PlayerID   int64      `json:"player_id"`
	TeamID     int64      `json:"team_id"`
	PlayerName string     `json:"player_name"`
	PositionID *int       `json:"position_id"`
	Details    []smDetail `json:"details"`
}

func (f *Feed) lineups(ctx context.Context, matchID int64) ([]smLineupRaw, error) {
	resp, err := f.client.get(ctx, fmt.Sprintf("/fixtures/%d", matchID), url.Values{
		"include": {"lineups.details.type"},
	}, cache.TTLFeed)
	if err != nil {
		return nil, unavailable("fetch lineups", err)
	}

	var fixture struct {
		Lineups []smLineupRaw `json:"lineups"`
	}
	if err := json.Unmarshal(resp.Data, &fixture); err != nil {
		return nil, unavailable("decode lineups", err)
	}
	if len(fixture.Lineups) == 0 {
		return nil, unavailable("fetch lineups", nil)
	}
	return fixture.Lineups, nil
}

// MatchPlayers returns every player who appeared in a match.
func (f *Feed) MatchPlayers(ctx context.Context, matchID int64) ([]provider.PlayerLine, error) {
	raw, err := f.lineups(ctx, matchID)
	if err != nil {
		return nil, err
	}

	lines := make([]provider.PlayerLine, 0, len(raw))
	for _, l := range raw {
		stats := detailStats(l.Details, playerCodeOverrides)
		line := provider.PlayerLine{
			PlayerID: l.PlayerID,
			TeamID:   l.TeamID,
			Name:     l.PlayerName,
			Minutes:  int(stats["minutes"]),
			Goals:    int(stats["goals"]),
			Shots:    int(stats["shots"]),
			XG:       stats["xg"],
		}
		if l.PositionID != nil {
			line.Position = positionNames[*l.PositionID]
		}
		// Unused substitutes are listed with no minutes.
		if line.Minutes == 0 {
			continue
		}
		lines = append(lines, line)
	}
	if len(lines) == 0 {
		return nil, unavailable("fetch lineups", nil)
	}
	return lines, nil
}

// MatchShots returns per-player shot totals for a match.
func (f *Feed) MatchShots(ctx context.Context, matchID int64) ([]provider.ShotSummary, error) {
	raw, err := f.lineups(ctx, matchID)
	if err != nil {
		return nil, err
	}

	shots := make([]provider.ShotSummary, 0, len(raw))
	for _, l := range raw {
		stats := detailStats(l.Details, playerCodeOverrides)
		if stats["shots"] == 0 {
			continue
		}
		shots = append(shots, provider.ShotSummary{
			PlayerID: l.PlayerID,
			TeamID:   l.TeamID,
			Total:    int(stats["shots"]),
			OnTarget: int(stats["shots_on_target"]),
		})
	}
	if len(shots) == 0 {
		return nil, unavailable("fetch shots", nil)
	}
	return shots, nil
}

// --------------------------------------------------------------------------
// Squads with season stats (fetched together via squad iteration)
// --------------------------------------------------------------------------

type smPlayerRaw struct {
	ID          int64  `json:"id"`
	Firstname   string `json:"firstname"`
	Lastname    string `json:"lastname"`
	DisplayName string `json:"display_name"`
	PositionID  *int   `json:"position_id"`
	Statistics  []struct {
		Details []smDetail `json:"details"`
		Season  *struct {
			League *struct{ ID int } `json:"league"`
		} `json:"season"`
	} `json:"statistics"`
}

// TeamPlayers iterates a team's squad and fetches each player's season totals.
// A player whose fetch fails is skipped.
func (f *Feed) TeamPlayers(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.PlayerSeason, error) {
	sid, err := f.seasonID(ctx, leagueCode, season)
	if err != nil {
		return nil, err
	}
	lc, _ := config.LookupLeague(leagueCode)

	resp, err := f.client.get(ctx,
		fmt.Sprintf("/squads/seasons/%d/teams/%d", sid, teamID), nil, cache.TTLSquad)
	if err != nil {
		return nil, unavailable("fetch squad", err)
	}

	var squad []struct {
		PlayerID int64 `json:"player_id"`
		ID       int64 `json:"id"`
	}
	if err := json.Unmarshal(resp.Data, &squad); err != nil {
		return nil, unavailable("decode squad", err)
	}

	players := make([]provider.PlayerSeason, 0, len(squad))
	for _, entry := range squad {
		pid := entry.PlayerID
		if pid == 0 {
			pid = entry.ID
		}
		if pid == 0 {
			continue
		}

		playerResp, err := f.client.get(ctx, fmt.Sprintf("/players/%d", pid), url.Values{
			"include": {"statistics.details.type;statistics.season.league"},
			"filters": {fmt.Sprintf("playerStatisticSeasons:%d", sid)},
		}, cache.TTLSquad)
		if err != nil {
			f.logger.Warn("player fetch failed", "player_id", pid, "error", err)
			continue
		}

		var raw smPlayerRaw
		if err := json.Unmarshal(playerResp.Data, &raw); err != nil {
			f.logger.Warn("player decode failed", "player_id", pid, "error", err)
			continue
		}
		players = append(players, normalizePlayerSeason(raw, teamID, lc.ProviderID))
	}

	if len(players) == 0 {
		return nil, unavailable("fetch squad", nil)
	}
	return players, nil
}

func normalizePlayerSeason(raw smPlayerRaw, teamID int64, smLeagueID int) provider.PlayerSeason {
	name := raw.DisplayName
	if name == "" {
		name = strings.TrimSpace(raw.Firstname + " " + raw.Lastname)
	}
	if name == "" {
		name = fmt.Sprintf("Player %d", raw.ID)
	}

	ps := provider.PlayerSeason{PlayerID: raw.ID, TeamID: teamID, Name: name}
	if raw.PositionID != nil {
		ps.Position = positionNames[*raw.PositionID]
	}

	for _, block := range raw.Statistics {
		if block.Season == nil || block.Season.League == nil || block.Season.League.ID != smLeagueID {
			continue
		}
		stats := detailStats(block.Details, playerCodeOverrides)
		ps.Games = int(stats["games"])
		ps.Minutes = int(stats["minutes"])
		ps.Goals = int(stats["goals"])
		ps.Shots = int(stats["shots"])
		ps.XG = stats["xg"]
		break
	}
	return ps
}
