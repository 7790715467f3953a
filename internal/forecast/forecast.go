package forecast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/albapepper/scoracle-league/internal/provider"
)

// MatchForecast is the model's view of one match. Never persisted.
type MatchForecast struct {
	MatchID    int64            `json:"match_id"`
	LeagueCode string           `json:"league_code"`
	Season     int              `json:"season"`
	Kickoff    time.Time        `json:"kickoff"`
	Home       provider.TeamRef `json:"home"`
	Away       provider.TeamRef `json:"away"`
	Finished   bool             `json:"finished"`

	HomeExpected         float64 `json:"home_expected"`
	AwayExpected         float64 `json:"away_expected"`
	PerformanceRatioHome float64 `json:"performance_ratio_home"`
	PerformanceRatioAway float64 `json:"performance_ratio_away"`
	OppositionFactorHome float64 `json:"opposition_factor_home"`
	OppositionFactorAway float64 `json:"opposition_factor_away"`

	Outcomes      Probabilities        `json:"-"`
	Probabilities DisplayProbabilities `json:"outcome_probabilities"`
}

// Forecaster builds forecasts from a statistics feed.
type Forecaster struct {
	feed   provider.Feed
	logger *slog.Logger
}

// NewForecaster creates a Forecaster.
func NewForecaster(feed provider.Feed, logger *slog.Logger) *Forecaster {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forecaster{feed: feed, logger: logger}
}

// Feed exposes the underlying statistics feed.
func (f *Forecaster) Feed() provider.Feed {
	return f.feed
}

// ForecastMatch forecasts a fixture or result. A match the feed cannot find
// returns provider.ErrDataUnavailable.
func (f *Forecaster) ForecastMatch(ctx context.Context, leagueCode string, season int, matchID int64) (MatchForecast, error) {
	match, err := provider.FindMatch(ctx, f.feed, leagueCode, season, matchID)
	if err != nil {
		return MatchForecast{}, fmt.Errorf("find match %d: %w", matchID, err)
	}
	return f.Forecast(ctx, match)
}

// Forecast computes the forecast for a known match. Missing team history or
// table data degrade to defaults rather than failing.
func (f *Forecaster) Forecast(ctx context.Context, match provider.Match) (MatchForecast, error) {
	code, year := match.LeagueCode, match.Season
	var (
		table   []provider.Standing
		homeRes []provider.Match
		awayRes []provider.Match
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := f.feed.LeagueTable(gctx, code, year)
		if err != nil {
			f.logger.Warn("League table unavailable", "league", code, "season", year, "error", err)
		}
		table = t
		return nil
	})
	g.Go(func() error {
		homeRes = f.teamResults(gctx, code, year, match.Home.ID)
		return nil
	})
	g.Go(func() error {
		awayRes = f.teamResults(gctx, code, year, match.Away.ID)
		return nil
	})
	if err := g.Wait(); err != nil {
		return MatchForecast{}, err
	}
	if err := ctx.Err(); err != nil {
		return MatchForecast{}, err
	}

	homeForm, homeGoals, homeXG := TeamForm(priorTo(homeRes, match), match.Home.ID)
	awayForm, awayGoals, awayXG := TeamForm(priorTo(awayRes, match), match.Away.ID)
	home := Expect(homeForm, homeGoals, homeXG, table)
	away := Expect(awayForm, awayGoals, awayXG, table)
	probs := OutcomeProbabilities(home.Expected, away.Expected)

	return MatchForecast{
		MatchID:              match.ID,
		LeagueCode:           code,
		Season:               year,
		Kickoff:              match.Kickoff,
		Home:                 match.Home,
		Away:                 match.Away,
		Finished:             match.Finished,
		HomeExpected:         home.Expected,
		AwayExpected:         away.Expected,
		PerformanceRatioHome: home.PerformanceRatio,
		PerformanceRatioAway: away.PerformanceRatio,
		OppositionFactorHome: home.OppositionFactor,
		OppositionFactorAway: away.OppositionFactor,
		Outcomes:             probs,
		Probabilities:        probs.Display(),
	}, nil
}

func (f *Forecaster) teamResults(ctx context.Context, code string, season int, teamID int64) []provider.Match {
	res, err := f.feed.TeamResults(ctx, code, season, teamID)
	if err != nil {
		f.logger.Warn("Team results unavailable", "league", code, "team_id", teamID, "error", err)
		return nil
	}
	return res
}

// priorTo keeps results played before match kicked off, so a finished match
// is forecast as it looked beforehand.
func priorTo(results []provider.Match, match provider.Match) []provider.Match {
	out := make([]provider.Match, 0, len(results))
	for _, m := range results {
		if m.ID == match.ID {
			continue
		}
		if !match.Kickoff.IsZero() && m.Kickoff.After(match.Kickoff) {
			continue
		}
		out = append(out, m)
	}
	return out
}
