package mockfeed

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/albapepper/scoracle-league/internal/provider"
)

type Feed struct {
	mock.Mock
}

func (f *Feed) LeagueTable(ctx context.Context, leagueCode string, season int) ([]provider.Standing, error) {
	args := f.Called(ctx, leagueCode, season)

	var res []provider.Standing
	if args.Get(0) != nil {
		res = args.Get(0).([]provider.Standing)
	}
	return res, args.Error(1)
}

func (f *Feed) LeagueFixtures(ctx context.Context, leagueCode string, season int) ([]provider.Match, error) {
	args := f.Called(ctx, leagueCode, season)
	return matches(args), args.Error(1)
}

func (f *Feed) LeagueResults(ctx context.Context, leagueCode string, season int) ([]provider.Match, error) {
	args := f.Called(ctx, leagueCode, season)
	return matches(args), args.Error(1)
}

func (f *Feed) TeamResults(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.Match, error) {
	args := f.Called(ctx, leagueCode, season, teamID)
	return matches(args), args.Error(1)
}

func (f *Feed) TeamFixtures(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.Match, error) {
	args := f.Called(ctx, leagueCode, season, teamID)
	return matches(args), args.Error(1)
}

func (f *Feed) TeamPlayers(ctx context.Context, leagueCode string, season int, teamID int64) ([]provider.PlayerSeason, error) {
	args := f.Called(ctx, leagueCode, season, teamID)

	var res []provider.PlayerSeason
	if args.Get(0) != nil {
		res = args.Get(0).([]provider.PlayerSeason)
	}
	return res, args.Error(1)
}

func (f *Feed) MatchPlayers(ctx context.Context, matchID int64) ([]provider.PlayerLine, error) {
	args := f.Called(ctx, matchID)

	var res []provider.PlayerLine
	if args.Get(0) != nil {
		res = args.Get(0).([]provider.PlayerLine)
	}
	return res, args.Error(1)
}

func (f *Feed) MatchShots(ctx context.Context, matchID int64) ([]provider.ShotSummary, error) {
	args := f.Called(ctx, matchID)

	var res []provider.ShotSummary
	if args.Get(0) != nil {
		res = args.Get(0).([]provider.ShotSummary)
	}
	return res, args.Error(1)
}

func matches(args mock.Arguments) []provider.Match {
	if args.Get(0) == nil {
		return nil
	}
	return args.Get(0).([]provider.Match)
}
