package forecast

import (
	"context"
	"errors"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
	"github.com/stretchr/testify/mock"

	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/provider/mockfeed"
)

func TestProject(t *testing.T) {
	season := provider.PlayerSeason{PlayerID: 9, TeamID: 1, Name: "Striker", Games: 10, Minutes: 900, Goals: 5, Shots: 20}

	Convey("Given a player who featured recently", t, func() {
		p := Project(season, &provider.PlayerLine{PlayerID: 9, Minutes: 45, Position: "Attacker"})

		Convey("Then the latest minutes drive the projection", func() {
			So(p.RecentlyPlayed, ShouldBeTrue)
			So(p.GoalsPer90, ShouldAlmostEqual, 0.5, 1e-9)
			So(p.ShotsPer90, ShouldAlmostEqual, 2.0, 1e-9)
			So(p.ExpectedMinutes, ShouldEqual, 45)
			So(p.ExpectedGoals, ShouldEqual, 0.25)
			So(p.ExpectedShots, ShouldEqual, 1.0)
			So(p.Likelihood, ShouldAlmostEqual, 45*0.7+900*0.3, 1e-9)
			So(p.Position, ShouldEqual, "Attacker")
		})
	})

	Convey("Given a player absent from recent lineups", t, func() {
		p := Project(season, nil)

		Convey("Then the season average minutes are used", func() {
			So(p.RecentlyPlayed, ShouldBeFalse)
			So(p.ExpectedMinutes, ShouldEqual, 90)
			So(p.ExpectedGoals, ShouldEqual, 0.5)
			So(p.Likelihood, ShouldAlmostEqual, 270, 1e-9)
		})
	})

	Convey("Given a player with no minutes", t, func() {
		p := Project(provider.PlayerSeason{PlayerID: 3}, nil)

		Convey("Then every rate is zero", func() {
			So(p.GoalsPer90, ShouldEqual, 0)
			So(p.ExpectedGoals, ShouldEqual, 0)
			So(p.ExpectedMinutes, ShouldEqual, 0)
		})
	})
}

func TestRankPlayers(t *testing.T) {
	Convey("Given a squad and recent lines", t, func() {
		squad := []provider.PlayerSeason{
			{PlayerID: 1, Minutes: 2000, Games: 25},
			{PlayerID: 2, Minutes: 300, Games: 10},
			{PlayerID: 3, Minutes: 900, Games: 12},
		}
		recent := []provider.PlayerLine{
			{PlayerID: 2, Minutes: 90},
			{PlayerID: 3, Minutes: 10},
			{PlayerID: 2, Minutes: 12},
		}

		ranked := RankPlayers(squad, recent, 0)

		Convey("Then players are ordered by likelihood", func() {
			So(len(ranked), ShouldEqual, 3)
			So(ranked[0].PlayerID, ShouldEqual, int64(1))
			So(ranked[1].PlayerID, ShouldEqual, int64(3))
			So(ranked[2].PlayerID, ShouldEqual, int64(2))
		})

		Convey("And the most recent appearance wins", func() {
			So(ranked[2].LastMinutes, ShouldEqual, 90)
		})

		Convey("And a limit truncates", func() {
			So(len(RankPlayers(squad, recent, 2)), ShouldEqual, 2)
		})
	})
}

func TestForecaster_LikelyPlayers(t *testing.T) {
	Convey("Given an upcoming match", t, func() {
		feed := &mockfeed.Feed{}
		fixture := provider.Match{ID: 700, LeagueCode: "EPL", Season: 2025, Kickoff: kickoff,
			Home: provider.TeamRef{ID: 1}, Away: provider.TeamRef{ID: 2}}
		feed.On("LeagueFixtures", mock.Anything, "EPL", 2025).Return([]provider.Match{fixture}, nil)

		var homeSquad []provider.PlayerSeason
		for i := 0; i < 25; i++ {
			homeSquad = append(homeSquad, provider.PlayerSeason{PlayerID: int64(100 + i), TeamID: 1, Minutes: 10 * i, Games: 10})
		}
		feed.On("TeamPlayers", mock.Anything, "EPL", 2025, int64(1)).Return(homeSquad, nil)
		feed.On("TeamPlayers", mock.Anything, "EPL", 2025, int64(2)).Return([]provider.PlayerSeason{{PlayerID: 200, TeamID: 2, Minutes: 900, Games: 10}}, nil)

		feed.On("TeamResults", mock.Anything, "EPL", 2025, int64(1)).Return([]provider.Match{result(50, 1, 3, 1, 0, 1, 1, 7)}, nil)
		feed.On("TeamResults", mock.Anything, "EPL", 2025, int64(2)).Return(nil, provider.ErrDataUnavailable)
		feed.On("MatchPlayers", mock.Anything, int64(50)).Return([]provider.PlayerLine{
			{PlayerID: 100, TeamID: 1, Minutes: 90},
			{PlayerID: 300, TeamID: 3, Minutes: 90},
		}, nil)

		f := NewForecaster(feed, nil)

		Convey("Then each side is ranked and capped", func() {
			mp, err := f.LikelyPlayers(context.Background(), "EPL", 2025, 700)
			So(err, ShouldBeNil)
			So(len(mp.Home), ShouldEqual, LikelySquadSize)
			So(len(mp.Away), ShouldEqual, 1)
			So(mp.Home[0].PlayerID, ShouldEqual, int64(124))

			var starter PlayerProjection
			for _, p := range mp.Home {
				if p.PlayerID == 100 {
					starter = p
				}
			}
			// 0 season minutes but played last time.
			So(starter.RecentlyPlayed, ShouldBeTrue)
			So(starter.Likelihood, ShouldAlmostEqual, 63, 1e-9)
		})

		Convey("Then a single player is projected from the full squad", func() {
			p, m, err := f.ProjectPlayer(context.Background(), "EPL", 2025, 700, 200)
			So(err, ShouldBeNil)
			So(p.ExpectedMinutes, ShouldEqual, 90)
			So(m.ID, ShouldEqual, int64(700))

			_, _, err = f.ProjectPlayer(context.Background(), "EPL", 2025, 700, 999)
			So(errors.Is(err, provider.ErrDataUnavailable), ShouldBeTrue)
		})
	})
}
