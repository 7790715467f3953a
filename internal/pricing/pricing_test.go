package pricing

import (
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/provider"
)

func forecastOf(home, away float64) forecast.MatchForecast {
	return forecast.MatchForecast{
		HomeExpected: home,
		AwayExpected: away,
		Outcomes:     forecast.OutcomeProbabilities(home, away),
	}
}

func TestPriceExactScore(t *testing.T) {
	Convey("Given expected goals of 1.8 and 1.1", t, func() {
		fc := forecastOf(1.8, 1.1)

		Convey("When the user predicts 2-1 for 100 points", func() {
			q := PriceExactScore(fc, 2, 1, 100)

			Convey("Then the quote matches the worked example", func() {
				So(q.PredictedResult, ShouldEqual, provider.OutcomeHome)
				So(q.TotalDiff, ShouldAlmostEqual, 0.3, 1e-9)
				So(q.Multiplier, ShouldEqual, 1.15)
				So(q.ExactScorePayout, ShouldEqual, int64(115))
			})

			Convey("And the correct-result payout follows the home-win probability", func() {
				So(q.ResultProbability, ShouldEqual, fc.Outcomes.HomeWin)
				So(q.ResultMultiplier, ShouldEqual, ResultMultiplier(fc.Outcomes.HomeWin))
				So(q.CorrectResultPayout, ShouldEqual, Payout(100, q.ResultMultiplier))
			})
		})

		Convey("When the user predicts a draw", func() {
			q := PriceExactScore(fc, 3, 3, 50)
			So(q.PredictedResult, ShouldEqual, provider.OutcomeDraw)
			So(q.ResultProbability, ShouldEqual, fc.Outcomes.Draw)
		})
	})
}

func TestExactMultiplier(t *testing.T) {
	Convey("Given large deviations", t, func() {
		Convey("Beyond four goals the deviation is halved", func() {
			m, diff := ExactMultiplier(0, 0, 6, 0)
			So(diff, ShouldEqual, 5.0)
			So(m, ShouldEqual, 3.5)

			m, _ = ExactMultiplier(0, 0, 20, 0)
			So(m, ShouldEqual, 7.0)
		})

		Convey("The multiplier caps at eight", func() {
			m, _ := ExactMultiplier(0, 0, 30, 0)
			So(m, ShouldEqual, MaxExactMultiplier)
		})

		Convey("Predicting the expectation exactly pays evens", func() {
			m, _ := ExactMultiplier(2, 1, 2, 1)
			So(m, ShouldEqual, 1.0)
		})
	})

	Convey("Given any prediction against any expectation", t, func() {
		for _, he := range []float64{0, 0.7, 1.8, 3.4} {
			for _, ae := range []float64{0, 1.1, 2.25} {
				for ph := 0; ph <= 12; ph++ {
					for pa := 0; pa <= 12; pa += 3 {
						m, _ := ExactMultiplier(he, ae, ph, pa)
						So(m, ShouldBeBetweenOrEqual, 1.0, MaxExactMultiplier)
					}
				}
			}
		}
	})
}

func TestResultMultiplier(t *testing.T) {
	Convey("Given result probabilities", t, func() {
		So(ResultMultiplier(1), ShouldEqual, 1.0)
		So(ResultMultiplier(0.5), ShouldEqual, 1.75)
		So(ResultMultiplier(0), ShouldEqual, 2.5)
		So(ResultMultiplier(-3), ShouldEqual, 2.5)
		So(ResultMultiplier(0.333), ShouldEqual, 2.0)
	})
}

func TestPriceOutcome(t *testing.T) {
	Convey("Given an outcome wager", t, func() {
		fc := forecast.MatchForecast{Outcomes: forecast.Probabilities{HomeWin: 0.5, Draw: 0.2, AwayWin: 0.3}}
		q := PriceOutcome(fc, provider.OutcomeAway, 100)

		So(q.Probability, ShouldEqual, 0.3)
		So(q.Multiplier, ShouldEqual, 2.05)
		So(q.Payout, ShouldEqual, int64(205))
	})
}

func TestPayout(t *testing.T) {
	Convey("Given stakes and multipliers", t, func() {
		So(Payout(100, 1.15), ShouldEqual, int64(115))
		So(Payout(33, 1.5), ShouldEqual, int64(49))
		So(Payout(10, 8), ShouldEqual, int64(80))
		So(Payout(0, 3), ShouldEqual, int64(0))
		So(Payout(500, 0), ShouldEqual, int64(0))
	})
}

func TestPlayerMultiplier(t *testing.T) {
	Convey("Given a player projection", t, func() {
		Convey("A near-expectation prediction pays little", func() {
			So(PlayerMultiplier(0.25, 1.0, 0, 1), ShouldEqual, 1.12)
			So(PlayerMultiplier(0.5, 2.0, 1, 2), ShouldEqual, 1.35)
		})

		Convey("Predicting zero against a likely scorer earns the zero bonus", func() {
			So(PlayerMultiplier(1.0, 4.0, 0, 0), ShouldEqual, 4.05)
		})

		Convey("Very bold predictions get the extra 20%", func() {
			So(PlayerMultiplier(0.5, 2.0, 3, 2), ShouldEqual, 5.84)
		})

		Convey("The multiplier clamps at ten", func() {
			So(PlayerMultiplier(0.2, 1, 5, 15), ShouldEqual, MaxPlayerMultiplier)
		})

		Convey("It always stays within its bounds", func() {
			for _, eg := range []float64{0, 0.12, 0.6, 1.4} {
				for _, es := range []float64{0, 0.8, 2.5, 6} {
					for g := 0; g <= 6; g++ {
						for s := 0; s <= 20; s += 4 {
							m := PlayerMultiplier(eg, es, g, s)
							So(m, ShouldBeBetweenOrEqual, MinPlayerMultiplier, MaxPlayerMultiplier)
						}
					}
				}
			}
		})
	})
}

func TestPricePlayer(t *testing.T) {
	Convey("Given a projected striker", t, func() {
		proj := forecast.PlayerProjection{PlayerID: 9, ExpectedGoals: 1.0, ExpectedShots: 4.0}
		q := PricePlayer(proj, 0, 0)

		So(q.Multiplier, ShouldEqual, 4.05)
		So(q.PotentialPoints, ShouldEqual, int64(405))
		So(q.Payout(50), ShouldEqual, int64(202))
		So(q.PlayerID, ShouldEqual, int64(9))
	})
}
