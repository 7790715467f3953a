package pricing

import (
	"math"

	"github.com/albapepper/scoracle-league/internal/forecast"
)

const (
	MinPlayerMultiplier = 1.0
	MaxPlayerMultiplier = 10.0

	// BasePoints is what a player prediction is quoted against with no stake.
	BasePoints = 100

	goalsWeight = 0.7
	shotsWeight = 0.3

	goalsScale    = 0.8
	goalsExponent = 1.5
	shotsScale    = 1.5
	shotsExponent = 1.3

	boldGoalsDiff = 2.0
	boldShotsDiff = 5.0
	boldBonus     = 1.2
)

// PlayerQuote prices a goals/shots prediction for one player.
type PlayerQuote struct {
	PlayerID        int64   `json:"player_id"`
	PredictedGoals  int     `json:"predicted_goals"`
	PredictedShots  int     `json:"predicted_shots"`
	ExpectedGoals   float64 `json:"expected_goals"`
	ExpectedShots   float64 `json:"expected_shots"`
	Multiplier      float64 `json:"multiplier"`
	PotentialPoints int64   `json:"potential_points"`
}

// Payout is what the quote pays on a given stake.
func (q PlayerQuote) Payout(stake int64) int64 {
	return Payout(stake, q.Multiplier)
}

// PlayerMultiplier prices a prediction against expected goals and shots.
// Predicting zero for a player likely to score or shoot earns a bonus.
func PlayerMultiplier(expGoals, expShots float64, predictedGoals, predictedShots int) float64 {
	zeroBonus := 0.0
	if predictedGoals == 0 && expGoals > 0.5 {
		zeroBonus += math.Min(expGoals*0.5, 1.0)
	}
	if predictedShots == 0 && expShots > 2 {
		zeroBonus += math.Min(expShots*0.2, 0.5)
	}

	goalsDiff := math.Abs(float64(predictedGoals) - expGoals)
	shotsDiff := math.Abs(float64(predictedShots) - expShots)

	m := 1.0 +
		math.Pow(goalsDiff/goalsScale, goalsExponent)*goalsWeight +
		math.Pow(shotsDiff/shotsScale, shotsExponent)*shotsWeight +
		zeroBonus

	if goalsDiff > boldGoalsDiff || shotsDiff > boldShotsDiff {
		m *= boldBonus
	}
	return round2(math.Max(MinPlayerMultiplier, math.Min(m, MaxPlayerMultiplier)))
}

// PricePlayer quotes a player wager against a projection.
func PricePlayer(proj forecast.PlayerProjection, predictedGoals, predictedShots int) PlayerQuote {
	mult := PlayerMultiplier(proj.ExpectedGoals, proj.ExpectedShots, predictedGoals, predictedShots)
	return PlayerQuote{
		PlayerID:        proj.PlayerID,
		PredictedGoals:  predictedGoals,
		PredictedShots:  predictedShots,
		ExpectedGoals:   proj.ExpectedGoals,
		ExpectedShots:   proj.ExpectedShots,
		Multiplier:      mult,
		PotentialPoints: Payout(BasePoints, mult),
	}
}
