// Package pricing converts predictions into payout multipliers.
//
// Multipliers are rounded to two decimals. Payouts are whole points,
// floor(stake × multiplier), computed in integer hundredths.
package pricing

import (
	"math"

	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/provider"
)

const (
	MaxExactMultiplier  = 8.0
	MaxResultMultiplier = 5.0

	dampenAbove = 4.0
	dampenRate  = 0.5
	diffRate    = 0.5
	resultRate  = 1.5
)

// ExactScoreQuote prices a predicted scoreline.
type ExactScoreQuote struct {
	PredictedHome       int              `json:"predicted_home"`
	PredictedAway       int              `json:"predicted_away"`
	PredictedResult     provider.Outcome `json:"predicted_result"`
	TotalDiff           float64          `json:"total_diff"`
	Multiplier          float64          `json:"multiplier"`
	ResultProbability   float64          `json:"result_probability"`
	ResultMultiplier    float64          `json:"result_multiplier"`
	Stake               int64            `json:"stake"`
	ExactScorePayout    int64            `json:"exact_score_payout"`
	CorrectResultPayout int64            `json:"correct_result_payout"`
}

// OutcomeQuote prices a home/draw/away prediction.
type OutcomeQuote struct {
	Outcome     provider.Outcome `json:"outcome"`
	Probability float64          `json:"probability"`
	Multiplier  float64          `json:"multiplier"`
	Stake       int64            `json:"stake"`
	Payout      int64            `json:"payout"`
}

// ExactMultiplier returns the multiplier for a scoreline and the dampened
// total deviation it was derived from.
func ExactMultiplier(homeExpected, awayExpected float64, predictedHome, predictedAway int) (multiplier, totalDiff float64) {
	totalDiff = math.Abs(float64(predictedHome)-homeExpected) + math.Abs(float64(predictedAway)-awayExpected)
	if totalDiff > dampenAbove {
		totalDiff = dampenAbove + (totalDiff-dampenAbove)*dampenRate
	}
	return round2(math.Min(1.0+totalDiff*diffRate, MaxExactMultiplier)), totalDiff
}

// ResultMultiplier scales inversely with the probability of the predicted bucket.
func ResultMultiplier(probability float64) float64 {
	probability = math.Max(0, math.Min(probability, 1))
	return round2(math.Min(1.0+resultRate*(1-probability), MaxResultMultiplier))
}

// PriceExactScore quotes an exact-score wager against a forecast.
func PriceExactScore(fc forecast.MatchForecast, predictedHome, predictedAway int, stake int64) ExactScoreQuote {
	mult, diff := ExactMultiplier(fc.HomeExpected, fc.AwayExpected, predictedHome, predictedAway)
	result := provider.ResultOf(predictedHome, predictedAway)
	prob := fc.Outcomes.Of(result)
	resultMult := ResultMultiplier(prob)

	return ExactScoreQuote{
		PredictedHome:       predictedHome,
		PredictedAway:       predictedAway,
		PredictedResult:     result,
		TotalDiff:           diff,
		Multiplier:          mult,
		ResultProbability:   prob,
		ResultMultiplier:    resultMult,
		Stake:               stake,
		ExactScorePayout:    Payout(stake, mult),
		CorrectResultPayout: Payout(stake, resultMult),
	}
}

// PriceOutcome quotes an outcome wager against a forecast.
func PriceOutcome(fc forecast.MatchForecast, outcome provider.Outcome, stake int64) OutcomeQuote {
	prob := fc.Outcomes.Of(outcome)
	mult := ResultMultiplier(prob)
	return OutcomeQuote{
		Outcome:     outcome,
		Probability: prob,
		Multiplier:  mult,
		Stake:       stake,
		Payout:      Payout(stake, mult),
	}
}

// Payout is floor(stake × multiplier) for a two-decimal multiplier.
func Payout(stake int64, multiplier float64) int64 {
	if stake <= 0 || multiplier <= 0 {
		return 0
	}
	return stake * int64(math.Round(multiplier*100)) / 100
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
