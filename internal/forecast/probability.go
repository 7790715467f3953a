package forecast

import (
	"math"

	"github.com/albapepper/scoracle-league/internal/provider"
)

const (
	maxGoals    = 6
	maxExpected = 10.0
	homeEdge    = 0.05
	homeEdgeCap = 0.90
)

// Probabilities are unrounded outcome fractions summing to 1.
type Probabilities struct {
	HomeWin float64
	Draw    float64
	AwayWin float64
}

// Of returns the probability of one outcome bucket.
func (p Probabilities) Of(o provider.Outcome) float64 {
	switch o {
	case provider.OutcomeHome:
		return p.HomeWin
	case provider.OutcomeAway:
		return p.AwayWin
	case provider.OutcomeDraw:
		return p.Draw
	}
	return 0
}

// DisplayProbabilities are percentages rounded to one decimal.
type DisplayProbabilities struct {
	HomeWin float64 `json:"home_win"`
	Draw    float64 `json:"draw"`
	AwayWin float64 `json:"away_win"`
}

func (p Probabilities) Display() DisplayProbabilities {
	return DisplayProbabilities{
		HomeWin: round1(p.HomeWin * 100),
		Draw:    round1(p.Draw * 100),
		AwayWin: round1(p.AwayWin * 100),
	}
}

func poisson(k int, lambda float64) float64 {
	return math.Exp(-lambda) * math.Pow(lambda, float64(k)) / factorial(k)
}

func factorial(k int) float64 {
	f := 1.0
	for i := 2; i <= k; i++ {
		f *= float64(i)
	}
	return f
}

// OutcomeProbabilities models each side's goals as Poisson over 0..6,
// buckets the joint grid normalized to its own mass, adds the home edge
// (never past 90%), and renormalizes. Means are clamped to [0, 10] so the
// grid keeps measurable mass.
func OutcomeProbabilities(homeExpected, awayExpected float64) Probabilities {
	homeExpected = math.Min(math.Max(homeExpected, 0), maxExpected)
	awayExpected = math.Min(math.Max(awayExpected, 0), maxExpected)

	var home, away [maxGoals + 1]float64
	for k := 0; k <= maxGoals; k++ {
		home[k] = poisson(k, homeExpected)
		away[k] = poisson(k, awayExpected)
	}

	var hw, dr, aw float64
	for h := 0; h <= maxGoals; h++ {
		for a := 0; a <= maxGoals; a++ {
			p := home[h] * away[a]
			switch {
			case h > a:
				hw += p
			case h == a:
				dr += p
			default:
				aw += p
			}
		}
	}

	grid := hw + dr + aw
	hw, dr, aw = hw/grid, dr/grid, aw/grid

	if hw < homeEdgeCap {
		hw = math.Min(hw+homeEdge, homeEdgeCap)
	}

	total := hw + dr + aw
	return Probabilities{HomeWin: hw / total, Draw: dr / total, AwayWin: aw / total}
}
