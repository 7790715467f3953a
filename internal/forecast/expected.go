// Package forecast turns feed statistics into expected goals, outcome
// probabilities, and player projections.
//
// Home advantage is applied once, as an edge on the home-win probability.
// Expected-goals figures carry no home bonus.
package forecast

import (
	"math"

	"github.com/albapepper/scoracle-league/internal/provider"
)

// FormLength is how many recent matches feed a team's expected goals.
const FormLength = 5

var recencyWeights = [FormLength]float64{0.30, 0.25, 0.20, 0.15, 0.10}

const (
	minRatio         = 0.7
	maxRatio         = 1.3
	minXGForRatio    = 1.0
	oppositionWeight = 0.4

	// defaultExpected is used for a team with no finished matches.
	defaultExpected = 1.0
)

// RecencyWeights returns the weight vector for n recent matches, most recent
// first, renormalized to sum to 1.
func RecencyWeights(n int) []float64 {
	if n <= 0 {
		return nil
	}
	if n > FormLength {
		n = FormLength
	}
	weights := make([]float64, n)
	total := 0.0
	for i := 0; i < n; i++ {
		total += recencyWeights[i]
	}
	for i := 0; i < n; i++ {
		weights[i] = recencyWeights[i] / total
	}
	return weights
}

// PerformanceRatio is season goals over season xG, clamped to [0.7, 1.3].
// Below one season xG it is 1.
func PerformanceRatio(goals int, xg float64) float64 {
	if xg < minXGForRatio {
		return 1.0
	}
	return clamp(float64(goals)/xg, minRatio, maxRatio)
}

// OppositionFactor scales expected goals by the strength of recent opponents.
// Opponents absent from the table are ignored; with none present it is 1.
func OppositionFactor(form []provider.TeamMatch, table []provider.Standing) float64 {
	if len(table) == 0 || len(form) == 0 {
		return 1.0
	}
	positions := make(map[int64]int, len(table))
	for _, s := range table {
		positions[s.TeamID] = s.Position
	}

	sum, n := 0, 0
	for _, m := range form {
		if pos, ok := positions[m.OpponentID]; ok {
			sum += pos
			n++
		}
	}
	if n == 0 {
		return 1.0
	}

	size := float64(len(table))
	avg := float64(sum) / float64(n)
	return 1 + oppositionWeight*((size/2-avg)/size)
}

// TeamExpectation is one side's expected goals and the inputs that shaped it.
type TeamExpectation struct {
	Expected         float64 `json:"expected"`
	PerformanceRatio float64 `json:"performance_ratio"`
	OppositionFactor float64 `json:"opposition_factor"`
	MatchesUsed      int     `json:"matches_used"`
}

// Expect computes expected goals from a team's recent form (most recent
// first, truncated to FormLength) and season totals.
func Expect(form []provider.TeamMatch, seasonGoals int, seasonXG float64, table []provider.Standing) TeamExpectation {
	if len(form) > FormLength {
		form = form[:FormLength]
	}
	ratio := PerformanceRatio(seasonGoals, seasonXG)
	if len(form) == 0 {
		return TeamExpectation{Expected: defaultExpected, PerformanceRatio: ratio, OppositionFactor: 1.0}
	}

	weighted := 0.0
	for i, w := range RecencyWeights(len(form)) {
		weighted += form[i].XGFor * w
	}
	base := round2(weighted * ratio)
	factor := OppositionFactor(form, table)

	return TeamExpectation{
		Expected:         round2(base * factor),
		PerformanceRatio: ratio,
		OppositionFactor: factor,
		MatchesUsed:      len(form),
	}
}

// TeamForm extracts a team's finished matches (most recent first) and sums its
// season goals and xG over all of them.
func TeamForm(results []provider.Match, teamID int64) (form []provider.TeamMatch, seasonGoals int, seasonXG float64) {
	for _, m := range results {
		tm, ok := m.ForTeam(teamID)
		if !ok {
			continue
		}
		seasonGoals += tm.GoalsFor
		seasonXG += tm.XGFor
		if len(form) < FormLength {
			form = append(form, tm)
		}
	}
	return form, seasonGoals, seasonXG
}

func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(v, hi))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
