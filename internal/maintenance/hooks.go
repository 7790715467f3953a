package maintenance

import (
	"log/slog"

	"github.com/albapepper/scoracle-league/internal/cache"
)

// Hooks run after a task changed balances.
type Hooks struct {
	Cache *cache.Cache
}

// InvalidateLeaderboards drops cached leaderboards so the next read reflects
// settled wagers and reset rounds.
func InvalidateLeaderboards(c *cache.Cache, logger *slog.Logger) int {
	if c == nil {
		return 0
	}
	n := c.DeletePrefix(cache.LeaderboardPrefix)
	if n > 0 {
		logger.Info("Invalidated cached leaderboards", "count", n)
	}
	return n
}

func (h Hooks) balancesChanged(logger *slog.Logger) {
	InvalidateLeaderboards(h.Cache, logger)
}
