// Package maintenance runs periodic background tasks as Go tickers:
// settling finished matches and ending seasonal rounds.
package maintenance

import (
	"context"
	"log/slog"
	"time"

	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/settlement"
)

// Config controls task intervals. Zero duration disables a task.
type Config struct {
	SettlementInterval time.Duration
	RoundSweepInterval time.Duration
}

// DefaultConfig returns production defaults.
func DefaultConfig() Config {
	return Config{
		SettlementInterval: 10 * time.Minute,
		RoundSweepInterval: 5 * time.Minute,
	}
}

// Settler settles every pending match whose result is known.
type Settler interface {
	Poll(ctx context.Context) settlement.PollResult
}

// RoundSweeper ends overdue seasonal rounds.
type RoundSweeper interface {
	SweepDueRounds(ctx context.Context) league.SweepResult
}

// Tasks is the work the tickers drive. A nil task is skipped.
type Tasks struct {
	Settler Settler
	Rounds  RoundSweeper
	Hooks   Hooks
}

// Start launches all configured tickers. Blocks until ctx is cancelled.
// Intended to be called with `go`.
func Start(ctx context.Context, tasks Tasks, cfg Config, logger *slog.Logger) {
	if logger == nil {
		logger = slog.Default()
	}
	logger.Info("Maintenance tickers started",
		"settlement", cfg.SettlementInterval,
		"rounds", cfg.RoundSweepInterval)

	tickers := make([]*time.Ticker, 0, 2)
	defer func() {
		for _, t := range tickers {
			t.Stop()
		}
	}()

	if cfg.SettlementInterval > 0 && tasks.Settler != nil {
		t := time.NewTicker(cfg.SettlementInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { settle(ctx, tasks, logger) })
	}

	if cfg.RoundSweepInterval > 0 && tasks.Rounds != nil {
		t := time.NewTicker(cfg.RoundSweepInterval)
		tickers = append(tickers, t)
		go runLoop(ctx, t.C, func() { sweepRounds(ctx, tasks, logger) })
	}

	<-ctx.Done()
	logger.Info("Maintenance tickers stopped")
}

func runLoop(ctx context.Context, ch <-chan time.Time, fn func()) {
	for {
		select {
		case <-ch:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// --------------------------------------------------------------------------
// Task implementations
// --------------------------------------------------------------------------

func settle(ctx context.Context, tasks Tasks, logger *slog.Logger) {
	res := tasks.Settler.Poll(ctx)
	for _, e := range res.Errors {
		logger.Warn("Settlement poll: error", "run_id", res.RunID, "error", e)
	}
	if res.MatchesSettled > 0 || res.PlayerWagersSettled > 0 {
		tasks.Hooks.balancesChanged(logger)
	}
}

func sweepRounds(ctx context.Context, tasks Tasks, logger *slog.Logger) {
	res := tasks.Rounds.SweepDueRounds(ctx)
	for _, e := range res.Errors {
		logger.Warn("Round sweep: error", "error", e)
	}
	if res.RoundsEnded > 0 {
		tasks.Hooks.balancesChanged(logger)
	}
}
