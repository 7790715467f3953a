// Package settlement resolves outstanding wagers once a match result is known.
//
// A match moves open → concluded → settled. Settling takes every wager on the
// match out of the store, credits the winners, and records the result in the
// same transaction, so a second run finds nothing to pay. Runs for one match
// are serialized by the store's match lock.
package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"github.com/itbasis/go-clock"

	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/pricing"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// Fixed settlement factors. Quoted multipliers do not affect match wagers.
const (
	OutcomeFactor = 3
	ExactFactor   = 5
	ResultFactor  = 2
)

// Payout is what a match wager earns against the final score.
func Payout(w store.Wager, homeGoals, awayGoals int) int64 {
	actual := provider.ResultOf(homeGoals, awayGoals)
	switch w.Kind {
	case store.KindOutcome:
		if w.Outcome == actual {
			return w.Stake * OutcomeFactor
		}
	case store.KindExact:
		if w.PredictedHome == homeGoals && w.PredictedAway == awayGoals {
			return w.Stake * ExactFactor
		}
		if w.PredictedResult() == actual {
			return w.Stake * ResultFactor
		}
	}
	return 0
}

// PlayerPayout is what a player wager earns against the player's line. A
// player who did not appear (nil line) has the stake refunded.
func PlayerPayout(w store.PlayerWager, line *provider.PlayerLine) (payout int64, refund bool) {
	if line == nil {
		return w.Stake, true
	}
	if line.Goals == w.PredictedGoals && line.Shots == w.PredictedShots {
		return pricing.Payout(w.Stake, w.Multiplier), false
	}
	return 0, false
}

// MatchResult reports one settleMatch run.
type MatchResult struct {
	MatchID        int64 `json:"match_id"`
	HomeGoals      int   `json:"home_goals"`
	AwayGoals      int   `json:"away_goals"`
	Settled        int   `json:"settled"`
	Winners        int   `json:"winners"`
	Credited       int64 `json:"credited"`
	AlreadySettled bool  `json:"already_settled"`
}

// Summary returns a human-readable summary.
func (r *MatchResult) Summary() string {
	return fmt.Sprintf("match=%d score=%d-%d settled=%d winners=%d credited=%d repeat=%v",
		r.MatchID, r.HomeGoals, r.AwayGoals, r.Settled, r.Winners, r.Credited, r.AlreadySettled)
}

// PlayerResult reports one player-wager settlement run.
type PlayerResult struct {
	MatchID  int64 `json:"match_id"`
	Settled  int   `json:"settled"`
	Winners  int   `json:"winners"`
	Refunded int   `json:"refunded"`
	Credited int64 `json:"credited"`
}

type Engine struct {
	store   store.Store
	clock   clock.Clock
	metrics *metrics.Manager
	logger  *slog.Logger
}

type Option func(*Engine)

func WithClock(c clock.Clock) Option {
	return func(e *Engine) { e.clock = c }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(e *Engine) { e.metrics = m }
}

func NewEngine(st store.Store, logger *slog.Logger, opts ...Option) *Engine {
	if logger == nil {
		logger = slog.Default()
	}
	e := &Engine{store: st, clock: clock.New(), logger: logger}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

type settledWager struct {
	kind    string
	payout  int64
	outcome string
}

// SettleMatch resolves every outstanding match wager on matchID. Settling
// an already-settled match with the same score is a no-op returning zero;
// a different score fails with store.ErrResultConflict.
func (e *Engine) SettleMatch(ctx context.Context, matchID int64, homeGoals, awayGoals int) (MatchResult, error) {
	res := MatchResult{MatchID: matchID, HomeGoals: homeGoals, AwayGoals: awayGoals}
	if homeGoals < 0 || awayGoals < 0 {
		return res, fmt.Errorf("match %d score %d-%d: %w", matchID, homeGoals, awayGoals, store.ErrMalformedResult)
	}

	var paid []settledWager
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res.Settled, res.Winners, res.Credited, res.AlreadySettled = 0, 0, 0, false
		paid = paid[:0]

		if err := tx.LockMatch(ctx, matchID); err != nil {
			return err
		}
		prev, err := tx.SettledMatch(ctx, matchID)
		switch {
		case err == nil:
			if prev.HomeGoals != homeGoals || prev.AwayGoals != awayGoals {
				return fmt.Errorf("match %d settled at %d-%d, got %d-%d: %w",
					matchID, prev.HomeGoals, prev.AwayGoals, homeGoals, awayGoals, store.ErrResultConflict)
			}
			res.AlreadySettled = true
			return nil
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		wagers, err := tx.TakeWagers(ctx, matchID)
		if err != nil {
			return err
		}
		// Lock order must match placement: user, then league ascending.
		sort.Slice(wagers, func(i, j int) bool {
			if wagers[i].UserID != wagers[j].UserID {
				return wagers[i].UserID < wagers[j].UserID
			}
			return wagers[i].LeagueID < wagers[j].LeagueID
		})

		for _, w := range wagers {
			payout := Payout(w, homeGoals, awayGoals)
			outcome := "lost"
			if payout > 0 {
				if err := ledger.Credit(ctx, tx, w.UserID, w.LeagueID, payout, true); err != nil {
					return fmt.Errorf("credit wager %s: %w", w.ID, err)
				}
				outcome = "won"
				res.Winners++
				res.Credited += payout
			}
			paid = append(paid, settledWager{kind: string(w.Kind), payout: payout, outcome: outcome})
			res.Settled++
		}

		return tx.MarkSettled(ctx, store.SettledMatch{
			MatchID:   matchID,
			HomeGoals: homeGoals,
			AwayGoals: awayGoals,
			Settled:   res.Settled,
			SettledAt: e.clock.Now().UTC(),
		})
	})
	if err != nil {
		return MatchResult{MatchID: matchID, HomeGoals: homeGoals, AwayGoals: awayGoals}, fmt.Errorf("settle match %d: %w", matchID, err)
	}

	for _, p := range paid {
		e.metrics.WagerSettled(p.kind, p.outcome, p.payout)
	}
	if !res.AlreadySettled {
		e.logger.Info("Match settled", "summary", res.Summary())
	}
	return res, nil
}

// SettlePlayerWagers resolves player wagers on a match against its player
// lines. With no lines nothing is settled and the wagers stay outstanding.
func (e *Engine) SettlePlayerWagers(ctx context.Context, matchID int64, lines []provider.PlayerLine) (PlayerResult, error) {
	res := PlayerResult{MatchID: matchID}
	if len(lines) == 0 {
		return res, nil
	}
	byPlayer := make(map[int64]*provider.PlayerLine, len(lines))
	for i := range lines {
		byPlayer[lines[i].PlayerID] = &lines[i]
	}

	var paid []settledWager
	err := e.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = PlayerResult{MatchID: matchID}
		paid = paid[:0]

		if err := tx.LockMatch(ctx, matchID); err != nil {
			return err
		}
		wagers, err := tx.TakePlayerWagers(ctx, matchID)
		if err != nil {
			return err
		}
		sort.Slice(wagers, func(i, j int) bool {
			if wagers[i].UserID != wagers[j].UserID {
				return wagers[i].UserID < wagers[j].UserID
			}
			return wagers[i].LeagueID < wagers[j].LeagueID
		})

		for _, w := range wagers {
			payout, refund := PlayerPayout(w, byPlayer[w.PlayerID])
			outcome := "lost"
			if payout > 0 {
				// A refund returns the stake to the ledgers it came from.
				mirror := !refund || w.GlobalMirrored
				if err := ledger.Credit(ctx, tx, w.UserID, w.LeagueID, payout, mirror); err != nil {
					return fmt.Errorf("credit player wager %s: %w", w.ID, err)
				}
				switch {
				case refund:
					outcome = "refunded"
					res.Refunded++
				default:
					outcome = "won"
					res.Winners++
				}
				res.Credited += payout
			}
			paid = append(paid, settledWager{kind: "player", payout: payout, outcome: outcome})
			res.Settled++
		}
		return nil
	})
	if err != nil {
		return PlayerResult{MatchID: matchID}, fmt.Errorf("settle player wagers %d: %w", matchID, err)
	}

	for _, p := range paid {
		e.metrics.WagerSettled(p.kind, p.outcome, p.payout)
	}
	if res.Settled > 0 {
		e.logger.Info("Player wagers settled", "match_id", matchID,
			"settled", res.Settled, "winners", res.Winners, "refunded", res.Refunded)
	}
	return res, nil
}
