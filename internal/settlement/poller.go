package settlement

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// PollResult tracks the outcome of one poll across all pending matches.
type PollResult struct {
	RunID               string
	MatchesPending      int
	MatchesFinished     int
	MatchesSettled      int
	WagersSettled       int
	PlayerWagersSettled int
	PointsCredited      int64
	Duration            time.Duration
	Errors              []string
	Results             []MatchResult
}

// Summary returns a human-readable summary.
func (r *PollResult) Summary() string {
	return fmt.Sprintf(
		"run=%s pending=%d finished=%d settled=%d wagers=%d player_wagers=%d credited=%d errors=%d dur=%s",
		r.RunID, r.MatchesPending, r.MatchesFinished, r.MatchesSettled, r.WagersSettled,
		r.PlayerWagersSettled, r.PointsCredited, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// Poller settles every pending match the feed reports as finished.
type Poller struct {
	engine        *Engine
	store         store.Store
	feed          provider.Feed
	workers       int
	settlePlayers bool
	metrics       *metrics.Manager
	logger        *slog.Logger
}

type PollerConfig struct {
	Workers int
	// SettlePlayers enables resolving player wagers from match lineups.
	SettlePlayers bool
	Metrics       *metrics.Manager
}

func NewPoller(engine *Engine, st store.Store, feed provider.Feed, cfg PollerConfig, logger *slog.Logger) *Poller {
	if logger == nil {
		logger = slog.Default()
	}
	return &Poller{
		engine:        engine,
		store:         st,
		feed:          feed,
		workers:       cfg.Workers,
		settlePlayers: cfg.SettlePlayers,
		metrics:       cfg.Metrics,
		logger:        logger,
	}
}

type groupKey struct {
	LeagueCode string
	Season     int
}

// Poll groups pending matches by (league code, season) so each group costs
// one results fetch, and settles groups on a worker pool. A failing match is
// recorded and skipped; the rest of the run continues.
func (p *Poller) Poll(ctx context.Context) PollResult {
	start := time.Now()
	result := PollResult{RunID: uuid.NewString()}
	defer p.metrics.SettlementRun()

	var pending []store.PendingMatch
	err := p.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		pending, err = tx.PendingMatches(ctx)
		return err
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list pending matches: %v", err))
		result.Duration = time.Since(start)
		return result
	}

	result.MatchesPending = len(pending)
	if len(pending) == 0 {
		p.logger.Debug("No pending matches to settle")
		result.Duration = time.Since(start)
		return result
	}
	p.logger.Info("Found pending matches", "run_id", result.RunID, "count", len(pending))

	groups := make(map[groupKey][]store.PendingMatch)
	for _, m := range pending {
		key := groupKey{m.LeagueCode, m.Season}
		groups[key] = append(groups[key], m)
	}

	// Worker pool: one channel of groups, N workers
	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	if workers > len(groups) {
		workers = len(groups)
	}

	type groupWork struct {
		key     groupKey
		matches []store.PendingMatch
	}
	ch := make(chan groupWork, len(groups))
	for key, matches := range groups {
		ch <- groupWork{key, matches}
	}
	close(ch)

	var mu sync.Mutex
	var wg sync.WaitGroup

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for work := range ch {
				gr := p.settleGroup(ctx, work.key, work.matches)

				mu.Lock()
				result.MatchesFinished += gr.MatchesFinished
				result.MatchesSettled += gr.MatchesSettled
				result.WagersSettled += gr.WagersSettled
				result.PlayerWagersSettled += gr.PlayerWagersSettled
				result.PointsCredited += gr.PointsCredited
				result.Errors = append(result.Errors, gr.Errors...)
				result.Results = append(result.Results, gr.Results...)
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	sort.Slice(result.Results, func(i, j int) bool { return result.Results[i].MatchID < result.Results[j].MatchID })
	sort.Strings(result.Errors)
	result.Duration = time.Since(start)
	p.logger.Info("Settlement poll complete", "summary", result.Summary())
	return result
}

func (p *Poller) settleGroup(ctx context.Context, key groupKey, matches []store.PendingMatch) PollResult {
	var gr PollResult

	results, err := p.feed.LeagueResults(ctx, key.LeagueCode, key.Season)
	if err != nil {
		// A feed miss means nothing has finished yet as far as we can tell.
		if !errors.Is(err, provider.ErrDataUnavailable) {
			gr.Errors = append(gr.Errors, fmt.Sprintf("%s/%d: fetch results: %v", key.LeagueCode, key.Season, err))
		}
		p.logger.Warn("Results unavailable", "league", key.LeagueCode, "season", key.Season, "error", err)
		return gr
	}
	byID := make(map[int64]provider.Match, len(results))
	for _, r := range results {
		byID[r.ID] = r
	}

	for _, m := range matches {
		match, ok := byID[m.MatchID]
		if !ok || !match.Finished {
			continue
		}
		home, away, ok := match.Score()
		if !ok {
			gr.Errors = append(gr.Errors, fmt.Sprintf("match %d: finished without a score", m.MatchID))
			continue
		}
		gr.MatchesFinished++

		res, err := p.engine.SettleMatch(ctx, m.MatchID, home, away)
		if err != nil {
			gr.Errors = append(gr.Errors, err.Error())
			p.logger.Warn("Match settlement failed", "match_id", m.MatchID, "error", err)
			continue
		}
		if !res.AlreadySettled {
			gr.MatchesSettled++
			gr.WagersSettled += res.Settled
			gr.PointsCredited += res.Credited
			gr.Results = append(gr.Results, res)
		}

		if p.settlePlayers {
			p.settlePlayerWagers(ctx, m.MatchID, &gr)
		}
	}
	return gr
}

func (p *Poller) settlePlayerWagers(ctx context.Context, matchID int64, gr *PollResult) {
	lines, err := p.feed.MatchPlayers(ctx, matchID)
	if err != nil {
		p.logger.Debug("Player lines unavailable, leaving player wagers open", "match_id", matchID, "error", err)
		return
	}
	res, err := p.engine.SettlePlayerWagers(ctx, matchID, lines)
	if err != nil {
		gr.Errors = append(gr.Errors, err.Error())
		p.logger.Warn("Player wager settlement failed", "match_id", matchID, "error", err)
		return
	}
	gr.PlayerWagersSettled += res.Settled
	gr.PointsCredited += res.Credited
}
