// Package league manages leagues: creation, joining, leaderboards, and the
// weekly rounds of seasonal leagues.
package league

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/store"
)

const (
	joinCodeLength   = 8
	joinCodeAttempts = 3
)

type Manager struct {
	store   store.Store
	clock   clock.Clock
	metrics *metrics.Manager
	logger  *slog.Logger
}

type Option func(*Manager)

func WithClock(c clock.Clock) Option {
	return func(m *Manager) { m.clock = c }
}

func WithMetrics(mm *metrics.Manager) Option {
	return func(m *Manager) { m.metrics = mm }
}

func NewManager(st store.Store, logger *slog.Logger, opts ...Option) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	m := &Manager{store: st, clock: clock.New(), logger: logger}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

type CreateRequest struct {
	Name      string
	Type      store.LeagueType
	Privacy   store.Privacy
	CreatorID string
}

func (r CreateRequest) validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("empty league name: %w", store.ErrInvalidLeague)
	}
	if r.Type != store.LeagueClassic && r.Type != store.LeagueSeasonal {
		return fmt.Errorf("league type %q: %w", r.Type, store.ErrInvalidLeague)
	}
	if r.Privacy != store.Public && r.Privacy != store.Private {
		return fmt.Errorf("privacy %q: %w", r.Privacy, store.ErrInvalidLeague)
	}
	return nil
}

func newJoinCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:joinCodeLength])
}

// Create makes a league and joins its creator. Private leagues get a join
// code; seasonal leagues get their first round deadline.
func (m *Manager) Create(ctx context.Context, req CreateRequest) (store.League, error) {
	if err := req.validate(); err != nil {
		return store.League{}, err
	}

	var created store.League
	var err error
	for attempt := 0; attempt < joinCodeAttempts; attempt++ {
		now := m.clock.Now().UTC()
		l := store.League{
			Name:      strings.TrimSpace(req.Name),
			Type:      req.Type,
			Privacy:   req.Privacy,
			CreatorID: req.CreatorID,
			CreatedAt: now,
		}
		if l.Privacy == store.Private {
			l.JoinCode = newJoinCode()
		}
		if l.Type == store.LeagueSeasonal {
			end := now.Add(config.RoundLength)
			l.RoundEnd = &end
		}

		err = m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			var err error
			if created, err = tx.CreateLeague(ctx, l); err != nil {
				return fmt.Errorf("create league: %w", err)
			}
			_, _, err = ledger.Open(ctx, tx, req.CreatorID, created.ID)
			return err
		})
		// A join code collision surfaces as a conflict; draw another code.
		if !errors.Is(err, store.ErrConcurrentModification) {
			break
		}
	}
	if err != nil {
		return store.League{}, err
	}

	m.logger.Info("League created", "league_id", created.ID, "type", created.Type,
		"privacy", created.Privacy, "creator", created.CreatorID)
	return created, nil
}

// Join adds a user to a league and opens their account. Private leagues
// require the matching join code.
func (m *Manager) Join(ctx context.Context, userID string, leagueID int64, joinCode string) (store.Account, error) {
	var acct store.Account
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.GetLeague(ctx, leagueID)
		if err != nil {
			return err
		}
		if l.Privacy == store.Private && !strings.EqualFold(strings.TrimSpace(joinCode), l.JoinCode) {
			return fmt.Errorf("league %d: %w", leagueID, store.ErrInvalidJoinCode)
		}
		acct, _, err = ledger.Open(ctx, tx, userID, leagueID)
		return err
	})
	if err != nil {
		return store.Account{}, err
	}
	return acct, nil
}

// JoinByCode joins the private league a code belongs to.
func (m *Manager) JoinByCode(ctx context.Context, userID, joinCode string) (store.League, store.Account, error) {
	code := strings.ToUpper(strings.TrimSpace(joinCode))
	var (
		l    store.League
		acct store.Account
	)
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		if l, err = tx.LeagueByJoinCode(ctx, code); err != nil {
			if errors.Is(err, store.ErrNotFound) {
				return fmt.Errorf("join code %q: %w", code, store.ErrInvalidJoinCode)
			}
			return err
		}
		acct, _, err = ledger.Open(ctx, tx, userID, l.ID)
		return err
	})
	if err != nil {
		return store.League{}, store.Account{}, err
	}
	return l, acct, nil
}

// UserLeagues lists every league the user belongs to.
func (m *Manager) UserLeagues(ctx context.Context, userID string) ([]store.League, error) {
	var out []store.League
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.UserLeagues(ctx, userID)
		return err
	})
	return out, err
}

// --------------------------------------------------------------------------
// Leaderboards
// --------------------------------------------------------------------------

type Row struct {
	Rank     int    `json:"rank"`
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	// Trophies is reported for seasonal leagues only.
	Trophies *int `json:"trophies,omitempty"`
}

type Leaderboard struct {
	League store.League `json:"league"`
	Rows   []Row        `json:"rows"`
}

// Leaderboard ranks members by balance, highest first. Equal balances share
// a rank.
func (m *Manager) Leaderboard(ctx context.Context, leagueID int64) (Leaderboard, error) {
	var lb Leaderboard
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.GetLeague(ctx, leagueID)
		if err != nil {
			return err
		}
		rows, err := tx.Leaderboard(ctx, leagueID)
		if err != nil {
			return err
		}

		lb = Leaderboard{League: l, Rows: make([]Row, 0, len(rows))}
		for i, r := range rows {
			row := Row{Rank: i + 1, UserID: r.UserID, Username: r.Username, Balance: r.Balance}
			if i > 0 && rows[i-1].Balance == r.Balance {
				row.Rank = lb.Rows[i-1].Rank
			}
			if l.Type == store.LeagueSeasonal {
				trophies := r.Trophies
				row.Trophies = &trophies
			}
			lb.Rows = append(lb.Rows, row)
		}
		return nil
	})
	return lb, err
}

// --------------------------------------------------------------------------
// Seasonal rounds
// --------------------------------------------------------------------------

// RoundResult reports one round end.
type RoundResult struct {
	LeagueID     int64     `json:"league_id"`
	TopBalance   int64     `json:"top_balance"`
	Winners      []string  `json:"winners"`
	Accounts     int       `json:"accounts"`
	NextRoundEnd time.Time `json:"next_round_end"`
	Skipped      bool      `json:"skipped,omitempty"`
}

// Summary returns a human-readable summary.
func (r *RoundResult) Summary() string {
	return fmt.Sprintf("league=%d top=%d winners=%d accounts=%d next=%s",
		r.LeagueID, r.TopBalance, len(r.Winners), r.Accounts, r.NextRoundEnd.Format(time.RFC3339))
}

// EndSeasonalRound awards a trophy to every account at the top balance,
// resets every balance to the initial amount, and moves the deadline to the
// next whole week in the future.
func (m *Manager) EndSeasonalRound(ctx context.Context, leagueID int64) (RoundResult, error) {
	return m.endRound(ctx, leagueID, false)
}

func (m *Manager) endRound(ctx context.Context, leagueID int64, onlyIfDue bool) (RoundResult, error) {
	now := m.clock.Now().UTC()
	res := RoundResult{LeagueID: leagueID}

	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		res = RoundResult{LeagueID: leagueID}

		l, err := tx.LockLeague(ctx, leagueID)
		if err != nil {
			return err
		}
		if l.Type != store.LeagueSeasonal {
			return fmt.Errorf("league %d: %w", leagueID, store.ErrNotSeasonal)
		}
		// Another sweeper may have ended this round while we waited for the lock.
		if onlyIfDue && l.RoundEnd != nil && l.RoundEnd.After(now) {
			res.Skipped = true
			res.NextRoundEnd = *l.RoundEnd
			return nil
		}

		accounts, err := tx.LockLeagueAccounts(ctx, leagueID)
		if err != nil {
			return err
		}
		if len(accounts) == 0 {
			return fmt.Errorf("league %d: %w", leagueID, store.ErrNoActiveAccounts)
		}

		res.Accounts = len(accounts)
		res.TopBalance = accounts[0].Balance
		for _, a := range accounts[1:] {
			if a.Balance > res.TopBalance {
				res.TopBalance = a.Balance
			}
		}
		for i := range accounts {
			if accounts[i].Balance == res.TopBalance {
				accounts[i].Trophies++
				res.Winners = append(res.Winners, accounts[i].UserID)
			}
			accounts[i].Balance = config.InitialBalance
		}
		if err := tx.SaveAccounts(ctx, accounts); err != nil {
			return err
		}

		res.NextRoundEnd = nextRoundEnd(l.RoundEnd, now)
		return tx.SetRoundEnd(ctx, leagueID, res.NextRoundEnd)
	})
	if err != nil {
		return RoundResult{LeagueID: leagueID}, fmt.Errorf("end round for league %d: %w", leagueID, err)
	}

	if !res.Skipped {
		m.metrics.RoundEnded()
		m.logger.Info("Seasonal round ended", "summary", res.Summary())
	}
	return res, nil
}

// nextRoundEnd advances the deadline in whole rounds until it is after now.
func nextRoundEnd(current *time.Time, now time.Time) time.Time {
	next := now
	if current != nil {
		next = *current
	}
	next = next.Add(config.RoundLength)
	for !next.After(now) {
		next = next.Add(config.RoundLength)
	}
	return next
}

// SweepResult tracks one pass over due seasonal leagues.
type SweepResult struct {
	LeaguesDue   int
	RoundsEnded  int
	Rescheduled  int
	Duration     time.Duration
	Errors       []string
	RoundResults []RoundResult
}

// Summary returns a human-readable summary.
func (r *SweepResult) Summary() string {
	return fmt.Sprintf("due=%d ended=%d rescheduled=%d errors=%d dur=%s",
		r.LeaguesDue, r.RoundsEnded, r.Rescheduled, len(r.Errors), r.Duration.Round(time.Millisecond))
}

// SweepDueRounds ends the round of every seasonal league whose deadline has
// passed. A league with no accounts only has its deadline moved forward.
func (m *Manager) SweepDueRounds(ctx context.Context) SweepResult {
	start := time.Now()
	var result SweepResult
	now := m.clock.Now().UTC()

	var due []store.League
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		due, err = tx.DueSeasonalLeagues(ctx, now)
		return err
	})
	if err != nil {
		result.Errors = append(result.Errors, fmt.Sprintf("list due leagues: %v", err))
		result.Duration = time.Since(start)
		return result
	}
	result.LeaguesDue = len(due)

	for _, l := range due {
		res, err := m.endRound(ctx, l.ID, true)
		switch {
		case errors.Is(err, store.ErrNoActiveAccounts):
			if err := m.reschedule(ctx, l.ID, now); err != nil {
				result.Errors = append(result.Errors, err.Error())
				continue
			}
			result.Rescheduled++
		case err != nil:
			result.Errors = append(result.Errors, err.Error())
			m.logger.Warn("Round end failed", "league_id", l.ID, "error", err)
		case !res.Skipped:
			result.RoundsEnded++
			result.RoundResults = append(result.RoundResults, res)
		}
	}

	result.Duration = time.Since(start)
	if result.LeaguesDue > 0 {
		m.logger.Info("Round sweep complete", "summary", result.Summary())
	}
	return result
}

func (m *Manager) reschedule(ctx context.Context, leagueID int64, now time.Time) error {
	err := m.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		l, err := tx.LockLeague(ctx, leagueID)
		if err != nil {
			return err
		}
		return tx.SetRoundEnd(ctx, leagueID, nextRoundEnd(l.RoundEnd, now))
	})
	if err != nil {
		return fmt.Errorf("reschedule league %d: %w", leagueID, err)
	}
	return nil
}
