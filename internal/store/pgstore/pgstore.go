// Package pgstore implements store.Store on PostgreSQL through the prepared
// statements registered by package db.
package pgstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/albapepper/scoracle-league/internal/db"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// PostgreSQL error codes that mean the transaction lost a race.
const (
	codeSerializationFailure = "40001"
	codeDeadlockDetected     = "40P01"
	codeUniqueViolation      = "23505"
	codeForeignKeyViolation  = "23503"
)

type Store struct {
	pool *db.Pool
}

func New(pool *db.Pool) *Store {
	return &Store{pool: pool}
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	pgxTx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify("begin", err)
	}
	defer pgxTx.Rollback(ctx) //nolint:errcheck

	if err := fn(ctx, &pgTx{tx: pgxTx}); err != nil {
		return err
	}
	if err := pgxTx.Commit(ctx); err != nil {
		return classify("commit", err)
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.pool.HealthCheck(ctx); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (s *Store) Close() {
	s.pool.Close()
}

// classify maps driver errors onto the store sentinels.
func classify(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case codeSerializationFailure, codeDeadlockDetected, codeUniqueViolation:
			return fmt.Errorf("%s: %w: %w", op, store.ErrConcurrentModification, err)
		case codeForeignKeyViolation:
			return fmt.Errorf("%s: %w: %w", op, store.ErrNotFound, err)
		}
	}
	return fmt.Errorf("%s: %w: %w", op, store.ErrPersistence, err)
}

type pgTx struct {
	tx pgx.Tx
}

// exec runs a statement that must touch at least one row.
func (t *pgTx) exec(ctx context.Context, op, stmt string, args ...any) error {
	tag, err := t.tx.Exec(ctx, stmt, args...)
	if err != nil {
		return classify(op, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%s: %w", op, store.ErrNotFound)
	}
	return nil
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

func scanUser(row pgx.Row) (store.User, error) {
	var u store.User
	err := row.Scan(&u.ID, &u.Username, &u.FavouriteTeam, &u.CreatedAt)
	return u, err
}

func (t *pgTx) EnsureUser(ctx context.Context, id, username string) (store.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, "user_ensure", id, username))
	if err != nil {
		return store.User{}, classify("ensure user", err)
	}
	return u, nil
}

func (t *pgTx) GetUser(ctx context.Context, id string) (store.User, error) {
	u, err := scanUser(t.tx.QueryRow(ctx, "user_get", id))
	if err != nil {
		return store.User{}, classify("get user "+id, err)
	}
	return u, nil
}

func (t *pgTx) UpdateUser(ctx context.Context, id string, fields ...store.UserField) (store.User, error) {
	for _, f := range fields {
		var err error
		switch v := f.(type) {
		case store.SetUsername:
			err = t.exec(ctx, "update username", "user_set_username", id, string(v))
		case store.SetFavouriteTeam:
			err = t.exec(ctx, "update favourite team", "user_set_favourite_team", id, string(v))
		}
		if err != nil {
			return store.User{}, err
		}
	}
	return t.GetUser(ctx, id)
}

// --------------------------------------------------------------------------
// Leagues
// --------------------------------------------------------------------------

func scanLeague(row pgx.Row) (store.League, error) {
	var (
		l                   store.League
		leagueType, privacy string
	)
	if err := row.Scan(&l.ID, &l.Name, &leagueType, &privacy, &l.JoinCode, &l.CreatorID, &l.RoundEnd, &l.CreatedAt); err != nil {
		return store.League{}, err
	}
	l.Type = store.LeagueType(leagueType)
	l.Privacy = store.Privacy(privacy)
	return l, nil
}

func (t *pgTx) leagues(ctx context.Context, op, stmt string, args ...any) ([]store.League, error) {
	rows, err := t.tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.League, error) {
		return scanLeague(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (t *pgTx) CreateLeague(ctx context.Context, l store.League) (store.League, error) {
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now().UTC()
	}
	err := t.tx.QueryRow(ctx, "league_create",
		l.Name, string(l.Type), string(l.Privacy), l.JoinCode, l.CreatorID, l.RoundEnd, l.CreatedAt,
	).Scan(&l.ID)
	if err != nil {
		return store.League{}, classify("create league", err)
	}
	return l, nil
}

func (t *pgTx) GetLeague(ctx context.Context, id int64) (store.League, error) {
	l, err := scanLeague(t.tx.QueryRow(ctx, "league_get", id))
	if err != nil {
		return store.League{}, classify(fmt.Sprintf("get league %d", id), err)
	}
	return l, nil
}

func (t *pgTx) LockLeague(ctx context.Context, id int64) (store.League, error) {
	l, err := scanLeague(t.tx.QueryRow(ctx, "league_lock", id))
	if err != nil {
		return store.League{}, classify(fmt.Sprintf("lock league %d", id), err)
	}
	return l, nil
}

func (t *pgTx) LeagueByJoinCode(ctx context.Context, code string) (store.League, error) {
	l, err := scanLeague(t.tx.QueryRow(ctx, "league_by_join_code", code))
	if err != nil {
		return store.League{}, classify("league by join code", err)
	}
	return l, nil
}

func (t *pgTx) SetRoundEnd(ctx context.Context, leagueID int64, roundEnd time.Time) error {
	return t.exec(ctx, fmt.Sprintf("set round end %d", leagueID), "league_set_round_end", leagueID, roundEnd)
}

func (t *pgTx) DueSeasonalLeagues(ctx context.Context, now time.Time) ([]store.League, error) {
	return t.leagues(ctx, "due seasonal leagues", "leagues_due_for_round", now)
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

func (t *pgTx) AddMember(ctx context.Context, leagueID int64, userID string) (bool, error) {
	// Check first: a foreign key violation would abort the transaction.
	if _, err := t.GetLeague(ctx, leagueID); err != nil {
		return false, err
	}
	tag, err := t.tx.Exec(ctx, "member_add", leagueID, userID)
	if err != nil {
		return false, classify("add member", err)
	}
	return tag.RowsAffected() == 1, nil
}

func (t *pgTx) IsMember(ctx context.Context, leagueID int64, userID string) (bool, error) {
	var ok bool
	if err := t.tx.QueryRow(ctx, "member_exists", leagueID, userID).Scan(&ok); err != nil {
		return false, classify("check membership", err)
	}
	return ok, nil
}

func (t *pgTx) Members(ctx context.Context, leagueID int64) ([]string, error) {
	rows, err := t.tx.Query(ctx, "league_members", leagueID)
	if err != nil {
		return nil, classify("list members", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, classify("list members", err)
	}
	return ids, nil
}

func (t *pgTx) UserLeagues(ctx context.Context, userID string) ([]store.League, error) {
	return t.leagues(ctx, "user leagues", "user_leagues", userID)
}

// --------------------------------------------------------------------------
// Accounts
// --------------------------------------------------------------------------

func scanAccount(row pgx.Row) (store.Account, error) {
	var a store.Account
	err := row.Scan(&a.UserID, &a.LeagueID, &a.Balance, &a.Trophies, &a.UpdatedAt)
	return a, err
}

func (t *pgTx) GetAccount(ctx context.Context, userID string, leagueID int64) (store.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, "account_get", userID, leagueID))
	if err != nil {
		return store.Account{}, classify(fmt.Sprintf("get account %s/%d", userID, leagueID), err)
	}
	return a, nil
}

func (t *pgTx) LockAccount(ctx context.Context, userID string, leagueID int64) (store.Account, error) {
	a, err := scanAccount(t.tx.QueryRow(ctx, "account_lock", userID, leagueID))
	if err != nil {
		return store.Account{}, classify(fmt.Sprintf("lock account %s/%d", userID, leagueID), err)
	}
	return a, nil
}

func (t *pgTx) EnsureAccount(ctx context.Context, userID string, leagueID int64, initial int64) (store.Account, bool, error) {
	tag, err := t.tx.Exec(ctx, "account_insert", userID, leagueID, initial)
	if err != nil {
		return store.Account{}, false, classify("create account", err)
	}
	a, err := t.LockAccount(ctx, userID, leagueID)
	if err != nil {
		return store.Account{}, false, err
	}
	return a, tag.RowsAffected() == 1, nil
}

func (t *pgTx) SetBalance(ctx context.Context, userID string, leagueID int64, balance int64) error {
	return t.exec(ctx, fmt.Sprintf("set balance %s/%d", userID, leagueID), "account_set_balance", userID, leagueID, balance)
}

func (t *pgTx) LockLeagueAccounts(ctx context.Context, leagueID int64) ([]store.Account, error) {
	rows, err := t.tx.Query(ctx, "league_accounts_lock", leagueID)
	if err != nil {
		return nil, classify("lock league accounts", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Account, error) {
		return scanAccount(row)
	})
	if err != nil {
		return nil, classify("lock league accounts", err)
	}
	return out, nil
}

func (t *pgTx) SaveAccounts(ctx context.Context, accounts []store.Account) error {
	if len(accounts) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, a := range accounts {
		batch.Queue("account_save", a.UserID, a.LeagueID, a.Balance, a.Trophies)
	}
	br := t.tx.SendBatch(ctx, batch)
	defer br.Close()

	for _, a := range accounts {
		tag, err := br.Exec()
		if err != nil {
			return classify("save accounts", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("save account %s/%d: %w", a.UserID, a.LeagueID, store.ErrNotFound)
		}
	}
	return nil
}

func (t *pgTx) Leaderboard(ctx context.Context, leagueID int64) ([]store.LeaderboardRow, error) {
	rows, err := t.tx.Query(ctx, "leaderboard", leagueID)
	if err != nil {
		return nil, classify("leaderboard", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.LeaderboardRow, error) {
		var r store.LeaderboardRow
		err := row.Scan(&r.UserID, &r.Username, &r.Balance, &r.Trophies)
		return r, err
	})
	if err != nil {
		return nil, classify("leaderboard", err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Wagers
// --------------------------------------------------------------------------

func scanWager(row pgx.Row) (store.Wager, error) {
	var (
		w             store.Wager
		kind, outcome string
	)
	err := row.Scan(&w.ID, &w.UserID, &w.LeagueID, &w.MatchID, &w.LeagueCode, &w.Season, &kind,
		&w.PredictedHome, &w.PredictedAway, &outcome, &w.Stake, &w.Multiplier, &w.PotentialPayout,
		&w.GlobalMirrored, &w.CreatedAt)
	if err != nil {
		return store.Wager{}, err
	}
	w.Kind = store.WagerKind(kind)
	w.Outcome = provider.Outcome(outcome)
	return w, nil
}

func (t *pgTx) wagers(ctx context.Context, op, stmt string, args ...any) ([]store.Wager, error) {
	rows, err := t.tx.Query(ctx, stmt, args...)
	if err != nil {
		return nil, classify(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.Wager, error) {
		return scanWager(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (t *pgTx) GetWager(ctx context.Context, key store.WagerKey) (store.Wager, error) {
	w, err := scanWager(t.tx.QueryRow(ctx, "wager_get", key.UserID, key.LeagueID, key.MatchID))
	if err != nil {
		return store.Wager{}, classify(fmt.Sprintf("get wager %+v", key), err)
	}
	return w, nil
}

func (t *pgTx) PutWager(ctx context.Context, w store.Wager) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, "wager_put",
		w.ID, w.UserID, w.LeagueID, w.MatchID, w.LeagueCode, w.Season, string(w.Kind),
		w.PredictedHome, w.PredictedAway, string(w.Outcome), w.Stake, w.Multiplier, w.PotentialPayout,
		w.GlobalMirrored, w.CreatedAt)
	return classify("put wager", err)
}

func (t *pgTx) TakeWagers(ctx context.Context, matchID int64) ([]store.Wager, error) {
	return t.wagers(ctx, fmt.Sprintf("take wagers %d", matchID), "wagers_take", matchID)
}

func (t *pgTx) UserWagers(ctx context.Context, userID string, leagueID int64) ([]store.Wager, error) {
	return t.wagers(ctx, "user wagers", "user_wagers", userID, leagueID)
}

func scanPlayerWager(row pgx.Row) (store.PlayerWager, error) {
	var w store.PlayerWager
	err := row.Scan(&w.ID, &w.UserID, &w.LeagueID, &w.MatchID, &w.PlayerID, &w.LeagueCode, &w.Season,
		&w.PredictedGoals, &w.PredictedShots, &w.PredictedMinutes, &w.Stake, &w.Multiplier,
		&w.PotentialPayout, &w.GlobalMirrored, &w.CreatedAt)
	return w, err
}

func (t *pgTx) GetPlayerWager(ctx context.Context, key store.PlayerWagerKey) (store.PlayerWager, error) {
	w, err := scanPlayerWager(t.tx.QueryRow(ctx, "player_wager_get", key.UserID, key.LeagueID, key.MatchID, key.PlayerID))
	if err != nil {
		return store.PlayerWager{}, classify(fmt.Sprintf("get player wager %+v", key), err)
	}
	return w, nil
}

func (t *pgTx) PutPlayerWager(ctx context.Context, w store.PlayerWager) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, "player_wager_put",
		w.ID, w.UserID, w.LeagueID, w.MatchID, w.PlayerID, w.LeagueCode, w.Season,
		w.PredictedGoals, w.PredictedShots, w.PredictedMinutes, w.Stake, w.Multiplier,
		w.PotentialPayout, w.GlobalMirrored, w.CreatedAt)
	return classify("put player wager", err)
}

func (t *pgTx) TakePlayerWagers(ctx context.Context, matchID int64) ([]store.PlayerWager, error) {
	op := fmt.Sprintf("take player wagers %d", matchID)
	rows, err := t.tx.Query(ctx, "player_wagers_take", matchID)
	if err != nil {
		return nil, classify(op, err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PlayerWager, error) {
		return scanPlayerWager(row)
	})
	if err != nil {
		return nil, classify(op, err)
	}
	return out, nil
}

func (t *pgTx) PendingMatches(ctx context.Context) ([]store.PendingMatch, error) {
	rows, err := t.tx.Query(ctx, "pending_matches")
	if err != nil {
		return nil, classify("pending matches", err)
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (store.PendingMatch, error) {
		var p store.PendingMatch
		err := row.Scan(&p.MatchID, &p.LeagueCode, &p.Season)
		return p, err
	})
	if err != nil {
		return nil, classify("pending matches", err)
	}
	return out, nil
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

// LockMatch takes a transaction-scoped advisory lock keyed by match ID.
func (t *pgTx) LockMatch(ctx context.Context, matchID int64) error {
	_, err := t.tx.Exec(ctx, "match_lock", matchID)
	return classify(fmt.Sprintf("lock match %d", matchID), err)
}

// LockMatchShared takes the shared form of the same advisory lock.
func (t *pgTx) LockMatchShared(ctx context.Context, matchID int64) error {
	_, err := t.tx.Exec(ctx, "match_lock_shared", matchID)
	return classify(fmt.Sprintf("lock match %d shared", matchID), err)
}

func (t *pgTx) SettledMatch(ctx context.Context, matchID int64) (store.SettledMatch, error) {
	var s store.SettledMatch
	err := t.tx.QueryRow(ctx, "match_settled", matchID).
		Scan(&s.MatchID, &s.HomeGoals, &s.AwayGoals, &s.Settled, &s.SettledAt)
	if err != nil {
		return store.SettledMatch{}, classify(fmt.Sprintf("settled match %d", matchID), err)
	}
	return s, nil
}

func (t *pgTx) MarkSettled(ctx context.Context, s store.SettledMatch) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = time.Now().UTC()
	}
	_, err := t.tx.Exec(ctx, "match_mark_settled", s.MatchID, s.HomeGoals, s.AwayGoals, s.Settled, s.SettledAt)
	return classify(fmt.Sprintf("mark settled %d", s.MatchID), err)
}
