// Package memstore is an in-process store.Store. Transactions are serialized
// behind one mutex and work on a copy of the state, which replaces the live
// state only when the callback succeeds.
package memstore

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/itbasis/go-clock"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/store"
)

type accountKey struct {
	userID   string
	leagueID int64
}

type state struct {
	users        map[string]store.User
	leagues      map[int64]store.League
	nextLeague   int64
	members      map[int64]map[string]int // league -> user -> join sequence
	joinSeq      int
	accounts     map[accountKey]store.Account
	wagers       map[store.WagerKey]store.Wager
	playerWagers map[store.PlayerWagerKey]store.PlayerWager
	settled      map[int64]store.SettledMatch
}

func newState(now time.Time) *state {
	s := &state{
		users:        map[string]store.User{},
		leagues:      map[int64]store.League{},
		nextLeague:   config.GlobalLeagueID + 1,
		members:      map[int64]map[string]int{},
		accounts:     map[accountKey]store.Account{},
		wagers:       map[store.WagerKey]store.Wager{},
		playerWagers: map[store.PlayerWagerKey]store.PlayerWager{},
		settled:      map[int64]store.SettledMatch{},
	}
	s.leagues[config.GlobalLeagueID] = store.League{
		ID:        config.GlobalLeagueID,
		Name:      "Global",
		Type:      store.LeagueClassic,
		Privacy:   store.Public,
		CreatedAt: now,
	}
	return s
}

func (s *state) clone() *state {
	c := &state{
		users:        make(map[string]store.User, len(s.users)),
		leagues:      make(map[int64]store.League, len(s.leagues)),
		nextLeague:   s.nextLeague,
		members:      make(map[int64]map[string]int, len(s.members)),
		joinSeq:      s.joinSeq,
		accounts:     make(map[accountKey]store.Account, len(s.accounts)),
		wagers:       make(map[store.WagerKey]store.Wager, len(s.wagers)),
		playerWagers: make(map[store.PlayerWagerKey]store.PlayerWager, len(s.playerWagers)),
		settled:      make(map[int64]store.SettledMatch, len(s.settled)),
	}
	for k, v := range s.users {
		c.users[k] = v
	}
	for k, v := range s.leagues {
		c.leagues[k] = v
	}
	for k, m := range s.members {
		cm := make(map[string]int, len(m))
		for u, seq := range m {
			cm[u] = seq
		}
		c.members[k] = cm
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.wagers {
		c.wagers[k] = v
	}
	for k, v := range s.playerWagers {
		c.playerWagers[k] = v
	}
	for k, v := range s.settled {
		c.settled[k] = v
	}
	return c
}

// Store is a store.Store kept in memory.
type Store struct {
	mu    sync.Mutex
	clock clock.Clock
	state *state
}

type Option func(*Store)

// WithClock sets the clock used for created/updated timestamps.
func WithClock(c clock.Clock) Option {
	return func(s *Store) { s.clock = c }
}

// New returns an empty store holding only the global league.
func New(opts ...Option) *Store {
	s := &Store{clock: clock.New()}
	for _, opt := range opts {
		opt(s)
	}
	s.state = newState(s.clock.Now().UTC())
	return s
}

func (s *Store) WithTx(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("begin: %w: %w", store.ErrPersistence, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memTx{st: s.state.clone(), now: s.clock.Now().UTC()}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.state = tx.st
	return nil
}

func (s *Store) Ping(context.Context) error { return nil }

func (s *Store) Close() {}

type memTx struct {
	st  *state
	now time.Time
}

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

func (t *memTx) EnsureUser(_ context.Context, id, username string) (store.User, error) {
	if u, ok := t.st.users[id]; ok {
		return u, nil
	}
	u := store.User{ID: id, Username: username, CreatedAt: t.now}
	t.st.users[id] = u
	return u, nil
}

func (t *memTx) GetUser(_ context.Context, id string) (store.User, error) {
	u, ok := t.st.users[id]
	if !ok {
		return store.User{}, fmt.Errorf("user %s: %w", id, store.ErrNotFound)
	}
	return u, nil
}

func (t *memTx) UpdateUser(ctx context.Context, id string, fields ...store.UserField) (store.User, error) {
	u, err := t.GetUser(ctx, id)
	if err != nil {
		return store.User{}, err
	}
	store.Apply(&u, fields...)
	t.st.users[id] = u
	return u, nil
}

// --------------------------------------------------------------------------
// Leagues
// --------------------------------------------------------------------------

func (t *memTx) CreateLeague(_ context.Context, l store.League) (store.League, error) {
	if l.JoinCode != "" {
		for _, other := range t.st.leagues {
			if other.JoinCode == l.JoinCode {
				return store.League{}, fmt.Errorf("join code %s taken: %w", l.JoinCode, store.ErrConcurrentModification)
			}
		}
	}
	if l.CreatorID != "" {
		if _, ok := t.st.users[l.CreatorID]; !ok {
			return store.League{}, fmt.Errorf("creator %s: %w", l.CreatorID, store.ErrNotFound)
		}
	}
	l.ID = t.st.nextLeague
	t.st.nextLeague++
	if l.CreatedAt.IsZero() {
		l.CreatedAt = t.now
	}
	t.st.leagues[l.ID] = l
	return l, nil
}

func (t *memTx) GetLeague(_ context.Context, id int64) (store.League, error) {
	l, ok := t.st.leagues[id]
	if !ok {
		return store.League{}, fmt.Errorf("league %d: %w", id, store.ErrNotFound)
	}
	return l, nil
}

func (t *memTx) LockLeague(ctx context.Context, id int64) (store.League, error) {
	return t.GetLeague(ctx, id)
}

func (t *memTx) LeagueByJoinCode(_ context.Context, code string) (store.League, error) {
	if code != "" {
		for _, l := range t.st.leagues {
			if l.JoinCode == code {
				return l, nil
			}
		}
	}
	return store.League{}, fmt.Errorf("join code %q: %w", code, store.ErrNotFound)
}

func (t *memTx) SetRoundEnd(_ context.Context, leagueID int64, roundEnd time.Time) error {
	l, ok := t.st.leagues[leagueID]
	if !ok || l.Type != store.LeagueSeasonal {
		return fmt.Errorf("seasonal league %d: %w", leagueID, store.ErrNotFound)
	}
	end := roundEnd
	l.RoundEnd = &end
	t.st.leagues[leagueID] = l
	return nil
}

func (t *memTx) DueSeasonalLeagues(_ context.Context, now time.Time) ([]store.League, error) {
	var due []store.League
	for _, l := range t.st.leagues {
		if l.Type == store.LeagueSeasonal && l.RoundEnd != nil && !l.RoundEnd.After(now) {
			due = append(due, l)
		}
	}
	sortLeagues(due)
	return due, nil
}

func sortLeagues(ls []store.League) {
	sort.Slice(ls, func(i, j int) bool { return ls[i].ID < ls[j].ID })
}

// --------------------------------------------------------------------------
// Membership
// --------------------------------------------------------------------------

func (t *memTx) AddMember(_ context.Context, leagueID int64, userID string) (bool, error) {
	if _, ok := t.st.leagues[leagueID]; !ok {
		return false, fmt.Errorf("league %d: %w", leagueID, store.ErrNotFound)
	}
	if _, ok := t.st.users[userID]; !ok {
		return false, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	m := t.st.members[leagueID]
	if m == nil {
		m = map[string]int{}
		t.st.members[leagueID] = m
	}
	if _, ok := m[userID]; ok {
		return false, nil
	}
	t.st.joinSeq++
	m[userID] = t.st.joinSeq
	return true, nil
}

func (t *memTx) IsMember(_ context.Context, leagueID int64, userID string) (bool, error) {
	_, ok := t.st.members[leagueID][userID]
	return ok, nil
}

func (t *memTx) Members(_ context.Context, leagueID int64) ([]string, error) {
	m := t.st.members[leagueID]
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return m[ids[i]] < m[ids[j]] })
	return ids, nil
}

func (t *memTx) UserLeagues(_ context.Context, userID string) ([]store.League, error) {
	var out []store.League
	for id, m := range t.st.members {
		if _, ok := m[userID]; ok {
			out = append(out, t.st.leagues[id])
		}
	}
	sortLeagues(out)
	return out, nil
}

// --------------------------------------------------------------------------
// Accounts
// --------------------------------------------------------------------------

func (t *memTx) GetAccount(_ context.Context, userID string, leagueID int64) (store.Account, error) {
	a, ok := t.st.accounts[accountKey{userID, leagueID}]
	if !ok {
		return store.Account{}, fmt.Errorf("account %s/%d: %w", userID, leagueID, store.ErrNotFound)
	}
	return a, nil
}

func (t *memTx) LockAccount(ctx context.Context, userID string, leagueID int64) (store.Account, error) {
	return t.GetAccount(ctx, userID, leagueID)
}

func (t *memTx) EnsureAccount(_ context.Context, userID string, leagueID int64, initial int64) (store.Account, bool, error) {
	key := accountKey{userID, leagueID}
	if a, ok := t.st.accounts[key]; ok {
		return a, false, nil
	}
	if _, ok := t.st.users[userID]; !ok {
		return store.Account{}, false, fmt.Errorf("user %s: %w", userID, store.ErrNotFound)
	}
	if _, ok := t.st.leagues[leagueID]; !ok {
		return store.Account{}, false, fmt.Errorf("league %d: %w", leagueID, store.ErrNotFound)
	}
	a := store.Account{UserID: userID, LeagueID: leagueID, Balance: initial, UpdatedAt: t.now}
	t.st.accounts[key] = a
	return a, true, nil
}

func (t *memTx) SetBalance(_ context.Context, userID string, leagueID int64, balance int64) error {
	key := accountKey{userID, leagueID}
	a, ok := t.st.accounts[key]
	if !ok {
		return fmt.Errorf("account %s/%d: %w", userID, leagueID, store.ErrNotFound)
	}
	if balance < 0 {
		return fmt.Errorf("account %s/%d: negative balance %d: %w", userID, leagueID, balance, store.ErrPersistence)
	}
	a.Balance = balance
	a.UpdatedAt = t.now
	t.st.accounts[key] = a
	return nil
}

func (t *memTx) LockLeagueAccounts(_ context.Context, leagueID int64) ([]store.Account, error) {
	var out []store.Account
	for k, a := range t.st.accounts {
		if k.leagueID == leagueID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (t *memTx) SaveAccounts(_ context.Context, accounts []store.Account) error {
	for _, a := range accounts {
		key := accountKey{a.UserID, a.LeagueID}
		cur, ok := t.st.accounts[key]
		if !ok {
			return fmt.Errorf("account %s/%d: %w", a.UserID, a.LeagueID, store.ErrNotFound)
		}
		cur.Balance = a.Balance
		cur.Trophies = a.Trophies
		cur.UpdatedAt = t.now
		t.st.accounts[key] = cur
	}
	return nil
}

func (t *memTx) Leaderboard(_ context.Context, leagueID int64) ([]store.LeaderboardRow, error) {
	var rows []store.LeaderboardRow
	for k, a := range t.st.accounts {
		if k.leagueID != leagueID {
			continue
		}
		rows = append(rows, store.LeaderboardRow{
			UserID:   a.UserID,
			Username: t.st.users[a.UserID].Username,
			Balance:  a.Balance,
			Trophies: a.Trophies,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Balance != rows[j].Balance {
			return rows[i].Balance > rows[j].Balance
		}
		if rows[i].Username != rows[j].Username {
			return rows[i].Username < rows[j].Username
		}
		return rows[i].UserID < rows[j].UserID
	})
	return rows, nil
}

// --------------------------------------------------------------------------
// Wagers
// --------------------------------------------------------------------------

func (t *memTx) GetWager(_ context.Context, key store.WagerKey) (store.Wager, error) {
	w, ok := t.st.wagers[key]
	if !ok {
		return store.Wager{}, fmt.Errorf("wager %+v: %w", key, store.ErrNotFound)
	}
	return w, nil
}

func (t *memTx) PutWager(_ context.Context, w store.Wager) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = t.now
	}
	t.st.wagers[w.Key()] = w
	return nil
}

func (t *memTx) TakeWagers(_ context.Context, matchID int64) ([]store.Wager, error) {
	var out []store.Wager
	for k, w := range t.st.wagers {
		if k.MatchID == matchID {
			out = append(out, w)
			delete(t.st.wagers, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].LeagueID != out[j].LeagueID {
			return out[i].LeagueID < out[j].LeagueID
		}
		return out[i].UserID < out[j].UserID
	})
	return out, nil
}

func (t *memTx) UserWagers(_ context.Context, userID string, leagueID int64) ([]store.Wager, error) {
	var out []store.Wager
	for k, w := range t.st.wagers {
		if k.UserID == userID && k.LeagueID == leagueID {
			out = append(out, w)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].MatchID < out[j].MatchID
	})
	return out, nil
}

func (t *memTx) GetPlayerWager(_ context.Context, key store.PlayerWagerKey) (store.PlayerWager, error) {
	w, ok := t.st.playerWagers[key]
	if !ok {
		return store.PlayerWager{}, fmt.Errorf("player wager %+v: %w", key, store.ErrNotFound)
	}
	return w, nil
}

func (t *memTx) PutPlayerWager(_ context.Context, w store.PlayerWager) error {
	if w.CreatedAt.IsZero() {
		w.CreatedAt = t.now
	}
	t.st.playerWagers[w.Key()] = w
	return nil
}

func (t *memTx) TakePlayerWagers(_ context.Context, matchID int64) ([]store.PlayerWager, error) {
	var out []store.PlayerWager
	for k, w := range t.st.playerWagers {
		if k.MatchID == matchID {
			out = append(out, w)
			delete(t.st.playerWagers, k)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.LeagueID != b.LeagueID {
			return a.LeagueID < b.LeagueID
		}
		if a.UserID != b.UserID {
			return a.UserID < b.UserID
		}
		return a.PlayerID < b.PlayerID
	})
	return out, nil
}

func (t *memTx) PendingMatches(_ context.Context) ([]store.PendingMatch, error) {
	seen := map[int64]store.PendingMatch{}
	for _, w := range t.st.wagers {
		seen[w.MatchID] = store.PendingMatch{MatchID: w.MatchID, LeagueCode: w.LeagueCode, Season: w.Season}
	}
	for _, w := range t.st.playerWagers {
		seen[w.MatchID] = store.PendingMatch{MatchID: w.MatchID, LeagueCode: w.LeagueCode, Season: w.Season}
	}
	out := make([]store.PendingMatch, 0, len(seen))
	for _, p := range seen {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MatchID < out[j].MatchID })
	return out, nil
}

// --------------------------------------------------------------------------
// Matches
// --------------------------------------------------------------------------

// LockMatch is a no-op: the store mutex already serializes transactions.
func (t *memTx) LockMatch(context.Context, int64) error { return nil }

func (t *memTx) LockMatchShared(context.Context, int64) error { return nil }

func (t *memTx) SettledMatch(_ context.Context, matchID int64) (store.SettledMatch, error) {
	s, ok := t.st.settled[matchID]
	if !ok {
		return store.SettledMatch{}, fmt.Errorf("settled match %d: %w", matchID, store.ErrNotFound)
	}
	return s, nil
}

func (t *memTx) MarkSettled(_ context.Context, s store.SettledMatch) error {
	if s.SettledAt.IsZero() {
		s.SettledAt = t.now
	}
	if prev, ok := t.st.settled[s.MatchID]; ok {
		prev.Settled = s.Settled
		t.st.settled[s.MatchID] = prev
		return nil
	}
	t.st.settled[s.MatchID] = s
	return nil
}
