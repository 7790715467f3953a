package league

import (
	"context"
	"testing"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/store/memstore"
)

type fixture struct {
	store store.Store
	clock *clock.Mock
	mgr   *Manager
}

func newFixture(t *testing.T, users ...string) *fixture {
	t.Helper()
	mc := clock.NewMock()
	mc.Add(time.Date(2025, 3, 3, 9, 0, 0, 0, time.UTC).Sub(mc.Now()))

	st := memstore.New(memstore.WithClock(mc))
	require.NoError(t, st.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		for _, u := range users {
			if _, err := ledger.Register(ctx, tx, u, u); err != nil {
				return err
			}
		}
		return nil
	}))
	return &fixture{store: st, clock: mc, mgr: NewManager(st, nil, WithClock(mc))}
}

func (f *fixture) setBalance(t *testing.T, userID string, leagueID, bal int64) {
	t.Helper()
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		return tx.SetBalance(ctx, userID, leagueID, bal)
	}))
}

func (f *fixture) account(t *testing.T, userID string, leagueID int64) store.Account {
	t.Helper()
	var a store.Account
	require.NoError(t, f.store.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		var err error
		a, err = tx.GetAccount(ctx, userID, leagueID)
		return err
	}))
	return a
}

func TestCreate(t *testing.T) {
	f := newFixture(t, "alice")
	ctx := context.Background()

	classic, err := f.mgr.Create(ctx, CreateRequest{Name: " Friends ", Type: store.LeagueClassic, Privacy: store.Public, CreatorID: "alice"})
	require.NoError(t, err)
	assert.Equal(t, "Friends", classic.Name)
	assert.Empty(t, classic.JoinCode)
	assert.Nil(t, classic.RoundEnd)
	assert.Equal(t, int64(config.InitialBalance), f.account(t, "alice", classic.ID).Balance, "creator joined")

	seasonal, err := f.mgr.Create(ctx, CreateRequest{Name: "Weekly", Type: store.LeagueSeasonal, Privacy: store.Private, CreatorID: "alice"})
	require.NoError(t, err)
	assert.Len(t, seasonal.JoinCode, joinCodeLength)
	require.NotNil(t, seasonal.RoundEnd)
	assert.True(t, seasonal.RoundEnd.Equal(f.clock.Now().UTC().Add(config.RoundLength)))

	for _, bad := range []CreateRequest{
		{Name: "", Type: store.LeagueClassic, Privacy: store.Public, CreatorID: "alice"},
		{Name: "x", Type: "weekly", Privacy: store.Public, CreatorID: "alice"},
		{Name: "x", Type: store.LeagueClassic, Privacy: "secret", CreatorID: "alice"},
	} {
		_, err := f.mgr.Create(ctx, bad)
		assert.ErrorIs(t, err, store.ErrInvalidLeague)
	}
}

func TestJoin(t *testing.T) {
	f := newFixture(t, "alice", "bob")
	ctx := context.Background()

	public, err := f.mgr.Create(ctx, CreateRequest{Name: "Open", Type: store.LeagueClassic, Privacy: store.Public, CreatorID: "alice"})
	require.NoError(t, err)
	private, err := f.mgr.Create(ctx, CreateRequest{Name: "Closed", Type: store.LeagueClassic, Privacy: store.Private, CreatorID: "alice"})
	require.NoError(t, err)

	acct, err := f.mgr.Join(ctx, "bob", public.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(config.InitialBalance), acct.Balance)

	_, err = f.mgr.Join(ctx, "bob", private.ID, "WRONG123")
	assert.ErrorIs(t, err, store.ErrInvalidJoinCode)

	_, err = f.mgr.Join(ctx, "bob", 999, "")
	assert.ErrorIs(t, err, store.ErrNotFound)

	l, _, err := f.mgr.JoinByCode(ctx, "bob", " "+private.JoinCode+" ")
	require.NoError(t, err)
	assert.Equal(t, private.ID, l.ID)

	_, _, err = f.mgr.JoinByCode(ctx, "bob", "NOPE")
	assert.ErrorIs(t, err, store.ErrInvalidJoinCode)

	leagues, err := f.mgr.UserLeagues(ctx, "bob")
	require.NoError(t, err)
	ids := make([]int64, 0, len(leagues))
	for _, l := range leagues {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []int64{config.GlobalLeagueID, public.ID, private.ID}, ids)

	// Joining again keeps the balance.
	f.setBalance(t, "bob", public.ID, 700)
	acct, err = f.mgr.Join(ctx, "bob", public.ID, "")
	require.NoError(t, err)
	assert.Equal(t, int64(700), acct.Balance)
}

func TestLeaderboard(t *testing.T) {
	f := newFixture(t, "alice", "bob", "carol")
	ctx := context.Background()

	l, err := f.mgr.Create(ctx, CreateRequest{Name: "Weekly", Type: store.LeagueSeasonal, Privacy: store.Public, CreatorID: "carol"})
	require.NoError(t, err)
	for _, u := range []string{"alice", "bob"} {
		_, err := f.mgr.Join(ctx, u, l.ID, "")
		require.NoError(t, err)
	}
	f.setBalance(t, "alice", l.ID, 1300)
	f.setBalance(t, "bob", l.ID, 1300)
	f.setBalance(t, "carol", l.ID, 900)

	lb, err := f.mgr.Leaderboard(ctx, l.ID)
	require.NoError(t, err)
	require.Len(t, lb.Rows, 3)
	assert.Equal(t, "alice", lb.Rows[0].Username)
	assert.Equal(t, "bob", lb.Rows[1].Username)
	assert.Equal(t, 1, lb.Rows[0].Rank)
	assert.Equal(t, 1, lb.Rows[1].Rank, "ties share a rank")
	assert.Equal(t, 3, lb.Rows[2].Rank)
	require.NotNil(t, lb.Rows[0].Trophies)

	global, err := f.mgr.Leaderboard(ctx, config.GlobalLeagueID)
	require.NoError(t, err)
	require.Len(t, global.Rows, 3)
	assert.Nil(t, global.Rows[0].Trophies, "classic leagues report balances only")

	_, err = f.mgr.Leaderboard(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func seasonalWithBalances(t *testing.T, f *fixture, balances map[string]int64) store.League {
	t.Helper()
	ctx := context.Background()
	l, err := f.mgr.Create(ctx, CreateRequest{Name: "Weekly", Type: store.LeagueSeasonal, Privacy: store.Public, CreatorID: "A"})
	require.NoError(t, err)
	for u, bal := range balances {
		_, err := f.mgr.Join(ctx, u, l.ID, "")
		require.NoError(t, err)
		f.setBalance(t, u, l.ID, bal)
	}
	return l
}

func TestEndSeasonalRound(t *testing.T) {
	f := newFixture(t, "A", "B", "C")
	l := seasonalWithBalances(t, f, map[string]int64{"A": 1300, "B": 1300, "C": 900})

	res, err := f.mgr.EndSeasonalRound(context.Background(), l.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1300), res.TopBalance)
	assert.ElementsMatch(t, []string{"A", "B"}, res.Winners)
	assert.Equal(t, 3, res.Accounts)
	assert.True(t, res.NextRoundEnd.Equal(l.RoundEnd.Add(config.RoundLength)))

	for u, trophies := range map[string]int{"A": 1, "B": 1, "C": 0} {
		a := f.account(t, u, l.ID)
		assert.Equal(t, int64(config.InitialBalance), a.Balance, u)
		assert.Equal(t, trophies, a.Trophies, u)
	}
	assert.Equal(t, int64(config.InitialBalance), f.account(t, "A", config.GlobalLeagueID).Balance, "global untouched")
}

func TestEndSeasonalRound_Errors(t *testing.T) {
	f := newFixture(t, "A")
	ctx := context.Background()

	_, err := f.mgr.EndSeasonalRound(ctx, config.GlobalLeagueID)
	assert.ErrorIs(t, err, store.ErrNotSeasonal)

	_, err = f.mgr.EndSeasonalRound(ctx, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	var empty store.League
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		end := f.clock.Now().UTC()
		var err error
		empty, err = tx.CreateLeague(ctx, store.League{Name: "Empty", Type: store.LeagueSeasonal, Privacy: store.Public, RoundEnd: &end})
		return err
	}))
	_, err = f.mgr.EndSeasonalRound(ctx, empty.ID)
	assert.ErrorIs(t, err, store.ErrNoActiveAccounts)
}

func TestSweepDueRounds(t *testing.T) {
	f := newFixture(t, "A", "B")
	ctx := context.Background()
	l := seasonalWithBalances(t, f, map[string]int64{"A": 1100, "B": 1000})

	res := f.mgr.SweepDueRounds(ctx)
	assert.Zero(t, res.LeaguesDue, "round still running")

	// Three and a half weeks later: one award, deadline lands on the next
	// whole week in the future.
	f.clock.Add(3*config.RoundLength + 84*time.Hour)
	res = f.mgr.SweepDueRounds(ctx)
	assert.Empty(t, res.Errors)
	assert.Equal(t, 1, res.LeaguesDue)
	assert.Equal(t, 1, res.RoundsEnded)
	require.Len(t, res.RoundResults, 1)
	assert.True(t, res.RoundResults[0].NextRoundEnd.Equal(l.RoundEnd.Add(3*config.RoundLength)))
	assert.Equal(t, 1, f.account(t, "A", l.ID).Trophies)
	assert.Zero(t, f.account(t, "B", l.ID).Trophies)

	res = f.mgr.SweepDueRounds(ctx)
	assert.Zero(t, res.LeaguesDue)
	assert.Equal(t, 1, f.account(t, "A", l.ID).Trophies, "no double award")
}

func TestSweepDueRounds_ReschedulesEmptyLeagues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	end := f.clock.Now().UTC()
	require.NoError(t, f.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateLeague(ctx, store.League{Name: "Empty", Type: store.LeagueSeasonal, Privacy: store.Public, RoundEnd: &end})
		return err
	}))

	res := f.mgr.SweepDueRounds(ctx)
	assert.Equal(t, 1, res.Rescheduled)
	assert.Zero(t, res.RoundsEnded)
	assert.Zero(t, f.mgr.SweepDueRounds(ctx).LeaguesDue)
}

func TestNextRoundEnd(t *testing.T) {
	now := time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC)
	end := now.Add(-time.Hour)
	assert.True(t, nextRoundEnd(&end, now).Equal(end.Add(config.RoundLength)))

	end = now
	assert.True(t, nextRoundEnd(&end, now).Equal(now.Add(config.RoundLength)))

	assert.True(t, nextRoundEnd(nil, now).Equal(now.Add(config.RoundLength)))
}
