// Package storetest is the behaviour suite every store.Store must pass.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// Factory returns an empty store holding only the global league.
type Factory func(t *testing.T) store.Store

// Run executes the suite. Each subtest gets a fresh store from newStore.
func Run(t *testing.T, newStore Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s store.Store)
	}{
		{"Users", testUsers},
		{"Leagues", testLeagues},
		{"MembershipAndAccounts", testMembershipAndAccounts},
		{"Rollback", testRollback},
		{"Wagers", testWagers},
		{"PlayerWagers", testPlayerWagers},
		{"SettledMatches", testSettledMatches},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newStore(t)
			tt.fn(t, s)
		})
	}
}

func tx(t *testing.T, s store.Store, fn func(ctx context.Context, tx store.Tx) error) {
	t.Helper()
	require.NoError(t, s.WithTx(context.Background(), fn))
}

func seedUsers(t *testing.T, s store.Store, ids ...string) {
	t.Helper()
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, id := range ids {
			if _, err := tx.EnsureUser(ctx, id, "user-"+id); err != nil {
				return err
			}
		}
		return nil
	})
}

func testUsers(t *testing.T, s store.Store) {
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		u, err := tx.EnsureUser(ctx, "u1", "alice")
		require.NoError(t, err)
		assert.Equal(t, "alice", u.Username)

		again, err := tx.EnsureUser(ctx, "u1", "someone-else")
		require.NoError(t, err)
		assert.Equal(t, "alice", again.Username, "existing user kept")

		updated, err := tx.UpdateUser(ctx, "u1", store.SetUsername("alicia"), store.SetFavouriteTeam("Arsenal"))
		require.NoError(t, err)
		assert.Equal(t, "alicia", updated.Username)
		assert.Equal(t, "Arsenal", updated.FavouriteTeam)

		got, err := tx.GetUser(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, updated.Username, got.Username)

		_, err = tx.GetUser(ctx, "ghost")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testLeagues(t *testing.T, s store.Store) {
	seedUsers(t, s, "u1")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	end := now.Add(config.RoundLength)

	var private, seasonal store.League
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		global, err := tx.GetLeague(ctx, config.GlobalLeagueID)
		require.NoError(t, err)
		assert.Equal(t, store.LeagueClassic, global.Type)

		private, err = tx.CreateLeague(ctx, store.League{
			Name: "Friends", Type: store.LeagueClassic, Privacy: store.Private,
			JoinCode: "ABCD1234", CreatorID: "u1", CreatedAt: now,
		})
		require.NoError(t, err)
		assert.Greater(t, private.ID, config.GlobalLeagueID)

		seasonal, err = tx.CreateLeague(ctx, store.League{
			Name: "Weekly", Type: store.LeagueSeasonal, Privacy: store.Public,
			CreatorID: "u1", RoundEnd: &end, CreatedAt: now,
		})
		require.NoError(t, err)
		assert.NotEqual(t, private.ID, seasonal.ID)
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		byCode, err := tx.LeagueByJoinCode(ctx, "ABCD1234")
		require.NoError(t, err)
		assert.Equal(t, private.ID, byCode.ID)

		_, err = tx.LeagueByJoinCode(ctx, "NOPE")
		assert.ErrorIs(t, err, store.ErrNotFound)

		_, err = tx.GetLeague(ctx, 9999)
		assert.ErrorIs(t, err, store.ErrNotFound)

		due, err := tx.DueSeasonalLeagues(ctx, now)
		require.NoError(t, err)
		assert.Empty(t, due)

		due, err = tx.DueSeasonalLeagues(ctx, end)
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, seasonal.ID, due[0].ID)

		next := end.Add(config.RoundLength)
		require.NoError(t, tx.SetRoundEnd(ctx, seasonal.ID, next))
		locked, err := tx.LockLeague(ctx, seasonal.ID)
		require.NoError(t, err)
		require.NotNil(t, locked.RoundEnd)
		assert.True(t, locked.RoundEnd.Equal(next))

		assert.ErrorIs(t, tx.SetRoundEnd(ctx, private.ID, next), store.ErrNotFound, "classic leagues have no round")
		return nil
	})

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		_, err := tx.CreateLeague(ctx, store.League{
			Name: "Dup", Type: store.LeagueClassic, Privacy: store.Private,
			JoinCode: "ABCD1234", CreatorID: "u1", CreatedAt: now,
		})
		return err
	})
	assert.ErrorIs(t, err, store.ErrConcurrentModification, "join codes are unique")
}

func testMembershipAndAccounts(t *testing.T, s store.Store) {
	seedUsers(t, s, "u1", "u2", "u3")

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, id := range []string{"u1", "u2", "u3"} {
			added, err := tx.AddMember(ctx, config.GlobalLeagueID, id)
			require.NoError(t, err)
			assert.True(t, added)

			acct, created, err := tx.EnsureAccount(ctx, id, config.GlobalLeagueID, config.InitialBalance)
			require.NoError(t, err)
			assert.True(t, created)
			assert.Equal(t, int64(config.InitialBalance), acct.Balance)
		}

		added, err := tx.AddMember(ctx, config.GlobalLeagueID, "u1")
		require.NoError(t, err)
		assert.False(t, added, "second join is a no-op")

		_, created, err := tx.EnsureAccount(ctx, "u1", config.GlobalLeagueID, 5)
		require.NoError(t, err)
		assert.False(t, created)

		_, err = tx.AddMember(ctx, 9999, "u1")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		ok, err := tx.IsMember(ctx, config.GlobalLeagueID, "u2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = tx.IsMember(ctx, config.GlobalLeagueID, "ghost")
		require.NoError(t, err)
		assert.False(t, ok)

		members, err := tx.Members(ctx, config.GlobalLeagueID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u2", "u3"}, members)

		leagues, err := tx.UserLeagues(ctx, "u1")
		require.NoError(t, err)
		require.Len(t, leagues, 1)
		assert.Equal(t, config.GlobalLeagueID, leagues[0].ID)

		require.NoError(t, tx.SetBalance(ctx, "u1", config.GlobalLeagueID, 950))
		acct, err := tx.LockAccount(ctx, "u1", config.GlobalLeagueID)
		require.NoError(t, err)
		assert.Equal(t, int64(950), acct.Balance)

		_, err = tx.LockAccount(ctx, "u1", 9999)
		assert.ErrorIs(t, err, store.ErrNotFound)

		accounts, err := tx.LockLeagueAccounts(ctx, config.GlobalLeagueID)
		require.NoError(t, err)
		require.Len(t, accounts, 3)
		for i := range accounts {
			if accounts[i].UserID == "u3" {
				accounts[i].Balance = 1200
				accounts[i].Trophies = 2
			}
		}
		return tx.SaveAccounts(ctx, accounts)
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		board, err := tx.Leaderboard(ctx, config.GlobalLeagueID)
		require.NoError(t, err)
		require.Len(t, board, 3)
		assert.Equal(t, store.LeaderboardRow{UserID: "u3", Username: "user-u3", Balance: 1200, Trophies: 2}, board[0])
		assert.Equal(t, "u2", board[1].UserID)
		assert.Equal(t, "u1", board[2].UserID)

		acct, err := tx.GetAccount(ctx, "u3", config.GlobalLeagueID)
		require.NoError(t, err)
		assert.Equal(t, 2, acct.Trophies)
		return nil
	})
}

func testRollback(t *testing.T, s store.Store) {
	seedUsers(t, s, "u1")
	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		_, _, err := tx.EnsureAccount(ctx, "u1", config.GlobalLeagueID, 100)
		return err
	})

	boom := errors.New("boom")
	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		if err := tx.SetBalance(ctx, "u1", config.GlobalLeagueID, 10); err != nil {
			return err
		}
		if _, err := tx.EnsureUser(ctx, "u2", "bob"); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		acct, err := tx.GetAccount(ctx, "u1", config.GlobalLeagueID)
		require.NoError(t, err)
		assert.Equal(t, int64(100), acct.Balance, "balance change rolled back")

		_, err = tx.GetUser(ctx, "u2")
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testWagers(t *testing.T, s store.Store) {
	seedUsers(t, s, "u1", "u2")
	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	exact := store.Wager{
		ID: "6f1c1c52-58a4-4a0e-9d0b-5b2b9c1f0001", UserID: "u1", LeagueID: config.GlobalLeagueID,
		MatchID: 100, LeagueCode: "EPL", Season: 2025, Kind: store.KindExact,
		PredictedHome: 2, PredictedAway: 1, Stake: 100, Multiplier: 1.15, PotentialPayout: 115,
		GlobalMirrored: false, CreatedAt: base,
	}
	outcome := store.Wager{
		ID: "6f1c1c52-58a4-4a0e-9d0b-5b2b9c1f0002", UserID: "u2", LeagueID: config.GlobalLeagueID,
		MatchID: 100, LeagueCode: "EPL", Season: 2025, Kind: store.KindOutcome,
		Outcome: provider.OutcomeAway, Stake: 50, Multiplier: 2.05, PotentialPayout: 102,
		CreatedAt: base.Add(time.Minute),
	}
	other := store.Wager{
		ID: "6f1c1c52-58a4-4a0e-9d0b-5b2b9c1f0003", UserID: "u1", LeagueID: config.GlobalLeagueID,
		MatchID: 101, LeagueCode: "EPL", Season: 2025, Kind: store.KindOutcome,
		Outcome: provider.OutcomeDraw, Stake: 10, Multiplier: 1.9, PotentialPayout: 19,
		CreatedAt: base.Add(2 * time.Minute),
	}

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		for _, w := range []store.Wager{exact, outcome, other} {
			require.NoError(t, tx.PutWager(ctx, w))
		}
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.GetWager(ctx, exact.Key())
		require.NoError(t, err)
		assert.Equal(t, 2, got.PredictedHome)
		assert.Equal(t, provider.OutcomeHome, got.PredictedResult())

		overwrite := exact
		overwrite.ID = "6f1c1c52-58a4-4a0e-9d0b-5b2b9c1f0004"
		overwrite.PredictedHome, overwrite.PredictedAway = 0, 0
		overwrite.Stake = 200
		require.NoError(t, tx.PutWager(ctx, overwrite))

		got, err = tx.GetWager(ctx, exact.Key())
		require.NoError(t, err)
		assert.Equal(t, overwrite.ID, got.ID)
		assert.Equal(t, int64(200), got.Stake)
		assert.Equal(t, provider.OutcomeDraw, got.PredictedResult())

		mine, err := tx.UserWagers(ctx, "u1", config.GlobalLeagueID)
		require.NoError(t, err)
		require.Len(t, mine, 2)
		assert.Equal(t, int64(101), mine[0].MatchID, "newest first")

		pending, err := tx.PendingMatches(ctx)
		require.NoError(t, err)
		assert.Equal(t, []store.PendingMatch{
			{MatchID: 100, LeagueCode: "EPL", Season: 2025},
			{MatchID: 101, LeagueCode: "EPL", Season: 2025},
		}, pending)
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		taken, err := tx.TakeWagers(ctx, 100)
		require.NoError(t, err)
		require.Len(t, taken, 2)
		users := []string{taken[0].UserID, taken[1].UserID}
		assert.ElementsMatch(t, []string{"u1", "u2"}, users)

		again, err := tx.TakeWagers(ctx, 100)
		require.NoError(t, err)
		assert.Empty(t, again)

		_, err = tx.GetWager(ctx, exact.Key())
		assert.ErrorIs(t, err, store.ErrNotFound)
		return nil
	})
}

func testPlayerWagers(t *testing.T, s store.Store) {
	seedUsers(t, s, "u1")
	minutes := 75

	w := store.PlayerWager{
		ID: "0b5f8d3e-1a2b-4c3d-8e9f-000000000001", UserID: "u1", LeagueID: config.GlobalLeagueID,
		MatchID: 200, PlayerID: 10, LeagueCode: "EPL", Season: 2025,
		PredictedGoals: 1, PredictedShots: 3, PredictedMinutes: &minutes,
		Stake: 50, Multiplier: 4.05, PotentialPayout: 202,
	}

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.PutPlayerWager(ctx, w))

		got, err := tx.GetPlayerWager(ctx, w.Key())
		require.NoError(t, err)
		require.NotNil(t, got.PredictedMinutes)
		assert.Equal(t, 75, *got.PredictedMinutes)
		assert.InDelta(t, 4.05, got.Multiplier, 1e-9)

		pending, err := tx.PendingMatches(ctx)
		require.NoError(t, err)
		assert.Equal(t, []store.PendingMatch{{MatchID: 200, LeagueCode: "EPL", Season: 2025}}, pending)
		return nil
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		taken, err := tx.TakePlayerWagers(ctx, 200)
		require.NoError(t, err)
		require.Len(t, taken, 1)
		assert.Equal(t, int64(10), taken[0].PlayerID)

		_, err = tx.GetPlayerWager(ctx, w.Key())
		assert.ErrorIs(t, err, store.ErrNotFound)

		pending, err := tx.PendingMatches(ctx)
		require.NoError(t, err)
		assert.Empty(t, pending)
		return nil
	})
}

func testSettledMatches(t *testing.T, s store.Store) {
	at := time.Date(2025, 3, 1, 17, 0, 0, 0, time.UTC)

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		require.NoError(t, tx.LockMatch(ctx, 300))
		require.NoError(t, tx.LockMatchShared(ctx, 301))

		_, err := tx.SettledMatch(ctx, 300)
		assert.ErrorIs(t, err, store.ErrNotFound)

		return tx.MarkSettled(ctx, store.SettledMatch{MatchID: 300, HomeGoals: 2, AwayGoals: 1, Settled: 4, SettledAt: at})
	})

	tx(t, s, func(ctx context.Context, tx store.Tx) error {
		got, err := tx.SettledMatch(ctx, 300)
		require.NoError(t, err)
		assert.Equal(t, 2, got.HomeGoals)
		assert.Equal(t, 1, got.AwayGoals)
		assert.Equal(t, 4, got.Settled)
		assert.WithinDuration(t, at, got.SettledAt, time.Second)
		return nil
	})
}
