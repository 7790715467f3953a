//go:build integration

package pgstore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/containers"
	"github.com/albapepper/scoracle-league/internal/db"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/store/storetest"
)

// A single container and pool shared by every test in the package.
var testPool *db.Pool

func TestMain(m *testing.M) {
	container := containers.NewDBContainer()

	defer func() {
		// Make sure the container is removed even when a test panics.
		if r := recover(); r != nil {
			container.Shutdown()
			fmt.Println("panic:", r)
			os.Exit(1)
		}
	}()

	var err error
	testPool, err = db.Connect(context.Background(), container.ConnectionString())
	if err != nil {
		fmt.Printf("error connecting to db: %v", err)
		container.Shutdown()
		os.Exit(1)
	}

	code := m.Run()
	testPool.Close()
	container.Shutdown()
	os.Exit(code)
}

const resetSQL = `
DELETE FROM settled_matches;
DELETE FROM player_wagers;
DELETE FROM wagers;
DELETE FROM league_accounts;
DELETE FROM league_members;
DELETE FROM leagues WHERE id <> 1;
DELETE FROM users;`

func freshStore(t *testing.T) store.Store {
	t.Helper()
	_, err := testPool.Exec(context.Background(), resetSQL)
	require.NoError(t, err)
	return New(testPool)
}

func TestStore(t *testing.T) {
	storetest.Run(t, freshStore)
}

func TestStore_ConcurrentDebitsSerialize(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		if _, err := tx.EnsureUser(ctx, "u1", "alice"); err != nil {
			return err
		}
		_, _, err := tx.EnsureAccount(ctx, "u1", config.GlobalLeagueID, 1000)
		return err
	}))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
				a, err := tx.LockAccount(ctx, "u1", config.GlobalLeagueID)
				if err != nil {
					return err
				}
				return tx.SetBalance(ctx, "u1", config.GlobalLeagueID, a.Balance-10)
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	require.NoError(t, s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		a, err := tx.GetAccount(ctx, "u1", config.GlobalLeagueID)
		require.NoError(t, err)
		assert.Equal(t, int64(900), a.Balance, "row locks serialize read-modify-write")
		return nil
	}))
}

func TestStore_SharedMatchLocks(t *testing.T) {
	s := freshStore(t)
	ctx := context.Background()

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
			if err := tx.LockMatchShared(ctx, 42); err != nil {
				return err
			}
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	sharedCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	err := s.WithTx(sharedCtx, func(ctx context.Context, tx store.Tx) error {
		return tx.LockMatchShared(ctx, 42)
	})
	assert.NoError(t, err, "placements share the match lock")

	exclusiveCtx, cancel2 := context.WithTimeout(ctx, 300*time.Millisecond)
	defer cancel2()
	err = s.WithTx(exclusiveCtx, func(ctx context.Context, tx store.Tx) error {
		return tx.LockMatch(ctx, 42)
	})
	assert.Error(t, err, "settlement waits for open placements")

	close(release)
	require.NoError(t, <-done)
}
