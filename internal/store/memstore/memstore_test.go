package memstore

import (
	"context"
	"testing"
	"time"

	"github.com/itbasis/go-clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/internal/store/storetest"
)

func TestStore(t *testing.T) {
	storetest.Run(t, func(t *testing.T) store.Store { return New() })
}

func TestStore_UsesClock(t *testing.T) {
	mock := clock.NewMock()
	mock.Add(48 * time.Hour)
	s := New(WithClock(mock))

	err := s.WithTx(context.Background(), func(ctx context.Context, tx store.Tx) error {
		u, err := tx.EnsureUser(ctx, "u1", "alice")
		require.NoError(t, err)
		assert.True(t, u.CreatedAt.Equal(mock.Now().UTC()))
		return nil
	})
	require.NoError(t, err)
}

func TestStore_CancelledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	called := false
	err := New().WithTx(ctx, func(context.Context, store.Tx) error {
		called = true
		return nil
	})
	assert.ErrorIs(t, err, store.ErrPersistence)
	assert.False(t, called)
}
