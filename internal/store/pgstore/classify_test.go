package pgstore

import (
	"errors"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"

	"github.com/albapepper/scoracle-league/internal/store"
)

func TestClassify(t *testing.T) {
	assert.NoError(t, classify("op", nil))
	assert.ErrorIs(t, classify("op", pgx.ErrNoRows), store.ErrNotFound)
	assert.ErrorIs(t, classify("op", errors.New("dial tcp: connection refused")), store.ErrPersistence)

	for _, code := range []string{"40001", "40P01", "23505"} {
		err := classify("op", &pgconn.PgError{Code: code})
		assert.ErrorIs(t, err, store.ErrConcurrentModification, code)
		var pgErr *pgconn.PgError
		assert.True(t, errors.As(err, &pgErr), "driver error kept in chain")
	}

	assert.ErrorIs(t, classify("op", &pgconn.PgError{Code: "23503"}), store.ErrNotFound)
	assert.ErrorIs(t, classify("op", &pgconn.PgError{Code: "42P01"}), store.ErrPersistence)
}
