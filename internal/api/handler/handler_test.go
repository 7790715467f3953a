package handler

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

func TestStatusFor(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{store.ErrInvalidStake, http.StatusBadRequest, "INVALID_STAKE"},
		{store.ErrInsufficientFunds, http.StatusPaymentRequired, "INSUFFICIENT_FUNDS"},
		{store.ErrConcurrentModification, http.StatusConflict, "CONCURRENT_MODIFICATION"},
		{store.ErrMatchClosed, http.StatusConflict, "MATCH_CLOSED"},
		{store.ErrNotFound, http.StatusNotFound, "NOT_FOUND"},
		{provider.ErrDataUnavailable, http.StatusNotFound, "DATA_UNAVAILABLE"},
		{store.ErrNotMember, http.StatusForbidden, "NOT_MEMBER"},
		{store.ErrPersistence, http.StatusServiceUnavailable, "PERSISTENCE_FAILURE"},
		{fmt.Errorf("place wager: %w", store.ErrInvalidStake), http.StatusBadRequest, "INVALID_STAKE"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_ERROR"},
	}
	for _, tc := range cases {
		status, code := StatusFor(tc.err)
		assert.Equal(t, tc.status, status, tc.err.Error())
		assert.Equal(t, tc.code, code, tc.err.Error())
	}
}

func TestUpdateUserRequest_Fields(t *testing.T) {
	name, team := " Gaffer ", "Spurs"
	fields, err := UpdateUserRequest{Username: &name, FavouriteTeam: &team}.fields()
	assert.NoError(t, err)
	assert.Equal(t, []store.UserField{store.SetUsername("Gaffer"), store.SetFavouriteTeam("Spurs")}, fields)

	fields, err = UpdateUserRequest{}.fields()
	assert.NoError(t, err)
	assert.Empty(t, fields)

	long := string(make([]byte, 51))
	_, err = UpdateUserRequest{Username: &long}.fields()
	assert.Error(t, err)
}
