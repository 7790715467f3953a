package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/albapepper/scoracle-league/internal/api/respond"
	"github.com/albapepper/scoracle-league/internal/store"
)

// Identity headers set by the upstream gateway.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
)

type userKey struct{}

// RequireUser rejects requests without an X-User-ID header and registers
// first-seen users, opening their global account.
func (h *Handler) RequireUser(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderUserID))
		if id == "" {
			respond.WriteError(w, http.StatusUnauthorized, "MISSING_USER", HeaderUserID+" header is required")
			return
		}
		name := strings.TrimSpace(r.Header.Get(HeaderUsername))
		if name == "" {
			name = id
		}

		u, err := h.ledger.Register(r.Context(), id, name)
		if err != nil {
			h.writeErr(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), userKey{}, u)))
	})
}

// userFrom returns the user RequireUser attached to the request.
func userFrom(r *http.Request) store.User {
	u, _ := r.Context().Value(userKey{}).(store.User)
	return u
}
