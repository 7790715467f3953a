package store

import "errors"

// Domain errors. Every layer wraps these with fmt.Errorf("...: %w") and callers
// match with errors.Is.
var (
	// ErrInvalidStake is returned for a stake outside [MinStake, MaxStake].
	// Nothing is mutated.
	ErrInvalidStake = errors.New("invalid stake")

	// ErrInsufficientFunds is returned when the balance cannot cover a debit.
	// Nothing is mutated.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrConcurrentModification is returned when a transaction lost a race on
	// a balance row. The whole operation may be retried.
	ErrConcurrentModification = errors.New("concurrent modification")

	// ErrPersistence is returned when storage is unreachable. The transaction
	// was rolled back.
	ErrPersistence = errors.New("persistence failure")

	ErrNotFound          = errors.New("not found")
	ErrNotMember         = errors.New("not a league member")
	ErrMatchClosed       = errors.New("match closed for wagers")
	ErrNoActiveAccounts  = errors.New("no active accounts")
	ErrNotSeasonal       = errors.New("league is not seasonal")
	ErrResultConflict    = errors.New("match already settled with a different result")
	ErrMalformedResult   = errors.New("malformed match result")
	ErrInvalidPrediction = errors.New("invalid prediction")
	ErrInvalidLeague     = errors.New("invalid league")
	ErrInvalidJoinCode   = errors.New("invalid join code")
)
