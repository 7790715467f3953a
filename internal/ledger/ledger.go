// Package ledger moves points between league accounts.
//
// Every non-global account movement is mirrored onto the user's global
// account (league 1) inside the same transaction. A debit mirror only
// applies when the global balance covers it; otherwise the league debit
// proceeds alone and the caller is told the mirror was skipped. Accounts are
// always locked global first, then the league, so concurrent movements for
// one user cannot deadlock.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/store"
)

// ValidateStake rejects stakes outside [MinStake, MaxStake].
func ValidateStake(amount int64) error {
	if amount < config.MinStake || amount > config.MaxStake {
		return fmt.Errorf("stake %d outside [%d, %d]: %w", amount, config.MinStake, config.MaxStake, store.ErrInvalidStake)
	}
	return nil
}

// Register upserts a user and opens their global account.
func Register(ctx context.Context, tx store.Tx, userID, username string) (store.User, error) {
	u, err := tx.EnsureUser(ctx, userID, username)
	if err != nil {
		return store.User{}, fmt.Errorf("register user: %w", err)
	}
	if _, _, err := Open(ctx, tx, userID, config.GlobalLeagueID); err != nil {
		return store.User{}, err
	}
	return u, nil
}

// Open adds the user to a league and creates the account at the initial
// balance if it does not exist. It reports whether the account is new.
func Open(ctx context.Context, tx store.Tx, userID string, leagueID int64) (store.Account, bool, error) {
	if _, err := tx.AddMember(ctx, leagueID, userID); err != nil {
		return store.Account{}, false, fmt.Errorf("join league %d: %w", leagueID, err)
	}
	acct, created, err := tx.EnsureAccount(ctx, userID, leagueID, config.InitialBalance)
	if err != nil {
		return store.Account{}, false, fmt.Errorf("open account: %w", err)
	}
	return acct, created, nil
}

// Balance returns the user's balance in a league.
func Balance(ctx context.Context, tx store.Tx, userID string, leagueID int64) (int64, error) {
	acct, err := tx.GetAccount(ctx, userID, leagueID)
	if err != nil {
		return 0, accountErr(userID, leagueID, err)
	}
	return acct.Balance, nil
}

// Debit takes a stake from the league account. The balance check and the
// decrement happen under the row lock. It reports whether the global
// account was debited too.
func Debit(ctx context.Context, tx store.Tx, userID string, leagueID, amount int64) (bool, error) {
	if err := ValidateStake(amount); err != nil {
		return false, err
	}

	global, hasGlobal, err := lockGlobal(ctx, tx, userID, leagueID)
	if err != nil {
		return false, err
	}

	acct := global
	if leagueID != config.GlobalLeagueID {
		if acct, err = tx.LockAccount(ctx, userID, leagueID); err != nil {
			return false, accountErr(userID, leagueID, err)
		}
	} else if !hasGlobal {
		return false, accountErr(userID, leagueID, store.ErrNotFound)
	}

	if acct.Balance < amount {
		return false, fmt.Errorf("debit %d from balance %d: %w", amount, acct.Balance, store.ErrInsufficientFunds)
	}
	if err := tx.SetBalance(ctx, userID, leagueID, acct.Balance-amount); err != nil {
		return false, fmt.Errorf("debit account: %w", err)
	}

	if leagueID == config.GlobalLeagueID || !hasGlobal || global.Balance < amount {
		return false, nil
	}
	if err := tx.SetBalance(ctx, userID, config.GlobalLeagueID, global.Balance-amount); err != nil {
		return false, fmt.Errorf("debit global account: %w", err)
	}
	return true, nil
}

// Credit adds points to the league account and, when mirror is set, to the
// global account as well.
func Credit(ctx context.Context, tx store.Tx, userID string, leagueID, amount int64, mirror bool) error {
	if amount < 0 {
		return fmt.Errorf("credit %d: %w", amount, store.ErrInvalidStake)
	}
	if amount == 0 {
		return nil
	}

	mirror = mirror && leagueID != config.GlobalLeagueID
	var global store.Account
	if mirror {
		var hasGlobal bool
		var err error
		if global, hasGlobal, err = lockGlobal(ctx, tx, userID, leagueID); err != nil {
			return err
		}
		mirror = hasGlobal
	}

	acct, err := tx.LockAccount(ctx, userID, leagueID)
	if err != nil {
		return accountErr(userID, leagueID, err)
	}
	if err := tx.SetBalance(ctx, userID, leagueID, acct.Balance+amount); err != nil {
		return fmt.Errorf("credit account: %w", err)
	}
	if !mirror {
		return nil
	}
	if err := tx.SetBalance(ctx, userID, config.GlobalLeagueID, global.Balance+amount); err != nil {
		return fmt.Errorf("credit global account: %w", err)
	}
	return nil
}

// lockGlobal locks the user's global account. A missing global account is
// reported through the bool rather than as an error; it only means nothing
// can be mirrored.
func lockGlobal(ctx context.Context, tx store.Tx, userID string, leagueID int64) (store.Account, bool, error) {
	global, err := tx.LockAccount(ctx, userID, config.GlobalLeagueID)
	switch {
	case err == nil:
		return global, true, nil
	case errors.Is(err, store.ErrNotFound):
		return store.Account{}, false, nil
	default:
		return store.Account{}, false, fmt.Errorf("lock global account for league %d: %w", leagueID, err)
	}
}

func accountErr(userID string, leagueID int64, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("user %s in league %d: %w", userID, leagueID, store.ErrNotMember)
	}
	return fmt.Errorf("account %s/%d: %w", userID, leagueID, err)
}

// --------------------------------------------------------------------------
// Ledger: each call in its own transaction
// --------------------------------------------------------------------------

// Ledger runs single movements in their own transaction. Multi-step flows
// (placement, settlement) use the package functions inside one WithTx.
type Ledger struct {
	store store.Store
}

func New(s store.Store) *Ledger {
	return &Ledger{store: s}
}

func (l *Ledger) Balance(ctx context.Context, userID string, leagueID int64) (int64, error) {
	var bal int64
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		bal, err = Balance(ctx, tx, userID, leagueID)
		return err
	})
	return bal, err
}

func (l *Ledger) Debit(ctx context.Context, userID string, leagueID, amount int64) (bool, error) {
	var mirrored bool
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		mirrored, err = Debit(ctx, tx, userID, leagueID, amount)
		return err
	})
	return mirrored, err
}

func (l *Ledger) Credit(ctx context.Context, userID string, leagueID, amount int64) error {
	return l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		return Credit(ctx, tx, userID, leagueID, amount, true)
	})
}

// Register runs Register in its own transaction.
func (l *Ledger) Register(ctx context.Context, userID, username string) (store.User, error) {
	var u store.User
	err := l.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		u, err = Register(ctx, tx, userID, username)
		return err
	})
	return u, err
}
