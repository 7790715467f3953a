// Package store is the persistence contract for users, leagues, accounts,
// and wagers. Implementations live in pgstore (PostgreSQL) and memstore
// (in-process); storetest holds the behaviour both must satisfy.
//
// All reads and writes happen inside Store.WithTx. A transaction either
// commits every change it made or none of them.
package store

import (
	"context"
	"time"

	"github.com/albapepper/scoracle-league/internal/provider"
)

// --------------------------------------------------------------------------
// Users
// --------------------------------------------------------------------------

type User struct {
	ID            string    `json:"id"`
	Username      string    `json:"username"`
	FavouriteTeam string    `json:"favourite_team,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// UserField is one updatable user attribute. The set is closed: only the
// types in this package implement it.
type UserField interface {
	userField()
}

// SetUsername replaces the display name.
type SetUsername string

// SetFavouriteTeam replaces the favourite team label.
type SetFavouriteTeam string

func (SetUsername) userField()      {}
func (SetFavouriteTeam) userField() {}

// Apply updates u in place. Unknown fields are impossible by construction.
func Apply(u *User, fields ...UserField) {
	for _, f := range fields {
		switch v := f.(type) {
		case SetUsername:
			u.Username = string(v)
		case SetFavouriteTeam:
			u.FavouriteTeam = string(v)
		}
	}
}

// --------------------------------------------------------------------------
// Leagues
// --------------------------------------------------------------------------

type LeagueType string

const (
	LeagueClassic  LeagueType = "classic"
	LeagueSeasonal LeagueType = "seasonal"
)

type Privacy string

const (
	Public  Privacy = "public"
	Private Privacy = "private"
)

type League struct {
	ID        int64      `json:"id"`
	Name      string     `json:"name"`
	Type      LeagueType `json:"type"`
	Privacy   Privacy    `json:"privacy"`
	JoinCode  string     `json:"join_code,omitempty"`
	CreatorID string     `json:"creator_id,omitempty"`
	RoundEnd  *time.Time `json:"round_end,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Account is a user's balance and trophies in one league.
type Account struct {
	UserID    string    `json:"user_id"`
	LeagueID  int64     `json:"league_id"`
	Balance   int64     `json:"balance"`
	Trophies  int       `json:"trophies"`
	UpdatedAt time.Time `json:"updated_at"`
}

// LeaderboardRow is one ranked member.
type LeaderboardRow struct {
	UserID   string `json:"user_id"`
	Username string `json:"username"`
	Balance  int64  `json:"balance"`
	Trophies int    `json:"trophies"`
}

// --------------------------------------------------------------------------
// Wagers
// --------------------------------------------------------------------------

type WagerKind string

const (
	KindExact   WagerKind = "exact"
	KindOutcome WagerKind = "outcome"
)

// WagerKey identifies a match wager. Placing again under the same key
// overwrites.
type WagerKey struct {
	UserID   string
	LeagueID int64
	MatchID  int64
}

type Wager struct {
	ID         string    `json:"id"`
	UserID     string    `json:"user_id"`
	LeagueID   int64     `json:"league_id"`
	MatchID    int64     `json:"match_id"`
	LeagueCode string    `json:"league_code"`
	Season     int       `json:"season"`
	Kind       WagerKind `json:"kind"`

	// Exact-score wagers set the goals; outcome wagers set Outcome.
	PredictedHome int              `json:"predicted_home"`
	PredictedAway int              `json:"predicted_away"`
	Outcome       provider.Outcome `json:"outcome,omitempty"`

	Stake           int64   `json:"stake"`
	Multiplier      float64 `json:"multiplier"`
	PotentialPayout int64   `json:"potential_payout"`

	// GlobalMirrored records whether the stake was also taken from the
	// global account, so an overwrite refunds the same ledgers.
	GlobalMirrored bool      `json:"global_mirrored"`
	CreatedAt      time.Time `json:"created_at"`
}

func (w Wager) Key() WagerKey {
	return WagerKey{UserID: w.UserID, LeagueID: w.LeagueID, MatchID: w.MatchID}
}

// PredictedResult is the outcome the wager backs.
func (w Wager) PredictedResult() provider.Outcome {
	if w.Kind == KindOutcome {
		return w.Outcome
	}
	return provider.ResultOf(w.PredictedHome, w.PredictedAway)
}

type PlayerWagerKey struct {
	UserID   string
	LeagueID int64
	MatchID  int64
	PlayerID int64
}

type PlayerWager struct {
	ID         string `json:"id"`
	UserID     string `json:"user_id"`
	LeagueID   int64  `json:"league_id"`
	MatchID    int64  `json:"match_id"`
	PlayerID   int64  `json:"player_id"`
	LeagueCode string `json:"league_code"`
	Season     int    `json:"season"`

	PredictedGoals int `json:"predicted_goals"`
	PredictedShots int `json:"predicted_shots"`
	// PredictedMinutes is carried for older clients and not priced.
	PredictedMinutes *int `json:"predicted_minutes,omitempty"`

	Stake           int64     `json:"stake"`
	Multiplier      float64   `json:"multiplier"`
	PotentialPayout int64     `json:"potential_payout"`
	GlobalMirrored  bool      `json:"global_mirrored"`
	CreatedAt       time.Time `json:"created_at"`
}

func (w PlayerWager) Key() PlayerWagerKey {
	return PlayerWagerKey{UserID: w.UserID, LeagueID: w.LeagueID, MatchID: w.MatchID, PlayerID: w.PlayerID}
}

// PendingMatch is a match with outstanding wagers.
type PendingMatch struct {
	MatchID    int64
	LeagueCode string
	Season     int
}

// SettledMatch records a match's settlement. Its existence closes the match.
type SettledMatch struct {
	MatchID   int64     `json:"match_id"`
	HomeGoals int       `json:"home_goals"`
	AwayGoals int       `json:"away_goals"`
	Settled   int       `json:"settled"`
	SettledAt time.Time `json:"settled_at"`
}

// --------------------------------------------------------------------------
// Contract
// --------------------------------------------------------------------------

// Store opens transactions.
type Store interface {
	// WithTx runs fn in one transaction. fn's error rolls back; a nil return
	// commits. Serialization failures surface as ErrConcurrentModification,
	// unreachable storage as ErrPersistence.
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
	Ping(ctx context.Context) error
	Close()
}

// Tx is the set of operations available inside a transaction. Lock* methods
// hold the row until the transaction ends.
type Tx interface {
	EnsureUser(ctx context.Context, id, username string) (User, error)
	GetUser(ctx context.Context, id string) (User, error)
	UpdateUser(ctx context.Context, id string, fields ...UserField) (User, error)

	// CreateLeague assigns the ID.
	CreateLeague(ctx context.Context, l League) (League, error)
	GetLeague(ctx context.Context, id int64) (League, error)
	LockLeague(ctx context.Context, id int64) (League, error)
	LeagueByJoinCode(ctx context.Context, code string) (League, error)
	SetRoundEnd(ctx context.Context, leagueID int64, roundEnd time.Time) error
	// DueSeasonalLeagues lists seasonal leagues whose round ended at or before now.
	DueSeasonalLeagues(ctx context.Context, now time.Time) ([]League, error)

	// AddMember reports whether the user was newly added.
	AddMember(ctx context.Context, leagueID int64, userID string) (bool, error)
	IsMember(ctx context.Context, leagueID int64, userID string) (bool, error)
	Members(ctx context.Context, leagueID int64) ([]string, error)
	UserLeagues(ctx context.Context, userID string) ([]League, error)

	GetAccount(ctx context.Context, userID string, leagueID int64) (Account, error)
	// LockAccount returns ErrNotFound when the account does not exist.
	LockAccount(ctx context.Context, userID string, leagueID int64) (Account, error)
	// EnsureAccount creates the account at the given balance if missing and
	// returns it locked.
	EnsureAccount(ctx context.Context, userID string, leagueID int64, initial int64) (Account, bool, error)
	SetBalance(ctx context.Context, userID string, leagueID int64, balance int64) error
	LockLeagueAccounts(ctx context.Context, leagueID int64) ([]Account, error)
	// SaveAccounts writes balance and trophies back.
	SaveAccounts(ctx context.Context, accounts []Account) error
	Leaderboard(ctx context.Context, leagueID int64) ([]LeaderboardRow, error)

	GetWager(ctx context.Context, key WagerKey) (Wager, error)
	PutWager(ctx context.Context, w Wager) error
	// TakeWagers removes and returns every outstanding wager on a match.
	TakeWagers(ctx context.Context, matchID int64) ([]Wager, error)
	UserWagers(ctx context.Context, userID string, leagueID int64) ([]Wager, error)

	GetPlayerWager(ctx context.Context, key PlayerWagerKey) (PlayerWager, error)
	PutPlayerWager(ctx context.Context, w PlayerWager) error
	TakePlayerWagers(ctx context.Context, matchID int64) ([]PlayerWager, error)

	// PendingMatches lists matches with outstanding match or player wagers.
	PendingMatches(ctx context.Context) ([]PendingMatch, error)

	// LockMatch takes the exclusive per-match lock held by settlement.
	LockMatch(ctx context.Context, matchID int64) error
	// LockMatchShared takes the shared per-match lock held by placement.
	// Placements run concurrently with each other but never with settlement.
	LockMatchShared(ctx context.Context, matchID int64) error
	SettledMatch(ctx context.Context, matchID int64) (SettledMatch, error)
	MarkSettled(ctx context.Context, s SettledMatch) error
}
