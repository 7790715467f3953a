// Package wager places match and player wagers: quote against the current
// forecast, then debit and record in one transaction.
package wager

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/itbasis/go-clock"

	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/forecast"
	"github.com/albapepper/scoracle-league/internal/ledger"
	"github.com/albapepper/scoracle-league/internal/metrics"
	"github.com/albapepper/scoracle-league/internal/pricing"
	"github.com/albapepper/scoracle-league/internal/provider"
	"github.com/albapepper/scoracle-league/internal/store"
)

// KindPlayer labels player wagers in metrics.
const KindPlayer = "player"

// Forecaster is the slice of forecast.Forecaster placement needs.
type Forecaster interface {
	ForecastMatch(ctx context.Context, leagueCode string, season int, matchID int64) (forecast.MatchForecast, error)
	ProjectPlayer(ctx context.Context, leagueCode string, season int, matchID, playerID int64) (forecast.PlayerProjection, provider.Match, error)
}

// Prediction is the payload of a match wager. Exact-score wagers set Home
// and Away; outcome wagers set Outcome.
type Prediction struct {
	Kind    store.WagerKind  `json:"kind"`
	Home    int              `json:"home"`
	Away    int              `json:"away"`
	Outcome provider.Outcome `json:"outcome,omitempty"`
}

func (p Prediction) validate() error {
	switch p.Kind {
	case store.KindExact:
		if p.Home < 0 || p.Away < 0 {
			return fmt.Errorf("negative score %d-%d: %w", p.Home, p.Away, store.ErrInvalidPrediction)
		}
	case store.KindOutcome:
		if !p.Outcome.Valid() {
			return fmt.Errorf("outcome %q: %w", p.Outcome, store.ErrInvalidPrediction)
		}
	default:
		return fmt.Errorf("kind %q: %w", p.Kind, store.ErrInvalidPrediction)
	}
	return nil
}

type Request struct {
	UserID     string
	LeagueID   int64
	LeagueCode string
	Season     int // zero means the league's current season
	MatchID    int64
	Stake      int64
	Prediction Prediction
}

type PlayerRequest struct {
	UserID         string
	LeagueID       int64
	LeagueCode     string
	Season         int
	MatchID        int64
	PlayerID       int64
	Stake          int64
	PredictedGoals int
	PredictedShots int
	// PredictedMinutes is stored but not priced.
	PredictedMinutes *int
}

// Receipt describes a placed match wager.
type Receipt struct {
	Wager    store.Wager `json:"wager"`
	Balance  int64       `json:"balance"`
	Replaced bool        `json:"replaced"`
}

// PlayerReceipt describes a placed player wager.
type PlayerReceipt struct {
	Wager    store.PlayerWager   `json:"wager"`
	Quote    pricing.PlayerQuote `json:"quote"`
	Balance  int64               `json:"balance"`
	Replaced bool                `json:"replaced"`
}

// Service places wagers.
type Service struct {
	store      store.Store
	forecaster Forecaster
	clock      clock.Clock
	metrics    *metrics.Manager
	logger     *slog.Logger
	retries    int
}

type Option func(*Service)

func WithClock(c clock.Clock) Option {
	return func(s *Service) { s.clock = c }
}

func WithMetrics(m *metrics.Manager) Option {
	return func(s *Service) { s.metrics = m }
}

// WithRetries bounds how often a placement is retried after
// store.ErrConcurrentModification.
func WithRetries(n int) Option {
	return func(s *Service) {
		if n >= 0 {
			s.retries = n
		}
	}
}

func NewService(st store.Store, fc Forecaster, logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Service{
		store:      st,
		forecaster: fc,
		clock:      clock.New(),
		logger:     logger,
		retries:    3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func resolveSeason(code string, season int) (int, error) {
	lc, ok := config.LookupLeague(code)
	if !ok {
		return 0, fmt.Errorf("league code %q: %w", code, store.ErrInvalidLeague)
	}
	if season == 0 {
		season = lc.CurrentSeason
	}
	return season, nil
}

// Place quotes and places a match wager. Placing again on the same match in
// the same league refunds the earlier stake before debiting the new one.
func (s *Service) Place(ctx context.Context, req Request) (Receipt, error) {
	rec, err := s.place(ctx, req)
	if err != nil {
		s.metrics.WagerRejected(RejectReason(err))
		return Receipt{}, err
	}
	s.metrics.WagerPlaced(string(rec.Wager.Kind))
	s.logger.Info("Wager placed",
		"user_id", req.UserID, "league_id", req.LeagueID, "match_id", req.MatchID,
		"kind", rec.Wager.Kind, "stake", req.Stake, "replaced", rec.Replaced)
	return rec, nil
}

func (s *Service) place(ctx context.Context, req Request) (Receipt, error) {
	if err := ledger.ValidateStake(req.Stake); err != nil {
		return Receipt{}, err
	}
	if err := req.Prediction.validate(); err != nil {
		return Receipt{}, err
	}
	season, err := resolveSeason(req.LeagueCode, req.Season)
	if err != nil {
		return Receipt{}, err
	}

	fc, err := s.forecaster.ForecastMatch(ctx, req.LeagueCode, season, req.MatchID)
	if err != nil {
		return Receipt{}, fmt.Errorf("forecast match: %w", err)
	}
	now := s.clock.Now().UTC()
	if fc.Finished || (!fc.Kickoff.IsZero() && !now.Before(fc.Kickoff)) {
		return Receipt{}, fmt.Errorf("match %d kicked off: %w", req.MatchID, store.ErrMatchClosed)
	}

	w := store.Wager{
		ID:         uuid.NewString(),
		UserID:     req.UserID,
		LeagueID:   req.LeagueID,
		MatchID:    req.MatchID,
		LeagueCode: req.LeagueCode,
		Season:     season,
		Kind:       req.Prediction.Kind,
		Stake:      req.Stake,
		CreatedAt:  now,
	}
	if w.Kind == store.KindExact {
		q := pricing.PriceExactScore(fc, req.Prediction.Home, req.Prediction.Away, req.Stake)
		w.PredictedHome, w.PredictedAway = q.PredictedHome, q.PredictedAway
		w.Multiplier, w.PotentialPayout = q.Multiplier, q.ExactScorePayout
	} else {
		q := pricing.PriceOutcome(fc, req.Prediction.Outcome, req.Stake)
		w.Outcome = q.Outcome
		w.Multiplier, w.PotentialPayout = q.Multiplier, q.Payout
	}

	var rec Receipt
	err = s.withRetry(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := openMatch(ctx, tx, req.MatchID); err != nil {
			return err
		}

		rec = Receipt{}
		prior, err := tx.GetWager(ctx, w.Key())
		switch {
		case err == nil:
			if err := ledger.Credit(ctx, tx, prior.UserID, prior.LeagueID, prior.Stake, prior.GlobalMirrored); err != nil {
				return fmt.Errorf("refund replaced wager: %w", err)
			}
			rec.Replaced = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		mirrored, err := ledger.Debit(ctx, tx, w.UserID, w.LeagueID, w.Stake)
		if err != nil {
			return err
		}
		w.GlobalMirrored = mirrored
		if err := tx.PutWager(ctx, w); err != nil {
			return fmt.Errorf("record wager: %w", err)
		}

		rec.Wager = w
		rec.Balance, err = ledger.Balance(ctx, tx, w.UserID, w.LeagueID)
		return err
	})
	return rec, err
}

// PlacePlayer quotes and places a player wager.
func (s *Service) PlacePlayer(ctx context.Context, req PlayerRequest) (PlayerReceipt, error) {
	rec, err := s.placePlayer(ctx, req)
	if err != nil {
		s.metrics.WagerRejected(RejectReason(err))
		return PlayerReceipt{}, err
	}
	s.metrics.WagerPlaced(KindPlayer)
	s.logger.Info("Player wager placed",
		"user_id", req.UserID, "league_id", req.LeagueID, "match_id", req.MatchID,
		"player_id", req.PlayerID, "stake", req.Stake, "replaced", rec.Replaced)
	return rec, nil
}

func (s *Service) placePlayer(ctx context.Context, req PlayerRequest) (PlayerReceipt, error) {
	if err := ledger.ValidateStake(req.Stake); err != nil {
		return PlayerReceipt{}, err
	}
	if req.PredictedGoals < 0 || req.PredictedShots < 0 || (req.PredictedMinutes != nil && *req.PredictedMinutes < 0) {
		return PlayerReceipt{}, fmt.Errorf("negative player prediction: %w", store.ErrInvalidPrediction)
	}
	season, err := resolveSeason(req.LeagueCode, req.Season)
	if err != nil {
		return PlayerReceipt{}, err
	}

	proj, match, err := s.forecaster.ProjectPlayer(ctx, req.LeagueCode, season, req.MatchID, req.PlayerID)
	if err != nil {
		return PlayerReceipt{}, fmt.Errorf("project player: %w", err)
	}
	now := s.clock.Now().UTC()
	if match.Finished || (!match.Kickoff.IsZero() && !now.Before(match.Kickoff)) {
		return PlayerReceipt{}, fmt.Errorf("match %d kicked off: %w", req.MatchID, store.ErrMatchClosed)
	}

	quote := pricing.PricePlayer(proj, req.PredictedGoals, req.PredictedShots)
	w := store.PlayerWager{
		ID:               uuid.NewString(),
		UserID:           req.UserID,
		LeagueID:         req.LeagueID,
		MatchID:          req.MatchID,
		PlayerID:         req.PlayerID,
		LeagueCode:       req.LeagueCode,
		Season:           season,
		PredictedGoals:   req.PredictedGoals,
		PredictedShots:   req.PredictedShots,
		PredictedMinutes: req.PredictedMinutes,
		Stake:            req.Stake,
		Multiplier:       quote.Multiplier,
		PotentialPayout:  quote.Payout(req.Stake),
		CreatedAt:        now,
	}

	var rec PlayerReceipt
	err = s.withRetry(ctx, func(ctx context.Context, tx store.Tx) error {
		if err := openMatch(ctx, tx, req.MatchID); err != nil {
			return err
		}

		rec = PlayerReceipt{Quote: quote}
		prior, err := tx.GetPlayerWager(ctx, w.Key())
		switch {
		case err == nil:
			if err := ledger.Credit(ctx, tx, prior.UserID, prior.LeagueID, prior.Stake, prior.GlobalMirrored); err != nil {
				return fmt.Errorf("refund replaced player wager: %w", err)
			}
			rec.Replaced = true
		case !errors.Is(err, store.ErrNotFound):
			return err
		}

		mirrored, err := ledger.Debit(ctx, tx, w.UserID, w.LeagueID, w.Stake)
		if err != nil {
			return err
		}
		w.GlobalMirrored = mirrored
		if err := tx.PutPlayerWager(ctx, w); err != nil {
			return fmt.Errorf("record player wager: %w", err)
		}

		rec.Wager = w
		rec.Balance, err = ledger.Balance(ctx, tx, w.UserID, w.LeagueID)
		return err
	})
	return rec, err
}

// Wagers lists a user's outstanding wagers in a league, newest first.
func (s *Service) Wagers(ctx context.Context, userID string, leagueID int64) ([]store.Wager, error) {
	var out []store.Wager
	err := s.store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
		var err error
		out, err = tx.UserWagers(ctx, userID, leagueID)
		return err
	})
	return out, err
}

// openMatch takes the shared match lock and fails if the match has already
// been settled.
func openMatch(ctx context.Context, tx store.Tx, matchID int64) error {
	if err := tx.LockMatchShared(ctx, matchID); err != nil {
		return err
	}
	_, err := tx.SettledMatch(ctx, matchID)
	switch {
	case err == nil:
		return fmt.Errorf("match %d settled: %w", matchID, store.ErrMatchClosed)
	case errors.Is(err, store.ErrNotFound):
		return nil
	default:
		return err
	}
}

func (s *Service) withRetry(ctx context.Context, fn func(ctx context.Context, tx store.Tx) error) error {
	var err error
	for attempt := 0; attempt <= s.retries; attempt++ {
		err = s.store.WithTx(ctx, fn)
		if !errors.Is(err, store.ErrConcurrentModification) {
			return err
		}
		s.logger.Warn("Wager placement conflict, retrying", "attempt", attempt+1, "error", err)
	}
	return err
}

// RejectReason is the metrics label for a placement error.
func RejectReason(err error) string {
	switch {
	case errors.Is(err, store.ErrInvalidStake):
		return "invalid_stake"
	case errors.Is(err, store.ErrInsufficientFunds):
		return "insufficient_funds"
	case errors.Is(err, store.ErrInvalidPrediction):
		return "invalid_prediction"
	case errors.Is(err, store.ErrInvalidLeague):
		return "invalid_league"
	case errors.Is(err, store.ErrNotMember):
		return "not_member"
	case errors.Is(err, store.ErrMatchClosed):
		return "match_closed"
	case errors.Is(err, provider.ErrDataUnavailable):
		return "data_unavailable"
	case errors.Is(err, store.ErrConcurrentModification):
		return "conflict"
	default:
		return "error"
	}
}
