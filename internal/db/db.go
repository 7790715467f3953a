// Package db provides a pgxpool-based connection pool with prepared statement
// registration and health checking.
package db

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/albapepper/scoracle-league/internal/config"
)

// Pool wraps pgxpool.Pool with application-specific helpers.
type Pool struct {
	*pgxpool.Pool
}

// New creates and validates a new connection pool.
func New(ctx context.Context, cfg *config.Config) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns = int32(cfg.DBPoolMinConns)
	poolCfg.MaxConns = int32(cfg.DBPoolMaxConns)
	poolCfg.MaxConnLifetime = cfg.DBPoolMaxLife
	poolCfg.MaxConnIdleTime = 5 * time.Minute

	return newPool(ctx, poolCfg)
}

// Connect builds a pool from a bare connection string with default sizing.
// Used by integration tests and the admin CLI.
func Connect(ctx context.Context, connString string) (*Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}
	return newPool(ctx, poolCfg)
}

func newPool(ctx context.Context, poolCfg *pgxpool.Config) (*Pool, error) {
	// Register prepared statements on every new connection.
	poolCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		return registerPreparedStatements(ctx, conn)
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	// Verify connectivity
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	return &Pool{Pool: pool}, nil
}

// Migrate applies schema SQL over a plain connection. Statements are
// idempotent, so it is safe to run on every deploy.
func Migrate(ctx context.Context, connString, schemaSQL string) error {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return fmt.Errorf("connect for migration: %w", err)
	}
	defer conn.Close(ctx)

	if _, err := conn.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

// HealthCheck runs a trivial query to verify the database is reachable.
func (p *Pool) HealthCheck(ctx context.Context) error {
	var n int
	return p.QueryRow(ctx, "health_check").Scan(&n)
}

const (
	userCols    = "id, username, favourite_team, created_at"
	leagueCols  = "id, name, league_type, privacy, COALESCE(join_code, ''), COALESCE(creator_id, ''), round_end, created_at"
	accountCols = "user_id, league_id, balance, trophies, updated_at"
	wagerCols   = "id::text, user_id, league_id, match_id, league_code, season, kind, predicted_home, predicted_away, predicted_outcome, stake, multiplier, potential_payout, global_mirrored, created_at"
	playerCols  = "id::text, user_id, league_id, match_id, player_id, league_code, season, predicted_goals, predicted_shots, predicted_minutes, stake, multiplier, potential_payout, global_mirrored, created_at"
)

// registerPreparedStatements registers every statement the ledger uses.
// Prepared statements eliminate parse overhead on every request.
func registerPreparedStatements(ctx context.Context, conn *pgx.Conn) error {
	stmts := map[string]string{
		// Health
		"health_check": "SELECT 1",

		// Users
		"user_ensure": "INSERT INTO users (id, username) VALUES ($1, $2) " +
			"ON CONFLICT (id) DO UPDATE SET id = EXCLUDED.id RETURNING " + userCols,
		"user_get":                "SELECT " + userCols + " FROM users WHERE id = $1",
		"user_set_username":       "UPDATE users SET username = $2 WHERE id = $1",
		"user_set_favourite_team": "UPDATE users SET favourite_team = $2 WHERE id = $1",

		// Leagues
		"league_create": "INSERT INTO leagues (name, league_type, privacy, join_code, creator_id, round_end, created_at) " +
			"VALUES ($1, $2, $3, NULLIF($4, ''), NULLIF($5, ''), $6, $7) RETURNING id",
		"league_get":            "SELECT " + leagueCols + " FROM leagues WHERE id = $1",
		"league_lock":           "SELECT " + leagueCols + " FROM leagues WHERE id = $1 FOR UPDATE",
		"league_by_join_code":   "SELECT " + leagueCols + " FROM leagues WHERE join_code = $1",
		"league_set_round_end":  "UPDATE leagues SET round_end = $2 WHERE id = $1 AND league_type = 'seasonal'",
		"leagues_due_for_round": "SELECT " + leagueCols + " FROM leagues WHERE league_type = 'seasonal' AND round_end <= $1 ORDER BY id",

		// Membership
		"member_add":     "INSERT INTO league_members (league_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
		"member_exists":  "SELECT EXISTS (SELECT 1 FROM league_members WHERE league_id = $1 AND user_id = $2)",
		"league_members": "SELECT user_id FROM league_members WHERE league_id = $1 ORDER BY joined_at, user_id",
		"user_leagues": "SELECT l.id, l.name, l.league_type, l.privacy, COALESCE(l.join_code, ''), COALESCE(l.creator_id, ''), l.round_end, l.created_at " +
			"FROM leagues l JOIN league_members m ON m.league_id = l.id WHERE m.user_id = $1 ORDER BY l.id",

		// Accounts
		"account_get":          "SELECT " + accountCols + " FROM league_accounts WHERE user_id = $1 AND league_id = $2",
		"account_lock":         "SELECT " + accountCols + " FROM league_accounts WHERE user_id = $1 AND league_id = $2 FOR UPDATE",
		"account_insert":       "INSERT INTO league_accounts (user_id, league_id, balance) VALUES ($1, $2, $3) ON CONFLICT DO NOTHING",
		"account_set_balance":  "UPDATE league_accounts SET balance = $3, updated_at = now() WHERE user_id = $1 AND league_id = $2",
		"account_save":         "UPDATE league_accounts SET balance = $3, trophies = $4, updated_at = now() WHERE user_id = $1 AND league_id = $2",
		"league_accounts_lock": "SELECT " + accountCols + " FROM league_accounts WHERE league_id = $1 ORDER BY user_id FOR UPDATE",
		"leaderboard": "SELECT a.user_id, u.username, a.balance, a.trophies FROM league_accounts a " +
			"JOIN users u ON u.id = a.user_id WHERE a.league_id = $1 ORDER BY a.balance DESC, u.username, a.user_id",

		// Match wagers
		"wager_get": "SELECT " + wagerCols + " FROM wagers WHERE user_id = $1 AND league_id = $2 AND match_id = $3",
		"wager_put": "INSERT INTO wagers (id, user_id, league_id, match_id, league_code, season, kind, predicted_home, predicted_away, " +
			"predicted_outcome, stake, multiplier, potential_payout, global_mirrored, created_at) " +
			"VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) " +
			"ON CONFLICT (user_id, match_id, league_id) DO UPDATE SET id = EXCLUDED.id, league_code = EXCLUDED.league_code, " +
			"season = EXCLUDED.season, kind = EXCLUDED.kind, predicted_home = EXCLUDED.predicted_home, " +
			"predicted_away = EXCLUDED.predicted_away, predicted_outcome = EXCLUDED.predicted_outcome, stake = EXCLUDED.stake, " +
			"multiplier = EXCLUDED.multiplier, potential_payout = EXCLUDED.potential_payout, " +
			"global_mirrored = EXCLUDED.global_mirrored, created_at = EXCLUDED.created_at",
		"wagers_take": "DELETE FROM wagers WHERE match_id = $1 RETURNING " + wagerCols,
		"user_wagers": "SELECT " + wagerCols + " FROM wagers WHERE user_id = $1 AND league_id = $2 ORDER BY created_at DESC, match_id",

		// Player wagers
		"player_wager_get": "SELECT " + playerCols + " FROM player_wagers WHERE user_id = $1 AND league_id = $2 AND match_id = $3 AND player_id = $4",
		"player_wager_put": "INSERT INTO player_wagers (id, user_id, league_id, match_id, player_id, league_code, season, predicted_goals, " +
			"predicted_shots, predicted_minutes, stake, multiplier, potential_payout, global_mirrored, created_at) " +
			"VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15) " +
			"ON CONFLICT (user_id, match_id, player_id, league_id) DO UPDATE SET id = EXCLUDED.id, " +
			"league_code = EXCLUDED.league_code, season = EXCLUDED.season, predicted_goals = EXCLUDED.predicted_goals, " +
			"predicted_shots = EXCLUDED.predicted_shots, predicted_minutes = EXCLUDED.predicted_minutes, stake = EXCLUDED.stake, " +
			"multiplier = EXCLUDED.multiplier, potential_payout = EXCLUDED.potential_payout, " +
			"global_mirrored = EXCLUDED.global_mirrored, created_at = EXCLUDED.created_at",
		"player_wagers_take": "DELETE FROM player_wagers WHERE match_id = $1 RETURNING " + playerCols,

		// Settlement
		"pending_matches": "SELECT match_id, league_code, season FROM wagers " +
			"UNION SELECT match_id, league_code, season FROM player_wagers ORDER BY match_id",
		"match_lock":        "SELECT pg_advisory_xact_lock($1)",
		"match_lock_shared": "SELECT pg_advisory_xact_lock_shared($1)",
		"match_settled": "SELECT match_id, home_goals, away_goals, settled, settled_at FROM settled_matches WHERE match_id = $1",
		"match_mark_settled": "INSERT INTO settled_matches (match_id, home_goals, away_goals, settled, settled_at) " +
			"VALUES ($1, $2, $3, $4, $5) ON CONFLICT (match_id) DO UPDATE SET settled = EXCLUDED.settled",
	}

	for name, sql := range stmts {
		if _, err := conn.Prepare(ctx, name, sql); err != nil {
			return fmt.Errorf("prepare %q: %w", name, err)
		}
	}
	return nil
}
