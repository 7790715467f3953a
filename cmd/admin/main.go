// Command admin is the Scoracle League operator CLI.
//
// Usage:
//
//	scoracle-admin migrate
//	scoracle-admin forecast --league EPL --match 19134
//	scoracle-admin settle match --match 19134 --home 2 --away 1
//	scoracle-admin settle poll --workers 4 --players
//	scoracle-admin rounds end --league 7
//	scoracle-admin rounds sweep
//	scoracle-admin leagues create --name "Sunday Club" --type seasonal --privacy private --creator u1
//	scoracle-admin users rename --id u1 --username Gaffer
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/albapepper/scoracle-league/internal/app"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/db"
	"github.com/albapepper/scoracle-league/internal/league"
	"github.com/albapepper/scoracle-league/internal/settlement"
	"github.com/albapepper/scoracle-league/internal/store"
	"github.com/albapepper/scoracle-league/schema"
)

var logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

func main() {
	// Load .env if present
	_ = godotenv.Load(".env")

	root := &cobra.Command{
		Use:   "scoracle-admin",
		Short: "Scoracle League operator CLI",
	}

	root.AddCommand(migrateCmd())
	root.AddCommand(forecastCmd())
	root.AddCommand(settleCmd())
	root.AddCommand(roundsCmd())
	root.AddCommand(leaguesCmd())
	root.AddCommand(usersCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

// --------------------------------------------------------------------------
// migrate command
// --------------------------------------------------------------------------

func migrateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply schema/schema.sql to DATABASE_URL",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
			defer cancel()

			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			if cfg.StoreDriver != config.StorePostgres {
				return fmt.Errorf("migrate needs STORE_DRIVER=%s", config.StorePostgres)
			}
			start := time.Now()
			if err := db.Migrate(ctx, cfg.DatabaseURL, schema.SQL); err != nil {
				return err
			}
			logger.Info("Schema applied", "duration", time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
}

// --------------------------------------------------------------------------
// forecast command
// --------------------------------------------------------------------------

func forecastCmd() *cobra.Command {
	var (
		code    string
		season  int
		matchID int64
		players bool
	)
	cmd := &cobra.Command{
		Use:   "forecast",
		Short: "Print the model forecast for a match",
		RunE: func(cmd *cobra.Command, args []string) error {
			if matchID == 0 {
				return fmt.Errorf("--match is required")
			}
			return run(func(ctx context.Context, a *app.App) error {
				if season == 0 {
					season = config.LeagueRegistry[code].CurrentSeason
				}
				var v any
				var err error
				if players {
					v, err = a.Forecaster.LikelyPlayers(ctx, code, season, matchID)
				} else {
					v, err = a.Forecaster.ForecastMatch(ctx, code, season, matchID)
				}
				if err != nil {
					return err
				}
				return printJSON(cmd, v)
			})
		},
	}
	cmd.Flags().StringVar(&code, "league", "EPL", "Feed league code (EPL, La_liga, Bundesliga, Serie_A, Ligue_1)")
	cmd.Flags().IntVar(&season, "season", 0, "Season year (defaults to current)")
	cmd.Flags().Int64Var(&matchID, "match", 0, "Match ID")
	cmd.Flags().BoolVar(&players, "players", false, "Print likely players instead of the match forecast")
	return cmd
}

// --------------------------------------------------------------------------
// settle command
// --------------------------------------------------------------------------

func settleCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "settle",
		Short: "Settle wagers on finished matches",
	}
	cmd.AddCommand(settleMatchCmd())
	cmd.AddCommand(settlePollCmd())
	return cmd
}

func settleMatchCmd() *cobra.Command {
	var (
		matchID    int64
		home, away int
	)
	cmd := &cobra.Command{
		Use:   "match",
		Short: "Settle one match with a known final score",
		RunE: func(cmd *cobra.Command, args []string) error {
			if matchID == 0 {
				return fmt.Errorf("--match is required")
			}
			return run(func(ctx context.Context, a *app.App) error {
				res, err := a.Engine.SettleMatch(ctx, matchID, home, away)
				if err != nil {
					return err
				}
				logger.Info("Settle finished", "summary", res.Summary())
				return nil
			})
		},
	}
	cmd.Flags().Int64Var(&matchID, "match", 0, "Match ID")
	cmd.Flags().IntVar(&home, "home", 0, "Home goals")
	cmd.Flags().IntVar(&away, "away", 0, "Away goals")
	return cmd
}

func settlePollCmd() *cobra.Command {
	var (
		workers int
		players bool
	)
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Fetch results for every pending match and settle the finished ones",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				poller := a.Poller
				if cmd.Flags().Changed("workers") || cmd.Flags().Changed("players") {
					poller = settlement.NewPoller(a.Engine, a.Store, a.Feed, settlement.PollerConfig{
						Workers:       workers,
						SettlePlayers: players,
						Metrics:       a.Metrics,
					}, logger)
				}
				res := poller.Poll(ctx)
				logger.Info("Settlement poll finished", "summary", res.Summary())
				for _, e := range res.Errors {
					logger.Error("settlement error", "error", e)
				}
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&workers, "workers", 2, "Concurrent worker count")
	cmd.Flags().BoolVar(&players, "players", false, "Also settle player wagers from match lineups")
	return cmd
}

// --------------------------------------------------------------------------
// rounds command
// --------------------------------------------------------------------------

func roundsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "rounds",
		Short: "Seasonal league rounds",
	}

	var leagueID int64
	end := &cobra.Command{
		Use:   "end",
		Short: "End the current round of a seasonal league now",
		RunE: func(cmd *cobra.Command, args []string) error {
			if leagueID == 0 {
				return fmt.Errorf("--league is required")
			}
			return run(func(ctx context.Context, a *app.App) error {
				res, err := a.Leagues.EndSeasonalRound(ctx, leagueID)
				if err != nil {
					return err
				}
				logger.Info("Round ended", "summary", res.Summary(), "winners", res.Winners)
				return nil
			})
		},
	}
	end.Flags().Int64Var(&leagueID, "league", 0, "League ID")

	sweep := &cobra.Command{
		Use:   "sweep",
		Short: "End every overdue seasonal round",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				res := a.Leagues.SweepDueRounds(ctx)
				logger.Info("Round sweep finished", "summary", res.Summary())
				for _, e := range res.Errors {
					logger.Error("round error", "error", e)
				}
				return nil
			})
		},
	}

	cmd.AddCommand(end, sweep)
	return cmd
}

// --------------------------------------------------------------------------
// leagues / users commands
// --------------------------------------------------------------------------

func leaguesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "leagues",
		Short: "Manage leagues",
	}

	var req league.CreateRequest
	var typ, privacy string
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a league on behalf of a user",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.CreatorID == "" {
				return fmt.Errorf("--creator is required")
			}
			req.Type = store.LeagueType(typ)
			req.Privacy = store.Privacy(privacy)
			return run(func(ctx context.Context, a *app.App) error {
				if _, err := a.Ledger.Register(ctx, req.CreatorID, req.CreatorID); err != nil {
					return err
				}
				l, err := a.Leagues.Create(ctx, req)
				if err != nil {
					return err
				}
				return printJSON(cmd, l)
			})
		},
	}
	create.Flags().StringVar(&req.Name, "name", "", "League name")
	create.Flags().StringVar(&typ, "type", string(store.LeagueClassic), "classic or seasonal")
	create.Flags().StringVar(&privacy, "privacy", string(store.Public), "public or private")
	create.Flags().StringVar(&req.CreatorID, "creator", "", "Creator user ID")

	var leagueID int64
	board := &cobra.Command{
		Use:   "leaderboard",
		Short: "Print a league leaderboard",
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(func(ctx context.Context, a *app.App) error {
				lb, err := a.Leagues.Leaderboard(ctx, leagueID)
				if err != nil {
					return err
				}
				return printJSON(cmd, lb)
			})
		},
	}
	board.Flags().Int64Var(&leagueID, "league", config.GlobalLeagueID, "League ID")

	cmd.AddCommand(create, board)
	return cmd
}

func usersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Manage users",
	}

	var id, username string
	rename := &cobra.Command{
		Use:   "rename",
		Short: "Change a user's display name",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" || username == "" {
				return fmt.Errorf("--id and --username are required")
			}
			return run(func(ctx context.Context, a *app.App) error {
				return a.Store.WithTx(ctx, func(ctx context.Context, tx store.Tx) error {
					u, err := tx.UpdateUser(ctx, id, store.SetUsername(username))
					if err != nil {
						return err
					}
					logger.Info("User renamed", "id", u.ID, "username", u.Username)
					return nil
				})
			})
		},
	}
	rename.Flags().StringVar(&id, "id", "", "User ID")
	rename.Flags().StringVar(&username, "username", "", "New display name")

	cmd.AddCommand(rename)
	return cmd
}

// --------------------------------------------------------------------------
// Shared setup
// --------------------------------------------------------------------------

// run handles config loading, store connection, and context cancellation.
func run(fn func(ctx context.Context, a *app.App) error) error {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	st, err := app.OpenStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	a := app.New(cfg, st, logger)
	defer a.Close()

	return fn(ctx, a)
}

func printJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
