// Package config provides centralized configuration loaded from environment
// variables. Shared by both cmd/api and cmd/admin.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// --------------------------------------------------------------------------
// League registry: the competitions the statistics feed covers
// --------------------------------------------------------------------------

type LeagueConfig struct {
	Code          string
	Name          string
	ProviderID    int // SportMonks league ID
	CurrentSeason int
}

var LeagueRegistry = map[string]LeagueConfig{
	"EPL":        {Code: "EPL", Name: "Premier League", ProviderID: 8, CurrentSeason: 2025},
	"Bundesliga": {Code: "Bundesliga", Name: "Bundesliga", ProviderID: 82, CurrentSeason: 2025},
	"Ligue_1":    {Code: "Ligue_1", Name: "Ligue 1", ProviderID: 301, CurrentSeason: 2025},
	"Serie_A":    {Code: "Serie_A", Name: "Serie A", ProviderID: 384, CurrentSeason: 2025},
	"La_liga":    {Code: "La_liga", Name: "La Liga", ProviderID: 564, CurrentSeason: 2025},
}

// LookupLeague returns the registry entry for a feed league code.
func LookupLeague(code string) (LeagueConfig, bool) {
	lc, ok := LeagueRegistry[code]
	return lc, ok
}

// --------------------------------------------------------------------------
// Wagering constants
// --------------------------------------------------------------------------

const (
	MinStake       = 10
	MaxStake       = 500
	InitialBalance = 1000

	// GlobalLeagueID is the league every user implicitly belongs to.
	GlobalLeagueID int64 = 1

	RoundLength = 7 * 24 * time.Hour
)

// Store drivers.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// --------------------------------------------------------------------------
// Config struct, populated from environment variables
// --------------------------------------------------------------------------

type Config struct {
	// Storage
	StoreDriver    string
	DatabaseURL    string
	DBPoolMinConns int
	DBPoolMaxConns int
	DBPoolMaxLife  time.Duration

	// API server
	APIHost     string
	APIPort     int
	Environment string // development, staging, production
	Debug       bool

	// CORS
	CORSAllowOrigins []string

	// Rate limiting
	RateLimitEnabled  bool
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Statistics feed
	SportMonksAPIToken string
	SportMonksBaseURL  string
	FeedRequestsPerMin int

	// Cache
	CacheEnabled bool

	// Background work
	SettlementPollInterval time.Duration
	RoundSweepInterval     time.Duration
	SettlementWorkers      int
	SettlePlayerWagers     bool

	// PlacementRetries bounds how often a wager placement is retried after a
	// transaction conflict.
	PlacementRetries int
}

// Load reads configuration from environment variables with sensible defaults.
func Load() (*Config, error) {
	driver := envOr("STORE_DRIVER", StorePostgres)
	if driver != StorePostgres && driver != StoreMemory {
		return nil, fmt.Errorf("STORE_DRIVER must be %q or %q, got %q", StorePostgres, StoreMemory, driver)
	}

	dbURL := envOr("DATABASE_URL", envOr("NEON_DATABASE_URL", ""))
	if driver == StorePostgres && dbURL == "" {
		return nil, fmt.Errorf("DATABASE_URL or NEON_DATABASE_URL must be set")
	}

	cfg := &Config{
		StoreDriver:    driver,
		DatabaseURL:    dbURL,
		DBPoolMinConns: envInt("DB_POOL_MIN_CONNS", 2),
		DBPoolMaxConns: envInt("DB_POOL_MAX_CONNS", 10),
		DBPoolMaxLife:  envDuration("DB_POOL_MAX_LIFE_MINUTES", 30*time.Minute, time.Minute),

		APIHost:     envOr("API_HOST", "0.0.0.0"),
		APIPort:     envInt("API_PORT", envInt("PORT", 8000)),
		Environment: envOr("ENVIRONMENT", "development"),
		Debug:       envBool("DEBUG", false),

		CORSAllowOrigins: envList("CORS_ALLOW_ORIGINS", []string{
			"http://localhost:3000",
			"http://localhost:5173",
		}),

		RateLimitEnabled:  envBool("RATE_LIMIT_ENABLED", true),
		RateLimitRequests: envInt("RATE_LIMIT_REQUESTS", 100),
		RateLimitWindow:   envDuration("RATE_LIMIT_WINDOW", time.Minute, time.Second),

		SportMonksAPIToken: envOr("SPORTMONKS_API_TOKEN", ""),
		SportMonksBaseURL:  envOr("SPORTMONKS_BASE_URL", "https://api.sportmonks.com/v3/football"),
		FeedRequestsPerMin: envInt("FEED_REQUESTS_PER_MINUTE", 300),

		CacheEnabled: envBool("CACHE_ENABLED", true),

		SettlementPollInterval: envDuration("SETTLEMENT_POLL_MINUTES", 10*time.Minute, time.Minute),
		RoundSweepInterval:     envDuration("ROUND_SWEEP_MINUTES", 5*time.Minute, time.Minute),
		SettlementWorkers:      envInt("SETTLEMENT_WORKERS", 2),
		SettlePlayerWagers:     envBool("SETTLE_PLAYER_WAGERS", false),

		PlacementRetries: envInt("PLACEMENT_RETRIES", 3),
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	var problems []string
	if c.APIPort < 1 || c.APIPort > 65535 {
		problems = append(problems, fmt.Sprintf("API_PORT %d out of range", c.APIPort))
	}
	if c.DBPoolMinConns < 0 || c.DBPoolMaxConns < 1 || c.DBPoolMinConns > c.DBPoolMaxConns {
		problems = append(problems, fmt.Sprintf("DB pool min %d / max %d invalid", c.DBPoolMinConns, c.DBPoolMaxConns))
	}
	if c.RateLimitEnabled && (c.RateLimitRequests < 1 || c.RateLimitWindow <= 0) {
		problems = append(problems, "RATE_LIMIT_REQUESTS and RATE_LIMIT_WINDOW must be positive")
	}
	if c.FeedRequestsPerMin < 1 {
		problems = append(problems, "FEED_REQUESTS_PER_MINUTE must be positive")
	}
	if c.SettlementWorkers < 1 {
		problems = append(problems, "SETTLEMENT_WORKERS must be at least 1")
	}
	if c.PlacementRetries < 0 {
		problems = append(problems, "PLACEMENT_RETRIES must not be negative")
	}
	if len(problems) > 0 {
		return fmt.Errorf("invalid config: %s", strings.Join(problems, "; "))
	}
	return nil
}

// IsProduction returns true if running in production environment.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// --------------------------------------------------------------------------
// Env helpers
// --------------------------------------------------------------------------

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return fallback
}

// envDuration accepts a Go duration ("90s", "1h30m") or a bare integer in unit.
// Zero disables a schedule, so it is kept as given.
func envDuration(key string, fallback, unit time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * unit
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string, fallback []string) []string {
	if v := os.Getenv(key); v != "" {
		parts := strings.Split(v, ",")
		result := make([]string, 0, len(parts))
		for _, p := range parts {
			if trimmed := strings.TrimSpace(p); trimmed != "" {
				result = append(result, trimmed)
			}
		}
		if len(result) > 0 {
			return result
		}
	}
	return fallback
}
