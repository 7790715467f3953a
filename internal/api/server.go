package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	corslib "github.com/rs/cors"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/albapepper/scoracle-league/internal/api/handler"
	"github.com/albapepper/scoracle-league/internal/config"
	"github.com/albapepper/scoracle-league/internal/metrics"
)

// NewRouter creates and configures the Chi router with all middleware and routes.
func NewRouter(deps handler.Deps, m *metrics.Manager, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// --- Middleware stack ---
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(InstrumentMiddleware(m))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5)) // gzip

	// CORS
	c := corslib.New(corslib.Options{
		AllowedOrigins:   cfg.CORSAllowOrigins,
		AllowedMethods:   []string{"GET", "HEAD", "POST", "PATCH", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Accept-Encoding", "Content-Type", "If-None-Match", "Cache-Control", handler.HeaderUserID, handler.HeaderUsername},
		ExposedHeaders:   []string{"X-Cache", "ETag"},
		AllowCredentials: false,
	})
	r.Use(c.Handler)

	// Rate limiting
	if cfg.RateLimitEnabled {
		r.Use(RateLimitMiddleware(cfg.RateLimitRequests, cfg.RateLimitWindow))
	}

	// --- Handler dependencies ---
	if deps.Config == nil {
		deps.Config = cfg
	}
	h := handler.New(deps)

	// --- Routes ---

	// Root
	r.Get("/", h.Root)

	// Health checks
	r.Route("/health", func(r chi.Router) {
		r.Get("/", h.HealthCheck)
		r.Get("/db", h.HealthCheckDB)
		r.Get("/cache", h.HealthCheckCache)
	})

	// Prometheus
	r.Handle("/metrics", m.Handler())

	// Swagger UI
	r.Get("/docs/*", httpSwagger.Handler(httpSwagger.URL("/docs/doc.json")))

	// API v1 routes
	r.Route("/api/v1", func(r chi.Router) {
		// Forecasts
		r.Get("/forecast/{leagueCode}/{matchID}", h.GetForecast)
		r.Get("/matches/{leagueCode}/{matchID}/players", h.GetMatchPlayers)
		r.Get("/leagues/{id}/leaderboard", h.GetLeaderboard)

		// Quotes
		r.Post("/quotes/exact", h.PostExactQuote)
		r.Post("/quotes/player", h.PostPlayerQuote)

		// Everything below acts for the X-User-ID caller
		r.Group(func(r chi.Router) {
			r.Use(h.RequireUser)

			r.Post("/wagers", h.PostWager)
			r.Post("/player-wagers", h.PostPlayerWager)

			r.Post("/leagues", h.PostLeague)
			r.Post("/leagues/join", h.PostJoinByCode)
			r.Post("/leagues/{id}/join", h.PostJoinLeague)
			r.Get("/leagues/{id}/balance", h.GetBalance)
			r.Get("/leagues/{id}/wagers", h.GetLeagueWagers)

			r.Get("/users/me/leagues", h.GetMyLeagues)
			r.Patch("/users/me", h.PatchMe)
		})
	})

	return r
}
