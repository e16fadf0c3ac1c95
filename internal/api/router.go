package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/carvik/geodex/internal/config"
	"github.com/carvik/geodex/internal/storage"
)

// GitHubClient is everything the API needs from the GitHub client.
type GitHubClient interface {
	GitHubExchanger
	GitHubVerifier
}

// NewRouter creates a new HTTP router
func NewRouter(cfg *config.Config, gh GitHubClient, records storage.RecordStore, codes storage.CodeRegistry) http.Handler {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Compress(5))
	r.Use(SecurityHeadersMiddleware(cfg))

	// CORS
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   cfg.CORSOrigins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", headerProvider, headerAPIKey, "X-User-Email"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// The exchange endpoint is the login path itself, no auth
		r.Post("/auth/github/exchange", HandleGitHubExchange(cfg, gh, codes))

		// Protected routes
		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(cfg, gh))

			r.Get("/user/me", HandleGetCurrentUser())

			// Record routes (append-only: no update or delete)
			r.Get("/records", HandleGetRecords(records))
			r.Post("/records", HandleCreateRecord(records))
			r.Get("/records/{id}", HandleGetRecord(records))
		})
	})

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("OK"))
	})

	return r
}
