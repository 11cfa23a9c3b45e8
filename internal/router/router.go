package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"cardforge-backend/internal/handlers"
	"cardforge-backend/internal/middleware"
	"cardforge-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	quota *middleware.Quota,
	authHandler *handlers.AuthHandler,
	deckHandler *handlers.DeckHandler,
	noteHandler *handlers.NoteHandler,
	jobHandler *handlers.JobHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Auth rate limiter (10 req/min per IP)
	authLimiter := middleware.NewRateLimiter(10, time.Minute)

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Auth Routes (public) ────
		r.Route("/auth", func(r chi.Router) {
			r.Use(authLimiter.Middleware)
			r.Post("/register", authHandler.Register)
			r.Post("/login", authHandler.Login)
			r.Post("/refresh", authHandler.Refresh)

			// Logout requires auth
			r.Group(func(r chi.Router) {
				r.Use(jwtAuth.Middleware)
				r.Post("/logout", authHandler.Logout)
			})
		})

		// ──── Deck Routes ────
		r.Route("/decks", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			// Generation endpoints count against the daily quota;
			// reads and reviews do not.
			r.Group(func(r chi.Router) {
				r.Use(quota.Middleware)
				r.Post("/generate", deckHandler.Generate)
				r.Post("/{id}/regenerate", deckHandler.Regenerate)
			})

			r.Get("/", deckHandler.List)
			r.Get("/{id}", deckHandler.Get)
			r.Get("/{id}/stats", deckHandler.Stats)
			r.Delete("/{id}", deckHandler.Delete)
			r.Post("/{id}/cards/{cardID}/rating", deckHandler.RateCard)
		})

		// ──── Note Routes ────
		r.Route("/notes", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)

			r.Group(func(r chi.Router) {
				r.Use(quota.Middleware)
				r.Post("/generate", noteHandler.Generate)
			})

			r.Get("/", noteHandler.List)
			r.Get("/{id}", noteHandler.Get)
			r.Delete("/{id}", noteHandler.Delete)
		})

		// ──── Job Routes ────
		r.Route("/jobs", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/{id}", jobHandler.Get)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
