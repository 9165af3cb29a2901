package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/hlog"

	"classroom-backend/internal/handlers"
	"classroom-backend/internal/middleware"
	"classroom-backend/internal/websocket"
)

func New(
	logger zerolog.Logger,
	jwtAuth *middleware.JWTAuth,
	submitLimiter *middleware.RateLimiter,
	sessionHandler *handlers.SessionHandler,
	playbackHandler *handlers.PlaybackHandler,
	healthHandler *handlers.HealthHandler,
	wsHub *websocket.Hub,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(hlog.NewHandler(logger))
	r.Use(hlog.AccessHandler(func(r *http.Request, status, size int, duration time.Duration) {
		hlog.FromRequest(r).Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", status).
			Int("size", size).
			Dur("duration", duration).
			Msg("request")
	}))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	r.Get("/health", healthHandler.Health)

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Schedule & Sessions ────
		r.Group(func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/classes/{id}/sessions", sessionHandler.ListByClass)

			r.Route("/sessions/{id}", func(r chi.Router) {
				r.Get("/", sessionHandler.Get)
				r.Post("/start-exam", sessionHandler.StartExam)
				r.With(submitLimiter.Middleware).Post("/submissions", sessionHandler.Submit)
			})

			r.With(middleware.RequireRole(middleware.RoleTeacher)).
				Put("/submissions/{id}/score", sessionHandler.OverrideScore)
		})

		// ──── Video Playback ────
		r.Route("/playback", func(r chi.Router) {
			r.Use(jwtAuth.Middleware)
			r.Get("/", playbackHandler.Get)
			r.Post("/open", playbackHandler.Open)
			r.Post("/time", playbackHandler.TimeUpdate)
			r.Post("/seek", playbackHandler.Seek)
			r.Post("/secondary", playbackHandler.ToggleSecondary)
			r.Delete("/", playbackHandler.Close)
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
