package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"tutor-backend/internal/handlers"
	"tutor-backend/internal/middleware"
	"tutor-backend/internal/websocket"
)

func New(
	jwtAuth *middleware.JWTAuth,
	chatHandler *handlers.ChatHandler,
	progressHandler *handlers.ProgressHandler,
	syllabusHandler *handlers.SyllabusHandler,
	wsHub *websocket.Hub,
	frontendURL string,
	chatAuthRequired bool,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Message rate limiter (30 req/min per IP, burst 10)
	sendLimiter := middleware.NewRateLimiter(30, time.Minute, 10)

	// Token check plus token user == {username}
	userScoped := func(r chi.Router) {
		if chatAuthRequired {
			r.Use(jwtAuth.Middleware)
			r.Use(middleware.RequireSameUser("username"))
		}
	}

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/api/v1", func(r chi.Router) {

		// ──── Chat Routes ────
		r.Route("/chat", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(sendLimiter.Middleware)
				userScoped(r)
				r.Post("/send/instant/{username}", chatHandler.SendInstant)
				r.Post("/send/check/{username}", chatHandler.SendInstant)
				r.Post("/send/{username}", chatHandler.SendConversational)
			})

			r.Group(func(r chi.Router) {
				userScoped(r)
				r.Get("/user/{username}", chatHandler.ListByUser)
			})

			r.Group(func(r chi.Router) {
				if chatAuthRequired {
					r.Use(jwtAuth.Middleware)
				}
				r.Get("/session/{session_id}", chatHandler.ListBySession)
			})
		})

		// ──── Progress Routes ────
		r.Route("/users/{username}", func(r chi.Router) {
			userScoped(r)
			r.Get("/progress", progressHandler.Stats)
		})

		// ──── Syllabus Routes ────
		r.Get("/syllabus/{class_num}", syllabusHandler.ByClass)
		r.With(jwtAuth.Middleware).Get("/topics", syllabusHandler.ForCurrentUser)

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
