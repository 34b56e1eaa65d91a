package http

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"gigboard/internal/handler"
	"gigboard/internal/httputil"
	authmw "gigboard/internal/transport/http/middleware"
)

// RouterConfig holds the dependencies needed to create routes
type RouterConfig struct {
	CommentHandler *handler.CommentHandler
	StreamHandler  *handler.StreamHandler
	JWTSecret      string
}

// NewRouter creates and configures a new Chi router with all route groups
func NewRouter(cfg RouterConfig) chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// Health check endpoint (useful for deployment/monitoring)
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		httputil.WriteJSON(w, 200, map[string]string{"status": "ok"})
	})

	// All thread endpoints require authentication; the discussion on a job
	// posting is only visible to signed-in marketplace users.
	r.Group(func(r chi.Router) {
		r.Use(authmw.AuthMiddleware(cfg.JWTSecret))

		r.Route("/threads/{id}", func(r chi.Router) {
			r.Get("/comments", cfg.CommentHandler.GetThread)
			r.Post("/comments", cfg.CommentHandler.Create)
			r.Put("/comments", cfg.CommentHandler.CreateReply)
			r.Delete("/comments", cfg.CommentHandler.Delete)
			r.Post("/comments/{commentId}/like", cfg.CommentHandler.ToggleLike)

			r.Get("/stream", cfg.StreamHandler.Stream)
		})
	})

	return r
}
