package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/cloo-solutions/copilot/internal/api"
	"github.com/cloo-solutions/copilot/internal/api/handlers"
	"github.com/cloo-solutions/copilot/internal/api/middleware"
)

// DefaultMaxBodyBytes bounds request bodies.
const DefaultMaxBodyBytes int64 = 1 << 20

type RouterConfig struct {
	AuthValidator middleware.AuthValidator
	AnswerHandler *handlers.AnswerHandler
	AuditHandler  *handlers.AuditHandler
	MaxBodyBytes  int64
}

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBodyBytes := cfg.MaxBodyBytes
	if maxBodyBytes <= 0 {
		maxBodyBytes = DefaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBodyBytes))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Group(func(r chi.Router) {
		r.Use(middleware.APIKeyAuth(cfg.AuthValidator))

		r.With(middleware.RequireJSON).Post("/rag/answer", cfg.AnswerHandler.Answer)
		r.Get("/audit", cfg.AuditHandler.List)
	})

	return r
}
