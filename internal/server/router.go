package server

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/intellinote/intellinote/internal/api"
	"github.com/intellinote/intellinote/internal/api/handlers"
	"github.com/intellinote/intellinote/internal/api/middleware"
)

type RouterConfig struct {
	DocumentHandler *handlers.DocumentHandler
	MaxBodyBytes    int64
}

const defaultMaxBodyBytes int64 = 50 * 1024 * 1024

func NewRouter(cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	maxBody := cfg.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r.Use(middleware.RequestID)
	r.Use(middleware.SentryMiddleware)
	r.Use(middleware.AccessLog)
	r.Use(middleware.MaxBodyBytes(maxBody))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		api.Success(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Route("/files", func(r chi.Router) {
		r.Post("/upload", cfg.DocumentHandler.Upload)
		r.Post("/check", cfg.DocumentHandler.Check)
		r.Get("/{id}/status", cfg.DocumentHandler.Status)
		r.Get("/{id}/progress", cfg.DocumentHandler.Progress)
	})

	r.Route("/notebooks/{notebookID}/files", func(r chi.Router) {
		r.Get("/", cfg.DocumentHandler.List)
		r.Delete("/{id}", cfg.DocumentHandler.Delete)
	})

	return r
}
