package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"testsummary/internal/gateway/handler"
	"testsummary/internal/gateway/middleware"
)

func NewRouter(api *handler.API, logger *slog.Logger) http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(middleware.RequestLogger(logger))
	r.Use(chimw.Recoverer)
	r.Use(middleware.CORS)

	r.Get("/health", api.HandleHealth)
	r.Route("/api/tests", func(r chi.Router) {
		r.Get("/", api.HandleListTests)
		r.Get("/{id}", api.HandleGetTest)
		r.Get("/{id}/summary", api.HandleSummary)
		r.Get("/{id}/summary/stream", api.HandleSummaryStream)
		r.Get("/{id}/summary/ws", api.HandleSummaryWS)
	})

	// Debug
	r.Get("/debug/cache", api.HandleDebugCache)
	return r
}
