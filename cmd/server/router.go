package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/lexfold/alchemy-api/internal/api"
	apiMiddleware "github.com/lexfold/alchemy-api/internal/api/middleware"
)

// setupRouter creates the application router with all routes and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.TraceMiddleware)

	jobHandler := api.NewJobHandler(app.jobService, app.logger)
	batchHandler := api.NewBatchHandler(app.jobService, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Post("/jobs", jobHandler.Submit)
		r.Get("/jobs/{id}", jobHandler.Get)
		r.Post("/jobs/{id}/cancel", jobHandler.Cancel)

		r.Post("/batches", batchHandler.Submit)
		r.Get("/batches/{id}", batchHandler.Get)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
