/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for local clients

ROUTE GROUPS:
  /api/transactions      Ledger queries
  /api/notifications     Notification ingest
  /api/recurrences/*     Recurrence rule management
  /api/scheduler/*       Pass control and status
  /api/scenarios/*       Demo data loaders
  /metrics               Prometheus metrics

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/warp/finance-engine/metrics"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
		})

		r.Route("/notifications", func(r chi.Router) {
			r.Post("/", h.IngestNotification)
		})

		r.Route("/recurrences", func(r chi.Router) {
			r.Get("/", h.ListRecurrences)
			r.Post("/", h.CreateRecurrence)
			r.Get("/{id}", h.GetRecurrence)
			r.Put("/{id}", h.UpdateRecurrence)
			r.Delete("/{id}", h.DeleteRecurrence)
		})

		r.Route("/scheduler", func(r chi.Router) {
			r.Post("/run", h.RunScheduler)
			r.Get("/status", h.SchedulerStatus)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	// Prometheus scrape endpoint
	r.Get("/metrics", metrics.Handler().ServeHTTP)

	return r
}
