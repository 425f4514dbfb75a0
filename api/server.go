/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the chi router, middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for dashboards

ROUTE GROUPS:
  /api/grades/*    Fact producers (drive both cores)
  /api/audit/*     Chain history and verification
  /api/reports/*   Roll-up counter reads
  /api/admin/*     Roll-up rebuild
  /metrics         Prometheus scrape endpoint

SECURITY NOTE:
  No authentication middleware. All endpoints are public; front with a
  gateway in production.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
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
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Grade routes (fact producers)
		r.Route("/grades", func(r chi.Router) {
			r.Post("/", h.CreateGrade)
			r.Post("/{id}/correct", h.CorrectGrade)
		})

		// Audit routes
		r.Route("/audit", func(r chi.Router) {
			r.Get("/{entityType}/{entityID}", h.GetHistory)
			r.Get("/{entityType}/{entityID}/verify", h.VerifyChain)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/average/{country}/{year}", h.CountryAverage)
			r.Get("/average-institution/{id}/{year}", h.InstitutionAverage)
			r.Get("/top10/{country}/{year}", h.TopStudents)
			r.Get("/top-subjects", h.TopSubjects)
			r.Get("/distribution/{country}/{year}", h.Distribution)
		})

		// Admin routes
		r.Route("/admin", func(r chi.Router) {
			r.Post("/rollups/rebuild", h.RebuildRollups)
		})
	})

	// Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.Handler())

	return r
}
