/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for a frontend

ROUTE GROUPS:
  /api/runs/*           Pay run lifecycle, details, failures
  /api/concepts/*       Concept presets
  /api/subsidiaries/*   Company settings and employee lists
  /api/employees/*      Employee profiles and activity
  /api/activities       Bulk activity upload
  /api/holidays/*       Holiday calendar
  /api/scenarios/*      Demo scenarios
  /health               Liveness

SECURITY NOTE:
  No authentication middleware. All endpoints are public.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// DefaultAllowedOrigins is used when no origins are configured.
var DefaultAllowedOrigins = []string{"http://localhost:5173", "http://localhost:8080"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, allowedOrigins []string) *chi.Mux {
	if len(allowedOrigins) == 0 {
		allowedOrigins = DefaultAllowedOrigins
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		AllowCredentials: true,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Pay runs
		r.Route("/runs", func(r chi.Router) {
			r.Get("/", h.ListRuns)
			r.Post("/", h.CreateRun)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetRun)
				r.Delete("/", h.DeleteRun)
				r.Get("/concepts", h.GetRunConcepts)
				r.Put("/concepts", h.ConfigureConcepts)
				r.Post("/launch", h.LaunchRun)
				r.Post("/abort", h.AbortRun)
				r.Post("/approve", h.ApproveRun)
				r.Post("/pay", h.PayRun)
				r.Post("/cancel", h.CancelRun)
				r.Get("/details", h.ListDetails)
				r.Get("/details/{employeeID}", h.GetDetail)
				r.Get("/failures", h.ListFailures)
			})
		})

		r.Get("/concepts/presets/{name}", h.GetConceptPreset)

		// Collaborator data
		r.Route("/subsidiaries", func(r chi.Router) {
			r.Get("/", h.ListSubsidiaries)
			r.Post("/", h.SaveSubsidiary)
			r.Get("/{id}", h.GetSubsidiary)
			r.Get("/{id}/employees", h.ListEmployees)
		})

		r.Route("/employees", func(r chi.Router) {
			r.Post("/", h.SaveEmployee)
			r.Delete("/{id}", h.DeleteEmployee)
			r.Get("/{id}/activities", h.ListActivities)
		})

		r.Post("/activities", h.CreateActivities)

		r.Route("/holidays", func(r chi.Router) {
			r.Get("/", h.ListHolidays)
			r.Post("/", h.CreateHoliday)
			r.Post("/defaults", h.AddDefaultHolidays)
			r.Delete("/{id}", h.DeleteHoliday)
		})

		// Scenario routes
		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Get("/current", h.GetCurrentScenario)
			r.Post("/load", h.LoadScenario)
			r.Post("/reset", h.ResetDatabase)
		})
	})

	return r
}
