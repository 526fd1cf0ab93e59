/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the grid frontend

ROUTE GROUPS:
  /api/cycles         Cycle window lookups
  /api/timesheets/*   Grid editing and approval workflow
  /api/scenarios/*    Demo scenarios
  /api/health         Liveness probe

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

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		r.Get("/cycles", h.GetCycle)

		r.Route("/timesheets/{employee}", func(r chi.Router) {
			r.Get("/", h.GetTimesheet)
			r.Post("/flush", h.Flush)
			r.Get("/audit", h.GetAudit)

			r.Route("/rows", func(r chi.Router) {
				r.Post("/", h.AddRow)
				r.Put("/{row}/fields", h.UpdateField)
				r.Put("/{row}/days/{date}", h.UpdateDay)
				r.Post("/{row}/clear", h.ClearRow)
				r.Delete("/{row}", h.RemoveRow)
			})

			r.Post("/submit", h.Submit)
			r.Post("/approve", h.Approve)
			r.Post("/reject", h.Reject)
		})

		r.Route("/scenarios", func(r chi.Router) {
			r.Get("/", h.ListScenarios)
			r.Post("/load", h.LoadScenario)
		})
	})

	return r
}
