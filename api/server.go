/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Logger:     Request logging
  3. Recoverer:  Panic recovery (500 instead of crash)
  4. CORS:       Cross-origin requests for the web app
  5. Auth:       Bearer token on everything under /api

ROUTE GROUPS:
  /api/attendance/*     Attendance records (engine)
  /api/children/*       Children directory and summaries
  /api/caretakers/*     Caretaker directory
  /api/auth/logout      Token revocation
  /healthz              Liveness, no auth

ROLES:
  create attendance        any authenticated user
  read/update attendance   manager, caretaker, parent
  directory reads          manager, caretaker, parent
  directory writes         manager

SEE ALSO:
  - handlers.go: Handler implementations
  - auth.go: Token verification
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/tungphan2823/Kindergarten-Activity-Tracking-Application/attendance"
)

// DefaultOrigins are allowed when no CORS origins are configured.
var DefaultOrigins = []string{"http://localhost:5173", "http://localhost:3000"}

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler, origins []string) *chi.Mux {
	if len(origins) == 0 {
		origins = DefaultOrigins
	}
	auth := h.Auth
	if auth == nil {
		auth = NewAuthenticator("", nil, false)
	}

	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	readers := RequireRoles(attendance.RoleManager, attendance.RoleCaretaker, attendance.RoleParent)
	managers := RequireRoles(attendance.RoleManager)

	r.Route("/api", func(r chi.Router) {
		r.Use(auth.Middleware)

		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/", h.CreateAttendance)
			r.With(readers).Get("/", h.ListAttendance)
			r.With(readers).Get("/{id}", h.GetAttendance)
			r.With(readers).Put("/{id}", h.UpdateAttendance)
		})

		// Children routes
		r.Route("/children", func(r chi.Router) {
			r.With(readers).Get("/", h.ListChildren)
			r.With(managers).Post("/", h.CreateChild)
			r.With(readers).Get("/{id}", h.GetChild)
			r.With(readers).Get("/{id}/attendance/summary", h.AttendanceSummary)
		})

		// Caretaker routes
		r.Route("/caretakers", func(r chi.Router) {
			r.With(readers).Get("/", h.ListCaretakers)
			r.With(managers).Post("/", h.CreateCaretaker)
			r.With(readers).Get("/{id}", h.GetCaretaker)
		})

		r.Post("/auth/logout", h.Logout)
	})

	return r
}
