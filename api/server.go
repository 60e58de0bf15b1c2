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
  4. CORS:       Cross-origin requests for frontend

ROUTE GROUPS:
  /api/employees/*    Directory and per-employee payslips
  /api/attendance/*   Attendance records and approval actions
  /api/evaluations/*  KPI bonus/penalty events
  /api/salaries/*     Month-wide payslip listing and recompute
  /api/config/*       System configuration and pending proposals
  /api/formulas       Formula set
  /api/criteria       KPI criteria catalog
  /api/audit          Audit log queries

SECURITY NOTE:
  No authentication middleware. The acting employee is taken from the
  X-Actor-ID header; role checks run against stored roles.

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
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
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor-ID"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		// Employee routes
		r.Route("/employees", func(r chi.Router) {
			r.Get("/", h.ListEmployees)
			r.Get("/{id}", h.GetEmployee)
			r.Get("/{id}/attendance", h.ListEmployeeAttendance)

			r.Route("/{id}/salary/{month}", func(r chi.Router) {
				r.Get("/", h.GetSalaryRecord)
				r.Post("/adjustments", h.AddAdjustment)
				r.Put("/advance", h.SetAdvance)
				r.Post("/submit", h.SubmitSalary)
				r.Post("/approve", h.ApproveSalary)
				r.Post("/reject", h.RejectSalary)
			})
		})

		// Attendance routes
		r.Route("/attendance", func(r chi.Router) {
			r.Post("/", h.CreateAttendance)
			r.Post("/batch-approve", h.BatchApproveAttendance)
			r.Get("/{id}", h.GetAttendance)
			r.Post("/{id}/submit", h.SubmitAttendance)
			r.Post("/{id}/approve", h.ApproveAttendance)
			r.Post("/{id}/reject", h.RejectAttendance)
		})

		// Evaluation routes
		r.Route("/evaluations", func(r chi.Router) {
			r.Post("/", h.CreateEvaluation)
			r.Get("/{id}", h.GetEvaluation)
			r.Post("/{id}/submit", h.SubmitEvaluation)
			r.Post("/{id}/approve", h.ApproveEvaluation)
			r.Post("/{id}/reject", h.RejectEvaluation)
		})

		// Salary routes
		r.Route("/salaries", func(r chi.Router) {
			r.Post("/recompute", h.Recompute)
			r.Get("/{month}", h.ListSalaryRecords)
		})

		// Configuration routes
		r.Route("/config", func(r chi.Router) {
			r.Get("/", h.GetConfig)
			r.Put("/", h.UpdateConfig)
			r.Get("/pending", h.GetPendingConfig)
			r.Post("/pending/approve", h.ApprovePendingConfig)
			r.Delete("/pending", h.DiscardPendingConfig)
		})

		r.Get("/formulas", h.ListFormulas)
		r.Put("/formulas", h.UpdateFormulas)
		r.Put("/criteria", h.UpdateCriteria)

		r.Get("/audit", h.QueryAudit)
	})

	return r
}
