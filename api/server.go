/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

MIDDLEWARE STACK:
  1. Logger:     Request logging
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. RequestID:  Unique ID per request for tracing
  4. CORS:       Cross-origin requests for the mobile/web clients

ROUTE GROUPS:
  /api/buckets/*        Bucket balances, targets, transfers, resets
  /api/distributions/*  Income distribution and revert
  /api/transactions/*   Transaction reads
  /api/backup           Snapshot upload
  /api/imports          Reconciliation audit trail

SECURITY NOTE:
  No authentication middleware currently. All endpoints are public.

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
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.Health)

		// Bucket routes
		r.Route("/buckets", func(r chi.Router) {
			r.Get("/", h.ListBuckets)
			r.Post("/transfer", h.Transfer)
			r.Get("/{id}", h.GetBucket)
			r.Put("/{id}/target", h.SetBucketTarget)
			r.Post("/{id}/reset", h.ResetBucket)
		})

		// Distribution routes
		r.Route("/distributions", func(r chi.Router) {
			r.Get("/", h.ListDistributions)
			r.Post("/", h.Distribute)
			r.Post("/{id}/revert", h.RevertDistribution)
		})

		// Transaction routes
		r.Route("/transactions", func(r chi.Router) {
			r.Get("/", h.ListTransactions)
			r.Get("/income", h.ListIncomeTransactions)
		})

		// Category routes
		r.Get("/categories", h.ListCategories)

		// Backup routes
		r.Post("/backup", h.UploadBackup)
		r.Get("/imports", h.ListImports)
	})

	return r
}
