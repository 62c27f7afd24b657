/*
server.go - HTTP server setup and routing

PURPOSE:
  Assembles the chi router: middleware, CORS, and the route table
  binding URL patterns to handlers.

MIDDLEWARE STACK:
  - RequestID: correlates log lines per request
  - Logger:    request logging
  - Recoverer: converts panics into 500s
  - CORS:      permissive defaults for browser clients

SEE ALSO:
  - handlers.go: The handlers bound here
*/
package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// NewRouter builds the HTTP router with all routes registered.
func NewRouter(h *Handler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	r.Route("/api", func(r chi.Router) {
		r.Route("/wallet/{userID}", func(r chi.Router) {
			r.Get("/", h.GetWallet)
			r.Get("/transactions", h.GetTransactions)
			r.Post("/validate", h.ValidateWallet)
		})

		r.Route("/projects", func(r chi.Router) {
			r.Post("/", h.CreateProject)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetProject)
				r.Get("/members", h.ListMembers)
				r.Get("/invitations", h.ListInvitations)
				r.Post("/invitations", h.CreateInvitation)
			})
		})

		r.Route("/invitations", func(r chi.Router) {
			r.Post("/accept/{token}", h.AcceptInvitation)
			r.Get("/{id}", h.GetInvitation)
			r.Post("/{id}/decline", h.DeclineInvitation)
			r.Post("/{id}/cancel", h.CancelInvitation)
		})

		r.Post("/webhooks/purchase", h.PurchaseWebhook)
		r.Post("/admin/grants", h.AdminGrant)
	})

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	return r
}
