/**
 * @description
 * This file sets up the HTTP router for the ledger service.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// AccountRoutes creates and returns the router for the ledger service. All
// /accounts routes sit behind the internal key check; /health stays open for
// orchestrator probes.
func AccountRoutes(h *AccountHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Get("/health", h.HealthHandler)

	r.Route("/accounts", func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		r.Get("/", h.ListAccountsHandler)
		r.Post("/", h.CreateAccountHandler)
		r.Get("/{id}", h.GetAccountHandler)
		r.Put("/{id}", h.UpdateAccountHandler)
		r.Delete("/{id}", h.DeleteAccountHandler)
		r.Get("/{id}/balance", h.GetBalanceHandler)
		r.Put("/{id}/balance", h.SetBalanceHandler)
	})

	return r
}
