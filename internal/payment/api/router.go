/**
 * @description
 * This file sets up the HTTP router for the payment service. It defines the
 * API endpoints, associates them with their corresponding handlers, and
 * applies the internal-key and identity middleware chain for the endpoints
 * that mutate or expose account-scoped data.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// PaymentRoutes creates and returns a new router for the payment service.
func PaymentRoutes(h *PaymentHandlers, internalAPIKey string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint, reachable without credentials.
	r.Get("/health", h.HealthHandler)

	r.Route("/transactions", func(r chi.Router) {
		r.Use(InternalAPIKeyMiddleware(internalAPIKey))

		// Read endpoints for operators and the gateway.
		r.Get("/", h.ListTransactionsHandler)
		r.Get("/{id}", h.GetTransactionHandler)

		// Endpoints bound to a gateway-verified identity.
		r.Group(func(r chi.Router) {
			r.Use(IdentityHeaderMiddleware)
			r.Post("/payment", h.PaymentHandler)
			r.Post("/topup", h.TopUpHandler)
			r.Get("/history", h.HistoryHandler)
		})
	})

	return r
}
