/**
 * @description
 * This file sets up the HTTP router for the API gateway using the go-chi/chi
 * router. It registers the gateway's own auth and health endpoints, applies
 * middleware for logging, CORS, and authentication, and mounts the reverse
 * proxies for the downstream services behind the token check.
 */
package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/paystream/wallet-platform/internal/gateway/app"
)

// GatewayRoutes creates a new Chi router and registers the gateway routes.
func GatewayRoutes(h *GatewayHandlers, service *app.Service, ledgerProxy, paymentProxy *ServiceProxy) *chi.Mux {
	r := chi.NewRouter()

	// Setup middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"https://*", "http://*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "Idempotency-Key"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300, // Maximum value not ignored by any major browsers
	}))

	// Health check endpoint
	r.Get("/health", h.HealthHandler)

	// Auth endpoints
	r.Post("/auth/login", h.LoginHandler)
	r.Post("/auth/register", h.RegisterHandler)

	// Proxied routes that require a verified token
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(service))

		r.Handle("/api/ledger/*", ledgerProxy)
		r.Handle("/api/payments/*", paymentProxy)
	})

	return r
}
