/**
 * @description
 * This file contains custom middleware for the payment service's HTTP router.
 * The payment service runs behind the gateway, so identity arrives as the
 * X-User-Id header stamped by the gateway rather than a client-controlled
 * credential. The internal API key middleware enforces that only trusted
 * callers can reach the mutating endpoints.
 *
 * @dependencies
 * - context, crypto/subtle, net/http, strings: Standard Go libraries.
 * - github.com/google/uuid: For validating identity header values.
 */

package api

import (
	"context"
	"crypto/subtle"
	"log"
	"net/http"
	"strings"

	"github.com/google/uuid"
)

// UserIDContextKey is a custom type for the context key to avoid collisions.
type UserIDContextKey string

const authedUserIDKey UserIDContextKey = "authedUserID"

// InternalAPIKeyMiddleware rejects requests that do not carry the shared
// internal key. An empty configured key disables the check, which is only
// acceptable in local development.
func InternalAPIKeyMiddleware(apiKey string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}
			provided := strings.TrimSpace(r.Header.Get("X-Internal-Api-Key"))
			if subtle.ConstantTimeCompare([]byte(provided), []byte(apiKey)) != 1 {
				log.Printf("level=warn component=api outcome=reject reason=invalid_internal_key path=%s", r.URL.Path)
				http.Error(w, "Forbidden", http.StatusForbidden)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// IdentityHeaderMiddleware reads the gateway-stamped X-User-Id header and puts
// the parsed identity on the request context. Requests without a valid header
// are rejected: the payment service never trusts identity from request bodies.
func IdentityHeaderMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := strings.TrimSpace(r.Header.Get("X-User-Id"))
		if raw == "" {
			http.Error(w, "Missing identity header", http.StatusUnauthorized)
			return
		}
		userID, err := uuid.Parse(raw)
		if err != nil {
			http.Error(w, "Invalid identity header", http.StatusUnauthorized)
			return
		}
		ctx := context.WithValue(r.Context(), authedUserIDKey, userID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// GetAuthedUserID retrieves the authenticated user ID from the request context.
// Handlers should use this function to get the caller's identity.
func GetAuthedUserID(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(authedUserIDKey).(uuid.UUID)
	return userID, ok
}
