/**
 * @description
 * This file contains the authentication middleware for the API gateway. It
 * validates the bearer token on every proxied request and rewrites the
 * identity headers: whatever X-User-Id or X-User-Role the client sent is
 * discarded, and the values from the verified token claims are stamped in
 * their place. Downstream services therefore only ever see an identity the
 * gateway vouches for.
 *
 * @dependencies
 * - context, net/http, strings: Standard Go libraries.
 * - internal/gateway/app: For token verification.
 */

package api

import (
	"context"
	"net/http"
	"strings"

	"github.com/paystream/wallet-platform/internal/gateway/app"
)

type contextKey string

const (
	userIDContextKey contextKey = "gatewayUserID"
	roleContextKey   contextKey = "gatewayUserRole"
)

// AuthMiddleware validates the Authorization bearer token and replaces the
// identity headers with values from the verified claims.
func AuthMiddleware(service *app.Service) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}
			tokenString := strings.TrimPrefix(authHeader, "Bearer ")
			if tokenString == authHeader {
				http.Error(w, "Invalid Authorization header format", http.StatusUnauthorized)
				return
			}

			claims, err := service.VerifyToken(tokenString)
			if err != nil {
				http.Error(w, "Invalid token", http.StatusUnauthorized)
				return
			}
			sub, _ := claims["sub"].(string)
			if sub == "" {
				http.Error(w, "User ID not found in token", http.StatusUnauthorized)
				return
			}
			role, _ := claims["role"].(string)

			// Client-supplied identity headers are never forwarded.
			r.Header.Del("X-User-Id")
			r.Header.Del("X-User-Role")
			r.Header.Set("X-User-Id", sub)
			if role != "" {
				r.Header.Set("X-User-Role", role)
			}

			ctx := context.WithValue(r.Context(), userIDContextKey, sub)
			ctx = context.WithValue(ctx, roleContextKey, role)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetUserID retrieves the verified user ID from the request context.
func GetUserID(ctx context.Context) (string, bool) {
	userID, ok := ctx.Value(userIDContextKey).(string)
	return userID, ok
}
