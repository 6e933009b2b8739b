/**
 * @description
 * Middleware for the ledger service's HTTP router. The ledger is an internal
 * system of record: mutating endpoints are only reachable by siblings that
 * present the shared internal key.
 *
 * @dependencies
 * - crypto/subtle, net/http, strings: Standard Go libraries.
 */

package api

import (
	"crypto/subtle"
	"log"
	"net/http"
	"strings"
)

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
