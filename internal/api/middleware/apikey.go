// Package middleware provides HTTP middleware for the StorageHub API.
package middleware

import (
	"crypto/subtle"
	"net/http"

	"github.com/marmos91/storagehub/internal/api/handlers"
)

// APIKeyHeader is the header clients present the shared secret in.
const APIKeyHeader = "X-API-Key"

// APIKeyAuth returns middleware that enforces shared-secret
// authentication on every request.
//
// The comparison is constant-time so the key cannot be recovered by
// timing probes. A missing and a wrong key produce the same response.
func APIKeyAuth(apiKey string) func(http.Handler) http.Handler {
	key := []byte(apiKey)

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			presented := []byte(r.Header.Get(APIKeyHeader))

			if len(presented) == 0 || subtle.ConstantTimeCompare(presented, key) != 1 {
				handlers.Unauthorized(w, "Missing or invalid API key")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
