package chi

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/kailas-cloud/docqa/internal/domain"
)

// exemptPaths are routes that bypass authentication (health, metrics).
var exemptPaths = map[string]struct{}{
	"/health":  {},
	"/metrics": {},
}

// BearerAuthMiddleware returns a middleware that validates Bearer tokens.
// If apiKeys is empty, authentication is disabled (pass-through).
func BearerAuthMiddleware(apiKeys []string) func(http.Handler) http.Handler {
	validKeys := make([][]byte, 0, len(apiKeys))
	for _, k := range apiKeys {
		if k != "" {
			validKeys = append(validKeys, []byte(k))
		}
	}

	return func(next http.Handler) http.Handler {
		// Auth disabled, pass everything through
		if len(validKeys) == 0 {
			return next
		}

		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := exemptPaths[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}

			token, ok := bearerToken(r.Header.Get("Authorization"))
			if !ok || !matchesAny(validKeys, token) {
				w.Header().Set("WWW-Authenticate", "Bearer")
				writeError(w, http.StatusUnauthorized, CodeUnauthorized, domain.ErrUnauthorized.Error())
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func bearerToken(header string) ([]byte, bool) {
	const bearerPrefix = "bearer "
	if len(header) <= len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return nil, false
	}
	return []byte(strings.TrimSpace(header[len(bearerPrefix):])), true
}

// matchesAny compares against every key so timing does not reveal which one matched.
func matchesAny(keys [][]byte, token []byte) bool {
	found := 0
	for _, k := range keys {
		found |= subtle.ConstantTimeCompare(k, token)
	}
	return found == 1
}
