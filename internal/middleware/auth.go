package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/queryguard/queryguard/internal/config"
	"github.com/queryguard/queryguard/internal/models"
)

const identityKey contextKey = "identity"

// publicPaths bypass authentication.
var publicPaths = map[string]bool{
	"/health": true,
	"/":       true,
}

// Auth resolves the caller's identity from the API key header. The tenant
// id is never read from the request body; this resolution is the only
// source of it.
func Auth(cfg *config.Config) func(http.Handler) http.Handler {
	byKey := make(map[string]models.Identity, len(cfg.Credentials))
	for _, c := range cfg.Credentials {
		byKey[c.APIKey] = models.Identity{BusinessID: c.BusinessID, UserID: c.UserID}
	}
	header := cfg.APIKeyHeader
	if header == "" {
		header = "X-API-Key"
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if !cfg.EnableAuth || publicPaths[r.URL.Path] {
				next.ServeHTTP(w, r)
				return
			}

			key := strings.TrimSpace(r.Header.Get(header))
			if key == "" {
				models.WriteError(w, http.StatusUnauthorized, "missing API key")
				return
			}

			identity, ok := lookupKey(byKey, key)
			if !ok {
				models.WriteError(w, http.StatusForbidden, "invalid API key")
				return
			}

			ctx := context.WithValue(r.Context(), identityKey, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// lookupKey compares in constant time per candidate.
func lookupKey(byKey map[string]models.Identity, key string) (models.Identity, bool) {
	for k, id := range byKey {
		if len(k) == len(key) && subtle.ConstantTimeCompare([]byte(k), []byte(key)) == 1 {
			return id, true
		}
	}
	return models.Identity{}, false
}

// IdentityFrom returns the resolved identity. The second return is false on
// unauthenticated paths.
func IdentityFrom(ctx context.Context) (models.Identity, bool) {
	id, ok := ctx.Value(identityKey).(models.Identity)
	return id, ok
}
