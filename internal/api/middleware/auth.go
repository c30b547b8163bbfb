package middleware

import (
	"context"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/columbushq/columbus/internal/api/response"
	"github.com/columbushq/columbus/internal/store"
	"github.com/columbushq/columbus/pkg/models"
)

// Keys look like "clb_" followed by hex. The first eight characters are
// stored in clear text alongside the bcrypt hash so lookup does not need
// to compare against every key in the table.
const keyPrefixLen = 8

// Auth provides authentication and scope-checking middleware backed by
// the api_keys table.
type Auth struct {
	store store.Store
}

func NewAuth(s store.Store) *Auth {
	return &Auth{store: s}
}

// Authenticate validates the Bearer token against stored key hashes and
// annotates the request context with the owning organization, the key
// prefix, and the key's scopes.
func (a *Auth) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := bearerToken(r)
		if len(raw) < keyPrefixLen {
			unauthorized(w)
			return
		}

		prefix := raw[:keyPrefixLen]
		candidates, err := a.store.GetAPIKeyByPrefix(r.Context(), prefix)
		if err != nil {
			response.Error(w, http.StatusInternalServerError,
				"INTERNAL_ERROR", "Failed to validate API key", nil)
			return
		}

		key := matchKey(candidates, raw)
		if key == nil {
			unauthorized(w)
			return
		}

		ctx := SetOrganizationID(r.Context(), key.OrganizationID)
		ctx = setKeyPrefix(ctx, prefix)
		ctx = setScopes(ctx, key.Scopes)

		// last_used_at is advisory, do not block the request on it.
		go a.store.UpdateAPIKeyLastUsed(context.Background(), key.ID)

		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// RequireScope returns middleware that rejects requests whose API key
// does not carry the named scope.
func (a *Auth) RequireScope(scope string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			for _, s := range getScopes(r) {
				if s == scope {
					next.ServeHTTP(w, r)
					return
				}
			}
			response.Error(w, http.StatusForbidden,
				"FORBIDDEN", "Insufficient permissions", nil)
		})
	}
}

// matchKey finds the candidate whose bcrypt hash matches the presented
// key. Prefix collisions keep this a loop rather than a single compare.
func matchKey(candidates []*models.APIKey, raw string) *models.APIKey {
	for _, k := range candidates {
		if bcrypt.CompareHashAndPassword([]byte(k.KeyHash), []byte(raw)) == nil {
			return k
		}
	}
	return nil
}

func unauthorized(w http.ResponseWriter) {
	response.Error(w, http.StatusUnauthorized,
		"INVALID_TOKEN", "Missing or invalid API key", nil)
}

func bearerToken(r *http.Request) string {
	scheme, token, found := strings.Cut(r.Header.Get("Authorization"), " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}
