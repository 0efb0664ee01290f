package auth

import (
	"context"
	"final-draft/contract"
	"final-draft/domain"
	"net/http"
	"strings"
)

type contextKey string

const identityKey contextKey = "identity"

// SessionQueryParam is how browsers pass the credential on a WebSocket upgrade.
const SessionQueryParam = "session_key"

// Credential extracts the credential from the Authorization header
// ("Bearer <token>") or, failing that, from the session_key query parameter.
func Credential(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		if token, ok := strings.CutPrefix(header, "Bearer "); ok {
			return strings.TrimSpace(token)
		}
	}
	return r.URL.Query().Get(SessionQueryParam)
}

// Middleware resolves the caller and rejects anonymous requests with 401.
// Public paths go through untouched.
func Middleware(resolver contract.IdentityResolver, publicPaths ...string) func(http.Handler) http.Handler {
	public := make(map[string]struct{}, len(publicPaths))
	for _, p := range publicPaths {
		public[p] = struct{}{}
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, ok := public[r.URL.Path]; ok {
				next.ServeHTTP(w, r)
				return
			}
			identity := resolver.Resolve(r.Context(), Credential(r))
			if identity.IsAnonymous() {
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"authentication required"}`))
				return
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), identity)))
		})
	}
}

func WithIdentity(ctx context.Context, identity domain.Identity) context.Context {
	return context.WithValue(ctx, identityKey, identity)
}

// IdentityFrom returns domain.Anonymous when the context carries no identity.
func IdentityFrom(ctx context.Context) domain.Identity {
	if identity, ok := ctx.Value(identityKey).(domain.Identity); ok {
		return identity
	}
	return domain.Anonymous
}
