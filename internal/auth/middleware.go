package auth

import (
	"context"
	"net/http"
	"strings"

	"studio-intake/internal/audit"
	"studio-intake/internal/ratelimit"
)

type contextKey struct{}

type Identity struct {
	Username string
	Roles    string
}

func IdentityFromContext(ctx context.Context) (Identity, bool) {
	identity, ok := ctx.Value(contextKey{}).(Identity)
	return identity, ok
}

// ActorFromRequest is the audit-actor hook for handlers outside this package.
func ActorFromRequest(r *http.Request) string {
	identity, _ := IdentityFromContext(r.Context())
	return identity.Username
}

// Middleware guards protected routes with an ACCESS token. Every rejection
// is uniform to the client and recorded as a security event.
func Middleware(tokens *TokenManager, auditor *audit.Recorder, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := strings.TrimSpace(r.Header.Get("Authorization"))
		if header == "" {
			writeError(w, http.StatusUnauthorized, "missing authorization token")
			return
		}

		parts := strings.SplitN(header, " ", 2)
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			writeError(w, http.StatusUnauthorized, "invalid authorization format")
			return
		}

		tokenStr := strings.TrimSpace(parts[1])
		claims, err := tokens.ValidateAccess(tokenStr)
		if err != nil {
			auditor.LogSecurityEvent(audit.ActionInvalidTokenAttempt, r.Method+" "+r.URL.Path,
				ratelimit.ClientIP(r), r.UserAgent())
			writeError(w, http.StatusUnauthorized, "invalid or expired token")
			return
		}

		ctx := context.WithValue(r.Context(), contextKey{}, Identity{
			Username: claims.Subject,
			Roles:    claims.Roles,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
