package middleware

import (
	"device-loan-api/pkg/logger"
	"net/http"
	"strings"
)

// TokenVerifier validates an admin bearer token and returns the admin username
type TokenVerifier interface {
	Verify(token string) (string, error)
}

// AdminAuth rejects requests without a valid admin bearer token and stores
// the admin username on the request logger.
func AdminAuth(verifier TokenVerifier, logg *logger.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw := strings.TrimSpace(r.Header.Get("Authorization"))
			if len(raw) < 7 || !strings.EqualFold(raw[:7], "bearer ") {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED")
				return
			}
			token := strings.TrimSpace(raw[7:])
			if token == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin"`)
				writeError(w, http.StatusUnauthorized, "missing bearer token", "UNAUTHORIZED")
				return
			}

			username, err := verifier.Verify(token)
			if err != nil {
				if logg != nil {
					logg.Warn(logg.WithField(r.Context(), "error", err.Error()), "admin.token_rejected")
				}
				w.Header().Set("WWW-Authenticate", `Bearer realm="admin", error="invalid_token"`)
				writeError(w, http.StatusUnauthorized, "invalid or expired token", "UNAUTHORIZED")
				return
			}

			ctx := r.Context()
			if logg != nil {
				ctx = logg.WithAdmin(ctx, username)
			}

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
