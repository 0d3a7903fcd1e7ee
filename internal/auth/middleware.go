package auth

import (
	"context"
	"net/http"
	"strings"
)

type accountIDKey struct{}

// AccountIDFromContext returns the authenticated caller's account id, if
// any. This is the service's getCurrentUserId equivalent; handlers never
// read ambient session state.
func AccountIDFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(accountIDKey{})
	id, ok := v.(string)
	return id, ok && id != ""
}

// Authenticate validates the bearer token and stores the account id in the
// request context. onError writes the failure response.
func Authenticate(v *JWTValidator, onError func(http.ResponseWriter, *http.Request, int, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if v == nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			authz := r.Header.Get("Authorization")
			if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			tok := strings.TrimSpace(authz[len("Bearer "):])
			claims, err := v.Validate(tok)
			if err != nil {
				onError(w, r, http.StatusUnauthorized, "unauthorized")
				return
			}

			ctx := context.WithValue(r.Context(), accountIDKey{}, claims.AccountID)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
