package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"civreg/pkg/domain"
)

// Identity is the authenticated caller as asserted by the gateway in front
// of this service. Tokens are validated upstream; this layer only trusts
// the forwarded headers.
type Identity struct {
	UserID domain.UserID
	Scopes []string
}

type contextKeyIdentity struct{}

// GetIdentity retrieves the caller identity from the context.
func GetIdentity(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(contextKeyIdentity{}).(Identity)
	return id, ok
}

// RequireIdentity parses X-User-Id and X-Scopes and rejects requests
// without a valid user id.
func RequireIdentity(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			userID, err := domain.ParseUserID(r.Header.Get("X-User-Id"))
			if err != nil {
				logger.WarnContext(r.Context(), "unauthorized access - missing or invalid user id",
					"request_id", GetRequestID(r.Context()),
				)
				w.Header().Set("Content-Type", "application/json")
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}

			identity := Identity{UserID: userID, Scopes: strings.Fields(r.Header.Get("X-Scopes"))}
			ctx := context.WithValue(r.Context(), contextKeyIdentity{}, identity)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
