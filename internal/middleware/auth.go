package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/xelth-com/eckchat/internal/utils"
)

type contextKey string

// IdentityContextKey holds the phone identity proven by the bearer token.
const IdentityContextKey contextKey = "identity"

// Auth verifies bearer tokens signed with secret. An empty secret lets
// every request through unauthenticated.
func Auth(secret string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if secret == "" {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				http.Error(w, "Authorization header required", http.StatusUnauthorized)
				return
			}

			// Bearer token
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || parts[0] != "Bearer" {
				http.Error(w, "Invalid authorization header format", http.StatusUnauthorized)
				return
			}

			phone, err := utils.ValidatePhoneToken(parts[1], secret)
			if err != nil {
				http.Error(w, "Invalid or expired token", http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), IdentityContextKey, phone)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// IdentityFrom returns the authenticated identity, or "" when the request
// was not authenticated.
func IdentityFrom(ctx context.Context) string {
	phone, _ := ctx.Value(IdentityContextKey).(string)
	return phone
}
