package middleware

import (
	"context"
	"net/http"
	"strings"

	"promptforge/internal/auth"
	"promptforge/internal/config"
	"promptforge/internal/utils"
)

// ContextKey defines the type for context keys to avoid conflicts
type ContextKey string

// Context keys for storing authentication data
const (
	ClaimsKey  ContextKey = "sessionClaims"
	SubjectKey ContextKey = "sessionSubject"
)

// JWTMiddleware validates session tokens and enforces role-based access
func JWTMiddleware(cfg *config.Config, requiredRole auth.Role) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tokenString := r.Header.Get("Authorization")
			if tokenString == "" {
				utils.RespondWithError(w, http.StatusUnauthorized, "Missing authentication token")
				return
			}
			tokenString = strings.TrimSpace(strings.TrimPrefix(tokenString, "Bearer "))

			claims, err := auth.ValidateJWT(tokenString, cfg)
			if err != nil {
				utils.RespondWithError(w, http.StatusUnauthorized, "Invalid or expired token")
				return
			}

			if requiredRole != "" && !claims.HasRole(requiredRole) {
				utils.RespondWithError(w, http.StatusForbidden, "Insufficient permissions")
				return
			}

			ctx := context.WithValue(r.Context(), ClaimsKey, claims)
			ctx = context.WithValue(ctx, SubjectKey, claims.Subject)

			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetClaims retrieves the session claims from the request context
func GetClaims(ctx context.Context) (*auth.SessionClaims, bool) {
	claims, ok := ctx.Value(ClaimsKey).(*auth.SessionClaims)
	return claims, ok
}

// GetSubject retrieves the token subject from the request context
func GetSubject(ctx context.Context) (string, bool) {
	sub, ok := ctx.Value(SubjectKey).(string)
	return sub, ok
}
