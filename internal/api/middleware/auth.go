package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/phrazzld/postpilot/internal/api/shared"
	"github.com/phrazzld/postpilot/internal/auth"
	"github.com/phrazzld/postpilot/internal/platform/logger"
	"github.com/phrazzld/postpilot/internal/redact"
)

// AuthMiddleware guards routes with bearer tokens.
type AuthMiddleware struct {
	tokens auth.TokenService
}

// NewAuthMiddleware creates an AuthMiddleware validating with tokens.
func NewAuthMiddleware(tokens auth.TokenService) *AuthMiddleware {
	return &AuthMiddleware{tokens: tokens}
}

// Authenticate validates the Authorization header and stores the token
// subject in the request context.
func (m *AuthMiddleware) Authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		if header == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Authorization header required")
			return
		}

		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
			shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid authorization format")
			return
		}

		claims, err := m.tokens.ValidateToken(r.Context(), token)
		if err != nil {
			switch {
			case errors.Is(err, auth.ErrExpiredToken):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Token expired")
			case errors.Is(err, auth.ErrInvalidToken), errors.Is(err, auth.ErrTokenNotYetValid):
				shared.RespondWithError(w, r, http.StatusUnauthorized, "Invalid token")
			default:
				logger.FromContext(r.Context()).Error("failed to validate token", "error", redact.Error(err))
				shared.RespondWithError(w, r, http.StatusInternalServerError, "Authentication error")
			}
			return
		}

		ctx := context.WithValue(r.Context(), shared.SubjectContextKey, claims.Subject)
		ctx = logger.WithLogger(ctx, logger.FromContext(ctx).With("subject", claims.Subject))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
