package middleware

import (
	"net/http"

	"wedding-site-backend/internal/logger"
	authservice "wedding-site-backend/internal/service/auth"

	"go.uber.org/zap"
)

// RequireIdentity verifies the bearer token and hands the identity to the
// next handler through the request context.
func RequireIdentity(auth *authservice.Service) Middleware {
	return func(next http.HandlerFunc) http.HandlerFunc {
		return func(w http.ResponseWriter, r *http.Request) {
			identity, err := auth.IdentityFromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				logger.DebugCtx(r.Context(), "Rejected request without valid identity",
					zap.String("path", r.URL.Path),
					zap.Error(err))
				writeError(w, http.StatusUnauthorized, "Unauthorized")
				return
			}
			next(w, r.WithContext(authservice.ContextWithIdentity(r.Context(), identity)))
		}
	}
}
