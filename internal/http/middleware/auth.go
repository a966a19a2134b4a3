package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/response"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

// Authenticator guards routes with a validated access token. Must run behind
// the tenant resolver: token verification needs the tenant's signing secret.
type Authenticator struct {
	auth *service.AuthService
}

func NewAuthenticator(auth *service.AuthService) *Authenticator {
	return &Authenticator{auth: auth}
}

func (a *Authenticator) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			tc, ok := TenantFromContext(r.Context())
			if !ok {
				response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
				return
			}
			raw := BearerOrCookieAccessToken(r)
			if raw == "" {
				response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
				return
			}

			claims, _, err := a.auth.ValidateAccess(r.Context(), tc, raw)
			if err != nil {
				writeValidationError(w, r, err)
				return
			}
			next.ServeHTTP(w, r.WithContext(withClaims(r.Context(), claims)))
		})
	}
}

func writeValidationError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", nil)
	case errors.Is(err, repository.ErrSessionMismatch):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_MISMATCH", "token superseded by a newer rotation", nil)
	case errors.Is(err, service.ErrSessionExpired):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired", nil)
	case errors.Is(err, service.ErrInvalidSession):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "session invalid", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "authentication failed", nil)
	}
}

// BearerOrCookieAccessToken prefers the Authorization header and falls back
// to the access token cookie.
func BearerOrCookieAccessToken(r *http.Request) string {
	auth := strings.TrimSpace(r.Header.Get("Authorization"))
	if len(auth) > len("bearer ") && strings.EqualFold(auth[:len("bearer ")], "bearer ") {
		return strings.TrimSpace(auth[len("bearer "):])
	}
	return security.GetCookie(r, security.AccessTokenCookie)
}
