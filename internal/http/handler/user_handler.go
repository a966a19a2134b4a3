package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/middleware"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/response"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

type UserHandler struct {
	auth     *service.AuthService
	sessions *service.SessionService
}

func NewUserHandler(auth *service.AuthService, sessions *service.SessionService) *UserHandler {
	return &UserHandler{auth: auth, sessions: sessions}
}

// Me returns the fresh user record, not the issuance-time token snapshot.
func (h *UserHandler) Me(w http.ResponseWriter, r *http.Request) {
	tc, claims, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	user, err := h.auth.CurrentUser(r.Context(), tc, claims)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "user not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to load user", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, user)
}

func (h *UserHandler) Sessions(w http.ResponseWriter, r *http.Request) {
	tc, claims, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return
	}
	sessions, err := h.sessions.ListForUser(r.Context(), repository.NewSessionRepository(tc.DB), uint(userID))
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to list sessions", nil)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{
		"current_session_id": claims.SessionID,
		"sessions":           sessions,
	})
}

func (h *UserHandler) RevokeSession(w http.ResponseWriter, r *http.Request) {
	tc, claims, ok := requestIdentity(w, r)
	if !ok {
		return
	}
	userID, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "invalid subject", nil)
		return
	}
	sessionID := chi.URLParam(r, "session_id")
	if sessionID == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "session id is required", nil)
		return
	}

	revoked, err := h.sessions.RevokeOwned(r.Context(), repository.NewSessionRepository(tc.DB), uint(userID), sessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			response.Error(w, r, http.StatusNotFound, "NOT_FOUND", "session not found", nil)
			return
		}
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "failed to revoke session", nil)
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "session.revoke.single",
		ActorUserID: claims.Subject,
		TenantRef:   tc.Handle.ReferenceID,
		TargetType:  "session",
		TargetID:    sessionID,
		Action:      "revoke",
		Outcome:     "success",
	}, "revoked", revoked)
	response.JSON(w, r, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"revoked":    revoked,
	})
}

func requestIdentity(w http.ResponseWriter, r *http.Request) (*service.TenantContext, *security.TokenClaims, bool) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return nil, nil, false
	}
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return nil, nil, false
	}
	return tc, claims, true
}
