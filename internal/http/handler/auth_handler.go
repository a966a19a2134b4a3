package handler

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/middleware"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/response"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

const minPasswordLength = 8

type AuthHandler struct {
	auth    *service.AuthService
	cookies *security.CookieManager
}

func NewAuthHandler(auth *service.AuthService, cookies *security.CookieManager) *AuthHandler {
	return &AuthHandler{auth: auth, cookies: cookies}
}

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Password string `json:"password"`
}

// Register answers the same way whether or not the identity already exists.
func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req registerRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if req.Email == "" && req.Phone == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email or phone is required", nil)
		return
	}
	if len(req.Password) < minPasswordLength {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "password must be at least 8 characters", nil)
		return
	}

	err := h.auth.Register(r.Context(), tc, service.RegisterInput{
		Name:     req.Name,
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
	})
	if err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "registration failed", nil)
		return
	}
	response.JSON(w, r, http.StatusAccepted, map[string]any{
		"message": "verification instructions sent if the account was created",
	})
}

type resendVerificationRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
}

// ResendVerification answers identically for known, unknown and already
// verified identities.
func (h *AuthHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req resendVerificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || (req.Email == "" && req.Phone == "") {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email or phone is required", nil)
		return
	}
	if err := h.auth.ResendVerification(r.Context(), tc, req.Email, req.Phone); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	response.JSON(w, r, http.StatusAccepted, map[string]any{
		"message": "verification instructions sent if the account needs them",
	})
}

type loginRequest struct {
	Email       string `json:"email"`
	Phone       string `json:"phone"`
	Password    string `json:"password"`
	Fingerprint string `json:"fingerprint"`
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "invalid request body", nil)
		return
	}
	if (req.Email == "" && req.Phone == "") || req.Password == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "identity and password are required", nil)
		return
	}

	client := clientInfo(r)
	if req.Fingerprint != "" {
		client.Fingerprint = req.Fingerprint
	}
	result, err := h.auth.Login(r.Context(), tc, service.LoginInput{
		Email:    req.Email,
		Phone:    req.Phone,
		Password: req.Password,
		Client:   client,
	})
	if err != nil {
		writeAuthError(w, r, err)
		return
	}

	observability.EmitAudit(r, observability.AuditInput{
		EventName:   "auth.login",
		ActorUserID: observability.ActorUserID(result.User.ID),
		TenantRef:   tc.Handle.ReferenceID,
		TargetType:  "session",
		TargetID:    result.SessionID,
		Action:      "create",
		Outcome:     "success",
		Reason:      "password_login",
	})
	h.writeAuthResult(w, r, result)
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
	Fingerprint  string `json:"fingerprint"`
}

func (h *AuthHandler) Refresh(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req refreshRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	raw := req.RefreshToken
	if raw == "" {
		raw = security.GetCookie(r, security.RefreshTokenCookie)
	}
	if raw == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "refresh token is required", nil)
		return
	}

	client := clientInfo(r)
	if req.Fingerprint != "" {
		client.Fingerprint = req.Fingerprint
	}
	result, err := h.auth.Refresh(r.Context(), tc, raw, client)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	h.writeAuthResult(w, r, result)
}

type logoutRequest struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
}

// Logout clears the token cookies no matter how revocation goes; a client
// that asked to log out never keeps its cookies.
func (h *AuthHandler) Logout(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req logoutRequest
	if r.Body != nil {
		_ = json.NewDecoder(r.Body).Decode(&req)
	}
	rawAccess := req.AccessToken
	if rawAccess == "" {
		rawAccess = middleware.BearerOrCookieAccessToken(r)
	}
	rawRefresh := req.RefreshToken
	if rawRefresh == "" {
		rawRefresh = security.GetCookie(r, security.RefreshTokenCookie)
	}

	h.cookies.ClearTokenCookies(w)
	if rawAccess == "" || rawRefresh == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "access and refresh tokens are required", nil)
		return
	}

	revoked, err := h.auth.Logout(r.Context(), tc, rawAccess, rawRefresh)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"revoked": revoked})
}

type verifyRequest struct {
	Email string `json:"email"`
	Phone string `json:"phone"`
	Token string `json:"token"`
}

func (h *AuthHandler) VerifyEmail(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.Token == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and token are required", nil)
		return
	}
	if err := h.auth.VerifyEmail(r.Context(), tc, req.Email, req.Token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"verified": true})
}

func (h *AuthHandler) VerifyPhone(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Phone == "" || req.Token == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "phone and token are required", nil)
		return
	}
	if err := h.auth.VerifyPhone(r.Context(), tc, req.Phone, req.Token); err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"verified": true})
}

type forgotPasswordRequest struct {
	Email string `json:"email"`
}

func (h *AuthHandler) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req forgotPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email is required", nil)
		return
	}
	if err := h.auth.ForgotPassword(r.Context(), tc, req.Email); err != nil {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
		return
	}
	response.JSON(w, r, http.StatusAccepted, map[string]any{
		"message": "reset instructions sent if the account exists",
	})
}

type exchangeResetRequest struct {
	Email       string `json:"email"`
	ForgotToken string `json:"forgot_token"`
}

func (h *AuthHandler) ExchangeResetToken(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req exchangeResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.ForgotToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and forgot_token are required", nil)
		return
	}
	resetToken, err := h.auth.ExchangeResetToken(r.Context(), tc, req.Email, req.ForgotToken)
	if err != nil {
		writeAuthError(w, r, err)
		return
	}
	response.JSON(w, r, http.StatusOK, map[string]any{"reset_token": resetToken})
}

type resetPasswordRequest struct {
	Email       string `json:"email"`
	ResetToken  string `json:"reset_token"`
	NewPassword string `json:"new_password"`
}

func (h *AuthHandler) ResetPassword(w http.ResponseWriter, r *http.Request) {
	tc, ok := middleware.TenantFromContext(r.Context())
	if !ok {
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant context missing", nil)
		return
	}
	var req resetPasswordRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Email == "" || req.ResetToken == "" {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "email and reset_token are required", nil)
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		response.Error(w, r, http.StatusBadRequest, "BAD_REQUEST", "password must be at least 8 characters", nil)
		return
	}
	if err := h.auth.ResetPassword(r.Context(), tc, req.Email, req.ResetToken, req.NewPassword); err != nil {
		writeAuthError(w, r, err)
		return
	}
	observability.EmitAudit(r, observability.AuditInput{
		EventName:  "auth.password_reset",
		TenantRef:  tc.Handle.ReferenceID,
		TargetType: "user",
		TargetID:   req.Email,
		Action:     "reset_password",
		Outcome:    "success",
		Reason:     "reset_token_consumed",
	})
	response.JSON(w, r, http.StatusOK, map[string]any{"reset": true})
}

func (h *AuthHandler) writeAuthResult(w http.ResponseWriter, r *http.Request, result *service.AuthResult) {
	now := time.Now().UTC()
	h.cookies.SetTokenCookies(w,
		result.Pair.AccessToken, result.Pair.RefreshToken,
		result.Pair.AccessExpiresAt.Sub(now), result.Pair.RefreshExpiresAt.Sub(now))
	response.JSON(w, r, http.StatusOK, map[string]any{
		"user":                     result.User,
		"session_id":               result.SessionID,
		"access_token":             result.Pair.AccessToken,
		"refresh_token":            result.Pair.RefreshToken,
		"access_token_expires_at":  result.Pair.AccessExpiresAt,
		"refresh_token_expires_at": result.Pair.RefreshExpiresAt,
	})
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, service.ErrInvalidCredentials):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid credentials", nil)
	case errors.Is(err, service.ErrAccountLocked):
		response.Error(w, r, http.StatusForbidden, "ACCOUNT_LOCKED", "account temporarily locked", nil)
	case errors.Is(err, service.ErrInvalidOrExpiredToken):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_OR_EXPIRED_TOKEN", "invalid or expired token", nil)
	case errors.Is(err, repository.ErrSessionMismatch):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_MISMATCH", "token superseded by a newer rotation", nil)
	case errors.Is(err, service.ErrSessionExpired):
		response.Error(w, r, http.StatusUnauthorized, "SESSION_EXPIRED", "session expired", nil)
	case errors.Is(err, service.ErrInvalidSession):
		response.Error(w, r, http.StatusUnauthorized, "INVALID_SESSION", "session invalid", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "request failed", nil)
	}
}

func clientInfo(r *http.Request) service.ClientInfo {
	ip := r.RemoteAddr
	if host, _, err := net.SplitHostPort(ip); err == nil && host != "" {
		ip = host
	}
	return service.ClientInfo{
		IP:          ip,
		UserAgent:   r.UserAgent(),
		Fingerprint: strings.TrimSpace(r.Header.Get("X-Device-Fingerprint")),
	}
}
