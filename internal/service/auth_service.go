package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

var (
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrAccountLocked      = errors.New("account temporarily locked")
	// ErrInvalidOrExpiredToken deliberately collapses unknown, expired and
	// already-consumed tokens into one answer.
	ErrInvalidOrExpiredToken = errors.New("invalid or expired token")
)

const (
	forgotTokenTTL = 15 * time.Minute
	resetTokenTTL  = 10 * time.Minute

	verificationTokenBytes = 24
	handshakeTokenBytes    = 32
)

// ClientInfo is what the transport layer knows about the caller.
type ClientInfo struct {
	IP          string
	UserAgent   string
	Fingerprint string
}

type RegisterInput struct {
	Name     string
	Email    string
	Phone    string
	Password string
}

type LoginInput struct {
	Email    string
	Phone    string
	Password string
	Client   ClientInfo
}

// AuthResult is a successful login or refresh: the user as of issuance and
// the freshly signed token pair.
type AuthResult struct {
	User      *domain.User
	Pair      *security.TokenPair
	SessionID string
}

// AuthService implements the authentication flows against whichever tenant
// the request resolved to. It holds no tenant state; every method takes a
// TenantContext.
type AuthService struct {
	issuer   *security.TokenIssuer
	sessions *SessionService
	notifier Notifier

	pepper      string
	maxFailures int
	lockWindow  time.Duration

	now func() time.Time
}

func NewAuthService(issuer *security.TokenIssuer, sessions *SessionService, notifier Notifier, cfg *config.Config) *AuthService {
	return &AuthService{
		issuer:      issuer,
		sessions:    sessions,
		notifier:    notifier,
		pepper:      cfg.VerificationTokenPepper,
		maxFailures: cfg.LoginMaxFailures,
		lockWindow:  cfg.LoginLockWindow,
		now:         time.Now,
	}
}

// Register creates the account and queues verification tokens for whichever
// identities were supplied. Registering an identity that already exists is
// reported as success so the endpoint cannot be used to enumerate accounts.
func (a *AuthService) Register(ctx context.Context, tc *TenantContext, in RegisterInput) error {
	users := tc.users()
	if in.Email != "" {
		if _, err := users.FindByEmail(ctx, in.Email); err == nil {
			observability.RecordAuthEvent(ctx, "register", "duplicate")
			return nil
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
	}
	if in.Phone != "" {
		if _, err := users.FindByPhone(ctx, in.Phone); err == nil {
			observability.RecordAuthEvent(ctx, "register", "duplicate")
			return nil
		} else if !errors.Is(err, repository.ErrUserNotFound) {
			return err
		}
	}

	passwordHash, err := security.HashPassword(in.Password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}

	now := a.now().UTC()
	verificationExpiry := now.Add(tc.Handle.VerificationTTL)
	user := &domain.User{
		Name:     strings.TrimSpace(in.Name),
		Role:     "customer",
		Security: domain.UserSecurity{PasswordHash: passwordHash},
	}

	var notifications []Notification
	if in.Email != "" {
		email := strings.TrimSpace(strings.ToLower(in.Email))
		user.Email = &email
		raw, err := security.NewRandomString(verificationTokenBytes)
		if err != nil {
			return err
		}
		user.Verification.EmailTokenHash = security.HashToken(raw, a.pepper)
		user.Verification.EmailTokenExpiresAt = &verificationExpiry
		notifications = append(notifications, Notification{
			Purpose:   NotifyVerifyEmail,
			Channel:   ChannelEmail,
			Recipient: email,
			Token:     raw,
			ExpiresAt: verificationExpiry,
		})
	}
	if in.Phone != "" {
		phone := strings.TrimSpace(in.Phone)
		user.Phone = &phone
		raw, err := security.NewRandomString(verificationTokenBytes)
		if err != nil {
			return err
		}
		user.Verification.PhoneTokenHash = security.HashToken(raw, a.pepper)
		user.Verification.PhoneTokenExpiresAt = &verificationExpiry
		notifications = append(notifications, Notification{
			Purpose:   NotifyVerifyPhone,
			Channel:   ChannelSMS,
			Recipient: phone,
			Token:     raw,
			ExpiresAt: verificationExpiry,
		})
	}

	if err := users.Create(ctx, user); err != nil {
		// A concurrent registration of the same identity gets the same
		// indistinguishable answer as the pre-check path.
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			observability.RecordAuthEvent(ctx, "register", "duplicate")
			return nil
		}
		observability.RecordAuthEvent(ctx, "register", "error")
		return err
	}

	for _, n := range notifications {
		if err := a.notifier.Send(ctx, tc.Handle.ReferenceID, n); err != nil {
			observability.RecordAuthEvent(ctx, "register", "notify_failed")
		}
	}
	observability.RecordAuthEvent(ctx, "register", "success")
	return nil
}

// VerifyEmail consumes the emailed token. The token fields clear and the
// verified flag flips in one guarded update; replays and expired tokens get
// the same answer.
func (a *AuthService) VerifyEmail(ctx context.Context, tc *TenantContext, email, rawToken string) error {
	users := tc.users()
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "verify_email", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	err = users.ConsumeEmailVerification(ctx, user.ID, security.HashToken(rawToken, a.pepper), a.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			observability.RecordAuthEvent(ctx, "verify_email", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	observability.RecordAuthEvent(ctx, "verify_email", "success")
	return nil
}

// VerifyPhone mirrors VerifyEmail for the SMS channel.
func (a *AuthService) VerifyPhone(ctx context.Context, tc *TenantContext, phone, rawToken string) error {
	users := tc.users()
	user, err := users.FindByPhone(ctx, phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "verify_phone", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	err = users.ConsumePhoneVerification(ctx, user.ID, security.HashToken(rawToken, a.pepper), a.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			observability.RecordAuthEvent(ctx, "verify_phone", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	observability.RecordAuthEvent(ctx, "verify_phone", "success")
	return nil
}

// ResendVerification replaces any pending verification token for the
// requested channel and delivers the fresh one. Unknown and already verified
// identities get the same silent answer as Register, and the replaced token
// stops working the moment the new hash lands.
func (a *AuthService) ResendVerification(ctx context.Context, tc *TenantContext, email, phone string) error {
	users := tc.users()
	user, err := a.findByIdentity(ctx, users, email, phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "resend_verification", "unknown_identity")
			return nil
		}
		return err
	}

	expiresAt := a.now().UTC().Add(tc.Handle.VerificationTTL)
	switch {
	case email != "":
		if user.EmailVerified || user.Email == nil {
			observability.RecordAuthEvent(ctx, "resend_verification", "already_verified")
			return nil
		}
		raw, err := security.NewRandomString(verificationTokenBytes)
		if err != nil {
			return err
		}
		if err := users.SetEmailVerificationToken(ctx, user.ID, security.HashToken(raw, a.pepper), expiresAt); err != nil {
			return err
		}
		if err := a.notifier.Send(ctx, tc.Handle.ReferenceID, Notification{
			Purpose:   NotifyVerifyEmail,
			Channel:   ChannelEmail,
			Recipient: *user.Email,
			Token:     raw,
			ExpiresAt: expiresAt,
		}); err != nil {
			observability.RecordAuthEvent(ctx, "resend_verification", "notify_failed")
			return nil
		}
	case phone != "":
		if user.PhoneVerified || user.Phone == nil {
			observability.RecordAuthEvent(ctx, "resend_verification", "already_verified")
			return nil
		}
		raw, err := security.NewRandomString(verificationTokenBytes)
		if err != nil {
			return err
		}
		if err := users.SetPhoneVerificationToken(ctx, user.ID, security.HashToken(raw, a.pepper), expiresAt); err != nil {
			return err
		}
		if err := a.notifier.Send(ctx, tc.Handle.ReferenceID, Notification{
			Purpose:   NotifyVerifyPhone,
			Channel:   ChannelSMS,
			Recipient: *user.Phone,
			Token:     raw,
			ExpiresAt: expiresAt,
		}); err != nil {
			observability.RecordAuthEvent(ctx, "resend_verification", "notify_failed")
			return nil
		}
	}
	observability.RecordAuthEvent(ctx, "resend_verification", "success")
	return nil
}

// Login authenticates a password and opens a session. The token pair is
// signed before the session row exists; a crash in between leaves tokens
// that can never validate, never a session without tokens.
func (a *AuthService) Login(ctx context.Context, tc *TenantContext, in LoginInput) (*AuthResult, error) {
	users := tc.users()
	user, err := a.findByIdentity(ctx, users, in.Email, in.Phone)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "login", "unknown_identity")
			return nil, ErrInvalidCredentials
		}
		return nil, err
	}

	now := a.now().UTC()
	if user.Locked(now) {
		observability.RecordAuthEvent(ctx, "login", "locked")
		return nil, ErrAccountLocked
	}
	if !security.VerifyPassword(user.Security.PasswordHash, in.Password) {
		if err := users.RecordLoginFailure(ctx, user.ID, a.maxFailures, a.lockWindow, now); err != nil {
			return nil, err
		}
		observability.RecordAuthEvent(ctx, "login", "bad_password")
		return nil, ErrInvalidCredentials
	}
	if err := users.ClearLoginFailures(ctx, user.ID); err != nil {
		return nil, err
	}

	sessionID := uuid.NewString()
	pair, err := a.issuer.IssuePair(snapshotOf(user), sessionID, in.Client.Fingerprint, tc.Handle.Secrets, tc.Handle.Policy)
	if err != nil {
		return nil, err
	}
	session := &domain.Session{
		ID:                    sessionID,
		UserID:                user.ID,
		Provider:              "local",
		AccessTokenID:         pair.AccessTokenID,
		RefreshTokenID:        pair.RefreshTokenID,
		AccessTokenExpiresAt:  pair.AccessExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshExpiresAt,
		Fingerprint:           in.Client.Fingerprint,
		IP:                    in.Client.IP,
		UserAgent:             in.Client.UserAgent,
	}
	if err := tc.sessions().CreateWithEviction(ctx, session, tc.Handle.SessionLimit); err != nil {
		observability.RecordAuthEvent(ctx, "login", "error")
		return nil, err
	}
	observability.RecordAuthEvent(ctx, "login", "success")
	return &AuthResult{User: user, Pair: pair, SessionID: sessionID}, nil
}

// Refresh rotates a session's token pair. The compare-and-swap against the
// stored refresh identifier makes concurrent refreshes of one session yield
// exactly one winner; the loser's token is a replay and fails closed.
func (a *AuthService) Refresh(ctx context.Context, tc *TenantContext, rawRefresh string, client ClientInfo) (*AuthResult, error) {
	claims, err := a.issuer.ParseRefreshToken(rawRefresh, tc.Handle.Secrets.RefreshSecret)
	if err != nil {
		observability.RecordAuthEvent(ctx, "refresh", "rejected")
		return nil, ErrInvalidOrExpiredToken
	}

	sessions := tc.sessions()
	session, err := sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthEvent(ctx, "refresh", "rejected")
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	now := a.now().UTC()
	switch {
	case session.Revoked:
		observability.RecordAuthEvent(ctx, "refresh", "rejected")
		return nil, ErrInvalidSession
	case now.After(session.RefreshTokenExpiresAt):
		observability.RecordAuthEvent(ctx, "refresh", "expired")
		return nil, ErrSessionExpired
	case claims.Fingerprint != session.Fingerprint:
		observability.RecordAuthEvent(ctx, "refresh", "rejected")
		return nil, ErrInvalidSession
	case client.Fingerprint != "" && session.Fingerprint != "" && client.Fingerprint != session.Fingerprint:
		observability.RecordAuthEvent(ctx, "refresh", "rejected")
		return nil, ErrInvalidSession
	}

	// Fresh read so rotated tokens reflect verification or role changes made
	// since the last issuance.
	user, err := tc.users().FindByID(ctx, subjectID(claims))
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "refresh", "rejected")
			return nil, ErrInvalidSession
		}
		return nil, err
	}

	pair, err := a.issuer.IssuePair(snapshotOf(user), session.ID, session.Fingerprint, tc.Handle.Secrets, tc.Handle.Policy)
	if err != nil {
		return nil, err
	}
	rotated, err := sessions.Rotate(ctx, session.ID, claims.ID, repository.SessionRotation{
		AccessTokenID:         pair.AccessTokenID,
		RefreshTokenID:        pair.RefreshTokenID,
		AccessTokenExpiresAt:  pair.AccessExpiresAt,
		RefreshTokenExpiresAt: pair.RefreshExpiresAt,
	}, now)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrSessionMismatch):
			observability.RecordAuthEvent(ctx, "refresh", "mismatch")
			return nil, err
		case errors.Is(err, repository.ErrSessionNotFound):
			observability.RecordAuthEvent(ctx, "refresh", "rejected")
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	observability.RecordAuthEvent(ctx, "refresh", "success")
	return &AuthResult{User: user, Pair: pair, SessionID: rotated.ID}, nil
}

// Logout revokes the session both presented tokens agree on. Returns whether
// this call performed the revocation; logging out an already-dead session is
// not an error.
func (a *AuthService) Logout(ctx context.Context, tc *TenantContext, rawAccess, rawRefresh string) (bool, error) {
	access, err := a.issuer.ParseAccessToken(rawAccess, tc.Handle.Secrets.AccessSecret)
	if err != nil {
		return false, ErrInvalidOrExpiredToken
	}
	refresh, err := a.issuer.ParseRefreshToken(rawRefresh, tc.Handle.Secrets.RefreshSecret)
	if err != nil {
		return false, ErrInvalidOrExpiredToken
	}
	if access.SessionID != refresh.SessionID {
		observability.RecordAuthEvent(ctx, "logout", "rejected")
		return false, ErrInvalidSession
	}

	sessions := tc.sessions()
	session, err := sessions.FindByID(ctx, access.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			observability.RecordAuthEvent(ctx, "logout", "already_revoked")
			return false, nil
		}
		return false, err
	}
	if session.AccessTokenID != access.ID || session.RefreshTokenID != refresh.ID {
		observability.RecordAuthEvent(ctx, "logout", "rejected")
		return false, ErrInvalidSession
	}

	revoked, err := sessions.Revoke(ctx, session.ID)
	if err != nil {
		return false, err
	}
	if revoked {
		observability.RecordAuthEvent(ctx, "logout", "success")
	} else {
		observability.RecordAuthEvent(ctx, "logout", "already_revoked")
	}
	return revoked, nil
}

// ForgotPassword starts the two-step reset handshake. Unknown emails get the
// same silence as known ones.
func (a *AuthService) ForgotPassword(ctx context.Context, tc *TenantContext, email string) error {
	users := tc.users()
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "forgot_password", "unknown_identity")
			return nil
		}
		return err
	}

	raw, err := security.NewRandomString(handshakeTokenBytes)
	if err != nil {
		return err
	}
	now := a.now().UTC()
	expiresAt := now.Add(forgotTokenTTL)
	if err := users.SetForgotToken(ctx, user.ID, security.HashToken(raw, a.pepper), expiresAt); err != nil {
		return err
	}
	if err := a.notifier.Send(ctx, tc.Handle.ReferenceID, Notification{
		Purpose:   NotifyForgotPassword,
		Channel:   ChannelEmail,
		Recipient: *user.Email,
		Token:     raw,
		ExpiresAt: expiresAt,
	}); err != nil {
		observability.RecordAuthEvent(ctx, "forgot_password", "notify_failed")
		return nil
	}
	observability.RecordAuthEvent(ctx, "forgot_password", "success")
	return nil
}

// ExchangeResetToken trades a live forgot token for a short-lived reset
// token. The exchange consumes the forgot token atomically, so it works at
// most once.
func (a *AuthService) ExchangeResetToken(ctx context.Context, tc *TenantContext, email, rawForgot string) (string, error) {
	users := tc.users()
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "exchange_reset", "rejected")
			return "", ErrInvalidOrExpiredToken
		}
		return "", err
	}

	rawReset, err := security.NewRandomString(handshakeTokenBytes)
	if err != nil {
		return "", err
	}
	now := a.now().UTC()
	err = users.ConsumeForgotToken(ctx, user.ID,
		security.HashToken(rawForgot, a.pepper),
		security.HashToken(rawReset, a.pepper),
		now.Add(resetTokenTTL), now)
	if err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			observability.RecordAuthEvent(ctx, "exchange_reset", "rejected")
			return "", ErrInvalidOrExpiredToken
		}
		return "", err
	}
	observability.RecordAuthEvent(ctx, "exchange_reset", "success")
	return rawReset, nil
}

// ResetPassword finishes the handshake: the reset token is consumed, the new
// password lands, and every session the user had is revoked.
func (a *AuthService) ResetPassword(ctx context.Context, tc *TenantContext, email, rawReset, newPassword string) error {
	users := tc.users()
	user, err := users.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			observability.RecordAuthEvent(ctx, "reset_password", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}

	passwordHash, err := security.HashPassword(newPassword)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	err = users.ConsumeResetToken(ctx, user.ID, security.HashToken(rawReset, a.pepper), passwordHash, a.now().UTC())
	if err != nil {
		if errors.Is(err, repository.ErrTokenConsumed) {
			observability.RecordAuthEvent(ctx, "reset_password", "rejected")
			return ErrInvalidOrExpiredToken
		}
		return err
	}
	if _, err := tc.sessions().RevokeAllForUser(ctx, user.ID); err != nil {
		return err
	}
	observability.RecordAuthEvent(ctx, "reset_password", "success")
	return nil
}

// ValidateAccess authenticates a bearer access token against stored session
// state. Used by the request middleware; the returned claims carry the
// issuance-time user snapshot.
func (a *AuthService) ValidateAccess(ctx context.Context, tc *TenantContext, rawAccess string) (*security.TokenClaims, *domain.Session, error) {
	claims, err := a.issuer.ParseAccessToken(rawAccess, tc.Handle.Secrets.AccessSecret)
	if err != nil {
		return nil, nil, ErrInvalidOrExpiredToken
	}
	session, err := a.sessions.Validate(ctx, tc.sessions(), claims)
	if err != nil {
		return nil, nil, err
	}
	return claims, session, nil
}

// CurrentUser resolves the authenticated user's fresh record.
func (a *AuthService) CurrentUser(ctx context.Context, tc *TenantContext, claims *security.TokenClaims) (*domain.User, error) {
	return tc.users().FindByID(ctx, subjectID(claims))
}

func (a *AuthService) findByIdentity(ctx context.Context, users repository.UserRepository, email, phone string) (*domain.User, error) {
	switch {
	case email != "":
		return users.FindByEmail(ctx, email)
	case phone != "":
		return users.FindByPhone(ctx, phone)
	default:
		return nil, repository.ErrUserNotFound
	}
}

func snapshotOf(user *domain.User) security.UserSnapshot {
	snapshot := security.UserSnapshot{
		UserID:   user.ID,
		Name:     user.Name,
		Role:     user.Role,
		Verified: user.EmailVerified || user.PhoneVerified,
	}
	if user.Email != nil {
		snapshot.Email = *user.Email
	}
	if user.Phone != nil {
		snapshot.Phone = *user.Phone
	}
	return snapshot
}
