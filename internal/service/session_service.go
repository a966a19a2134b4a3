package service

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

var (
	// ErrInvalidSession covers every session-level validation failure that
	// must not reveal its cause: unknown session, revoked session, subject or
	// fingerprint mismatch.
	ErrInvalidSession = errors.New("session invalid")
	// ErrSessionExpired is raised from the stored expiries. Server-side state
	// wins over whatever the token itself claims.
	ErrSessionExpired = errors.New("session expired")
)

// SessionService enforces the validation contract on stored sessions. Token
// signature and expiry checks happen before this layer; this layer decides
// whether the session behind a structurally valid token is still live.
type SessionService struct {
	now func() time.Time
}

func NewSessionService() *SessionService {
	return &SessionService{now: time.Now}
}

// Validate loads the session named by the claims and checks it against the
// presented access token. The stored access token identifier must equal the
// token's jti, so a rotation immediately invalidates earlier access tokens
// even when their own expiry has not passed.
func (s *SessionService) Validate(ctx context.Context, sessions repository.SessionRepository, claims *security.TokenClaims) (*domain.Session, error) {
	session, err := sessions.FindByID(ctx, claims.SessionID)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return nil, ErrInvalidSession
		}
		return nil, err
	}
	if session.Revoked {
		return nil, ErrInvalidSession
	}

	now := s.now().UTC()
	if now.After(session.AccessTokenExpiresAt) || now.After(session.RefreshTokenExpiresAt) {
		return nil, ErrSessionExpired
	}
	if session.AccessTokenID != claims.ID {
		return nil, repository.ErrSessionMismatch
	}
	if subjectID(claims) != session.UserID {
		return nil, ErrInvalidSession
	}
	if claims.Fingerprint != "" && session.Fingerprint != "" && claims.Fingerprint != session.Fingerprint {
		return nil, ErrInvalidSession
	}
	return session, nil
}

// RevokeOwned revokes one of the user's own sessions. Someone else's session
// is reported as not found, never as forbidden.
func (s *SessionService) RevokeOwned(ctx context.Context, sessions repository.SessionRepository, userID uint, sessionID string) (bool, error) {
	session, err := sessions.FindByID(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if session.UserID != userID {
		return false, repository.ErrSessionNotFound
	}
	return sessions.Revoke(ctx, sessionID)
}

// ListForUser returns the user's sessions oldest first.
func (s *SessionService) ListForUser(ctx context.Context, sessions repository.SessionRepository, userID uint) ([]domain.Session, error) {
	return sessions.ListByUserID(ctx, userID)
}

func subjectID(claims *security.TokenClaims) uint {
	id, err := strconv.ParseUint(claims.Subject, 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}
