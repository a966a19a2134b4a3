package security

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrTokenExpired = errors.New("token expired")
	ErrTokenInvalid = errors.New("token invalid")
)

// TokenClaims is the signed payload of both token classes. The registered ID
// (jti) is the rotating token identifier; SessionID ties the access and
// refresh halves of a pair together.
type TokenClaims struct {
	SessionID   string `json:"sid"`
	TokenType   string `json:"token_type"`
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	Phone       string `json:"phone,omitempty"`
	Role        string `json:"role,omitempty"`
	Verified    bool   `json:"verified"`
	Fingerprint string `json:"fp,omitempty"`
	jwt.RegisteredClaims
}

// UserSnapshot is the claims snapshot embedded at issuance time. It reflects
// the user as of login/refresh, not a live read.
type UserSnapshot struct {
	UserID   uint
	Name     string
	Email    string
	Phone    string
	Role     string
	Verified bool
}

// TokenSecrets are a tenant's decrypted signing secrets, resolved per request
// by the tenant directory and never persisted.
type TokenSecrets struct {
	AccessSecret  []byte
	RefreshSecret []byte
}

// ExpiryPolicy is the tenant's minute-granularity expiry configuration.
// Expiries are converted to absolute timestamps at issuance and never
// recomputed from a token's own iat.
type ExpiryPolicy struct {
	AccessTokenMinutes  int
	RefreshTokenMinutes int
}

// TokenPair is an access/refresh pair sharing one session ID with
// independent freshly generated token identifiers.
type TokenPair struct {
	AccessToken      string
	RefreshToken     string
	AccessTokenID    string
	RefreshTokenID   string
	AccessExpiresAt  time.Time
	RefreshExpiresAt time.Time
}

// TokenIssuer signs and verifies tokens with per-tenant secrets supplied at
// call time. The issuer holds no tenant state.
type TokenIssuer struct {
	issuer string
	now    func() time.Time
}

func NewTokenIssuer(issuer string) *TokenIssuer {
	return &TokenIssuer{issuer: issuer, now: time.Now}
}

func (ti *TokenIssuer) IssuePair(snapshot UserSnapshot, sessionID, fingerprint string, secrets TokenSecrets, policy ExpiryPolicy) (*TokenPair, error) {
	now := ti.now().UTC()
	pair := &TokenPair{
		AccessTokenID:    uuid.NewString(),
		RefreshTokenID:   uuid.NewString(),
		AccessExpiresAt:  now.Add(time.Duration(policy.AccessTokenMinutes) * time.Minute),
		RefreshExpiresAt: now.Add(time.Duration(policy.RefreshTokenMinutes) * time.Minute),
	}

	access, err := ti.sign(snapshot, sessionID, fingerprint, "access", pair.AccessTokenID, now, pair.AccessExpiresAt, secrets.AccessSecret)
	if err != nil {
		return nil, fmt.Errorf("sign access token: %w", err)
	}
	refresh, err := ti.sign(snapshot, sessionID, fingerprint, "refresh", pair.RefreshTokenID, now, pair.RefreshExpiresAt, secrets.RefreshSecret)
	if err != nil {
		return nil, fmt.Errorf("sign refresh token: %w", err)
	}
	pair.AccessToken = access
	pair.RefreshToken = refresh
	return pair, nil
}

func (ti *TokenIssuer) sign(snapshot UserSnapshot, sessionID, fingerprint, tokenType, tokenID string, issuedAt, expiresAt time.Time, secret []byte) (string, error) {
	claims := &TokenClaims{
		SessionID:   sessionID,
		TokenType:   tokenType,
		Name:        snapshot.Name,
		Email:       snapshot.Email,
		Phone:       snapshot.Phone,
		Role:        snapshot.Role,
		Verified:    snapshot.Verified,
		Fingerprint: fingerprint,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        tokenID,
			Subject:   fmt.Sprintf("%d", snapshot.UserID),
			Issuer:    ti.issuer,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// ParseAccessToken verifies signature, expiry and token class.
func (ti *TokenIssuer) ParseAccessToken(raw string, secret []byte) (*TokenClaims, error) {
	return ti.parse(raw, "access", secret)
}

// ParseRefreshToken verifies signature, expiry and token class.
func (ti *TokenIssuer) ParseRefreshToken(raw string, secret []byte) (*TokenClaims, error) {
	return ti.parse(raw, "refresh", secret)
}

func (ti *TokenIssuer) parse(raw, wantType string, secret []byte) (*TokenClaims, error) {
	claims := &TokenClaims{}
	token, err := jwt.ParseWithClaims(raw, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return secret, nil
	}, jwt.WithIssuer(ti.issuer), jwt.WithTimeFunc(ti.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.TokenType != wantType || claims.SessionID == "" || claims.ID == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
