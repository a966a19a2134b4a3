package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/directory"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

type captureNotifier struct {
	mu   sync.Mutex
	sent []Notification
}

func (c *captureNotifier) Send(_ context.Context, _ string, n Notification) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sent = append(c.sent, n)
	return nil
}

func (c *captureNotifier) last(purpose string) (Notification, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i := len(c.sent) - 1; i >= 0; i-- {
		if c.sent[i].Purpose == purpose {
			return c.sent[i], true
		}
	}
	return Notification{}, false
}

func (c *captureNotifier) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.sent)
}

type authFixture struct {
	tc       *TenantContext
	auth     *AuthService
	sessions *SessionService
	notifier *captureNotifier
}

func newAuthFixture(t *testing.T, dbName string, sessionLimit int) *authFixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+dbName+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if err := database.MigrateTenant(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	cfg := &config.Config{
		VerificationTokenPepper: "test-pepper-0123456789abcdef",
		LoginMaxFailures:        3,
		LoginLockWindow:         15 * time.Minute,
	}
	notifier := &captureNotifier{}
	sessionSvc := NewSessionService()
	auth := NewAuthService(security.NewTokenIssuer("commerce-kit-test"), sessionSvc, notifier, cfg)

	handle := &directory.TenantHandle{
		ReferenceID:      "shop1",
		Name:             "Shop One",
		DatabaseKey:      "shop_shop1",
		ConnectionString: "file:" + dbName,
		Secrets: security.TokenSecrets{
			AccessSecret:  []byte("access-signing-secret-0123456789"),
			RefreshSecret: []byte("refresh-signing-secret-012345678"),
		},
		Policy:          security.ExpiryPolicy{AccessTokenMinutes: 15, RefreshTokenMinutes: 10080},
		VerificationTTL: 30 * time.Minute,
		SessionLimit:    sessionLimit,
	}
	return &authFixture{
		tc:       &TenantContext{Handle: handle, DB: db},
		auth:     auth,
		sessions: sessionSvc,
		notifier: notifier,
	}
}

func (f *authFixture) register(t *testing.T, email, password string) {
	t.Helper()
	err := f.auth.Register(context.Background(), f.tc, RegisterInput{
		Name:     "Pat Tester",
		Email:    email,
		Password: password,
	})
	if err != nil {
		t.Fatalf("register %s: %v", email, err)
	}
}

func (f *authFixture) login(t *testing.T, email, password string) *AuthResult {
	t.Helper()
	result, err := f.auth.Login(context.Background(), f.tc, LoginInput{
		Email:    email,
		Password: password,
		Client:   ClientInfo{IP: "203.0.113.7", UserAgent: "go-test", Fingerprint: "fp-1"},
	})
	if err != nil {
		t.Fatalf("login %s: %v", email, err)
	}
	return result
}

func TestRegisterAndVerifyEmail(t *testing.T) {
	f := newAuthFixture(t, "svc_register", 5)
	ctx := context.Background()

	f.register(t, "pat@example.com", "correct horse battery")

	n, ok := f.notifier.last(NotifyVerifyEmail)
	if !ok {
		t.Fatal("expected a verification notification")
	}
	if n.Recipient != "pat@example.com" || n.Token == "" {
		t.Fatalf("unexpected notification %+v", n)
	}

	t.Run("wrong token rejected", func(t *testing.T) {
		err := f.auth.VerifyEmail(ctx, f.tc, "pat@example.com", "not-the-token")
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})

	t.Run("correct token verifies", func(t *testing.T) {
		if err := f.auth.VerifyEmail(ctx, f.tc, "pat@example.com", n.Token); err != nil {
			t.Fatalf("verify: %v", err)
		}
		user, err := repository.NewUserRepository(f.tc.DB).FindByEmail(ctx, "pat@example.com")
		if err != nil {
			t.Fatalf("reload user: %v", err)
		}
		if !user.EmailVerified {
			t.Fatal("email not marked verified")
		}
		if user.Verification.EmailTokenHash != "" {
			t.Fatal("token hash must be cleared after consumption")
		}
	})

	t.Run("replay rejected", func(t *testing.T) {
		err := f.auth.VerifyEmail(ctx, f.tc, "pat@example.com", n.Token)
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected replay rejection, got %v", err)
		}
	})
}

func TestRegisterDuplicateIsSilent(t *testing.T) {
	f := newAuthFixture(t, "svc_register_dup", 5)
	f.register(t, "dup@example.com", "first password")
	before := f.notifier.count()

	f.register(t, "dup@example.com", "second password")

	if f.notifier.count() != before {
		t.Fatal("duplicate registration must not send a notification")
	}
	// The original account and password are untouched.
	f.login(t, "dup@example.com", "first password")
}

func TestResendVerificationReplacesToken(t *testing.T) {
	f := newAuthFixture(t, "svc_resend", 5)
	ctx := context.Background()
	f.register(t, "resend@example.com", "resend-password")
	first, ok := f.notifier.last(NotifyVerifyEmail)
	if !ok {
		t.Fatal("no verification token delivered at registration")
	}

	if err := f.auth.ResendVerification(ctx, f.tc, "resend@example.com", ""); err != nil {
		t.Fatalf("resend: %v", err)
	}
	second, ok := f.notifier.last(NotifyVerifyEmail)
	if !ok || second.Token == first.Token {
		t.Fatal("expected a fresh verification token")
	}

	t.Run("replaced token stops working", func(t *testing.T) {
		err := f.auth.VerifyEmail(ctx, f.tc, "resend@example.com", first.Token)
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})

	t.Run("fresh token verifies", func(t *testing.T) {
		if err := f.auth.VerifyEmail(ctx, f.tc, "resend@example.com", second.Token); err != nil {
			t.Fatalf("verify with fresh token: %v", err)
		}
	})

	t.Run("verified account is silent", func(t *testing.T) {
		before := f.notifier.count()
		if err := f.auth.ResendVerification(ctx, f.tc, "resend@example.com", ""); err != nil {
			t.Fatalf("resend after verification: %v", err)
		}
		if f.notifier.count() != before {
			t.Fatal("verified account must not receive another token")
		}
	})

	t.Run("unknown identity is silent", func(t *testing.T) {
		before := f.notifier.count()
		if err := f.auth.ResendVerification(ctx, f.tc, "ghost@example.com", ""); err != nil {
			t.Fatalf("resend for unknown identity: %v", err)
		}
		if f.notifier.count() != before {
			t.Fatal("unknown identity must not produce a notification")
		}
	})
}

func TestLoginIssuesPersistedSession(t *testing.T) {
	f := newAuthFixture(t, "svc_login", 5)
	ctx := context.Background()
	f.register(t, "login@example.com", "sw0rdfish")

	result := f.login(t, "login@example.com", "sw0rdfish")
	if result.Pair.AccessToken == "" || result.Pair.RefreshToken == "" {
		t.Fatal("expected a signed token pair")
	}

	session, err := repository.NewSessionRepository(f.tc.DB).FindByID(ctx, result.SessionID)
	if err != nil {
		t.Fatalf("load session: %v", err)
	}
	if session.AccessTokenID != result.Pair.AccessTokenID || session.RefreshTokenID != result.Pair.RefreshTokenID {
		t.Fatal("stored identifiers must match the issued pair")
	}
	if session.Fingerprint != "fp-1" || session.IP != "203.0.113.7" {
		t.Fatalf("client info not recorded: %+v", session)
	}

	claims, validated, err := f.auth.ValidateAccess(ctx, f.tc, result.Pair.AccessToken)
	if err != nil {
		t.Fatalf("validate access: %v", err)
	}
	if validated.ID != result.SessionID || claims.SessionID != result.SessionID {
		t.Fatal("validation resolved the wrong session")
	}
}

func TestLoginFailuresLockAccount(t *testing.T) {
	f := newAuthFixture(t, "svc_lockout", 5)
	ctx := context.Background()
	f.register(t, "lock@example.com", "right-password")

	for i := 0; i < 2; i++ {
		_, err := f.auth.Login(ctx, f.tc, LoginInput{Email: "lock@example.com", Password: "wrong"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("attempt %d: expected ErrInvalidCredentials, got %v", i, err)
		}
	}
	// Third failure hits LoginMaxFailures.
	if _, err := f.auth.Login(ctx, f.tc, LoginInput{Email: "lock@example.com", Password: "wrong"}); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}

	_, err := f.auth.Login(ctx, f.tc, LoginInput{Email: "lock@example.com", Password: "right-password"})
	if !errors.Is(err, ErrAccountLocked) {
		t.Fatalf("expected ErrAccountLocked, got %v", err)
	}
}

func TestLoginUnknownIdentity(t *testing.T) {
	f := newAuthFixture(t, "svc_unknown", 5)
	_, err := f.auth.Login(context.Background(), f.tc, LoginInput{Email: "ghost@example.com", Password: "whatever"})
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
}

func TestSessionLimitEvictsOldest(t *testing.T) {
	f := newAuthFixture(t, "svc_evict", 2)
	ctx := context.Background()
	f.register(t, "evict@example.com", "pass-word-1")

	first := f.login(t, "evict@example.com", "pass-word-1")
	second := f.login(t, "evict@example.com", "pass-word-1")
	third := f.login(t, "evict@example.com", "pass-word-1")

	sessions := repository.NewSessionRepository(f.tc.DB)
	if _, err := sessions.FindByID(ctx, first.SessionID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("oldest session must be evicted, got %v", err)
	}
	for _, id := range []string{second.SessionID, third.SessionID} {
		if _, err := sessions.FindByID(ctx, id); err != nil {
			t.Fatalf("session %s should survive: %v", id, err)
		}
	}
}

func TestRefreshRotatesAndInvalidatesOldTokens(t *testing.T) {
	f := newAuthFixture(t, "svc_rotate", 5)
	ctx := context.Background()
	f.register(t, "rotate@example.com", "rotate-pass")
	first := f.login(t, "rotate@example.com", "rotate-pass")

	rotated, err := f.auth.Refresh(ctx, f.tc, first.Pair.RefreshToken, ClientInfo{Fingerprint: "fp-1"})
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if rotated.SessionID != first.SessionID {
		t.Fatal("rotation must keep the session identity")
	}
	if rotated.Pair.RefreshTokenID == first.Pair.RefreshTokenID || rotated.Pair.AccessTokenID == first.Pair.AccessTokenID {
		t.Fatal("rotation must mint fresh token identifiers")
	}

	t.Run("old refresh token is a replay", func(t *testing.T) {
		_, err := f.auth.Refresh(ctx, f.tc, first.Pair.RefreshToken, ClientInfo{Fingerprint: "fp-1"})
		if !errors.Is(err, repository.ErrSessionMismatch) {
			t.Fatalf("expected ErrSessionMismatch, got %v", err)
		}
	})

	t.Run("old access token no longer validates", func(t *testing.T) {
		_, _, err := f.auth.ValidateAccess(ctx, f.tc, first.Pair.AccessToken)
		if !errors.Is(err, repository.ErrSessionMismatch) {
			t.Fatalf("expected ErrSessionMismatch, got %v", err)
		}
	})

	t.Run("new pair validates", func(t *testing.T) {
		if _, _, err := f.auth.ValidateAccess(ctx, f.tc, rotated.Pair.AccessToken); err != nil {
			t.Fatalf("validate rotated access: %v", err)
		}
	})
}

func TestConcurrentRefreshHasOneWinner(t *testing.T) {
	f := newAuthFixture(t, "svc_refresh_race", 5)
	ctx := context.Background()
	f.register(t, "race@example.com", "race-pass")
	login := f.login(t, "race@example.com", "race-pass")

	var wg sync.WaitGroup
	results := make([]error, 2)
	start := make(chan struct{})
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			<-start
			_, results[idx] = f.auth.Refresh(ctx, f.tc, login.Pair.RefreshToken, ClientInfo{Fingerprint: "fp-1"})
		}(i)
	}
	close(start)
	wg.Wait()

	var wins, mismatches int
	for _, err := range results {
		switch {
		case err == nil:
			wins++
		case errors.Is(err, repository.ErrSessionMismatch):
			mismatches++
		default:
			t.Fatalf("unexpected refresh error: %v", err)
		}
	}
	if wins != 1 || mismatches != 1 {
		t.Fatalf("expected exactly one winner and one mismatch, got wins=%d mismatches=%d", wins, mismatches)
	}
}

func TestValidateAccessHonorsServerSideExpiry(t *testing.T) {
	f := newAuthFixture(t, "svc_expiry", 5)
	ctx := context.Background()
	f.register(t, "expiry@example.com", "expiry-pass")
	login := f.login(t, "expiry@example.com", "expiry-pass")

	// The stored expiry decides, regardless of the token's own exp claim.
	f.sessions.now = func() time.Time { return time.Now().Add(16 * time.Minute) }
	_, _, err := f.auth.ValidateAccess(ctx, f.tc, login.Pair.AccessToken)
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestRefreshAfterRefreshWindowExpires(t *testing.T) {
	f := newAuthFixture(t, "svc_refresh_expiry", 5)
	ctx := context.Background()
	f.register(t, "stale@example.com", "stale-pass")
	login := f.login(t, "stale@example.com", "stale-pass")

	f.auth.now = func() time.Time { return time.Now().Add(8 * 24 * time.Hour) }
	_, err := f.auth.Refresh(ctx, f.tc, login.Pair.RefreshToken, ClientInfo{Fingerprint: "fp-1"})
	if !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	f := newAuthFixture(t, "svc_logout", 5)
	ctx := context.Background()
	f.register(t, "logout@example.com", "logout-pass")
	login := f.login(t, "logout@example.com", "logout-pass")

	revoked, err := f.auth.Logout(ctx, f.tc, login.Pair.AccessToken, login.Pair.RefreshToken)
	if err != nil || !revoked {
		t.Fatalf("first logout: revoked=%v err=%v", revoked, err)
	}

	revoked, err = f.auth.Logout(ctx, f.tc, login.Pair.AccessToken, login.Pair.RefreshToken)
	if err != nil {
		t.Fatalf("second logout: %v", err)
	}
	if revoked {
		t.Fatal("second logout must report nothing to revoke")
	}

	if _, _, err := f.auth.ValidateAccess(ctx, f.tc, login.Pair.AccessToken); !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession after logout, got %v", err)
	}
}

func TestLogoutRejectsMixedPairs(t *testing.T) {
	f := newAuthFixture(t, "svc_logout_mixed", 5)
	ctx := context.Background()
	f.register(t, "mixed@example.com", "mixed-pass")
	first := f.login(t, "mixed@example.com", "mixed-pass")
	second := f.login(t, "mixed@example.com", "mixed-pass")

	_, err := f.auth.Logout(ctx, f.tc, first.Pair.AccessToken, second.Pair.RefreshToken)
	if !errors.Is(err, ErrInvalidSession) {
		t.Fatalf("expected ErrInvalidSession for tokens from different sessions, got %v", err)
	}

	sessions := repository.NewSessionRepository(f.tc.DB)
	if _, err := sessions.FindByID(ctx, first.SessionID); err != nil {
		t.Fatalf("rejected logout must not touch the session: %v", err)
	}
}

func TestPasswordResetHandshake(t *testing.T) {
	f := newAuthFixture(t, "svc_reset", 5)
	ctx := context.Background()
	f.register(t, "reset@example.com", "old-password")
	login := f.login(t, "reset@example.com", "old-password")

	t.Run("unknown email is silent", func(t *testing.T) {
		before := f.notifier.count()
		if err := f.auth.ForgotPassword(ctx, f.tc, "ghost@example.com"); err != nil {
			t.Fatalf("forgot unknown: %v", err)
		}
		if f.notifier.count() != before {
			t.Fatal("unknown email must not trigger a notification")
		}
	})

	if err := f.auth.ForgotPassword(ctx, f.tc, "reset@example.com"); err != nil {
		t.Fatalf("forgot: %v", err)
	}
	forgot, ok := f.notifier.last(NotifyForgotPassword)
	if !ok {
		t.Fatal("expected a forgot-password notification")
	}

	rawReset, err := f.auth.ExchangeResetToken(ctx, f.tc, "reset@example.com", forgot.Token)
	if err != nil {
		t.Fatalf("exchange: %v", err)
	}

	t.Run("forgot token is single use", func(t *testing.T) {
		_, err := f.auth.ExchangeResetToken(ctx, f.tc, "reset@example.com", forgot.Token)
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})

	if err := f.auth.ResetPassword(ctx, f.tc, "reset@example.com", rawReset, "new-password"); err != nil {
		t.Fatalf("reset: %v", err)
	}

	t.Run("reset token is single use", func(t *testing.T) {
		err := f.auth.ResetPassword(ctx, f.tc, "reset@example.com", rawReset, "another-password")
		if !errors.Is(err, ErrInvalidOrExpiredToken) {
			t.Fatalf("expected ErrInvalidOrExpiredToken, got %v", err)
		}
	})

	t.Run("old sessions revoked", func(t *testing.T) {
		_, _, err := f.auth.ValidateAccess(ctx, f.tc, login.Pair.AccessToken)
		if !errors.Is(err, ErrInvalidSession) {
			t.Fatalf("expected ErrInvalidSession after password reset, got %v", err)
		}
	})

	t.Run("old password rejected, new accepted", func(t *testing.T) {
		_, err := f.auth.Login(ctx, f.tc, LoginInput{Email: "reset@example.com", Password: "old-password"})
		if !errors.Is(err, ErrInvalidCredentials) {
			t.Fatalf("expected ErrInvalidCredentials, got %v", err)
		}
		f.login(t, "reset@example.com", "new-password")
	})
}
