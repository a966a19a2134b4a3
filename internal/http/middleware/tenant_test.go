package middleware

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/directory"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

type stubTenantRepository struct {
	tenants map[string]*domain.Tenant
	byHost  map[string]*domain.Tenant
}

func (s *stubTenantRepository) FindByReferenceID(_ context.Context, ref string) (*domain.Tenant, error) {
	if t, ok := s.tenants[ref]; ok {
		return t, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (s *stubTenantRepository) FindByHostname(_ context.Context, host string) (*domain.Tenant, error) {
	if t, ok := s.byHost[host]; ok {
		return t, nil
	}
	return nil, repository.ErrTenantNotFound
}

func (s *stubTenantRepository) Create(context.Context, *domain.Tenant) error {
	return errors.New("not implemented")
}

func newResolverForTest(t *testing.T, dbName string) (*TenantResolver, *stubTenantRepository) {
	t.Helper()
	key := func() string {
		raw := make([]byte, 32)
		if _, err := rand.Read(raw); err != nil {
			t.Fatalf("generate key: %v", err)
		}
		return base64.StdEncoding.EncodeToString(raw)
	}
	cipher := security.NewSecretCipher(key(), key(), key())

	seal := func(purpose security.SecretPurpose, value string) string {
		blob, err := cipher.Encrypt([]byte(value), purpose)
		if err != nil {
			t.Fatalf("encrypt: %v", err)
		}
		return blob
	}
	tenant := &domain.Tenant{
		ID:                       1,
		ReferenceID:              "shop1",
		Name:                     "Shop One",
		ConnectionCipher:         seal(security.PurposeConnection, "file:"+dbName+"?mode=memory&cache=shared"),
		DBNamePrefix:             "shop_",
		AccessTokenSecretCipher:  seal(security.PurposeAccessTokenSecret, "access-signing-secret-0123456789"),
		RefreshTokenSecretCipher: seal(security.PurposeRefreshTokenSecret, "refresh-signing-secret-012345678"),
		AccessTokenTTLMinutes:    15,
		RefreshTokenTTLMinutes:   10080,
		VerificationTTLMinutes:   30,
	}
	disabled := &domain.Tenant{
		ID:                       2,
		ReferenceID:              "closed",
		Disabled:                 true,
		ConnectionCipher:         tenant.ConnectionCipher,
		AccessTokenSecretCipher:  tenant.AccessTokenSecretCipher,
		RefreshTokenSecretCipher: tenant.RefreshTokenSecretCipher,
	}
	repo := &stubTenantRepository{
		tenants: map[string]*domain.Tenant{"shop1": tenant, "closed": disabled},
		byHost:  map[string]*domain.Tenant{"shop1.example.com": tenant},
	}

	pool := database.NewConnectionPool(func(connectionString string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(connectionString), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
	})
	return NewTenantResolver(directory.New(repo, cipher, 5), pool), repo
}

func tenantEchoHandler(t *testing.T) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tc, ok := TenantFromContext(r.Context())
		if !ok {
			t.Fatal("tenant context missing downstream of resolver")
		}
		if tc.DB == nil {
			t.Fatal("tenant context has no database handle")
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(tc.Handle.ReferenceID))
	})
}

func errorCode(t *testing.T, body []byte) string {
	t.Helper()
	var envelope struct {
		Error struct {
			Code string `json:"code"`
		} `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		t.Fatalf("decode error envelope: %v", err)
	}
	return envelope.Error.Code
}

func TestTenantResolverByHeader(t *testing.T) {
	resolver, _ := newResolverForTest(t, "mw_tenant_header")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(VendorIdentifierHeader, "shop1")
	rr := httptest.NewRecorder()
	resolver.Middleware()(tenantEchoHandler(t)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if rr.Body.String() != "shop1" {
		t.Fatalf("resolved wrong tenant: %s", rr.Body.String())
	}
}

func TestTenantResolverByHostname(t *testing.T) {
	resolver, _ := newResolverForTest(t, "mw_tenant_host")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = "shop1.example.com:8443"
	rr := httptest.NewRecorder()
	resolver.Middleware()(tenantEchoHandler(t)).ServeHTTP(rr, req)

	if rr.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
}

func TestTenantResolverUnknownTenant(t *testing.T) {
	resolver, _ := newResolverForTest(t, "mw_tenant_unknown")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(VendorIdentifierHeader, "nope")
	rr := httptest.NewRecorder()
	resolver.Middleware()(tenantEchoHandler(t)).ServeHTTP(rr, req)

	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "TENANT_NOT_FOUND" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestTenantResolverDisabledTenant(t *testing.T) {
	resolver, _ := newResolverForTest(t, "mw_tenant_disabled")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set(VendorIdentifierHeader, "closed")
	rr := httptest.NewRecorder()
	resolver.Middleware()(tenantEchoHandler(t)).ServeHTTP(rr, req)

	if rr.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "TENANT_DISABLED" {
		t.Fatalf("unexpected error code %q", code)
	}
}

func TestTenantResolverMissingIdentifier(t *testing.T) {
	resolver, _ := newResolverForTest(t, "mw_tenant_missing")
	req := httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Host = ""
	rr := httptest.NewRecorder()
	resolver.Middleware()(tenantEchoHandler(t)).ServeHTTP(rr, req)

	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rr.Code)
	}
	if code := errorCode(t, rr.Body.Bytes()); code != "MISSING_TENANT_IDENTIFIER" {
		t.Fatalf("unexpected error code %q", code)
	}
}
