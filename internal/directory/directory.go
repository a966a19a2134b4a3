// Package directory resolves inbound requests to exactly one tenant and is
// the single source of decrypted tenant secrets.
package directory

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

var (
	ErrMissingTenantIdentifier = errors.New("tenant identifier required")
	ErrTenantDisabled          = errors.New("tenant disabled")
)

// TenantHandle is a request-scoped, read-only projection of one tenant with
// its secrets decrypted. It must never be logged, cached past the request,
// or re-serialized.
type TenantHandle struct {
	ReferenceID string
	Name        string

	// DatabaseKey identifies the tenant's database in the connection pool.
	DatabaseKey      string
	ConnectionString string

	Secrets security.TokenSecrets
	Policy  security.ExpiryPolicy

	VerificationTTL time.Duration
	SessionLimit    int
}

// Directory resolves a tenant by reference ID or bound hostname, decrypting
// its connection string and signing secrets exactly once per request.
type Directory struct {
	tenants             repository.TenantRepository
	cipher              *security.SecretCipher
	defaultSessionLimit int
}

func New(tenants repository.TenantRepository, cipher *security.SecretCipher, defaultSessionLimit int) *Directory {
	return &Directory{tenants: tenants, cipher: cipher, defaultSessionLimit: defaultSessionLimit}
}

// Resolve requires at least one identifier. An explicit reference ID wins
// over the request hostname when both are present.
func (d *Directory) Resolve(ctx context.Context, referenceID, hostname string) (*TenantHandle, error) {
	var (
		tenant *domain.Tenant
		method string
		err    error
	)
	switch {
	case referenceID != "":
		method = "reference"
		tenant, err = d.tenants.FindByReferenceID(ctx, referenceID)
	case hostname != "":
		method = "hostname"
		tenant, err = d.tenants.FindByHostname(ctx, hostname)
	default:
		return nil, ErrMissingTenantIdentifier
	}
	if err != nil {
		if errors.Is(err, repository.ErrTenantNotFound) {
			observability.RecordTenantResolution(ctx, method, "not_found")
		} else {
			observability.RecordTenantResolution(ctx, method, "error")
		}
		return nil, err
	}
	if tenant.Disabled {
		observability.RecordTenantResolution(ctx, method, "disabled")
		return nil, ErrTenantDisabled
	}

	connection, err := d.cipher.Decrypt(tenant.ConnectionCipher, security.PurposeConnection)
	if err != nil {
		observability.RecordTenantResolution(ctx, method, "decrypt_failed")
		return nil, fmt.Errorf("decrypt connection string: %w", err)
	}
	accessSecret, err := d.cipher.Decrypt(tenant.AccessTokenSecretCipher, security.PurposeAccessTokenSecret)
	if err != nil {
		observability.RecordTenantResolution(ctx, method, "decrypt_failed")
		return nil, fmt.Errorf("decrypt access token secret: %w", err)
	}
	refreshSecret, err := d.cipher.Decrypt(tenant.RefreshTokenSecretCipher, security.PurposeRefreshTokenSecret)
	if err != nil {
		observability.RecordTenantResolution(ctx, method, "decrypt_failed")
		return nil, fmt.Errorf("decrypt refresh token secret: %w", err)
	}

	sessionLimit := tenant.SessionLimit
	if sessionLimit <= 0 {
		sessionLimit = d.defaultSessionLimit
	}

	observability.RecordTenantResolution(ctx, method, "success")
	return &TenantHandle{
		ReferenceID:      tenant.ReferenceID,
		Name:             tenant.Name,
		DatabaseKey:      tenant.DBNamePrefix + tenant.ReferenceID,
		ConnectionString: string(connection),
		Secrets: security.TokenSecrets{
			AccessSecret:  accessSecret,
			RefreshSecret: refreshSecret,
		},
		Policy: security.ExpiryPolicy{
			AccessTokenMinutes:  tenant.AccessTokenTTLMinutes,
			RefreshTokenMinutes: tenant.RefreshTokenTTLMinutes,
		},
		VerificationTTL: time.Duration(tenant.VerificationTTLMinutes) * time.Minute,
		SessionLimit:    sessionLimit,
	}, nil
}
