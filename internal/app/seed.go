package app

import (
	"context"
	"flag"
	"fmt"
	"strings"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
)

// RunSeedTenant registers one tenant in the control plane, sealing its
// connection string and signing secrets under the purpose-scoped master
// keys. Operator tooling; plaintext secrets cross the process boundary only
// as flags here.
func RunSeedTenant(args []string) error {
	fs := flag.NewFlagSet("seed-tenant", flag.ContinueOnError)
	ref := fs.String("ref", "", "tenant reference id")
	name := fs.String("name", "", "tenant display name")
	hostnames := fs.String("hostnames", "", "comma separated hostnames to bind")
	dsn := fs.String("dsn", "", "tenant database connection string")
	dbPrefix := fs.String("db-prefix", "shop_", "tenant database key prefix")
	accessSecret := fs.String("access-secret", "", "access token signing secret")
	refreshSecret := fs.String("refresh-secret", "", "refresh token signing secret")
	accessTTL := fs.Int("access-ttl-min", 15, "access token TTL in minutes")
	refreshTTL := fs.Int("refresh-ttl-min", 10080, "refresh token TTL in minutes")
	verifyTTL := fs.Int("verify-ttl-min", 30, "verification token TTL in minutes")
	sessionLimit := fs.Int("session-limit", 0, "max sessions per user, 0 means platform default")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ref == "" || *dsn == "" || *accessSecret == "" || *refreshSecret == "" {
		return fmt.Errorf("ref, dsn, access-secret and refresh-secret are required")
	}

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	cipher := security.NewSecretCipher(cfg.ConnectionSecretKey, cfg.AccessTokenSecretKey, cfg.RefreshTokenSecretKey)

	connCipher, err := cipher.Encrypt([]byte(*dsn), security.PurposeConnection)
	if err != nil {
		return fmt.Errorf("seal connection string: %w", err)
	}
	accessCipher, err := cipher.Encrypt([]byte(*accessSecret), security.PurposeAccessTokenSecret)
	if err != nil {
		return fmt.Errorf("seal access secret: %w", err)
	}
	refreshCipher, err := cipher.Encrypt([]byte(*refreshSecret), security.PurposeRefreshTokenSecret)
	if err != nil {
		return fmt.Errorf("seal refresh secret: %w", err)
	}

	tenant := &domain.Tenant{
		ReferenceID:              *ref,
		Name:                     *name,
		ConnectionCipher:         connCipher,
		DBNamePrefix:             *dbPrefix,
		AccessTokenSecretCipher:  accessCipher,
		RefreshTokenSecretCipher: refreshCipher,
		AccessTokenTTLMinutes:    *accessTTL,
		RefreshTokenTTLMinutes:   *refreshTTL,
		VerificationTTLMinutes:   *verifyTTL,
		SessionLimit:             *sessionLimit,
	}
	for _, h := range strings.Split(*hostnames, ",") {
		h = strings.ToLower(strings.TrimSpace(h))
		if h != "" {
			tenant.Hostnames = append(tenant.Hostnames, domain.TenantHostname{Hostname: h})
		}
	}

	db, err := database.OpenControlPlane(cfg)
	if err != nil {
		return fmt.Errorf("open control plane: %w", err)
	}
	if err := database.MigrateControlPlane(db); err != nil {
		return fmt.Errorf("migrate control plane: %w", err)
	}
	return repository.NewTenantRepository(db).Create(context.Background(), tenant)
}
