package middleware

import (
	"context"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

type contextKey string

const (
	tenantContextKey contextKey = "tenant_context"
	claimsContextKey contextKey = "auth_claims"
)

// TenantFromContext returns the tenant the request resolved to. Present on
// every route behind the tenant resolver.
func TenantFromContext(ctx context.Context) (*service.TenantContext, bool) {
	tc, ok := ctx.Value(tenantContextKey).(*service.TenantContext)
	return tc, ok
}

// ClaimsFromContext returns the validated access token claims. Present on
// every route behind the authenticator.
func ClaimsFromContext(ctx context.Context) (*security.TokenClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey).(*security.TokenClaims)
	return claims, ok
}

func withTenant(ctx context.Context, tc *service.TenantContext) context.Context {
	return context.WithValue(ctx, tenantContextKey, tc)
}

func withClaims(ctx context.Context, claims *security.TokenClaims) context.Context {
	return context.WithValue(ctx, claimsContextKey, claims)
}
