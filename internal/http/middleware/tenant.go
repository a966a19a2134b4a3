package middleware

import (
	"errors"
	"net"
	"net/http"
	"strings"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/directory"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/http/response"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/security"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/service"
)

// VendorIdentifierHeader carries an explicit tenant reference. It wins over
// the request hostname when both could resolve.
const VendorIdentifierHeader = "X-Vendor-Identifier"

// TenantResolver pins every request behind it to exactly one tenant: resolve
// the tenant record, decrypt its secrets, acquire its database handle.
type TenantResolver struct {
	directory *directory.Directory
	pool      *database.ConnectionPool
}

func NewTenantResolver(dir *directory.Directory, pool *database.ConnectionPool) *TenantResolver {
	return &TenantResolver{directory: dir, pool: pool}
}

func (t *TenantResolver) Middleware() func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			referenceID := strings.TrimSpace(r.Header.Get(VendorIdentifierHeader))
			handle, err := t.directory.Resolve(r.Context(), referenceID, requestHostname(r))
			if err != nil {
				writeResolveError(w, r, err)
				return
			}

			db, err := t.pool.Acquire(r.Context(), handle.DatabaseKey, handle.ConnectionString)
			if err != nil {
				response.Error(w, r, http.StatusBadGateway, "TENANT_DB_UNAVAILABLE", "tenant database unavailable", nil)
				return
			}

			tc := &service.TenantContext{Handle: handle, DB: db}
			next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tc)))
		})
	}
}

func writeResolveError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, directory.ErrMissingTenantIdentifier):
		response.Error(w, r, http.StatusBadRequest, "MISSING_TENANT_IDENTIFIER", "tenant identifier required", nil)
	case errors.Is(err, repository.ErrTenantNotFound):
		response.Error(w, r, http.StatusNotFound, "TENANT_NOT_FOUND", "unknown tenant", nil)
	case errors.Is(err, directory.ErrTenantDisabled):
		response.Error(w, r, http.StatusForbidden, "TENANT_DISABLED", "tenant is disabled", nil)
	case errors.Is(err, security.ErrMissingMasterKey):
		response.Error(w, r, http.StatusInternalServerError, "CONFIGURATION_ERROR", "server configuration error", nil)
	case errors.Is(err, security.ErrDecryptFailed):
		response.Error(w, r, http.StatusInternalServerError, "DECRYPTION_ERROR", "tenant secrets unavailable", nil)
	default:
		response.Error(w, r, http.StatusInternalServerError, "INTERNAL", "tenant resolution failed", nil)
	}
}

func requestHostname(r *http.Request) string {
	host := r.Host
	if h, _, err := net.SplitHostPort(host); err == nil {
		host = h
	}
	return strings.ToLower(strings.TrimSpace(host))
}
