package repository

import (
	"context"
	"errors"
	"strings"

	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
)

var ErrTenantNotFound = errors.New("tenant not found")

// TenantRepository reads and writes control-plane tenant records. Disabled
// tenants are still returned; the directory decides how to treat them.
type TenantRepository interface {
	FindByReferenceID(ctx context.Context, referenceID string) (*domain.Tenant, error)
	FindByHostname(ctx context.Context, hostname string) (*domain.Tenant, error)
	Create(ctx context.Context, tenant *domain.Tenant) error
}

type GormTenantRepository struct{ db *gorm.DB }

func NewTenantRepository(db *gorm.DB) TenantRepository {
	return &GormTenantRepository{db: db}
}

func (r *GormTenantRepository) FindByReferenceID(ctx context.Context, referenceID string) (*domain.Tenant, error) {
	var tenant domain.Tenant
	err := r.db.WithContext(ctx).
		Preload("Hostnames").
		Where("reference_id = ?", strings.TrimSpace(referenceID)).
		First(&tenant).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "tenant", "find_by_reference", "not_found")
			return nil, ErrTenantNotFound
		}
		observability.RecordRepositoryOperation(ctx, "tenant", "find_by_reference", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "tenant", "find_by_reference", "success")
	return &tenant, nil
}

func (r *GormTenantRepository) FindByHostname(ctx context.Context, hostname string) (*domain.Tenant, error) {
	var binding domain.TenantHostname
	err := r.db.WithContext(ctx).
		Where("hostname = ?", strings.ToLower(strings.TrimSpace(hostname))).
		First(&binding).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "tenant", "find_by_hostname", "not_found")
			return nil, ErrTenantNotFound
		}
		observability.RecordRepositoryOperation(ctx, "tenant", "find_by_hostname", "error")
		return nil, err
	}

	var tenant domain.Tenant
	err = r.db.WithContext(ctx).Preload("Hostnames").First(&tenant, binding.TenantID).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "tenant", "find_by_hostname", "not_found")
			return nil, ErrTenantNotFound
		}
		observability.RecordRepositoryOperation(ctx, "tenant", "find_by_hostname", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "tenant", "find_by_hostname", "success")
	return &tenant, nil
}

func (r *GormTenantRepository) Create(ctx context.Context, tenant *domain.Tenant) error {
	tenant.ReferenceID = strings.TrimSpace(tenant.ReferenceID)
	for i := range tenant.Hostnames {
		tenant.Hostnames[i].Hostname = strings.ToLower(strings.TrimSpace(tenant.Hostnames[i].Hostname))
	}
	if err := r.db.WithContext(ctx).Create(tenant).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "tenant", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "tenant", "create", "success")
	return nil
}
