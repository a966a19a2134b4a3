package service

import (
	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/directory"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
)

// TenantContext bundles a resolved tenant handle with its live database
// connection for the duration of one request.
type TenantContext struct {
	Handle *directory.TenantHandle
	DB     *gorm.DB
}

func (tc *TenantContext) users() repository.UserRepository {
	return repository.NewUserRepository(tc.DB)
}

func (tc *TenantContext) sessions() repository.SessionRepository {
	return repository.NewSessionRepository(tc.DB)
}
