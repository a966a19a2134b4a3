package database

import (
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
)

// OpenControlPlane connects to the shared store that owns tenant records.
func OpenControlPlane(cfg *config.Config) (*gorm.DB, error) {
	return gorm.Open(postgres.Open(cfg.ControlPlaneDatabaseURL), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Warn),
		TranslateError: true,
	})
}

// MigrateControlPlane creates the tenant registry tables.
func MigrateControlPlane(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.Tenant{},
		&domain.TenantHostname{},
	)
}

// MigrateTenant creates one tenant database's schema. Called on the first
// pooled acquisition of each tenant connection.
func MigrateTenant(db *gorm.DB) error {
	return db.AutoMigrate(
		&domain.User{},
		&domain.Session{},
	)
}
