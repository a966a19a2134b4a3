package repository

import (
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
)

func newRepositoryDBForTest(t *testing.T, name string) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		Logger:         logger.Default.LogMode(logger.Silent),
		TranslateError: true,
	})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	err = db.AutoMigrate(
		&domain.Tenant{},
		&domain.TenantHostname{},
		&domain.User{},
		&domain.Session{},
	)
	if err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func strptr(s string) *string { return &s }
