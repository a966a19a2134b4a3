package app

import (
	"fmt"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/config"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
)

// RunMigrationOnly migrates the control plane schema and exits. Tenant
// schemas migrate lazily on first pooled acquisition.
func RunMigrationOnly() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	db, err := database.OpenControlPlane(cfg)
	if err != nil {
		return fmt.Errorf("open control plane: %w", err)
	}
	if err := database.MigrateControlPlane(db); err != nil {
		return fmt.Errorf("migrate control plane: %w", err)
	}
	return nil
}
