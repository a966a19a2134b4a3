package service

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
)

func TestSweepRemovesExpiredSessionsAcrossTenants(t *testing.T) {
	pool := database.NewConnectionPool(func(connectionString string) (*gorm.DB, error) {
		return gorm.Open(sqlite.Open(connectionString), &gorm.Config{
			Logger:         logger.Default.LogMode(logger.Silent),
			TranslateError: true,
		})
	})
	ctx := context.Background()

	db, err := pool.Acquire(ctx, "shop_sweep", "file:svc_sweep?mode=memory&cache=shared")
	if err != nil {
		t.Fatalf("acquire: %v", err)
	}

	now := time.Now().UTC()
	sessions := repository.NewSessionRepository(db)
	expired := &domain.Session{
		ID:                    "00000000-0000-0000-0000-000000000001",
		UserID:                1,
		AccessTokenID:         "a1",
		RefreshTokenID:        "r1",
		AccessTokenExpiresAt:  now.Add(-2 * time.Hour),
		RefreshTokenExpiresAt: now.Add(-1 * time.Hour),
	}
	live := &domain.Session{
		ID:                    "00000000-0000-0000-0000-000000000002",
		UserID:                1,
		AccessTokenID:         "a2",
		RefreshTokenID:        "r2",
		AccessTokenExpiresAt:  now.Add(15 * time.Minute),
		RefreshTokenExpiresAt: now.Add(24 * time.Hour),
	}
	for _, s := range []*domain.Session{expired, live} {
		if err := sessions.CreateWithEviction(ctx, s, 0); err != nil {
			t.Fatalf("seed session %s: %v", s.ID, err)
		}
	}

	worker := NewSessionCleanupWorker(pool, time.Minute, slog.Default())
	worker.Sweep(ctx)

	if _, err := sessions.FindByID(ctx, expired.ID); !errors.Is(err, repository.ErrSessionNotFound) {
		t.Fatalf("expired session should be gone, got %v", err)
	}
	if _, err := sessions.FindByID(ctx, live.ID); err != nil {
		t.Fatalf("live session should survive: %v", err)
	}
}
