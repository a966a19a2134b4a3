package service

import (
	"context"
	"log/slog"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/database"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/repository"
)

// SessionCleanupWorker ages out sessions past their refresh expiry across
// every tenant database the pool has opened. Sessions in databases that were
// never touched this process lifetime are swept once traffic opens them.
type SessionCleanupWorker struct {
	pool     *database.ConnectionPool
	interval time.Duration
	logger   *slog.Logger
	now      func() time.Time
}

func NewSessionCleanupWorker(pool *database.ConnectionPool, interval time.Duration, logger *slog.Logger) *SessionCleanupWorker {
	return &SessionCleanupWorker{pool: pool, interval: interval, logger: logger, now: time.Now}
}

// Run blocks until ctx is cancelled, sweeping on every tick.
func (w *SessionCleanupWorker) Run(ctx context.Context) {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			w.Sweep(ctx)
		}
	}
}

// Sweep removes expired sessions from every cached tenant connection. A
// failure on one tenant does not stop the others.
func (w *SessionCleanupWorker) Sweep(ctx context.Context) {
	now := w.now().UTC()
	w.pool.Range(func(key string, db *gorm.DB) {
		removed, err := repository.NewSessionRepository(db).CleanupExpired(ctx, now)
		if err != nil {
			w.logger.WarnContext(ctx, "session cleanup failed",
				slog.String("tenant_db", key),
				slog.String("error", err.Error()))
			return
		}
		if removed > 0 {
			w.logger.InfoContext(ctx, "expired sessions removed",
				slog.String("tenant_db", key),
				slog.Int64("removed", removed))
		}
	})
}
