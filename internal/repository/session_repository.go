package repository

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	// ErrSessionMismatch means the presented token identifiers do not match
	// the session's currently stored pair: a replay of a rotated-out
	// credential. Fails closed, no partial recovery.
	ErrSessionMismatch = errors.New("session token identifiers do not match")
)

// SessionRotation carries the replacement identifiers and expiries for one
// rotation step.
type SessionRotation struct {
	AccessTokenID         string
	RefreshTokenID        string
	AccessTokenExpiresAt  time.Time
	RefreshTokenExpiresAt time.Time
}

// SessionRepository operates on one tenant's session collection through an
// explicit handle, like UserRepository.
type SessionRepository interface {
	// CreateWithEviction inserts the session and removes the user's oldest
	// sessions beyond limit, in one transaction.
	CreateWithEviction(ctx context.Context, session *domain.Session, limit int) error
	FindByID(ctx context.Context, id string) (*domain.Session, error)
	ListByUserID(ctx context.Context, userID uint) ([]domain.Session, error)
	// Rotate swaps in new token identifiers only when the stored refresh
	// identifier equals presentedRefreshID and the session is not revoked.
	// A lost race or stale token yields ErrSessionMismatch.
	Rotate(ctx context.Context, sessionID, presentedRefreshID string, rotation SessionRotation, now time.Time) (*domain.Session, error)
	// Revoke marks the session revoked and removes it; both effects share
	// one transaction. The second call for the same ID returns false.
	Revoke(ctx context.Context, sessionID string) (bool, error)
	RevokeAllForUser(ctx context.Context, userID uint) (int64, error)
	// CleanupExpired ages out sessions past their refresh expiry, standing
	// in for a document-store TTL index.
	CleanupExpired(ctx context.Context, now time.Time) (int64, error)
}

type GormSessionRepository struct{ db *gorm.DB }

func NewSessionRepository(db *gorm.DB) SessionRepository {
	return &GormSessionRepository{db: db}
}

func (r *GormSessionRepository) CreateWithEviction(ctx context.Context, session *domain.Session, limit int) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(session).Error; err != nil {
			return err
		}
		if limit <= 0 {
			return nil
		}
		var keep []string
		if err := tx.Model(&domain.Session{}).
			Where("user_id = ?", session.UserID).
			Order("created_at desc").Order("id desc").
			Limit(limit).
			Pluck("id", &keep).Error; err != nil {
			return err
		}
		return tx.Where("user_id = ? AND id NOT IN ?", session.UserID, keep).
			Delete(&domain.Session{}).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "session", "create", "success")
	return nil
}

func (r *GormSessionRepository) FindByID(ctx context.Context, id string) (*domain.Session, error) {
	var session domain.Session
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&session).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "find_by_id", "success")
	return &session, nil
}

func (r *GormSessionRepository) ListByUserID(ctx context.Context, userID uint) ([]domain.Session, error) {
	var sessions []domain.Session
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at asc").Order("id asc").
		Find(&sessions).Error
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "list_by_user", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "list_by_user", "success")
	return sessions, nil
}

func (r *GormSessionRepository) Rotate(ctx context.Context, sessionID, presentedRefreshID string, rotation SessionRotation, now time.Time) (*domain.Session, error) {
	res := r.db.WithContext(ctx).Model(&domain.Session{}).
		Where("id = ? AND refresh_token_id = ? AND revoked = ?", sessionID, presentedRefreshID, false).
		Updates(map[string]any{
			"access_token_id":          rotation.AccessTokenID,
			"refresh_token_id":         rotation.RefreshTokenID,
			"access_token_expires_at":  rotation.AccessTokenExpiresAt,
			"refresh_token_expires_at": rotation.RefreshTokenExpiresAt,
			"last_refreshed_at":        now,
		})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "rotate", "error")
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		// Distinguish a vanished session from a stale identifier so replay
		// attempts surface as mismatches, not 404s.
		var count int64
		if err := r.db.WithContext(ctx).Model(&domain.Session{}).Where("id = ?", sessionID).Count(&count).Error; err != nil {
			observability.RecordRepositoryOperation(ctx, "session", "rotate", "error")
			return nil, err
		}
		if count == 0 {
			observability.RecordRepositoryOperation(ctx, "session", "rotate", "not_found")
			return nil, ErrSessionNotFound
		}
		observability.RecordRepositoryOperation(ctx, "session", "rotate", "mismatch")
		return nil, ErrSessionMismatch
	}

	var session domain.Session
	if err := r.db.WithContext(ctx).Where("id = ?", sessionID).First(&session).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "rotate", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "session", "rotate", "success")
	return &session, nil
}

func (r *GormSessionRepository) Revoke(ctx context.Context, sessionID string) (bool, error) {
	var revoked bool
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&domain.Session{}).
			Where("id = ? AND revoked = ?", sessionID, false).
			Update("revoked", true)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		revoked = true
		return tx.Where("id = ?", sessionID).Delete(&domain.Session{}).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "error")
		return false, err
	}
	if !revoked {
		observability.RecordRepositoryOperation(ctx, "session", "revoke", "not_found")
		return false, nil
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke", "success")
	return true, nil
}

func (r *GormSessionRepository) RevokeAllForUser(ctx context.Context, userID uint) (int64, error) {
	res := r.db.WithContext(ctx).Where("user_id = ?", userID).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "revoke_all", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "revoke_all", "success")
	return res.RowsAffected, nil
}

func (r *GormSessionRepository) CleanupExpired(ctx context.Context, now time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("refresh_token_expires_at < ?", now).Delete(&domain.Session{})
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "error")
		return 0, res.Error
	}
	observability.RecordRepositoryOperation(ctx, "session", "cleanup_expired", "success")
	return res.RowsAffected, nil
}
