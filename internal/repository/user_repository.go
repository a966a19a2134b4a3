package repository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"

	"github.com/sandeepkv93/multitenant-commerce-kit/internal/domain"
	"github.com/sandeepkv93/multitenant-commerce-kit/internal/observability"
)

var (
	ErrUserNotFound = errors.New("user not found")
	// ErrTokenConsumed covers every conditional token update whose guard did
	// not match: unknown token, expired token, or already-consumed token.
	// Callers must not distinguish these cases.
	ErrTokenConsumed = errors.New("token missing, expired or already used")
)

// UserRepository operates on one tenant's user collection. Instances are
// constructed against an explicit database handle per request; no handle is
// ever global.
type UserRepository interface {
	Create(ctx context.Context, user *domain.User) error
	FindByID(ctx context.Context, id uint) (*domain.User, error)
	FindByEmail(ctx context.Context, email string) (*domain.User, error)
	FindByPhone(ctx context.Context, phone string) (*domain.User, error)
	Update(ctx context.Context, user *domain.User) error

	SetEmailVerificationToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error
	SetPhoneVerificationToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error
	// ConsumeEmailVerification flips the verified flag and clears the token
	// fields in a single conditional update; the guard matching hash and
	// expiry makes partial application impossible.
	ConsumeEmailVerification(ctx context.Context, userID uint, tokenHash string, now time.Time) error
	ConsumePhoneVerification(ctx context.Context, userID uint, tokenHash string, now time.Time) error

	SetForgotToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error
	// ConsumeForgotToken exchanges a matching unexpired forgot token for a
	// reset token plus the flagged-for-reset marker, atomically.
	ConsumeForgotToken(ctx context.Context, userID uint, forgotHash, resetHash string, resetExpiresAt, now time.Time) error
	// ConsumeResetToken accepts the new password hash only while the reset
	// flag is set and the reset token matches and is unexpired.
	ConsumeResetToken(ctx context.Context, userID uint, resetHash, passwordHash string, now time.Time) error

	RecordLoginFailure(ctx context.Context, userID uint, maxFailures int, lockWindow time.Duration, now time.Time) error
	ClearLoginFailures(ctx context.Context, userID uint) error
}

type GormUserRepository struct{ db *gorm.DB }

func NewUserRepository(db *gorm.DB) UserRepository {
	return &GormUserRepository{db: db}
}

func (r *GormUserRepository) Create(ctx context.Context, user *domain.User) error {
	if user.Email != nil {
		normalized := strings.TrimSpace(strings.ToLower(*user.Email))
		user.Email = &normalized
	}
	if err := r.db.WithContext(ctx).Create(user).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "create", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "create", "success")
	return nil
}

func (r *GormUserRepository) FindByID(ctx context.Context, id uint) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_id", "success")
	return &user, nil
}

func (r *GormUserRepository) FindByEmail(ctx context.Context, email string) (*domain.User, error) {
	return r.findByIdentity(ctx, "email", strings.TrimSpace(strings.ToLower(email)))
}

func (r *GormUserRepository) FindByPhone(ctx context.Context, phone string) (*domain.User, error) {
	return r.findByIdentity(ctx, "phone", strings.TrimSpace(phone))
}

func (r *GormUserRepository) findByIdentity(ctx context.Context, column, value string) (*domain.User, error) {
	var user domain.User
	if err := r.db.WithContext(ctx).Where(column+" = ?", value).First(&user).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			observability.RecordRepositoryOperation(ctx, "user", "find_by_"+column, "not_found")
			return nil, ErrUserNotFound
		}
		observability.RecordRepositoryOperation(ctx, "user", "find_by_"+column, "error")
		return nil, err
	}
	observability.RecordRepositoryOperation(ctx, "user", "find_by_"+column, "success")
	return &user, nil
}

func (r *GormUserRepository) Update(ctx context.Context, user *domain.User) error {
	if err := r.db.WithContext(ctx).Save(user).Error; err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "update", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "update", "success")
	return nil
}

func (r *GormUserRepository) SetEmailVerificationToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	return r.setFields(ctx, userID, "set_email_verification", map[string]any{
		"verification_email_token_hash":       tokenHash,
		"verification_email_token_expires_at": expiresAt,
	})
}

func (r *GormUserRepository) SetPhoneVerificationToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	return r.setFields(ctx, userID, "set_phone_verification", map[string]any{
		"verification_phone_token_hash":       tokenHash,
		"verification_phone_token_expires_at": expiresAt,
	})
}

func (r *GormUserRepository) ConsumeEmailVerification(ctx context.Context, userID uint, tokenHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND verification_email_token_hash = ? AND verification_email_token_expires_at > ?", userID, tokenHash, now).
		Updates(map[string]any{
			"email_verified":                      true,
			"verification_email_token_hash":       "",
			"verification_email_token_expires_at": nil,
		})
	return r.consumeResult(ctx, "consume_email_verification", res)
}

func (r *GormUserRepository) ConsumePhoneVerification(ctx context.Context, userID uint, tokenHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND verification_phone_token_hash = ? AND verification_phone_token_expires_at > ?", userID, tokenHash, now).
		Updates(map[string]any{
			"phone_verified":                      true,
			"verification_phone_token_hash":       "",
			"verification_phone_token_expires_at": nil,
		})
	return r.consumeResult(ctx, "consume_phone_verification", res)
}

func (r *GormUserRepository) SetForgotToken(ctx context.Context, userID uint, tokenHash string, expiresAt time.Time) error {
	return r.setFields(ctx, userID, "set_forgot_token", map[string]any{
		"security_forgot_token_hash":       tokenHash,
		"security_forgot_token_expires_at": expiresAt,
		"security_reset_token_hash":        "",
		"security_reset_token_expires_at":  nil,
		"security_flagged_for_reset":       false,
	})
}

func (r *GormUserRepository) ConsumeForgotToken(ctx context.Context, userID uint, forgotHash, resetHash string, resetExpiresAt, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND security_forgot_token_hash = ? AND security_forgot_token_expires_at > ?", userID, forgotHash, now).
		Updates(map[string]any{
			"security_forgot_token_hash":       "",
			"security_forgot_token_expires_at": nil,
			"security_reset_token_hash":        resetHash,
			"security_reset_token_expires_at":  resetExpiresAt,
			"security_flagged_for_reset":       true,
		})
	return r.consumeResult(ctx, "consume_forgot_token", res)
}

func (r *GormUserRepository) ConsumeResetToken(ctx context.Context, userID uint, resetHash, passwordHash string, now time.Time) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).
		Where("id = ? AND security_flagged_for_reset = ? AND security_reset_token_hash = ? AND security_reset_token_expires_at > ?", userID, true, resetHash, now).
		Updates(map[string]any{
			"security_password_hash":          passwordHash,
			"security_reset_token_hash":       "",
			"security_reset_token_expires_at": nil,
			"security_flagged_for_reset":      false,
			"security_password_changed_at":    now,
		})
	return r.consumeResult(ctx, "consume_reset_token", res)
}

func (r *GormUserRepository) RecordLoginFailure(ctx context.Context, userID uint, maxFailures int, lockWindow time.Duration, now time.Time) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var user domain.User
		if err := tx.First(&user, userID).Error; err != nil {
			return err
		}
		updates := map[string]any{
			"lock_failed_attempts": gorm.Expr("lock_failed_attempts + 1"),
		}
		if user.Lock.FailedAttempts+1 >= maxFailures {
			updates["lock_locked_until"] = now.Add(lockWindow)
			updates["lock_failed_attempts"] = 0
		}
		return tx.Model(&domain.User{}).Where("id = ?", userID).Updates(updates).Error
	})
	if err != nil {
		observability.RecordRepositoryOperation(ctx, "user", "record_login_failure", "error")
		return err
	}
	observability.RecordRepositoryOperation(ctx, "user", "record_login_failure", "success")
	return nil
}

func (r *GormUserRepository) ClearLoginFailures(ctx context.Context, userID uint) error {
	return r.setFields(ctx, userID, "clear_login_failures", map[string]any{
		"lock_failed_attempts": 0,
		"lock_locked_until":    nil,
	})
}

func (r *GormUserRepository) setFields(ctx context.Context, userID uint, op string, fields map[string]any) error {
	res := r.db.WithContext(ctx).Model(&domain.User{}).Where("id = ?", userID).Updates(fields)
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrUserNotFound
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return nil
}

func (r *GormUserRepository) consumeResult(ctx context.Context, op string, res *gorm.DB) error {
	if res.Error != nil {
		observability.RecordRepositoryOperation(ctx, "user", op, "error")
		return res.Error
	}
	if res.RowsAffected == 0 {
		observability.RecordRepositoryOperation(ctx, "user", op, "not_found")
		return ErrTokenConsumed
	}
	observability.RecordRepositoryOperation(ctx, "user", op, "success")
	return nil
}
