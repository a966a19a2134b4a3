package domain

import "time"

// User lives in a tenant database, never in the control plane. Email and
// phone are optional but unique when present (nullable columns keep the
// uniqueness sparse).
type User struct {
	ID    uint    `gorm:"primaryKey" json:"id"`
	Name  string  `gorm:"size:255" json:"name"`
	Email *string `gorm:"size:255;uniqueIndex" json:"email,omitempty"`
	Phone *string `gorm:"size:32;uniqueIndex" json:"phone,omitempty"`
	Role  string  `gorm:"size:32;not null;default:customer" json:"role"`

	EmailVerified bool `gorm:"not null;default:false" json:"email_verified"`
	PhoneVerified bool `gorm:"not null;default:false" json:"phone_verified"`

	Verification UserVerification `gorm:"embedded;embeddedPrefix:verification_" json:"-"`
	Security     UserSecurity     `gorm:"embedded;embeddedPrefix:security_" json:"-"`
	Lock         UserLock         `gorm:"embedded;embeddedPrefix:lock_" json:"-"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// UserVerification holds hashed, time-boxed verification tokens. Raw tokens
// are transmitted once to the notifier boundary and never stored.
type UserVerification struct {
	EmailTokenHash      string     `gorm:"size:128" json:"-"`
	EmailTokenExpiresAt *time.Time `json:"-"`
	PhoneTokenHash      string     `gorm:"size:128" json:"-"`
	PhoneTokenExpiresAt *time.Time `json:"-"`
}

// UserSecurity carries the password hash and the two-step forgot/reset
// handshake state.
type UserSecurity struct {
	PasswordHash         string     `gorm:"size:128" json:"-"`
	ForgotTokenHash      string     `gorm:"size:128" json:"-"`
	ForgotTokenExpiresAt *time.Time `json:"-"`
	ResetTokenHash       string     `gorm:"size:128" json:"-"`
	ResetTokenExpiresAt  *time.Time `json:"-"`
	FlaggedForReset      bool       `gorm:"not null;default:false" json:"-"`
	PasswordChangedAt    *time.Time `json:"-"`
}

type UserLock struct {
	FailedAttempts int        `gorm:"not null;default:0" json:"-"`
	LockedUntil    *time.Time `json:"-"`
}

// Locked reports whether the account lock window is still open.
func (u *User) Locked(now time.Time) bool {
	return u.Lock.LockedUntil != nil && now.Before(*u.Lock.LockedUntil)
}
