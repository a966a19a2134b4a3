package domain

import "time"

// Session is one active login in a tenant database. The ID is generated
// before token issuance so a crash between issuance and persistence leaves a
// token that can never validate.
//
// AccessTokenID and RefreshTokenID are the currently valid identifiers; a
// presented token whose embedded identifier differs is a replay of a
// rotated-out credential.
type Session struct {
	ID       string `gorm:"primaryKey;size:36" json:"id"`
	UserID   uint   `gorm:"index;not null" json:"user_id"`
	Provider string `gorm:"size:32;not null;default:local" json:"provider"`

	AccessTokenID  string `gorm:"size:36;index;not null" json:"-"`
	RefreshTokenID string `gorm:"size:36;uniqueIndex;not null" json:"-"`

	AccessTokenExpiresAt time.Time `gorm:"not null" json:"access_token_expires_at"`
	// RefreshTokenExpiresAt is indexed so the cleanup worker can age out
	// sessions that were never explicitly revoked.
	RefreshTokenExpiresAt time.Time `gorm:"index;not null" json:"refresh_token_expires_at"`

	Fingerprint string `gorm:"size:128" json:"-"`
	IP          string `gorm:"size:64" json:"ip"`
	UserAgent   string `gorm:"size:512" json:"user_agent"`

	Revoked         bool       `gorm:"not null;default:false;index" json:"revoked"`
	LastRefreshedAt *time.Time `json:"last_refreshed_at,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
	UpdatedAt       time.Time  `json:"updated_at"`
}
