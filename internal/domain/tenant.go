package domain

import "time"

// Tenant is a control-plane record for one shop. Secret-bearing fields hold
// envelope ciphertext only; plaintext exists solely inside a request-scoped
// directory handle.
type Tenant struct {
	ID          uint             `gorm:"primaryKey" json:"id"`
	ReferenceID string           `gorm:"size:64;uniqueIndex;not null" json:"reference_id"`
	Name        string           `gorm:"size:255" json:"name"`
	Hostnames   []TenantHostname `gorm:"constraint:OnDelete:CASCADE" json:"hostnames,omitempty"`

	ConnectionCipher         string `gorm:"type:text;not null" json:"-"`
	DBNamePrefix             string `gorm:"size:64" json:"-"`
	AccessTokenSecretCipher  string `gorm:"type:text;not null" json:"-"`
	RefreshTokenSecretCipher string `gorm:"type:text;not null" json:"-"`

	AccessTokenTTLMinutes  int `gorm:"not null;default:15" json:"access_token_ttl_minutes"`
	RefreshTokenTTLMinutes int `gorm:"not null;default:10080" json:"refresh_token_ttl_minutes"`
	VerificationTTLMinutes int `gorm:"not null;default:30" json:"verification_ttl_minutes"`
	SessionLimit           int `gorm:"not null;default:5" json:"session_limit"`

	Disabled  bool      `gorm:"not null;default:false;index" json:"disabled"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TenantHostname binds one hostname to a tenant. Hostnames are globally
// unique so a request hostname maps to at most one tenant.
type TenantHostname struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	TenantID  uint      `gorm:"index;not null" json:"tenant_id"`
	Hostname  string    `gorm:"size:255;uniqueIndex;not null" json:"hostname"`
	CreatedAt time.Time `json:"created_at"`
}
