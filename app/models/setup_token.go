package models

import "time"

// SetupToken is a one-time, hashed, expiring credential for post-provisioning
// admin bootstrap. Only the SHA-256 hash of the token is persisted; the
// plaintext exists exactly once, in the issue response. The session secret is
// stored encrypted with a per-token nonce.
type SetupToken struct {
	ID               uint       `gorm:"primaryKey" json:"id"`
	InstallID        uint       `gorm:"not null;index" json:"install_id"`
	Install          *Install   `gorm:"foreignKey:InstallID" json:"install,omitempty"`
	TokenHash        string     `gorm:"type:varchar(64);not null;uniqueIndex" json:"-"`
	SecretCiphertext []byte     `gorm:"type:varbinary(255);not null" json:"-"`
	SecretNonce      []byte     `gorm:"type:varbinary(24);not null" json:"-"`
	Used             bool       `gorm:"not null;default:false" json:"used"`
	CreatedAt        time.Time  `gorm:"autoCreateTime" json:"created_at"`
	ExpiresAt        time.Time  `gorm:"not null" json:"expires_at"`
	UsedAt           *time.Time `gorm:"type:timestamp;default:null" json:"used_at,omitempty"`
}

// Expired reports whether the token is past its expiry at the given time.
func (t *SetupToken) Expired(now time.Time) bool {
	return now.After(t.ExpiresAt)
}
