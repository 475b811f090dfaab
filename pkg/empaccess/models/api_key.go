package models

import "time"

// APIKey is an integration credential. Requests authenticated with it act as
// Account. Only the SHA-256 of the key is stored.
type APIKey struct {
	ID          uint       `gorm:"primarykey" json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	Account     string     `gorm:"not null;index" json:"account"`
	KeyHash     string     `gorm:"uniqueIndex;not null" json:"-"`
	KeyPrefix   string     `gorm:"not null" json:"key_prefix"`
	Description string     `json:"description"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	IsActive    bool       `gorm:"not null;index" json:"is_active"`
	RevokedAt   *time.Time `json:"revoked_at,omitempty"`
}

// UsableAt reports whether the key is active and unexpired at t.
func (k APIKey) UsableAt(t time.Time) bool {
	return k.IsActive && (k.ExpiresAt == nil || k.ExpiresAt.After(t))
}
