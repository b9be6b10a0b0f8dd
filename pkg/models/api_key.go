package models

import (
	"time"

	"github.com/google/uuid"
)

// Permissions an API key can carry. PermissionAdmin implies the other two.
const (
	PermissionRead  = "read"
	PermissionWrite = "write"
	PermissionAdmin = "admin"
)

// APIKey represents a credential for the external ideas API.
// Raw keys are shown once at creation; only the bcrypt hash is stored.
type APIKey struct {
	ID               uuid.UUID  `db:"id"                  json:"id"`
	OwnerID          uuid.UUID  `db:"owner_id"            json:"owner_id"`
	Name             string     `db:"name"                json:"name"`
	KeyHash          string     `db:"key_hash"            json:"-"`
	KeyPrefix        string     `db:"key_prefix"          json:"key_prefix"`
	Permissions      []string   `db:"permissions"         json:"permissions"`
	RateLimitPerHour int        `db:"rate_limit_per_hour" json:"rate_limit_per_hour"`
	IsActive         bool       `db:"is_active"           json:"is_active"`
	ExpiresAt        *time.Time `db:"expires_at"          json:"expires_at,omitempty"`
	UsageCount       int64      `db:"usage_count"         json:"usage_count"`
	LastUsedAt       *time.Time `db:"last_used_at"        json:"last_used_at,omitempty"`
	CreatedAt        time.Time  `db:"created_at"          json:"created_at"`
	UpdatedAt        time.Time  `db:"updated_at"          json:"updated_at"`
}

// IsValid reports whether the key is active and not expired at now.
func (k *APIKey) IsValid(now time.Time) bool {
	return usable(k.IsActive, k.ExpiresAt, now)
}

func usable(active bool, expiresAt *time.Time, now time.Time) bool {
	if !active {
		return false
	}
	return expiresAt == nil || expiresAt.After(now)
}

// KeyRecord is the resolved view of an API key handed to the request pipeline.
type KeyRecord struct {
	KeyID            uuid.UUID  `json:"key_id"`
	OwnerID          uuid.UUID  `json:"owner_id"`
	Permissions      []string   `json:"permissions"`
	RateLimitPerHour int        `json:"rate_limit_per_hour"`
	IsActive         bool       `json:"is_active"`
	ExpiresAt        *time.Time `json:"expires_at,omitempty"`
	IsValid          bool       `json:"-"`
}

// ValidAt applies the same rule as APIKey.IsValid to the record.
func (k *KeyRecord) ValidAt(now time.Time) bool {
	return usable(k.IsActive, k.ExpiresAt, now)
}

// HasPermission reports whether the record grants perm, either directly or via admin.
func (k *KeyRecord) HasPermission(perm string) bool {
	for _, p := range k.Permissions {
		if p == perm || p == PermissionAdmin {
			return true
		}
	}
	return false
}
