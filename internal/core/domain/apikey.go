package domain

import (
	"time"

	"github.com/google/uuid"
)

const (
	// APIKeyPrefix marks every secret issued by the platform.
	APIKeyPrefix = "katkat_"
	// APIKeyDisplayLength is how much of a secret is kept for operators.
	APIKeyDisplayLength = 12
)

type APIKey struct {
	ID          uuid.UUID
	TenantID    uuid.UUID
	Name        string
	Hash        string
	Prefix      string
	Permissions []string
	Active      bool
	ExpiresAt   *time.Time
	LastUsedAt  *time.Time
	UsageCount  int64
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !k.ExpiresAt.After(now)
}

// APIKeyWithTenant is a credential joined with its owner.
type APIKeyWithTenant struct {
	Key    APIKey
	Tenant Tenant
}

// IssuedKey carries the plaintext secret. It is only ever returned from the
// call that generated it.
type IssuedKey struct {
	Key    APIKey
	Tenant Tenant
	Secret string
}
