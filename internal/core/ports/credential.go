package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
)

type CredentialStore interface {
	FindByHash(ctx context.Context, hash string) (domain.APIKeyWithTenant, error)
	Create(ctx context.Context, key domain.APIKey, meta domain.MutationMetadata) (domain.APIKey, error)
	ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error)
	Revoke(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.APIKey, error)
	RecordUsage(ctx context.Context, id uuid.UUID, uses int64, lastUsedAt time.Time) error
}

// UsageSink receives credential usage without blocking the caller.
type UsageSink interface {
	Record(keyID uuid.UUID, at time.Time)
}
