package ports

import (
	"context"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
)

// TenantRegistry is the durable store of tenant metadata. The resolution
// lookups (ByPartition, ByDomain, BySubdomain, ActiveByID) only ever return
// active tenants.
type TenantRegistry interface {
	GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	GetByName(ctx context.Context, name string) (domain.Tenant, error)
	GetActiveByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	GetByPartition(ctx context.Context, partition domain.Partition) (domain.Tenant, error)
	GetByDomain(ctx context.Context, host string) (domain.Tenant, error)
	GetBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error)
	Create(ctx context.Context, tenant domain.Tenant, meta domain.MutationMetadata) (domain.Tenant, error)
	Deactivate(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.Tenant, error)
	ListActive(ctx context.Context) ([]domain.TenantSummary, error)
}

// UsageReader reads tenant usage from the partition bound to ctx.
type UsageReader interface {
	Usage(ctx context.Context) (domain.Usage, error)
}
