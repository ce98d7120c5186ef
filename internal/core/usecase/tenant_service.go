package usecase

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
)

type TenantService struct {
	repo  ports.TenantRegistry
	usage ports.UsageReader
	now   func() time.Time
}

func NewTenantService(repo ports.TenantRegistry, usage ports.UsageReader) *TenantService {
	return &TenantService{repo: repo, usage: usage, now: time.Now}
}

// Create registers a tenant. The registry provisions the partition in the
// same transaction, so a returned error means nothing was committed.
func (s *TenantService) Create(ctx context.Context, in domain.NewTenant, meta domain.MutationMetadata) (domain.Tenant, error) {
	tenant, err := in.Build(s.now())
	if err != nil {
		return domain.Tenant{}, err
	}
	return s.repo.Create(ctx, tenant, meta)
}

func (s *TenantService) Deactivate(ctx context.Context, id string, meta domain.MutationMetadata) (domain.Tenant, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("%w: tenant id must be a uuid", domain.ErrInvalidInput)
	}
	return s.repo.Deactivate(ctx, parsed, meta)
}

func (s *TenantService) ListActive(ctx context.Context) ([]domain.TenantSummary, error) {
	return s.repo.ListActive(ctx)
}

// Usage must be called with a partition session on ctx.
func (s *TenantService) Usage(ctx context.Context) (domain.Usage, error) {
	return s.usage.Usage(ctx)
}
