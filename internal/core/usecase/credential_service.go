package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
)

type CredentialService struct {
	repo    ports.CredentialStore
	tenants ports.TenantRegistry
}

func NewCredentialService(repo ports.CredentialStore, tenants ports.TenantRegistry) *CredentialService {
	return &CredentialService{repo: repo, tenants: tenants}
}

// List returns key metadata for a tenant identified by id or name. Hashes are
// cleared before returning.
func (s *CredentialService) List(ctx context.Context, tenantID, tenantName string) (domain.Tenant, []domain.APIKey, error) {
	tenant, err := lookupTenant(ctx, s.tenants, tenantID, tenantName)
	if err != nil {
		return domain.Tenant{}, nil, err
	}
	keys, err := s.repo.ListByTenant(ctx, tenant.ID)
	if err != nil {
		return domain.Tenant{}, nil, err
	}
	for i := range keys {
		keys[i].Hash = ""
	}
	return tenant, keys, nil
}

func (s *CredentialService) Revoke(ctx context.Context, id string, meta domain.MutationMetadata) (domain.APIKey, error) {
	parsed, err := uuid.Parse(strings.TrimSpace(id))
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("%w: key id must be a uuid", domain.ErrInvalidInput)
	}
	key, err := s.repo.Revoke(ctx, parsed, meta)
	if err != nil {
		return domain.APIKey{}, err
	}
	key.Hash = ""
	return key, nil
}
