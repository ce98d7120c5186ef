package usecase

import (
	"context"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
)

type stubTenantRegistry struct {
	getByIDFn        func(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	getByNameFn      func(ctx context.Context, name string) (domain.Tenant, error)
	getActiveByIDFn  func(ctx context.Context, id uuid.UUID) (domain.Tenant, error)
	getByPartitionFn func(ctx context.Context, p domain.Partition) (domain.Tenant, error)
	getByDomainFn    func(ctx context.Context, host string) (domain.Tenant, error)
	getBySubdomainFn func(ctx context.Context, sub string) (domain.Tenant, error)
	createFn         func(ctx context.Context, t domain.Tenant, meta domain.MutationMetadata) (domain.Tenant, error)
	deactivateFn     func(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.Tenant, error)
	listActiveFn     func(ctx context.Context) ([]domain.TenantSummary, error)

	mu    sync.Mutex
	calls []string
}

func (s *stubTenantRegistry) record(call string) {
	s.mu.Lock()
	s.calls = append(s.calls, call)
	s.mu.Unlock()
}

func (s *stubTenantRegistry) Calls() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.calls...)
}

func (s *stubTenantRegistry) GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	s.record("GetByID")
	if s.getByIDFn != nil {
		return s.getByIDFn(ctx, id)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	s.record("GetByName")
	if s.getByNameFn != nil {
		return s.getByNameFn(ctx, name)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) GetActiveByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	s.record("GetActiveByID")
	if s.getActiveByIDFn != nil {
		return s.getActiveByIDFn(ctx, id)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) GetByPartition(ctx context.Context, p domain.Partition) (domain.Tenant, error) {
	s.record("GetByPartition")
	if s.getByPartitionFn != nil {
		return s.getByPartitionFn(ctx, p)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) GetByDomain(ctx context.Context, host string) (domain.Tenant, error) {
	s.record("GetByDomain")
	if s.getByDomainFn != nil {
		return s.getByDomainFn(ctx, host)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) GetBySubdomain(ctx context.Context, sub string) (domain.Tenant, error) {
	s.record("GetBySubdomain")
	if s.getBySubdomainFn != nil {
		return s.getBySubdomainFn(ctx, sub)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) Create(ctx context.Context, t domain.Tenant, meta domain.MutationMetadata) (domain.Tenant, error) {
	s.record("Create")
	if s.createFn != nil {
		return s.createFn(ctx, t, meta)
	}
	return t, nil
}

func (s *stubTenantRegistry) Deactivate(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.Tenant, error) {
	s.record("Deactivate")
	if s.deactivateFn != nil {
		return s.deactivateFn(ctx, id, meta)
	}
	return domain.Tenant{}, domain.ErrTenantNotFound
}

func (s *stubTenantRegistry) ListActive(ctx context.Context) ([]domain.TenantSummary, error) {
	s.record("ListActive")
	if s.listActiveFn != nil {
		return s.listActiveFn(ctx)
	}
	return nil, nil
}

type stubCredentialStore struct {
	findFn        func(ctx context.Context, hash string) (domain.APIKeyWithTenant, error)
	createFn      func(ctx context.Context, key domain.APIKey, meta domain.MutationMetadata) (domain.APIKey, error)
	listFn        func(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error)
	revokeFn      func(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.APIKey, error)
	recordUsageFn func(ctx context.Context, id uuid.UUID, uses int64, at time.Time) error

	mu        sync.Mutex
	findCalls int
}

func (s *stubCredentialStore) FindByHash(ctx context.Context, hash string) (domain.APIKeyWithTenant, error) {
	s.mu.Lock()
	s.findCalls++
	s.mu.Unlock()
	if s.findFn != nil {
		return s.findFn(ctx, hash)
	}
	return domain.APIKeyWithTenant{}, domain.ErrNotFound
}

func (s *stubCredentialStore) FindCalls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.findCalls
}

func (s *stubCredentialStore) Create(ctx context.Context, key domain.APIKey, meta domain.MutationMetadata) (domain.APIKey, error) {
	if s.createFn != nil {
		return s.createFn(ctx, key, meta)
	}
	return key, nil
}

func (s *stubCredentialStore) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error) {
	if s.listFn != nil {
		return s.listFn(ctx, tenantID)
	}
	return nil, nil
}

func (s *stubCredentialStore) Revoke(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.APIKey, error) {
	if s.revokeFn != nil {
		return s.revokeFn(ctx, id, meta)
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (s *stubCredentialStore) RecordUsage(ctx context.Context, id uuid.UUID, uses int64, at time.Time) error {
	if s.recordUsageFn != nil {
		return s.recordUsageFn(ctx, id, uses, at)
	}
	return nil
}

type stubUsageSink struct {
	mu   sync.Mutex
	keys []uuid.UUID
}

func (s *stubUsageSink) Record(keyID uuid.UUID, _ time.Time) {
	s.mu.Lock()
	s.keys = append(s.keys, keyID)
	s.mu.Unlock()
}

func (s *stubUsageSink) Count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.keys)
}

func activeTenant(name string) domain.Tenant {
	p, err := domain.DerivePartition(name)
	if err != nil {
		panic(err)
	}
	return domain.Tenant{ID: uuid.New(), Name: name, Partition: p, Active: true, Plan: domain.PlanFree}
}
