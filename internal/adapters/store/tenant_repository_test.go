package store

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func TestTenantRepositoryCreateAndLookups(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	var provisioned []string
	repo := NewTenantRepository(db, ProvisionerFunc(func(_ context.Context, _ gorm.ConnPool, p domain.Partition) error {
		provisioned = append(provisioned, p.Name())
		return nil
	}))

	created := createTenant(t, repo, domain.NewTenant{Name: "Acme Shop", Domain: "shop.acme.com", Subdomain: "acme", Plan: "basic"})
	if len(provisioned) != 1 || provisioned[0] != "acme_shop" {
		t.Fatalf("unexpected provisioning calls: %v", provisioned)
	}

	lookups := map[string]func() (domain.Tenant, error){
		"id":        func() (domain.Tenant, error) { return repo.GetByID(ctx, created.ID) },
		"active id": func() (domain.Tenant, error) { return repo.GetActiveByID(ctx, created.ID) },
		"name":      func() (domain.Tenant, error) { return repo.GetByName(ctx, "Acme Shop") },
		"partition": func() (domain.Tenant, error) { return repo.GetByPartition(ctx, created.Partition) },
		"domain":    func() (domain.Tenant, error) { return repo.GetByDomain(ctx, "SHOP.acme.com") },
		"subdomain": func() (domain.Tenant, error) { return repo.GetBySubdomain(ctx, "acme") },
	}
	for name, lookup := range lookups {
		got, err := lookup()
		if err != nil {
			t.Fatalf("lookup by %s: %v", name, err)
		}
		if got.ID != created.ID || got.Partition.Name() != "acme_shop" {
			t.Fatalf("lookup by %s returned %+v", name, got)
		}
		if got.Plan != domain.PlanBasic || got.Limits.Products != 1000 {
			t.Fatalf("lookup by %s lost plan: %+v", name, got)
		}
	}

	events := listEvents(t, db, created.ID.String())
	if len(events) != 1 || events[0].EventType != domain.EventTenantCreated {
		t.Fatalf("expected tenant.created event, got %+v", events)
	}
	if events[0].Topic != "events.tenant.created" || events[0].Status != domain.OutboxStatusPending {
		t.Fatalf("unexpected outbox row: %+v", events[0])
	}
}

func TestTenantRepositoryLookupMisses(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(newTestDB(t), noopProvisioner)

	if _, err := repo.GetByID(ctx, uuid.New()); !errors.Is(err, domain.ErrTenantNotFound) {
		t.Fatalf("expected tenant not found, got %v", err)
	}
	if _, err := repo.GetByDomain(ctx, ""); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for empty domain, got %v", err)
	}
	if _, err := repo.GetByPartition(ctx, domain.Partition{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found for zero partition, got %v", err)
	}
}

func TestTenantRepositoryCreateConflicts(t *testing.T) {
	ctx := context.Background()
	repo := NewTenantRepository(newTestDB(t), noopProvisioner)
	createTenant(t, repo, domain.NewTenant{Name: "Acme", Domain: "acme.com"})

	dupName := buildTenant(t, domain.NewTenant{Name: "Acme"})
	if _, err := repo.Create(ctx, dupName, domain.MutationMetadata{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate name, got %v", err)
	}

	dupDomain := buildTenant(t, domain.NewTenant{Name: "Other", Domain: "acme.com"})
	if _, err := repo.Create(ctx, dupDomain, domain.MutationMetadata{}); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict on duplicate domain, got %v", err)
	}
}

func TestTenantRepositoryProvisionFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	provisionErr := errors.New("schema exists")
	repo := NewTenantRepository(db, ProvisionerFunc(func(ctx context.Context, conn gorm.ConnPool, _ domain.Partition) error {
		if _, err := conn.ExecContext(ctx, "CREATE TABLE provision_marker (id INTEGER)"); err != nil {
			return err
		}
		return provisionErr
	}))

	tenant := buildTenant(t, domain.NewTenant{Name: "Broken"})
	if _, err := repo.Create(ctx, tenant, domain.MutationMetadata{}); !errors.Is(err, provisionErr) {
		t.Fatalf("expected provisioning error, got %v", err)
	}

	if _, err := repo.GetByID(ctx, tenant.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("tenant row must be rolled back, got %v", err)
	}
	if events := listEvents(t, db, tenant.ID.String()); len(events) != 0 {
		t.Fatalf("outbox must be rolled back, got %d events", len(events))
	}
	var count int64
	if err := db.R.Raw("SELECT COUNT(*) FROM sqlite_master WHERE name = 'provision_marker'").Scan(&count).Error; err != nil {
		t.Fatalf("inspect schema: %v", err)
	}
	if count != 0 {
		t.Fatal("provisioning statements must run inside the registry transaction")
	}
}

func TestTenantRepositoryOutboxFailureRollsBack(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTenantRepository(db, noopProvisioner)

	if err := db.W.Exec(`
		CREATE TRIGGER trg_fail_outbox_insert
		BEFORE INSERT ON outbox_events
		BEGIN
			SELECT RAISE(ABORT, 'forced outbox failure');
		END;
	`).Error; err != nil {
		t.Fatalf("create trigger: %v", err)
	}

	tenant := buildTenant(t, domain.NewTenant{Name: "Acme"})
	if _, err := repo.Create(ctx, tenant, domain.MutationMetadata{}); err == nil {
		t.Fatal("expected create to fail")
	}
	if _, err := repo.GetByName(ctx, "Acme"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("tenant must not be committed without its event, got %v", err)
	}
}

func TestTenantRepositoryDeactivate(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	repo := NewTenantRepository(db, noopProvisioner)
	created := createTenant(t, repo, domain.NewTenant{Name: "Shop", Domain: "shop.example.com", Subdomain: "shop"})

	deactivated, err := repo.Deactivate(ctx, created.ID, domain.MutationMetadata{Actor: "ops"})
	if err != nil {
		t.Fatalf("deactivate: %v", err)
	}
	if deactivated.Active {
		t.Fatal("expected inactive tenant")
	}
	if deactivated.Partition != created.Partition {
		t.Fatal("partition must be kept on deactivation")
	}

	if _, err := repo.GetByPartition(ctx, created.Partition); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("inactive tenant must not resolve by partition, got %v", err)
	}
	if _, err := repo.GetByDomain(ctx, "shop.example.com"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("inactive tenant must not resolve by domain, got %v", err)
	}
	if _, err := repo.GetBySubdomain(ctx, "shop"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("inactive tenant must not resolve by subdomain, got %v", err)
	}
	if _, err := repo.GetActiveByID(ctx, created.ID); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("inactive tenant must not resolve by id, got %v", err)
	}
	got, err := repo.GetByID(ctx, created.ID)
	if err != nil || got.Active {
		t.Fatalf("management lookup must return the inactive tenant, got %+v, %v", got, err)
	}

	if _, err := repo.Deactivate(ctx, created.ID, domain.MutationMetadata{}); err != nil {
		t.Fatalf("second deactivate: %v", err)
	}
	events := listEvents(t, db, created.ID.String())
	if len(events) != 2 || events[0].EventType != domain.EventTenantDeactivated {
		t.Fatalf("expected exactly one deactivation event, got %+v", events)
	}

	if _, err := repo.Deactivate(ctx, uuid.New(), domain.MutationMetadata{}); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestTenantRepositoryListActiveCountsKeys(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	tenants := NewTenantRepository(db, noopProvisioner)
	keys := NewAPIKeyRepository(db)

	beta := createTenant(t, tenants, domain.NewTenant{Name: "Beta"})
	alpha := createTenant(t, tenants, domain.NewTenant{Name: "Alpha"})
	gone := createTenant(t, tenants, domain.NewTenant{Name: "Gone"})
	if _, err := tenants.Deactivate(ctx, gone.ID, domain.MutationMetadata{}); err != nil {
		t.Fatalf("deactivate: %v", err)
	}

	a1 := createKey(t, keys, alpha, "hash-a1")
	createKey(t, keys, alpha, "hash-a2")
	if _, err := keys.Revoke(ctx, a1.ID, domain.MutationMetadata{}); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	createKey(t, keys, beta, "hash-b1")
	createKey(t, keys, beta, "hash-b2")

	summaries, err := tenants.ListActive(ctx)
	if err != nil {
		t.Fatalf("list active: %v", err)
	}
	if len(summaries) != 2 {
		t.Fatalf("expected 2 active tenants, got %d", len(summaries))
	}
	if summaries[0].Name != "Alpha" || summaries[0].ActiveKeys != 1 {
		t.Fatalf("unexpected first summary: %+v", summaries[0])
	}
	if summaries[1].Name != "Beta" || summaries[1].ActiveKeys != 2 {
		t.Fatalf("unexpected second summary: %+v", summaries[1])
	}

	count, err := tenants.CountActiveKeys(ctx, beta.ID)
	if err != nil || count != 2 {
		t.Fatalf("count active keys: %d, %v", count, err)
	}
}
