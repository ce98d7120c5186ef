package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/store/gormdb"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/migrations"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gormdb.DB {
	t.Helper()
	db, err := gormdb.OpenSQLite(filepath.Join(t.TempDir(), "registry.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), wdb, migrations.DialectSQLite); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

var noopProvisioner = ProvisionerFunc(func(context.Context, gorm.ConnPool, domain.Partition) error {
	return nil
})

func buildTenant(t *testing.T, in domain.NewTenant) domain.Tenant {
	t.Helper()
	tenant, err := in.Build(time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	if err != nil {
		t.Fatalf("build tenant: %v", err)
	}
	return tenant
}

func createTenant(t *testing.T, repo *TenantRepository, in domain.NewTenant) domain.Tenant {
	t.Helper()
	tenant, err := repo.Create(context.Background(), buildTenant(t, in), domain.MutationMetadata{Actor: "tester", Source: "test"})
	if err != nil {
		t.Fatalf("create tenant %s: %v", in.Name, err)
	}
	return tenant
}

func listEvents(t *testing.T, db *gormdb.DB, tenantID string) []domain.OutboxEvent {
	t.Helper()
	events, err := NewOutboxRepository(db).List(context.Background(), domain.EventFilter{TenantID: tenantID, Limit: 100})
	if err != nil {
		t.Fatalf("list events: %v", err)
	}
	return events
}
