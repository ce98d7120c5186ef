package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/store/gormdb"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// TenantRepository is the shared-partition tenant registry. Lookups used
// during resolution only match active tenants; nothing is cached, so
// deactivation is visible to the next request.
type TenantRepository struct {
	db          *gormdb.DB
	provisioner Provisioner
	now         func() time.Time
}

func NewTenantRepository(db *gormdb.DB, provisioner Provisioner) *TenantRepository {
	return &TenantRepository{db: db, provisioner: provisioner, now: time.Now}
}

func (r *TenantRepository) GetByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	return r.first(ctx, "get tenant by id", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ?", id.String())
	})
}

func (r *TenantRepository) GetByName(ctx context.Context, name string) (domain.Tenant, error) {
	return r.first(ctx, "get tenant by name", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("name = ?", strings.TrimSpace(name))
	})
}

func (r *TenantRepository) GetActiveByID(ctx context.Context, id uuid.UUID) (domain.Tenant, error) {
	return r.first(ctx, "get active tenant by id", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("id = ? AND is_active = ?", id.String(), true)
	})
}

func (r *TenantRepository) GetByPartition(ctx context.Context, partition domain.Partition) (domain.Tenant, error) {
	if partition.IsZero() {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return r.first(ctx, "get tenant by partition", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("schema_name = ? AND is_active = ?", partition.Name(), true)
	})
}

func (r *TenantRepository) GetByDomain(ctx context.Context, host string) (domain.Tenant, error) {
	host = strings.ToLower(strings.TrimSpace(host))
	if host == "" {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return r.first(ctx, "get tenant by domain", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("domain = ? AND is_active = ?", host, true)
	})
}

func (r *TenantRepository) GetBySubdomain(ctx context.Context, subdomain string) (domain.Tenant, error) {
	subdomain = strings.ToLower(strings.TrimSpace(subdomain))
	if subdomain == "" {
		return domain.Tenant{}, domain.ErrTenantNotFound
	}
	return r.first(ctx, "get tenant by subdomain", func(tx *gorm.DB) *gorm.DB {
		return tx.Where("subdomain = ? AND is_active = ?", subdomain, true)
	})
}

func (r *TenantRepository) first(ctx context.Context, op string, scope func(*gorm.DB) *gorm.DB) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return scope(tx.DB).First(&model).Error
	})
	if err != nil {
		return domain.Tenant{}, wrapReadError(op, err, domain.ErrTenantNotFound)
	}
	return model.toDomain()
}

// Create inserts the tenant, provisions its partition and records a
// tenant.created event in one transaction.
func (r *TenantRepository) Create(ctx context.Context, tenant domain.Tenant, meta domain.MutationMetadata) (domain.Tenant, error) {
	meta = meta.Normalize()
	if tenant.Partition.IsZero() || tenant.Partition.IsPublic() {
		return domain.Tenant{}, fmt.Errorf("%w: tenant has no partition", domain.ErrPartitionValidationFailed)
	}

	model := newTenantModel(tenant)
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return wrapWriteError("insert tenant", err)
		}
		if r.provisioner != nil {
			if err := r.provisioner.Provision(ctx, tx.Statement.ConnPool, tenant.Partition); err != nil {
				return err
			}
		}
		envelope, err := newEnvelope(domain.EventTenantCreated, model.ID, "tenant", model.ID, meta, tenantPayload(tenant))
		if err != nil {
			return err
		}
		return appendOutbox(tx.DB, envelope)
	})
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}
	return tenant, nil
}

// Deactivate marks the tenant inactive. The partition and its data are kept.
func (r *TenantRepository) Deactivate(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.Tenant, error) {
	meta = meta.Normalize()
	var model tenantModel
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Where("id = ?", id.String()).First(&model).Error; err != nil {
			return wrapReadError("load tenant", err, domain.ErrTenantNotFound)
		}
		if !model.IsActive {
			return nil
		}
		now := r.now().UTC()
		if err := tx.Model(&tenantModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("update tenant: %w", err)
		}
		model.IsActive = false
		model.UpdatedAt = now

		tenant, err := model.toDomain()
		if err != nil {
			return err
		}
		envelope, err := newEnvelope(domain.EventTenantDeactivated, model.ID, "tenant", model.ID, meta, tenantPayload(tenant))
		if err != nil {
			return err
		}
		return appendOutbox(tx.DB, envelope)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.Tenant{}, err
		}
		return domain.Tenant{}, fmt.Errorf("deactivate tenant: %w", err)
	}
	return model.toDomain()
}

// ListActive returns active tenants ordered by name with their active key
// counts.
func (r *TenantRepository) ListActive(ctx context.Context) ([]domain.TenantSummary, error) {
	var rows []tenantSummaryRow
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Table("tenants AS t").
			Select("t.*, COUNT(k.id) AS active_keys").
			Joins("LEFT JOIN api_keys k ON k.tenant_id = t.id AND k.is_active = ?", true).
			Where("t.is_active = ?", true).
			Group("t.id").
			Order("t.name ASC").
			Scan(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list active tenants: %w", err)
	}

	result := make([]domain.TenantSummary, 0, len(rows))
	for _, row := range rows {
		tenant, err := row.Tenant.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, domain.TenantSummary{Tenant: tenant, ActiveKeys: row.ActiveKeys})
	}
	return result, nil
}

// CountActiveKeys returns the number of active credentials for a tenant.
func (r *TenantRepository) CountActiveKeys(ctx context.Context, id uuid.UUID) (int64, error) {
	var count int64
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Model(&apiKeyModel{}).
			Where("tenant_id = ? AND is_active = ?", id.String(), true).
			Count(&count).Error
	})
	if err != nil {
		return 0, fmt.Errorf("count active keys: %w", err)
	}
	return count, nil
}

func tenantPayload(t domain.Tenant) map[string]any {
	return map[string]any{
		"tenant_id": t.ID.String(),
		"name":      t.Name,
		"partition": t.Partition.Name(),
		"domain":    t.Domain,
		"subdomain": t.Subdomain,
		"plan_type": string(t.Plan),
		"is_active": t.Active,
	}
}
