package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/adapters/store/gormdb"
	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type APIKeyRepository struct {
	db  *gormdb.DB
	now func() time.Time
}

func NewAPIKeyRepository(db *gormdb.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db, now: time.Now}
}

// FindByHash returns the credential and its owning tenant regardless of
// their active flags; the authenticator decides what to accept.
func (r *APIKeyRepository) FindByHash(ctx context.Context, hash string) (domain.APIKeyWithTenant, error) {
	var (
		key    apiKeyModel
		tenant tenantModel
	)
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Where("key_hash = ?", hash).First(&key).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", key.TenantID).First(&tenant).Error
	})
	if err != nil {
		return domain.APIKeyWithTenant{}, wrapReadError("find api key", err, domain.ErrCredentialNotFound)
	}

	k, err := key.toDomain()
	if err != nil {
		return domain.APIKeyWithTenant{}, err
	}
	t, err := tenant.toDomain()
	if err != nil {
		return domain.APIKeyWithTenant{}, err
	}
	return domain.APIKeyWithTenant{Key: k, Tenant: t}, nil
}

// Create inserts a new credential. A hash collision is reported as
// domain.ErrConflict and never overwrites the existing row.
func (r *APIKeyRepository) Create(ctx context.Context, key domain.APIKey, meta domain.MutationMetadata) (domain.APIKey, error) {
	meta = meta.Normalize()
	model, err := newAPIKeyModel(key)
	if err != nil {
		return domain.APIKey{}, err
	}

	err = r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return wrapWriteError("insert api key", err)
		}
		envelope, err := newEnvelope(domain.EventAPIKeyCreated, model.TenantID, "api_key", model.ID, meta, apiKeyPayload(key))
		if err != nil {
			return err
		}
		return appendOutbox(tx.DB, envelope)
	})
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("create api key: %w", err)
	}
	return model.toDomain()
}

func (r *APIKeyRepository) ListByTenant(ctx context.Context, tenantID uuid.UUID) ([]domain.APIKey, error) {
	var rows []apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Where("tenant_id = ?", tenantID.String()).
			Order("created_at DESC").
			Order("id ASC").
			Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}

	result := make([]domain.APIKey, 0, len(rows))
	for _, row := range rows {
		key, err := row.toDomain()
		if err != nil {
			return nil, err
		}
		result = append(result, key)
	}
	return result, nil
}

// Revoke deactivates a credential. Revoking an inactive key is a no-op.
func (r *APIKeyRepository) Revoke(ctx context.Context, id uuid.UUID, meta domain.MutationMetadata) (domain.APIKey, error) {
	meta = meta.Normalize()
	var model apiKeyModel
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		if err := tx.Where("id = ?", id.String()).First(&model).Error; err != nil {
			return wrapReadError("load api key", err, domain.ErrCredentialNotFound)
		}
		if !model.IsActive {
			return nil
		}
		now := r.now().UTC()
		if err := tx.Model(&apiKeyModel{}).
			Where("id = ?", model.ID).
			Updates(map[string]any{"is_active": false, "updated_at": now}).Error; err != nil {
			return fmt.Errorf("update api key: %w", err)
		}
		model.IsActive = false
		model.UpdatedAt = now

		key, err := model.toDomain()
		if err != nil {
			return err
		}
		envelope, err := newEnvelope(domain.EventAPIKeyRevoked, model.TenantID, "api_key", model.ID, meta, apiKeyPayload(key))
		if err != nil {
			return err
		}
		return appendOutbox(tx.DB, envelope)
	})
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, err
		}
		return domain.APIKey{}, fmt.Errorf("revoke api key: %w", err)
	}
	return model.toDomain()
}

// RecordUsage adds uses to the counter and moves last_used_at forward.
func (r *APIKeyRepository) RecordUsage(ctx context.Context, id uuid.UUID, uses int64, lastUsedAt time.Time) error {
	if uses <= 0 {
		return nil
	}
	err := r.db.WriteTX(ctx, func(tx *gormdb.Tx) error {
		return tx.Model(&apiKeyModel{}).
			Where("id = ?", id.String()).
			Updates(map[string]any{
				"usage_count":  gorm.Expr("usage_count + ?", uses),
				"last_used_at": lastUsedAt.UTC(),
			}).Error
	})
	if err != nil {
		return fmt.Errorf("record api key usage: %w", err)
	}
	return nil
}

// apiKeyPayload never includes the hash.
func apiKeyPayload(k domain.APIKey) map[string]any {
	payload := map[string]any{
		"api_key_id":  k.ID.String(),
		"tenant_id":   k.TenantID.String(),
		"name":        k.Name,
		"prefix":      k.Prefix,
		"permissions": k.Permissions,
		"is_active":   k.Active,
	}
	if k.ExpiresAt != nil {
		payload["expires_at"] = k.ExpiresAt.UTC()
	}
	return payload
}
