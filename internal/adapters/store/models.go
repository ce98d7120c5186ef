package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
)

type tenantModel struct {
	ID                 string     `gorm:"column:id;primaryKey"`
	Name               string     `gorm:"column:name;not null"`
	SchemaName         string     `gorm:"column:schema_name;not null"`
	Domain             *string    `gorm:"column:domain"`
	Subdomain          *string    `gorm:"column:subdomain"`
	IsActive           bool       `gorm:"column:is_active;not null"`
	IsVerified         bool       `gorm:"column:is_verified;not null"`
	IsPremium          bool       `gorm:"column:is_premium;not null"`
	PlanType           string     `gorm:"column:plan_type;not null"`
	MaxProducts        int        `gorm:"column:max_products;not null"`
	MaxOrders          int        `gorm:"column:max_orders;not null"`
	MaxStorageMB       int        `gorm:"column:max_storage_mb;not null"`
	TrialEndsAt        *time.Time `gorm:"column:trial_ends_at"`
	SubscriptionEndsAt *time.Time `gorm:"column:subscription_ends_at"`
	CreatedAt          time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time  `gorm:"column:updated_at;not null"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

type tenantSummaryRow struct {
	Tenant     tenantModel `gorm:"embedded"`
	ActiveKeys int64       `gorm:"column:active_keys"`
}

func newTenantModel(t domain.Tenant) tenantModel {
	return tenantModel{
		ID:                 t.ID.String(),
		Name:               t.Name,
		SchemaName:         t.Partition.Name(),
		Domain:             nullable(t.Domain),
		Subdomain:          nullable(t.Subdomain),
		IsActive:           t.Active,
		IsVerified:         t.Verified,
		IsPremium:          t.Premium,
		PlanType:           string(t.Plan),
		MaxProducts:        t.Limits.Products,
		MaxOrders:          t.Limits.Orders,
		MaxStorageMB:       t.Limits.StorageMB,
		TrialEndsAt:        t.TrialEndsAt,
		SubscriptionEndsAt: t.SubscriptionEndsAt,
		CreatedAt:          t.CreatedAt,
		UpdatedAt:          t.UpdatedAt,
	}
}

// toDomain re-validates the stored partition so a corrupted row can never
// reach the binder.
func (m tenantModel) toDomain() (domain.Tenant, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("tenant %s: invalid id: %w", m.ID, err)
	}
	partition, err := domain.ParsePartition(m.SchemaName)
	if err != nil {
		return domain.Tenant{}, fmt.Errorf("tenant %s: %w", m.ID, err)
	}
	return domain.Tenant{
		ID:        id,
		Name:      m.Name,
		Partition: partition,
		Domain:    deref(m.Domain),
		Subdomain: deref(m.Subdomain),
		Active:    m.IsActive,
		Verified:  m.IsVerified,
		Premium:   m.IsPremium,
		Plan:      domain.PlanType(m.PlanType),
		Limits: domain.PlanLimits{
			Products:  m.MaxProducts,
			Orders:    m.MaxOrders,
			StorageMB: m.MaxStorageMB,
		},
		TrialEndsAt:        utcPtr(m.TrialEndsAt),
		SubscriptionEndsAt: utcPtr(m.SubscriptionEndsAt),
		CreatedAt:          m.CreatedAt.UTC(),
		UpdatedAt:          m.UpdatedAt.UTC(),
	}, nil
}

type apiKeyModel struct {
	ID          string     `gorm:"column:id;primaryKey"`
	TenantID    string     `gorm:"column:tenant_id;not null"`
	Name        string     `gorm:"column:name;not null"`
	KeyHash     string     `gorm:"column:key_hash;not null"`
	Prefix      string     `gorm:"column:prefix;not null"`
	Permissions string     `gorm:"column:permissions;not null"`
	IsActive    bool       `gorm:"column:is_active;not null"`
	ExpiresAt   *time.Time `gorm:"column:expires_at"`
	LastUsedAt  *time.Time `gorm:"column:last_used_at"`
	UsageCount  int64      `gorm:"column:usage_count;not null"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time  `gorm:"column:updated_at;not null"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func newAPIKeyModel(k domain.APIKey) (apiKeyModel, error) {
	perms := k.Permissions
	if perms == nil {
		perms = []string{}
	}
	raw, err := json.Marshal(perms)
	if err != nil {
		return apiKeyModel{}, fmt.Errorf("encode permissions: %w", err)
	}
	return apiKeyModel{
		ID:          k.ID.String(),
		TenantID:    k.TenantID.String(),
		Name:        k.Name,
		KeyHash:     k.Hash,
		Prefix:      k.Prefix,
		Permissions: string(raw),
		IsActive:    k.Active,
		ExpiresAt:   k.ExpiresAt,
		LastUsedAt:  k.LastUsedAt,
		UsageCount:  k.UsageCount,
		CreatedAt:   k.CreatedAt,
		UpdatedAt:   k.UpdatedAt,
	}, nil
}

func (m apiKeyModel) toDomain() (domain.APIKey, error) {
	id, err := uuid.Parse(m.ID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("api key %s: invalid id: %w", m.ID, err)
	}
	tenantID, err := uuid.Parse(m.TenantID)
	if err != nil {
		return domain.APIKey{}, fmt.Errorf("api key %s: invalid tenant id: %w", m.ID, err)
	}
	var perms []string
	if m.Permissions != "" {
		if err := json.Unmarshal([]byte(m.Permissions), &perms); err != nil {
			return domain.APIKey{}, fmt.Errorf("api key %s: decode permissions: %w", m.ID, err)
		}
	}
	if perms == nil {
		perms = []string{}
	}
	return domain.APIKey{
		ID:          id,
		TenantID:    tenantID,
		Name:        m.Name,
		Hash:        m.KeyHash,
		Prefix:      m.Prefix,
		Permissions: perms,
		Active:      m.IsActive,
		ExpiresAt:   utcPtr(m.ExpiresAt),
		LastUsedAt:  utcPtr(m.LastUsedAt),
		UsageCount:  m.UsageCount,
		CreatedAt:   m.CreatedAt.UTC(),
		UpdatedAt:   m.UpdatedAt.UTC(),
	}, nil
}

type outboxEventModel struct {
	ID            int64      `gorm:"column:id;primaryKey;autoIncrement"`
	EventID       string     `gorm:"column:event_id;not null"`
	TenantID      string     `gorm:"column:tenant_id;not null"`
	EventType     string     `gorm:"column:event_type;not null"`
	Topic         string     `gorm:"column:topic;not null"`
	PayloadJSON   string     `gorm:"column:payload_json;not null"`
	Status        string     `gorm:"column:status;not null"`
	Attempts      int        `gorm:"column:attempts;not null"`
	NextAttemptAt time.Time  `gorm:"column:next_attempt_at;not null"`
	LastError     string     `gorm:"column:last_error;not null"`
	CreatedAt     time.Time  `gorm:"column:created_at;not null"`
	DispatchedAt  *time.Time `gorm:"column:dispatched_at"`
}

func (outboxEventModel) TableName() string {
	return "outbox_events"
}

func (m outboxEventModel) toDomain() domain.OutboxEvent {
	return domain.OutboxEvent{
		ID:            m.ID,
		EventID:       m.EventID,
		TenantID:      m.TenantID,
		EventType:     m.EventType,
		Topic:         m.Topic,
		PayloadJSON:   json.RawMessage(m.PayloadJSON),
		Status:        m.Status,
		Attempts:      m.Attempts,
		NextAttemptAt: m.NextAttemptAt.UTC(),
		LastError:     m.LastError,
		CreatedAt:     m.CreatedAt.UTC(),
		DispatchedAt:  utcPtr(m.DispatchedAt),
	}
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func utcPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	u := t.UTC()
	return &u
}
