package domain

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
)

type PlanType string

const (
	PlanFree       PlanType = "free"
	PlanBasic      PlanType = "basic"
	PlanPro        PlanType = "pro"
	PlanEnterprise PlanType = "enterprise"
)

// PlanLimits caps tenant usage. Zero means unlimited.
type PlanLimits struct {
	Products  int
	Orders    int
	StorageMB int
}

var planLimits = map[PlanType]PlanLimits{
	PlanFree:       {Products: 100, Orders: 1000, StorageMB: 100},
	PlanBasic:      {Products: 1000, Orders: 10000, StorageMB: 1024},
	PlanPro:        {Products: 10000, Orders: 100000, StorageMB: 10240},
	PlanEnterprise: {},
}

func ParsePlanType(raw string) (PlanType, error) {
	if raw == "" {
		return PlanFree, nil
	}
	plan := PlanType(strings.ToLower(strings.TrimSpace(raw)))
	if _, ok := planLimits[plan]; !ok {
		return "", fmt.Errorf("%w: unknown plan %q", ErrInvalidInput, raw)
	}
	return plan, nil
}

func (p PlanType) Limits() PlanLimits {
	return planLimits[p]
}

const maxTenantNameLength = 100

var hostnamePattern = regexp.MustCompile(`^[a-z0-9]([a-z0-9-]*[a-z0-9])?(\.[a-z0-9]([a-z0-9-]*[a-z0-9])?)*$`)

type Tenant struct {
	ID                 uuid.UUID
	Name               string
	Partition          Partition
	Domain             string
	Subdomain          string
	Active             bool
	Verified           bool
	Premium            bool
	Plan               PlanType
	Limits             PlanLimits
	TrialEndsAt        *time.Time
	SubscriptionEndsAt *time.Time
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

type NewTenant struct {
	Name      string
	Domain    string
	Subdomain string
	Plan      string
}

// Build validates the input and produces an active tenant with its partition
// assigned. The partition never changes after this point.
func (n NewTenant) Build(now time.Time) (Tenant, error) {
	name := strings.TrimSpace(n.Name)
	if name == "" || len(name) > maxTenantNameLength {
		return Tenant{}, fmt.Errorf("%w: tenant name is required and must be at most %d characters", ErrInvalidInput, maxTenantNameLength)
	}

	partition, err := DerivePartition(name)
	if err != nil {
		return Tenant{}, err
	}

	plan, err := ParsePlanType(n.Plan)
	if err != nil {
		return Tenant{}, err
	}

	domainName, err := normalizeHost(n.Domain)
	if err != nil {
		return Tenant{}, err
	}
	subdomain := strings.ToLower(strings.TrimSpace(n.Subdomain))
	if subdomain != "" && (strings.Contains(subdomain, ".") || !hostnamePattern.MatchString(subdomain)) {
		return Tenant{}, fmt.Errorf("%w: invalid subdomain %q", ErrInvalidInput, n.Subdomain)
	}

	now = now.UTC()
	return Tenant{
		ID:        uuid.New(),
		Name:      name,
		Partition: partition,
		Domain:    domainName,
		Subdomain: subdomain,
		Active:    true,
		Plan:      plan,
		Limits:    plan.Limits(),
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func normalizeHost(raw string) (string, error) {
	host := strings.ToLower(strings.TrimSpace(raw))
	if host == "" {
		return "", nil
	}
	if len(host) > 253 || !hostnamePattern.MatchString(host) {
		return "", fmt.Errorf("%w: invalid domain %q", ErrInvalidInput, raw)
	}
	return host, nil
}

func (t Tenant) TrialActive(now time.Time) bool {
	return t.TrialEndsAt != nil && t.TrialEndsAt.After(now)
}

// SubscriptionActive reports true for tenants without a subscription end.
func (t Tenant) SubscriptionActive(now time.Time) bool {
	return t.SubscriptionEndsAt == nil || t.SubscriptionEndsAt.After(now)
}

// TenantSummary is the projection returned by tenant listings.
type TenantSummary struct {
	Tenant
	ActiveKeys int64
}

// Usage is read from inside a tenant partition.
type Usage struct {
	Products int64
	Orders   int64
}
