package domain

import (
	"errors"
	"testing"
	"time"
)

func TestNewTenantBuild(t *testing.T) {
	now := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tenant, err := NewTenant{Name: "Acme Shop", Domain: "Shop.Acme.com", Subdomain: "acme", Plan: "pro"}.Build(now)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	if tenant.Partition.Name() != "acme_shop" {
		t.Fatalf("unexpected partition %q", tenant.Partition)
	}
	if tenant.Domain != "shop.acme.com" {
		t.Fatalf("expected lowercased domain, got %q", tenant.Domain)
	}
	if !tenant.Active || tenant.Verified || tenant.Premium {
		t.Fatalf("unexpected flags: %+v", tenant)
	}
	if tenant.Plan != PlanPro || tenant.Limits.Products != 10000 {
		t.Fatalf("unexpected plan/limits: %s %+v", tenant.Plan, tenant.Limits)
	}
	if !tenant.CreatedAt.Equal(now) {
		t.Fatalf("unexpected created_at %v", tenant.CreatedAt)
	}
}

func TestNewTenantBuildDefaultsToFreePlan(t *testing.T) {
	tenant, err := NewTenant{Name: "acme"}.Build(time.Now())
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	if tenant.Plan != PlanFree || tenant.Limits != (PlanLimits{Products: 100, Orders: 1000, StorageMB: 100}) {
		t.Fatalf("unexpected defaults: %s %+v", tenant.Plan, tenant.Limits)
	}
}

func TestNewTenantBuildValidation(t *testing.T) {
	cases := []struct {
		in   NewTenant
		want error
	}{
		{in: NewTenant{Name: ""}, want: ErrInvalidInput},
		{in: NewTenant{Name: "acme", Domain: "not a host"}, want: ErrInvalidInput},
		{in: NewTenant{Name: "acme", Subdomain: "a.b"}, want: ErrInvalidInput},
		{in: NewTenant{Name: "acme", Plan: "platinum"}, want: ErrInvalidInput},
		{in: NewTenant{Name: "public"}, want: ErrPartitionValidationFailed},
		{in: NewTenant{Name: "???"}, want: ErrPartitionValidationFailed},
	}

	for _, tc := range cases {
		if _, err := tc.in.Build(time.Now()); !errors.Is(err, tc.want) {
			t.Fatalf("build %+v: expected %v, got %v", tc.in, tc.want, err)
		}
	}
}

func TestTenantTrialAndSubscription(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Hour)
	future := now.Add(time.Hour)

	if (Tenant{}).TrialActive(now) {
		t.Fatal("no trial end means no active trial")
	}
	if !(Tenant{TrialEndsAt: &future}).TrialActive(now) {
		t.Fatal("expected active trial")
	}
	if !(Tenant{}).SubscriptionActive(now) {
		t.Fatal("no subscription end means active subscription")
	}
	if (Tenant{SubscriptionEndsAt: &past}).SubscriptionActive(now) {
		t.Fatal("expected lapsed subscription")
	}
}

func TestAPIKeyExpired(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	future := now.Add(time.Minute)

	if (APIKey{}).Expired(now) {
		t.Fatal("keys without expiry never expire")
	}
	if !(APIKey{ExpiresAt: &past}).Expired(now) {
		t.Fatal("expected expired key")
	}
	if (APIKey{ExpiresAt: &future}).Expired(now) {
		t.Fatal("expected live key")
	}
}
