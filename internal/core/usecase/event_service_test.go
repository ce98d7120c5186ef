package usecase

import (
	"context"
	"errors"
	"testing"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/google/uuid"
)

type stubEventLog struct {
	got domain.EventFilter
}

func (s *stubEventLog) List(_ context.Context, filter domain.EventFilter) ([]domain.OutboxEvent, error) {
	s.got = filter
	return nil, nil
}

func TestEventServiceListDefaults(t *testing.T) {
	log := &stubEventLog{}
	svc := NewEventService(log)

	if _, err := svc.List(context.Background(), domain.EventFilter{}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if log.got.Limit != 100 {
		t.Fatalf("expected default limit 100, got %d", log.got.Limit)
	}

	if _, err := svc.List(context.Background(), domain.EventFilter{Limit: 5000, TenantID: uuid.NewString()}); err != nil {
		t.Fatalf("list: %v", err)
	}
	if log.got.Limit != 1000 {
		t.Fatalf("expected capped limit 1000, got %d", log.got.Limit)
	}
}

func TestEventServiceListValidation(t *testing.T) {
	svc := NewEventService(&stubEventLog{})

	if _, err := svc.List(context.Background(), domain.EventFilter{TenantID: "acme"}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if _, err := svc.List(context.Background(), domain.EventFilter{AfterID: -1}); !errors.Is(err, domain.ErrInvalidInput) {
		t.Fatalf("expected invalid input, got %v", err)
	}
}
