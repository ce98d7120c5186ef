package usecase

import (
	"context"
	"fmt"
	"strings"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"github.com/atvirokodosprendimai/storefront/internal/core/ports"
	"github.com/google/uuid"
)

// EventService exposes the lifecycle event log for operators.
type EventService struct {
	repo ports.EventLog
}

func NewEventService(repo ports.EventLog) *EventService {
	return &EventService{repo: repo}
}

func (s *EventService) List(ctx context.Context, filter domain.EventFilter) ([]domain.OutboxEvent, error) {
	filter.TenantID = strings.TrimSpace(filter.TenantID)
	if filter.TenantID != "" {
		if _, err := uuid.Parse(filter.TenantID); err != nil {
			return nil, fmt.Errorf("%w: tenant id must be a uuid", domain.ErrInvalidInput)
		}
	}
	if filter.AfterID < 0 {
		return nil, fmt.Errorf("%w: after must not be negative", domain.ErrInvalidInput)
	}
	if filter.Limit <= 0 {
		filter.Limit = 100
	}
	if filter.Limit > 1000 {
		filter.Limit = 1000
	}
	return s.repo.List(ctx, filter)
}
