package events

import (
	"context"

	"github.com/atvirokodosprendimai/storefront/internal/core/domain"
	"go.uber.org/zap"
)

// LogPublisher writes lifecycle events to the structured log. It is the
// default sink when no webhook is configured.
type LogPublisher struct {
	logger *zap.Logger
}

func NewLogPublisher(logger *zap.Logger) *LogPublisher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogPublisher{logger: logger.Named("events")}
}

func (p *LogPublisher) Publish(_ context.Context, topic string, event domain.EventEnvelope) error {
	p.logger.Info("lifecycle event",
		zap.String("topic", topic),
		zap.String("event_id", event.EventID),
		zap.String("event_type", event.EventType),
		zap.String("tenant_id", event.TenantID),
		zap.String("aggregate", event.AggregateType+"/"+event.AggregateID),
		zap.String("actor", event.Actor),
		zap.String("source", event.Source),
		zap.Time("occurred_at", event.OccurredAt),
	)
	return nil
}
