package services

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gpazevedo/alex/application/ports"
	"github.com/gpazevedo/alex/domain/events"
	"github.com/gpazevedo/alex/pkg/observability"
)

// eventEmitter publishes domain events after a successful write. A publish
// failure is logged and counted but never fails the write.
type eventEmitter struct {
	publisher ports.EventPublisher
	metrics   *observability.Collector
	logger    *zap.Logger
}

func (e eventEmitter) emit(ctx context.Context, event events.DomainEvent) {
	if e.publisher == nil {
		return
	}
	err := e.publisher.Publish(ctx, event)
	e.metrics.RecordEvent(event.GetEventType(), err)
	if err != nil {
		e.logger.Warn("Failed to publish event",
			zap.String("eventType", event.GetEventType()),
			zap.String("aggregateID", event.GetAggregateID()),
			zap.Error(err),
		)
	}
}

func timeOrNow(t *time.Time) time.Time {
	if t == nil {
		return time.Now().UTC()
	}
	return *t
}
