package repository

import (
	"context"

	"go.uber.org/zap"

	"projecthub/pkg/outbox"
)

type EventRepo struct {
	db     outbox.DBTX
	logger *zap.Logger
}

func (r *EventRepo) Append(ctx context.Context, event *outbox.Event) error {
	if err := outbox.InsertEvent(ctx, r.db, event); err != nil {
		r.logger.Error("Failed to append outbox event",
			zap.String("routing_key", event.RoutingKey),
			zap.Error(err),
		)
		return storageErr("append outbox event", err)
	}

	r.logger.Debug("Outbox event appended",
		zap.Int64("event_id", event.ID),
		zap.String("routing_key", event.RoutingKey),
	)
	return nil
}
