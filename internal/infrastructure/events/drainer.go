package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/archivus/docflow/internal/domain/repositories"
	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/domain/tenant"
	"github.com/archivus/docflow/internal/infrastructure/database/models"
	"github.com/archivus/docflow/internal/observability/metrics"
	"github.com/archivus/docflow/pkg/logger"
	"github.com/google/uuid"
)

// Drainer moves queued workflow events into in-app notifications.
type Drainer struct {
	cache         services.CacheService
	notifications repositories.NotificationRepository
	batchSize     int
	logger        *logger.Logger
}

// NewDrainer creates a drainer that handles at most batchSize events per pass.
func NewDrainer(cache services.CacheService, notifications repositories.NotificationRepository, batchSize int, log *logger.Logger) *Drainer {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Drainer{
		cache:         cache,
		notifications: notifications,
		batchSize:     batchSize,
		logger:        log,
	}
}

// DrainOnce delivers up to one batch and reports how many events were taken
// off the queue. Events that cannot be delivered go to the dead letter list.
func (d *Drainer) DrainOnce(ctx context.Context) (int, error) {
	for n := 0; n < d.batchSize; n++ {
		raw, err := d.cache.RPop(ctx, services.EventQueueKey)
		if errors.Is(err, services.ErrCacheMiss) {
			return n, nil
		}
		if err != nil {
			return n, fmt.Errorf("failed to pop workflow event: %w", err)
		}

		if err := d.deliver(ctx, raw); err != nil {
			d.logger.Error("failed to deliver workflow event",
				slog.String("error", err.Error()),
			)
			// The event is already off the queue, so park it even when ctx is done.
			if dlErr := d.cache.LPush(context.WithoutCancel(ctx), services.EventDeadLetterKey, raw); dlErr != nil {
				return n + 1, fmt.Errorf("failed to dead-letter workflow event: %w", dlErr)
			}
		}
	}
	return d.batchSize, nil
}

// Run drains the queue every interval until ctx is cancelled. A full batch is
// followed by another pass without waiting.
func (d *Drainer) Run(ctx context.Context, interval time.Duration) error {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := d.DrainOnce(ctx)
		if err != nil {
			d.logger.Error("event drain failed", slog.String("error", err.Error()))
		}
		if n == d.batchSize && err == nil && ctx.Err() == nil {
			continue
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

func (d *Drainer) deliver(ctx context.Context, raw string) error {
	var event services.WorkflowEvent
	if err := json.Unmarshal([]byte(raw), &event); err != nil {
		return fmt.Errorf("malformed event: %w", err)
	}
	if event.TenantID == uuid.Nil {
		return fmt.Errorf("event %s has no tenant", event.ID)
	}

	notification := &models.Notification{
		UserEmail:         event.UserEmail,
		DocumentVersionID: event.DocumentVersionID,
		Type:              string(event.EventType),
		Channel:           models.NotifyInApp,
		CreatedAt:         event.OccurredAt,
	}
	if err := d.notifications.Create(tenant.WithScope(ctx, event.TenantID), notification); err != nil {
		return err
	}
	metrics.ObserveNotificationDelivered()
	d.logger.Debug("notification delivered",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
	)
	return nil
}
