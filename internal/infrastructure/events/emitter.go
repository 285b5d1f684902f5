package events

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/archivus/docflow/internal/domain/services"
	"github.com/archivus/docflow/internal/observability/metrics"
	"github.com/archivus/docflow/pkg/logger"
)

// QueueEmitter pushes workflow events onto a list in the cache for the
// worker to deliver.
type QueueEmitter struct {
	cache  services.CacheService
	key    string
	logger *logger.Logger
}

// NewQueueEmitter creates an emitter writing to services.EventQueueKey.
func NewQueueEmitter(cache services.CacheService, log *logger.Logger) *QueueEmitter {
	return &QueueEmitter{cache: cache, key: services.EventQueueKey, logger: log}
}

// Emit enqueues the event. Failures are logged and counted, never returned.
func (e *QueueEmitter) Emit(ctx context.Context, event services.WorkflowEvent) {
	payload, err := json.Marshal(event)
	if err == nil {
		err = e.cache.LPush(ctx, e.key, payload)
	}
	metrics.ObserveEmit(string(event.EventType), err)
	if err != nil {
		e.logger.Warn("failed to emit workflow event",
			slog.String("event_type", string(event.EventType)),
			slog.String("document_version_id", event.DocumentVersionID.String()),
			slog.String("error", err.Error()),
		)
		return
	}
	e.logger.Debug("workflow event emitted",
		slog.String("event_id", event.ID.String()),
		slog.String("event_type", string(event.EventType)),
	)
}
