package services

import (
	"context"
	"errors"
)

// ErrCacheMiss is returned when a key or queue holds nothing.
var ErrCacheMiss = errors.New("cache miss")

// CacheService interface for the Redis-compatible store backing the event queue
type CacheService interface {
	// List operations for queues
	LPush(ctx context.Context, key string, values ...interface{}) error
	RPop(ctx context.Context, key string) (string, error)
	LLen(ctx context.Context, key string) (int64, error)

	// Health check
	Ping(ctx context.Context) error
	Close() error
}

// Cache key patterns for the application
const (
	// EventQueueKey holds JSON-encoded WorkflowEvents awaiting delivery.
	EventQueueKey = "workflow_events:queue"
	// EventDeadLetterKey holds events the worker could not turn into notifications.
	EventDeadLetterKey = "workflow_events:dead"
)
