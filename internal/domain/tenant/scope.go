// Package tenant carries the tenant scope of one logical operation on its context.
package tenant

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrNoScope is returned when an operation runs without a tenant on its context.
var ErrNoScope = errors.New("tenant scope missing from context")

type scopeKey struct{}

// WithScope returns a child context bound to tenantID.
func WithScope(ctx context.Context, tenantID uuid.UUID) context.Context {
	return context.WithValue(ctx, scopeKey{}, tenantID)
}

// FromContext returns the tenant bound to ctx, if any.
func FromContext(ctx context.Context) (uuid.UUID, bool) {
	id, ok := ctx.Value(scopeKey{}).(uuid.UUID)
	if !ok || id == uuid.Nil {
		return uuid.Nil, false
	}
	return id, true
}

// Require is FromContext for callers that cannot proceed without a scope.
func Require(ctx context.Context) (uuid.UUID, error) {
	id, ok := FromContext(ctx)
	if !ok {
		return uuid.Nil, ErrNoScope
	}
	return id, nil
}
