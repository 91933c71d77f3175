package middleware

import (
	"context"

	"github.com/google/uuid"
)

type contextKey string

const ctxActorID contextKey = "actor_id"

// ActorIDFromContext returns the actor set by the Actor middleware, or nil.
func ActorIDFromContext(ctx context.Context) *uuid.UUID {
	if ctx == nil {
		return nil
	}
	if v, ok := ctx.Value(ctxActorID).(uuid.UUID); ok && v != uuid.Nil {
		id := v
		return &id
	}
	return nil
}

// WithActorID injects the actor identifier into the context.
func WithActorID(ctx context.Context, actorID uuid.UUID) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActorID, actorID)
}
