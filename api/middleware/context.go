package middleware

import (
	"context"

	"github.com/google/uuid"

	"github.com/angelmondragon/eventrentals-backend/pkg/auth"
)

type contextKey string

const (
	ctxActor     contextKey = "actor"
	ctxRequestID contextKey = "request_id"
)

// ActorFromContext returns the authenticated caller, if any.
func ActorFromContext(ctx context.Context) (auth.Actor, bool) {
	if ctx == nil {
		return auth.Actor{}, false
	}
	actor, ok := ctx.Value(ctxActor).(auth.Actor)
	return actor, ok
}

// WithActor injects the caller identity into the context for downstream handlers.
func WithActor(ctx context.Context, actor auth.Actor) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, ctxActor, actor)
}

func UserIDFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.UserID == uuid.Nil {
		return ""
	}
	return actor.UserID.String()
}

func RoleFromContext(ctx context.Context) string {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return ""
	}
	return string(actor.Role)
}

func withRequestID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, ctxRequestID, id)
}

// RequestIDFromContext returns the id RequestID assigned to this request.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(ctxRequestID).(string)
	return id
}
