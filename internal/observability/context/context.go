package context

import (
	"context"
	"strings"
)

type ctxKey int

const (
	requestIDKey ctxKey = iota
	actorKey
)

// Actor identifies the principal performing an operation.
type Actor struct {
	ID   string
	Role string
}

func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, requestIDKey, strings.TrimSpace(requestID))
}

func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	v, _ := ctx.Value(requestIDKey).(string)
	return v
}

func WithActor(ctx context.Context, actor Actor) context.Context {
	actor.ID = strings.TrimSpace(actor.ID)
	actor.Role = strings.TrimSpace(actor.Role)
	return context.WithValue(ctx, actorKey, actor)
}

// ActorFromContext returns the actor role and id, or empty strings when unset.
func ActorFromContext(ctx context.Context) (string, string) {
	if ctx == nil {
		return "", ""
	}
	actor, ok := ctx.Value(actorKey).(Actor)
	if !ok {
		return "", ""
	}
	return actor.Role, actor.ID
}
