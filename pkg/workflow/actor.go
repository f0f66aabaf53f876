package workflow

import "context"

// DefaultActor is recorded when no actor is attached to the context.
const DefaultActor = "system"

// ctxKey is an unexported type used as the context key for the actor.
type ctxKey struct{}

// WithActor returns a new context carrying the name of whoever triggers
// the following operations.
func WithActor(ctx context.Context, actor string) context.Context {
	return context.WithValue(ctx, ctxKey{}, actor)
}

// ActorFromContext returns the actor attached to ctx, or DefaultActor.
func ActorFromContext(ctx context.Context) string {
	if actor, ok := ctx.Value(ctxKey{}).(string); ok && actor != "" {
		return actor
	}
	return DefaultActor
}
