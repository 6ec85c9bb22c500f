package lifecycle

import (
	"context"

	"civicdesk/backend/internal/models"
)

// IdentityResolver returns the caller of the current operation.
type IdentityResolver interface {
	Resolve(ctx context.Context) (models.Actor, error)
}

// IdentityFunc adapts a function to IdentityResolver.
type IdentityFunc func(ctx context.Context) (models.Actor, error)

// Resolve calls f.
func (f IdentityFunc) Resolve(ctx context.Context) (models.Actor, error) { return f(ctx) }

type actorKey struct{}

// WithActor returns a context carrying the authenticated caller.
func WithActor(ctx context.Context, actor models.Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFromContext returns the caller stored by WithActor.
func ActorFromContext(ctx context.Context) (models.Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(models.Actor)
	return actor, ok && actor.UserID != "" && actor.Role != ""
}

// ContextIdentity resolves the caller from the request context.
var ContextIdentity IdentityResolver = IdentityFunc(func(ctx context.Context) (models.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		return models.Actor{}, ErrUnauthenticated
	}
	return actor, nil
})
