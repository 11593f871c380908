package shared

import "context"

type actorContextKey struct{}

// Actor identifies the authenticated user driving a mutation. Authentication
// itself lives in the surrounding API layer; the ledger only stamps audit fields.
type Actor struct {
	UserID int64
	OrgID  int64
}

// ContextWithActor stores the acting user in context.
func ContextWithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

// ActorFromContext extracts the acting user from context.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(Actor)
	return actor, ok
}
