package shared

import "context"

// DefaultActorHeader is the request header carrying the acting user name.
const DefaultActorHeader = "X-Acting-User"

// SystemActor is recorded when no acting user is present, e.g. scheduler runs.
const SystemActor = "system"

type actorContextKey struct{}

// ContextWithActor stores the acting user name in context.
func ContextWithActor(ctx context.Context, name string) context.Context {
	return context.WithValue(ctx, actorContextKey{}, name)
}

// ActorFromContext extracts the acting user name from context.
func ActorFromContext(ctx context.Context) string {
	name, _ := ctx.Value(actorContextKey{}).(string)
	return name
}

// ActorResolver resolves the acting user for audit entries.
type ActorResolver interface {
	GetActingUserName(ctx context.Context) string
}

// ContextActorResolver reads the actor from the request context, falling back
// to SystemActor for background callers.
type ContextActorResolver struct{}

// GetActingUserName implements ActorResolver.
func (ContextActorResolver) GetActingUserName(ctx context.Context) string {
	if name := ActorFromContext(ctx); name != "" {
		return name
	}
	return SystemActor
}
