// AngelaMos | 2026
// identity.go

package core

import "context"

// Identity is the authenticated caller attached to a request context by
// the access middleware.
type Identity struct {
	Username string
	Name     string
	Tier     string
	Status   string
	Balance  int64
	Legacy   bool
}

type identityContextKey struct{}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityContextKey{}, id)
}

// IdentityFromContext returns the caller identity, or a zero Identity
// when the request passed no authentication.
func IdentityFromContext(ctx context.Context) Identity {
	id, _ := ctx.Value(identityContextKey{}).(Identity)
	return id
}

// UsernameFromContext is shorthand for the common case.
func UsernameFromContext(ctx context.Context) string {
	return IdentityFromContext(ctx).Username
}
