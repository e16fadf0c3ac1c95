package api

import (
	"context"

	"github.com/carvik/geodex/internal/identity"
)

type contextKey string

const principalContextKey contextKey = "principal"

// Principal is the identity attached to a request after the auth
// middleware accepted its credentials. Request-scoped, never persisted.
type Principal struct {
	Email    string            `json:"email"`
	Name     string            `json:"name,omitempty"`
	ID       string            `json:"id"`
	Provider identity.Provider `json:"provider"`
	Token    string            `json:"-"`
}

// PrincipalFromContext returns the authenticated principal, if any.
func PrincipalFromContext(ctx context.Context) (*Principal, bool) {
	p, ok := ctx.Value(principalContextKey).(*Principal)
	return p, ok
}

func withPrincipal(ctx context.Context, p *Principal) context.Context {
	return context.WithValue(ctx, principalContextKey, p)
}
