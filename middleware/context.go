package middleware

import (
	"context"

	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/upb/coursehub/identity"
)

// Context key type to avoid collisions
type contextKey string

// PrincipalKey is the context key for the signed-in principal of a guarded request
const PrincipalKey contextKey = "principal"

// GetRequestIDFromContext retrieves the request ID set by chi's RequestID middleware
func GetRequestIDFromContext(ctx context.Context) string {
	return chimw.GetReqID(ctx)
}

// WithPrincipal adds the principal snapshot to the context
func WithPrincipal(ctx context.Context, p *identity.Principal) context.Context {
	return context.WithValue(ctx, PrincipalKey, p)
}

// GetPrincipalFromContext retrieves the principal placed by the route guard
func GetPrincipalFromContext(ctx context.Context) *identity.Principal {
	if val := ctx.Value(PrincipalKey); val != nil {
		if p, ok := val.(*identity.Principal); ok {
			return p
		}
	}
	return nil
}
