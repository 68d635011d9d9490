package authapi

import (
	"context"

	"justice/cmd/identity"
)

// Principal is the authenticated caller of a request.
type Principal struct {
	UserID identity.UserID
	// Token is the clear session token from the cookie, kept so logout can delete it.
	Token string
}

type principalKey struct{}

func WithPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalKey{}, p)
}

// PrincipalFrom returns the principal stored by the Authenticator.
func PrincipalFrom(ctx context.Context) (Principal, bool) {
	p, ok := ctx.Value(principalKey{}).(Principal)
	return p, ok
}
