package httpx

import (
	"context"
	"time"
)

type ctxKey string

const ctxKeyIdentity ctxKey = "identity"

// Identity is the authenticated caller attached to a request by AuthnMiddleware.
type Identity struct {
	Subject       string
	SessionID     string
	Role          string
	SessionClass  string
	Scopes        []string
	EmailVerified bool
	ExpiresAt     time.Time

	// Token is the raw bearer token the identity was derived from.
	Token string
}

// HasScope reports whether the identity carries scope.
func (id Identity) HasScope(scope string) bool {
	for _, s := range id.Scopes {
		if s == scope {
			return true
		}
	}
	return false
}

func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKeyIdentity, id)
}

// IdentityFromContext returns the request identity, if any.
func IdentityFromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKeyIdentity).(Identity)
	return id, ok
}
