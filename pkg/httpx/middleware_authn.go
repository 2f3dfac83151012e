package httpx

import (
	"context"
	"net/http"
	"strings"

	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

// Authenticator resolves a bearer token into an Identity.
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (Identity, error)
}

// AuthenticatorFunc adapts a plain function to Authenticator.
type AuthenticatorFunc func(ctx context.Context, token string) (Identity, error)

func (f AuthenticatorFunc) Authenticate(ctx context.Context, token string) (Identity, error) {
	return f(ctx, token)
}

// ErrorHook lets the caller render authentication failures that are not plain
// token rejections (an unavailable store, for instance). It returns false to
// fall back to the default 401.
type ErrorHook func(w http.ResponseWriter, r *http.Request, err error) bool

// AuthnMiddleware requires a valid bearer token and stores the resolved
// Identity in the request context.
func AuthnMiddleware(a Authenticator, onErr ErrorHook) Middleware {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()
			log := slogx.FromContext(ctx)

			raw, ok := BearerToken(r)
			if !ok {
				WriteBearerError(w, "missing bearer token")
				return
			}

			id, err := a.Authenticate(ctx, raw)
			if err != nil {
				if onErr != nil && onErr(w, r, err) {
					return
				}
				log.Debug("bearer authentication failed", "err", err)
				WriteBearerError(w, "token verification failed")
				return
			}
			id.Token = raw

			ctx = slogx.With(WithIdentity(ctx, id), "sub", id.Subject)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// BearerToken extracts the token from an "Authorization: Bearer" header.
func BearerToken(r *http.Request) (string, bool) {
	h := r.Header.Get("Authorization")
	scheme, tok, found := strings.Cut(h, " ")
	if !found || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	tok = strings.TrimSpace(tok)
	return tok, tok != ""
}

// WriteBearerError answers 401 with an RFC 6750 challenge.
func WriteBearerError(w http.ResponseWriter, desc string) {
	w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token", error_description="`+desc+`"`)
	WriteError(w, http.StatusUnauthorized, "invalid_token", desc)
}
