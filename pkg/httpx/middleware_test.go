package httpx_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/aussiebroadwan/bookshelf/pkg/httpx"
	"github.com/stretchr/testify/require"
)

func TestChainOrder(t *testing.T) {
	var order []string
	tag := func(name string) httpx.Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}

	h := httpx.Chain(okHandler, tag("outer"), tag("inner"))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, []string{"outer", "inner"}, order)
}

func TestAuthnMiddleware(t *testing.T) {
	auth := httpx.AuthenticatorFunc(func(_ context.Context, token string) (httpx.Identity, error) {
		if token != "good" {
			return httpx.Identity{}, errors.New("bad token")
		}
		return httpx.Identity{Subject: "acct-1", Scopes: []string{"sessions:read"}}, nil
	})

	var seen httpx.Identity
	h := httpx.AuthnMiddleware(auth, nil)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = httpx.IdentityFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	}))

	t.Run("accepts a valid bearer token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer good")
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)

		require.Equal(t, http.StatusNoContent, rec.Code)
		require.Equal(t, "acct-1", seen.Subject)
		require.Equal(t, "good", seen.Token)
	})

	for name, header := range map[string]string{
		"missing":      "",
		"wrong scheme": "Basic Zm9vOmJhcg==",
		"empty token":  "Bearer ",
		"rejected":     "Bearer bad",
	} {
		t.Run(name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if header != "" {
				req.Header.Set("Authorization", header)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, http.StatusUnauthorized, rec.Code)
			require.Contains(t, rec.Header().Get("WWW-Authenticate"), `error="invalid_token"`)

			var body httpx.ErrorResponse
			require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
			require.Equal(t, "invalid_token", body.Error)
		})
	}

	t.Run("error hook takes over", func(t *testing.T) {
		hooked := httpx.AuthnMiddleware(auth, func(w http.ResponseWriter, _ *http.Request, _ error) bool {
			w.WriteHeader(http.StatusServiceUnavailable)
			return true
		})(okHandler)

		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.Header.Set("Authorization", "Bearer bad")
		rec := httptest.NewRecorder()
		hooked.ServeHTTP(rec, req)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestAuthzMiddleware(t *testing.T) {
	serve := func(mw httpx.Middleware, id *httpx.Identity) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		if id != nil {
			req = req.WithContext(httpx.WithIdentity(req.Context(), *id))
		}
		rec := httptest.NewRecorder()
		mw(okHandler).ServeHTTP(rec, req)
		return rec
	}

	admin := &httpx.Identity{Subject: "a", Scopes: []string{"accounts:write", "sessions:read"}, EmailVerified: true}
	user := &httpx.Identity{Subject: "u", Scopes: []string{"sessions:read"}}

	require.Equal(t, http.StatusOK, serve(httpx.RequireAnyScope("accounts:write", "x"), admin).Code)
	require.Equal(t, http.StatusForbidden, serve(httpx.RequireAnyScope("accounts:write"), user).Code)
	require.Equal(t, http.StatusForbidden, serve(httpx.RequireAnyScope("accounts:write"), nil).Code)

	require.Equal(t, http.StatusOK, serve(httpx.RequireAllScopes("accounts:write", "sessions:read"), admin).Code)
	rec := serve(httpx.RequireAllScopes("accounts:write", "sessions:read"), user)
	require.Equal(t, http.StatusForbidden, rec.Code)
	require.Contains(t, rec.Header().Get("WWW-Authenticate"), "insufficient_scope")

	require.Equal(t, http.StatusOK, serve(httpx.RequireVerifiedEmail(), admin).Code)
	require.Equal(t, http.StatusForbidden, serve(httpx.RequireVerifiedEmail(), user).Code)
}

func TestDecodeJSON(t *testing.T) {
	type body struct {
		Name string `json:"name"`
	}
	decode := func(s string) error {
		req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(s))
		var b body
		return httpx.DecodeJSON(httptest.NewRecorder(), req, &b)
	}

	require.NoError(t, decode(`{"name":"x"}`))
	require.Error(t, decode(`{"name":"x","extra":1}`))
	require.Error(t, decode(`{"name":"x"}{"name":"y"}`))
	require.Error(t, decode(`[`))
}
