package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/service"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/bookshelf/pkg/authsdk"
	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
	"github.com/stretchr/testify/require"
)

const (
	testIssuer         = "bookshelf-auth"
	testPassword       = "correct horse battery"
	testBootstrapToken = "bootstrap-token-for-tests"
)

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "authhttp")
	if err != nil {
		panic(err)
	}
	cryptox.SetPepperPath(filepath.Join(dir, "pepper"))

	code := m.Run()
	_ = os.RemoveAll(dir)
	os.Exit(code)
}

type testServer struct {
	*httptest.Server

	store    *sqlite.Store
	accounts *service.AccountService
	client   *authsdk.SDKClient
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	st, err := sqlite.NewStore(":memory:")
	require.NoError(t, err)
	require.NoError(t, st.ApplyMigrations())
	t.Cleanup(func() { _ = st.Close() })

	ring, err := jwtx.NewSecretRing(bytes.Repeat([]byte("s"), 32))
	require.NoError(t, err)

	creds := &service.CredentialVerifier{}
	r := NewRouter(ring, "test", st, slogx.Discard())
	r.AuthService = &service.AuthService{
		Store:    st,
		Sessions: service.NewSessionStore(st.Sessions(), service.DefaultStoreTimeout),
		Codec: &service.TokenCodec{
			Signer:   jwtx.NewSigner(ring),
			Verifier: jwtx.NewVerifier(ring, jwtx.VerifyOptions{Issuer: testIssuer}),
			Issuer:   testIssuer,
		},
		Credentials: creds,
		Guard:       service.AccountGuard{Policy: service.DefaultLockoutPolicy()},
		AccessTTL:   15 * time.Minute,
		RefreshTTL:  24 * time.Hour,
	}
	r.AccountService = &service.AccountService{Store: st, Credentials: creds}
	r.BootstrapService = &service.BootstrapService{Store: st, Credentials: creds, Token: testBootstrapToken}
	r.ApplyRoutes()

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)

	return &testServer{
		Server:   srv,
		store:    st,
		accounts: r.AccountService,
		client:   authsdk.NewSDKClient(srv.URL),
	}
}

func (s *testServer) createAccount(t *testing.T, username string, role domain.Role, verified bool) domain.Account {
	t.Helper()
	acct, err := s.accounts.Create(context.Background(), service.NewAccount{
		Username:      username,
		Email:         username + "@example.com",
		Password:      testPassword,
		Role:          role,
		EmailVerified: verified,
	})
	require.NoError(t, err)
	return acct
}

func (s *testServer) login(t *testing.T, identifier string) *authsdk.Session {
	t.Helper()
	sess, err := s.client.Authenticate(t.Context(), authsdk.LoginRequest{
		Identifier: identifier,
		Password:   testPassword,
		Device:     "laptop",
	})
	require.NoError(t, err)
	return sess
}

func (s *testServer) postJSON(t *testing.T, path string, body any) *http.Response {
	t.Helper()
	b, err := json.Marshal(body)
	require.NoError(t, err)
	resp, err := http.Post(s.URL+path, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { _ = resp.Body.Close() })
	return resp
}

func requireAPIError(t *testing.T, err error, status int, code string) *authsdk.APIError {
	t.Helper()
	var apiErr *authsdk.APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, status, apiErr.StatusCode, "unexpected status: %v", err)
	require.Equal(t, code, apiErr.Code)
	return apiErr
}

func TestLogin(t *testing.T) {
	srv := newTestServer(t)
	acct := srv.createAccount(t, "reader", domain.RoleUser, false)

	t.Run("success", func(t *testing.T) {
		resp, err := srv.client.Login(t.Context(), authsdk.LoginRequest{
			Identifier:   "reader@example.com",
			Password:     testPassword,
			SessionClass: "mobile",
		})
		require.NoError(t, err)
		require.Equal(t, "Bearer", resp.TokenType)
		require.NotEmpty(t, resp.AccessToken)
		require.NotEmpty(t, resp.RefreshToken)
		require.NotEmpty(t, resp.SessionID)
		require.Equal(t, int((15 * time.Minute).Seconds()), resp.ExpiresIn)
		require.Equal(t, int((24 * time.Hour).Seconds()), resp.RefreshExpiresIn)
		require.NotNil(t, resp.Account)
		require.Equal(t, acct.ID, resp.Account.ID)
		require.Equal(t, "USER", resp.Account.Role)
		require.False(t, resp.Account.EmailVerified)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: "nope-nope-nope"})
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("unknown identifier looks the same", func(t *testing.T) {
		_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "ghost", Password: testPassword})
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	})

	t.Run("unknown session class", func(t *testing.T) {
		_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{
			Identifier: "reader", Password: testPassword, SessionClass: "TV",
		})
		requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("malformed body", func(t *testing.T) {
		resp := srv.postJSON(t, "/v1/auth/login", map[string]any{"identifier": "reader", "unexpected": true})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLoginLockout(t *testing.T) {
	srv := newTestServer(t)
	srv.createAccount(t, "victim", domain.RoleUser, false)

	policy := service.DefaultLockoutPolicy()
	bad := authsdk.LoginRequest{Identifier: "victim", Password: "wrong-password"}

	for i := 1; i < policy.Threshold; i++ {
		_, err := srv.client.Login(t.Context(), bad)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidCredentials)
	}

	resp := srv.postJSON(t, "/v1/auth/login", bad)
	require.Equal(t, http.StatusLocked, resp.StatusCode)
	require.NotEmpty(t, resp.Header.Get("Retry-After"))

	var body authsdk.ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	require.Equal(t, authsdk.ErrorCodeAccountLocked, body.Error)
	require.Equal(t, int(policy.Duration.Seconds()), body.RetryAfter)

	// The right password does not help while the window is open.
	_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "victim", Password: testPassword})
	apiErr := requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
	require.Positive(t, apiErr.RetryAfter)
}

func TestLoginStepUpAndState(t *testing.T) {
	srv := newTestServer(t)
	ctx := context.Background()

	stepUp := srv.createAccount(t, "careful", domain.RoleUser, true)
	require.NoError(t, srv.accounts.SetTwoFactor(ctx, stepUp.ID, true))

	_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "careful", Password: testPassword})
	require.True(t, authsdk.IsStepUpRequired(err))
	apiErr := requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeStepUpRequired)
	require.Equal(t, stepUp.ID, apiErr.AccountID)

	suspended := srv.createAccount(t, "benched", domain.RoleUser, true)
	require.NoError(t, srv.accounts.SetState(ctx, suspended.ID, domain.AccountSuspended))
	_, err = srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "benched", Password: testPassword})
	requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeAccountUnavailable)

	locked := srv.createAccount(t, "frozen", domain.RoleUser, true)
	require.NoError(t, srv.accounts.SetState(ctx, locked.ID, domain.AccountLocked))
	_, err = srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "frozen", Password: testPassword})
	apiErr = requireAPIError(t, err, http.StatusLocked, authsdk.ErrorCodeAccountLocked)
	require.Zero(t, apiErr.RetryAfter)
}

func TestRefresh(t *testing.T) {
	srv := newTestServer(t)
	srv.createAccount(t, "reader", domain.RoleUser, false)

	first, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: testPassword})
	require.NoError(t, err)

	second, err := srv.client.Refresh(t.Context(), first.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, first.SessionID, second.SessionID)
	require.NotEqual(t, first.RefreshToken, second.RefreshToken)
	require.Nil(t, second.Account)

	t.Run("replay is rejected", func(t *testing.T) {
		_, err := srv.client.Refresh(t.Context(), first.RefreshToken)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("access token is not a refresh token", func(t *testing.T) {
		_, err := srv.client.Refresh(t.Context(), second.AccessToken)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("empty token", func(t *testing.T) {
		resp := srv.postJSON(t, "/v1/auth/refresh", authsdk.RefreshRequest{})
		require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestLogoutFlows(t *testing.T) {
	srv := newTestServer(t)
	srv.createAccount(t, "reader", domain.RoleUser, false)

	t.Run("logout ends the session", func(t *testing.T) {
		sess := srv.login(t, "reader")
		refresh := sess.RefreshToken()

		require.NoError(t, sess.Logout(t.Context()))
		require.NoError(t, sess.Logout(t.Context()), "logout is idempotent")

		_, err := srv.client.Refresh(t.Context(), refresh)
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("logout others keeps the current session", func(t *testing.T) {
		keep := srv.login(t, "reader")
		other := srv.login(t, "reader")

		n, err := keep.LogoutOthers(t.Context())
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(1))

		require.NoError(t, keep.Refresh(t.Context()))
		_, err = srv.client.Refresh(t.Context(), other.RefreshToken())
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("logout all", func(t *testing.T) {
		a := srv.login(t, "reader")
		b := srv.login(t, "reader")

		n, err := a.LogoutAll(t.Context())
		require.NoError(t, err)
		require.GreaterOrEqual(t, n, int64(2))

		_, err = srv.client.Refresh(t.Context(), b.RefreshToken())
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})

	t.Run("missing bearer", func(t *testing.T) {
		resp := srv.postJSON(t, "/v1/auth/logout", nil)
		require.Equal(t, http.StatusUnauthorized, resp.StatusCode)
		require.Contains(t, resp.Header.Get("WWW-Authenticate"), "invalid_token")
	})
}

func TestLockedAccountCanStillLogOut(t *testing.T) {
	srv := newTestServer(t)
	acct := srv.createAccount(t, "reader", domain.RoleUser, false)

	sess := srv.login(t, "reader")
	require.NoError(t, srv.accounts.SetState(context.Background(), acct.ID, domain.AccountSuspended))

	_, err := sess.Validate(t.Context())
	requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

	require.NoError(t, sess.Logout(t.Context()))
}

func TestValidateAndSessions(t *testing.T) {
	srv := newTestServer(t)
	acct := srv.createAccount(t, "reader", domain.RoleUser, false)
	other := srv.createAccount(t, "other", domain.RoleUser, false)

	sess := srv.login(t, "reader")
	older := srv.login(t, "reader")
	foreign := srv.login(t, "other")

	v, err := sess.Validate(t.Context())
	require.NoError(t, err)
	require.Equal(t, acct.ID, v.AccountID)
	require.Equal(t, sess.SessionID(), v.SessionID)
	require.Equal(t, "USER", v.Role)
	require.Equal(t, "WEB", v.SessionClass)
	require.ElementsMatch(t, []string{domain.PermSessionsRead, domain.PermSessionsWrite}, v.Permissions)
	require.WithinDuration(t, time.Now().Add(15*time.Minute), v.ExpiresAt, time.Minute)

	list, err := sess.ListSessions(t.Context())
	require.NoError(t, err)
	require.Len(t, list, 2)
	current := 0
	for _, s := range list {
		require.True(t, s.Valid)
		require.Equal(t, "laptop", s.Device)
		if s.Current {
			current++
			require.Equal(t, sess.SessionID(), s.ID)
		}
	}
	require.Equal(t, 1, current)

	t.Run("revoke own session", func(t *testing.T) {
		require.NoError(t, sess.RevokeSession(t.Context(), older.SessionID()))
		require.NoError(t, sess.RevokeSession(t.Context(), older.SessionID()), "revoking twice succeeds")

		list, err := sess.ListSessions(t.Context())
		require.NoError(t, err)
		for _, s := range list {
			if s.ID == older.SessionID() {
				require.False(t, s.Valid)
				require.NotNil(t, s.LoggedOutAt)
			}
		}
	})

	t.Run("another account's session is not found", func(t *testing.T) {
		err := sess.RevokeSession(t.Context(), foreign.SessionID())
		requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)

		v, err := foreign.Validate(t.Context())
		require.NoError(t, err)
		require.Equal(t, other.ID, v.AccountID)
	})

	t.Run("garbage bearer", func(t *testing.T) {
		bogus := srv.client.NewSessionFromTokens("not-a-jwt", "", 900)
		_, err := bogus.Validate(t.Context())
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)
	})
}

func TestAccountsAdministration(t *testing.T) {
	srv := newTestServer(t)
	srv.createAccount(t, "root", domain.RoleAdmin, true)
	unverified := srv.createAccount(t, "unverified", domain.RoleAdmin, false)
	srv.createAccount(t, "plain", domain.RoleUser, true)

	admin := srv.login(t, "root")

	newAcct := authsdk.CreateAccountRequest{
		Username: "newcomer",
		Email:    "newcomer@example.com",
		Password: testPassword,
	}

	t.Run("user lacks scope", func(t *testing.T) {
		_, err := srv.login(t, "plain").CreateAccount(t.Context(), newAcct)
		requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeInsufficientScope)
	})

	t.Run("admin without verified email", func(t *testing.T) {
		_, err := srv.login(t, "unverified").CreateAccount(t.Context(), newAcct)
		requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeEmailNotVerified)
	})

	created, err := admin.CreateAccount(t.Context(), newAcct)
	require.NoError(t, err)
	require.Equal(t, "newcomer", created.Username)
	require.Equal(t, "USER", created.Role)
	require.Equal(t, "ACTIVE", created.State)

	t.Run("duplicate", func(t *testing.T) {
		_, err := admin.CreateAccount(t.Context(), newAcct)
		requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)
	})

	t.Run("validation details", func(t *testing.T) {
		_, err := admin.CreateAccount(t.Context(), authsdk.CreateAccountRequest{Username: "x", Email: "bad", Password: "short"})
		apiErr := requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
		require.Contains(t, apiErr.Details, "username")
		require.Contains(t, apiErr.Details, "email")
		require.Contains(t, apiErr.Details, "password")
	})

	t.Run("suspension revokes access tokens", func(t *testing.T) {
		user := srv.login(t, "newcomer")
		_, err := user.Validate(t.Context())
		require.NoError(t, err)

		require.NoError(t, admin.SetAccountState(t.Context(), created.ID, "SUSPENDED"))
		_, err = user.Validate(t.Context())
		requireAPIError(t, err, http.StatusUnauthorized, authsdk.ErrorCodeInvalidToken)

		got, err := admin.GetAccount(t.Context(), created.ID)
		require.NoError(t, err)
		require.Equal(t, "SUSPENDED", got.State)

		require.NoError(t, admin.SetAccountState(t.Context(), created.ID, "ACTIVE"))
		_, err = user.Validate(t.Context())
		require.NoError(t, err)
	})

	t.Run("unknown state", func(t *testing.T) {
		err := admin.SetAccountState(t.Context(), created.ID, "BANNED")
		requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)
	})

	t.Run("unknown account", func(t *testing.T) {
		err := admin.UnlockAccount(t.Context(), "01J00000000000000000000000")
		requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})

	t.Run("unlock clears the counter", func(t *testing.T) {
		_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "newcomer", Password: "wrong-password"})
		require.Error(t, err)

		require.NoError(t, admin.UnlockAccount(t.Context(), created.ID))
		got, err := admin.GetAccount(t.Context(), created.ID)
		require.NoError(t, err)
		require.Zero(t, got.FailedAttempts)
		require.Nil(t, got.LockedUntil)
	})

	t.Run("two-factor toggle", func(t *testing.T) {
		require.NoError(t, admin.SetTwoFactor(t.Context(), created.ID, true))
		_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "newcomer", Password: testPassword})
		require.True(t, authsdk.IsStepUpRequired(err))

		require.NoError(t, admin.SetTwoFactor(t.Context(), created.ID, false))
		srv.login(t, "newcomer")
	})
	t.Run("email verification", func(t *testing.T) {
		pending := srv.login(t, "unverified")
		require.NoError(t, admin.SetEmailVerified(t.Context(), unverified.ID, true))

		got, err := admin.GetAccount(t.Context(), unverified.ID)
		require.NoError(t, err)
		require.True(t, got.EmailVerified)

		v, err := pending.Validate(t.Context())
		require.NoError(t, err)
		require.True(t, v.EmailVerified)

		_, err = pending.CreateAccount(t.Context(), authsdk.CreateAccountRequest{
			Username: "latecomer",
			Email:    "latecomer@example.com",
			Password: testPassword,
		})
		require.NoError(t, err)

		require.NoError(t, admin.SetEmailVerified(t.Context(), unverified.ID, false))
		_, err = pending.CreateAccount(t.Context(), newAcct)
		requireAPIError(t, err, http.StatusForbidden, authsdk.ErrorCodeEmailNotVerified)

		err = admin.SetEmailVerified(t.Context(), "01J00000000000000000000000", true)
		requireAPIError(t, err, http.StatusNotFound, authsdk.ErrorCodeNotFound)
	})
}

func TestBootstrap(t *testing.T) {
	srv := newTestServer(t)
	req := authsdk.BootstrapRequest{
		AdminUsername: "admin",
		AdminEmail:    "admin@example.com",
		AdminPassword: testPassword,
	}

	_, err := srv.client.Bootstrap(t.Context(), "wrong-token", req)
	require.Error(t, err)
	requireAPIError(t, err, http.StatusUnauthorized, "unauthorized")

	_, err = srv.client.Bootstrap(t.Context(), testBootstrapToken, authsdk.BootstrapRequest{AdminUsername: "a"})
	requireAPIError(t, err, http.StatusBadRequest, authsdk.ErrorCodeInvalidRequest)

	resp, err := srv.client.Bootstrap(t.Context(), testBootstrapToken, req)
	require.NoError(t, err)
	require.NotEmpty(t, resp.AdminAccountID)

	_, err = srv.client.Bootstrap(t.Context(), testBootstrapToken, req)
	requireAPIError(t, err, http.StatusConflict, authsdk.ErrorCodeConflict)

	admin := srv.login(t, "admin")
	v, err := admin.Validate(t.Context())
	require.NoError(t, err)
	require.Equal(t, resp.AdminAccountID, v.AccountID)
	require.Equal(t, "ADMIN", v.Role)
	require.True(t, v.EmailVerified)
	require.Contains(t, v.Permissions, domain.PermAccountsWrite)
}

func TestBootstrapDisabled(t *testing.T) {
	srv := newTestServer(t)

	r := NewRouter(nil, "test", srv.store, slogx.Discard())
	r.BootstrapService = &service.BootstrapService{Store: srv.store}
	r.ApplyRoutes()

	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/v1/bootstrap", bytes.NewBufferString(`{}`))
	req.Header.Set("X-Bootstrap-Token", "anything")
	r.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	srv := newTestServer(t)

	live, err := srv.client.Livez(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", live.Status)
	require.Equal(t, "test", live.Version)

	ready, err := srv.client.Readyz(t.Context())
	require.NoError(t, err)
	require.Equal(t, "ok", ready.Status)
	require.NotNil(t, ready.Checks)
	require.Equal(t, "ok", ready.Checks.Database)
	require.Equal(t, "ok", ready.Checks.Signer)

	t.Run("no secret loaded", func(t *testing.T) {
		r := NewRouter(nil, "test", srv.store, slogx.Discard())
		r.ApplyRoutes()

		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	})
}

func TestStoreOutageIsTemporarilyUnavailable(t *testing.T) {
	srv := newTestServer(t)
	srv.createAccount(t, "reader", domain.RoleUser, false)
	sess := srv.login(t, "reader")

	require.NoError(t, srv.store.Close())

	_, err := srv.client.Login(t.Context(), authsdk.LoginRequest{Identifier: "reader", Password: testPassword})
	requireAPIError(t, err, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable)

	_, err = sess.Validate(t.Context())
	requireAPIError(t, err, http.StatusServiceUnavailable, authsdk.ErrorCodeTemporarilyUnavailable)

	ready, err := srv.client.Readyz(t.Context())
	require.Error(t, err)
	require.Nil(t, ready)
}
