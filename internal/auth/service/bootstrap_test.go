package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestBootstrap(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	svc := &BootstrapService{
		Store:       h.store,
		Credentials: h.auth.Credentials,
		Token:       "let-me-in",
		Now:         h.clock.Now,
	}
	data := domain.BootstrapData{
		AdminUsername: "admin",
		AdminEmail:    "admin@example.com",
		AdminPassword: testPassword,
	}

	done, err := svc.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.False(t, done)

	_, err = svc.Bootstrap(ctx, "wrong", data)
	require.ErrorIs(t, err, ErrBootstrapUnauthorized)

	_, err = svc.Bootstrap(ctx, "let-me-in", domain.BootstrapData{AdminUsername: "admin", AdminEmail: "nope", AdminPassword: testPassword})
	require.ErrorIs(t, err, ErrInvalidInput)

	admin, err := svc.Bootstrap(ctx, "let-me-in", data)
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, admin.Role)
	require.True(t, admin.EmailVerified)

	done, err = svc.IsBootstrapped(ctx)
	require.NoError(t, err)
	require.True(t, done)

	_, err = svc.Bootstrap(ctx, "let-me-in", data)
	require.ErrorIs(t, err, ErrBootstrapAlready)

	res := h.login(t, "admin")
	p, err := h.auth.ValidateAccessToken(ctx, res.Tokens.AccessToken)
	require.NoError(t, err)
	require.True(t, p.EmailVerified)
	require.Contains(t, p.Permissions, domain.PermAccountsWrite)
}

func TestBootstrapDisabledWithoutToken(t *testing.T) {
	h := newHarness(t)

	svc := &BootstrapService{Store: h.store, Credentials: h.auth.Credentials}
	_, err := svc.Bootstrap(context.Background(), "", domain.BootstrapData{})
	require.ErrorIs(t, err, ErrBootstrapUnauthorized)
}

func TestBootstrapStoreFailure(t *testing.T) {
	h := newHarness(t)
	st := newObservedStore(h.store)
	st.accounts.emptyErr = errors.New("database is locked")

	svc := &BootstrapService{
		Store:        st,
		Credentials:  h.auth.Credentials,
		Token:        "let-me-in",
		StoreTimeout: time.Second,
		Now:          h.clock.Now,
	}
	_, err := svc.Bootstrap(context.Background(), "let-me-in", domain.BootstrapData{
		AdminUsername: "admin",
		AdminEmail:    "admin@example.com",
		AdminPassword: testPassword,
	})
	require.ErrorIs(t, err, ErrInternal)
	require.NotErrorIs(t, err, ErrBootstrapAlready)

	seen := st.accounts.seen()
	require.Len(t, seen, 1)
	require.Positive(t, seen[0])

	// Nothing was written.
	empty, err := h.store.Accounts().IsEmpty(context.Background())
	require.NoError(t, err)
	require.True(t, empty)
}
