package service

import (
	"context"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestAccountServiceCreate(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	acct := h.createAccount(t, "alice")
	require.Equal(t, domain.AccountActive, acct.State)
	require.Equal(t, domain.RoleUser, acct.Role)
	require.True(t, h.auth.Credentials.Verify(testPassword, acct.PasswordHash))

	t.Run("duplicate username", func(t *testing.T) {
		_, err := h.accounts.Create(ctx, NewAccount{Username: "alice", Email: "other@example.com", Password: testPassword})
		require.ErrorIs(t, err, ErrAccountExists)
	})

	t.Run("duplicate email", func(t *testing.T) {
		_, err := h.accounts.Create(ctx, NewAccount{Username: "alice2", Email: "alice@example.com", Password: testPassword})
		require.ErrorIs(t, err, ErrAccountExists)
	})

	invalid := []NewAccount{
		{Username: "al", Email: "al@example.com", Password: testPassword},
		{Username: "has space", Email: "x@example.com", Password: testPassword},
		{Username: "carol", Email: "not-an-email", Password: testPassword},
		{Username: "carol", Email: "Carol <carol@example.com>", Password: testPassword},
		{Username: "carol", Email: "carol@example.com", Password: "short"},
		{Username: "carol", Email: "carol@example.com", Password: testPassword, Role: "ROOT"},
	}
	for _, in := range invalid {
		_, err := h.accounts.Create(ctx, in)
		require.ErrorIs(t, err, ErrInvalidInput, "%+v", in)
	}
}

func TestAccountServiceAdmin(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.createAccount(t, "alice")

	require.NoError(t, h.accounts.SetEmailVerified(ctx, acct.ID, true))
	require.NoError(t, h.accounts.SetTwoFactor(ctx, acct.ID, true))
	got, err := h.accounts.Get(ctx, acct.ID)
	require.NoError(t, err)
	require.True(t, got.EmailVerified)
	require.True(t, got.TwoFactorEnabled)

	require.ErrorIs(t, h.accounts.SetState(ctx, acct.ID, "BANISHED"), ErrInvalidInput)

	for _, err := range []error{
		h.accounts.SetState(ctx, "missing", domain.AccountSuspended),
		h.accounts.Unlock(ctx, "missing"),
		h.accounts.SetTwoFactor(ctx, "missing", false),
	} {
		require.ErrorIs(t, err, ErrNoSuchAccount)
	}
	_, err = h.accounts.Get(ctx, "missing")
	require.ErrorIs(t, err, ErrNoSuchAccount)
}

func TestAccountServiceUnlock(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	acct := h.createAccount(t, "alice")

	for range DefaultLockoutThreshold {
		_ = wrongLogin(h, "alice")
	}
	require.True(t, h.reload(t, acct.ID).LockedOut(h.clock.Now()))

	require.NoError(t, h.accounts.Unlock(ctx, acct.ID))
	got := h.reload(t, acct.ID)
	require.Zero(t, got.FailedAttempts)
	require.Nil(t, got.LockedUntil)

	h.login(t, "alice")
}

func TestAccountServiceBoundsStoreCalls(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	st := newObservedStore(h.store)
	svc := &AccountService{
		Store:        st,
		Credentials:  h.auth.Credentials,
		StoreTimeout: 2 * time.Second,
		Now:          h.clock.Now,
	}

	acct, err := svc.Create(ctx, NewAccount{Username: "bounded", Email: "bounded@example.com", Password: testPassword})
	require.NoError(t, err)
	_, err = svc.Get(ctx, acct.ID)
	require.NoError(t, err)
	require.NoError(t, svc.SetState(ctx, acct.ID, domain.AccountSuspended))
	require.NoError(t, svc.Unlock(ctx, acct.ID))
	require.NoError(t, svc.SetTwoFactor(ctx, acct.ID, true))
	require.NoError(t, svc.SetEmailVerified(ctx, acct.ID, true))

	seen := st.accounts.seen()
	require.Len(t, seen, 6)
	for i, remaining := range seen {
		require.Positive(t, remaining, "call %d had no deadline", i)
		require.LessOrEqual(t, remaining, 2*time.Second, "call %d", i)
	}
}
