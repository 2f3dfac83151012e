package domain_test

import (
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestAccountLockout(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	until := now.Add(time.Hour)

	tests := []struct {
		name      string
		acct      domain.Account
		lockedOut bool
		remaining time.Duration
		enabled   bool
	}{
		{"never locked", domain.Account{State: domain.AccountActive}, false, 0, true},
		{"window open", domain.Account{State: domain.AccountActive, LockedUntil: &until}, true, time.Hour, false},
		{"window closed", domain.Account{State: domain.AccountActive, LockedUntil: ptr(now)}, false, 0, true},
		{"suspended", domain.Account{State: domain.AccountSuspended}, false, 0, false},
		{"admin locked", domain.Account{State: domain.AccountLocked}, false, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			require.Equal(t, tt.lockedOut, tt.acct.LockedOut(now))
			require.Equal(t, tt.remaining, tt.acct.LockRemaining(now))
			require.Equal(t, tt.enabled, tt.acct.Enabled(now))
		})
	}
}

func TestSessionLive(t *testing.T) {
	now := time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)
	base := domain.Session{Active: true, ExpiresAt: now.Add(time.Minute)}
	require.True(t, base.Live(now))

	expired := base
	expired.ExpiresAt = now
	require.False(t, expired.Live(now))

	inactive := base
	inactive.Active = false
	require.False(t, inactive.Live(now))

	loggedOut := base
	loggedOut.LoggedOutAt = &now
	require.False(t, loggedOut.Live(now))
}

func TestPermissionsFor(t *testing.T) {
	require.Contains(t, domain.PermissionsFor(domain.RoleAdmin), domain.PermAccountsWrite)
	require.NotContains(t, domain.PermissionsFor(domain.RoleUser), domain.PermAccountsWrite)
	require.Empty(t, domain.PermissionsFor("GUEST"))

	p := domain.PermissionsFor(domain.RoleUser)
	p[0] = "mutated"
	require.Equal(t, domain.PermSessionsRead, domain.PermissionsFor(domain.RoleUser)[0])
}

func TestEnumValidity(t *testing.T) {
	require.True(t, domain.AccountPendingVerification.Valid())
	require.False(t, domain.AccountState("BANNED").Valid())
	require.True(t, domain.SessionAdmin.Valid())
	require.False(t, domain.SessionClass("TV").Valid())
	require.True(t, domain.RoleAdmin.Valid())
	require.False(t, domain.Role("ROOT").Valid())
}

func ptr[T any](v T) *T { return &v }
