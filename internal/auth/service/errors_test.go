package service

import (
	"errors"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/stretchr/testify/require"
)

func TestErrorTaxonomy(t *testing.T) {
	t.Parallel()

	locked := error(&AccountLockedError{RetryAfter: 90 * time.Second})
	require.ErrorIs(t, locked, ErrAccountLocked)
	require.NotErrorIs(t, locked, ErrInvalidCredentials)
	require.Equal(t, "account_locked: retry after 1m30s", locked.Error())
	require.Equal(t, "account_locked", (&AccountLockedError{}).Error())

	unavailable := error(&AccountUnavailableError{State: domain.AccountSuspended})
	require.ErrorIs(t, unavailable, ErrAccountUnavailable)

	require.ErrorIs(t, ErrSessionNotFound, ErrInvalidToken)

	cause := errors.New("disk on fire")
	internal := internalErr("session.get", cause)
	require.ErrorIs(t, internal, ErrInternal)
	require.NotErrorIs(t, internal, cause)
	require.NotContains(t, internal.Error(), "disk")
}

func TestLockedError(t *testing.T) {
	t.Parallel()

	now := time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)
	until := now.Add(time.Minute)
	past := now.Add(-time.Minute)

	var le *AccountLockedError
	require.ErrorAs(t, lockedError(&until, now), &le)
	require.Equal(t, time.Minute, le.RetryAfter)

	require.ErrorAs(t, lockedError(&past, now), &le)
	require.Zero(t, le.RetryAfter)

	require.ErrorAs(t, lockedError(nil, now), &le)
	require.Zero(t, le.RetryAfter)
}
