// Package storetest is a conformance suite run against every store driver.
package storetest

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/idx"
	"github.com/stretchr/testify/require"
)

// Opener returns an empty, migrated store. The suite closes it.
type Opener func(t *testing.T) store.Store

var epoch = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

// Run executes the suite.
func Run(t *testing.T, open Opener) {
	t.Run("Accounts", func(t *testing.T) { testAccounts(t, open) })
	t.Run("Lockout", func(t *testing.T) { testLockout(t, open) })
	t.Run("ConcurrentFailures", func(t *testing.T) { testConcurrentFailures(t, open) })
	t.Run("Sessions", func(t *testing.T) { testSessions(t, open) })
	t.Run("Rotation", func(t *testing.T) { testRotation(t, open) })
	t.Run("Invalidation", func(t *testing.T) { testInvalidation(t, open) })
	t.Run("Housekeeping", func(t *testing.T) { testHousekeeping(t, open) })
	t.Run("Transactions", func(t *testing.T) { testTransactions(t, open) })
}

func openStore(t *testing.T, open Opener) store.Store {
	t.Helper()
	s := open(t)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// NewAccount returns an ACTIVE USER account named username.
func NewAccount(username string) domain.Account {
	return domain.Account{
		ID:           idx.NewAt(epoch).String(),
		Username:     username,
		Email:        username + "@example.com",
		PasswordHash: "$argon2id$placeholder",
		Role:         domain.RoleUser,
		State:        domain.AccountActive,
		CreatedAt:    epoch,
		UpdatedAt:    epoch,
	}
}

func mustCreateAccount(t *testing.T, s store.Store, username string) domain.Account {
	t.Helper()
	a := NewAccount(username)
	require.NoError(t, s.Accounts().CreateAccount(context.Background(), a))
	return a
}

func newSession(accountID string, now time.Time) domain.Session {
	id := idx.New().String()
	return domain.Session{
		ID:               id,
		AccountID:        accountID,
		AccessTokenHash:  "at-" + id,
		RefreshTokenHash: "rt-" + id,
		IPAddress:        "203.0.113.9",
		UserAgent:        "storetest",
		Device:           "laptop",
		SessionClass:     domain.SessionWeb,
		Active:           true,
		ExpiresAt:        now.Add(time.Hour),
		LastAccessedAt:   now,
		CreatedAt:        now,
	}
}

func mustCreateSession(t *testing.T, s store.Store, accountID string, now time.Time) domain.Session {
	t.Helper()
	sess := newSession(accountID, now)
	require.NoError(t, s.Sessions().CreateSession(context.Background(), sess))
	return sess
}

func testAccounts(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)

	empty, err := s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.True(t, empty)

	alice := mustCreateAccount(t, s, "alice")

	empty, err = s.Accounts().IsEmpty(ctx)
	require.NoError(t, err)
	require.False(t, empty)

	t.Run("lookup by id, username and email", func(t *testing.T) {
		byID, err := s.Accounts().GetAccountByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "alice", byID.Username)
		require.Equal(t, domain.AccountActive, byID.State)
		require.Equal(t, domain.RoleUser, byID.Role)
		require.True(t, epoch.Equal(byID.CreatedAt))
		require.Nil(t, byID.LockedUntil)

		byName, err := s.Accounts().GetAccountByIdentifier(ctx, "alice")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byName.ID)

		byEmail, err := s.Accounts().GetAccountByIdentifier(ctx, "alice@example.com")
		require.NoError(t, err)
		require.Equal(t, alice.ID, byEmail.ID)
	})

	t.Run("identifiers match exactly", func(t *testing.T) {
		_, err := s.Accounts().GetAccountByIdentifier(ctx, "ALICE")
		require.ErrorIs(t, err, store.ErrNotFound)
		_, err = s.Accounts().GetAccountByID(ctx, "missing")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("username wins over another account's email", func(t *testing.T) {
		odd := NewAccount("carol@example.com")
		odd.Email = "carol-real@example.com"
		require.NoError(t, s.Accounts().CreateAccount(ctx, odd))

		carol := NewAccount("carol")
		carol.ID = idx.New().String()
		carol.Email = "carol@example.com"
		require.NoError(t, s.Accounts().CreateAccount(ctx, carol))

		got, err := s.Accounts().GetAccountByIdentifier(ctx, "carol@example.com")
		require.NoError(t, err)
		require.Equal(t, odd.ID, got.ID)
	})

	t.Run("duplicates are rejected", func(t *testing.T) {
		dup := NewAccount("alice")
		dup.ID = idx.New().String()
		dup.Email = "other@example.com"
		require.ErrorIs(t, s.Accounts().CreateAccount(ctx, dup), store.ErrAlreadyExists)

		dup = NewAccount("someone")
		dup.Email = alice.Email
		require.ErrorIs(t, s.Accounts().CreateAccount(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("attribute updates", func(t *testing.T) {
		now := epoch.Add(time.Minute)
		require.NoError(t, s.Accounts().UpdatePasswordHash(ctx, alice.ID, "$argon2id$new", now))
		require.NoError(t, s.Accounts().UpdateAccountState(ctx, alice.ID, domain.AccountSuspended, now))
		require.NoError(t, s.Accounts().SetTwoFactor(ctx, alice.ID, true, now))
		require.NoError(t, s.Accounts().SetEmailVerified(ctx, alice.ID, true, now))

		got, err := s.Accounts().GetAccountByID(ctx, alice.ID)
		require.NoError(t, err)
		require.Equal(t, "$argon2id$new", got.PasswordHash)
		require.Equal(t, domain.AccountSuspended, got.State)
		require.True(t, got.TwoFactorEnabled)
		require.True(t, got.EmailVerified)
		require.True(t, now.Equal(got.UpdatedAt))

		require.ErrorIs(t, s.Accounts().UpdateAccountState(ctx, "missing", domain.AccountActive, now), store.ErrNotFound)
		require.ErrorIs(t, s.Accounts().SetTwoFactor(ctx, "missing", true, now), store.ErrNotFound)
	})
}

func testLockout(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "bob")

	const threshold = 3
	now := epoch
	lockUntil := now.Add(time.Hour)

	for i := 1; i < threshold; i++ {
		res, err := s.Accounts().RecordFailedLogin(ctx, a.ID, threshold, lockUntil, now)
		require.NoError(t, err)
		require.True(t, res.Counted)
		require.Equal(t, i, res.Attempts)
		require.Nil(t, res.LockedUntil)
	}

	res, err := s.Accounts().RecordFailedLogin(ctx, a.ID, threshold, lockUntil, now)
	require.NoError(t, err)
	require.True(t, res.Counted)
	require.Equal(t, threshold, res.Attempts)
	require.NotNil(t, res.LockedUntil)
	require.True(t, lockUntil.Equal(*res.LockedUntil))

	t.Run("attempts inside the window are not counted", func(t *testing.T) {
		res, err := s.Accounts().RecordFailedLogin(ctx, a.ID, threshold, now.Add(2*time.Hour), now.Add(time.Minute))
		require.NoError(t, err)
		require.False(t, res.Counted)
		require.Equal(t, threshold, res.Attempts)
		require.True(t, lockUntil.Equal(*res.LockedUntil))
	})

	t.Run("success is refused inside the window", func(t *testing.T) {
		err := s.Accounts().RecordSuccessfulLogin(ctx, a.ID, "198.51.100.1", now.Add(time.Minute))
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("a lapsed window restarts the counter", func(t *testing.T) {
		later := lockUntil.Add(time.Second)
		res, err := s.Accounts().RecordFailedLogin(ctx, a.ID, threshold, later.Add(time.Hour), later)
		require.NoError(t, err)
		require.True(t, res.Counted)
		require.Equal(t, 1, res.Attempts)
		require.Nil(t, res.LockedUntil)
	})

	t.Run("success resets and stamps the login", func(t *testing.T) {
		at := lockUntil.Add(2 * time.Second)
		require.NoError(t, s.Accounts().RecordSuccessfulLogin(ctx, a.ID, "198.51.100.1", at))

		got, err := s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Zero(t, got.FailedAttempts)
		require.Nil(t, got.LockedUntil)
		require.NotNil(t, got.LastLoginAt)
		require.True(t, at.Equal(*got.LastLoginAt))
		require.Equal(t, "198.51.100.1", got.LastLoginIP)
	})

	t.Run("success requires an active account", func(t *testing.T) {
		require.NoError(t, s.Accounts().UpdateAccountState(ctx, a.ID, domain.AccountSuspended, now))
		err := s.Accounts().RecordSuccessfulLogin(ctx, a.ID, "", now.Add(3*time.Hour))
		require.ErrorIs(t, err, store.ErrConflict)
	})

	t.Run("clear is unconditional", func(t *testing.T) {
		_, err := s.Accounts().RecordFailedLogin(ctx, a.ID, 1, now.Add(5*time.Hour), now.Add(4*time.Hour))
		require.NoError(t, err)
		require.NoError(t, s.Accounts().ClearFailedLogins(ctx, a.ID, now.Add(4*time.Hour)))

		got, err := s.Accounts().GetAccountByID(ctx, a.ID)
		require.NoError(t, err)
		require.Zero(t, got.FailedAttempts)
		require.Nil(t, got.LockedUntil)
	})

	t.Run("unknown account", func(t *testing.T) {
		_, err := s.Accounts().RecordFailedLogin(ctx, "missing", threshold, lockUntil, now)
		require.ErrorIs(t, err, store.ErrNotFound)
		require.ErrorIs(t, s.Accounts().RecordSuccessfulLogin(ctx, "missing", "", now), store.ErrNotFound)
	})
}

func testConcurrentFailures(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "dave")

	const (
		threshold = 5
		workers   = 25
	)
	lockUntil := epoch.Add(time.Hour)

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		counted int
		locks   int
	)
	for range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			res, err := s.Accounts().RecordFailedLogin(ctx, a.ID, threshold, lockUntil, epoch)
			if !assertNoError(t, err) {
				return
			}
			mu.Lock()
			defer mu.Unlock()
			if res.Counted {
				counted++
				if res.LockedUntil != nil {
					locks++
				}
			}
		}()
	}
	wg.Wait()

	require.Equal(t, threshold, counted)
	require.Equal(t, 1, locks, "exactly one attempt must cross the threshold")

	got, err := s.Accounts().GetAccountByID(ctx, a.ID)
	require.NoError(t, err)
	require.Equal(t, threshold, got.FailedAttempts)
	require.True(t, got.LockedOut(epoch))
}

// assertNoError is safe to call from goroutines other than the test's own.
func assertNoError(t *testing.T, err error) bool {
	if err != nil {
		t.Errorf("unexpected error: %v", err)
		return false
	}
	return true
}

func testSessions(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "erin")

	first := mustCreateSession(t, s, a.ID, epoch)
	second := mustCreateSession(t, s, a.ID, epoch.Add(time.Minute))

	t.Run("lookups", func(t *testing.T) {
		got, err := s.Sessions().GetSessionByID(ctx, first.ID)
		require.NoError(t, err)
		require.Equal(t, a.ID, got.AccountID)
		require.Equal(t, domain.SessionWeb, got.SessionClass)
		require.Equal(t, "laptop", got.Device)
		require.True(t, got.Active)
		require.Nil(t, got.LoggedOutAt)
		require.True(t, first.ExpiresAt.Equal(got.ExpiresAt))

		got, err = s.Sessions().GetSessionByAccessTokenHash(ctx, first.AccessTokenHash)
		require.NoError(t, err)
		require.Equal(t, first.ID, got.ID)

		got, err = s.Sessions().GetSessionByRefreshTokenHash(ctx, second.RefreshTokenHash)
		require.NoError(t, err)
		require.Equal(t, second.ID, got.ID)

		_, err = s.Sessions().GetSessionByRefreshTokenHash(ctx, "nope")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("list is newest first", func(t *testing.T) {
		list, err := s.Sessions().ListSessionsByAccount(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, list, 2)
		require.Equal(t, second.ID, list[0].ID)
		require.Equal(t, first.ID, list[1].ID)
	})

	t.Run("token fingerprints are unique", func(t *testing.T) {
		dup := newSession(a.ID, epoch)
		dup.RefreshTokenHash = first.RefreshTokenHash
		require.ErrorIs(t, s.Sessions().CreateSession(ctx, dup), store.ErrAlreadyExists)

		dup = newSession(a.ID, epoch)
		dup.AccessTokenHash = first.AccessTokenHash
		require.ErrorIs(t, s.Sessions().CreateSession(ctx, dup), store.ErrAlreadyExists)
	})

	t.Run("touch only moves forward", func(t *testing.T) {
		later := epoch.Add(10 * time.Minute)
		require.NoError(t, s.Sessions().TouchSession(ctx, first.ID, later))
		require.NoError(t, s.Sessions().TouchSession(ctx, first.ID, epoch))

		got, err := s.Sessions().GetSessionByID(ctx, first.ID)
		require.NoError(t, err)
		require.True(t, later.Equal(got.LastAccessedAt))
	})

	t.Run("sessions follow their account", func(t *testing.T) {
		other := mustCreateAccount(t, s, "frank")
		list, err := s.Sessions().ListSessionsByAccount(ctx, other.ID)
		require.NoError(t, err)
		require.Empty(t, list)
	})
}

func testRotation(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "gina")
	sess := mustCreateSession(t, s, a.ID, epoch)

	now := epoch.Add(5 * time.Minute)
	rotate := store.RotateSession{
		SessionID:      sess.ID,
		OldRefreshHash: sess.RefreshTokenHash,
		NewAccessHash:  "at-2",
		NewRefreshHash: "rt-2",
		ExpiresAt:      now.Add(2 * time.Hour),
		Now:            now,
	}
	require.NoError(t, s.Sessions().RotateSessionTokens(ctx, rotate))

	got, err := s.Sessions().GetSessionByRefreshTokenHash(ctx, "rt-2")
	require.NoError(t, err)
	require.Equal(t, sess.ID, got.ID)
	require.Equal(t, "at-2", got.AccessTokenHash)
	require.True(t, rotate.ExpiresAt.Equal(got.ExpiresAt))

	t.Run("the old refresh fingerprint is gone", func(t *testing.T) {
		_, err := s.Sessions().GetSessionByRefreshTokenHash(ctx, sess.RefreshTokenHash)
		require.ErrorIs(t, err, store.ErrNotFound)

		replay := rotate
		replay.NewAccessHash, replay.NewRefreshHash = "at-3", "rt-3"
		require.ErrorIs(t, s.Sessions().RotateSessionTokens(ctx, replay), store.ErrNotFound)
	})

	t.Run("expired sessions do not rotate", func(t *testing.T) {
		late := store.RotateSession{
			SessionID:      sess.ID,
			OldRefreshHash: "rt-2",
			NewAccessHash:  "at-4",
			NewRefreshHash: "rt-4",
			ExpiresAt:      rotate.ExpiresAt.Add(time.Hour),
			Now:            rotate.ExpiresAt,
		}
		require.ErrorIs(t, s.Sessions().RotateSessionTokens(ctx, late), store.ErrNotFound)
	})

	t.Run("logged out sessions do not rotate", func(t *testing.T) {
		require.NoError(t, s.Sessions().InvalidateSession(ctx, sess.ID, now))
		again := rotate
		again.OldRefreshHash, again.NewAccessHash, again.NewRefreshHash = "rt-2", "at-5", "rt-5"
		require.ErrorIs(t, s.Sessions().RotateSessionTokens(ctx, again), store.ErrNotFound)
	})

	t.Run("concurrent rotations have one winner", func(t *testing.T) {
		fresh := mustCreateSession(t, s, a.ID, epoch)

		var (
			wg   sync.WaitGroup
			mu   sync.Mutex
			wins int
		)
		for i := range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				err := s.Sessions().RotateSessionTokens(ctx, store.RotateSession{
					SessionID:      fresh.ID,
					OldRefreshHash: fresh.RefreshTokenHash,
					NewAccessHash:  fresh.ID + "-at-" + string(rune('a'+i)),
					NewRefreshHash: fresh.ID + "-rt-" + string(rune('a'+i)),
					ExpiresAt:      now.Add(time.Hour),
					Now:            now,
				})
				if err == nil {
					mu.Lock()
					wins++
					mu.Unlock()
					return
				}
				if !errors.Is(err, store.ErrNotFound) {
					t.Errorf("unexpected error: %v", err)
				}
			}()
		}
		wg.Wait()
		require.Equal(t, 1, wins)
	})
}

func testInvalidation(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "hank")
	b := mustCreateAccount(t, s, "ivy")

	s1 := mustCreateSession(t, s, a.ID, epoch)
	s2 := mustCreateSession(t, s, a.ID, epoch)
	s3 := mustCreateSession(t, s, a.ID, epoch)
	other := mustCreateSession(t, s, b.ID, epoch)

	t.Run("single invalidation is idempotent", func(t *testing.T) {
		first := epoch.Add(time.Minute)
		require.NoError(t, s.Sessions().InvalidateSession(ctx, s1.ID, first))
		require.NoError(t, s.Sessions().InvalidateSession(ctx, s1.ID, first.Add(time.Minute)))

		got, err := s.Sessions().GetSessionByID(ctx, s1.ID)
		require.NoError(t, err)
		require.False(t, got.Active)
		require.NotNil(t, got.LoggedOutAt)
		require.True(t, first.Equal(*got.LoggedOutAt))

		require.ErrorIs(t, s.Sessions().InvalidateSession(ctx, "missing", first), store.ErrNotFound)
	})

	t.Run("all but one", func(t *testing.T) {
		n, err := s.Sessions().InvalidateAccountSessionsExcept(ctx, a.ID, s3.ID, epoch.Add(2*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, n) // s2; s1 was already inactive

		got, err := s.Sessions().GetSessionByID(ctx, s3.ID)
		require.NoError(t, err)
		require.True(t, got.Active)

		got, err = s.Sessions().GetSessionByID(ctx, s2.ID)
		require.NoError(t, err)
		require.False(t, got.Active)
	})

	t.Run("all", func(t *testing.T) {
		n, err := s.Sessions().InvalidateAccountSessions(ctx, a.ID, epoch.Add(3*time.Minute))
		require.NoError(t, err)
		require.EqualValues(t, 1, n)

		n, err = s.Sessions().InvalidateAccountSessions(ctx, a.ID, epoch.Add(4*time.Minute))
		require.NoError(t, err)
		require.Zero(t, n)

		got, err := s.Sessions().GetSessionByID(ctx, other.ID)
		require.NoError(t, err)
		require.True(t, got.Active, "other accounts are untouched")
	})
}

func testHousekeeping(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)
	a := mustCreateAccount(t, s, "jack")

	live := mustCreateSession(t, s, a.ID, epoch.Add(48*time.Hour))
	expired := mustCreateSession(t, s, a.ID, epoch)
	loggedOut := mustCreateSession(t, s, a.ID, epoch.Add(47*time.Hour))
	require.NoError(t, s.Sessions().InvalidateSession(ctx, loggedOut.ID, epoch))

	n, err := s.Sessions().DeleteStaleSessions(ctx, epoch.Add(24*time.Hour))
	require.NoError(t, err)
	require.EqualValues(t, 2, n)

	_, err = s.Sessions().GetSessionByID(ctx, live.ID)
	require.NoError(t, err)
	_, err = s.Sessions().GetSessionByID(ctx, expired.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
	_, err = s.Sessions().GetSessionByID(ctx, loggedOut.ID)
	require.ErrorIs(t, err, store.ErrNotFound)
}

func testTransactions(t *testing.T, open Opener) {
	ctx := context.Background()
	s := openStore(t, open)

	t.Run("rollback on error", func(t *testing.T) {
		boom := errors.New("boom")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			require.NoError(t, tx.Accounts().CreateAccount(ctx, NewAccount("kate")))
			return boom
		})
		require.ErrorIs(t, err, boom)

		_, err = s.Accounts().GetAccountByIdentifier(ctx, "kate")
		require.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("commit on success", func(t *testing.T) {
		a := NewAccount("liam")
		err := s.WithTx(ctx, func(tx store.Tx) error {
			if err := tx.Accounts().CreateAccount(ctx, a); err != nil {
				return err
			}
			return tx.Sessions().CreateSession(ctx, newSession(a.ID, epoch))
		})
		require.NoError(t, err)

		list, err := s.Sessions().ListSessionsByAccount(ctx, a.ID)
		require.NoError(t, err)
		require.Len(t, list, 1)
	})

	t.Run("nested transactions are refused", func(t *testing.T) {
		err := s.WithTx(ctx, func(tx store.Tx) error {
			_, err := tx.Tx(ctx)
			require.Error(t, err)
			return tx.WithTx(ctx, func(store.Tx) error { return nil })
		})
		require.Error(t, err)
	})
}
