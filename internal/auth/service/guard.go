package service

import (
	"context"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
)

const (
	DefaultLockoutThreshold = 5
	DefaultLockoutDuration  = time.Hour
)

// LockoutPolicy configures the account guard.
type LockoutPolicy struct {
	Threshold int
	Duration  time.Duration
}

func DefaultLockoutPolicy() LockoutPolicy {
	return LockoutPolicy{Threshold: DefaultLockoutThreshold, Duration: DefaultLockoutDuration}
}

// LockState is the guard's view of an account at one instant.
type LockState struct {
	Attempts int
	Locked   bool
	Until    time.Time // zero unless Locked

	// JustLocked is set on the attempt that crossed the threshold.
	JustLocked bool
}

// RetryAfter is the time left until an attempt may be made again.
func (s LockState) RetryAfter(now time.Time) time.Duration {
	if !s.Locked || !now.Before(s.Until) {
		return 0
	}
	return s.Until.Sub(now)
}

// AccountGuard owns the failed-attempt counter and lockout window.
//
// An account is UNLOCKED(n) or LOCKED(until). A lapsed window reads as
// UNLOCKED(0) without any write; the next state changing event persists it.
// Transitions are applied by the store in one conditional update so they
// stay correct across concurrent requests and service replicas.
type AccountGuard struct {
	Policy LockoutPolicy
}

// Evaluate derives the lock state of a from its stored fields.
func (g AccountGuard) Evaluate(a domain.Account, now time.Time) LockState {
	if a.LockedOut(now) {
		return LockState{Attempts: a.FailedAttempts, Locked: true, Until: *a.LockedUntil}
	}
	if a.LockedUntil != nil {
		return LockState{}
	}
	return LockState{Attempts: a.FailedAttempts}
}

// RecordFailure counts one failed credential check against accountID.
func (g AccountGuard) RecordFailure(
	ctx context.Context,
	accounts store.Accounts,
	accountID string,
	now time.Time,
) (LockState, error) {
	res, err := accounts.RecordFailedLogin(ctx, accountID, g.Policy.Threshold, now.Add(g.Policy.Duration), now)
	if err != nil {
		return LockState{}, err
	}

	st := LockState{Attempts: res.Attempts}
	if res.LockedUntil != nil && now.Before(*res.LockedUntil) {
		st.Locked = true
		st.Until = *res.LockedUntil
		st.JustLocked = res.Counted
	}
	return st, nil
}
