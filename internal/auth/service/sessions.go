package service

import (
	"context"
	"errors"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
)

// DefaultStoreTimeout bounds every individual store call.
const DefaultStoreTimeout = 3 * time.Second

// SessionStore adapts store.Sessions for the orchestrator: it fingerprints
// tokens, bounds each call with a timeout and translates storage errors into
// the service's failure taxonomy.
type SessionStore struct {
	repo    store.Sessions
	timeout time.Duration
}

func NewSessionStore(repo store.Sessions, timeout time.Duration) *SessionStore {
	return &SessionStore{repo: repo, timeout: timeout}
}

// In returns an adapter bound to tx. The transaction's context already
// carries the deadline, so no per-call timeout is added.
func (s *SessionStore) In(tx store.Tx) *SessionStore {
	return &SessionStore{repo: tx.Sessions()}
}

func (s *SessionStore) ctx(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *SessionStore) lookupErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrSessionNotFound
	}
	return internalErr(op, err)
}

// Create persists a new active session for tokens.
func (s *SessionStore) Create(
	ctx context.Context,
	id, accountID string,
	tokens domain.TokenPair,
	meta domain.SessionMetadata,
	now time.Time,
) (domain.Session, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	sess := domain.Session{
		ID:               id,
		AccountID:        accountID,
		AccessTokenHash:  cryptox.FingerprintToken(tokens.AccessToken),
		RefreshTokenHash: cryptox.FingerprintToken(tokens.RefreshToken),
		IPAddress:        meta.IPAddress,
		UserAgent:        meta.UserAgent,
		Device:           meta.Device,
		SessionClass:     meta.SessionClass,
		Active:           true,
		ExpiresAt:        tokens.RefreshExpiresAt,
		LastAccessedAt:   now,
		CreatedAt:        now,
	}
	if err := s.repo.CreateSession(ctx, sess); err != nil {
		// A fingerprint collision is as good as impossible; treat it like
		// any other failed write and let the caller retry.
		return domain.Session{}, internalErr("session.create", err)
	}
	return sess, nil
}

func (s *SessionStore) FindByID(ctx context.Context, id string) (domain.Session, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	sess, err := s.repo.GetSessionByID(ctx, id)
	if err != nil {
		return domain.Session{}, s.lookupErr("session.get", err)
	}
	return sess, nil
}

func (s *SessionStore) FindByAccessToken(ctx context.Context, token string) (domain.Session, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	sess, err := s.repo.GetSessionByAccessTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return domain.Session{}, s.lookupErr("session.by_access", err)
	}
	return sess, nil
}

func (s *SessionStore) FindByRefreshToken(ctx context.Context, token string) (domain.Session, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	sess, err := s.repo.GetSessionByRefreshTokenHash(ctx, cryptox.FingerprintToken(token))
	if err != nil {
		return domain.Session{}, s.lookupErr("session.by_refresh", err)
	}
	return sess, nil
}

func (s *SessionStore) List(ctx context.Context, accountID string) ([]domain.Session, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	list, err := s.repo.ListSessionsByAccount(ctx, accountID)
	if err != nil {
		return nil, internalErr("session.list", err)
	}
	return list, nil
}

// Rotate replaces the token pair of sessionID, provided oldRefresh is still
// the current refresh token. A lost race, a logged out or an expired session
// yields ErrSessionNotFound.
func (s *SessionStore) Rotate(
	ctx context.Context,
	sessionID, oldRefresh string,
	tokens domain.TokenPair,
	now time.Time,
) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	err := s.repo.RotateSessionTokens(ctx, store.RotateSession{
		SessionID:      sessionID,
		OldRefreshHash: cryptox.FingerprintToken(oldRefresh),
		NewAccessHash:  cryptox.FingerprintToken(tokens.AccessToken),
		NewRefreshHash: cryptox.FingerprintToken(tokens.RefreshToken),
		ExpiresAt:      tokens.RefreshExpiresAt,
		Now:            now,
	})
	if err != nil {
		return s.lookupErr("session.rotate", err)
	}
	return nil
}

// Invalidate ends one session. Ending an ended session succeeds.
func (s *SessionStore) Invalidate(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := s.repo.InvalidateSession(ctx, id, now); err != nil {
		return s.lookupErr("session.invalidate", err)
	}
	return nil
}

// InvalidateAll ends every session of accountID that exists at call time.
// Sessions created concurrently may survive.
func (s *SessionStore) InvalidateAll(ctx context.Context, accountID string, now time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.repo.InvalidateAccountSessions(ctx, accountID, now)
	if err != nil {
		return 0, internalErr("session.invalidate_all", err)
	}
	return n, nil
}

// InvalidateAllExcept is InvalidateAll sparing keepID.
func (s *SessionStore) InvalidateAllExcept(ctx context.Context, accountID, keepID string, now time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.repo.InvalidateAccountSessionsExcept(ctx, accountID, keepID, now)
	if err != nil {
		return 0, internalErr("session.invalidate_others", err)
	}
	return n, nil
}

// Touch records activity on a session. Callers treat failure as non-fatal.
func (s *SessionStore) Touch(ctx context.Context, id string, now time.Time) error {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	if err := s.repo.TouchSession(ctx, id, now); err != nil {
		return internalErr("session.touch", err)
	}
	return nil
}

// DeleteStale removes rows that ended before cutoff.
func (s *SessionStore) DeleteStale(ctx context.Context, cutoff time.Time) (int64, error) {
	ctx, cancel := s.ctx(ctx)
	defer cancel()

	n, err := s.repo.DeleteStaleSessions(ctx, cutoff)
	if err != nil {
		return 0, internalErr("session.delete_stale", err)
	}
	return n, nil
}
