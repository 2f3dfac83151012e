package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/idx"
	"github.com/aussiebroadwan/bookshelf/pkg/jwtx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

// AuthService is the authentication orchestrator: login, refresh, logout
// and access-token validation.
type AuthService struct {
	Store       store.Store
	Sessions    *SessionStore
	Codec       *TokenCodec
	Credentials *CredentialVerifier
	Guard       AccountGuard
	Metrics     *Metrics

	AccessTTL    time.Duration
	RefreshTTL   time.Duration
	StoreTimeout time.Duration

	// Now is the clock. Defaults to time.Now.
	Now func() time.Time
}

func (s *AuthService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *AuthService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedCtx(ctx, s.StoreTimeout)
}

// boundedCtx limits a single store call to timeout, or DefaultStoreTimeout
// when timeout is unset.
func boundedCtx(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout <= 0 {
		timeout = DefaultStoreTimeout
	}
	return context.WithTimeout(ctx, timeout)
}

func (s *AuthService) getAccount(ctx context.Context, id string) (domain.Account, error) {
	ctx, cancel := s.storeCtx(ctx)
	defer cancel()
	return s.Store.Accounts().GetAccountByID(ctx, id)
}

// Login authenticates identifier (username or email) with secret.
//
// On a wrong secret the failed attempt is committed before Login returns,
// independently of the caller's context. On success the counter is reset and
// exactly one new session is created, atomically. An account with two-factor
// enabled gets a step-up result and no session.
func (s *AuthService) Login(
	ctx context.Context,
	identifier, secret string,
	meta domain.SessionMetadata,
) (domain.LoginResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	if meta.SessionClass == "" {
		meta.SessionClass = domain.SessionWeb
	}
	if !meta.SessionClass.Valid() {
		return domain.LoginResult{}, ErrInvalidInput
	}
	if identifier == "" || secret == "" {
		s.Metrics.login(ctx, "invalid_credentials")
		return domain.LoginResult{}, ErrInvalidCredentials
	}

	lookupCtx, cancel := s.storeCtx(ctx)
	acct, err := s.Store.Accounts().GetAccountByIdentifier(lookupCtx, identifier)
	cancel()
	if errors.Is(err, store.ErrNotFound) {
		s.Credentials.VerifyUnknown(secret)
		s.Metrics.login(ctx, "invalid_credentials")
		return domain.LoginResult{}, ErrInvalidCredentials
	}
	if err != nil {
		l.Error("login account lookup failed", "err", err)
		s.Metrics.login(ctx, "error")
		return domain.LoginResult{}, internalErr("account.lookup", err)
	}
	l = l.With(slog.String("account_id", acct.ID))

	if err := stateGate(acct.State); err != nil {
		l.Info("login refused by account state", "state", acct.State)
		s.Metrics.login(ctx, outcomeOf(err))
		return domain.LoginResult{}, err
	}
	if st := s.Guard.Evaluate(acct, now); st.Locked {
		l.Info("login refused during lockout", "locked_until", st.Until)
		s.Metrics.login(ctx, "locked")
		return domain.LoginResult{}, &AccountLockedError{RetryAfter: st.RetryAfter(now)}
	}

	if !s.Credentials.Verify(secret, acct.PasswordHash) {
		return domain.LoginResult{}, s.recordFailure(ctx, l, acct.ID, now)
	}

	if acct.TwoFactorEnabled {
		l.Info("login requires second factor")
		s.Metrics.login(ctx, "step_up")
		return domain.LoginResult{StepUpRequired: true, Account: acct.Summary()}, nil
	}

	// Upgrade legacy hashes while the plaintext is at hand. Hash outside the
	// transaction; argon2 is deliberately slow.
	var rehash string
	if s.Credentials.NeedsRehash(acct.PasswordHash) {
		if rehash, err = s.Credentials.Hash(secret); err != nil {
			l.Warn("password rehash failed", "err", err)
			rehash = ""
		}
	}

	sessionID := idx.NewAt(now).String()
	tokens, err := s.Codec.IssuePair(TokenSubject{
		AccountID:    acct.ID,
		SessionID:    sessionID,
		Role:         acct.Role,
		SessionClass: meta.SessionClass,
	}, s.AccessTTL, s.RefreshTTL, now)
	if err != nil {
		l.Error("token issue failed", "err", err)
		s.Metrics.login(ctx, "error")
		return domain.LoginResult{}, internalErr("token.issue", err)
	}

	txCtx, cancel := s.storeCtx(ctx)
	defer cancel()
	err = s.Store.WithTx(txCtx, func(tx store.Tx) error {
		if err := tx.Accounts().RecordSuccessfulLogin(txCtx, acct.ID, meta.IPAddress, now); err != nil {
			return err
		}
		if rehash != "" {
			if err := tx.Accounts().UpdatePasswordHash(txCtx, acct.ID, rehash, now); err != nil {
				return err
			}
		}
		_, err := s.Sessions.In(tx).Create(txCtx, sessionID, acct.ID, tokens, meta, now)
		return err
	})
	if errors.Is(err, store.ErrConflict) {
		// The account was locked or disabled between the read and the write.
		err = s.explainConflict(ctx, acct.ID, now)
		s.Metrics.login(ctx, outcomeOf(err))
		return domain.LoginResult{}, err
	}
	if err != nil {
		l.Error("login commit failed", "err", causeOf(err))
		s.Metrics.login(ctx, "error")
		if errors.Is(err, ErrInternal) {
			return domain.LoginResult{}, err
		}
		return domain.LoginResult{}, internalErr("login.commit", err)
	}

	l.Info("login succeeded", "session_id", sessionID, "session_class", meta.SessionClass)
	s.Metrics.login(ctx, "success")
	return domain.LoginResult{
		SessionID: sessionID,
		Tokens:    tokens,
		Account:   acct.Summary(),
	}, nil
}

// recordFailure commits the failed attempt even if ctx has been cancelled,
// then picks the error the caller sees.
func (s *AuthService) recordFailure(ctx context.Context, l *slog.Logger, accountID string, now time.Time) error {
	bgCtx, cancel := s.storeCtx(context.WithoutCancel(ctx))
	defer cancel()

	st, err := s.Guard.RecordFailure(bgCtx, s.Store.Accounts(), accountID, now)
	if err != nil {
		l.Error("failed to record failed login", "err", err)
		s.Metrics.login(ctx, "error")
		return internalErr("account.record_failure", err)
	}

	switch {
	case st.JustLocked:
		l.Warn("account locked after repeated failures", "attempts", st.Attempts, "locked_until", st.Until)
		s.Metrics.lockout(ctx)
		s.Metrics.login(ctx, "locked")
		return &AccountLockedError{RetryAfter: st.RetryAfter(now)}
	case st.Locked:
		s.Metrics.login(ctx, "locked")
		return &AccountLockedError{RetryAfter: st.RetryAfter(now)}
	default:
		l.Info("login failed", "attempts", st.Attempts)
		s.Metrics.login(ctx, "invalid_credentials")
		return ErrInvalidCredentials
	}
}

func (s *AuthService) explainConflict(ctx context.Context, accountID string, now time.Time) error {
	acct, err := s.getAccount(ctx, accountID)
	if err != nil {
		return internalErr("account.reload", err)
	}
	if err := stateGate(acct.State); err != nil {
		return err
	}
	if acct.LockedOut(now) {
		return lockedError(acct.LockedUntil, now)
	}
	return internalErr("login.commit", store.ErrConflict)
}

// stateGate maps administrative states that forbid login onto errors.
func stateGate(state domain.AccountState) error {
	switch state {
	case domain.AccountActive:
		return nil
	case domain.AccountLocked:
		return &AccountLockedError{}
	default:
		return &AccountUnavailableError{State: state}
	}
}

// Refresh rotates the token pair of the session bound to refreshToken. The
// old refresh token stops working the moment the rotation commits.
func (s *AuthService) Refresh(ctx context.Context, refreshToken string) (domain.RefreshResult, error) {
	now := s.now()
	l := slogx.FromContext(ctx)

	claims, err := s.Codec.Verify(refreshToken, jwtx.UseRefresh)
	if err != nil {
		l.Debug("refresh token rejected", "err", err)
		s.Metrics.refresh(ctx, "invalid")
		return domain.RefreshResult{}, ErrInvalidToken
	}

	sess, err := s.Sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		return domain.RefreshResult{}, s.refreshFailed(ctx, l, err)
	}
	if sess.ID != claims.SID || sess.AccountID != claims.Subject || !sess.Live(now) {
		s.Metrics.refresh(ctx, "invalid")
		return domain.RefreshResult{}, ErrInvalidToken
	}

	acct, err := s.getAccount(ctx, sess.AccountID)
	if errors.Is(err, store.ErrNotFound) {
		s.Metrics.refresh(ctx, "invalid")
		return domain.RefreshResult{}, ErrInvalidToken
	}
	if err != nil {
		return domain.RefreshResult{}, s.refreshFailed(ctx, l, internalErr("account.get", err))
	}
	if !acct.Enabled(now) {
		l.Info("refresh refused for disabled account", "account_id", acct.ID, "state", acct.State)
		s.Metrics.refresh(ctx, "invalid")
		return domain.RefreshResult{}, ErrInvalidToken
	}

	tokens, err := s.Codec.IssuePair(TokenSubject{
		AccountID:    acct.ID,
		SessionID:    sess.ID,
		Role:         acct.Role,
		SessionClass: sess.SessionClass,
	}, s.AccessTTL, s.RefreshTTL, now)
	if err != nil {
		return domain.RefreshResult{}, s.refreshFailed(ctx, l, internalErr("token.issue", err))
	}

	if err := s.Sessions.Rotate(ctx, sess.ID, refreshToken, tokens, now); err != nil {
		return domain.RefreshResult{}, s.refreshFailed(ctx, l, err)
	}

	s.Metrics.refresh(ctx, "success")
	return domain.RefreshResult{SessionID: sess.ID, Tokens: tokens}, nil
}

func (s *AuthService) refreshFailed(ctx context.Context, l *slog.Logger, err error) error {
	if errors.Is(err, ErrInvalidToken) {
		s.Metrics.refresh(ctx, "invalid")
		return ErrInvalidToken
	}
	l.Error("refresh failed", "err", causeOf(err))
	s.Metrics.refresh(ctx, "error")
	return err
}

// Logout ends the session accessToken belongs to. Logging out twice succeeds.
//
// The session is found by the access token's fingerprint, falling back to
// its session claim so a token minted before the last rotation still works.
// A verified token whose session row housekeeping already removed counts as
// logged out.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	now := s.now()

	claims, err := s.Codec.Verify(accessToken, jwtx.UseAccess)
	if err != nil {
		return ErrInvalidToken
	}

	sess, err := s.Sessions.FindByAccessToken(ctx, accessToken)
	if errors.Is(err, ErrSessionNotFound) && claims.SID != "" {
		sess, err = s.Sessions.FindByID(ctx, claims.SID)
	}
	if errors.Is(err, ErrSessionNotFound) {
		slogx.FromContext(ctx).Debug("logout of a reaped session", "account_id", claims.Subject, "session_id", claims.SID)
		return nil
	}
	if err != nil {
		return publicErr(err)
	}
	if sess.AccountID != claims.Subject {
		return ErrInvalidToken
	}

	if err := s.Sessions.Invalidate(ctx, sess.ID, now); err != nil {
		return publicErr(err)
	}
	if sess.Active {
		s.Metrics.sessionsInvalidated(ctx, "logout", 1)
	}
	slogx.FromContext(ctx).Info("logged out", "account_id", sess.AccountID, "session_id", sess.ID)
	return nil
}

// LogoutSession ends one of accountID's own sessions by id. Sessions of other
// accounts are reported as not found.
func (s *AuthService) LogoutSession(ctx context.Context, accountID, sessionID string) error {
	sess, err := s.Sessions.FindByID(ctx, sessionID)
	if err != nil {
		return err
	}
	if sess.AccountID != accountID {
		return ErrSessionNotFound
	}
	if err := s.Sessions.Invalidate(ctx, sess.ID, s.now()); err != nil {
		return err
	}
	if sess.Active {
		s.Metrics.sessionsInvalidated(ctx, "logout", 1)
	}
	return nil
}

// LogoutAll ends every session of the token's account and returns how many
// were still active.
//
// Access tokens already issued stay valid until they expire; only a change of
// account state revokes them early.
func (s *AuthService) LogoutAll(ctx context.Context, accessToken string) (int64, error) {
	claims, err := s.Codec.Verify(accessToken, jwtx.UseAccess)
	if err != nil {
		return 0, ErrInvalidToken
	}
	n, err := s.Sessions.InvalidateAll(ctx, claims.Subject, s.now())
	if err != nil {
		return 0, err
	}
	s.Metrics.sessionsInvalidated(ctx, "logout_all", n)
	slogx.FromContext(ctx).Info("logged out everywhere", "account_id", claims.Subject, "sessions", n)
	return n, nil
}

// LogoutOthers ends every session of the token's account except the one the
// token belongs to.
func (s *AuthService) LogoutOthers(ctx context.Context, accessToken string) (int64, error) {
	claims, err := s.Codec.Verify(accessToken, jwtx.UseAccess)
	if err != nil || claims.SID == "" {
		return 0, ErrInvalidToken
	}
	n, err := s.Sessions.InvalidateAllExcept(ctx, claims.Subject, claims.SID, s.now())
	if err != nil {
		return 0, err
	}
	s.Metrics.sessionsInvalidated(ctx, "logout_others", n)
	slogx.FromContext(ctx).Info("logged out other sessions", "account_id", claims.Subject, "sessions", n)
	return n, nil
}

// ValidateAccessToken verifies accessToken and re-checks that its account is
// still ACTIVE and outside a lockout window. Session state is not consulted;
// the session's last-accessed time is bumped on a best-effort basis.
func (s *AuthService) ValidateAccessToken(ctx context.Context, accessToken string) (domain.Principal, error) {
	now := s.now()

	claims, err := s.Codec.Verify(accessToken, jwtx.UseAccess)
	if err != nil {
		return domain.Principal{}, ErrInvalidToken
	}

	acct, err := s.getAccount(ctx, claims.Subject)
	if errors.Is(err, store.ErrNotFound) {
		return domain.Principal{}, ErrInvalidToken
	}
	if err != nil {
		slogx.FromContext(ctx).Error("validate account lookup failed", "err", err)
		return domain.Principal{}, internalErr("account.get", err)
	}
	if !acct.Enabled(now) {
		return domain.Principal{}, ErrInvalidToken
	}

	if claims.SID != "" {
		if err := s.Sessions.Touch(ctx, claims.SID, now); err != nil {
			slogx.FromContext(ctx).Debug("session touch failed", "session_id", claims.SID, "err", causeOf(err))
		}
	}

	return domain.Principal{
		AccountID:     acct.ID,
		SessionID:     claims.SID,
		Role:          acct.Role,
		SessionClass:  domain.SessionClass(claims.SessionClass),
		Permissions:   domain.PermissionsFor(acct.Role),
		EmailVerified: acct.EmailVerified,
		ExpiresAt:     claims.Expiry(),
	}, nil
}

// ListSessions returns accountID's sessions, flagging currentSessionID.
func (s *AuthService) ListSessions(ctx context.Context, accountID, currentSessionID string) ([]domain.SessionView, error) {
	now := s.now()

	acct, err := s.getAccount(ctx, accountID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, ErrInvalidToken
	}
	if err != nil {
		return nil, internalErr("account.get", err)
	}

	list, err := s.Sessions.List(ctx, accountID)
	if err != nil {
		return nil, err
	}

	out := make([]domain.SessionView, 0, len(list))
	for _, sess := range list {
		out = append(out, domain.SessionView{
			Session: sess,
			Current: sess.ID == currentSessionID,
			Valid:   sess.Live(now) && !acct.LockedOut(now),
		})
	}
	return out, nil
}

// publicErr collapses session lookups into the token failure callers see.
func publicErr(err error) error {
	if errors.Is(err, ErrInvalidToken) {
		return ErrInvalidToken
	}
	return err
}

func causeOf(err error) error {
	var ie *InternalError
	if errors.As(err, &ie) && ie.cause != nil {
		return ie.cause
	}
	return err
}

func outcomeOf(err error) string {
	switch {
	case errors.Is(err, ErrAccountLocked):
		return "locked"
	case errors.Is(err, ErrAccountUnavailable):
		return "unavailable"
	case errors.Is(err, ErrInvalidCredentials):
		return "invalid_credentials"
	default:
		return "error"
	}
}
