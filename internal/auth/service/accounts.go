package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"regexp"
	"strings"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/idx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

const (
	MinPasswordLength = 8
	MaxPasswordLength = 128
)

var usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_.-]{3,32}$`)

// NewAccount is the input to AccountService.Create.
type NewAccount struct {
	Username      string
	Email         string
	Password      string
	Role          domain.Role
	EmailVerified bool
}

func (n NewAccount) validate() error {
	if !usernamePattern.MatchString(n.Username) {
		return fmt.Errorf("%w: username must be 3-32 characters of letters, digits, '.', '_' or '-'", ErrInvalidInput)
	}
	if strings.Contains(n.Username, "@") {
		return fmt.Errorf("%w: username must not look like an email", ErrInvalidInput)
	}
	if addr, err := mail.ParseAddress(n.Email); err != nil || addr.Address != n.Email {
		return fmt.Errorf("%w: email is not a valid address", ErrInvalidInput)
	}
	if l := len(n.Password); l < MinPasswordLength || l > MaxPasswordLength {
		return fmt.Errorf("%w: password must be %d-%d characters", ErrInvalidInput, MinPasswordLength, MaxPasswordLength)
	}
	if n.Role != "" && !n.Role.Valid() {
		return fmt.Errorf("%w: unknown role %q", ErrInvalidInput, n.Role)
	}
	return nil
}

// AccountService is the administrative side of account management. The
// authentication core only reads what it writes.
type AccountService struct {
	Store       store.Store
	Credentials *CredentialVerifier

	// StoreTimeout bounds every store call. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration

	Now func() time.Time
}

func (s *AccountService) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return boundedCtx(ctx, s.StoreTimeout)
}

func (s *AccountService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

// Create registers a new ACTIVE account.
func (s *AccountService) Create(ctx context.Context, in NewAccount) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	if err := in.validate(); err != nil {
		return domain.Account{}, err
	}
	if in.Role == "" {
		in.Role = domain.RoleUser
	}

	hash, err := s.Credentials.Hash(in.Password)
	if err != nil {
		l.Error("failed to hash password", slog.Any("error", err))
		return domain.Account{}, internalErr("password.hash", err)
	}

	now := s.now()
	acct := domain.Account{
		ID:            idx.NewAt(now).String(),
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  hash,
		Role:          in.Role,
		State:         domain.AccountActive,
		EmailVerified: in.EmailVerified,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Accounts().CreateAccount(sctx, acct); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return domain.Account{}, ErrAccountExists
		}
		l.Error("failed to create account", slog.Any("error", err))
		return domain.Account{}, internalErr("account.create", err)
	}

	l.Info("account created", slog.String("account_id", acct.ID), slog.String("role", string(acct.Role)))
	return acct, nil
}

func (s *AccountService) Get(ctx context.Context, id string) (domain.Account, error) {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	acct, err := s.Store.Accounts().GetAccountByID(sctx, id)
	if err != nil {
		return domain.Account{}, accountErr("account.get", err)
	}
	return acct, nil
}

// SetState changes the administrative state of an account. Tokens of an
// account leaving ACTIVE stop validating at once.
func (s *AccountService) SetState(ctx context.Context, id string, state domain.AccountState) error {
	if !state.Valid() {
		return fmt.Errorf("%w: unknown account state %q", ErrInvalidInput, state)
	}
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Accounts().UpdateAccountState(sctx, id, state, s.now()); err != nil {
		return accountErr("account.set_state", err)
	}
	slogx.FromContext(ctx).Info("account state changed",
		slog.String("account_id", id),
		slog.String("state", string(state)),
	)
	return nil
}

// Unlock clears the failed-attempt counter and any lockout window.
func (s *AccountService) Unlock(ctx context.Context, id string) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Accounts().ClearFailedLogins(sctx, id, s.now()); err != nil {
		return accountErr("account.unlock", err)
	}
	slogx.FromContext(ctx).Info("account unlocked", slog.String("account_id", id))
	return nil
}

func (s *AccountService) SetTwoFactor(ctx context.Context, id string, enabled bool) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Accounts().SetTwoFactor(sctx, id, enabled, s.now()); err != nil {
		return accountErr("account.two_factor", err)
	}
	return nil
}

func (s *AccountService) SetEmailVerified(ctx context.Context, id string, verified bool) error {
	sctx, cancel := s.storeCtx(ctx)
	defer cancel()
	if err := s.Store.Accounts().SetEmailVerified(sctx, id, verified, s.now()); err != nil {
		return accountErr("account.email_verified", err)
	}
	return nil
}

func accountErr(op string, err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrNoSuchAccount
	}
	return internalErr(op, err)
}
