package service

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
	"github.com/aussiebroadwan/bookshelf/pkg/cryptox"
	"github.com/aussiebroadwan/bookshelf/pkg/idx"
	"github.com/aussiebroadwan/bookshelf/pkg/slogx"
)

var (
	ErrBootstrapAlready             = errors.New("system already bootstrapped")
	ErrBootstrapUnauthorized        = errors.New("unauthorized bootstrap attempt")
	ErrBootstrapFailedToCreateAdmin = errors.New("failed to create admin account")
)

type BootstrapService struct {
	Store       store.Store
	Credentials *CredentialVerifier
	Token       string // Pre-configured bootstrap token

	// StoreTimeout bounds every store call. Zero means DefaultStoreTimeout.
	StoreTimeout time.Duration

	Now func() time.Time
}

func (s *BootstrapService) IsBootstrapped(ctx context.Context) (bool, error) {
	ctx, cancel := boundedCtx(ctx, s.StoreTimeout)
	defer cancel()
	empty, err := s.Store.Accounts().IsEmpty(ctx)
	if err != nil {
		return false, err
	}
	return !empty, nil
}

// Bootstrap creates the first ADMIN account. It only succeeds while no
// account exists and token matches the configured bootstrap token.
func (s *BootstrapService) Bootstrap(
	ctx context.Context,
	token string,
	req domain.BootstrapData,
) (domain.Account, error) {
	l := slogx.FromContext(ctx)

	// 1. Validate provided token
	if s.Token == "" || !cryptox.EqualSecrets(token, s.Token) {
		l.Warn("unauthorized bootstrap attempt")
		return domain.Account{}, ErrBootstrapUnauthorized
	}

	// 2. Check if already bootstrapped
	bootstrapped, err := s.IsBootstrapped(ctx)
	if err != nil {
		l.Error("bootstrap state check failed", slog.Any("error", err))
		return domain.Account{}, internalErr("account.is_empty", err)
	}
	if bootstrapped {
		l.Warn("attempted bootstrap on already-bootstrapped system")
		return domain.Account{}, ErrBootstrapAlready
	}

	in := NewAccount{
		Username:      req.AdminUsername,
		Email:         req.AdminEmail,
		Password:      req.AdminPassword,
		Role:          domain.RoleAdmin,
		EmailVerified: true,
	}
	if err := in.validate(); err != nil {
		return domain.Account{}, err
	}

	// 3. Hash password
	passHash, err := s.Credentials.Hash(req.AdminPassword)
	if err != nil {
		l.Error("failed to hash admin password", slog.Any("error", err))
		return domain.Account{}, ErrBootstrapFailedToCreateAdmin
	}

	// 4. Create the admin, re-checking emptiness inside the transaction so
	// two concurrent bootstraps cannot both succeed.
	now := s.now()
	acct := domain.Account{
		ID:            idx.NewAt(now).String(),
		Username:      in.Username,
		Email:         in.Email,
		PasswordHash:  passHash,
		Role:          domain.RoleAdmin,
		State:         domain.AccountActive,
		EmailVerified: true,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	txCtx, cancel := boundedCtx(ctx, s.StoreTimeout)
	defer cancel()
	err = s.Store.WithTx(txCtx, func(tx store.Tx) error {
		empty, err := tx.Accounts().IsEmpty(txCtx)
		if err != nil {
			return err
		}
		if !empty {
			return ErrBootstrapAlready
		}
		return tx.Accounts().CreateAccount(txCtx, acct)
	})
	switch {
	case errors.Is(err, ErrBootstrapAlready), errors.Is(err, store.ErrAlreadyExists):
		return domain.Account{}, ErrBootstrapAlready
	case err != nil:
		l.Error("failed to create admin account",
			slog.String("admin_account_id", acct.ID),
			slog.Any("error", err),
		)
		return domain.Account{}, ErrBootstrapFailedToCreateAdmin
	}

	l.Info("successfully bootstrapped system", slog.String("admin_account_id", acct.ID))
	return acct, nil
}

func (s *BootstrapService) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}
