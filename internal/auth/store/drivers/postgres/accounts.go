package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
)

type accountsRepo struct {
	q querier
}

const accountColumns = `id, username, email, password_hash, role, state,
	failed_attempts, locked_until, last_login_at, last_login_ip,
	email_verified, two_factor_enabled, created_at, updated_at`

func scanAccount(row interface{ Scan(...any) error }) (domain.Account, error) {
	var (
		a                      domain.Account
		role, state            string
		lockedUntil, lastLogin sql.NullTime
	)
	err := row.Scan(&a.ID, &a.Username, &a.Email, &a.PasswordHash, &role, &state,
		&a.FailedAttempts, &lockedUntil, &lastLogin, &a.LastLoginIP,
		&a.EmailVerified, &a.TwoFactorEnabled, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return domain.Account{}, mapNotFound(err)
	}
	a.Role = domain.Role(role)
	a.State = domain.AccountState(state)
	a.LockedUntil = fromNullTime(lockedUntil)
	a.LastLoginAt = fromNullTime(lastLogin)
	a.CreatedAt = a.CreatedAt.UTC()
	a.UpdatedAt = a.UpdatedAt.UTC()
	return a, nil
}

func (r *accountsRepo) GetAccountByID(ctx context.Context, id string) (domain.Account, error) {
	return scanAccount(r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts WHERE id = $1`, id))
}

func (r *accountsRepo) GetAccountByIdentifier(ctx context.Context, identifier string) (domain.Account, error) {
	return scanAccount(r.q.QueryRowContext(ctx,
		`SELECT `+accountColumns+` FROM accounts
		WHERE username = $1 OR email = $1
		ORDER BY username = $1 DESC
		LIMIT 1`, identifier))
}

func (r *accountsRepo) CreateAccount(ctx context.Context, a domain.Account) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO accounts (
			id, username, email, password_hash, role, state,
			failed_attempts, locked_until, last_login_at, last_login_ip,
			email_verified, two_factor_enabled, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)`,
		a.ID, a.Username, a.Email, a.PasswordHash, string(a.Role), string(a.State),
		a.FailedAttempts, toNullTime(a.LockedUntil), toNullTime(a.LastLoginAt), a.LastLoginIP,
		a.EmailVerified, a.TwoFactorEnabled, a.CreatedAt, a.UpdatedAt,
	)
	return mapConstraint(err)
}

// Concurrent updates of the same row queue on its row lock and re-check the
// WHERE clause against the committed version, so increments never get lost.
const recordFailedLoginSQL = `
UPDATE accounts SET
	failed_attempts = CASE
		WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
		ELSE failed_attempts + 1
	END,
	locked_until = CASE
		WHEN (CASE
			WHEN locked_until IS NOT NULL AND locked_until <= $2 THEN 1
			ELSE failed_attempts + 1
		END) >= $3 THEN $4::timestamptz
		ELSE NULL
	END,
	updated_at = $2
WHERE id = $1 AND (locked_until IS NULL OR locked_until <= $2)
RETURNING failed_attempts, locked_until`

func (r *accountsRepo) RecordFailedLogin(
	ctx context.Context,
	id string,
	threshold int,
	lockUntil, now time.Time,
) (store.FailedLogin, error) {
	var (
		out    store.FailedLogin
		locked sql.NullTime
	)
	err := r.q.QueryRowContext(ctx, recordFailedLoginSQL, id, now, threshold, lockUntil).
		Scan(&out.Attempts, &locked)
	switch {
	case err == nil:
		out.Counted = true
		out.LockedUntil = fromNullTime(locked)
		return out, nil
	case !errors.Is(err, sql.ErrNoRows):
		return store.FailedLogin{}, err
	}

	err = r.q.QueryRowContext(ctx,
		`SELECT failed_attempts, locked_until FROM accounts WHERE id = $1`, id,
	).Scan(&out.Attempts, &locked)
	if err != nil {
		return store.FailedLogin{}, mapNotFound(err)
	}
	out.LockedUntil = fromNullTime(locked)
	return out, nil
}

func (r *accountsRepo) RecordSuccessfulLogin(ctx context.Context, id, ip string, now time.Time) error {
	n, err := affected(r.q.ExecContext(ctx, `
		UPDATE accounts SET
			failed_attempts = 0,
			locked_until = NULL,
			last_login_at = $2,
			last_login_ip = $3,
			updated_at = $2
		WHERE id = $1
			AND state = 'ACTIVE'
			AND (locked_until IS NULL OR locked_until <= $2)`,
		id, now, ip))
	if err != nil {
		return err
	}
	if n == 0 {
		var one int
		err := r.q.QueryRowContext(ctx, `SELECT 1 FROM accounts WHERE id = $1`, id).Scan(&one)
		if err != nil {
			return mapNotFound(err)
		}
		return store.ErrConflict
	}
	return nil
}

func (r *accountsRepo) update(ctx context.Context, query string, args ...any) error {
	n, err := affected(r.q.ExecContext(ctx, query, args...))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *accountsRepo) ClearFailedLogins(ctx context.Context, id string, now time.Time) error {
	return r.update(ctx,
		`UPDATE accounts SET failed_attempts = 0, locked_until = NULL, updated_at = $2 WHERE id = $1`,
		id, now)
}

func (r *accountsRepo) UpdatePasswordHash(ctx context.Context, id, hash string, now time.Time) error {
	return r.update(ctx, `UPDATE accounts SET password_hash = $2, updated_at = $3 WHERE id = $1`, id, hash, now)
}

func (r *accountsRepo) UpdateAccountState(
	ctx context.Context,
	id string,
	state domain.AccountState,
	now time.Time,
) error {
	return r.update(ctx, `UPDATE accounts SET state = $2, updated_at = $3 WHERE id = $1`, id, string(state), now)
}

func (r *accountsRepo) SetTwoFactor(ctx context.Context, id string, enabled bool, now time.Time) error {
	return r.update(ctx,
		`UPDATE accounts SET two_factor_enabled = $2, updated_at = $3 WHERE id = $1`, id, enabled, now)
}

func (r *accountsRepo) SetEmailVerified(ctx context.Context, id string, verified bool, now time.Time) error {
	return r.update(ctx,
		`UPDATE accounts SET email_verified = $2, updated_at = $3 WHERE id = $1`, id, verified, now)
}

func (r *accountsRepo) IsEmpty(ctx context.Context) (bool, error) {
	var exists bool
	if err := r.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM accounts)`).Scan(&exists); err != nil {
		return false, err
	}
	return !exists, nil
}
