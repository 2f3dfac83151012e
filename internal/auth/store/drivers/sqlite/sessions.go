package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/aussiebroadwan/bookshelf/internal/auth/domain"
	"github.com/aussiebroadwan/bookshelf/internal/auth/store"
)

type sessionsRepo struct {
	q querier
}

const sessionColumns = `id, account_id, access_token_hash, refresh_token_hash,
	ip_address, user_agent, device, session_class, active,
	expires_at, last_accessed_at, logged_out_at, created_at`

func scanSession(row interface{ Scan(...any) error }) (domain.Session, error) {
	var (
		s                             domain.Session
		class                         string
		active                        int
		expiresAt, lastAccess, created int64
		loggedOut                     sql.NullInt64
	)
	err := row.Scan(&s.ID, &s.AccountID, &s.AccessTokenHash, &s.RefreshTokenHash,
		&s.IPAddress, &s.UserAgent, &s.Device, &class, &active,
		&expiresAt, &lastAccess, &loggedOut, &created)
	if err != nil {
		return domain.Session{}, mapNotFound(err)
	}
	s.SessionClass = domain.SessionClass(class)
	s.Active = active != 0
	s.ExpiresAt = fromMillis(expiresAt)
	s.LastAccessedAt = fromMillis(lastAccess)
	s.LoggedOutAt = fromNullMillis(loggedOut)
	s.CreatedAt = fromMillis(created)
	return s, nil
}

func (r *sessionsRepo) CreateSession(ctx context.Context, s domain.Session) error {
	_, err := r.q.ExecContext(ctx, `INSERT INTO sessions (
			id, account_id, access_token_hash, refresh_token_hash,
			ip_address, user_agent, device, session_class, active,
			expires_at, last_accessed_at, logged_out_at, created_at
		) VALUES (?1, ?2, ?3, ?4, ?5, ?6, ?7, ?8, ?9, ?10, ?11, ?12, ?13)`,
		s.ID, s.AccountID, s.AccessTokenHash, s.RefreshTokenHash,
		s.IPAddress, s.UserAgent, s.Device, string(s.SessionClass), boolInt(s.Active),
		toMillis(s.ExpiresAt), toMillis(s.LastAccessedAt), toNullMillis(s.LoggedOutAt), toMillis(s.CreatedAt),
	)
	return mapConstraint(err)
}

func (r *sessionsRepo) GetSessionByID(ctx context.Context, id string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?1`, id))
}

func (r *sessionsRepo) GetSessionByAccessTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE access_token_hash = ?1`, hash))
}

func (r *sessionsRepo) GetSessionByRefreshTokenHash(ctx context.Context, hash string) (domain.Session, error) {
	return scanSession(r.q.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE refresh_token_hash = ?1`, hash))
}

func (r *sessionsRepo) ListSessionsByAccount(ctx context.Context, accountID string) ([]domain.Session, error) {
	rows, err := r.q.QueryContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE account_id = ?1 ORDER BY created_at DESC, id DESC`,
		accountID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Session
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (r *sessionsRepo) RotateSessionTokens(ctx context.Context, p store.RotateSession) error {
	n, err := affected(r.q.ExecContext(ctx, `
		UPDATE sessions SET
			access_token_hash = ?3,
			refresh_token_hash = ?4,
			expires_at = ?5,
			last_accessed_at = ?6
		WHERE id = ?1
			AND refresh_token_hash = ?2
			AND active = 1
			AND logged_out_at IS NULL
			AND expires_at > ?6`,
		p.SessionID, p.OldRefreshHash, p.NewAccessHash, p.NewRefreshHash,
		toMillis(p.ExpiresAt), toMillis(p.Now)))
	if err != nil {
		return mapConstraint(err)
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) InvalidateSession(ctx context.Context, id string, now time.Time) error {
	n, err := affected(r.q.ExecContext(ctx, `
		UPDATE sessions SET active = 0, logged_out_at = COALESCE(logged_out_at, ?2)
		WHERE id = ?1`,
		id, toMillis(now)))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	return nil
}

func (r *sessionsRepo) InvalidateAccountSessions(ctx context.Context, accountID string, now time.Time) (int64, error) {
	return affected(r.q.ExecContext(ctx, `
		UPDATE sessions SET active = 0, logged_out_at = COALESCE(logged_out_at, ?2)
		WHERE account_id = ?1 AND active = 1`,
		accountID, toMillis(now)))
}

func (r *sessionsRepo) InvalidateAccountSessionsExcept(
	ctx context.Context,
	accountID, keepID string,
	now time.Time,
) (int64, error) {
	return affected(r.q.ExecContext(ctx, `
		UPDATE sessions SET active = 0, logged_out_at = COALESCE(logged_out_at, ?3)
		WHERE account_id = ?1 AND id <> ?2 AND active = 1`,
		accountID, keepID, toMillis(now)))
}

func (r *sessionsRepo) TouchSession(ctx context.Context, id string, now time.Time) error {
	_, err := r.q.ExecContext(ctx,
		`UPDATE sessions SET last_accessed_at = ?2 WHERE id = ?1 AND last_accessed_at < ?2`,
		id, toMillis(now))
	return err
}

func (r *sessionsRepo) DeleteStaleSessions(ctx context.Context, cutoff time.Time) (int64, error) {
	return affected(r.q.ExecContext(ctx, `
		DELETE FROM sessions
		WHERE expires_at < ?1
			OR (active = 0 AND COALESCE(logged_out_at, created_at) < ?1)`,
		toMillis(cutoff)))
}
