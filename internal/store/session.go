package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/aura-assist/gateway/types"
)

// SessionRepository handles persistence for token-backed sessions.
type SessionRepository struct {
	db *sql.DB
}

func NewSessionRepository(db *sql.DB) *SessionRepository {
	return &SessionRepository{db: db}
}

func (r *SessionRepository) Create(ctx context.Context, session types.Session) (types.Session, error) {
	const query = `
		INSERT INTO sessions (session_id, user_id, token_jti, created_at, expires_at, last_activity, ip_address)
		VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''))`
	_, err := r.db.ExecContext(
		ctx,
		query,
		session.ID,
		session.UserID,
		session.TokenJTI,
		session.CreatedAt,
		session.ExpiresAt,
		session.LastActivity,
		session.IPAddress,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return types.Session{}, ErrDuplicate
		}
		return types.Session{}, err
	}
	return session, nil
}

func (r *SessionRepository) GetByJTI(ctx context.Context, jti string) (types.Session, error) {
	const query = `
		SELECT session_id, user_id, token_jti, created_at, expires_at, last_activity, COALESCE(ip_address, '')
		FROM sessions
		WHERE token_jti = $1`
	var session types.Session
	err := r.db.QueryRowContext(ctx, query, jti).Scan(
		&session.ID,
		&session.UserID,
		&session.TokenJTI,
		&session.CreatedAt,
		&session.ExpiresAt,
		&session.LastActivity,
		&session.IPAddress,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return types.Session{}, ErrNotFound
		}
		return types.Session{}, err
	}
	return session, nil
}

// Touch updates the session's last-activity timestamp.
func (r *SessionRepository) Touch(ctx context.Context, jti string, at time.Time) error {
	const query = `UPDATE sessions SET last_activity = $1 WHERE token_jti = $2`
	_, err := r.db.ExecContext(ctx, query, at, jti)
	return err
}

// DeleteByJTI removes the session for the given token id (logout).
func (r *SessionRepository) DeleteByJTI(ctx context.Context, jti string) error {
	const query = `DELETE FROM sessions WHERE token_jti = $1`
	result, err := r.db.ExecContext(ctx, query, jti)
	if err != nil {
		return err
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return ErrNotFound
	}
	return nil
}

// DeleteExpired removes sessions past their expiry and reports how many
// were swept.
func (r *SessionRepository) DeleteExpired(ctx context.Context, now time.Time) (int64, error) {
	const query = `DELETE FROM sessions WHERE expires_at < $1`
	result, err := r.db.ExecContext(ctx, query, now)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}
