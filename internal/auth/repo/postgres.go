package repo

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
)

// unique_violation
const pqUniqueViolation = "23505"

// PostgresSessionStore persists sessions in the auth_sessions table.
type PostgresSessionStore struct {
	db *sqlx.DB
}

func NewPostgresSessionStore(db *sqlx.DB) *PostgresSessionStore {
	return &PostgresSessionStore{db: db}
}

// EnsureTable creates the sessions table if not exists (idempotent).
func (r *PostgresSessionStore) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS auth_sessions (
  access_token TEXT PRIMARY KEY,
  refresh_token TEXT NOT NULL UNIQUE,
  id TEXT NOT NULL,
  created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

func (r *PostgresSessionStore) Save(ctx context.Context, s auth.Session) (*auth.Session, error) {
	const q = `INSERT INTO auth_sessions (access_token, refresh_token, id, created_at)
		  VALUES (:access_token, :refresh_token, :id, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, q, s); err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == pqUniqueViolation {
			return nil, auth.ErrIdentifierCollision
		}
		return nil, auth.Unavailable("save session", err)
	}
	return &s, nil
}

func (r *PostgresSessionStore) FindByAccessToken(ctx context.Context, token string) (*auth.Session, error) {
	const q = `SELECT id, access_token, refresh_token, created_at FROM auth_sessions WHERE access_token = $1`
	return r.get(ctx, q, token)
}

func (r *PostgresSessionStore) FindByRefreshToken(ctx context.Context, token string) (*auth.Session, error) {
	const q = `SELECT id, access_token, refresh_token, created_at FROM auth_sessions WHERE refresh_token = $1`
	return r.get(ctx, q, token)
}

func (r *PostgresSessionStore) get(ctx context.Context, q, token string) (*auth.Session, error) {
	var s auth.Session
	if err := r.db.GetContext(ctx, &s, q, token); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, auth.Unavailable("find session", err)
	}
	return &s, nil
}

// DeleteByRefreshToken relies on the row lock taken by DELETE: of two
// concurrent deletes of the same row, the second affects zero rows.
func (r *PostgresSessionStore) DeleteByRefreshToken(ctx context.Context, token string) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM auth_sessions WHERE refresh_token = $1`, token)
	if err != nil {
		return 0, auth.Unavailable("delete session", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, auth.Unavailable("delete session", err)
	}
	return n, nil
}

// PostgresBlacklist persists revoked tokens in the jwt_blacklist table.
type PostgresBlacklist struct {
	db *sqlx.DB
}

func NewPostgresBlacklist(db *sqlx.DB) *PostgresBlacklist {
	return &PostgresBlacklist{db: db}
}

// EnsureTable creates the blacklist table and its expiry index.
func (r *PostgresBlacklist) EnsureTable(ctx context.Context) error {
	const ddl = `
CREATE TABLE IF NOT EXISTS jwt_blacklist (
  token TEXT PRIMARY KEY,
  expires_at_sec BIGINT
);
CREATE INDEX IF NOT EXISTS idx_jwt_blacklist_expires_at_sec ON jwt_blacklist(expires_at_sec);
`
	_, err := r.db.ExecContext(ctx, ddl)
	return err
}

// Add upserts the entry. A conflicting row keeps the later watermark, and
// NULL (no expiry) always wins.
func (r *PostgresBlacklist) Add(ctx context.Context, token string, expiresAtSec *int64) error {
	const q = `INSERT INTO jwt_blacklist (token, expires_at_sec) VALUES (:token, :expires_at_sec)
		ON CONFLICT (token) DO UPDATE SET expires_at_sec = CASE
			WHEN jwt_blacklist.expires_at_sec IS NULL OR EXCLUDED.expires_at_sec IS NULL THEN NULL
			ELSE GREATEST(jwt_blacklist.expires_at_sec, EXCLUDED.expires_at_sec)
		END`
	entry := auth.BlacklistEntry{Token: token, ExpiresAtSec: expiresAtSec}
	if _, err := r.db.NamedExecContext(ctx, q, entry); err != nil {
		return auth.Unavailable("blacklist add", err)
	}
	return nil
}

func (r *PostgresBlacklist) Contains(ctx context.Context, token string) (bool, error) {
	var ok bool
	if err := r.db.GetContext(ctx, &ok, `SELECT EXISTS (SELECT 1 FROM jwt_blacklist WHERE token = $1)`, token); err != nil {
		return false, auth.Unavailable("blacklist contains", err)
	}
	return ok, nil
}

func (r *PostgresBlacklist) SweepExpired(ctx context.Context, nowSec int64) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jwt_blacklist WHERE expires_at_sec IS NOT NULL AND expires_at_sec <= $1`, nowSec)
	if err != nil {
		return 0, auth.Unavailable("blacklist sweep", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, auth.Unavailable("blacklist sweep", err)
	}
	return n, nil
}

func (r *PostgresBlacklist) Remove(ctx context.Context, token string) (bool, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM jwt_blacklist WHERE token = $1`, token)
	if err != nil {
		return false, auth.Unavailable("blacklist remove", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, auth.Unavailable("blacklist remove", err)
	}
	return n > 0, nil
}
