package auth

import (
	"context"
	"time"
)

// Session links one issued access/refresh pair. AccessToken is the primary
// key, RefreshToken a unique secondary key.
type Session struct {
	ID           string    `db:"id" json:"-"`
	AccessToken  string    `db:"access_token" json:"accessToken"`
	RefreshToken string    `db:"refresh_token" json:"refreshToken"`
	CreatedAt    time.Time `db:"created_at" json:"-"`
}

// BlacklistEntry is a revoked token. A nil ExpiresAtSec means the token had
// no expiry and the entry is never swept.
type BlacklistEntry struct {
	Token        string `db:"token"`
	ExpiresAtSec *int64 `db:"expires_at_sec"`
}

// SessionStore persists sessions keyed by both tokens. Implementations must
// make DeleteByRefreshToken atomic: of two concurrent deletes of the same
// key exactly one reports 1.
type SessionStore interface {
	Save(ctx context.Context, s Session) (*Session, error)
	FindByAccessToken(ctx context.Context, token string) (*Session, error)
	FindByRefreshToken(ctx context.Context, token string) (*Session, error)
	DeleteByRefreshToken(ctx context.Context, token string) (int64, error)
}

// BlacklistStore holds revoked tokens until their own expiry passes.
type BlacklistStore interface {
	Add(ctx context.Context, token string, expiresAtSec *int64) error
	Contains(ctx context.Context, token string) (bool, error)
	SweepExpired(ctx context.Context, nowSec int64) (int64, error)
	Remove(ctx context.Context, token string) (bool, error)
}

// SubjectDirectory answers whether an account still exists.
type SubjectDirectory interface {
	Exists(ctx context.Context, subjectID string) (bool, error)
}

// WidenExpiry merges two blacklist watermarks so that re-adding a token
// never shortens its distrust window. nil means "no expiry" and wins.
func WidenExpiry(current, next *int64) *int64 {
	if current == nil || next == nil {
		return nil
	}
	if *next > *current {
		v := *next
		return &v
	}
	v := *current
	return &v
}
