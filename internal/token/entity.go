package token

import (
	"errors"

	"github.com/golang-jwt/jwt/v5"
)

// Role distinguishes access tokens from refresh tokens. Each role is signed
// with its own secret.
type Role string

const (
	RoleAccess  Role = "access"
	RoleRefresh Role = "refresh"
)

// Claims is the claim set carried by every issued token. Subject and ID
// (jti) live in the registered claims.
type Claims struct {
	Role Role `json:"typ"`
	jwt.RegisteredClaims
}

// SubjectID returns the subject the token was issued to.
func (c *Claims) SubjectID() string { return c.Subject }

// TokenID returns the unique identifier of this issuance.
func (c *Claims) TokenID() string { return c.ID }

// ExpiresAtSec returns the expiry as unix seconds, or nil when the token
// carries no expiry claim.
func (c *Claims) ExpiresAtSec() *int64 {
	if c.ExpiresAt == nil {
		return nil
	}
	sec := c.ExpiresAt.Unix()
	return &sec
}

var (
	ErrMalformed        = errors.New("token malformed")
	ErrInvalidSignature = errors.New("token signature invalid")
	ErrExpired          = errors.New("token expired")
	ErrNegativeLifetime = errors.New("token lifetime must not be negative")
)
