package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"

	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Config holds the signing material for both roles.
type Config struct {
	AccessSecret  []byte
	RefreshSecret []byte
	Issuer        string
}

// Codec signs and verifies HS256 tokens. It holds no mutable state and is
// safe for concurrent use.
type Codec struct {
	secrets map[Role][]byte
	issuer  string
	clock   clockwork.Clock
	newID   func() string
}

// NewCodec builds a Codec. A nil clock means the wall clock.
func NewCodec(cfg Config, clock clockwork.Clock) (*Codec, error) {
	if len(cfg.AccessSecret) == 0 {
		return nil, errors.New("access secret is required")
	}
	if len(cfg.RefreshSecret) == 0 {
		return nil, errors.New("refresh secret is required")
	}
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Codec{
		secrets: map[Role][]byte{
			RoleAccess:  cfg.AccessSecret,
			RoleRefresh: cfg.RefreshSecret,
		},
		issuer: cfg.Issuer,
		clock:  clock,
		newID:  utilities.NewKSUID,
	}, nil
}

// Issue signs a new token for subjectID. A zero lifetime produces a token
// without an exp claim, which never expires on its own. A negative lifetime
// is rejected.
func (c *Codec) Issue(subjectID string, role Role, lifetime time.Duration) (string, error) {
	secret, ok := c.secrets[role]
	if !ok {
		return "", fmt.Errorf("unknown token role %q", role)
	}
	if lifetime < 0 {
		return "", fmt.Errorf("%w: %s", ErrNegativeLifetime, lifetime)
	}
	now := c.clock.Now()
	claims := Claims{
		Role: role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:  subjectID,
			ID:       c.newID(),
			Issuer:   c.issuer,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	if lifetime > 0 {
		claims.ExpiresAt = jwt.NewNumericDate(now.Add(lifetime))
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

// Verify checks the signature against the role's secret and enforces exp
// when present. Failures are ErrMalformed, ErrInvalidSignature or ErrExpired.
func (c *Codec) Verify(tokenStr string, role Role) (*Claims, error) {
	secret, ok := c.secrets[role]
	if !ok {
		return nil, fmt.Errorf("unknown token role %q", role)
	}
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(c.clock.Now),
	)
	claims := &Claims{}
	_, err := parser.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	})
	if err != nil {
		return nil, classify(err)
	}
	if claims.Role != role {
		return nil, ErrInvalidSignature
	}
	return claims, nil
}

// DecodeUnverified extracts claims without checking the signature. Only use
// it on tokens that came from this service's own storage.
func (c *Codec) DecodeUnverified(tokenStr string) (*Claims, error) {
	claims := &Claims{}
	if _, _, err := jwt.NewParser().ParseUnverified(tokenStr, claims); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	return claims, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenMalformed):
		return fmt.Errorf("%w: %w", ErrMalformed, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	case errors.Is(err, jwt.ErrTokenExpired):
		return fmt.Errorf("%w: %w", ErrExpired, err)
	default:
		// remaining claim failures (nbf, iat) are treated as a bad token
		return fmt.Errorf("%w: %w", ErrInvalidSignature, err)
	}
}
