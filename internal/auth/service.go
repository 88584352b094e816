package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/metrics"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/token"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/utilities"
)

// Codec is the subset of *token.Codec the service relies on.
type Codec interface {
	Issue(subjectID string, role token.Role, lifetime time.Duration) (string, error)
	Verify(tokenStr string, role token.Role) (*token.Claims, error)
	DecodeUnverified(tokenStr string) (*token.Claims, error)
}

// Dependencies wires a Service. AccessTTL/RefreshTTL of zero issue tokens
// without expiry; negative values are rejected. Clock, Logger and Metrics
// are optional.
type Dependencies struct {
	Codec      Codec
	Sessions   SessionStore
	Blacklist  BlacklistStore
	Subjects   SubjectDirectory
	Clock      clockwork.Clock
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Logger     *zap.SugaredLogger
	Metrics    *metrics.Collector
}

// Service runs the session lifecycle: sign-in, logout, refresh rotation and
// revocation-aware token checks. It is the only writer of both stores and is
// safe for concurrent use.
type Service struct {
	codec      Codec
	sessions   SessionStore
	blacklist  BlacklistStore
	subjects   SubjectDirectory
	clock      clockwork.Clock
	accessTTL  time.Duration
	refreshTTL time.Duration
	logger     *zap.SugaredLogger
	metrics    *metrics.Collector
	newID      func() string
}

func NewService(d Dependencies) (*Service, error) {
	if d.Codec == nil || d.Sessions == nil || d.Blacklist == nil || d.Subjects == nil {
		return nil, errors.New("auth service: codec, sessions, blacklist and subjects are required")
	}
	if d.AccessTTL < 0 || d.RefreshTTL < 0 {
		return nil, fmt.Errorf("auth service: negative token lifetime (access %s, refresh %s)", d.AccessTTL, d.RefreshTTL)
	}
	if d.Clock == nil {
		d.Clock = clockwork.NewRealClock()
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop().Sugar()
	}
	return &Service{
		codec:      d.Codec,
		sessions:   d.Sessions,
		blacklist:  d.Blacklist,
		subjects:   d.Subjects,
		clock:      d.Clock,
		accessTTL:  d.AccessTTL,
		refreshTTL: d.RefreshTTL,
		logger:     d.Logger,
		metrics:    d.Metrics,
		newID:      utilities.NewSnowflakeID,
	}, nil
}

// SignIn mints a fresh pair for subjectID and persists it. Callers verify
// credentials first. A subject may hold any number of sessions.
func (s *Service) SignIn(ctx context.Context, subjectID string) (*Session, error) {
	access, err := s.codec.Issue(subjectID, token.RoleAccess, s.accessTTL)
	if err != nil {
		return nil, fmt.Errorf("issue access token: %w", err)
	}
	refresh, err := s.codec.Issue(subjectID, token.RoleRefresh, s.refreshTTL)
	if err != nil {
		return nil, fmt.Errorf("issue refresh token: %w", err)
	}

	sess, err := s.sessions.Save(ctx, Session{
		ID:           s.newID(),
		AccessToken:  access,
		RefreshToken: refresh,
		CreatedAt:    s.clock.Now().UTC(),
	})
	if err != nil {
		if errors.Is(err, ErrIdentifierCollision) {
			s.logger.Errorw("token identifier collision on session save", "subject", subjectID, "err", err)
		}
		return nil, err
	}
	s.metrics.SessionIssued()
	s.logger.Debugw("session issued", "subject", subjectID, "session", sess.ID)
	return sess, nil
}

// IsRevoked sweeps expired blacklist entries, then reports whether tok is
// blacklisted.
func (s *Service) IsRevoked(ctx context.Context, tok string) (bool, error) {
	if _, err := s.SweepExpired(ctx); err != nil {
		return false, err
	}
	return s.blacklist.Contains(ctx, tok)
}

// SweepExpired drops blacklist entries whose token expired by now and
// returns how many were removed.
func (s *Service) SweepExpired(ctx context.Context) (int64, error) {
	n, err := s.blacklist.SweepExpired(ctx, s.clock.Now().Unix())
	if err != nil {
		return 0, err
	}
	s.metrics.Swept(n)
	return n, nil
}

// Purge removes tok from the blacklist regardless of its expiry. It exists
// for entries without a watermark, which the sweep never drops.
func (s *Service) Purge(ctx context.Context, tok string) (bool, error) {
	removed, err := s.blacklist.Remove(ctx, tok)
	if err != nil {
		return false, err
	}
	s.logger.Infow("blacklist entry purged", "removed", removed)
	return removed, nil
}

// Logout revokes both tokens of the session owning accessToken and deletes
// it. Tokens are blacklisted before the delete so a crash in between leaves
// them rejected.
func (s *Service) Logout(ctx context.Context, accessToken string) error {
	sess, err := s.sessions.FindByAccessToken(ctx, accessToken)
	if err != nil {
		s.metrics.Logout("error")
		return err
	}
	if sess == nil {
		s.metrics.Logout("session_not_found")
		return ErrSessionNotFound
	}
	if err := s.retire(ctx, sess); err != nil {
		s.metrics.Logout(resultLabel(err))
		return err
	}
	s.metrics.Logout("ok")
	s.logger.Debugw("session logged out", "session", sess.ID)
	return nil
}

// Refresh exchanges refreshToken for a new pair. The old session is
// blacklisted and deleted before anything new is minted, so a replayed or
// concurrently reused refresh token fails with ErrSessionNotFound.
func (s *Service) Refresh(ctx context.Context, subjectID, refreshToken string) (*Session, error) {
	ok, err := s.subjects.Exists(ctx, subjectID)
	if err != nil {
		s.metrics.Rotation("error")
		return nil, err
	}
	if !ok {
		s.metrics.Rotation("subject_not_found")
		return nil, ErrSubjectNotFound
	}

	sess, err := s.sessions.FindByRefreshToken(ctx, refreshToken)
	if err != nil {
		s.metrics.Rotation("error")
		return nil, err
	}
	if sess == nil {
		s.metrics.Rotation("session_not_found")
		s.logger.Infow("refresh token not bound to a session", "subject", subjectID)
		return nil, ErrSessionNotFound
	}
	if claims, err := s.codec.DecodeUnverified(sess.RefreshToken); err != nil || claims.SubjectID() != subjectID {
		s.metrics.Rotation("session_not_found")
		s.logger.Warnw("refresh token subject mismatch", "subject", subjectID, "session", sess.ID)
		return nil, ErrSessionNotFound
	}

	if err := s.retire(ctx, sess); err != nil {
		s.metrics.Rotation(resultLabel(err))
		return nil, err
	}

	next, err := s.SignIn(ctx, subjectID)
	if err != nil {
		s.metrics.Rotation("error")
		return nil, err
	}
	s.metrics.Rotation("ok")
	s.logger.Debugw("session rotated", "subject", subjectID, "from", sess.ID, "to", next.ID)
	return next, nil
}

// Identify verifies tok for role and checks it against the blacklist. Any
// failure yields ok == false; the reason is only logged.
func (s *Service) Identify(ctx context.Context, tok string, role token.Role) (string, bool) {
	claims, err := s.codec.Verify(tok, role)
	if err != nil {
		s.metrics.TokenCheck(string(role), "invalid")
		s.logger.Debugw("token rejected", "role", role, "err", err)
		return "", false
	}
	revoked, err := s.IsRevoked(ctx, tok)
	if err != nil {
		s.metrics.TokenCheck(string(role), "error")
		s.logger.Warnw("revocation check failed", "role", role, "err", err)
		return "", false
	}
	if revoked {
		s.metrics.TokenCheck(string(role), "revoked")
		s.logger.Debugw("token revoked", "role", role, "jti", claims.TokenID())
		return "", false
	}
	s.metrics.TokenCheck(string(role), "ok")
	return claims.SubjectID(), true
}

// ValidateAndIdentify is Identify for access tokens.
func (s *Service) ValidateAndIdentify(ctx context.Context, tok string) (string, bool) {
	return s.Identify(ctx, tok, token.RoleAccess)
}

// retire blacklists both tokens of sess with their own expiry, then deletes
// the session. Zero deleted rows means another caller got there first.
func (s *Service) retire(ctx context.Context, sess *Session) error {
	for _, tok := range []string{sess.AccessToken, sess.RefreshToken} {
		claims, err := s.codec.DecodeUnverified(tok)
		if err != nil {
			return fmt.Errorf("decode stored token: %w", err)
		}
		if err := s.blacklist.Add(ctx, tok, claims.ExpiresAtSec()); err != nil {
			return err
		}
	}
	n, err := s.sessions.DeleteByRefreshToken(ctx, sess.RefreshToken)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrSessionNotFound
	}
	return nil
}

func resultLabel(err error) string {
	if errors.Is(err, ErrSessionNotFound) {
		return "session_not_found"
	}
	return "error"
}
