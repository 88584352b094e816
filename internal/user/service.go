package user

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user/entity"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
)

// Repository is the storage the service needs; UserRepo and MemoryUserRepo
// both satisfy it.
type Repository interface {
	Create(ctx context.Context, u *entity.User) error
	GetByID(ctx context.Context, id string) (*entity.User, error)
}

// PasswordHasher defines minimal hashing interface.
type PasswordHasher interface {
	Hash(pw string) (string, error)
	Verify(hash, pw string) bool
}

// BcryptHasher implementation.
type BcryptHasher struct{ Cost int }

func (b BcryptHasher) Hash(pw string) (string, error) {
	cost := b.Cost
	if cost == 0 {
		cost = bcrypt.DefaultCost
	}
	h, err := bcrypt.GenerateFromPassword([]byte(pw), cost)
	if err != nil {
		return "", err
	}
	return string(h), nil
}

func (b BcryptHasher) Verify(hash, pw string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(pw)) == nil
}

// UserService handles sign-up and password checks, and tells the session
// service whether a subject still exists.
type UserService struct {
	repo   Repository
	hasher PasswordHasher
	now    func() time.Time
}

func NewUserService(r Repository, hasher PasswordHasher) *UserService {
	if hasher == nil {
		hasher = BcryptHasher{Cost: bcrypt.DefaultCost}
	}
	return &UserService{repo: r, hasher: hasher, now: time.Now}
}

var (
	ErrUserNotFound   = errors.New("user not found")
	ErrUserExists     = errors.New("user already exists")
	ErrBadCredentials = errors.New("invalid credentials")
	ErrInvalidInput   = errors.New("id and password are required")
)

// SignUp creates a user with a bcrypt-hashed password.
func (s *UserService) SignUp(ctx context.Context, id, password string) (*entity.User, error) {
	id = strings.TrimSpace(id)
	if id == "" || password == "" {
		return nil, ErrInvalidInput
	}
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}
	u := &entity.User{ID: id, PasswordHash: hash, CreatedAt: s.now().UTC()}
	if err := s.repo.Create(ctx, u); err != nil {
		if errors.Is(err, userrepo.ErrDuplicateID) {
			return nil, ErrUserExists
		}
		return nil, auth.Unavailable("create user", err)
	}
	return u, nil
}

// Authenticate checks a password and returns the user on success.
func (s *UserService) Authenticate(ctx context.Context, id, password string) (*entity.User, error) {
	u, err := s.repo.GetByID(ctx, strings.TrimSpace(id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, auth.Unavailable("get user", err)
	}
	if !s.hasher.Verify(u.PasswordHash, password) {
		return nil, ErrBadCredentials
	}
	return u, nil
}

// Exists implements auth.SubjectDirectory.
func (s *UserService) Exists(ctx context.Context, id string) (bool, error) {
	_, err := s.repo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, auth.Unavailable("get user", err)
	}
	return true, nil
}
