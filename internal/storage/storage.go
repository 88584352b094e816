package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/ovaphlow/pitchfork/service-auth-go/internal/auth"
	authrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/auth/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/config"
	"github.com/ovaphlow/pitchfork/service-auth-go/internal/user"
	userrepo "github.com/ovaphlow/pitchfork/service-auth-go/internal/user/repo"
	"github.com/ovaphlow/pitchfork/service-auth-go/pkg/database"
)

// Stores holds the backends selected by config. Accounts live in PostgreSQL
// unless the memory backend is chosen.
type Stores struct {
	Sessions  auth.SessionStore
	Blacklist auth.BlacklistStore
	Users     user.Repository

	closers []func() error
}

// Close releases every connection opened by Open.
func (s *Stores) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	return errors.Join(errs...)
}

// Open connects the configured backend and creates missing tables.
func Open(ctx context.Context, cfg config.Config, dbCfg database.Config, logger *zap.SugaredLogger) (*Stores, error) {
	s := &Stores{}
	if cfg.Backend == config.BackendMemory {
		logger.Warnw("using in-memory stores; sessions are lost on restart")
		s.Sessions = authrepo.NewMemorySessionStore()
		s.Blacklist = authrepo.NewMemoryBlacklist()
		s.Users = userrepo.NewMemoryUserRepo()
		return s, nil
	}

	db, err := database.Connect(dbCfg)
	if err != nil {
		return nil, err
	}
	s.closers = append(s.closers, db.Close)

	users := userrepo.NewUserRepo(db)
	if err := users.EnsureTable(ctx); err != nil {
		s.Close()
		return nil, fmt.Errorf("users table: %w", err)
	}
	s.Users = users

	switch cfg.Backend {
	case config.BackendRedis:
		rdb := redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		s.closers = append(s.closers, rdb.Close)
		if err := rdb.Ping(ctx).Err(); err != nil {
			s.Close()
			return nil, fmt.Errorf("ping redis: %w", err)
		}
		s.Sessions = authrepo.NewRedisSessionStore(rdb, cfg.Redis.Prefix)
		s.Blacklist = authrepo.NewRedisBlacklist(rdb, cfg.Redis.Prefix)
		logger.Infow("session stores on redis", "addr", cfg.Redis.Addr, "db", cfg.Redis.DB)
	default:
		if err := ensurePostgres(ctx, db); err != nil {
			s.Close()
			return nil, err
		}
		s.Sessions = authrepo.NewPostgresSessionStore(db)
		s.Blacklist = authrepo.NewPostgresBlacklist(db)
		logger.Infow("session stores on postgres")
	}
	return s, nil
}

func ensurePostgres(ctx context.Context, db *sqlx.DB) error {
	if err := authrepo.NewPostgresSessionStore(db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("sessions table: %w", err)
	}
	if err := authrepo.NewPostgresBlacklist(db).EnsureTable(ctx); err != nil {
		return fmt.Errorf("blacklist table: %w", err)
	}
	return nil
}
