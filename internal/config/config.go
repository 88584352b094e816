package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
)

// Backend selects where sessions and the blacklist live.
type Backend string

const (
	BackendPostgres Backend = "postgres"
	BackendRedis    Backend = "redis"
	BackendMemory   Backend = "memory"
)

type Redis struct {
	Addr     string
	Password string
	DB       int
	Prefix   string
}

type Config struct {
	Port          int
	AccessSecret  string
	RefreshSecret string
	Issuer        string
	// Zero means tokens of that role carry no expiry.
	AccessTTL  time.Duration
	RefreshTTL time.Duration
	Backend    Backend
	Redis      Redis
	BcryptCost int
}

const (
	defaultAccessSecret  = "ACCESS_SECRET"
	defaultRefreshSecret = "REFRESH_SECRET"
)

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string { return fmt.Sprintf("0.0.0.0:%d", c.Port) }

// FromEnv reads service configuration. Missing secrets fall back to
// well-known defaults and are reported on logger at error level.
func FromEnv(logger *zap.SugaredLogger) (Config, error) {
	cfg := Config{
		Issuer:     os.Getenv("JWT_ISSUER"),
		Backend:    Backend(strings.ToLower(strings.TrimSpace(os.Getenv("STORE_BACKEND")))),
		BcryptCost: bcrypt.DefaultCost,
		Redis: Redis{
			Addr:     os.Getenv("REDIS_ADDR"),
			Password: os.Getenv("REDIS_PASSWORD"),
			Prefix:   os.Getenv("REDIS_PREFIX"),
		},
	}

	var err error
	if cfg.Port, err = intFromEnv("PORT", 5000); err != nil {
		return Config{}, err
	}
	if cfg.Port <= 0 || cfg.Port > 65535 {
		return Config{}, fmt.Errorf("PORT out of range: %d", cfg.Port)
	}

	cfg.AccessSecret = secretFromEnv(logger, "JWT_ACCESS_SECRET", defaultAccessSecret)
	cfg.RefreshSecret = secretFromEnv(logger, "JWT_REFRESH_SECRET", defaultRefreshSecret)

	if cfg.AccessTTL, err = ttlFromEnv("JWT_ACCESS_EXPIRES_IN_SEC"); err != nil {
		return Config{}, err
	}
	if cfg.RefreshTTL, err = ttlFromEnv("JWT_REFRESH_EXPIRES_IN_SEC"); err != nil {
		return Config{}, err
	}

	switch cfg.Backend {
	case "":
		cfg.Backend = BackendPostgres
	case BackendPostgres, BackendRedis, BackendMemory:
	default:
		return Config{}, fmt.Errorf("STORE_BACKEND: unknown backend %q", cfg.Backend)
	}

	if cfg.Redis.Addr == "" {
		cfg.Redis.Addr = "localhost:6379"
	}
	if cfg.Redis.DB, err = intFromEnv("REDIS_DB", 0); err != nil {
		return Config{}, err
	}

	if cfg.BcryptCost, err = intFromEnv("SALT", bcrypt.DefaultCost); err != nil {
		return Config{}, err
	}
	if cfg.BcryptCost < bcrypt.MinCost || cfg.BcryptCost > bcrypt.MaxCost {
		return Config{}, fmt.Errorf("SALT must be between %d and %d", bcrypt.MinCost, bcrypt.MaxCost)
	}
	return cfg, nil
}

func secretFromEnv(logger *zap.SugaredLogger, key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	logger.Errorw("secret not configured, using insecure default", "key", key)
	return def
}

func intFromEnv(key string, def int) (int, error) {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

var errNegativeTTL = errors.New("must not be negative")

func ttlFromEnv(key string) (time.Duration, error) {
	sec, err := intFromEnv(key, 0)
	if err != nil {
		return 0, err
	}
	if sec < 0 {
		return 0, fmt.Errorf("%s: %w", key, errNegativeTTL)
	}
	return time.Duration(sec) * time.Second, nil
}
