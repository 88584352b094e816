package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
	"golang.org/x/crypto/bcrypt"
)

var keys = []string{
	"PORT", "JWT_ACCESS_SECRET", "JWT_REFRESH_SECRET", "JWT_ACCESS_EXPIRES_IN_SEC",
	"JWT_REFRESH_EXPIRES_IN_SEC", "JWT_ISSUER", "STORE_BACKEND", "REDIS_ADDR",
	"REDIS_PASSWORD", "REDIS_DB", "REDIS_PREFIX", "SALT",
}

func clearEnv(t *testing.T) {
	for _, k := range keys {
		t.Setenv(k, "")
	}
}

func TestFromEnvDefaults(t *testing.T) {
	clearEnv(t)
	core, logs := observer.New(zapcore.ErrorLevel)

	cfg, err := FromEnv(zap.New(core).Sugar())
	require.NoError(t, err)

	assert.Equal(t, 5000, cfg.Port)
	assert.Equal(t, "0.0.0.0:5000", cfg.Addr())
	assert.Equal(t, "ACCESS_SECRET", cfg.AccessSecret)
	assert.Equal(t, "REFRESH_SECRET", cfg.RefreshSecret)
	assert.Zero(t, cfg.AccessTTL)
	assert.Zero(t, cfg.RefreshTTL)
	assert.Equal(t, BackendPostgres, cfg.Backend)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.Equal(t, bcrypt.DefaultCost, cfg.BcryptCost)

	// one error per defaulted secret
	assert.Equal(t, 2, logs.Len())
}

func TestFromEnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "8080")
	t.Setenv("JWT_ACCESS_SECRET", "a")
	t.Setenv("JWT_REFRESH_SECRET", "r")
	t.Setenv("JWT_ACCESS_EXPIRES_IN_SEC", "600")
	t.Setenv("JWT_REFRESH_EXPIRES_IN_SEC", "86400")
	t.Setenv("STORE_BACKEND", "Redis")
	t.Setenv("REDIS_DB", "3")
	t.Setenv("REDIS_PREFIX", "svc")
	t.Setenv("SALT", "4")

	core, logs := observer.New(zapcore.ErrorLevel)
	cfg, err := FromEnv(zap.New(core).Sugar())
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 10*time.Minute, cfg.AccessTTL)
	assert.Equal(t, 24*time.Hour, cfg.RefreshTTL)
	assert.Equal(t, BackendRedis, cfg.Backend)
	assert.Equal(t, 3, cfg.Redis.DB)
	assert.Equal(t, "svc", cfg.Redis.Prefix)
	assert.Equal(t, 4, cfg.BcryptCost)
	assert.Zero(t, logs.Len())
}

func TestFromEnvRejectsBadValues(t *testing.T) {
	for key, val := range map[string]string{
		"PORT":                       "70000",
		"JWT_ACCESS_EXPIRES_IN_SEC":  "-1",
		"JWT_REFRESH_EXPIRES_IN_SEC": "soon",
		"STORE_BACKEND":              "mongo",
		"REDIS_DB":                   "x",
		"SALT":                       "99",
	} {
		t.Run(key, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(key, val)
			_, err := FromEnv(zap.NewNop().Sugar())
			assert.Error(t, err)
		})
	}
}
