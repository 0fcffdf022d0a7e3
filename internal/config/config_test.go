package config

import (
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"HTTP_ADDR", "GRPC_ADDR", "MYSQL_DSN", "REDIS_ADDR", "LOG_LEVEL",
		"REHYDRATE_LOCK_TTL", "REHYDRATE_ON_START", "MIGRATE_ON_START", "REDIS_POOL_SIZE",
	} {
		t.Setenv(key, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, defaultMySQLDSN, cfg.MySQLDSN)
	assert.Equal(t, defaultRedis, cfg.RedisAddr)
	assert.Equal(t, 100, cfg.RedisPoolSize)
	assert.Equal(t, logrus.InfoLevel, cfg.LogLevel)
	assert.Equal(t, 30*time.Second, cfg.RehydrateLockTTL)
	assert.False(t, cfg.RehydrateOnStart)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("HTTP_ADDR", ":9090")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("REHYDRATE_LOCK_TTL", "2s")
	t.Setenv("REHYDRATE_ON_START", "true")
	t.Setenv("REDIS_POOL_SIZE", "7")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":9090", cfg.HTTPAddr)
	assert.Equal(t, "redis:6379", cfg.RedisAddr)
	assert.Equal(t, logrus.DebugLevel, cfg.LogLevel)
	assert.Equal(t, 2*time.Second, cfg.RehydrateLockTTL)
	assert.True(t, cfg.RehydrateOnStart)
	assert.Equal(t, 7, cfg.RedisPoolSize)
}

func TestLoad_InvalidValuesFallBack(t *testing.T) {
	t.Setenv("LOG_LEVEL", "")
	t.Setenv("REDIS_POOL_SIZE", "many")
	t.Setenv("REHYDRATE_LOCK_TTL", "soon")
	t.Setenv("MIGRATE_ON_START", "perhaps")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 100, cfg.RedisPoolSize)
	assert.Equal(t, 30*time.Second, cfg.RehydrateLockTTL)
	assert.False(t, cfg.MigrateOnStart)
}

func TestLoad_InvalidLogLevel(t *testing.T) {
	t.Setenv("LOG_LEVEL", "loud")

	_, err := Load()
	assert.Error(t, err)
}
