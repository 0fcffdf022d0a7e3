package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const (
	defaultMySQLDSN = "root:root@tcp(localhost:3306)/stocks?parseTime=true&clientFoundRows=true"
	defaultRedis    = "localhost:6379"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN          string
	MySQLMaxOpenConns int
	MySQLMaxIdleConns int
	MySQLConnLifetime time.Duration

	RedisAddr     string
	RedisPassword string
	RedisDB       int
	RedisPoolSize int

	LogLevel logrus.Level

	RehydrateLockTTL time.Duration
	RehydrateOnStart bool
	MigrateOnStart   bool

	ShutdownTimeout time.Duration
}

func Load() (Config, error) {
	var c Config

	c.HTTPAddr = getenv("HTTP_ADDR", ":8080")
	c.GRPCAddr = getenv("GRPC_ADDR", ":50051")

	c.MySQLDSN = getenv("MYSQL_DSN", defaultMySQLDSN)
	c.MySQLMaxOpenConns = getenvInt("MYSQL_MAX_OPEN_CONNS", 50)
	c.MySQLMaxIdleConns = getenvInt("MYSQL_MAX_IDLE_CONNS", 25)
	c.MySQLConnLifetime = getenvDuration("MYSQL_CONN_MAX_LIFETIME", 5*time.Minute)

	c.RedisAddr = getenv("REDIS_ADDR", defaultRedis)
	c.RedisPassword = os.Getenv("REDIS_PASSWORD")
	c.RedisDB = getenvInt("REDIS_DB", 0)
	c.RedisPoolSize = getenvInt("REDIS_POOL_SIZE", 100)

	level, err := logrus.ParseLevel(getenv("LOG_LEVEL", "info"))
	if err != nil {
		return Config{}, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	c.LogLevel = level

	c.RehydrateLockTTL = getenvDuration("REHYDRATE_LOCK_TTL", 30*time.Second)
	c.RehydrateOnStart = getenvBool("REHYDRATE_ON_START", false)
	c.MigrateOnStart = getenvBool("MIGRATE_ON_START", false)

	c.ShutdownTimeout = getenvDuration("SHUTDOWN_TIMEOUT", 5*time.Second)

	return c, nil
}

func getenv(key, def string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	return v
}

func getenvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func getenvBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

func getenvDuration(key string, def time.Duration) time.Duration {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def
	}
	return d
}
