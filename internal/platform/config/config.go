package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Store drivers accepted in STORE_DRIVER.
const (
	DriverMemory   = "memory"
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
)

// Server captures HTTP server level configuration.
type Server struct {
	Addr             string
	StoreDriver      string
	StrictInitialize bool
	ShutdownTimeout  time.Duration

	Database DatabaseConfig
	Redis    RedisConfig
	Logging  LoggingConfig
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	URL          string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// LoggingConfig selects the slog handler and minimum level.
type LoggingConfig struct {
	Level  string
	Format string
}

// FromEnv builds a Server config from environment variables so main stays lean.
// Malformed numeric or duration values fall back to their defaults; call
// Validate before using the result.
func FromEnv() Server {
	addr := os.Getenv("COMPLIANCE_ADDR")
	if addr == "" {
		addr = ":8080"
	}

	return Server{
		Addr:             addr,
		StoreDriver:      strings.ToLower(envString("STORE_DRIVER", DriverMemory)),
		StrictInitialize: os.Getenv("STRICT_INITIALIZE") == "true",
		ShutdownTimeout:  envDuration("SHUTDOWN_TIMEOUT", 15*time.Second),
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DB_CONN_MAX_LIFETIME", 30*time.Minute),
		},
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			PoolSize:     envInt("REDIS_POOL_SIZE", 10),
			MinIdleConns: envInt("REDIS_MIN_IDLE_CONNS", 2),
			DialTimeout:  envDuration("REDIS_DIAL_TIMEOUT", 5*time.Second),
			ReadTimeout:  envDuration("REDIS_READ_TIMEOUT", 3*time.Second),
			WriteTimeout: envDuration("REDIS_WRITE_TIMEOUT", 3*time.Second),
		},
		Logging: LoggingConfig{
			Level:  strings.ToLower(envString("LOG_LEVEL", "info")),
			Format: strings.ToLower(envString("LOG_FORMAT", "json")),
		},
	}
}

// Validate rejects an unknown store driver or a driver without its URL.
func (s Server) Validate() error {
	switch s.StoreDriver {
	case DriverMemory:
	case DriverPostgres:
		if s.Database.URL == "" {
			return fmt.Errorf("STORE_DRIVER=%s requires DATABASE_URL", s.StoreDriver)
		}
	case DriverRedis:
		if s.Redis.URL == "" {
			return fmt.Errorf("STORE_DRIVER=%s requires REDIS_URL", s.StoreDriver)
		}
	default:
		return fmt.Errorf("unknown STORE_DRIVER %q", s.StoreDriver)
	}
	if s.ShutdownTimeout <= 0 {
		return fmt.Errorf("SHUTDOWN_TIMEOUT must be positive")
	}
	return nil
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}
