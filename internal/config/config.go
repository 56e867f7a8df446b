package config

import (
	"errors"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port     string
	LogLevel string
	LogFile  string

	// Document store
	DatabaseURL         string
	ShardConfigPath     string
	ContainerConfigPath string
	NumShards           int

	// Table store
	TableStorePath string

	// Grid
	DisplayTimezone    string
	CoerceNumericDates bool
	DefaultMaxCount    int
	DefaultPageSize    int
	DeleteConcurrency  int
	QueryTimeout       time.Duration

	// Sessions
	SessionIdleTimeout   time.Duration
	SessionSweepInterval time.Duration

	// Circuit breaker
	BreakerMaxFailures  int
	BreakerResetTimeout time.Duration

	// Change hooks
	HookEndpoints    []string
	HookRetryMax     int
	HookRetryBackoff time.Duration
	HookRPCTimeout   time.Duration
}

func Load() Config {
	return Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		LogFile:              os.Getenv("LOG_FILE"),
		DatabaseURL:          os.Getenv("DATABASE_URL"),
		ShardConfigPath:      os.Getenv("SHARD_CONFIG_PATH"),
		ContainerConfigPath:  os.Getenv("CONTAINER_CONFIG_PATH"),
		NumShards:            getEnvInt("NUM_SHARDS", 16),
		TableStorePath:       os.Getenv("TABLE_STORE_PATH"),
		DisplayTimezone:      getEnv("DISPLAY_TIMEZONE", "Local"),
		CoerceNumericDates:   getEnvBool("COERCE_NUMERIC_DATES", true),
		DefaultMaxCount:      getEnvInt("DEFAULT_MAX_COUNT", 1000),
		DefaultPageSize:      getEnvInt("DEFAULT_PAGE_SIZE", 100),
		DeleteConcurrency:    getEnvInt("DELETE_CONCURRENCY", 0),
		QueryTimeout:         getEnvDuration("QUERY_TIMEOUT", 30*time.Second),
		SessionIdleTimeout:   getEnvDuration("SESSION_IDLE_TIMEOUT", 30*time.Minute),
		SessionSweepInterval: getEnvDuration("SESSION_SWEEP_INTERVAL", time.Minute),
		BreakerMaxFailures:   getEnvInt("BREAKER_MAX_FAILURES", 5),
		BreakerResetTimeout:  getEnvDuration("BREAKER_RESET_TIMEOUT", 30*time.Second),
		HookEndpoints:        getEnvList("HOOK_ENDPOINTS"),
		HookRetryMax:         getEnvInt("HOOK_RETRY_MAX", 3),
		HookRetryBackoff:     getEnvDuration("HOOK_RETRY_BACKOFF", 100*time.Millisecond),
		HookRPCTimeout:       getEnvDuration("HOOK_RPC_TIMEOUT", 5*time.Second),
	}
}

// Validate reports settings that leave the service unable to start.
func (c Config) Validate() error {
	if c.DatabaseURL == "" && c.ShardConfigPath == "" && c.TableStorePath == "" {
		return errors.New("config: set DATABASE_URL or SHARD_CONFIG_PATH for documents, or TABLE_STORE_PATH for tables")
	}
	if c.NumShards <= 0 {
		return errors.New("config: NUM_SHARDS must be positive")
	}
	return nil
}

// DocumentStore reports whether a document store is configured.
func (c Config) DocumentStore() bool {
	return c.DatabaseURL != "" || c.ShardConfigPath != ""
}

// Location resolves DisplayTimezone, falling back to the local zone.
func (c Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.DisplayTimezone)
	if err != nil {
		slog.Warn("invalid display timezone, using local", "value", c.DisplayTimezone, "error", err)
		return time.Local
	}
	return loc
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			slog.Warn("invalid integer env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return n
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			slog.Warn("invalid boolean env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return b
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			slog.Warn("invalid duration env var, using default", "key", key, "value", v, "error", err)
			return fallback
		}
		return d
	}
	return fallback
}

// getEnvList splits a comma-separated value, dropping blank entries.
func getEnvList(key string) []string {
	var out []string
	for _, part := range strings.Split(os.Getenv(key), ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
