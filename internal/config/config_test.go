package config

import (
	"testing"
	"time"
	_ "time/tzdata"
)

func TestLoad_Defaults(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "LOG_FILE", "DATABASE_URL", "SHARD_CONFIG_PATH", "NUM_SHARDS",
		"DEFAULT_MAX_COUNT", "DEFAULT_PAGE_SIZE", "COERCE_NUMERIC_DATES", "QUERY_TIMEOUT",
		"HOOK_ENDPOINTS", "HOOK_RETRY_MAX", "BREAKER_MAX_FAILURES",
	} {
		t.Setenv(key, "")
	}

	cfg := Load()

	if cfg.Port != "8080" {
		t.Errorf("Port: got %q, want %q", cfg.Port, "8080")
	}
	if cfg.LogLevel != "info" {
		t.Errorf("LogLevel: got %q, want %q", cfg.LogLevel, "info")
	}
	if cfg.NumShards != 16 {
		t.Errorf("NumShards: got %d, want 16", cfg.NumShards)
	}
	if cfg.DefaultMaxCount != 1000 || cfg.DefaultPageSize != 100 {
		t.Errorf("grid defaults: got %d/%d", cfg.DefaultMaxCount, cfg.DefaultPageSize)
	}
	if !cfg.CoerceNumericDates {
		t.Error("CoerceNumericDates should default to true")
	}
	if cfg.QueryTimeout != 30*time.Second {
		t.Errorf("QueryTimeout: got %v", cfg.QueryTimeout)
	}
	if len(cfg.HookEndpoints) != 0 {
		t.Errorf("HookEndpoints: got %v", cfg.HookEndpoints)
	}
	if cfg.HookRetryMax != 3 || cfg.BreakerMaxFailures != 5 {
		t.Errorf("retry/breaker defaults: got %d/%d", cfg.HookRetryMax, cfg.BreakerMaxFailures)
	}
	if cfg.DocumentStore() {
		t.Error("no document store should be configured")
	}
	if err := cfg.Validate(); err == nil {
		t.Error("expected Validate to fail without any store")
	}
}

func TestLoad_CustomValues(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("DATABASE_URL", "postgres://localhost/docs")
	t.Setenv("NUM_SHARDS", "8")
	t.Setenv("TABLE_STORE_PATH", "/var/lib/docsync/tables.db")
	t.Setenv("DISPLAY_TIMEZONE", "Europe/Berlin")
	t.Setenv("COERCE_NUMERIC_DATES", "false")
	t.Setenv("DELETE_CONCURRENCY", "4")
	t.Setenv("SESSION_IDLE_TIMEOUT", "10m")
	t.Setenv("HOOK_ENDPOINTS", "http://a/rpc, ,http://b/rpc")
	t.Setenv("HOOK_RETRY_BACKOFF", "250ms")

	cfg := Load()

	if cfg.Port != "9090" || cfg.LogLevel != "debug" {
		t.Errorf("Port/LogLevel: got %q/%q", cfg.Port, cfg.LogLevel)
	}
	if !cfg.DocumentStore() || cfg.NumShards != 8 {
		t.Errorf("document store: url=%q shards=%d", cfg.DatabaseURL, cfg.NumShards)
	}
	if cfg.TableStorePath != "/var/lib/docsync/tables.db" {
		t.Errorf("TableStorePath: got %q", cfg.TableStorePath)
	}
	if cfg.CoerceNumericDates {
		t.Error("CoerceNumericDates: got true")
	}
	if cfg.DeleteConcurrency != 4 {
		t.Errorf("DeleteConcurrency: got %d", cfg.DeleteConcurrency)
	}
	if cfg.SessionIdleTimeout != 10*time.Minute {
		t.Errorf("SessionIdleTimeout: got %v", cfg.SessionIdleTimeout)
	}
	if len(cfg.HookEndpoints) != 2 || cfg.HookEndpoints[1] != "http://b/rpc" {
		t.Errorf("HookEndpoints: got %v", cfg.HookEndpoints)
	}
	if cfg.HookRetryBackoff != 250*time.Millisecond {
		t.Errorf("HookRetryBackoff: got %v", cfg.HookRetryBackoff)
	}
	if cfg.Location().String() != "Europe/Berlin" {
		t.Errorf("Location: got %v", cfg.Location())
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Validate: %v", err)
	}
}

func TestConfig_LocationFallback(t *testing.T) {
	cfg := Config{DisplayTimezone: "Not/AZone"}
	if cfg.Location() != time.Local {
		t.Errorf("expected local fallback, got %v", cfg.Location())
	}
}

func TestGetEnvHelpers(t *testing.T) {
	t.Setenv("TEST_INT_KEY", "99")
	t.Setenv("TEST_INT_INVALID", "not_a_number")
	t.Setenv("TEST_BOOL_KEY", "1")
	t.Setenv("TEST_BOOL_INVALID", "maybe")
	t.Setenv("TEST_DUR_KEY", "2s")
	t.Setenv("TEST_DUR_INVALID", "soon")

	if got := getEnv("TEST_NONEXISTENT_KEY", "fallback"); got != "fallback" {
		t.Errorf("getEnv fallback: got %q", got)
	}
	if got := getEnvInt("TEST_INT_KEY", 0); got != 99 {
		t.Errorf("getEnvInt: got %d", got)
	}
	if got := getEnvInt("TEST_INT_INVALID", 7); got != 7 {
		t.Errorf("getEnvInt invalid: got %d", got)
	}
	if got := getEnvBool("TEST_BOOL_KEY", false); !got {
		t.Error("getEnvBool: got false")
	}
	if got := getEnvBool("TEST_BOOL_INVALID", true); !got {
		t.Error("getEnvBool invalid: expected fallback true")
	}
	if got := getEnvDuration("TEST_DUR_KEY", 0); got != 2*time.Second {
		t.Errorf("getEnvDuration: got %v", got)
	}
	if got := getEnvDuration("TEST_DUR_INVALID", time.Millisecond); got != time.Millisecond {
		t.Errorf("getEnvDuration invalid: got %v", got)
	}
}
