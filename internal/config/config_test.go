package config

import (
	"context"
	"os"
	"strings"
	"testing"
)

var configEnv = []string{
	"CONFIG_FILE", "PORT", "ENVIRONMENT", "LOG_LEVEL", "GCP_PROJECT", "CONFIG_SECRET",
	"TARGET_URL", "PROXY_HOST", "HOSTED", "ENABLE_CACHE", "CACHE_TTL", "CACHE_CAPACITY",
	"SESSION_DB", "UPSTREAM_RPS", "STEALTH", "PROTECTED_PATTERNS", "ALLOW_CREDENTIALS",
}

// clearEnv blanks every variable Load reads; t.Setenv restores them afterwards.
func clearEnv(t *testing.T) {
	t.Helper()
	for _, k := range configEnv {
		t.Setenv(k, "")
	}
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("TARGET_URL", "https://shop.example.com/")
	t.Setenv("PROXY_HOST", "mirror.example.net")
	t.Setenv("HOSTED", "true")
	t.Setenv("ENABLE_CACHE", "true")
	t.Setenv("CACHE_TTL", "120")
	t.Setenv("UPSTREAM_RPS", "2.5")
	t.Setenv("PROTECTED_PATTERNS", "shop.example.com, , cdn.example.net")
	t.Setenv("SESSION_DB", "/tmp/sessions.db")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "9090" {
		t.Errorf("Port = %s, want 9090", cfg.Port)
	}
	if cfg.LogLevel != "debug" {
		t.Errorf("LogLevel = %s, want debug", cfg.LogLevel)
	}
	if cfg.Proxy.TargetURL != "https://shop.example.com" {
		t.Errorf("TargetURL = %s, want https://shop.example.com (no trailing slash)", cfg.Proxy.TargetURL)
	}
	if cfg.Proxy.ProxyHost != "mirror.example.net" || !cfg.Proxy.Hosted {
		t.Errorf("ProxyHost = %s hosted=%v", cfg.Proxy.ProxyHost, cfg.Proxy.Hosted)
	}
	if !cfg.Proxy.EnableCache || cfg.Proxy.CacheTTL != 120 {
		t.Errorf("cache = %v/%d, want enabled/120", cfg.Proxy.EnableCache, cfg.Proxy.CacheTTL)
	}
	if cfg.Proxy.CacheCapacity != DefaultCacheCapacity {
		t.Errorf("CacheCapacity = %d, want %d", cfg.Proxy.CacheCapacity, DefaultCacheCapacity)
	}
	if cfg.Proxy.UpstreamRPS != 2.5 {
		t.Errorf("UpstreamRPS = %v, want 2.5", cfg.Proxy.UpstreamRPS)
	}
	if got := strings.Join(cfg.Proxy.ProtectedPatterns, "|"); got != "shop.example.com|cdn.example.net" {
		t.Errorf("ProtectedPatterns = %q", got)
	}
	if cfg.Proxy.SessionDB != "/tmp/sessions.db" {
		t.Errorf("SessionDB = %s", cfg.Proxy.SessionDB)
	}
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != DefaultPort {
		t.Errorf("Port = %s, want %s", cfg.Port, DefaultPort)
	}
	if cfg.Environment != "development" {
		t.Errorf("Environment = %s, want development", cfg.Environment)
	}
	if cfg.Proxy.TargetURL != DefaultTargetURL {
		t.Errorf("TargetURL = %s, want %s", cfg.Proxy.TargetURL, DefaultTargetURL)
	}
	if cfg.Proxy.ProxyHost != "localhost:3000" {
		t.Errorf("ProxyHost = %s, want localhost:3000", cfg.Proxy.ProxyHost)
	}
	if cfg.Proxy.EnableCache {
		t.Error("cache enabled by default, want opt-in")
	}
	if cfg.Proxy.CacheTTL != DefaultCacheTTL {
		t.Errorf("CacheTTL = %d, want %d", cfg.Proxy.CacheTTL, DefaultCacheTTL)
	}
}

func TestLoadInvalid(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		value   string
		wantErr string
	}{
		{"bad scheme", "TARGET_URL", "ftp://example.com", "invalid target_url"},
		{"missing host", "TARGET_URL", "https://", "invalid target_url"},
		{"proxy host with path", "PROXY_HOST", "localhost:3000/app", "invalid proxy_host"},
		{"bad port", "PORT", "http", "invalid port"},
		{"bad bool", "ENABLE_CACHE", "sometimes", "ENABLE_CACHE"},
		{"bad int", "CACHE_TTL", "1h", "CACHE_TTL"},
		{"negative capacity", "CACHE_CAPACITY", "-1", "cache_capacity"},
		{"bad rps", "UPSTREAM_RPS", "fast", "UPSTREAM_RPS"},
		{"negative rps", "UPSTREAM_RPS", "-3", "upstream_rps"},
		{"bad log level", "LOG_LEVEL", "verbose", "invalid log_level"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			t.Setenv(tt.key, tt.value)

			_, err := Load(context.Background())
			if err == nil {
				t.Fatalf("Expected error containing %q", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Error = %q, want containing %q", err.Error(), tt.wantErr)
			}
		})
	}
}

func TestLoadProductionSecretRequiresProject(t *testing.T) {
	clearEnv(t)
	t.Setenv("ENVIRONMENT", "production")
	t.Setenv("CONFIG_SECRET", "mirror-config")

	_, err := Load(context.Background())
	if err == nil || !strings.Contains(err.Error(), "GCP_PROJECT") {
		t.Errorf("expected GCP_PROJECT error, got: %v", err)
	}
}

func TestEnvOrDefault(t *testing.T) {
	t.Setenv("TEST_ENV_VAR", "custom")
	if got := envOrDefault("TEST_ENV_VAR", "default"); got != "custom" {
		t.Errorf("envOrDefault with set var = %q, want custom", got)
	}

	t.Setenv("TEST_ENV_VAR_UNSET", "")
	if got := envOrDefault("TEST_ENV_VAR_UNSET", "default"); got != "default" {
		t.Errorf("envOrDefault with unset var = %q, want default", got)
	}
}

func TestWithDefault(t *testing.T) {
	if got := withDefault("value", "default"); got != "value" {
		t.Errorf("withDefault(value, default) = %q, want value", got)
	}
	if got := withDefault("", "default"); got != "default" {
		t.Errorf("withDefault('', default) = %q, want default", got)
	}
}

func TestLoadFromFile(t *testing.T) {
	clearEnv(t)
	content := `{
		"port": "8081",
		"environment": "test",
		"log_level": "warn",
		"proxy": {
			"target_url": "https://docs.example.org",
			"enable_cache": true,
			"cache_capacity": 50,
			"stealth": true,
			"protected_patterns": ["docs.example.org"]
		}
	}`

	tmpFile, err := os.CreateTemp(t.TempDir(), "config-*.json")
	if err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	if _, err := tmpFile.WriteString(content); err != nil {
		t.Fatalf("failed to write temp file: %v", err)
	}
	tmpFile.Close()

	t.Setenv("CONFIG_FILE", tmpFile.Name())
	// File settings win over the environment entirely.
	t.Setenv("TARGET_URL", "https://ignored.example.com")

	cfg, err := Load(context.Background())
	if err != nil {
		t.Fatalf("Load() error: %v", err)
	}

	if cfg.Port != "8081" {
		t.Errorf("Port = %s, want 8081", cfg.Port)
	}
	if cfg.Proxy.TargetURL != "https://docs.example.org" {
		t.Errorf("TargetURL = %s, want https://docs.example.org", cfg.Proxy.TargetURL)
	}
	if cfg.Proxy.ProxyHost != "localhost:8081" {
		t.Errorf("ProxyHost = %s, want localhost:8081 (derived)", cfg.Proxy.ProxyHost)
	}
	if !cfg.Proxy.EnableCache || cfg.Proxy.CacheCapacity != 50 || cfg.Proxy.CacheTTL != DefaultCacheTTL {
		t.Errorf("cache = %+v", cfg.Proxy)
	}
	if !cfg.Proxy.Stealth || len(cfg.Proxy.ProtectedPatterns) != 1 {
		t.Errorf("Stealth = %v, ProtectedPatterns = %v", cfg.Proxy.Stealth, cfg.Proxy.ProtectedPatterns)
	}
}

func TestLoadFromFileErrors(t *testing.T) {
	clearEnv(t)

	t.Run("file not found", func(t *testing.T) {
		t.Setenv("CONFIG_FILE", "/nonexistent/config.json")
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for nonexistent file")
		}
	})

	t.Run("invalid JSON", func(t *testing.T) {
		path := t.TempDir() + "/config.json"
		os.WriteFile(path, []byte("{invalid json"), 0o600)

		t.Setenv("CONFIG_FILE", path)
		if _, err := Load(context.Background()); err == nil {
			t.Error("expected error for invalid JSON")
		}
	})

	t.Run("invalid target", func(t *testing.T) {
		path := t.TempDir() + "/config.json"
		os.WriteFile(path, []byte(`{"proxy": {"target_url": "example.com"}}`), 0o600)

		t.Setenv("CONFIG_FILE", path)
		_, err := Load(context.Background())
		if err == nil || !strings.Contains(err.Error(), "invalid target_url") {
			t.Errorf("expected target_url error, got: %v", err)
		}
	})
}
