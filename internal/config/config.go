// Package config handles loading and validation of service configuration.
// Supports both development (env vars or CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Defaults applied when a setting is absent.
const (
	DefaultPort          = "3000"
	DefaultTargetURL     = "https://example.com"
	DefaultCacheTTL      = 3600
	DefaultCacheCapacity = 500
)

// Config holds all service configuration.
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (production only). ConfigSecret names a secret whose
	// JSON payload has the same shape as ProxyConfig.
	GCPProject   string
	ConfigSecret string

	Proxy ProxyConfig
}

// ProxyConfig is the mirror-specific part of the configuration.
type ProxyConfig struct {
	TargetURL string `json:"target_url"`
	ProxyHost string `json:"proxy_host"` // defaults to localhost:{Port}
	Hosted    bool   `json:"hosted"`     // served behind an https front end

	EnableCache   bool `json:"enable_cache"`
	CacheTTL      int  `json:"cache_ttl"` // seconds
	CacheCapacity int  `json:"cache_capacity"`

	SessionDB   string  `json:"session_db,omitempty"` // SQLite path; empty keeps sessions in memory
	UpstreamRPS float64 `json:"upstream_rps,omitempty"`

	Stealth           bool     `json:"stealth"`
	ProtectedPatterns []string `json:"protected_patterns,omitempty"`
	AllowCredentials  bool     `json:"allow_credentials"`
}

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars, overlaid by CONFIG_SECRET in
// production. Validates all fields and returns an error naming the first
// bad one.
func Load(ctx context.Context) (*Config, error) {
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	cfg := &Config{
		Port:         envOrDefault("PORT", DefaultPort),
		Environment:  envOrDefault("ENVIRONMENT", "development"),
		LogLevel:     envOrDefault("LOG_LEVEL", "info"),
		GCPProject:   os.Getenv("GCP_PROJECT"),
		ConfigSecret: os.Getenv("CONFIG_SECRET"),
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("loading proxy config: %w", err)
	}

	if cfg.Environment == "production" && cfg.ConfigSecret != "" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required when CONFIG_SECRET is set")
		}
		if err := cfg.loadFromSecretManager(ctx); err != nil {
			return nil, fmt.Errorf("loading proxy config: %w", err)
		}
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// loadFromFile reads all configuration from a JSON file.
// Used for local development to avoid multiple ENV vars.
func loadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var fileConfig struct {
		Port        string      `json:"port"`
		Environment string      `json:"environment"`
		LogLevel    string      `json:"log_level"`
		Proxy       ProxyConfig `json:"proxy"`
	}
	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:        withDefault(fileConfig.Port, DefaultPort),
		Environment: withDefault(fileConfig.Environment, "development"),
		LogLevel:    withDefault(fileConfig.LogLevel, "info"),
		Proxy:       fileConfig.Proxy,
	}

	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// loadFromSecretManager overlays the proxy config with a JSON secret.
// Secret name format: projects/{project}/secrets/{secret}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.ConfigSecret)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Proxy); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}
	return nil
}

// loadFromEnv reads the proxy config from individual environment variables.
func (c *Config) loadFromEnv() error {
	c.Proxy = ProxyConfig{
		TargetURL: envOrDefault("TARGET_URL", DefaultTargetURL),
		ProxyHost: os.Getenv("PROXY_HOST"),
		SessionDB: os.Getenv("SESSION_DB"),
	}

	var err error
	if c.Proxy.Hosted, err = envBool("HOSTED"); err != nil {
		return err
	}
	if c.Proxy.EnableCache, err = envBool("ENABLE_CACHE"); err != nil {
		return err
	}
	if c.Proxy.Stealth, err = envBool("STEALTH"); err != nil {
		return err
	}
	if c.Proxy.AllowCredentials, err = envBool("ALLOW_CREDENTIALS"); err != nil {
		return err
	}
	if c.Proxy.CacheTTL, err = envInt("CACHE_TTL"); err != nil {
		return err
	}
	if c.Proxy.CacheCapacity, err = envInt("CACHE_CAPACITY"); err != nil {
		return err
	}
	if v := os.Getenv("UPSTREAM_RPS"); v != "" {
		rps, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return fmt.Errorf("parsing UPSTREAM_RPS: %w", err)
		}
		c.Proxy.UpstreamRPS = rps
	}
	if v := os.Getenv("PROTECTED_PATTERNS"); v != "" {
		for _, p := range strings.Split(v, ",") {
			if p = strings.TrimSpace(p); p != "" {
				c.Proxy.ProtectedPatterns = append(c.Proxy.ProtectedPatterns, p)
			}
		}
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Proxy.TargetURL == "" {
		c.Proxy.TargetURL = DefaultTargetURL
	}
	if c.Proxy.ProxyHost == "" {
		c.Proxy.ProxyHost = "localhost:" + c.Port
	}
	if c.Proxy.CacheTTL == 0 {
		c.Proxy.CacheTTL = DefaultCacheTTL
	}
	if c.Proxy.CacheCapacity == 0 {
		c.Proxy.CacheCapacity = DefaultCacheCapacity
	}
	c.Proxy.TargetURL = strings.TrimSuffix(c.Proxy.TargetURL, "/")
}

// validate checks that every field is usable.
func (c *Config) validate() error {
	u, err := url.Parse(c.Proxy.TargetURL)
	if err != nil {
		return fmt.Errorf("invalid target_url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("invalid target_url: scheme must be http or https")
	}
	if u.Host == "" {
		return fmt.Errorf("invalid target_url: host is required")
	}
	if strings.Contains(c.Proxy.ProxyHost, "/") {
		return fmt.Errorf("invalid proxy_host: must be host[:port], got %q", c.Proxy.ProxyHost)
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		return fmt.Errorf("invalid port %q", c.Port)
	}
	if c.Proxy.CacheTTL < 0 {
		return fmt.Errorf("cache_ttl must not be negative")
	}
	if c.Proxy.CacheCapacity < 0 {
		return fmt.Errorf("cache_capacity must not be negative")
	}
	if c.Proxy.UpstreamRPS < 0 {
		return fmt.Errorf("upstream_rps must not be negative")
	}
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q", c.LogLevel)
	}
	return nil
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func envBool(key string) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return false, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("parsing %s: %w", key, err)
	}
	return b, nil
}

func envInt(key string) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return n, nil
}
