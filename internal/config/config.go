// Package config handles loading and validation of cartd configuration.
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
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// Backends cartd can talk to.
const (
	BackendShopify = "shopify" // Storefront GraphQL API
	BackendProxy   = "proxy"   // storefront cart proxy returning flat carts
)

// Defaults for the sync timings.
const (
	DefaultDebounce        = 250 * time.Millisecond
	DefaultPollInterval    = 50 * time.Millisecond
	DefaultFlushTimeout    = 3 * time.Second
	DefaultCheckoutTimeout = 8 * time.Second
	DefaultSessionIdleTTL  = 30 * time.Minute
)

// Config holds all service configuration.
// Environment determines whether the storefront credentials load from env
// vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	StoreID    string // names the secret holding Store

	// Backend is BackendShopify or BackendProxy.
	Backend string

	// Store-specific configuration (loaded from secrets in production)
	Store StoreConfig

	Sync SyncConfig

	// IdentityDB is the SQLite file persisting cart identities. Empty keeps
	// identities in memory for the life of the process.
	IdentityDB string

	// SessionIdleTTL evicts sessions idle for longer.
	SessionIdleTTL time.Duration

	// SecureCookies marks the session cookie Secure.
	SecureCookies bool
}

// StoreConfig contains storefront connection settings.
// In production, this is loaded from Secret Manager as JSON.
type StoreConfig struct {
	StoreURL        string `json:"store_url"`
	StoreDomain     string `json:"store_domain"` // Derived from StoreURL if not set
	StorefrontToken string `json:"storefront_token"`
	APIVersion      string `json:"api_version,omitempty"`

	// ProxyURL is the cart proxy root for BackendProxy.
	ProxyURL string `json:"proxy_url,omitempty"`

	// DisableFingerprint falls back to the stdlib TLS stack.
	DisableFingerprint bool `json:"disable_fingerprint,omitempty"`
}

// SyncConfig tunes the per-session sync engine.
type SyncConfig struct {
	Debounce        Duration `json:"debounce"`
	PollInterval    Duration `json:"poll_interval"`
	FlushTimeout    Duration `json:"flush_timeout"`
	CheckoutTimeout Duration `json:"checkout_timeout"`
	// OpenDelay opens the cart after a successful add. Zero disables.
	OpenDelay Duration `json:"open_delay"`
}

// Duration is a time.Duration written as a Go duration string ("250ms") in
// JSON. Plain numbers are read as milliseconds.
type Duration time.Duration

// UnmarshalJSON implements json.Unmarshaler.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		var ms int64
		if err := json.Unmarshal(b, &ms); err != nil {
			return fmt.Errorf("duration must be a string or milliseconds: %s", b)
		}
		*d = Duration(time.Duration(ms) * time.Millisecond)
		return nil
	}
	v, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("parsing duration %q: %w", s, err)
	}
	*d = Duration(v)
	return nil
}

// Std returns d as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// Load reads configuration from file, environment, or Secret Manager.
// Priority: CONFIG_FILE (if set) → ENV vars / Secret Manager.
// Validates all required fields and returns an error if any are missing.
func Load(ctx context.Context) (*Config, error) {
	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		return loadFromFile(configPath)
	}

	// Otherwise, use ENV vars / Secret Manager approach
	cfg := &Config{
		Port:        envOrDefault("PORT", "8080"),
		Environment: envOrDefault("ENVIRONMENT", "development"),
		LogLevel:    envOrDefault("LOG_LEVEL", "info"),
		GCPProject:  os.Getenv("GCP_PROJECT"),
		StoreID:     os.Getenv("STORE_ID"),
		Backend:     envOrDefault("BACKEND", BackendShopify),
		IdentityDB:  os.Getenv("IDENTITY_DB"),
	}

	var err error
	if cfg.Sync, err = syncFromEnv(); err != nil {
		return nil, err
	}
	if cfg.SessionIdleTTL, err = envDuration("SESSION_IDLE_TTL", DefaultSessionIdleTTL); err != nil {
		return nil, err
	}
	if v := os.Getenv("SECURE_COOKIES"); v != "" {
		if cfg.SecureCookies, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("parsing SECURE_COOKIES: %w", err)
		}
	}

	// Load store config based on environment
	if cfg.Environment == "production" {
		if cfg.GCPProject == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		if cfg.StoreID == "" {
			return nil, fmt.Errorf("STORE_ID required in production environment")
		}
		err = cfg.loadFromSecretManager(ctx)
	} else {
		cfg.loadFromEnv()
	}
	if err != nil {
		return nil, fmt.Errorf("loading store config: %w", err)
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

	// Use a struct that matches the JSON structure
	var fileConfig struct {
		Port           string      `json:"port"`
		Environment    string      `json:"environment"`
		LogLevel       string      `json:"log_level"`
		Backend        string      `json:"backend"`
		StoreID        string      `json:"store_id"`
		Store          StoreConfig `json:"store"`
		Sync           SyncConfig  `json:"sync"`
		IdentityDB     string      `json:"identity_db"`
		SessionIdleTTL Duration    `json:"session_idle_ttl"`
		SecureCookies  bool        `json:"secure_cookies"`
	}

	if err := json.Unmarshal(data, &fileConfig); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg := &Config{
		Port:           withDefault(fileConfig.Port, "8080"),
		Environment:    withDefault(fileConfig.Environment, "development"),
		LogLevel:       withDefault(fileConfig.LogLevel, "info"),
		Backend:        fileConfig.Backend,
		StoreID:        fileConfig.StoreID,
		Store:          fileConfig.Store,
		Sync:           fileConfig.Sync,
		IdentityDB:     fileConfig.IdentityDB,
		SessionIdleTTL: fileConfig.SessionIdleTTL.Std(),
		SecureCookies:  fileConfig.SecureCookies,
	}

	if cfg.Backend == "" {
		return nil, fmt.Errorf("backend is required (shopify or proxy)")
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

// loadFromSecretManager fetches store config from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{store_id}/versions/latest
func (c *Config) loadFromSecretManager(ctx context.Context) error {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest",
		c.GCPProject, c.StoreID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	if err := json.Unmarshal(result.Payload.Data, &c.Store); err != nil {
		return fmt.Errorf("parsing secret JSON: %w", err)
	}

	return nil
}

// loadFromEnv reads store config from individual environment variables.
// Used in development mode for local testing.
func (c *Config) loadFromEnv() {
	c.Store = StoreConfig{
		StoreURL:        os.Getenv("STORE_URL"),
		StoreDomain:     os.Getenv("STORE_DOMAIN"),
		StorefrontToken: os.Getenv("STOREFRONT_TOKEN"),
		APIVersion:      os.Getenv("STOREFRONT_API_VERSION"),
		ProxyURL:        os.Getenv("CART_PROXY_URL"),
	}
	c.Store.DisableFingerprint, _ = strconv.ParseBool(os.Getenv("DISABLE_FINGERPRINT"))
}

func syncFromEnv() (SyncConfig, error) {
	var s SyncConfig
	fields := []struct {
		key string
		dst *Duration
	}{
		{"SYNC_DEBOUNCE", &s.Debounce},
		{"SYNC_POLL_INTERVAL", &s.PollInterval},
		{"SYNC_FLUSH_TIMEOUT", &s.FlushTimeout},
		{"CHECKOUT_TIMEOUT", &s.CheckoutTimeout},
		{"CART_OPEN_DELAY", &s.OpenDelay},
	}
	for _, f := range fields {
		d, err := envDuration(f.key, 0)
		if err != nil {
			return SyncConfig{}, err
		}
		*f.dst = Duration(d)
	}
	return s, nil
}

// applyDefaults fills zero timings and derives the store domain.
func (c *Config) applyDefaults() {
	if c.Sync.Debounce == 0 {
		c.Sync.Debounce = Duration(DefaultDebounce)
	}
	if c.Sync.PollInterval == 0 {
		c.Sync.PollInterval = Duration(DefaultPollInterval)
	}
	if c.Sync.FlushTimeout == 0 {
		c.Sync.FlushTimeout = Duration(DefaultFlushTimeout)
	}
	if c.Sync.CheckoutTimeout == 0 {
		c.Sync.CheckoutTimeout = Duration(DefaultCheckoutTimeout)
	}
	if c.SessionIdleTTL == 0 {
		c.SessionIdleTTL = DefaultSessionIdleTTL
	}

	// Derive store domain from URL if not explicitly set
	if c.Store.StoreDomain == "" && c.Store.StoreURL != "" {
		c.Store.StoreDomain = extractDomain(c.Store.StoreURL)
	}
}

// validate checks that all required configuration fields are present.
func (c *Config) validate() error {
	switch c.Backend {
	case BackendShopify:
		if c.Store.StoreDomain == "" {
			return fmt.Errorf("store_domain or store_url is required for the shopify backend")
		}
		if c.Store.StorefrontToken == "" {
			return fmt.Errorf("storefront_token is required for the shopify backend")
		}
	case BackendProxy:
		if c.Store.ProxyURL == "" {
			return fmt.Errorf("proxy_url is required for the proxy backend")
		}
		u, err := url.Parse(c.Store.ProxyURL)
		if err != nil {
			return fmt.Errorf("invalid proxy_url: %w", err)
		}
		if u.Scheme != "http" && u.Scheme != "https" {
			return fmt.Errorf("invalid proxy_url: scheme must be http or https")
		}
	default:
		return fmt.Errorf("unknown backend %q (want shopify or proxy)", c.Backend)
	}

	// Validate store URL is well-formed
	if c.Store.StoreURL != "" {
		if _, err := url.Parse(c.Store.StoreURL); err != nil {
			return fmt.Errorf("invalid store_url: %w", err)
		}
	}

	timings := map[string]Duration{
		"debounce":         c.Sync.Debounce,
		"poll_interval":    c.Sync.PollInterval,
		"flush_timeout":    c.Sync.FlushTimeout,
		"checkout_timeout": c.Sync.CheckoutTimeout,
		"open_delay":       c.Sync.OpenDelay,
	}
	for name, d := range timings {
		if d < 0 {
			return fmt.Errorf("sync %s must not be negative", name)
		}
	}
	if c.SessionIdleTTL < 0 {
		return fmt.Errorf("session_idle_ttl must not be negative")
	}

	return nil
}

// extractDomain parses the domain from a URL string.
func extractDomain(storeURL string) string {
	u, err := url.Parse(storeURL)
	if err != nil || u.Host == "" {
		// Fallback: strip protocol prefix manually
		domain := strings.TrimPrefix(storeURL, "https://")
		domain = strings.TrimPrefix(domain, "http://")
		return strings.Split(domain, "/")[0]
	}
	return u.Host
}

// envOrDefault returns the environment variable value or the default if not set.
func envOrDefault(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

// envDuration parses a duration variable such as "250ms".
func envDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("parsing %s: %w", key, err)
	}
	return d, nil
}
