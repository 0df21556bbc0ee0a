package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/viper"
)

// configPtr holds the current config for thread-safe access.
var configPtr atomic.Pointer[Config]

// loadedConfigFile stores the path of the config file used by the last successful Load.
var loadedConfigFile atomic.Value

// Get returns the current Config. It is safe for concurrent use.
// If no config has been loaded yet, it returns the default config.
func Get() *Config {
	if c := configPtr.Load(); c != nil {
		return c
	}
	d := DefaultConfig()
	configPtr.Store(d)
	return d
}

// set stores a new Config atomically.
func set(cfg *Config) {
	configPtr.Store(cfg)
}

// Config is the top-level configuration for the core.
type Config struct {
	Server     ServerConfig     `mapstructure:"server"     toml:"server"`
	Admin      AdminConfig      `mapstructure:"admin"      toml:"admin"`
	Cache      CacheConfig      `mapstructure:"cache"      toml:"cache"`
	Session    SessionConfig    `mapstructure:"session"    toml:"session"`
	RateLimit  RateLimitConfig  `mapstructure:"rate_limit" toml:"rate_limit"`
	Resilience ResilienceConfig `mapstructure:"resilience" toml:"resilience"`
	Tracing    TracingConfig    `mapstructure:"tracing"    toml:"tracing"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    toml:"metrics"`
	Plugins    PluginConfig     `mapstructure:"plugins"    toml:"plugins"`
}

// ServerConfig holds the core HTTP server settings.
type ServerConfig struct {
	BindAddress  string `mapstructure:"bind_address" toml:"bind_address"`
	Port         int    `mapstructure:"port"         toml:"port"`
	LogLevel     string `mapstructure:"log_level"    toml:"log_level"`
	DataDir      string `mapstructure:"data_dir"     toml:"data_dir"`
	TLSEnabled   bool   `mapstructure:"tls_enabled"  toml:"tls_enabled"`
	CertFile     string `mapstructure:"cert_file"    toml:"cert_file"`
	KeyFile      string `mapstructure:"key_file"     toml:"key_file"`
	ReadTimeout  int    `mapstructure:"read_timeout"  toml:"read_timeout"`
	WriteTimeout int    `mapstructure:"write_timeout" toml:"write_timeout"`
	IdleTimeout  int    `mapstructure:"idle_timeout"  toml:"idle_timeout"`
	MaxBodySize  int64  `mapstructure:"max_body_size" toml:"max_body_size"`
}

// AdminConfig controls the read-only debug/introspection HTTP mux.
type AdminConfig struct {
	Enabled        bool     `mapstructure:"enabled"         toml:"enabled"`
	Port           int      `mapstructure:"port"            toml:"port"`
	AuthEnabled    bool     `mapstructure:"auth_enabled"    toml:"auth_enabled"`
	AuthToken      string   `mapstructure:"auth_token"      toml:"auth_token"`
	AllowedOrigins []string `mapstructure:"allowed_origins" toml:"allowed_origins"`
}

// CacheConfig groups the two cache tiers' settings.
type CacheConfig struct {
	Response ResponseCacheConfig `mapstructure:"response" toml:"response"`
	Query    QueryCacheConfig    `mapstructure:"query"     toml:"query"`
}

// ResponseCacheConfig controls the HTTP response cache (internal/httpcache).
type ResponseCacheConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	MaxEntries int  `mapstructure:"max_entries" toml:"max_entries"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// QueryCacheConfig controls the SQL query cache (internal/querycache).
type QueryCacheConfig struct {
	Enabled    bool `mapstructure:"enabled"     toml:"enabled"`
	MaxEntries int  `mapstructure:"max_entries" toml:"max_entries"`
	TTLSeconds int  `mapstructure:"ttl_seconds" toml:"ttl_seconds"`
}

// SessionConfig controls session cookies, storage, and fingerprinting.
type SessionConfig struct {
	CookieName        string `mapstructure:"cookie_name"          toml:"cookie_name"`
	MaxAgeSeconds      int    `mapstructure:"max_age_seconds"      toml:"max_age_seconds"`
	Secure            bool   `mapstructure:"secure"               toml:"secure"`
	HttpOnly          bool   `mapstructure:"http_only"            toml:"http_only"`
	SameSite          string `mapstructure:"same_site"            toml:"same_site"` // "lax", "strict", "none"
	FingerprintMode   string `mapstructure:"fingerprint_mode"      toml:"fingerprint_mode"` // "disabled", "soft", "strict"
	SaveStrategy      string `mapstructure:"save_strategy"         toml:"save_strategy"`    // "immediate", "batched", "end_of_request"
	BatchIntervalMs   int    `mapstructure:"batch_interval_ms"     toml:"batch_interval_ms"`
	StorageBackend    string `mapstructure:"storage_backend"       toml:"storage_backend"` // "memory", "sqlite"
	SQLitePath        string `mapstructure:"sqlite_path"           toml:"sqlite_path"`
	CleanupIntervalMs int    `mapstructure:"cleanup_interval_ms"   toml:"cleanup_interval_ms"`
	Enabled           bool   `mapstructure:"enabled"               toml:"enabled"`
}

// RateLimitConfig controls per-route token-bucket rate limiting.
type RateLimitConfig struct {
	Enabled      bool                       `mapstructure:"enabled"       toml:"enabled"`
	DefaultRate  float64                    `mapstructure:"default_rate"  toml:"default_rate"` // requests per second
	DefaultBurst int                        `mapstructure:"default_burst" toml:"default_burst"`
	RouteLimits  map[string]RouteRateLimit  `mapstructure:"route_limits"  toml:"route_limits"`
}

// RouteRateLimit defines rate limit settings for one exact request path.
type RouteRateLimit struct {
	Rate  float64 `mapstructure:"rate"  toml:"rate"`
	Burst int     `mapstructure:"burst" toml:"burst"`
}

// ResilienceConfig controls retry and circuit breaker defaults applied by
// internal/resilience.
type ResilienceConfig struct {
	RetryMaxAttempts    int     `mapstructure:"retry_max_attempts"        toml:"retry_max_attempts"`
	RetryBaseDelayMs    int     `mapstructure:"retry_base_delay_ms"       toml:"retry_base_delay_ms"`
	RetryMaxDelayMs     int     `mapstructure:"retry_max_delay_ms"        toml:"retry_max_delay_ms"`
	BackoffMultiplier   float64 `mapstructure:"backoff_multiplier"        toml:"backoff_multiplier"`
	Jitter              bool    `mapstructure:"jitter"                    toml:"jitter"`
	CBEnabled           bool    `mapstructure:"circuit_breaker_enabled"   toml:"circuit_breaker_enabled"`
	CBFailureThreshold  int     `mapstructure:"cb_failure_threshold"      toml:"cb_failure_threshold"`
	CBSuccessThreshold  int     `mapstructure:"cb_success_threshold"      toml:"cb_success_threshold"`
	CBHalfOpenMaxCalls  int     `mapstructure:"cb_half_open_max_calls"    toml:"cb_half_open_max_calls"`
	CBResetTimeoutSec   int     `mapstructure:"cb_reset_timeout_seconds"  toml:"cb_reset_timeout_seconds"`
}

// TracingConfig controls OpenTelemetry distributed tracing.
type TracingConfig struct {
	Enabled     bool    `mapstructure:"enabled"      toml:"enabled"`
	Exporter    string  `mapstructure:"exporter"     toml:"exporter"`     // "stdout", "otlp-grpc", "otlp-http"
	Endpoint    string  `mapstructure:"endpoint"     toml:"endpoint"`     // e.g. "localhost:4317"
	ServiceName string  `mapstructure:"service_name" toml:"service_name"` // defaults to "webcore"
	SampleRate  float64 `mapstructure:"sample_rate"  toml:"sample_rate"`  // 0.0 to 1.0
	Insecure    bool    `mapstructure:"insecure"     toml:"insecure"`     // skip TLS for dev
}

// MetricsConfig controls the admin metrics collector retention and caching.
type MetricsConfig struct {
	RetentionDays   int `mapstructure:"retention_days"    toml:"retention_days"`
	CacheTTLSeconds int `mapstructure:"cache_ttl_seconds" toml:"cache_ttl_seconds"`
}

// PluginConfig controls plugins that register additional pipeline
// middleware at startup (see internal/plugin).
type PluginConfig struct {
	Enabled bool                               `mapstructure:"enabled" toml:"enabled"`
	Dir     string                             `mapstructure:"dir"     toml:"dir"`
	Configs map[string]map[string]interface{} `mapstructure:"configs" toml:"configs"`
}

// Load reads configuration from disk with the following precedence:
//  1. Environment variables (WEBCORE_ prefix, _ as separator)
//  2. The file at explicitPath if non-empty
//  3. ~/.webcore/webcore.toml
//  4. ./webcore.toml
//  5. Built-in defaults
//
// The loaded config is validated and stored in the global atomic pointer.
func Load(explicitPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("toml")

	setViperDefaults(v)

	v.SetEnvPrefix("WEBCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicitPath != "" {
		v.SetConfigFile(explicitPath)
	} else {
		homeDir, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(filepath.Join(homeDir, ".webcore"))
		}
		v.AddConfigPath(".")
		v.SetConfigName("webcore")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config: %w", err)
		}
	}

	if cf := v.ConfigFileUsed(); cf != "" {
		loadedConfigFile.Store(cf)
	}

	cfg := DefaultConfig()
	if err := v.Unmarshal(cfg, viper.DecodeHook(
		mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		),
	)); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	cfg.Server.DataDir = expandHome(cfg.Server.DataDir)
	cfg.Session.SQLitePath = expandHome(cfg.Session.SQLitePath)
	cfg.Plugins.Dir = expandHome(cfg.Plugins.Dir)

	if err := validate(cfg); err != nil {
		return nil, err
	}

	set(cfg)
	return cfg, nil
}

// InitConfig writes the default configuration file to ~/.webcore/webcore.toml.
// If the file already exists it is not overwritten.
func InitConfig() error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return fmt.Errorf("determining home directory: %w", err)
	}

	dir := filepath.Join(homeDir, ".webcore")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	path := filepath.Join(dir, DefaultConfigFilename)
	if _, err := os.Stat(path); err == nil {
		fmt.Printf("Config already exists: %s\n", path)
		return nil
	}

	cfg := DefaultConfig()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling default config: %w", err)
	}

	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	fmt.Printf("Config written to %s\n", path)
	return nil
}

// ExportConfig writes the current config to the given path in TOML format.
func ExportConfig(path string) error {
	cfg := Get()
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshalling config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}
	return nil
}

// ImportConfig reads a TOML config file and merges it into the current config.
// The imported config is also persisted to the active config file so changes
// survive restarts.
func ImportConfig(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config: %w", err)
	}
	cfg := DefaultConfig()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config: %w", err)
	}
	if err := validate(cfg); err != nil {
		return err
	}
	set(cfg)

	if dest := ConfigFilePath(); dest != "" {
		out, err := toml.Marshal(cfg)
		if err != nil {
			return fmt.Errorf("marshalling config for persistence: %w", err)
		}
		if err := os.WriteFile(dest, out, 0o600); err != nil {
			return fmt.Errorf("persisting imported config: %w", err)
		}
	}

	return nil
}

// ConfigFilePath returns the path of the config file that was loaded, or
// empty if no file was found.
func ConfigFilePath() string {
	if v, ok := loadedConfigFile.Load().(string); ok {
		return v
	}
	return ""
}

// RetryBaseDelay returns the configured retry base delay as a time.Duration.
func (r ResilienceConfig) RetryBaseDelay() time.Duration {
	return time.Duration(r.RetryBaseDelayMs) * time.Millisecond
}

// RetryMaxDelay returns the configured retry max delay as a time.Duration.
func (r ResilienceConfig) RetryMaxDelay() time.Duration {
	return time.Duration(r.RetryMaxDelayMs) * time.Millisecond
}

// CBResetTimeout returns the configured circuit breaker reset timeout as a
// time.Duration.
func (r ResilienceConfig) CBResetTimeout() time.Duration {
	return time.Duration(r.CBResetTimeoutSec) * time.Second
}

// setViperDefaults registers every known key with viper so that env var binding
// works for all fields even when no config file is present.
func setViperDefaults(v *viper.Viper) {
	d := DefaultConfig()

	// Server
	v.SetDefault("server.bind_address", d.Server.BindAddress)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.log_level", d.Server.LogLevel)
	v.SetDefault("server.data_dir", d.Server.DataDir)
	v.SetDefault("server.tls_enabled", d.Server.TLSEnabled)
	v.SetDefault("server.cert_file", d.Server.CertFile)
	v.SetDefault("server.key_file", d.Server.KeyFile)
	v.SetDefault("server.read_timeout", d.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", d.Server.WriteTimeout)
	v.SetDefault("server.idle_timeout", d.Server.IdleTimeout)
	v.SetDefault("server.max_body_size", d.Server.MaxBodySize)

	// Admin
	v.SetDefault("admin.enabled", d.Admin.Enabled)
	v.SetDefault("admin.port", d.Admin.Port)
	v.SetDefault("admin.auth_enabled", d.Admin.AuthEnabled)
	v.SetDefault("admin.auth_token", d.Admin.AuthToken)
	v.SetDefault("admin.allowed_origins", d.Admin.AllowedOrigins)

	// Cache.Response
	v.SetDefault("cache.response.enabled", d.Cache.Response.Enabled)
	v.SetDefault("cache.response.max_entries", d.Cache.Response.MaxEntries)
	v.SetDefault("cache.response.ttl_seconds", d.Cache.Response.TTLSeconds)

	// Cache.Query
	v.SetDefault("cache.query.enabled", d.Cache.Query.Enabled)
	v.SetDefault("cache.query.max_entries", d.Cache.Query.MaxEntries)
	v.SetDefault("cache.query.ttl_seconds", d.Cache.Query.TTLSeconds)

	// Session
	v.SetDefault("session.cookie_name", d.Session.CookieName)
	v.SetDefault("session.max_age_seconds", d.Session.MaxAgeSeconds)
	v.SetDefault("session.secure", d.Session.Secure)
	v.SetDefault("session.http_only", d.Session.HttpOnly)
	v.SetDefault("session.same_site", d.Session.SameSite)
	v.SetDefault("session.fingerprint_mode", d.Session.FingerprintMode)
	v.SetDefault("session.save_strategy", d.Session.SaveStrategy)
	v.SetDefault("session.batch_interval_ms", d.Session.BatchIntervalMs)
	v.SetDefault("session.storage_backend", d.Session.StorageBackend)
	v.SetDefault("session.sqlite_path", d.Session.SQLitePath)
	v.SetDefault("session.cleanup_interval_ms", d.Session.CleanupIntervalMs)
	v.SetDefault("session.enabled", d.Session.Enabled)

	// RateLimit
	v.SetDefault("rate_limit.enabled", d.RateLimit.Enabled)
	v.SetDefault("rate_limit.default_rate", d.RateLimit.DefaultRate)
	v.SetDefault("rate_limit.default_burst", d.RateLimit.DefaultBurst)

	// Resilience
	v.SetDefault("resilience.retry_max_attempts", d.Resilience.RetryMaxAttempts)
	v.SetDefault("resilience.retry_base_delay_ms", d.Resilience.RetryBaseDelayMs)
	v.SetDefault("resilience.retry_max_delay_ms", d.Resilience.RetryMaxDelayMs)
	v.SetDefault("resilience.backoff_multiplier", d.Resilience.BackoffMultiplier)
	v.SetDefault("resilience.jitter", d.Resilience.Jitter)
	v.SetDefault("resilience.circuit_breaker_enabled", d.Resilience.CBEnabled)
	v.SetDefault("resilience.cb_failure_threshold", d.Resilience.CBFailureThreshold)
	v.SetDefault("resilience.cb_success_threshold", d.Resilience.CBSuccessThreshold)
	v.SetDefault("resilience.cb_half_open_max_calls", d.Resilience.CBHalfOpenMaxCalls)
	v.SetDefault("resilience.cb_reset_timeout_seconds", d.Resilience.CBResetTimeoutSec)

	// Tracing
	v.SetDefault("tracing.enabled", d.Tracing.Enabled)
	v.SetDefault("tracing.exporter", d.Tracing.Exporter)
	v.SetDefault("tracing.endpoint", d.Tracing.Endpoint)
	v.SetDefault("tracing.service_name", d.Tracing.ServiceName)
	v.SetDefault("tracing.sample_rate", d.Tracing.SampleRate)
	v.SetDefault("tracing.insecure", d.Tracing.Insecure)

	// Metrics
	v.SetDefault("metrics.retention_days", d.Metrics.RetentionDays)
	v.SetDefault("metrics.cache_ttl_seconds", d.Metrics.CacheTTLSeconds)

	// Plugins
	v.SetDefault("plugins.enabled", d.Plugins.Enabled)
	v.SetDefault("plugins.dir", d.Plugins.Dir)
}

// expandHome replaces a leading ~ with the user's home directory.
func expandHome(path string) string {
	if !strings.HasPrefix(path, "~") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[1:])
}
