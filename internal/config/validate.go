package config

import (
	"fmt"
	"strings"
)

// validate checks the Config for invalid or out-of-range values.
// It returns a combined error if any checks fail.
func validate(cfg *Config) error {
	var errs []string

	// Server validation
	if cfg.Server.Port < 1 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be between 1 and 65535, got %d", cfg.Server.Port))
	}
	if !isValidEnum(cfg.Server.LogLevel, ValidLogLevels) {
		errs = append(errs, fmt.Sprintf("server.log_level must be one of %v, got %q", ValidLogLevels, cfg.Server.LogLevel))
	}
	if cfg.Server.DataDir == "" {
		errs = append(errs, "server.data_dir must not be empty")
	}
	if cfg.Server.TLSEnabled {
		if cfg.Server.CertFile == "" {
			errs = append(errs, "server.cert_file must be set when tls_enabled is true")
		}
		if cfg.Server.KeyFile == "" {
			errs = append(errs, "server.key_file must be set when tls_enabled is true")
		}
	}
	if cfg.Server.ReadTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.read_timeout must be non-negative, got %d", cfg.Server.ReadTimeout))
	}
	if cfg.Server.WriteTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.write_timeout must be non-negative, got %d", cfg.Server.WriteTimeout))
	}
	if cfg.Server.IdleTimeout < 0 {
		errs = append(errs, fmt.Sprintf("server.idle_timeout must be non-negative, got %d", cfg.Server.IdleTimeout))
	}
	if cfg.Server.MaxBodySize < 0 {
		errs = append(errs, fmt.Sprintf("server.max_body_size must be non-negative, got %d", cfg.Server.MaxBodySize))
	}

	// Admin validation
	if cfg.Admin.Enabled {
		if cfg.Admin.Port < 1 || cfg.Admin.Port > 65535 {
			errs = append(errs, fmt.Sprintf("admin.port must be between 1 and 65535, got %d", cfg.Admin.Port))
		}
		if cfg.Admin.Port == cfg.Server.Port {
			errs = append(errs, fmt.Sprintf("admin.port and server.port must differ, both are %d", cfg.Admin.Port))
		}
		if cfg.Admin.AuthEnabled && cfg.Admin.AuthToken == "" {
			errs = append(errs, "admin.auth_token must be set when admin.auth_enabled is true")
		}
	}

	// Cache validation
	if cfg.Cache.Response.MaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.response.max_entries must be at least 1, got %d", cfg.Cache.Response.MaxEntries))
	}
	if cfg.Cache.Response.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.response.ttl_seconds must be non-negative, got %d", cfg.Cache.Response.TTLSeconds))
	}
	if cfg.Cache.Query.MaxEntries < 1 {
		errs = append(errs, fmt.Sprintf("cache.query.max_entries must be at least 1, got %d", cfg.Cache.Query.MaxEntries))
	}
	if cfg.Cache.Query.TTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("cache.query.ttl_seconds must be non-negative, got %d", cfg.Cache.Query.TTLSeconds))
	}

	// Session validation
	if cfg.Session.CookieName == "" {
		errs = append(errs, "session.cookie_name must not be empty")
	}
	if cfg.Session.MaxAgeSeconds < 0 {
		errs = append(errs, fmt.Sprintf("session.max_age_seconds must be non-negative, got %d", cfg.Session.MaxAgeSeconds))
	}
	if !isValidEnum(cfg.Session.SameSite, ValidSameSiteValues) {
		errs = append(errs, fmt.Sprintf("session.same_site must be one of %v, got %q", ValidSameSiteValues, cfg.Session.SameSite))
	}
	if !isValidEnum(cfg.Session.FingerprintMode, ValidFingerprintModes) {
		errs = append(errs, fmt.Sprintf("session.fingerprint_mode must be one of %v, got %q", ValidFingerprintModes, cfg.Session.FingerprintMode))
	}
	if !isValidEnum(cfg.Session.SaveStrategy, ValidSaveStrategies) {
		errs = append(errs, fmt.Sprintf("session.save_strategy must be one of %v, got %q", ValidSaveStrategies, cfg.Session.SaveStrategy))
	}
	if !isValidEnum(cfg.Session.StorageBackend, ValidStorageBackends) {
		errs = append(errs, fmt.Sprintf("session.storage_backend must be one of %v, got %q", ValidStorageBackends, cfg.Session.StorageBackend))
	}
	if cfg.Session.StorageBackend == "sqlite" && cfg.Session.SQLitePath == "" {
		errs = append(errs, "session.sqlite_path must be set when storage_backend is \"sqlite\"")
	}
	if cfg.Session.SaveStrategy == "batched" && cfg.Session.BatchIntervalMs < 1 {
		errs = append(errs, fmt.Sprintf("session.batch_interval_ms must be positive when save_strategy is \"batched\", got %d", cfg.Session.BatchIntervalMs))
	}

	// RateLimit validation
	if cfg.RateLimit.Enabled {
		if cfg.RateLimit.DefaultRate <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limit.default_rate must be positive, got %f", cfg.RateLimit.DefaultRate))
		}
		if cfg.RateLimit.DefaultBurst < 1 {
			errs = append(errs, fmt.Sprintf("rate_limit.default_burst must be at least 1, got %d", cfg.RateLimit.DefaultBurst))
		}
	}
	for route, rl := range cfg.RateLimit.RouteLimits {
		if rl.Rate <= 0 {
			errs = append(errs, fmt.Sprintf("rate_limit.route_limits[%q].rate must be positive, got %f", route, rl.Rate))
		}
	}

	// Resilience validation
	if cfg.Resilience.RetryMaxAttempts < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_attempts must be non-negative, got %d", cfg.Resilience.RetryMaxAttempts))
	}
	if cfg.Resilience.RetryBaseDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_base_delay_ms must be non-negative, got %d", cfg.Resilience.RetryBaseDelayMs))
	}
	if cfg.Resilience.RetryMaxDelayMs < 0 {
		errs = append(errs, fmt.Sprintf("resilience.retry_max_delay_ms must be non-negative, got %d", cfg.Resilience.RetryMaxDelayMs))
	}
	if cfg.Resilience.BackoffMultiplier < 1 {
		errs = append(errs, fmt.Sprintf("resilience.backoff_multiplier must be at least 1, got %f", cfg.Resilience.BackoffMultiplier))
	}
	if cfg.Resilience.CBFailureThreshold < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_failure_threshold must be at least 1, got %d", cfg.Resilience.CBFailureThreshold))
	}
	if cfg.Resilience.CBSuccessThreshold < 1 {
		errs = append(errs, fmt.Sprintf("resilience.cb_success_threshold must be at least 1, got %d", cfg.Resilience.CBSuccessThreshold))
	}
	if cfg.Resilience.CBHalfOpenMaxCalls < cfg.Resilience.CBSuccessThreshold {
		errs = append(errs, fmt.Sprintf("resilience.cb_half_open_max_calls (%d) must be at least cb_success_threshold (%d)", cfg.Resilience.CBHalfOpenMaxCalls, cfg.Resilience.CBSuccessThreshold))
	}
	if cfg.Resilience.CBResetTimeoutSec <= 0 {
		errs = append(errs, fmt.Sprintf("resilience.cb_reset_timeout_seconds must be positive, got %d", cfg.Resilience.CBResetTimeoutSec))
	}

	// Tracing validation
	if cfg.Tracing.Enabled {
		validExporters := []string{"stdout", "otlp-grpc", "otlp-http"}
		if !isValidEnum(cfg.Tracing.Exporter, validExporters) {
			errs = append(errs, fmt.Sprintf("tracing.exporter must be one of %v, got %q", validExporters, cfg.Tracing.Exporter))
		}
		if cfg.Tracing.ServiceName == "" {
			errs = append(errs, "tracing.service_name must not be empty when tracing is enabled")
		}
	}
	if cfg.Tracing.SampleRate < 0 || cfg.Tracing.SampleRate > 1 {
		errs = append(errs, fmt.Sprintf("tracing.sample_rate must be between 0 and 1, got %f", cfg.Tracing.SampleRate))
	}

	// Metrics validation
	if cfg.Metrics.RetentionDays < 1 {
		errs = append(errs, fmt.Sprintf("metrics.retention_days must be at least 1, got %d", cfg.Metrics.RetentionDays))
	}
	if cfg.Metrics.CacheTTLSeconds < 0 {
		errs = append(errs, fmt.Sprintf("metrics.cache_ttl_seconds must be non-negative, got %d", cfg.Metrics.CacheTTLSeconds))
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation failed:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// isValidEnum returns true if val is in the allowed list (case-insensitive).
func isValidEnum(val string, allowed []string) bool {
	lower := strings.ToLower(val)
	for _, a := range allowed {
		if strings.ToLower(a) == lower {
			return true
		}
	}
	return false
}
