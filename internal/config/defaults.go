package config

// DefaultBindAddress is the default bind address (localhost only for security).
const DefaultBindAddress = "127.0.0.1"

// DefaultPort is the default port for the main server.
const DefaultPort = 8080

// DefaultAdminPort is the default port for the admin debug mux.
const DefaultAdminPort = 8081

// DefaultLogLevel is the default log level.
const DefaultLogLevel = "info"

// DefaultDataDir is the default data directory (before tilde expansion).
const DefaultDataDir = "~/.webcore"

// DefaultConfigFilename is the name of the config file.
const DefaultConfigFilename = "webcore.toml"

// DefaultReadTimeout is the default HTTP server read timeout in seconds.
const DefaultReadTimeout = 10

// DefaultWriteTimeout is the default HTTP server write timeout in seconds.
const DefaultWriteTimeout = 30

// DefaultIdleTimeout is the default HTTP server idle timeout in seconds.
const DefaultIdleTimeout = 120

// DefaultMaxBodySize is the default maximum request body size in bytes (10 MB).
const DefaultMaxBodySize = 10 << 20

// DefaultResponseCacheMaxEntries is the default response cache capacity.
const DefaultResponseCacheMaxEntries = 2048

// DefaultResponseCacheTTL is the default response cache entry TTL in seconds.
const DefaultResponseCacheTTL = 300

// DefaultQueryCacheMaxEntries is the default query cache capacity.
const DefaultQueryCacheMaxEntries = 1024

// DefaultQueryCacheTTL is the default query cache entry TTL in seconds.
const DefaultQueryCacheTTL = 60

// DefaultSessionCookieName is the default session cookie name.
const DefaultSessionCookieName = "webcore_sid"

// DefaultSessionMaxAge is the default session cookie lifetime in seconds (24h).
const DefaultSessionMaxAge = 86400

// DefaultSessionSameSite is the default session cookie SameSite attribute.
const DefaultSessionSameSite = "lax"

// DefaultSessionFingerprintMode is the default session fingerprint mode.
const DefaultSessionFingerprintMode = "soft"

// DefaultSessionSaveStrategy is the default session persistence strategy.
const DefaultSessionSaveStrategy = "end_of_request"

// DefaultSessionBatchIntervalMs is the default batched-save flush interval.
const DefaultSessionBatchIntervalMs = 5000

// DefaultSessionStorageBackend is the default session storage backend.
const DefaultSessionStorageBackend = "memory"

// DefaultSessionCleanupIntervalMs is the default expired-session sweep interval.
const DefaultSessionCleanupIntervalMs = 60000

// DefaultRetryMaxAttempts is the default maximum number of retry attempts.
const DefaultRetryMaxAttempts = 3

// DefaultRetryBaseDelayMs is the default base delay for exponential backoff in milliseconds.
const DefaultRetryBaseDelayMs = 100

// DefaultRetryMaxDelayMs is the default maximum delay for exponential backoff in milliseconds.
const DefaultRetryMaxDelayMs = 5000

// DefaultBackoffMultiplier is the default exponential backoff growth factor.
const DefaultBackoffMultiplier = 2.0

// DefaultCBFailureThreshold is the default number of consecutive failures before opening the circuit.
const DefaultCBFailureThreshold = 5

// DefaultCBSuccessThreshold is the default number of consecutive successes to close a half-open circuit.
const DefaultCBSuccessThreshold = 2

// DefaultCBHalfOpenMaxCalls is the default number of probe calls allowed while half-open.
const DefaultCBHalfOpenMaxCalls = 3

// DefaultCBResetTimeout is the default circuit breaker reset timeout in seconds.
const DefaultCBResetTimeout = 30

// DefaultTracingExporter is the default tracing exporter type.
const DefaultTracingExporter = "stdout"

// DefaultTracingEndpoint is the default OTLP collector endpoint.
const DefaultTracingEndpoint = "localhost:4317"

// DefaultTracingServiceName is the default service name for traces.
const DefaultTracingServiceName = "webcore"

// DefaultTracingSampleRate is the default sampling rate (1.0 = 100%).
const DefaultTracingSampleRate = 1.0

// DefaultRetentionDays is the default metrics retention in days.
const DefaultRetentionDays = 30

// DefaultMetricsCacheTTL is the default metrics cache TTL in seconds.
const DefaultMetricsCacheTTL = 60

// ValidLogLevels lists the allowed log level values.
var ValidLogLevels = []string{"trace", "debug", "info", "warn", "error", "fatal"}

// ValidSameSiteValues lists the allowed session cookie SameSite values.
var ValidSameSiteValues = []string{"lax", "strict", "none"}

// ValidFingerprintModes lists the allowed session fingerprint modes.
var ValidFingerprintModes = []string{"disabled", "soft", "strict"}

// ValidSaveStrategies lists the allowed session save strategies.
var ValidSaveStrategies = []string{"immediate", "batched", "end_of_request"}

// ValidStorageBackends lists the allowed session storage backends.
var ValidStorageBackends = []string{"memory", "sqlite"}

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			BindAddress:  DefaultBindAddress,
			Port:         DefaultPort,
			LogLevel:     DefaultLogLevel,
			DataDir:      DefaultDataDir,
			TLSEnabled:   false,
			CertFile:     "",
			KeyFile:      "",
			ReadTimeout:  DefaultReadTimeout,
			WriteTimeout: DefaultWriteTimeout,
			IdleTimeout:  DefaultIdleTimeout,
			MaxBodySize:  DefaultMaxBodySize,
		},
		Admin: AdminConfig{
			Enabled:        true,
			Port:           DefaultAdminPort,
			AuthEnabled:    false,
			AuthToken:      "",
			AllowedOrigins: []string{"http://localhost:8080", "http://localhost:8081"},
		},
		Cache: CacheConfig{
			Response: ResponseCacheConfig{
				Enabled:    true,
				MaxEntries: DefaultResponseCacheMaxEntries,
				TTLSeconds: DefaultResponseCacheTTL,
			},
			Query: QueryCacheConfig{
				Enabled:    true,
				MaxEntries: DefaultQueryCacheMaxEntries,
				TTLSeconds: DefaultQueryCacheTTL,
			},
		},
		Session: SessionConfig{
			CookieName:        DefaultSessionCookieName,
			MaxAgeSeconds:     DefaultSessionMaxAge,
			Secure:            true,
			HttpOnly:          true,
			SameSite:          DefaultSessionSameSite,
			FingerprintMode:   DefaultSessionFingerprintMode,
			SaveStrategy:      DefaultSessionSaveStrategy,
			BatchIntervalMs:   DefaultSessionBatchIntervalMs,
			StorageBackend:    DefaultSessionStorageBackend,
			SQLitePath:        "~/.webcore/sessions.db",
			CleanupIntervalMs: DefaultSessionCleanupIntervalMs,
			Enabled:           true,
		},
		RateLimit: RateLimitConfig{
			Enabled:      false,
			DefaultRate:  10.0,
			DefaultBurst: 20,
			RouteLimits:  map[string]RouteRateLimit{},
		},
		Resilience: ResilienceConfig{
			RetryMaxAttempts:   DefaultRetryMaxAttempts,
			RetryBaseDelayMs:   DefaultRetryBaseDelayMs,
			RetryMaxDelayMs:    DefaultRetryMaxDelayMs,
			BackoffMultiplier:  DefaultBackoffMultiplier,
			Jitter:             true,
			CBEnabled:          true,
			CBFailureThreshold: DefaultCBFailureThreshold,
			CBSuccessThreshold: DefaultCBSuccessThreshold,
			CBHalfOpenMaxCalls: DefaultCBHalfOpenMaxCalls,
			CBResetTimeoutSec:  DefaultCBResetTimeout,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			Exporter:    DefaultTracingExporter,
			Endpoint:    DefaultTracingEndpoint,
			ServiceName: DefaultTracingServiceName,
			SampleRate:  DefaultTracingSampleRate,
			Insecure:    false,
		},
		Metrics: MetricsConfig{
			RetentionDays:   DefaultRetentionDays,
			CacheTTLSeconds: DefaultMetricsCacheTTL,
		},
		Plugins: PluginConfig{
			Enabled: false,
			Dir:     "~/.webcore/plugins",
			Configs: map[string]map[string]interface{}{},
		},
	}
}
