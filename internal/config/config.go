package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/v2"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	AppEnv             string
	Port               string
	DatabaseURL        string
	RedisURL           string
	JWTSecret          string
	JWTIssuer          string
	JWTAudience        string
	CORSAllowedOrigins []string
	MigrateOnStart     bool
	MaxBodyBytes       int64
	EnableHSTS         bool
	ShutdownTimeout    time.Duration
	PprofEnabled       bool
	PprofUser          string
	PprofPass          string
	AuditEnabled       bool

	TaxRateBPS      int
	CurrencyCode    string
	CatalogCacheTTL time.Duration
	IdempotencyTTL  time.Duration

	CheckoutRateLimit  int
	CheckoutRateWindow time.Duration
	GlobalRateLimit    string

	CardBreakerMinRequests  int
	CardBreakerFailureRatio float64
	CardBreakerOpenFor      time.Duration

	RewardLockTTL            time.Duration
	RewardLockRetryBackoff   time.Duration
	RewardProcessConcurrency int
	RewardProcessingLease    time.Duration
	RewardCalcCron           string
	WorkerConcurrency        int
	WorkerMetricsAddr        string

	Obs ObsConfig
}

// ObsConfig groups logging, metrics and tracing switches.
type ObsConfig struct {
	LogFormat          string
	LogLevel           string
	MetricsEnabled     bool
	MetricsNamespace   string
	MetricsBucketsMS   string
	TracingEnabled     bool
	TracingExporter    string
	OTLPEndpoint       string
	TracingSampleRatio float64
}

// Load reads configuration from environment variables and optional .env files.
func Load() (*Config, error) {
	_ = godotenv.Load()

	k := koanf.New(".")
	if err := k.Load(env.Provider("", ".", func(s string) string { return s }), nil); err != nil {
		return nil, fmt.Errorf("load env: %w", err)
	}

	cfg := &Config{
		AppEnv:             valueOrDefault(k.String("APP_ENV"), "development"),
		Port:               valueOrDefault(k.String("PORT"), "8080"),
		DatabaseURL:        k.String("DATABASE_URL"),
		RedisURL:           k.String("REDIS_URL"),
		JWTSecret:          k.String("JWT_SECRET"),
		JWTIssuer:          valueOrDefault(k.String("JWT_ISSUER"), "b2b-api"),
		JWTAudience:        strings.TrimSpace(k.String("JWT_AUDIENCE")),
		CORSAllowedOrigins: splitAndTrim(k.String("CORS_ALLOWED_ORIGINS")),
		MigrateOnStart:     parseBool(k.String("MIGRATE_ON_START")),
		MaxBodyBytes:       int64(parseInt(k.String("MAX_BODY_BYTES"), 1<<20)),
		EnableHSTS:         parseBool(k.String("SECURE_ENABLE_HSTS")),
		ShutdownTimeout:    parseDuration(k.String("SHUTDOWN_TIMEOUT"), "15s"),
		PprofEnabled:       parseBool(k.String("OBS_ENABLE_PPROF")),
		PprofUser:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_USER")),
		PprofPass:          strings.TrimSpace(k.String("SECURE_PPROF_BASIC_AUTH_PASS")),
		AuditEnabled:       parseBoolDefault(k.String("AUDIT_ENABLED"), true),

		TaxRateBPS:      parseInt(k.String("TAX_RATE_BPS"), 0),
		CurrencyCode:    strings.ToUpper(valueOrDefault(k.String("CURRENCY_CODE"), "IDR")),
		CatalogCacheTTL: parseDuration(k.String("CATALOG_CACHE_TTL"), "60s"),
		IdempotencyTTL:  parseDuration(k.String("IDEMPOTENCY_TTL"), "24h"),

		CheckoutRateLimit:  parseInt(k.String("CHECKOUT_RATE_LIMIT"), 10),
		CheckoutRateWindow: parseDuration(k.String("CHECKOUT_RATE_WINDOW"), "1m"),
		GlobalRateLimit:    valueOrDefault(k.String("GLOBAL_RATE_LIMIT"), "600-M"),

		CardBreakerMinRequests:  parseInt(k.String("CARD_BREAKER_MIN_REQUESTS"), 5),
		CardBreakerFailureRatio: parseFloat(k.String("CARD_BREAKER_FAILURE_RATIO"), 0.5),
		CardBreakerOpenFor:      parseDuration(k.String("CARD_BREAKER_OPEN_FOR"), "30s"),

		RewardLockTTL:            parseDuration(k.String("REWARD_LOCK_TTL"), "2m"),
		RewardLockRetryBackoff:   parseDuration(k.String("REWARD_LOCK_RETRY_BACKOFF"), "100ms"),
		RewardProcessConcurrency: parseInt(k.String("REWARD_PROCESS_CONCURRENCY"), 4),
		RewardProcessingLease:    parseDuration(k.String("REWARD_PROCESSING_LEASE"), "5m"),
		RewardCalcCron:           valueOrDefault(k.String("REWARD_CALC_CRON"), "0 2 1 1,4,7,10 *"),
		WorkerConcurrency:        parseInt(k.String("WORKER_CONCURRENCY"), 5),
		WorkerMetricsAddr:        strings.TrimSpace(k.String("WORKER_METRICS_ADDR")),

		Obs: ObsConfig{
			LogFormat:          valueOrDefault(k.String("OBS_LOG_FORMAT"), "json"),
			LogLevel:           valueOrDefault(k.String("OBS_LOG_LEVEL"), "info"),
			MetricsEnabled:     parseBoolDefault(k.String("OBS_ENABLE_PROMETHEUS"), true),
			MetricsNamespace:   valueOrDefault(k.String("OBS_METRICS_NAMESPACE"), "b2b"),
			MetricsBucketsMS:   k.String("OBS_METRICS_BUCKETS_MS"),
			TracingEnabled:     parseBoolDefault(k.String("OBS_ENABLE_TRACING"), false),
			TracingExporter:    valueOrDefault(k.String("OBS_TRACING_EXPORTER"), "otlp"),
			OTLPEndpoint:       strings.TrimSpace(k.String("OBS_OTLP_ENDPOINT")),
			TracingSampleRatio: parseFloat(k.String("OBS_TRACING_SAMPLING_RATIO"), 1.0),
		},
	}

	if cfg.DatabaseURL == "" {
		return nil, errors.New("DATABASE_URL is required")
	}
	if cfg.RedisURL == "" {
		return nil, errors.New("REDIS_URL is required")
	}
	if cfg.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if cfg.TaxRateBPS < 0 || cfg.TaxRateBPS > 10000 {
		return nil, fmt.Errorf("TAX_RATE_BPS must be within 0..10000, got %d", cfg.TaxRateBPS)
	}
	if cfg.CardBreakerFailureRatio <= 0 || cfg.CardBreakerFailureRatio > 1 {
		return nil, fmt.Errorf("CARD_BREAKER_FAILURE_RATIO must be within (0, 1], got %g", cfg.CardBreakerFailureRatio)
	}
	if cfg.CheckoutRateLimit <= 0 || cfg.CheckoutRateWindow <= 0 {
		return nil, errors.New("CHECKOUT_RATE_LIMIT and CHECKOUT_RATE_WINDOW must be positive")
	}
	if cfg.RewardProcessConcurrency <= 0 {
		cfg.RewardProcessConcurrency = 1
	}

	return cfg, nil
}

// HTTPAddr returns the address the HTTP server should bind to.
func (c *Config) HTTPAddr() string {
	port := strings.TrimSpace(c.Port)
	if port == "" {
		port = "8080"
	}
	if strings.HasPrefix(port, ":") {
		return port
	}
	return ":" + port
}

func splitAndTrim(value string) []string {
	if value == "" {
		return nil
	}
	parts := strings.Split(value, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}

func valueOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func parseDuration(value, fallback string) time.Duration {
	base := strings.TrimSpace(value)
	if base == "" {
		base = fallback
	}
	d, err := time.ParseDuration(base)
	if err != nil {
		d, _ = time.ParseDuration(fallback)
	}
	return d
}

func parseBool(value string) bool {
	return parseBoolDefault(value, false)
}

func parseBoolDefault(value string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case "1", "t", "true", "yes", "on":
		return true
	case "0", "f", "false", "no", "off":
		return false
	default:
		return fallback
	}
}

func parseInt(value string, fallback int) int {
	parsed, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return fallback
	}
	return parsed
}

func parseFloat(value string, fallback float64) float64 {
	parsed, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
	if err != nil {
		return fallback
	}
	return parsed
}

// MustLoad behaves like Load but panics on error. Useful for tests and command entrypoints.
func MustLoad() *Config {
	cfg, err := Load()
	if err != nil {
		panic(err)
	}
	return cfg
}

// LoadForTests allows tests to override environment variables without touching the real environment.
func LoadForTests(env map[string]string) (*Config, error) {
	original := make(map[string]string, len(env))
	for key := range env {
		original[key] = os.Getenv(key)
		if err := setEnvVar(key, env[key]); err != nil {
			return nil, err
		}
	}
	cfg, err := Load()
	restoreErr := restoreEnv(original)
	if err != nil {
		return nil, err
	}
	return cfg, restoreErr
}

func setEnvVar(key, value string) error {
	if value == "" {
		return os.Unsetenv(key)
	}
	return os.Setenv(key, value)
}

func restoreEnv(values map[string]string) error {
	var errs []string
	for key, value := range values {
		if err := setEnvVar(key, value); err != nil {
			errs = append(errs, fmt.Sprintf("%s: %v", key, err))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("restore env: %s", strings.Join(errs, "; "))
	}
	return nil
}
