// Package config reads the service configuration from the environment,
// optionally seeded from a .env file.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Backend selects which Stock/Logistics implementation is wired at startup.
type Backend string

const (
	BackendMock Backend = "mock"
	BackendHTTP Backend = "http"
)

type Config struct {
	Port     string
	LogLevel string

	SQLitePath   string
	RedisAddr    string
	KafkaBrokers string

	Backend             Backend
	StockBaseURL        string
	LogisticsBaseURL    string
	HTTPClientTimeout   time.Duration
	HTTPClientRetries   int
	CompensationTimeout time.Duration
	OrderLockTTL        time.Duration
	IdempotencyTTL      time.Duration

	DefaultTransportType string

	ServiceTokenURL     string
	ServiceClientID     string
	ServiceClientSecret string
	ServiceScope        string

	TracingEnabled bool
	ServiceName    string
	OTLPEndpoint   string
	Environment    string
}

// Load reads the configuration. Files named in envFiles are loaded first
// when they exist; variables already set in the environment win.
func Load(envFiles ...string) (*Config, error) {
	for _, f := range envFiles {
		if _, err := os.Stat(f); err == nil {
			if err := godotenv.Load(f); err != nil {
				return nil, fmt.Errorf("config: load %s: %w", f, err)
			}
		}
	}

	cfg := &Config{
		Port:                 getEnv("PORT", "8080"),
		LogLevel:             getEnv("LOG_LEVEL", "info"),
		SQLitePath:           getEnv("SQLITE_PATH", "./data/checkout.db"),
		RedisAddr:            getEnv("REDIS_ADDR", ""),
		KafkaBrokers:         getEnv("KAFKA_BROKERS", ""),
		Backend:              Backend(strings.ToLower(getEnv("BACKEND_MODE", string(BackendMock)))),
		StockBaseURL:         getEnv("STOCK_API_BASE_URL", ""),
		LogisticsBaseURL:     getEnv("LOGISTICA_API_BASE_URL", ""),
		DefaultTransportType: getEnv("DEFAULT_TRANSPORT_TYPE", "road"),
		ServiceTokenURL:      getEnv("SERVICE_TOKEN_URL", ""),
		ServiceClientID:      getEnv("SERVICE_CLIENT_ID", ""),
		ServiceClientSecret:  getEnv("SERVICE_CLIENT_SECRET", ""),
		ServiceScope:         getEnv("SERVICE_SCOPE", ""),
		ServiceName:          getEnv("OTEL_SERVICE_NAME", "checkout-service"),
		OTLPEndpoint:         getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		Environment:          getEnv("OTEL_RESOURCE_ATTRIBUTES_ENV", "local"),
	}

	var errs []error
	var err error
	if cfg.HTTPClientTimeout, err = getDuration("HTTP_CLIENT_TIMEOUT", 10*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.HTTPClientRetries, err = getInt("HTTP_CLIENT_MAX_RETRIES", 2); err != nil {
		errs = append(errs, err)
	}
	if cfg.CompensationTimeout, err = getDuration("COMPENSATION_TIMEOUT", 15*time.Second); err != nil {
		errs = append(errs, err)
	}
	if cfg.OrderLockTTL, err = getDuration("ORDER_LOCK_TTL", 2*time.Minute); err != nil {
		errs = append(errs, err)
	}
	if cfg.IdempotencyTTL, err = getDuration("IDEMPOTENCY_TTL", 24*time.Hour); err != nil {
		errs = append(errs, err)
	}
	if cfg.TracingEnabled, err = getBool("TRACING_ENABLED", false); err != nil {
		errs = append(errs, err)
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}
	return cfg, nil
}

func (c *Config) validate() error {
	switch c.Backend {
	case BackendMock:
	case BackendHTTP:
		if c.StockBaseURL == "" || c.LogisticsBaseURL == "" {
			return errors.New("config: BACKEND_MODE=http requires STOCK_API_BASE_URL and LOGISTICA_API_BASE_URL")
		}
	default:
		return fmt.Errorf("config: unknown BACKEND_MODE %q", c.Backend)
	}
	if c.HTTPClientRetries < 0 {
		return errors.New("config: HTTP_CLIENT_MAX_RETRIES must be >= 0")
	}
	return nil
}

// ServiceCredentialsConfigured reports whether a client-credentials token
// endpoint is available as the fallback for anonymous outbound calls.
func (c *Config) ServiceCredentialsConfigured() bool {
	return c.ServiceTokenURL != "" && c.ServiceClientID != ""
}

func getEnv(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return d, nil
}

func getInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: %s: %w", key, err)
	}
	return n, nil
}

func getBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("config: %s: %w", key, err)
	}
	return b, nil
}
