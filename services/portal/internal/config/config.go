package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgconfig "github.com/utafrali/CitizenPortal/pkg/config"
	"github.com/utafrali/CitizenPortal/pkg/database"
	"github.com/utafrali/CitizenPortal/pkg/httpclient"
	"github.com/utafrali/CitizenPortal/services/portal/internal/domain"
)

// Cart storage backends.
const (
	StorageRedis  = "redis"
	StorageMemory = "memory"
)

// Config holds all configuration for the portal service.
type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`

	// HTTP server
	HTTPPort      int    `env:"PORTAL_HTTP_PORT" envDefault:"8080"`
	PublicBaseURL string `env:"PUBLIC_BASE_URL" envDefault:"http://localhost:3000"`

	// Order backend
	BackendBaseURL        string `env:"BACKEND_BASE_URL" envDefault:"http://localhost:8000"`
	BackendTimeoutSeconds int    `env:"BACKEND_TIMEOUT_SECONDS" envDefault:"30"`

	// Cart storage
	CartStorage         string `env:"CART_STORAGE" envDefault:"redis"`
	CartTTLHours        int    `env:"CART_TTL_HOURS" envDefault:"168"`
	CartCacheTTLSeconds int    `env:"CART_CACHE_TTL_SECONDS" envDefault:"300"`

	// Redis
	RedisAddr string `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPass string `env:"REDIS_PASSWORD" envDefault:""`
	RedisDB   int    `env:"REDIS_DB" envDefault:"0"`

	// Pricing, as decimal strings
	ShippingFee    string `env:"SHIPPING_FEE" envDefault:"500"`
	TaxRatePercent string `env:"TAX_RATE_PERCENT" envDefault:"10"`
	Currency       string `env:"CURRENCY" envDefault:"LKR"`

	// Payment initialization retry policy
	PaymentMaxAttempts           int `env:"PAYMENT_MAX_ATTEMPTS" envDefault:"3"`
	PaymentRetryDelayMS          int `env:"PAYMENT_RETRY_DELAY_MS" envDefault:"2000"`
	PaymentAttemptTimeoutSeconds int `env:"PAYMENT_ATTEMPT_TIMEOUT_SECONDS" envDefault:"15"`

	// Checkout guard and rate limit
	CheckoutLockTTLSeconds int     `env:"CHECKOUT_LOCK_TTL_SECONDS" envDefault:"90"`
	CheckoutRateLimitRPS   float64 `env:"CHECKOUT_RATE_LIMIT_RPS" envDefault:"0.5"`
	CheckoutRateLimitBurst int     `env:"CHECKOUT_RATE_LIMIT_BURST" envDefault:"3"`
	CallbackRateLimitRPS   float64 `env:"CALLBACK_RATE_LIMIT_RPS" envDefault:"1"`
	CallbackRateLimitBurst int     `env:"CALLBACK_RATE_LIMIT_BURST" envDefault:"5"`

	// Kafka
	KafkaEnabled bool     `env:"KAFKA_ENABLED" envDefault:"false"`
	KafkaBrokers []string `env:"KAFKA_BROKERS" envDefault:"localhost:9092" envSeparator:","`

	// Payment attempt journal (PostgreSQL)
	JournalEnabled bool   `env:"JOURNAL_ENABLED" envDefault:"false"`
	PostgresHost   string `env:"POSTGRES_HOST" envDefault:"localhost"`
	PostgresPort   int    `env:"POSTGRES_PORT" envDefault:"5432"`
	PostgresUser   string `env:"POSTGRES_USER" envDefault:"portal"`
	PostgresPass   string `env:"POSTGRES_PASSWORD" envDefault:"portal_secret"`
	PostgresDB     string `env:"PORTAL_DB_NAME" envDefault:"portal"`
	PostgresSSL    string `env:"POSTGRES_SSL_MODE" envDefault:"disable"`

	// Database pool
	DBMaxConns            int32 `env:"DB_MAX_CONNS" envDefault:"10"`
	DBMinConns            int32 `env:"DB_MIN_CONNS" envDefault:"1"`
	DBMaxConnLifetimeMins int   `env:"DB_MAX_CONN_LIFETIME_MINUTES" envDefault:"60"`
	DBMaxConnIdleTimeMins int   `env:"DB_MAX_CONN_IDLE_TIME_MINUTES" envDefault:"30"`
	SlowQueryThresholdMs  int   `env:"LOG_SLOW_QUERY_MS" envDefault:"500"`

	// Circuit breaker around the order backend
	CBMaxRequests  uint32  `env:"CB_MAX_REQUESTS" envDefault:"1"`
	CBInterval     int     `env:"CB_INTERVAL_SECONDS" envDefault:"60"`
	CBTimeout      int     `env:"CB_TIMEOUT_SECONDS" envDefault:"30"`
	CBFailureRatio float64 `env:"CB_FAILURE_RATIO" envDefault:"0.5"`
	CBMinRequests  uint32  `env:"CB_MIN_REQUESTS" envDefault:"5"`

	// OpenTelemetry
	OTELEnabled    bool    `env:"OTEL_ENABLED" envDefault:"false"`
	OTELEndpoint   string  `env:"OTEL_EXPORTER_OTLP_ENDPOINT" envDefault:"localhost:4318"`
	OTELSampleRate float64 `env:"OTEL_SAMPLE_RATE" envDefault:"1.0"`

	// CORS and pprof
	CORSAllowedOrigins []string `env:"CORS_ALLOWED_ORIGINS" envDefault:"http://localhost:3000" envSeparator:","`
	PprofAllowedCIDRs  []string `env:"PPROF_ALLOWED_CIDRS" envDefault:"127.0.0.0/8,::1/128" envSeparator:","`

	pricing domain.Pricing
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}
	if err := pkgconfig.Load(cfg); err != nil {
		return nil, fmt.Errorf("load portal config: %w", err)
	}
	return cfg, nil
}

// Validate checks configuration invariants and parses derived values.
func (c *Config) Validate() error {
	var errs []error

	if c.HTTPPort < 1 || c.HTTPPort > 65535 {
		errs = append(errs, fmt.Errorf("invalid HTTP port: %d", c.HTTPPort))
	}
	if u, err := url.Parse(c.BackendBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		errs = append(errs, fmt.Errorf("BACKEND_BASE_URL must be an absolute URL, got %q", c.BackendBaseURL))
	}
	if c.CartStorage != StorageRedis && c.CartStorage != StorageMemory {
		errs = append(errs, fmt.Errorf("CART_STORAGE must be %q or %q, got %q", StorageRedis, StorageMemory, c.CartStorage))
	}

	shipping, err := decimal.NewFromString(c.ShippingFee)
	if err != nil || shipping.IsNegative() {
		errs = append(errs, fmt.Errorf("SHIPPING_FEE must be a non-negative decimal, got %q", c.ShippingFee))
	}
	rate, err := decimal.NewFromString(c.TaxRatePercent)
	if err != nil || rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(100)) {
		errs = append(errs, fmt.Errorf("TAX_RATE_PERCENT must be between 0 and 100, got %q", c.TaxRatePercent))
	}
	if len(strings.TrimSpace(c.Currency)) != 3 {
		errs = append(errs, fmt.Errorf("CURRENCY must be a 3-letter code, got %q", c.Currency))
	}

	if c.PaymentMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_MAX_ATTEMPTS must be at least 1, got %d", c.PaymentMaxAttempts))
	}
	if c.PaymentRetryDelayMS < 0 {
		errs = append(errs, fmt.Errorf("PAYMENT_RETRY_DELAY_MS must not be negative, got %d", c.PaymentRetryDelayMS))
	}
	if c.PaymentAttemptTimeoutSeconds < 1 {
		errs = append(errs, fmt.Errorf("PAYMENT_ATTEMPT_TIMEOUT_SECONDS must be at least 1, got %d", c.PaymentAttemptTimeoutSeconds))
	}
	if c.CheckoutRateLimitRPS <= 0 || c.CheckoutRateLimitBurst < 1 {
		errs = append(errs, errors.New("CHECKOUT_RATE_LIMIT_RPS must be positive and CHECKOUT_RATE_LIMIT_BURST at least 1"))
	}
	if c.CallbackRateLimitRPS <= 0 || c.CallbackRateLimitBurst < 1 {
		errs = append(errs, errors.New("CALLBACK_RATE_LIMIT_RPS must be positive and CALLBACK_RATE_LIMIT_BURST at least 1"))
	}
	if c.KafkaEnabled && len(c.KafkaBrokers) == 0 {
		errs = append(errs, errors.New("KAFKA_BROKERS is required when KAFKA_ENABLED is true"))
	}
	if c.OTELSampleRate < 0 || c.OTELSampleRate > 1.0 {
		errs = append(errs, fmt.Errorf("OTEL_SAMPLE_RATE must be between 0.0 and 1.0, got %f", c.OTELSampleRate))
	}

	if len(errs) > 0 {
		return errors.Join(errs...)
	}

	c.pricing = domain.Pricing{
		ShippingFee:    shipping,
		TaxRatePercent: rate,
		Currency:       strings.ToUpper(strings.TrimSpace(c.Currency)),
	}
	return nil
}

// Pricing returns the parsed cart pricing settings.
func (c *Config) Pricing() domain.Pricing {
	return c.pricing
}

// PaymentRetryDelay is the fixed wait before every initialization attempt.
func (c *Config) PaymentRetryDelay() time.Duration {
	return time.Duration(c.PaymentRetryDelayMS) * time.Millisecond
}

// PaymentAttemptTimeout bounds a single initialization call.
func (c *Config) PaymentAttemptTimeout() time.Duration {
	return time.Duration(c.PaymentAttemptTimeoutSeconds) * time.Second
}

// CartTTL is how long an untouched cart survives in storage.
func (c *Config) CartTTL() time.Duration {
	return time.Duration(c.CartTTLHours) * time.Hour
}

// CheckoutLockTTL bounds how long a checkout holds the per-session guard.
func (c *Config) CheckoutLockTTL() time.Duration {
	return time.Duration(c.CheckoutLockTTLSeconds) * time.Second
}

// CheckoutURL is where a failed payment sends the user back to.
func (c *Config) CheckoutURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/checkout"
}

// DashboardURL is the citizen dashboard link shown on callback pages.
func (c *Config) DashboardURL() string {
	return strings.TrimRight(c.PublicBaseURL, "/") + "/dashboard"
}

// RedisConfig returns the shared Redis client settings.
func (c *Config) RedisConfig() database.RedisConfig {
	rc := database.DefaultRedisConfig()
	rc.Addr = c.RedisAddr
	rc.Password = c.RedisPass
	rc.DB = c.RedisDB
	return rc
}

// PostgresConfig returns the journal database settings.
func (c *Config) PostgresConfig() database.PostgresConfig {
	return database.PostgresConfig{
		Host:            c.PostgresHost,
		Port:            c.PostgresPort,
		User:            c.PostgresUser,
		Password:        c.PostgresPass,
		DBName:          c.PostgresDB,
		SSLMode:         c.PostgresSSL,
		MaxConns:        c.DBMaxConns,
		MinConns:        c.DBMinConns,
		MaxConnLifetime: time.Duration(c.DBMaxConnLifetimeMins) * time.Minute,
		MaxConnIdleTime: time.Duration(c.DBMaxConnIdleTimeMins) * time.Minute,
	}
}

// HTTPClientConfig returns the backend transport settings.
func (c *Config) HTTPClientConfig() httpclient.Config {
	hc := httpclient.DefaultConfig()
	hc.Timeout = time.Duration(c.BackendTimeoutSeconds) * time.Second
	return hc
}

// CircuitBreakerConfig returns the breaker settings for the order backend.
func (c *Config) CircuitBreakerConfig() httpclient.CircuitBreakerConfig {
	return httpclient.CircuitBreakerConfig{
		Name:         "order-backend",
		MaxRequests:  c.CBMaxRequests,
		Interval:     time.Duration(c.CBInterval) * time.Second,
		Timeout:      time.Duration(c.CBTimeout) * time.Second,
		FailureRatio: c.CBFailureRatio,
		MinRequests:  c.CBMinRequests,
	}
}
