package app

import (
	"os"
	"strings"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (STOREFRONT_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Currency    string `default:"usd" usage:"ISO 4217 currency of all prices"`
	Orders      OrdersConfig
	Stripe      StripeConfig
	Kafka       KafkaConfig
	Redis       RedisConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// OrdersConfig controls the order lifecycle.
type OrdersConfig struct {
	StrictTransitions bool `default:"true" usage:"Reject status changes outside the transition table" flag:"strict-transitions"`
}

// StripeConfig enables card payments. Without a secret key card payments
// fail with a gateway error and COD keeps working.
type StripeConfig struct {
	SecretKey string        `usage:"Stripe secret API key" flag:"stripe-secret-key"`
	Timeout   time.Duration `default:"10s" usage:"Timeout of a single Stripe charge" flag:"stripe-timeout"`
}

// KafkaConfig enables order event publishing.
type KafkaConfig struct {
	Brokers []string `usage:"Kafka bootstrap brokers; empty disables order events"`
	Topic   string   `default:"order-events" usage:"Topic for order events"`
	Buffer  int      `default:"1024" usage:"In-memory event queue size"`
}

// RedisConfig enables Idempotency-Key replay on order creation and payment.
type RedisConfig struct {
	Addr           string        `usage:"Redis address; empty disables idempotency keys"`
	Password       string        `usage:"Redis password"`
	DB             int           `default:"0" usage:"Redis database"`
	IdempotencyTTL time.Duration `default:"24h" usage:"Retention of idempotent responses" flag:"idempotency-ttl"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*" usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials (cookies, auth headers)" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads configuration from environment variables, YAML config
// files and flags, then applies platform defaults.
func LoadConfig() (*Config, error) {
	return loadConfig(aconfig.Config{
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
}

func loadConfig(ac aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, ac).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults honours the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	c.Currency = strings.ToLower(strings.TrimSpace(c.Currency))
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set STOREFRONT_DATABASE_URL or DATABASE_URL")
	}
	if len(c.Currency) != 3 {
		return errors.Errorf("currency %q is not an ISO 4217 code", c.Currency)
	}
	if len(c.Kafka.Brokers) > 0 && c.Kafka.Topic == "" {
		return errors.New("kafka topic is required when brokers are set")
	}
	return nil
}
