package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/xenking/ecomify/internal/domain/discount"
	"github.com/xenking/ecomify/internal/domain/money"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (ECOMIFY_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (ECOMIFY_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for product images (e.g. https://cdn.example.com/images)" flag:"image-base-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing (ECOMIFY_API_KEY_PEPPER)" flag:"api-key-pepper"`
	Currency     string `default:"USD" usage:"Store currency (ISO 4217)"`
	Redis        RedisConfig
	Events       EventsConfig
	Discounts    DiscountsConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig locates the cart store.
type RedisConfig struct {
	Addr          string        `default:"localhost:6379" usage:"Redis address"`
	Password      string        `usage:"Redis password"`
	DB            int           `default:"0" usage:"Redis database number"`
	CartTTL       time.Duration `default:"168h" usage:"Idle lifetime of a cart" flag:"cart-ttl"`
	CartTTLJitter time.Duration `default:"1h" usage:"Random extra cart lifetime" flag:"cart-ttl-jitter"`
}

// EventsConfig selects where payment events go.
type EventsConfig struct {
	Driver  string   `default:"log" usage:"Event driver: none, log, kafka or nats"`
	Brokers []string `usage:"Kafka broker addresses"`
	Topic   string   `default:"payments.status" usage:"Kafka topic"`
	NATSURL string   `default:"nats://localhost:4222" usage:"NATS server URL" flag:"nats-url"`
	Subject string   `default:"payments.status" usage:"NATS subject"`
}

// DiscountsConfig holds the anti-abuse limits.
type DiscountsConfig struct {
	MaxCustomerPercentage int           `default:"50" usage:"Highest percentage a customer may request" flag:"max-customer-percentage"`
	PercentageWindow      time.Duration `default:"720h" usage:"Look-back window for percentage discounts" flag:"percentage-window"`
	PercentageMaxRecent   int           `default:"3" usage:"Percentage discounts allowed per window" flag:"percentage-max-recent"`
	FixedWindow           time.Duration `default:"168h" usage:"Look-back window for fixed discounts" flag:"fixed-window"`
	FixedMaxRecent        int           `default:"8" usage:"Fixed discounts allowed per window" flag:"fixed-max-recent"`
}

// Policy converts the limits to a discount.Policy.
func (c DiscountsConfig) Policy() discount.Policy {
	return discount.Policy{
		MaxCustomerPercentage: decimal.NewFromInt(int64(c.MaxCustomerPercentage)),
		PercentageWindow:      c.PercentageWindow,
		PercentageMaxRecent:   c.PercentageMaxRecent,
		FixedWindow:           c.FixedWindow,
		FixedMaxRecent:        c.FixedMaxRecent,
	}
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

// LoadConfig loads configuration from environment variables, YAML config files,
// and applies platform-specific defaults.
func LoadConfig() (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "ECOMIFY",
		Files:     []string{"config.yaml", "/etc/ecomify/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	if err := cfg.applyPlatformDefaults(); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's ECOMIFY_-prefixed configuration.
func (c *Config) applyPlatformDefaults() error {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
	if u := os.Getenv("REDIS_URL"); u != "" {
		opts, err := redis.ParseURL(u)
		if err != nil {
			return errors.Wrap(err, "parse REDIS_URL")
		}
		c.Redis.Addr = opts.Addr
		c.Redis.Password = opts.Password
		c.Redis.DB = opts.DB
	}
	return nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set ECOMIFY_DATABASE_URL or DATABASE_URL")
	}
	if _, err := money.ParseCurrency(c.Currency); err != nil {
		return errors.Wrapf(err, "currency %q", c.Currency)
	}
	switch c.Events.Driver {
	case "none", "log", "nats":
	case "kafka":
		if len(c.Events.Brokers) == 0 {
			return errors.New("kafka driver needs at least one broker")
		}
	default:
		return errors.Errorf("unknown events driver %q", c.Events.Driver)
	}
	if c.Discounts.MaxCustomerPercentage <= 0 || c.Discounts.MaxCustomerPercentage > 100 {
		return errors.Errorf("max customer percentage %d out of range", c.Discounts.MaxCustomerPercentage)
	}
	return nil
}
