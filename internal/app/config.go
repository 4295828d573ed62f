package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/shopspring/decimal"

	"github.com/xenking/printshop/internal/domain/order"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (PRINTSHOP_ prefix), flags, or YAML config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `usage:"PostgreSQL connection URL (PRINTSHOP_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Redis       RedisConfig
	Pricing     PricingConfig
	Stripe      StripeConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// RedisConfig enables the tier cache and the shared rate limit store.
type RedisConfig struct {
	URL      string        `usage:"Redis URL, e.g. redis://localhost:6379/0 (or REDIS_URL). Empty disables Redis" flag:"redis-url"`
	CacheTTL time.Duration `default:"5m" usage:"Pricing tier cache TTL, 0 disables the cache" flag:"redis-cache-ttl"`
}

// PricingConfig is the order pricing policy.
type PricingConfig struct {
	Currency string `default:"eur" usage:"ISO currency code of the grid"`
	// TaxRate is a decimal string so that it is parsed without float error.
	TaxRate  string `default:"0.20" usage:"VAT rate applied to the tax base" flag:"tax-rate"`
	Shipping ShippingConfig
}

// ShippingConfig is the flat threshold shipping rule.
type ShippingConfig struct {
	Enabled        bool  `default:"true" usage:"Charge shipping below the threshold"`
	ThresholdCents int64 `default:"10000" usage:"Subtotal from which shipping is free"`
	FeeCents       int64 `default:"1500" usage:"Shipping fee"`
	Taxable        bool  `default:"true" usage:"Include shipping in the tax base"`
}

// StripeConfig holds the payment provider credentials.
type StripeConfig struct {
	SecretKey     string `usage:"Stripe secret API key" flag:"stripe-secret-key"`
	WebhookSecret string `usage:"Stripe webhook signing secret" flag:"stripe-webhook-secret"`
	SiteURL       string `default:"http://localhost:3000" usage:"Storefront base URL for checkout redirects" flag:"site-url"`
}

// RateLimitConfig controls the per-client sliding window rate limiter.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
	// Store is "memory" or "redis"; redis shares the window across replicas.
	Store string `default:"memory" usage:"Rate limit store: memory or redis" flag:"rate-limit-store"`
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
	cfg, err := loadConfig(aconfig.Config{
		EnvPrefix: "PRINTSHOP",
		Files:     []string{"config.yaml", "/etc/printshop/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err != nil {
		return nil, err
	}
	cfg.applyPlatformDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadConfig(acfg aconfig.Config) (*Config, error) {
	var cfg Config
	if err := aconfig.LoaderFor(&cfg, acfg).Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's PRINTSHOP_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if c.Redis.URL == "" {
		c.Redis.URL = os.Getenv("REDIS_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}

// Validate reports missing or inconsistent settings.
func (c *Config) Validate() error {
	if c.DatabaseURL == "" {
		return errors.New("database URL is required: set PRINTSHOP_DATABASE_URL or DATABASE_URL")
	}
	if c.Stripe.SecretKey == "" {
		return errors.New("stripe secret key is required")
	}
	if c.Stripe.WebhookSecret == "" {
		return errors.New("stripe webhook secret is required")
	}
	if _, err := c.Policy(); err != nil {
		return err
	}
	switch c.RateLimit.Store {
	case "memory":
	case "redis":
		if c.Redis.URL == "" {
			return errors.New("redis rate limit store requires a redis URL")
		}
	default:
		return errors.Errorf("unknown rate limit store %q", c.RateLimit.Store)
	}
	if c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0 {
		return errors.New("rate limit max and window must be positive")
	}
	return nil
}

// Policy builds the order pricing policy.
func (c *Config) Policy() (order.Policy, error) {
	rate, err := decimal.NewFromString(c.Pricing.TaxRate)
	if err != nil {
		return order.Policy{}, errors.Wrapf(err, "parse tax rate %q", c.Pricing.TaxRate)
	}
	if rate.IsNegative() || rate.GreaterThanOrEqual(decimal.NewFromInt(1)) {
		return order.Policy{}, errors.Errorf("tax rate %s out of range [0, 1)", rate)
	}
	s := c.Pricing.Shipping
	if s.Enabled && (s.FeeCents < 0 || s.ThresholdCents < 0) {
		return order.Policy{}, errors.New("shipping fee and threshold must not be negative")
	}
	return order.Policy{
		Currency: c.Pricing.Currency,
		TaxRate:  rate,
		Shipping: order.ShippingPolicy{
			Enabled:        s.Enabled,
			ThresholdCents: s.ThresholdCents,
			FeeCents:       s.FeeCents,
			Taxable:        s.Taxable,
		},
	}, nil
}
