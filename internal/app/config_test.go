package app

import (
	"testing"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Addr:        defaultAddr,
		DatabaseURL: "postgres://printshop@localhost/printshop",
		Pricing: PricingConfig{
			Currency: "eur",
			TaxRate:  "0.20",
			Shipping: ShippingConfig{Enabled: true, ThresholdCents: 10000, FeeCents: 1500, Taxable: true},
		},
		Stripe:    StripeConfig{SecretKey: "sk_test_x", WebhookSecret: "whsec_x", SiteURL: "https://shop.example"},
		RateLimit: RateLimitConfig{Max: 100, Window: time.Minute, Store: "memory"},
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	cfg, err := loadConfig(aconfig.Config{
		EnvPrefix: "PRINTSHOP_TEST",
		SkipFlags: true,
		SkipFiles: true,
	})
	require.NoError(t, err)

	assert.Equal(t, defaultAddr, cfg.Addr)
	assert.Equal(t, 5*time.Minute, cfg.Redis.CacheTTL)
	assert.Equal(t, "eur", cfg.Pricing.Currency)
	assert.Equal(t, "0.20", cfg.Pricing.TaxRate)
	assert.Equal(t, ShippingConfig{Enabled: true, ThresholdCents: 10000, FeeCents: 1500, Taxable: true}, cfg.Pricing.Shipping)
	assert.Equal(t, "http://localhost:3000", cfg.Stripe.SiteURL)
	assert.Equal(t, RateLimitConfig{Max: 100, Window: time.Minute, Store: "memory"}, cfg.RateLimit)
	assert.Equal(t, []string{"*"}, cfg.CORS.Origins)
	assert.Equal(t, 3*time.Second, cfg.Graceful.ReadinessDelay)
	assert.Equal(t, 15*time.Second, cfg.Graceful.ShutdownTimeout)
}

func TestApplyPlatformDefaults(t *testing.T) {
	t.Setenv("DATABASE_URL", "postgres://platform/db")
	t.Setenv("REDIS_URL", "redis://platform:6379/0")
	t.Setenv("PORT", "9090")

	cfg := &Config{Addr: defaultAddr}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://platform/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://platform:6379/0", cfg.Redis.URL)
	assert.Equal(t, "0.0.0.0:9090", cfg.Addr)

	// Explicit settings win.
	cfg = &Config{Addr: "127.0.0.1:7000", DatabaseURL: "postgres://explicit/db", Redis: RedisConfig{URL: "redis://explicit"}}
	cfg.applyPlatformDefaults()
	assert.Equal(t, "postgres://explicit/db", cfg.DatabaseURL)
	assert.Equal(t, "redis://explicit", cfg.Redis.URL)
	assert.Equal(t, "127.0.0.1:7000", cfg.Addr)
}

func TestConfig_Validate(t *testing.T) {
	require.NoError(t, validConfig().Validate())

	for _, tt := range []struct {
		name   string
		mutate func(c *Config)
	}{
		{"NoDatabase", func(c *Config) { c.DatabaseURL = "" }},
		{"NoStripeKey", func(c *Config) { c.Stripe.SecretKey = "" }},
		{"NoWebhookSecret", func(c *Config) { c.Stripe.WebhookSecret = "" }},
		{"BadTaxRate", func(c *Config) { c.Pricing.TaxRate = "20%" }},
		{"NegativeTaxRate", func(c *Config) { c.Pricing.TaxRate = "-0.1" }},
		{"WholeTaxRate", func(c *Config) { c.Pricing.TaxRate = "1" }},
		{"NegativeFee", func(c *Config) { c.Pricing.Shipping.FeeCents = -1 }},
		{"RedisStoreWithoutRedis", func(c *Config) { c.RateLimit.Store = "redis" }},
		{"UnknownStore", func(c *Config) { c.RateLimit.Store = "memcached" }},
		{"ZeroMax", func(c *Config) { c.RateLimit.Max = 0 }},
	} {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := validConfig()
	cfg.RateLimit.Store = "redis"
	cfg.Redis.URL = "redis://localhost:6379/0"
	assert.NoError(t, cfg.Validate())
}

func TestConfig_Policy(t *testing.T) {
	cfg := validConfig()
	cfg.Pricing.TaxRate = "0.055"
	cfg.Pricing.Shipping.Taxable = false

	p, err := cfg.Policy()
	require.NoError(t, err)
	assert.Equal(t, "eur", p.Currency)
	assert.True(t, decimal.RequireFromString("0.055").Equal(p.TaxRate))
	assert.Equal(t, int64(1500), p.Shipping.FeeFor(9999))
	assert.Equal(t, int64(0), p.Shipping.FeeFor(10000))
	assert.False(t, p.Shipping.Taxable)
}
