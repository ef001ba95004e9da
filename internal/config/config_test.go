package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, EnvDevelopment, cfg.Env)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 12*time.Second, cfg.Stripe.Timeout)
	assert.Equal(t, "gbp", cfg.Checkout.Currency)
	assert.Equal(t, []string{"GB", "IE", "FR", "DE", "ES", "IT", "NL", "BE"}, cfg.Checkout.ShippingCountries)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)
	assert.Equal(t, 10*time.Minute, cfg.Checkout.IdempotencyWindow)
}

func TestLoad_Environment(t *testing.T) {
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_plain")
	t.Setenv("STOREFRONT_STRIPE_WEBHOOK_SECRET", "whsec_prefixed")
	t.Setenv("STOREFRONT_HTTP_ADDR", ":9999")
	t.Setenv("STOREFRONT_STORE_DRIVER", "postgres")
	t.Setenv("STOREFRONT_CHECKOUT_RETRY_BACKOFF", "1s")

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "sk_test_plain", cfg.Stripe.SecretKey)
	assert.Equal(t, "whsec_prefixed", cfg.Stripe.WebhookSecret)
	assert.Equal(t, ":9999", cfg.HTTP.Addr)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, time.Second, cfg.Checkout.RetryBackoff)
}

func TestLoad_File(t *testing.T) {
	path := filepath.Join(t.TempDir(), "storefront.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
env: production
http:
  addr: ":7070"
store:
  driver: memory
stripe:
  secret_key: sk_test_file
kafka:
  brokers: "k1:9092,k2:9092"
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.True(t, cfg.IsProduction())
	assert.Equal(t, ":7070", cfg.HTTP.Addr)
	assert.Equal(t, DriverMemory, cfg.Store.Driver)
	assert.Equal(t, "sk_test_file", cfg.Stripe.SecretKey)
	assert.Equal(t, "k1:9092,k2:9092", cfg.Kafka.Brokers)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		cfg, err := Load("")
		require.NoError(t, err)
		cfg.Stripe.SecretKey = "sk_test"
		return cfg
	}

	require.NoError(t, valid().Validate())

	tests := []struct {
		name   string
		mutate func(c *Config)
		want   string
	}{
		{"no secret key", func(c *Config) { c.Stripe.SecretKey = "" }, "STRIPE_SECRET_KEY"},
		{"production without webhook secret", func(c *Config) { c.Env = EnvProduction; c.Cart.TokenSecret = "x" }, "STRIPE_WEBHOOK_SECRET"},
		{"production without token secret", func(c *Config) { c.Env = EnvProduction; c.Stripe.WebhookSecret = "whsec" }, "cart token secret"},
		{"unknown driver", func(c *Config) { c.Store.Driver = "oracle" }, "unknown store driver"},
		{"sqlite without path", func(c *Config) { c.Store.SQLitePath = "" }, "sqlite_path"},
		{"zero request timeout", func(c *Config) { c.HTTP.RequestTimeout = 0 }, "request_timeout"},
		{"no room for a retry", func(c *Config) { c.Stripe.Timeout = 20 * time.Second }, "two stripe.timeout attempts"},
		{"write timeout cuts off handlers", func(c *Config) { c.HTTP.WriteTimeout = c.HTTP.RequestTimeout }, "http.write_timeout"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}
