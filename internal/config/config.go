// Package config loads storefront settings from an optional YAML file and
// STOREFRONT_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"

	DriverMemory   = "memory"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

type Config struct {
	Env      string         `mapstructure:"env"`
	HTTP     HTTPConfig     `mapstructure:"http"`
	GRPC     GRPCConfig     `mapstructure:"grpc"`
	Stripe   StripeConfig   `mapstructure:"stripe"`
	Checkout CheckoutConfig `mapstructure:"checkout"`
	Store    StoreConfig    `mapstructure:"store"`
	Cart     CartConfig     `mapstructure:"cart"`
	Webhook  WebhookConfig  `mapstructure:"webhook"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Log      LogConfig      `mapstructure:"log"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	RequestTimeout  time.Duration `mapstructure:"request_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type GRPCConfig struct {
	Addr string `mapstructure:"addr"`
}

type StripeConfig struct {
	SecretKey        string        `mapstructure:"secret_key"`
	PublishableKey   string        `mapstructure:"publishable_key"`
	WebhookSecret    string        `mapstructure:"webhook_secret"`
	APIURL           string        `mapstructure:"api_url"`
	Timeout          time.Duration `mapstructure:"timeout"`
	WebhookTolerance time.Duration `mapstructure:"webhook_tolerance"`
}

type CheckoutConfig struct {
	SiteURL           string        `mapstructure:"site_url"`
	SuccessURL        string        `mapstructure:"success_url"`
	CancelURL         string        `mapstructure:"cancel_url"`
	Currency          string        `mapstructure:"currency"`
	ShippingCountries []string      `mapstructure:"shipping_countries"`
	RetryBackoff      time.Duration `mapstructure:"retry_backoff"`
	IdempotencyWindow time.Duration `mapstructure:"idempotency_window"`
}

type StoreConfig struct {
	Driver     string         `mapstructure:"driver"`
	SQLitePath string         `mapstructure:"sqlite_path"`
	Postgres   PostgresConfig `mapstructure:"postgres"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type CartConfig struct {
	MongoURI      string        `mapstructure:"mongo_uri"`
	MongoDatabase string        `mapstructure:"mongo_database"`
	RedisAddr     string        `mapstructure:"redis_addr"`
	TokenSecret   string        `mapstructure:"token_secret"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`
}

type WebhookConfig struct {
	InboxPath     string        `mapstructure:"inbox_path"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
}

type KafkaConfig struct {
	Brokers string `mapstructure:"brokers"`
	Topic   string `mapstructure:"topic"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", EnvDevelopment)

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", 10*time.Second)
	v.SetDefault("http.write_timeout", 40*time.Second)
	v.SetDefault("http.request_timeout", 30*time.Second)
	v.SetDefault("http.shutdown_timeout", 15*time.Second)
	v.SetDefault("http.allowed_origins", []string{"*"})

	v.SetDefault("grpc.addr", ":9090")

	v.SetDefault("stripe.secret_key", "")
	v.SetDefault("stripe.publishable_key", "")
	v.SetDefault("stripe.webhook_secret", "")
	v.SetDefault("stripe.api_url", "")
	v.SetDefault("stripe.timeout", 12*time.Second)
	v.SetDefault("stripe.webhook_tolerance", 5*time.Minute)

	v.SetDefault("checkout.site_url", "https://purrpawboutique.uk")
	v.SetDefault("checkout.success_url", "https://purrpawboutique.uk/thank-you?session_id={CHECKOUT_SESSION_ID}")
	v.SetDefault("checkout.cancel_url", "https://purrpawboutique.uk/cart")
	v.SetDefault("checkout.currency", "gbp")
	v.SetDefault("checkout.shipping_countries", []string{"GB", "IE", "FR", "DE", "ES", "IT", "NL", "BE"})
	v.SetDefault("checkout.retry_backoff", 250*time.Millisecond)
	v.SetDefault("checkout.idempotency_window", 10*time.Minute)

	v.SetDefault("store.driver", DriverSQLite)
	v.SetDefault("store.sqlite_path", "storefront.db")
	v.SetDefault("store.postgres.host", "localhost")
	v.SetDefault("store.postgres.port", "5432")
	v.SetDefault("store.postgres.user", "storefront")
	v.SetDefault("store.postgres.password", "")
	v.SetDefault("store.postgres.dbname", "storefront")
	v.SetDefault("store.postgres.sslmode", "disable")

	v.SetDefault("cart.mongo_uri", "")
	v.SetDefault("cart.mongo_database", "storefront")
	v.SetDefault("cart.redis_addr", "")
	v.SetDefault("cart.token_secret", "")
	v.SetDefault("cart.token_ttl", 30*24*time.Hour)

	v.SetDefault("webhook.inbox_path", "webhook-inbox.db")
	v.SetDefault("webhook.retry_interval", 30*time.Second)

	v.SetDefault("kafka.brokers", "")
	v.SetDefault("kafka.topic", "storefront.orders")

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
}

// Load reads path when given, then applies environment overrides such as
// STOREFRONT_HTTP_ADDR. The provider keys are also read from the plain
// STRIPE_SECRET_KEY, STRIPE_PUBLISHABLE_KEY and STRIPE_WEBHOOK_SECRET.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("STOREFRONT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	for key, env := range map[string]string{
		"stripe.secret_key":      "STRIPE_SECRET_KEY",
		"stripe.publishable_key": "STRIPE_PUBLISHABLE_KEY",
		"stripe.webhook_secret":  "STRIPE_WEBHOOK_SECRET",
	} {
		if err := v.BindEnv(key, "STOREFRONT_"+strings.ToUpper(strings.ReplaceAll(key, ".", "_")), env); err != nil {
			return nil, fmt.Errorf("bind %s: %w", key, err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", path, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	return &cfg, nil
}

func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// RequestGrace is how long the router lets a handler run past
// http.request_timeout before it answers 503 itself.
const RequestGrace = 5 * time.Second

// Validate reports every problem that should stop the server from starting.
func (c *Config) Validate() error {
	var errs []error
	if c.Stripe.SecretKey == "" {
		errs = append(errs, errors.New("stripe secret key is required (STRIPE_SECRET_KEY)"))
	}
	if c.IsProduction() {
		if c.Stripe.WebhookSecret == "" {
			errs = append(errs, errors.New("stripe webhook secret is required in production (STRIPE_WEBHOOK_SECRET)"))
		}
		if c.Cart.TokenSecret == "" {
			errs = append(errs, errors.New("cart token secret is required in production"))
		}
	}
	switch c.Store.Driver {
	case DriverMemory, DriverSQLite, DriverPostgres:
	default:
		errs = append(errs, fmt.Errorf("unknown store driver %q", c.Store.Driver))
	}
	if c.Store.Driver == DriverSQLite && c.Store.SQLitePath == "" {
		errs = append(errs, errors.New("store.sqlite_path is required for the sqlite driver"))
	}
	if c.HTTP.RequestTimeout <= 0 {
		errs = append(errs, errors.New("http.request_timeout must be positive"))
	}
	if c.Stripe.Timeout <= 0 {
		errs = append(errs, errors.New("stripe.timeout must be positive"))
	}
	// a provider call may be retried once within the same request
	if need := 2*c.Stripe.Timeout + c.Checkout.RetryBackoff; c.Stripe.Timeout > 0 && c.HTTP.RequestTimeout > 0 && need > c.HTTP.RequestTimeout {
		errs = append(errs, fmt.Errorf("http.request_timeout %s is shorter than two stripe.timeout attempts plus checkout.retry_backoff (%s)",
			c.HTTP.RequestTimeout, need))
	}
	if c.HTTP.WriteTimeout > 0 && c.HTTP.WriteTimeout < c.HTTP.RequestTimeout+RequestGrace {
		errs = append(errs, fmt.Errorf("http.write_timeout must be at least http.request_timeout + %s", RequestGrace))
	}
	return errors.Join(errs...)
}
