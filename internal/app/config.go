package app

import (
	"io/fs"
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
)

const defaultAddr = "0.0.0.0:8080"

// Config holds the complete application configuration, loadable from
// environment variables (FOODRUN_ prefix), flags, a local .env file or YAML
// config files.
type Config struct {
	Addr        string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL string `env:"DATABASE_URL" usage:"PostgreSQL connection URL (FOODRUN_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	Auth        AuthConfig
	Checkout    CheckoutConfig
	Store       StoreConfig
	Challenge   ChallengeConfig
	RateLimit   RateLimitConfig
	CORS        CORSConfig
	Graceful    GracefulConfig
}

// AuthConfig verifies bearer tokens issued by the identity service.
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" usage:"HS256 secret shared with the identity service" flag:"jwt-secret"`
}

// CheckoutConfig controls checkout and driver payouts.
type CheckoutConfig struct {
	Timeout         time.Duration `env:"TIMEOUT" default:"5s" usage:"Deadline for a whole checkout including catalog reads"`
	DeliveryPayment string        `env:"DELIVERY_PAYMENT" default:"5.00" usage:"Fixed payment per accepted delivery"`
}

// StoreConfig bounds database work outside checkout.
type StoreConfig struct {
	Timeout time.Duration `env:"TIMEOUT" default:"3s" usage:"Deadline for each cart, coupon, order and challenge store call"`
}

// ChallengeConfig controls delivery challenge sessions.
type ChallengeConfig struct {
	Secret    string        `env:"SECRET" usage:"HS256 secret for challenge session tokens" flag:"challenge-secret"`
	Ceiling   time.Duration `env:"CEILING" default:"2h" usage:"Maximum lifetime of a challenge session"`
	CouponTTL time.Duration `env:"COUPON_TTL" default:"168h" usage:"Validity of reward coupons"`
	UIBaseURL string        `env:"UI_BASE_URL" default:"http://localhost:5173" usage:"Base URL of the challenge UI"`
}

// RateLimitConfig controls the per-client limiter on challenge routes.
type RateLimitConfig struct {
	Max    int           `env:"MAX" default:"30" usage:"Max challenge requests per window"`
	Window time.Duration `env:"WINDOW" default:"1m" usage:"Rate limit window duration"`
}

// CORSConfig lists origins allowed to call the API from a browser.
type CORSConfig struct {
	Origins []string `env:"ORIGINS" default:"*" usage:"Allowed CORS origins"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `env:"READINESS_DELAY" default:"3s" usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig reads .env when present, then environment variables, flags and
// YAML files.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(aconfig.Config{
		EnvPrefix: "FOODRUN",
		Files:     []string{"config.yaml", "/etc/foodrun/config.yaml"},
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

func (c *Config) validate() error {
	switch {
	case c.DatabaseURL == "":
		return errors.New("database URL is required: set FOODRUN_DATABASE_URL or DATABASE_URL")
	case c.Auth.JWTSecret == "":
		return errors.New("identity secret is required: set FOODRUN_AUTH_JWT_SECRET")
	case c.Challenge.Secret == "":
		return errors.New("challenge secret is required: set FOODRUN_CHALLENGE_SECRET")
	case c.Challenge.Secret == c.Auth.JWTSecret:
		return errors.New("challenge secret must differ from the identity secret")
	case c.Store.Timeout < 0 || c.Checkout.Timeout < 0:
		return errors.New("store and checkout timeouts must not be negative")
	case c.RateLimit.Max <= 0 || c.RateLimit.Window <= 0:
		return errors.New("rate limit max and window must be positive")
	}
	if _, err := c.DeliveryPayment(); err != nil {
		return err
	}
	return nil
}

// DeliveryPayment parses Checkout.DeliveryPayment.
func (c *Config) DeliveryPayment() (decimal.Decimal, error) {
	d, err := decimal.NewFromString(c.Checkout.DeliveryPayment)
	if err != nil {
		return decimal.Zero, errors.Wrap(err, "parse delivery payment")
	}
	if d.IsNegative() {
		return decimal.Zero, errors.New("delivery payment must not be negative")
	}
	return d, nil
}

// applyPlatformDefaults maps platform-provided DATABASE_URL and PORT to the
// FOODRUN_ configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
