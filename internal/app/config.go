package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
)

// Config holds the complete application configuration, loadable from
// environment variables (STOREFRONT_ prefix), flags, or YAML config files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL; in-memory storage when empty" flag:"database-url"`
	ImageBaseURL string `default:"" usage:"Base URL for relative product images" flag:"image-base-url"`
	Redis        RedisConfig
	Catalog      CatalogConfig
	Session      SessionConfig
	OIDC         OIDCConfig
	Checkout     CheckoutConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// RedisConfig controls device storage and cookie session persistence.
type RedisConfig struct {
	Addr      string        `usage:"Redis address; in-memory storage when empty" flag:"redis-addr"`
	Password  string        `usage:"Redis password"`
	DB        int           `default:"0" usage:"Redis database number"`
	DeviceTTL time.Duration `default:"720h" usage:"Expiry of untouched device carts" flag:"device-ttl"`
}

// CatalogConfig controls the product catalog client.
type CatalogConfig struct {
	URL              string        `default:"https://fakestoreapi.com" usage:"Catalog base URL" flag:"catalog-url"`
	Timeout          time.Duration `default:"10s" usage:"Catalog request timeout"`
	FailureThreshold uint32        `default:"5" usage:"Consecutive failures that open the catalog breaker"`
	OpenTimeout      time.Duration `default:"30s" usage:"How long the catalog breaker stays open"`
}

// SessionConfig controls cookie sessions and the live session registry.
type SessionConfig struct {
	CookieName   string        `default:"storefront_session" usage:"Session cookie name"`
	Lifetime     time.Duration `default:"720h" usage:"Absolute session lifetime"`
	IdleTimeout  time.Duration `default:"168h" usage:"Session idle timeout"`
	SecureCookie bool          `default:"false" usage:"Send the session cookie over HTTPS only" flag:"secure-cookie"`
	LiveTTL      time.Duration `default:"30m" usage:"Idle time before a live session is evicted from memory"`
	MaxLive      int           `default:"200000" usage:"Live session count above which the liveness probe fails"`
	BcryptCost   int           `default:"0" usage:"bcrypt cost for new passwords; 0 selects the library default"`
}

// OIDCConfig configures federated sign-in. It is disabled when Issuer is empty.
type OIDCConfig struct {
	Name          string `default:"google" usage:"Provider name, prefixed to federated UIDs"`
	Issuer        string `usage:"OpenID Connect issuer URL" flag:"oidc-issuer"`
	ClientID      string `usage:"OAuth2 client id"`
	ClientSecret  string `usage:"OAuth2 client secret"`
	RedirectURL   string `usage:"OAuth2 redirect URL, ending in /api/auth/federated/callback"`
	AfterLoginURL string `default:"/" usage:"Where to send the browser after federated sign-in"`
}

// CheckoutConfig controls order placement.
type CheckoutConfig struct {
	DeliveryWindow time.Duration `default:"120h" usage:"Added to the placement time to estimate delivery"`
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
		EnvPrefix: "STOREFRONT",
		Files:     []string{"config.yaml", "/etc/storefront/config.yaml"},
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
		return nil, errors.Wrap(err, "load config")
	}
	cfg.applyPlatformDefaults()

	if cfg.OIDC.Issuer != "" && (cfg.OIDC.ClientID == "" || cfg.OIDC.RedirectURL == "") {
		return nil, errors.New("OIDC issuer set without client id or redirect URL")
	}

	return &cfg, nil
}

// applyPlatformDefaults maps platform-provided environment variables (Railway,
// Render, etc.) that use standard names like DATABASE_URL, REDIS_URL and PORT
// to the application's STOREFRONT_-prefixed configuration.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		if v := os.Getenv("DATABASE_URL"); v != "" {
			c.DatabaseURL = v
		}
	}
	if c.Redis.Addr == "" {
		if v := os.Getenv("REDIS_ADDR"); v != "" {
			c.Redis.Addr = v
		}
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == "0.0.0.0:8080" {
		c.Addr = "0.0.0.0:" + port
	}
}
