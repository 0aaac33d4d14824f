package app

import (
	"os"
	"time"

	"github.com/cristalhq/aconfig"
	"github.com/cristalhq/aconfig/aconfigyaml"
	"github.com/go-faster/errors"
	"github.com/joho/godotenv"

	"github.com/xenking/sales-engine/internal/domain/sale"
)

const defaultAddr = "0.0.0.0:8080"

// Config is the API server configuration. Values come from flags, SALES_*
// environment variables (a local .env file is loaded first) and YAML files.
type Config struct {
	Addr         string `default:"0.0.0.0:8080" usage:"API server listen address"`
	DatabaseURL  string `usage:"PostgreSQL connection URL (SALES_DATABASE_URL or DATABASE_URL)" flag:"database-url"`
	APIKeyPepper string `usage:"HMAC pepper for API key hashing" flag:"api-key-pepper"`
	MaxBodyBytes int64  `default:"1048576" usage:"Maximum request body size in bytes" flag:"max-body-bytes"`
	Engine       EngineConfig
	RateLimit    RateLimitConfig
	CORS         CORSConfig
	Graceful     GracefulConfig
}

// EngineConfig tunes the sale service.
type EngineConfig struct {
	EvalConcurrency int `default:"4"   usage:"Concurrent product/discount lookups per sale"`
	DefaultPageSize int `default:"100" usage:"Sales returned by a list call without take"`
	MaxPageSize     int `default:"500" usage:"Upper bound for take"`
}

// RateLimitConfig controls the per-key sliding window rate limiter. Requests
// are keyed by API key, or by client IP when none is sent.
type RateLimitConfig struct {
	Max    int           `default:"100" usage:"Max requests per window, 0 disables limiting"`
	Window time.Duration `default:"1m"  usage:"Rate limit window duration"`
}

// CORSConfig controls Cross-Origin Resource Sharing headers.
type CORSConfig struct {
	Origins          []string `default:"*"     usage:"Allowed CORS origins"`
	AllowCredentials bool     `default:"false" usage:"Allow credentials" flag:"cors-credentials"`
}

// GracefulConfig controls graceful shutdown timing.
type GracefulConfig struct {
	ReadinessDelay  time.Duration `default:"3s"  usage:"Delay after readiness=false before shutdown" flag:"readiness-delay"`
	ShutdownTimeout time.Duration `default:"15s" usage:"Maximum shutdown duration" flag:"shutdown-timeout"`
}

// LoadConfig loads the configuration for the process.
func LoadConfig() (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, errors.Wrap(err, "load .env")
	}
	return loadConfig(os.Args[1:], []string{"config.yaml", "/etc/sales/config.yaml"})
}

func loadConfig(args, files []string) (*Config, error) {
	var cfg Config
	loader := aconfig.LoaderFor(&cfg, aconfig.Config{
		EnvPrefix: "SALES",
		Args:      args,
		Files:     files,
		FileDecoders: map[string]aconfig.FileDecoder{
			".yaml": aconfigyaml.New(),
		},
	})
	if err := loader.Load(); err != nil {
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
		return errors.New("database URL is required: set SALES_DATABASE_URL or DATABASE_URL")
	case c.Engine.EvalConcurrency < 1:
		return errors.Errorf("engine eval concurrency must be positive, got %d", c.Engine.EvalConcurrency)
	case c.Engine.DefaultPageSize < 1 || c.Engine.MaxPageSize < c.Engine.DefaultPageSize:
		return errors.Errorf("invalid page sizes: default %d, max %d", c.Engine.DefaultPageSize, c.Engine.MaxPageSize)
	}
	return nil
}

// saleOptions maps the engine section onto sale.Service options.
func (c *Config) saleOptions() []sale.Option {
	return []sale.Option{
		sale.WithEvalConcurrency(c.Engine.EvalConcurrency),
		sale.WithPageLimits(c.Engine.DefaultPageSize, c.Engine.MaxPageSize),
	}
}

// applyPlatformDefaults honors the DATABASE_URL and PORT variables set by
// hosting platforms.
func (c *Config) applyPlatformDefaults() {
	if c.DatabaseURL == "" {
		c.DatabaseURL = os.Getenv("DATABASE_URL")
	}
	if port := os.Getenv("PORT"); port != "" && c.Addr == defaultAddr {
		c.Addr = "0.0.0.0:" + port
	}
}
