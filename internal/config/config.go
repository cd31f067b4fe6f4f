package config

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/caarlos0/env/v10"
	"github.com/joho/godotenv"
)

var globalConfig *Config

// Version is stamped at build time.
var Version = "dev"

// Config holds all environment backed configuration for chat-api.
type Config struct {
	// HTTP Server
	HTTPPort    int `env:"HTTP_PORT" envDefault:"8080"`
	MetricsPort int `env:"METRICS_PORT" envDefault:"9091"`

	// PostgreSQL. When both are empty the in-memory store is used.
	DatabaseURL          string `env:"DATABASE_URL"`
	DBPostgresqlRead1DSN string `env:"DB_POSTGRESQL_READ1_DSN"`
	AutoMigrate          bool   `env:"AUTO_MIGRATE" envDefault:"true"`

	// Redis backs the anonymous quota counters and title claims when set.
	RedisURL      string        `env:"REDIS_URL"`
	TitleClaimTTL time.Duration `env:"TITLE_CLAIM_TTL" envDefault:"10m"`

	// Identity
	JWTSecret        string `env:"JWT_SECRET"`
	AnonymousKeySalt string `env:"ANONYMOUS_KEY_SALT"`

	// Model provider
	ProviderBaseURL  string        `env:"MODEL_PROVIDER_URL" envDefault:"http://localhost:8001/v1"`
	ProviderAPIKey   string        `env:"MODEL_PROVIDER_API_KEY"`
	DefaultModel     string        `env:"DEFAULT_MODEL"`
	ModelCatalogFile string        `env:"MODEL_CATALOG_FILE"`
	SystemPrompt     string        `env:"MODEL_SYSTEM_PROMPT"`
	Catalog          *ModelCatalog `env:"-"`

	// Title derivation
	TitleModel      string        `env:"TITLE_MODEL"`
	TitleDelay      time.Duration `env:"TITLE_DELAY" envDefault:"1s"`
	TitleTimeout    time.Duration `env:"TITLE_TIMEOUT" envDefault:"20s"`
	TitleWorkers    int           `env:"TITLE_WORKERS" envDefault:"2"`
	TitleQueueSize  int           `env:"TITLE_QUEUE_SIZE" envDefault:"64"`
	TitleMaxLength  int           `env:"TITLE_MAX_LENGTH" envDefault:"60"`
	TitleMemorySize int           `env:"TITLE_MEMORY_SIZE" envDefault:"4096"`

	// Anonymous quota
	QuotaDailyLimit     int    `env:"QUOTA_DAILY_LIMIT" envDefault:"20"`
	QuotaBurstPerMinute int    `env:"QUOTA_BURST_PER_MINUTE" envDefault:"5"`
	QuotaTimezone       string `env:"QUOTA_TIMEZONE" envDefault:"UTC"`

	// Sessions and caches
	SessionCapacity       int           `env:"SESSION_CAPACITY" envDefault:"1024"`
	SessionIdleTimeout    time.Duration `env:"SESSION_IDLE_TIMEOUT" envDefault:"30m"`
	ConversationCacheSize int           `env:"CONVERSATION_CACHE_SIZE" envDefault:"32"`

	// Observability / Logging
	HTTPTimeout      time.Duration `env:"HTTP_TIMEOUT" envDefault:"30s"`
	OTLPEndpoint     string        `env:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPHeaders      string        `env:"OTEL_EXPORTER_OTLP_HEADERS"`
	ServiceName      string        `env:"SERVICE_NAME" envDefault:"chat-api"`
	ServiceNamespace string        `env:"SERVICE_NAMESPACE" envDefault:"jan"`
	Environment      string        `env:"ENVIRONMENT" envDefault:"development"`
	LogLevel         string        `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat        string        `env:"LOG_FORMAT" envDefault:"console"`
}

// Load reads an optional .env file, parses environment variables into Config and validates it.
func Load() (*Config, error) {
	// a missing .env is normal outside local development
	_ = godotenv.Load()

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if err := cfg.finalize(); err != nil {
		return nil, err
	}

	globalConfig = cfg
	return cfg, nil
}

func (c *Config) finalize() error {
	if _, err := url.ParseRequestURI(c.ProviderBaseURL); err != nil {
		return fmt.Errorf("invalid MODEL_PROVIDER_URL: %w", err)
	}
	if _, err := time.LoadLocation(c.QuotaTimezone); err != nil {
		return fmt.Errorf("invalid QUOTA_TIMEZONE: %w", err)
	}
	if c.QuotaDailyLimit < 0 || c.QuotaBurstPerMinute < 0 {
		return fmt.Errorf("quota limits must not be negative")
	}
	if c.TitleWorkers <= 0 {
		c.TitleWorkers = 1
	}

	if path := strings.TrimSpace(c.ModelCatalogFile); path != "" {
		catalog, err := LoadModelCatalog(path)
		if err != nil {
			return fmt.Errorf("load model catalog: %w", err)
		}
		c.Catalog = catalog
		if c.DefaultModel == "" {
			c.DefaultModel = catalog.Default
		}
	}
	if c.TitleModel == "" {
		c.TitleModel = c.DefaultModel
	}

	c.LogLevel = strings.ToLower(c.LogLevel)
	c.LogFormat = strings.ToLower(c.LogFormat)
	return nil
}

// QuotaLocation returns the time zone that defines the daily quota window.
func (c *Config) QuotaLocation() *time.Location {
	loc, err := time.LoadLocation(c.QuotaTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// AllowedModels returns the catalog models, or nil when any model is accepted.
func (c *Config) AllowedModels() []string {
	if c == nil || c.Catalog == nil {
		return nil
	}
	return c.Catalog.IDs()
}

// GetGlobal returns the config loaded last.
// Deprecated: Use dependency injection with Load() instead.
func GetGlobal() *Config {
	return globalConfig
}
