package app

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Cache backends accepted by CACHE_BACKEND.
const (
	CacheBackendMemory = "memory"
	CacheBackendRedis  = "redis"
)

// Config holds runtime configuration for the rollup service.
type Config struct {
	AppEnv            string        `envconfig:"APP_ENV" default:"development"`
	AppAddr           string        `envconfig:"APP_ADDR" default:":8080"`
	AppReadTimeout    time.Duration `envconfig:"APP_READ_TIMEOUT" default:"15s"`
	AppWriteTimeout   time.Duration `envconfig:"APP_WRITE_TIMEOUT" default:"60s"`
	AppRequestTimeout time.Duration `envconfig:"APP_REQUEST_TIMEOUT" default:"45s"`
	AppRateLimit      int           `envconfig:"APP_RATE_LIMIT" default:"60"`

	LogFormat string `envconfig:"LOG_FORMAT" default:"pretty"`

	RedisAddr string `envconfig:"REDIS_ADDR" default:"127.0.0.1:6379"`

	ERPBaseURL    string        `envconfig:"ERP_BASE_URL" required:"true"`
	ERPToken      string        `envconfig:"ERP_TOKEN"`
	ERPTimeout    time.Duration `envconfig:"ERP_TIMEOUT" default:"30s"`
	ERPPageSize   int           `envconfig:"ERP_PAGE_SIZE" default:"1000"`
	ERPMaxRecords int           `envconfig:"ERP_MAX_RECORDS" default:"1000000"`
	ERPRateLimit  float64       `envconfig:"ERP_RATE_LIMIT" default:"0"`

	MappingFile string `envconfig:"ROLLUP_MAPPING_FILE"`

	CacheBackend string        `envconfig:"CACHE_BACKEND" default:"memory"`
	CacheTTL     time.Duration `envconfig:"CACHE_TTL" default:"5m"`

	WarmupCron       string   `envconfig:"WARMUP_CRON" default:"*/15 * * * *"`
	WarmupDimensions []string `envconfig:"WARMUP_DIMENSIONS" default:"vendor,month,brand,store"`

	WorkerMetricsAddr string `envconfig:"WORKER_METRICS_ADDR" default:":9091"`
}

// LoadConfig reads configuration from environment variables.
func LoadConfig() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if strings.TrimSpace(c.ERPBaseURL) == "" {
		return errors.New("erp base url must be provided")
	}
	if c.ERPPageSize <= 0 {
		return fmt.Errorf("erp page size must be positive, got %d", c.ERPPageSize)
	}
	if c.ERPMaxRecords <= 0 {
		return fmt.Errorf("erp max records must be positive, got %d", c.ERPMaxRecords)
	}
	switch c.CacheBackend {
	case CacheBackendMemory, CacheBackendRedis:
	default:
		return fmt.Errorf("unsupported cache backend %q", c.CacheBackend)
	}
	return nil
}

// IsProduction returns true when the application runs in production.
func (c *Config) IsProduction() bool {
	return c != nil && c.AppEnv == "production"
}
