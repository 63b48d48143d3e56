// Package config loads service configuration from config.yaml and
// NONPROFIT_* environment variables, and initializes the global logger.
package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Log        LogConfig        `yaml:"log" mapstructure:"log"`
	Server     ServerConfig     `yaml:"server" mapstructure:"server"`
	Cache      CacheConfig      `yaml:"cache" mapstructure:"cache"`
	Redis      RedisConfig      `yaml:"redis" mapstructure:"redis"`
	Store      StoreConfig      `yaml:"store" mapstructure:"store"`
	Registry   RegistryConfig   `yaml:"registry" mapstructure:"registry"`
	LookupAPI  LookupAPIConfig  `yaml:"lookup_api" mapstructure:"lookup_api"`
	Filing     FilingConfig     `yaml:"filing" mapstructure:"filing"`
	Matcher    MatcherConfig    `yaml:"matcher" mapstructure:"matcher"`
	Breaker    BreakerConfig    `yaml:"breaker" mapstructure:"breaker"`
	Reconcile  ReconcileConfig  `yaml:"reconcile" mapstructure:"reconcile"`
	Batch      BatchConfig      `yaml:"batch" mapstructure:"batch"`
	Monitoring MonitoringConfig `yaml:"monitoring" mapstructure:"monitoring"`
	States     StatesConfig     `yaml:"state_registry" mapstructure:"state_registry"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// CacheConfig selects the cache backend and its TTL classes.
type CacheConfig struct {
	Backend          string `yaml:"backend" mapstructure:"backend"` // memory or redis
	PositiveTTLHours int    `yaml:"positive_ttl_hours" mapstructure:"positive_ttl_hours"`
	NegativeTTLHours int    `yaml:"negative_ttl_hours" mapstructure:"negative_ttl_hours"`
	KeyPrefix        string `yaml:"key_prefix" mapstructure:"key_prefix"`
}

// PositiveTTL is the lifetime of a cached record.
func (c CacheConfig) PositiveTTL() time.Duration {
	return time.Duration(c.PositiveTTLHours) * time.Hour
}

// NegativeTTL is the lifetime of a not-found tombstone.
func (c CacheConfig) NegativeTTL() time.Duration {
	return time.Duration(c.NegativeTTLHours) * time.Hour
}

// RedisConfig configures the Redis cache backend.
type RedisConfig struct {
	URL           string `yaml:"url" mapstructure:"url"`
	PoolSize      int    `yaml:"pool_size" mapstructure:"pool_size"`
	DialTimeoutMs int    `yaml:"dial_timeout_ms" mapstructure:"dial_timeout_ms"`
}

// StoreConfig configures the durable snapshot store.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // sqlite or postgres
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// RegistryConfig locates the bulk registry files.
type RegistryConfig struct {
	Locations []string `yaml:"locations" mapstructure:"locations"`
	TempDir   string   `yaml:"temp_dir" mapstructure:"temp_dir"`
}

// LookupAPIConfig configures the Nonprofit Explorer client.
type LookupAPIConfig struct {
	BaseURL     string  `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec  float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// FilingConfig configures the 990 e-file archive reader.
type FilingConfig struct {
	BaseURL     string `yaml:"base_url" mapstructure:"base_url"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	IndexYears  int    `yaml:"index_years" mapstructure:"index_years"`
	ChunkKB     int    `yaml:"chunk_kb" mapstructure:"chunk_kb"`
}

// MatcherConfig tunes name search.
type MatcherConfig struct {
	Threshold   float64 `yaml:"threshold" mapstructure:"threshold"`
	PageSize    int     `yaml:"page_size" mapstructure:"page_size"`
	MaxPageSize int     `yaml:"max_page_size" mapstructure:"max_page_size"`
}

// BreakerConfig configures per-source circuit breakers.
type BreakerConfig struct {
	FailureThreshold int `yaml:"failure_threshold" mapstructure:"failure_threshold"`
	ResetTimeoutSecs int `yaml:"reset_timeout_secs" mapstructure:"reset_timeout_secs"`
}

// ReconcileConfig points at an optional precedence override file.
type ReconcileConfig struct {
	PrecedenceFile string `yaml:"precedence_file" mapstructure:"precedence_file"`
}

// BatchConfig bounds batch lookups.
type BatchConfig struct {
	MaxSize     int `yaml:"max_size" mapstructure:"max_size"`
	Concurrency int `yaml:"concurrency" mapstructure:"concurrency"`
}

// MonitoringConfig configures the background health checker.
type MonitoringConfig struct {
	WebhookURL          string `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs   int    `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours int    `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	SnapshotMaxAgeHours int    `yaml:"snapshot_max_age_hours" mapstructure:"snapshot_max_age_hours"`
}

// StatesConfig configures the state charity registry checks.
type StatesConfig struct {
	Enabled       bool    `yaml:"enabled" mapstructure:"enabled"`
	CaliforniaURL string  `yaml:"california_url" mapstructure:"california_url"`
	NewYorkURL    string  `yaml:"new_york_url" mapstructure:"new_york_url"`
	TexasURL      string  `yaml:"texas_url" mapstructure:"texas_url"`
	TimeoutSecs   int     `yaml:"timeout_secs" mapstructure:"timeout_secs"`
	RatePerSec    float64 `yaml:"rate_per_sec" mapstructure:"rate_per_sec"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("NONPROFIT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("cache.backend", "memory")
	v.SetDefault("cache.positive_ttl_hours", 168)
	v.SetDefault("cache.negative_ttl_hours", 24)
	v.SetDefault("cache.key_prefix", "verify:")
	v.SetDefault("redis.url", "redis://localhost:6379/0")
	v.SetDefault("redis.pool_size", 10)
	v.SetDefault("redis.dial_timeout_ms", 2000)
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "nonprofit.db")
	v.SetDefault("registry.locations", []string{})
	v.SetDefault("registry.temp_dir", "/tmp/nonprofit")
	v.SetDefault("lookup_api.base_url", "https://projects.propublica.org/nonprofits/api/v2")
	v.SetDefault("lookup_api.timeout_secs", 5)
	v.SetDefault("lookup_api.rate_per_sec", 10)
	v.SetDefault("filing.base_url", "https://apps.irs.gov/pub/epostcard/990/xml")
	v.SetDefault("filing.timeout_secs", 10)
	v.SetDefault("filing.index_years", 3)
	v.SetDefault("filing.chunk_kb", 64)
	v.SetDefault("matcher.threshold", 0.3)
	v.SetDefault("matcher.page_size", 25)
	v.SetDefault("matcher.max_page_size", 100)
	v.SetDefault("breaker.failure_threshold", 5)
	v.SetDefault("breaker.reset_timeout_secs", 30)
	v.SetDefault("reconcile.precedence_file", "")
	v.SetDefault("batch.max_size", 50)
	v.SetDefault("batch.concurrency", 8)
	v.SetDefault("monitoring.webhook_url", "")
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.snapshot_max_age_hours", 24*8)
	v.SetDefault("state_registry.enabled", true)
	v.SetDefault("state_registry.california_url", "https://rct.doj.ca.gov/Verification/Web/Search.aspx?facility=Y")
	v.SetDefault("state_registry.new_york_url", "https://www.charitiesnys.com/RegistrySearch/search_charities_action.jsp")
	v.SetDefault("state_registry.texas_url", "https://api.comptroller.texas.gov/open-data/v1/tables/exemption")
	v.SetDefault("state_registry.timeout_secs", 15)
	v.SetDefault("state_registry.rate_per_sec", 2)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects settings the service cannot run with.
func (c *Config) Validate() error {
	switch c.Cache.Backend {
	case "memory", "redis":
	default:
		return eris.Errorf("config: unknown cache.backend %q", c.Cache.Backend)
	}
	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		return eris.Errorf("config: unknown store.driver %q", c.Store.Driver)
	}
	if c.Cache.PositiveTTLHours <= 0 || c.Cache.NegativeTTLHours <= 0 {
		return eris.New("config: cache TTLs must be positive")
	}
	if c.Matcher.Threshold < 0 || c.Matcher.Threshold > 1 {
		return eris.Errorf("config: matcher.threshold %v outside [0,1]", c.Matcher.Threshold)
	}
	if c.Batch.MaxSize <= 0 {
		return eris.New("config: batch.max_size must be positive")
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)
	return nil
}
