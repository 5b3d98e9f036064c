package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/sells-group/property-research/internal/db"
	"github.com/sells-group/property-research/pkg/propdata"
)

// EnvPrefix prefixes every environment override, e.g. PROPRESEARCH_LOG_LEVEL.
const EnvPrefix = "PROPRESEARCH"

// Config holds the full application configuration.
type Config struct {
	Store      StoreConfig                        `yaml:"store" mapstructure:"store"`
	Log        LogConfig                          `yaml:"log" mapstructure:"log"`
	Server     ServerConfig                       `yaml:"server" mapstructure:"server"`
	Research   ResearchConfig                     `yaml:"research" mapstructure:"research"`
	Cache      CacheConfig                        `yaml:"cache" mapstructure:"cache"`
	Breaker    BreakerConfig                      `yaml:"breaker" mapstructure:"breaker"`
	Providers  map[string]propdata.ProviderConfig `yaml:"providers" mapstructure:"providers"`
	Catalog    CatalogConfig                      `yaml:"catalog" mapstructure:"catalog"`
	Monitoring MonitoringConfig                   `yaml:"monitoring" mapstructure:"monitoring"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string        `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string        `yaml:"database_url" mapstructure:"database_url"`
	Pool        db.PoolConfig `yaml:"pool" mapstructure:"pool"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port            int      `yaml:"port" mapstructure:"port"`
	CORSOrigins     []string `yaml:"cors_origins" mapstructure:"cors_origins"`
	ShutdownSecs    int      `yaml:"shutdown_secs" mapstructure:"shutdown_secs"`
	MaxRequestBytes int64    `yaml:"max_request_bytes" mapstructure:"max_request_bytes"`
}

// ResearchConfig configures job scheduling.
type ResearchConfig struct {
	Concurrency              int            `yaml:"concurrency" mapstructure:"concurrency"`
	DefaultWorkerTimeoutSecs int            `yaml:"default_worker_timeout_secs" mapstructure:"default_worker_timeout_secs"`
	WorkerTimeouts           map[string]int `yaml:"worker_timeouts" mapstructure:"worker_timeouts"`
	WaitTimeoutSecs          int            `yaml:"wait_timeout_secs" mapstructure:"wait_timeout_secs"`
	CeilingGraceSecs         int            `yaml:"ceiling_grace_secs" mapstructure:"ceiling_grace_secs"`
	PortfolioLimit           int            `yaml:"portfolio_limit" mapstructure:"portfolio_limit"`
}

// DefaultWorkerTimeout returns the default per-worker deadline.
func (r ResearchConfig) DefaultWorkerTimeout() time.Duration {
	return time.Duration(r.DefaultWorkerTimeoutSecs) * time.Second
}

// WaitTimeout returns how long a synchronous request blocks.
func (r ResearchConfig) WaitTimeout() time.Duration {
	return time.Duration(r.WaitTimeoutSecs) * time.Second
}

// CeilingGrace returns the slack added to a job's overall deadline.
func (r ResearchConfig) CeilingGrace() time.Duration {
	return time.Duration(r.CeilingGraceSecs) * time.Second
}

// Timeouts returns the per-worker timeout overrides. Non-positive entries
// are dropped.
func (r ResearchConfig) Timeouts() map[string]time.Duration {
	out := make(map[string]time.Duration, len(r.WorkerTimeouts))
	for name, secs := range r.WorkerTimeouts {
		if secs > 0 {
			out[name] = time.Duration(secs) * time.Second
		}
	}
	return out
}

// CacheConfig configures the Redis worker result cache. An empty RedisURL
// disables caching.
type CacheConfig struct {
	RedisURL string `yaml:"redis_url" mapstructure:"redis_url"`
	TTLHours int    `yaml:"ttl_hours" mapstructure:"ttl_hours"`
}

// TTL returns the cache entry lifetime.
func (c CacheConfig) TTL() time.Duration {
	return time.Duration(c.TTLHours) * time.Hour
}

// BreakerConfig configures the per-provider circuit breakers.
type BreakerConfig struct {
	Threshold    int `yaml:"threshold" mapstructure:"threshold"`
	CooldownSecs int `yaml:"cooldown_secs" mapstructure:"cooldown_secs"`
}

// CatalogConfig points at the optional worker catalog override file.
type CatalogConfig struct {
	Path string `yaml:"path" mapstructure:"path"`
}

// MonitoringConfig configures the job health checker. An empty WebhookURL
// disables alert delivery.
type MonitoringConfig struct {
	WebhookURL                string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	CheckIntervalSecs         int     `yaml:"check_interval_secs" mapstructure:"check_interval_secs"`
	LookbackWindowHours       int     `yaml:"lookback_window_hours" mapstructure:"lookback_window_hours"`
	FailureRateThreshold      float64 `yaml:"failure_rate_threshold" mapstructure:"failure_rate_threshold"`
	InsufficientRateThreshold float64 `yaml:"insufficient_rate_threshold" mapstructure:"insufficient_rate_threshold"`
	StuckAfterMins            int     `yaml:"stuck_after_mins" mapstructure:"stuck_after_mins"`
}

// StuckAfter returns how long a job may stay unfinished before it counts as
// stuck.
func (m MonitoringConfig) StuckAfter() time.Duration {
	return time.Duration(m.StuckAfterMins) * time.Minute
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from ./config.yaml and the environment.
func Load() (*Config, error) {
	return LoadFile("")
}

// LoadFile reads configuration from path, or from ./config.yaml when path is
// empty, then applies environment overrides. An explicit path must exist.
func LoadFile(path string) (*Config, error) {
	v := viper.New()

	// Config file
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	// Environment
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "property-research.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("server.shutdown_secs", 30)
	v.SetDefault("server.max_request_bytes", 1<<20)
	v.SetDefault("research.concurrency", 4)
	v.SetDefault("research.default_worker_timeout_secs", 20)
	v.SetDefault("research.wait_timeout_secs", 120)
	v.SetDefault("research.ceiling_grace_secs", 10)
	v.SetDefault("research.portfolio_limit", 50)
	v.SetDefault("cache.ttl_hours", 24)
	v.SetDefault("breaker.threshold", 5)
	v.SetDefault("breaker.cooldown_secs", 30)
	v.SetDefault("monitoring.check_interval_secs", 300)
	v.SetDefault("monitoring.lookback_window_hours", 24)
	v.SetDefault("monitoring.failure_rate_threshold", 0.25)
	v.SetDefault("monitoring.insufficient_rate_threshold", 0.5)
	v.SetDefault("monitoring.stuck_after_mins", 30)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings a command mode depends on and reports every
// problem at once.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch c.Store.Driver {
	case "sqlite", "postgres":
	default:
		errs = append(errs, "store.driver must be sqlite or postgres")
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	switch mode {
	case "migrate":
	case "run", "serve":
		if c.Research.Concurrency < 1 || c.Research.Concurrency > 64 {
			errs = append(errs, "research.concurrency must be between 1 and 64")
		}
		if c.Research.DefaultWorkerTimeoutSecs < 1 {
			errs = append(errs, "research.default_worker_timeout_secs must be > 0")
		}
		for name, secs := range c.Research.WorkerTimeouts {
			if secs < 0 {
				errs = append(errs, "research.worker_timeouts."+name+" must be >= 0")
			}
		}
		if c.Cache.RedisURL != "" && c.Cache.TTLHours < 1 {
			errs = append(errs, "cache.ttl_hours must be > 0 when cache.redis_url is set")
		}
		for name, p := range c.Providers {
			if p.BaseURL == "" {
				errs = append(errs, "providers."+name+".base_url is required")
			}
		}
		if mode == "serve" && c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	if len(errs) > 0 {
		return eris.Errorf("config: invalid for %s: %s", mode, strings.Join(errs, "; "))
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
