package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Meta      MetaConfig      `yaml:"meta" mapstructure:"meta"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Recommend RecommendConfig `yaml:"recommend" mapstructure:"recommend"`
	Anomaly   AnomalyConfig   `yaml:"anomaly" mapstructure:"anomaly"`
	Redis     RedisConfig     `yaml:"redis" mapstructure:"redis"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Notify    NotifyConfig    `yaml:"notify" mapstructure:"notify"`
	Schedule  ScheduleConfig  `yaml:"schedule" mapstructure:"schedule"`
	Retention RetentionConfig `yaml:"retention" mapstructure:"retention"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend. For sqlite, DatabaseURL is
// the file path.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// MetaConfig holds Meta Marketing API credentials and client tuning.
type MetaConfig struct {
	AccessToken      string   `yaml:"access_token" mapstructure:"access_token"`
	AppSecret        string   `yaml:"app_secret" mapstructure:"app_secret"`
	VerifyToken      string   `yaml:"verify_token" mapstructure:"verify_token"`
	BaseURL          string   `yaml:"base_url" mapstructure:"base_url"`
	APIVersion       string   `yaml:"api_version" mapstructure:"api_version"`
	Accounts         []string `yaml:"accounts" mapstructure:"accounts"`
	RequestsPerSec   float64  `yaml:"requests_per_sec" mapstructure:"requests_per_sec"`
	Burst            int      `yaml:"burst" mapstructure:"burst"`
	MaxAttempts      int      `yaml:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoffMs int      `yaml:"initial_backoff_ms" mapstructure:"initial_backoff_ms"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key         string  `yaml:"key" mapstructure:"key"`
	Model       string  `yaml:"model" mapstructure:"model"`
	MaxTokens   int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature float64 `yaml:"temperature" mapstructure:"temperature"`
}

// RecommendConfig controls the delegated synthesis path.
type RecommendConfig struct {
	AIEnabled        bool `yaml:"ai_enabled" mapstructure:"ai_enabled"`
	AITimeoutSecs    int  `yaml:"ai_timeout_secs" mapstructure:"ai_timeout_secs"`
	CircuitThreshold int  `yaml:"circuit_threshold" mapstructure:"circuit_threshold"`
	CircuitResetSecs int  `yaml:"circuit_reset_secs" mapstructure:"circuit_reset_secs"`
}

// AnomalyConfig points at an optional YAML rule table.
type AnomalyConfig struct {
	RulesFile string `yaml:"rules_file" mapstructure:"rules_file"`
}

// RedisConfig enables the cross-process sync lock.
type RedisConfig struct {
	URL         string `yaml:"url" mapstructure:"url"`
	LockTTLSecs int    `yaml:"lock_ttl_secs" mapstructure:"lock_ttl_secs"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Port        int      `yaml:"port" mapstructure:"port"`
	CORSOrigins []string `yaml:"cors_origins" mapstructure:"cors_origins"`
}

// NotifyConfig configures alert webhook delivery.
type NotifyConfig struct {
	WebhookURL        string  `yaml:"webhook_url" mapstructure:"webhook_url"`
	MinSeverity       string  `yaml:"min_severity" mapstructure:"min_severity"`
	FailureRateAlert  float64 `yaml:"failure_rate_alert" mapstructure:"failure_rate_alert"`
	HealthLookbackHrs int     `yaml:"health_lookback_hours" mapstructure:"health_lookback_hours"`
}

// ScheduleConfig configures periodic syncs in serve mode.
type ScheduleConfig struct {
	Enabled      bool `yaml:"enabled" mapstructure:"enabled"`
	IntervalMins int  `yaml:"interval_mins" mapstructure:"interval_mins"`
}

// RetentionConfig configures the cleanup sweep.
type RetentionConfig struct {
	Days          int `yaml:"days" mapstructure:"days"`
	IntervalHours int `yaml:"interval_hours" mapstructure:"interval_hours"`
}

// SyncConfig configures default sync windows.
type SyncConfig struct {
	DefaultDays int `yaml:"default_days" mapstructure:"default_days"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("ADS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.database_url", "")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("meta.access_token", "")
	v.SetDefault("meta.app_secret", "")
	v.SetDefault("meta.verify_token", "")
	v.SetDefault("meta.base_url", "https://graph.facebook.com")
	v.SetDefault("meta.api_version", "v19.0")
	v.SetDefault("meta.accounts", []string{})
	v.SetDefault("meta.requests_per_sec", 5.0)
	v.SetDefault("meta.burst", 5)
	v.SetDefault("meta.max_attempts", 4)
	v.SetDefault("meta.initial_backoff_ms", 2000)
	v.SetDefault("anthropic.key", "")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 2000)
	v.SetDefault("anthropic.temperature", 0.3)
	v.SetDefault("recommend.ai_enabled", false)
	v.SetDefault("recommend.ai_timeout_secs", 30)
	v.SetDefault("recommend.circuit_threshold", 5)
	v.SetDefault("recommend.circuit_reset_secs", 60)
	v.SetDefault("anomaly.rules_file", "")
	v.SetDefault("redis.url", "")
	v.SetDefault("redis.lock_ttl_secs", 600)
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.cors_origins", []string{"*"})
	v.SetDefault("notify.webhook_url", "")
	v.SetDefault("notify.min_severity", "high")
	v.SetDefault("notify.failure_rate_alert", 0.5)
	v.SetDefault("notify.health_lookback_hours", 24)
	v.SetDefault("schedule.enabled", false)
	v.SetDefault("schedule.interval_mins", 60)
	v.SetDefault("retention.days", 90)
	v.SetDefault("retention.interval_hours", 24)
	v.SetDefault("sync.default_days", 30)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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

// Validate checks the settings a command needs. Mode is one of sync, serve,
// import, cleanup, report or migrate.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "sync", "serve", "import", "cleanup", "report", "migrate":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite, got %q", c.Store.Driver))
	}
	if c.Store.DatabaseURL == "" {
		errs = append(errs, "store.database_url is required")
	}

	analyzes := mode == "sync" || mode == "serve" || mode == "import"
	if (mode == "sync" || mode == "serve") && c.Meta.AccessToken == "" {
		errs = append(errs, "meta.access_token is required")
	}
	if analyzes {
		if c.Recommend.AIEnabled && c.Anthropic.Key == "" {
			errs = append(errs, "anthropic.key is required when recommend.ai_enabled is set")
		}
		if c.Sync.DefaultDays < 1 || c.Sync.DefaultDays > 365 {
			errs = append(errs, "sync.default_days must be between 1 and 365")
		}
		if c.Meta.MaxAttempts < 1 {
			errs = append(errs, "meta.max_attempts must be >= 1")
		}
		switch c.Notify.MinSeverity {
		case "low", "medium", "high", "critical":
		default:
			errs = append(errs, fmt.Sprintf("notify.min_severity %q is not a severity", c.Notify.MinSeverity))
		}
	}

	if mode == "serve" {
		if c.Server.Port <= 0 {
			errs = append(errs, "server.port must be > 0")
		}
		if c.Schedule.Enabled {
			if len(c.Meta.Accounts) == 0 {
				errs = append(errs, "meta.accounts is required when schedule.enabled is set")
			}
			if c.Schedule.IntervalMins < 1 {
				errs = append(errs, "schedule.interval_mins must be >= 1")
			}
		}
	}

	if mode == "cleanup" || (mode == "serve" && c.Schedule.Enabled) {
		if c.Retention.Days < 1 {
			errs = append(errs, "retention.days must be >= 1")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger configures the global zap logger.
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
