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
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Fetch     FetchConfig     `yaml:"fetch" mapstructure:"fetch"`
	Clean     CleanConfig     `yaml:"clean" mapstructure:"clean"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Worker    WorkerConfig    `yaml:"worker" mapstructure:"worker"`
	Alert     AlertConfig     `yaml:"alert" mapstructure:"alert"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"` // "postgres" or "sqlite"
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// AnthropicConfig holds Anthropic API settings for the AI extraction stage.
type AnthropicConfig struct {
	Key         string `yaml:"key" mapstructure:"key"`
	Model       string `yaml:"model" mapstructure:"model"`
	MaxTokens   int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	TimeoutSecs int    `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// FetchConfig configures HTML fetching and the page cache.
type FetchConfig struct {
	ConnectTimeoutSecs int     `yaml:"connect_timeout_secs" mapstructure:"connect_timeout_secs"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	MaxRedirects       int     `yaml:"max_redirects" mapstructure:"max_redirects"`
	MaxBodyBytes       int64   `yaml:"max_body_bytes" mapstructure:"max_body_bytes"`
	CacheTTLHours      int     `yaml:"cache_ttl_hours" mapstructure:"cache_ttl_hours"`
	UserAgent          string  `yaml:"user_agent" mapstructure:"user_agent"`
	HostRatePerSec     float64 `yaml:"host_rate_per_sec" mapstructure:"host_rate_per_sec"`
	HostRateBurst      int     `yaml:"host_rate_burst" mapstructure:"host_rate_burst"`
}

// ConnectTimeout returns the dial timeout as a duration.
func (c FetchConfig) ConnectTimeout() time.Duration {
	return time.Duration(c.ConnectTimeoutSecs) * time.Second
}

// RequestTimeout returns the total request timeout as a duration.
func (c FetchConfig) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutSecs) * time.Second
}

// CacheTTL returns the cache validity window as a duration.
func (c FetchConfig) CacheTTL() time.Duration {
	return time.Duration(c.CacheTTLHours) * time.Hour
}

// CleanConfig configures HTML cleaning and the output size budget.
type CleanConfig struct {
	TokenBudget   int     `yaml:"token_budget" mapstructure:"token_budget"`
	CharsPerToken float64 `yaml:"chars_per_token" mapstructure:"chars_per_token"`
	MinContentLen int     `yaml:"min_content_len" mapstructure:"min_content_len"`
	FloorLen      int     `yaml:"floor_len" mapstructure:"floor_len"`
}

// ExtractConfig configures the cascade.
type ExtractConfig struct {
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	MaxRetries          int     `yaml:"max_retries" mapstructure:"max_retries"`
	QuickWaitSecs       int     `yaml:"quick_wait_secs" mapstructure:"quick_wait_secs"`
	FollowUpDelaySecs   int     `yaml:"follow_up_delay_secs" mapstructure:"follow_up_delay_secs"`
}

// ServerConfig configures the HTTP trigger surface.
type ServerConfig struct {
	Port           int      `yaml:"port" mapstructure:"port"`
	AllowedOrigins []string `yaml:"allowed_origins" mapstructure:"allowed_origins"`
}

// WorkerConfig configures the background extraction worker.
type WorkerConfig struct {
	Concurrency      int `yaml:"concurrency" mapstructure:"concurrency"`
	PollSecs         int `yaml:"poll_secs" mapstructure:"poll_secs"`
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	DrainTimeoutSecs int `yaml:"drain_timeout_secs" mapstructure:"drain_timeout_secs"`
}

// AlertConfig configures the error-notification channel.
type AlertConfig struct {
	WebhookURL string `yaml:"webhook_url" mapstructure:"webhook_url"`
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
	v.SetEnvPrefix("JOBINTEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.timeout_secs", 60)
	v.SetDefault("fetch.connect_timeout_secs", 10)
	v.SetDefault("fetch.request_timeout_secs", 30)
	v.SetDefault("fetch.max_redirects", 5)
	v.SetDefault("fetch.max_body_bytes", 2*1024*1024)
	v.SetDefault("fetch.cache_ttl_hours", 24)
	v.SetDefault("fetch.user_agent", "Mozilla/5.0 (compatible; JobIntelBot/1.0)")
	v.SetDefault("fetch.host_rate_per_sec", 1.0)
	v.SetDefault("fetch.host_rate_burst", 3)
	v.SetDefault("clean.token_budget", 8000)
	v.SetDefault("clean.chars_per_token", 3.5)
	v.SetDefault("clean.min_content_len", 200)
	v.SetDefault("clean.floor_len", 1000)
	v.SetDefault("extract.confidence_threshold", 0.7)
	v.SetDefault("extract.max_retries", 3)
	v.SetDefault("extract.quick_wait_secs", 10)
	v.SetDefault("extract.follow_up_delay_secs", 60)
	v.SetDefault("server.port", 8080)
	v.SetDefault("worker.concurrency", 5)
	v.SetDefault("worker.poll_secs", 15)
	v.SetDefault("worker.batch_size", 20)
	v.SetDefault("worker.drain_timeout_secs", 30)
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
