// Package config loads application configuration from file and environment.
package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Apify     ApifyConfig     `yaml:"apify" mapstructure:"apify"`
	Scrape    ScrapeConfig    `yaml:"scrape" mapstructure:"scrape"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Pipeline  PipelineConfig  `yaml:"pipeline" mapstructure:"pipeline"`
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the run-history database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings.
type AnthropicConfig struct {
	Key               string `yaml:"key" mapstructure:"key"`
	Model             string `yaml:"model" mapstructure:"model"`
	MaxTokens         int64  `yaml:"max_tokens" mapstructure:"max_tokens"`
	UseBatchAPI       bool   `yaml:"use_batch_api" mapstructure:"use_batch_api"`
	BatchAPIThreshold int    `yaml:"batch_api_threshold" mapstructure:"batch_api_threshold"`
}

// ApifyConfig holds Apify actor settings for the X scraper.
type ApifyConfig struct {
	Token           string `yaml:"token" mapstructure:"token"`
	ActorID         string `yaml:"actor_id" mapstructure:"actor_id"`
	HandleBatchSize int    `yaml:"handle_batch_size" mapstructure:"handle_batch_size"`
}

// ScrapeConfig configures the scrape stage.
type ScrapeConfig struct {
	LimitPerAccount int `yaml:"limit_per_account" mapstructure:"limit_per_account"`
	TimeoutSecs     int `yaml:"timeout_secs" mapstructure:"timeout_secs"`
}

// ClassifyConfig configures the classification stage.
type ClassifyConfig struct {
	BatchSize          int     `yaml:"batch_size" mapstructure:"batch_size"`
	Concurrency        int     `yaml:"concurrency" mapstructure:"concurrency"`
	RequestTimeoutSecs int     `yaml:"request_timeout_secs" mapstructure:"request_timeout_secs"`
	RequestsPerSecond  float64 `yaml:"requests_per_second" mapstructure:"requests_per_second"`
}

// PipelineConfig configures run-wide behavior.
type PipelineConfig struct {
	LookbackDays int    `yaml:"lookback_days" mapstructure:"lookback_days"`
	OutputDir    string `yaml:"output_dir" mapstructure:"output_dir"`
	SourcesDir   string `yaml:"sources_dir" mapstructure:"sources_dir"`
}

// ServerConfig configures the HTTP API server.
type ServerConfig struct {
	Port int `yaml:"port" mapstructure:"port"`
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
	v.SetEnvPrefix("CURATOR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.database_url", "curator.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("server.port", 8080)
	v.SetDefault("anthropic.model", "claude-haiku-4-5-20251001")
	v.SetDefault("anthropic.max_tokens", 2048)
	v.SetDefault("anthropic.batch_api_threshold", 8)
	v.SetDefault("apify.actor_id", "quacker/twitter-scraper")
	v.SetDefault("apify.handle_batch_size", 10)
	v.SetDefault("scrape.limit_per_account", 20)
	v.SetDefault("scrape.timeout_secs", 300)
	v.SetDefault("classify.batch_size", 10)
	v.SetDefault("classify.concurrency", 4)
	v.SetDefault("classify.request_timeout_secs", 120)
	v.SetDefault("classify.requests_per_second", 2.0)
	v.SetDefault("pipeline.lookback_days", 7)
	v.SetDefault("pipeline.output_dir", "output")
	v.SetDefault("pipeline.sources_dir", "sources")

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
