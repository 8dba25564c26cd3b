// Package config loads client settings for the CLI from a config file
// (viper) layered with environment variables (envconfig). The library itself
// never reads the environment; everything reaches it programmatically.
package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
	"github.com/spf13/viper"
)

type Config struct {
	Account   AccountConfig   `mapstructure:"account"`
	Retry     RetryConfig     `mapstructure:"retry"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type AccountConfig struct {
	Name          string `mapstructure:"name" envconfig:"BLOBSTORE_ACCOUNT_NAME"`
	Key           string `mapstructure:"key" envconfig:"BLOBSTORE_ACCOUNT_KEY"`
	Endpoint      string `mapstructure:"endpoint" envconfig:"BLOBSTORE_ENDPOINT"`
	SecondaryHost string `mapstructure:"secondary_host" envconfig:"BLOBSTORE_SECONDARY_HOST"`
	SASToken      string `mapstructure:"sas_token" envconfig:"BLOBSTORE_SAS_TOKEN"`
	UseSAS        bool   `mapstructure:"use_sas" envconfig:"BLOBSTORE_USE_SAS" default:"false"`
}

type RetryConfig struct {
	Policy        string        `mapstructure:"policy" envconfig:"BLOBSTORE_RETRY_POLICY" default:"exponential"`
	MaxTries      int32         `mapstructure:"max_tries" envconfig:"BLOBSTORE_RETRY_MAX_TRIES" default:"4"`
	TryTimeout    time.Duration `mapstructure:"try_timeout" envconfig:"BLOBSTORE_RETRY_TRY_TIMEOUT" default:"60s"`
	RetryDelay    time.Duration `mapstructure:"retry_delay" envconfig:"BLOBSTORE_RETRY_DELAY" default:"4s"`
	MaxRetryDelay time.Duration `mapstructure:"max_retry_delay" envconfig:"BLOBSTORE_RETRY_MAX_DELAY" default:"120s"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" envconfig:"BLOBSTORE_RATE_LIMIT_RPS" default:"0"`
	Burst             int     `mapstructure:"burst" envconfig:"BLOBSTORE_RATE_LIMIT_BURST" default:"1"`
}

// Load reads the optional config file, then lets environment variables
// override it, then validates.
func Load(configFile string) (*Config, error) {
	cfg := &Config{}

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := viper.Unmarshal(cfg); err != nil {
			return nil, fmt.Errorf("failed to unmarshal config: %w", err)
		}
	}

	if err := envconfig.Process("", cfg); err != nil {
		return nil, fmt.Errorf("failed to process env vars: %w", err)
	}

	if err := validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return cfg, nil
}

func validate(cfg *Config) error {
	if cfg.Account.Name == "" {
		return fmt.Errorf("account name is required")
	}
	if cfg.Account.Key == "" && !(cfg.Account.UseSAS && cfg.Account.SASToken != "") {
		return fmt.Errorf("account key or SAS token is required")
	}
	switch cfg.Retry.Policy {
	case "exponential", "fixed":
	default:
		return fmt.Errorf("unsupported retry policy: %s", cfg.Retry.Policy)
	}
	if cfg.Retry.MaxTries < 1 {
		return fmt.Errorf("retry max_tries must be at least 1")
	}
	if cfg.RateLimit.RequestsPerSecond < 0 {
		return fmt.Errorf("rate limit must not be negative")
	}
	return nil
}
