package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable read by Load.
const EnvPrefix = "RELAY"

// ConfigFileEnv names an explicit config file to read before the environment.
const ConfigFileEnv = "RELAY_CONFIG_FILE"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.log_format", "json")
	v.SetDefault("server.shutdown_timeout", 10*time.Second)

	v.SetDefault("scheduler.interactive_capacity", 1000)
	v.SetDefault("scheduler.background_capacity", 1000)
	v.SetDefault("scheduler.short_workers", 50)
	v.SetDefault("scheduler.long_workers", 50)
	v.SetDefault("scheduler.default_user_quota", 5)
	v.SetDefault("scheduler.user_quotas", map[string]int{})
	v.SetDefault("scheduler.poll_interval", time.Second)
	v.SetDefault("scheduler.task_timeout", 600*time.Second)
	v.SetDefault("scheduler.sync_timeout", 30*time.Second)
	v.SetDefault("scheduler.sync_slots", 50)
	v.SetDefault("scheduler.long_running_services", []string{})

	v.SetDefault("schema.source", "file")
	v.SetDefault("schema.path", "")

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_open_conns", 10)

	v.SetDefault("stream.keepalive_interval", 30*time.Second)
	v.SetDefault("stream.buffer_size", 256)
}

// Load configuration from environment variables and optionally a config file.
// Environment variables take precedence over values from config files.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path := os.Getenv(ConfigFileEnv); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field constraints and the cross-section rules.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}
	if c.Schema.Source == "postgres" && c.Database.URL == "" {
		return fmt.Errorf("config validation failed: database.url is required when schema.source is postgres")
	}
	return nil
}
