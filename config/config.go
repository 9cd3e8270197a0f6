/*
Package config loads server configuration from defaults, an optional config
file, and environment variables, in increasing order of precedence.

SOURCES:
  1. Built-in defaults
  2. pennywise.toml in the working directory or ./config (optional)
  3. Environment variables with the PENNYWISE_ prefix
     (PENNYWISE_SERVER_PORT, PENNYWISE_DATABASE_PATH, PENNYWISE_LOG_LEVEL)

A .env file, when present, is loaded into the environment by the entry
point before this package runs.
*/
package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all server settings.
type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port int `mapstructure:"port"`
}

type DatabaseConfig struct {
	// Path is the SQLite database file; ":memory:" for ephemeral runs.
	Path string `mapstructure:"path"`
}

type LogConfig struct {
	// Level is a zerolog level name: trace, debug, info, warn, error.
	Level string `mapstructure:"level"`
}

// Load reads configuration from all sources.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("server.port", 8080)
	v.SetDefault("database.path", "pennywise.db")
	v.SetDefault("log.level", "info")

	v.SetConfigName("pennywise")
	v.SetConfigType("toml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; defaults and env cover everything.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix("PENNYWISE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	return &cfg, nil
}
