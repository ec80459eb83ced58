package config

import (
	"errors"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	apperrors "github.com/edgard/slackarchive/internal/errors"
)

// EnvPrefix prefixes every environment override, e.g. SLACKARCHIVE_HTTP_ADDR.
const EnvPrefix = "SLACKARCHIVE"

// Load builds the configuration from, in increasing precedence:
//  1. built-in defaults
//  2. the YAML file at path, or ./config.yaml when path is empty (optional)
//  3. SLACKARCHIVE_* environment variables
//
// An explicitly named file that does not exist is an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, apperrors.NewConfigError("failed to read config file", err)
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, apperrors.NewConfigError("failed to parse config", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks struct-tag constraints.
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return apperrors.NewConfigError("invalid configuration", err)
	}
	return nil
}
