// Package config defines the archive's configuration and loads it from
// defaults, an optional YAML file, and SLACKARCHIVE_* environment variables.
package config

import "time"

// Config is the root configuration.
type Config struct {
	Log       LogConfig       `mapstructure:"log"`
	Database  DatabaseConfig  `mapstructure:"database"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	Slack     SlackConfig     `mapstructure:"slack"`
	Telegram  TelegramConfig  `mapstructure:"telegram"`
	Import    ImportConfig    `mapstructure:"import"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	JSON  bool   `mapstructure:"json"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type HTTPConfig struct {
	Addr            string        `mapstructure:"addr"             validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"     validate:"min=1s"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"    validate:"min=1s"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"min=1s"`
}

// SlackConfig controls the Events API webhook. An empty signing secret
// disables signature verification.
type SlackConfig struct {
	EventsEnabled bool          `mapstructure:"events_enabled"`
	SigningSecret string        `mapstructure:"signing_secret"`
	MaxClockSkew  time.Duration `mapstructure:"max_clock_skew" validate:"min=1s"`
}

type TelegramConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Token   string `mapstructure:"token" validate:"required_if=Enabled true"`
}

type ImportConfig struct {
	Workers int `mapstructure:"workers" validate:"min=1,max=64"`
}

type SchedulerConfig struct {
	Tasks map[string]TaskConfig `mapstructure:"tasks" validate:"dive"`
}

type TaskConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Schedule string `mapstructure:"schedule" validate:"required_if=Enabled true"`
}
