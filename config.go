package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"

	"coopdoor/battery"
	"coopdoor/button"
	"coopdoor/console"
	"coopdoor/hal"
	"coopdoor/motor"
	"coopdoor/mqtt"
	"coopdoor/power"
)

// Config is the main configuration structure for coopdoor.
type Config struct {
	// Node identity, used as MQTT client ID and in topics
	ClientID string `yaml:"client_id" env:"COOPDOOR_CLIENT_ID" env-default:"coopdoor"`

	// Persistent door settings written by the control channels
	Settings string `yaml:"settings" env:"COOPDOOR_SETTINGS" env-default:"/var/lib/coopdoor/settings.yaml"`

	// Control loop period; must stay well under the motor sample period
	LoopPeriod time.Duration `yaml:"loop_period" env-default:"10ms"`

	// How often the local time is logged
	TimeShow time.Duration `yaml:"time_show" env-default:"5s"`

	Logging LoggingConfig  `yaml:"logging"`
	HAL     hal.Config     `yaml:"hal"`
	Motor   motor.Config   `yaml:"motor"`
	Battery battery.Config `yaml:"battery"`
	Power   power.Config   `yaml:"power"`
	Button  button.Config  `yaml:"button"`
	Console console.Config `yaml:"console"`
	MQTT    mqtt.Config    `yaml:"mqtt"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"console"`
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
}

// LoadConfig reads path with environment variable overrides and validates
// the result.
func LoadConfig(path string) (*Config, error) {
	var cfg Config
	if err := cleanenv.ReadConfig(path, &cfg); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return &cfg, nil
}

// Validate checks values the packages cannot check themselves.
func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("client_id is required")
	}
	if c.Settings == "" {
		return fmt.Errorf("settings path is required")
	}

	if c.LoopPeriod <= 0 {
		return fmt.Errorf("loop_period must be positive")
	}
	if c.Motor.SamplePeriod <= 0 || c.Motor.FilterSize < 1 {
		return fmt.Errorf("motor sample_period and filter_size must be positive")
	}
	if c.LoopPeriod*2 > c.Motor.SamplePeriod {
		return fmt.Errorf("loop_period %s too long for motor sample_period %s", c.LoopPeriod, c.Motor.SamplePeriod)
	}
	if c.Motor.DeadTime <= 0 || c.Motor.RunTimeout <= c.Motor.DeadTime {
		return fmt.Errorf("motor run_timeout must exceed dead_time")
	}
	if c.Power.Session <= 0 {
		return fmt.Errorf("power session must be positive")
	}
	if c.Power.LowPercent < 0 || c.Power.LowPercent > 100 {
		return fmt.Errorf("power low_percent must be between 0 and 100, got %d", c.Power.LowPercent)
	}

	return c.Logging.Validate()
}

// Validate normalizes and checks the log format and level.
func (l *LoggingConfig) Validate() error {
	l.Format = strings.ToLower(l.Format)
	if l.Format != "json" && l.Format != "console" && l.Format != "logfmt" {
		return fmt.Errorf("log format must be 'json', 'console', or 'logfmt', got '%s'", l.Format)
	}

	l.Level = strings.ToLower(l.Level)
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("log level must be one of: debug, info, warn, error, got '%s'", l.Level)
	}
	return nil
}
