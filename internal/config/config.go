// Package config provides Viper-based configuration loading for the
// relay server.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds websocket listener settings.
type ServerConfig struct {
	// Host is the bind address for the websocket listener.
	Host string `mapstructure:"host"`
	// Port is the TCP port for the websocket listener.
	Port int `mapstructure:"port"`
	// WriteTimeout is the per-write deadline for client connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// ShutdownGrace bounds how long shutdown waits for open sessions
	// after they have been notified.
	ShutdownGrace time.Duration `mapstructure:"shutdown_grace"`
}

// Addr returns the "host:port" listen address.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// GameConfig holds room lifecycle timings.
type GameConfig struct {
	// HeartbeatInterval is the liveness probe cadence. A connection that
	// missed the previous probe is terminated on the next cycle.
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	// IdleSweepInterval is the cadence of the empty-room eviction scan.
	IdleSweepInterval time.Duration `mapstructure:"idle_sweep_interval"`
	// IdleThreshold is how stale an empty room must be before the sweep
	// evicts it.
	IdleThreshold time.Duration `mapstructure:"idle_threshold"`
	// EndGrace is the delay between a gameEnd broadcast and room
	// deletion, allowing in-flight final messages to land.
	EndGrace time.Duration `mapstructure:"end_grace"`
	// StatsInterval is the cadence of the periodic stats log line.
	StatsInterval time.Duration `mapstructure:"stats_interval"`
}

// Config is the top-level application configuration.
type Config struct {
	Server  ServerConfig  `mapstructure:"server"`
	Logging LoggingConfig `mapstructure:"logging"`
	Game    GameConfig    `mapstructure:"game"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error
// describing all violations.
func (c Config) Validate() error {
	var errs []string

	if err := validateServer(c.Server); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateLogging(c.Logging); err != nil {
		errs = append(errs, err.Error())
	}
	if err := validateGame(c.Game); err != nil {
		errs = append(errs, err.Error())
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Port < 1 || s.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port must be 1-65535, got %d", s.Port))
	}
	if s.WriteTimeout < 0 {
		errs = append(errs, "server.write_timeout must not be negative")
	}
	if s.ShutdownGrace < 0 {
		errs = append(errs, "server.shutdown_grace must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateGame(g GameConfig) error {
	var errs []string
	if g.HeartbeatInterval <= 0 {
		errs = append(errs, "game.heartbeat_interval must be positive")
	}
	if g.IdleSweepInterval <= 0 {
		errs = append(errs, "game.idle_sweep_interval must be positive")
	}
	if g.IdleThreshold <= 0 {
		errs = append(errs, "game.idle_threshold must be positive")
	}
	if g.EndGrace <= 0 {
		errs = append(errs, "game.end_grace must be positive")
	}
	if g.StatsInterval <= 0 {
		errs = append(errs, "game.stats_interval must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

// Load reads configuration from the given file path, applies environment
// variable overrides, and validates the result.
//
// Precondition: path must point to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with RELAY_ prefix
	v.SetEnvPrefix("RELAY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.write_timeout", "10s")
	v.SetDefault("server.shutdown_grace", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("game.heartbeat_interval", "30s")
	v.SetDefault("game.idle_sweep_interval", "5m")
	v.SetDefault("game.idle_threshold", "10m")
	v.SetDefault("game.end_grace", "5s")
	v.SetDefault("game.stats_interval", "1m")
}
