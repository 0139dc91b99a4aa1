// Package config provides configuration management for the stagekit runtime
package config

import (
	"time"
)

// Environment represents the deployment environment
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvTesting     Environment = "testing"
	EnvProduction  Environment = "production"
)

// String returns the string representation of Environment
func (e Environment) String() string {
	return string(e)
}

// IsValid checks if the environment is valid
func (e Environment) IsValid() bool {
	switch e {
	case EnvDevelopment, EnvTesting, EnvProduction:
		return true
	default:
		return false
	}
}

// LogLevel represents the logging level
type LogLevel string

const (
	LogLevelTrace LogLevel = "trace"
	LogLevelDebug LogLevel = "debug"
	LogLevelInfo  LogLevel = "info"
	LogLevelWarn  LogLevel = "warn"
	LogLevelError LogLevel = "error"
)

// String returns the string representation of LogLevel
func (l LogLevel) String() string {
	return string(l)
}

// IsValid checks if the log level is valid
func (l LogLevel) IsValid() bool {
	switch l {
	case LogLevelTrace, LogLevelDebug, LogLevelInfo, LogLevelWarn, LogLevelError:
		return true
	default:
		return false
	}
}

// Config represents the complete runtime configuration
type Config struct {
	// Application configuration
	App AppConfig `yaml:"app" json:"app"`

	// Logging configuration
	Log LogConfig `yaml:"log" json:"log"`

	// Runtime loop configuration
	Runtime RuntimeConfig `yaml:"runtime" json:"runtime"`

	// Custom configurations (for application-defined components)
	Custom map[string]interface{} `yaml:"custom,omitempty" json:"custom,omitempty"`
}

// AppConfig contains application-level configuration
type AppConfig struct {
	// Application name
	Name string `yaml:"name" json:"name"`

	// Application version
	Version string `yaml:"version" json:"version"`

	// Deployment environment
	Environment Environment `yaml:"environment" json:"environment"`

	// Debug mode
	Debug bool `yaml:"debug" json:"debug"`
}

// LogConfig contains logging configuration
type LogConfig struct {
	// Log level
	Level LogLevel `yaml:"level" json:"level"`

	// Log format (console, json)
	Format string `yaml:"format" json:"format"`

	// Output destination (stdout, stderr, file path)
	Output string `yaml:"output" json:"output"`
}

// RuntimeConfig contains the event loop and render pacing settings
type RuntimeConfig struct {
	// Target frames per second for the render ticker
	FrameRate int `yaml:"frame_rate" json:"frame_rate"`

	// Milliseconds reserved per frame for processing
	ProcessingMarginMS int `yaml:"processing_margin_ms" json:"processing_margin_ms"`

	// Capacity of the mailbox request queue
	MailboxSize int `yaml:"mailbox_size" json:"mailbox_size"`

	// Milliseconds between event source drains
	PollIntervalMS int `yaml:"poll_interval_ms" json:"poll_interval_ms"`

	// Presentation backend kind
	Backend string `yaml:"backend" json:"backend"`
}

// Margin returns the per-frame processing reserve as a duration.
func (r RuntimeConfig) Margin() time.Duration {
	return time.Duration(r.ProcessingMarginMS) * time.Millisecond
}

// PollInterval returns the event drain cadence as a duration.
func (r RuntimeConfig) PollInterval() time.Duration {
	return time.Duration(r.PollIntervalMS) * time.Millisecond
}

// DefaultConfig returns a configuration with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		App: AppConfig{
			Name:        "stagekit",
			Version:     "0.1.0",
			Environment: EnvDevelopment,
		},
		Log: LogConfig{
			Level:  LogLevelInfo,
			Format: "console",
			Output: "stderr",
		},
		Runtime: RuntimeConfig{
			FrameRate:          60,
			ProcessingMarginMS: 5,
			MailboxSize:        256,
			PollIntervalMS:     10,
			Backend:            "memory",
		},
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.App.Name == "" {
		return ErrInvalidAppName
	}
	if c.App.Environment != "" && !c.App.Environment.IsValid() {
		return ErrInvalidEnvironment
	}
	if c.Log.Level != "" && !c.Log.Level.IsValid() {
		return ErrInvalidLogLevel
	}
	if c.Runtime.FrameRate < 1 || c.Runtime.FrameRate > 240 {
		return ErrInvalidFrameRate
	}
	if c.Runtime.MailboxSize < 1 {
		return ErrInvalidMailboxSize
	}
	if c.Runtime.PollIntervalMS < 1 {
		return ErrInvalidPollInterval
	}
	if c.Runtime.ProcessingMarginMS < 0 {
		return ErrInvalidMargin
	}

	return nil
}
