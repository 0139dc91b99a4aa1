// Package config provides configuration loading and parsing functionality
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigFormat represents the configuration file format
type ConfigFormat string

const (
	FormatYAML ConfigFormat = "yaml"
	FormatJSON ConfigFormat = "json"
)

// Loader handles configuration loading from files and the environment
type Loader struct {
	// Configuration search paths
	searchPaths []string

	// Environment variable prefix
	envPrefix string

	// Default configuration
	defaultConfig *Config
}

// NewLoader creates a new configuration loader
func NewLoader() *Loader {
	return &Loader{
		searchPaths: []string{
			".",
			"./config",
			"/etc/stagekit",
			os.Getenv("HOME") + "/.stagekit",
		},
		envPrefix:     "STAGEKIT",
		defaultConfig: DefaultConfig(),
	}
}

// SetSearchPaths sets the configuration file search paths
func (l *Loader) SetSearchPaths(paths []string) *Loader {
	l.searchPaths = paths
	return l
}

// SetEnvPrefix sets the environment variable prefix
func (l *Loader) SetEnvPrefix(prefix string) *Loader {
	l.envPrefix = prefix
	return l
}

// SetDefaultConfig sets the default configuration
func (l *Loader) SetDefaultConfig(config *Config) *Loader {
	l.defaultConfig = config
	return l
}

// Load loads configuration from the given file, falling back to a search of
// the standard paths when filename is empty. Environment variables override
// file values either way.
func (l *Loader) Load(filename string) (*Config, error) {
	if filename == "" {
		found, _, err := l.findConfigFile()
		if err != nil {
			// No file anywhere; defaults plus environment.
			config := l.baseConfig()
			if err := l.loadFromEnv(config); err != nil {
				return nil, err
			}
			if err := config.Validate(); err != nil {
				return nil, fmt.Errorf("configuration validation failed: %w", err)
			}
			return config, nil
		}
		filename = found
	}

	return l.LoadFromFile(filename)
}

// LoadFromFile loads configuration from a specific file
func (l *Loader) LoadFromFile(filename string) (*Config, error) {
	format, err := formatForFile(filename)
	if err != nil {
		return nil, err
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", filename, err)
	}

	config, err := l.parseConfig(data, format)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", filename, err)
	}

	if err := l.loadFromEnv(config); err != nil {
		return nil, fmt.Errorf("failed to load environment overrides: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// baseConfig returns a copy of the defaults to overlay file values onto.
func (l *Loader) baseConfig() *Config {
	base := l.defaultConfig
	if base == nil {
		base = DefaultConfig()
	}
	copied := *base
	return &copied
}

// findConfigFile searches for configuration files in search paths
func (l *Loader) findConfigFile() (string, ConfigFormat, error) {
	filenames := []string{
		"stagekit.yaml", "stagekit.yml",
		"config.yaml", "config.yml",
		"stagekit.json", "config.json",
	}

	for _, searchPath := range l.searchPaths {
		for _, filename := range filenames {
			fullPath := filepath.Join(searchPath, filename)
			if _, err := os.Stat(fullPath); err == nil {
				format, err := formatForFile(fullPath)
				if err != nil {
					continue
				}
				return fullPath, format, nil
			}
		}
	}

	return "", "", ErrConfigFileNotFound
}

// formatForFile determines the format from the file extension
func formatForFile(filename string) (ConfigFormat, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		return FormatYAML, nil
	case ".json":
		return FormatJSON, nil
	default:
		return "", fmt.Errorf("unsupported config file format: %s", filename)
	}
}

// parseConfig parses configuration data over the defaults
func (l *Loader) parseConfig(data []byte, format ConfigFormat) (*Config, error) {
	// Unmarshal into a copy of the defaults so missing fields keep their
	// default values.
	config := l.baseConfig()

	switch format {
	case FormatYAML:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case FormatJSON:
		if err := json.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config format: %s", format)
	}

	return config, nil
}

// loadFromEnv loads configuration overrides from environment variables
func (l *Loader) loadFromEnv(config *Config) error {
	if val := os.Getenv(l.envPrefix + "_APP_NAME"); val != "" {
		config.App.Name = val
	}
	if val := os.Getenv(l.envPrefix + "_APP_VERSION"); val != "" {
		config.App.Version = val
	}
	if val := os.Getenv(l.envPrefix + "_APP_ENVIRONMENT"); val != "" {
		config.App.Environment = Environment(val)
	}
	if val := os.Getenv(l.envPrefix + "_APP_DEBUG"); val != "" {
		debug, err := strconv.ParseBool(val)
		if err != nil {
			return fmt.Errorf("invalid %s_APP_DEBUG value %q: %w", l.envPrefix, val, err)
		}
		config.App.Debug = debug
	}

	if val := os.Getenv(l.envPrefix + "_LOG_LEVEL"); val != "" {
		config.Log.Level = LogLevel(val)
	}
	if val := os.Getenv(l.envPrefix + "_LOG_FORMAT"); val != "" {
		config.Log.Format = val
	}
	if val := os.Getenv(l.envPrefix + "_LOG_OUTPUT"); val != "" {
		config.Log.Output = val
	}

	if val := os.Getenv(l.envPrefix + "_RUNTIME_FRAME_RATE"); val != "" {
		rate, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s_RUNTIME_FRAME_RATE value %q: %w", l.envPrefix, val, err)
		}
		config.Runtime.FrameRate = rate
	}
	if val := os.Getenv(l.envPrefix + "_RUNTIME_MAILBOX_SIZE"); val != "" {
		size, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s_RUNTIME_MAILBOX_SIZE value %q: %w", l.envPrefix, val, err)
		}
		config.Runtime.MailboxSize = size
	}
	if val := os.Getenv(l.envPrefix + "_RUNTIME_POLL_INTERVAL_MS"); val != "" {
		interval, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("invalid %s_RUNTIME_POLL_INTERVAL_MS value %q: %w", l.envPrefix, val, err)
		}
		config.Runtime.PollIntervalMS = interval
	}
	if val := os.Getenv(l.envPrefix + "_RUNTIME_BACKEND"); val != "" {
		config.Runtime.Backend = val
	}

	return nil
}
