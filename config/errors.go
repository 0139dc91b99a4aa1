// Package config provides error definitions for configuration management
package config

import "errors"

// Configuration validation errors
var (
	ErrInvalidAppName      = errors.New("invalid application name")
	ErrInvalidEnvironment  = errors.New("invalid environment")
	ErrInvalidLogLevel     = errors.New("invalid log level")
	ErrInvalidFrameRate    = errors.New("frame rate must be between 1 and 240")
	ErrInvalidMailboxSize  = errors.New("invalid mailbox size")
	ErrInvalidPollInterval = errors.New("invalid poll interval")
	ErrInvalidMargin       = errors.New("invalid processing margin")
)

// Configuration loading errors
var (
	ErrConfigFileNotFound = errors.New("configuration file not found")
	ErrConfigParseError   = errors.New("configuration parse error")
	ErrConfigWatchError   = errors.New("configuration watch error")
)
