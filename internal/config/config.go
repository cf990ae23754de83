// Package config loads settings for the linkbot commands from a YAML file
// and the environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/teslashibe/go-linkbot/pkg/linkbot"
	"github.com/teslashibe/go-linkbot/pkg/transport"
	"gopkg.in/yaml.v3"
)

// Defaults.
const (
	DefaultDaemonURL = "ws://localhost:42000/ws/daemon"
	DefaultSimAPIURL = "http://localhost:42000/api"
	DefaultLogLevel  = "info"
)

// Environment variables that override the file.
const (
	EnvDaemonURL = "LINKBOT_DAEMON_URL"
	EnvSerial    = "LINKBOT_SERIAL"
	EnvLogLevel  = "LINKBOT_LOG_LEVEL"
)

// File is the on-disk command configuration.
type File struct {
	DaemonURL      string        `yaml:"daemon_url"`
	SimAPIURL      string        `yaml:"sim_api_url"`
	Serial         string        `yaml:"serial"`
	LogLevel       string        `yaml:"log_level"`
	CommandTimeout time.Duration `yaml:"command_timeout"`
	SweepInterval  time.Duration `yaml:"sweep_interval"`
	MaxFrameSize   int           `yaml:"max_frame_size"`
}

// Default returns the built-in configuration.
func Default() File {
	proxy := linkbot.DefaultConfig()
	opts := transport.DefaultOptions()
	return File{
		DaemonURL:      DefaultDaemonURL,
		SimAPIURL:      DefaultSimAPIURL,
		LogLevel:       DefaultLogLevel,
		CommandTimeout: proxy.CommandTimeout,
		SweepInterval:  opts.SweepInterval,
		MaxFrameSize:   proxy.MaxFrameSize,
	}
}

// Load reads path over the defaults and applies environment overrides.
// An empty path skips the file.
func Load(path string) (File, error) {
	f := Default()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return File{}, fmt.Errorf("failed to read config: %w", err)
		}
		if err := yaml.Unmarshal(data, &f); err != nil {
			return File{}, fmt.Errorf("failed to parse %s: %w", path, err)
		}
	}

	f.DaemonURL = DaemonURL(f.DaemonURL)
	f.Serial = Serial(f.Serial)
	f.LogLevel = LogLevel(f.LogLevel)

	if err := f.Validate(); err != nil {
		return File{}, err
	}
	return f, nil
}

// Validate checks the configuration.
func (f File) Validate() error {
	if f.DaemonURL == "" {
		return errors.New("daemon_url is required")
	}
	if f.SweepInterval < 0 {
		return errors.New("sweep_interval must not be negative")
	}
	cfg := f.Proxy()
	return cfg.Validate()
}

// Proxy returns the DaemonProxy settings.
func (f File) Proxy() linkbot.Config {
	cfg := linkbot.DefaultConfig()
	cfg.CommandTimeout = f.CommandTimeout
	cfg.MaxFrameSize = f.MaxFrameSize
	return cfg
}

// Transport returns the websocket settings.
func (f File) Transport() transport.Options {
	opts := transport.DefaultOptions()
	opts.SweepInterval = f.SweepInterval
	return opts
}

// DaemonURL returns the daemon URL from LINKBOT_DAEMON_URL.
// Falls back to the provided default if not set.
func DaemonURL(defaultURL string) string {
	if url := os.Getenv(EnvDaemonURL); url != "" {
		return url
	}
	return defaultURL
}

// Serial returns the robot serial from LINKBOT_SERIAL or the default.
func Serial(defaultSerial string) string {
	if serial := os.Getenv(EnvSerial); serial != "" {
		return serial
	}
	return defaultSerial
}

// LogLevel returns the log level from LINKBOT_LOG_LEVEL or the default.
func LogLevel(defaultLevel string) string {
	if level := os.Getenv(EnvLogLevel); level != "" {
		return level
	}
	return defaultLevel
}
