// ABOUTME: Configuration loading and parsing for tether
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Defaults applied by Load when a field is left empty.
const (
	DefaultMaxPerOwner    = 2
	DefaultStatusInterval = 5 * time.Second
	DefaultRemotePath     = "/tether"
	DefaultDialTimeout    = 30 * time.Second
	DefaultKeepalive      = 30 * time.Second
	DefaultMetricsAddr    = "127.0.0.1:9464"
	DefaultMetricsPath    = "/metrics"
	DefaultLogLevel       = "info"
	DefaultLogFormat      = "text"
)

// Config represents the complete tether configuration
type Config struct {
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions"`
	Remote   RemoteConfig   `yaml:"remote" toml:"remote"`
	Metrics  MetricsConfig  `yaml:"metrics" toml:"metrics"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Targets  []TargetConfig `yaml:"targets" toml:"targets"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// SessionsConfig holds session quota and status timing
type SessionsConfig struct {
	MaxPerOwner    int           `yaml:"max_per_owner" toml:"max_per_owner"`
	StatusInterval time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	StatusIntervalRaw string `yaml:"status_interval" toml:"status_interval"`
}

// RemoteConfig holds settings for the websocket transport to remote servers
type RemoteConfig struct {
	Path        string        `yaml:"path" toml:"path"`
	DialTimeout time.Duration `yaml:"-" toml:"-"`
	Keepalive   time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	DialTimeoutRaw string `yaml:"dial_timeout" toml:"dial_timeout"`
	KeepaliveRaw   string `yaml:"keepalive" toml:"keepalive"`
}

// MetricsConfig holds metrics endpoint configuration
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled" toml:"enabled"`
	Addr    string `yaml:"addr" toml:"addr"`
	Path    string `yaml:"path" toml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// TargetConfig is a session that serve creates on startup
type TargetConfig struct {
	Owner       string `yaml:"owner" toml:"owner"`
	Host        string `yaml:"host" toml:"host"`
	Port        int    `yaml:"port" toml:"port"`
	DisplayName string `yaml:"display_name" toml:"display_name"`
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	return Parse(string(data), strings.EqualFold(filepath.Ext(path), ".toml"))
}

// Parse decodes configuration text, then expands, defaults and validates it.
func Parse(text string, isTOML bool) (*Config, error) {
	expanded := expandEnvVars(text)

	var cfg Config
	if isTOML {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

func (c *Config) applyDefaults() {
	if c.Sessions.MaxPerOwner == 0 {
		c.Sessions.MaxPerOwner = DefaultMaxPerOwner
	}
	if c.Sessions.StatusInterval == 0 {
		c.Sessions.StatusInterval = DefaultStatusInterval
	}
	if c.Remote.Path == "" {
		c.Remote.Path = DefaultRemotePath
	}
	if c.Remote.DialTimeout == 0 {
		c.Remote.DialTimeout = DefaultDialTimeout
	}
	if c.Remote.Keepalive == 0 {
		c.Remote.Keepalive = DefaultKeepalive
	}
	if c.Metrics.Addr == "" {
		c.Metrics.Addr = DefaultMetricsAddr
	}
	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Sessions.MaxPerOwner < 0 {
		return fmt.Errorf("sessions.max_per_owner must not be negative")
	}
	if c.Sessions.StatusInterval < 0 {
		return fmt.Errorf("sessions.status_interval must be positive")
	}

	if !strings.HasPrefix(c.Remote.Path, "/") {
		return fmt.Errorf("remote.path must start with /")
	}
	if c.Remote.DialTimeout < 0 || c.Remote.Keepalive < 0 {
		return fmt.Errorf("remote durations must be positive")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level)
	}
	switch strings.ToLower(c.Logging.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("logging.format %q must be text or json", c.Logging.Format)
	}

	for i, t := range c.Targets {
		if t.Owner == "" {
			return fmt.Errorf("targets[%d].owner is required", i)
		}
		if t.Host == "" {
			return fmt.Errorf("targets[%d].host is required", i)
		}
		if t.Port < 0 || t.Port > 65535 {
			return fmt.Errorf("targets[%d].port %d out of range", i, t.Port)
		}
	}

	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sessions.StatusIntervalRaw != "" {
		cfg.Sessions.StatusInterval, err = time.ParseDuration(cfg.Sessions.StatusIntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing status_interval %q: %w", cfg.Sessions.StatusIntervalRaw, err)
		}
	}

	if cfg.Remote.DialTimeoutRaw != "" {
		cfg.Remote.DialTimeout, err = time.ParseDuration(cfg.Remote.DialTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing dial_timeout %q: %w", cfg.Remote.DialTimeoutRaw, err)
		}
	}

	if cfg.Remote.KeepaliveRaw != "" {
		cfg.Remote.Keepalive, err = time.ParseDuration(cfg.Remote.KeepaliveRaw)
		if err != nil {
			return fmt.Errorf("parsing keepalive %q: %w", cfg.Remote.KeepaliveRaw, err)
		}
	}

	return nil
}
