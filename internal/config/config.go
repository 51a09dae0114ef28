package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"
)

// Configuration represents the complete application configuration.
type Configuration struct {
	Global  GlobalConfig  `yaml:"global"`
	Gateway GatewayConfig `yaml:"gateway"`
	Cache   CacheConfig   `yaml:"cache"`
	Mount   MountConfig   `yaml:"mount"`
	Startup StartupConfig `yaml:"startup"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// GlobalConfig represents global application settings.
type GlobalConfig struct {
	LogLevel string `yaml:"log_level"`
	LogFile  string `yaml:"log_file"`
}

// GatewayConfig represents the connection to the REST gateway.
type GatewayConfig struct {
	BaseURL string        `yaml:"base_url"`
	Timeout time.Duration `yaml:"timeout"`
}

// CacheConfig represents namespace cache settings.
type CacheConfig struct {
	TTL time.Duration `yaml:"ttl"`
}

// MountConfig represents mount settings.
type MountConfig struct {
	MountPoint   string        `yaml:"mount_point"`
	ReadOnly     bool          `yaml:"read_only"`
	AllowOther   bool          `yaml:"allow_other"`
	UID          uint32        `yaml:"uid"`
	GID          uint32        `yaml:"gid"`
	AttrTimeout  time.Duration `yaml:"attr_timeout"`
	EntryTimeout time.Duration `yaml:"entry_timeout"`
}

// StartupConfig represents the initial-connection retry policy. It
// applies to reaching the gateway at startup only; once mounted,
// operations surface failures immediately.
type StartupConfig struct {
	MaxAttempts int           `yaml:"max_attempts"`
	BaseDelay   time.Duration `yaml:"base_delay"`
	MaxDelay    time.Duration `yaml:"max_delay"`
}

// MetricsConfig represents metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

// NewDefault returns the default configuration.
func NewDefault() *Configuration {
	uid := uint32(os.Getuid())
	gid := uint32(os.Getgid())
	return &Configuration{
		Global: GlobalConfig{
			LogLevel: "info",
		},
		Gateway: GatewayConfig{
			BaseURL: "http://localhost:10001/tango/rest/v11",
			Timeout: 10 * time.Second,
		},
		Cache: CacheConfig{
			TTL: 10 * time.Second,
		},
		Mount: MountConfig{
			UID:          uid,
			GID:          gid,
			AttrTimeout:  time.Second,
			EntryTimeout: time.Second,
		},
		Startup: StartupConfig{
			MaxAttempts: 5,
			BaseDelay:   500 * time.Millisecond,
			MaxDelay:    10 * time.Second,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9090,
		},
	}
}

// LoadFromFile merges settings from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("parse config file %s: %w", filename, err)
	}
	return nil
}

// LoadFromEnv merges settings from TANGOFS_* environment variables.
// Environment values override file values.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("TANGOFS_LOG_LEVEL"); val != "" {
		c.Global.LogLevel = val
	}
	if val := os.Getenv("TANGOFS_LOG_FILE"); val != "" {
		c.Global.LogFile = val
	}
	if val := os.Getenv("TANGOFS_GATEWAY_URL"); val != "" {
		c.Gateway.BaseURL = val
	}
	if val := os.Getenv("TANGOFS_GATEWAY_TIMEOUT"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("TANGOFS_GATEWAY_TIMEOUT: %w", err)
		}
		c.Gateway.Timeout = d
	}
	if val := os.Getenv("TANGOFS_CACHE_TTL"); val != "" {
		d, err := time.ParseDuration(val)
		if err != nil {
			return fmt.Errorf("TANGOFS_CACHE_TTL: %w", err)
		}
		c.Cache.TTL = d
	}
	if val := os.Getenv("TANGOFS_MOUNT_POINT"); val != "" {
		c.Mount.MountPoint = val
	}
	if val := os.Getenv("TANGOFS_READ_ONLY"); val != "" {
		c.Mount.ReadOnly = parseBool(val)
	}
	if val := os.Getenv("TANGOFS_ALLOW_OTHER"); val != "" {
		c.Mount.AllowOther = parseBool(val)
	}
	if val := os.Getenv("TANGOFS_METRICS_PORT"); val != "" {
		port, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("TANGOFS_METRICS_PORT: %w", err)
		}
		c.Metrics.Enabled = true
		c.Metrics.Port = port
	}
	return nil
}

// SaveToFile writes the configuration as YAML.
func (c *Configuration) SaveToFile(filename string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if err := os.WriteFile(filename, data, 0o644); err != nil {
		return fmt.Errorf("write config file: %w", err)
	}
	return nil
}

// Validate checks the configuration for inconsistencies.
func (c *Configuration) Validate() error {
	var problems []string

	if c.Gateway.BaseURL == "" {
		problems = append(problems, "gateway.base_url cannot be empty")
	}
	if c.Gateway.Timeout <= 0 {
		problems = append(problems, "gateway.timeout must be positive")
	}
	if c.Cache.TTL < 0 {
		problems = append(problems, "cache.ttl cannot be negative")
	}
	if c.Mount.MountPoint == "" {
		problems = append(problems, "mount.mount_point cannot be empty")
	}
	if c.Startup.MaxAttempts < 1 {
		problems = append(problems, "startup.max_attempts must be at least 1")
	}
	if c.Metrics.Enabled && (c.Metrics.Port < 1 || c.Metrics.Port > 65535) {
		problems = append(problems, "metrics.port out of range")
	}

	switch strings.ToLower(c.Global.LogLevel) {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("unknown log level %q", c.Global.LogLevel))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}

func parseBool(val string) bool {
	b, err := strconv.ParseBool(val)
	return err == nil && b
}

// Load builds the effective configuration: defaults, then the optional
// file, then the environment.
func Load(filename string) (*Configuration, error) {
	cfg := NewDefault()
	if filename != "" {
		if err := cfg.LoadFromFile(filename); err != nil {
			return nil, err
		}
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, err
	}
	return cfg, nil
}
