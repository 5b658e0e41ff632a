// Package config handles application configuration
package config

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/mitchellh/go-homedir"
	"gopkg.in/yaml.v3"
)

const appName = "taskmaster"

const (
	// DefaultBaseURL is the hosted TaskMaster API.
	DefaultBaseURL = "https://taskmaster-weld.vercel.app"

	// DefaultTimeout bounds every API request.
	DefaultTimeout = 30 * time.Second

	// BaseURLEnv overrides api.base_url.
	BaseURLEnv = "TASKMASTER_API_URL"

	defaultRetentionDays = 90
)

//go:embed config.sample.yaml
var sampleConfig string

// GetSampleConfig returns the embedded sample configuration content
func GetSampleConfig() string {
	return sampleConfig
}

// APIConfig holds the backend connection settings
type APIConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level string `yaml:"level"`
	File  string `yaml:"file"`
}

// AnalyticsConfig holds analytics settings
type AnalyticsConfig struct {
	Enabled       bool `yaml:"enabled"`
	RetentionDays int  `yaml:"retention_days"`
}

// Config represents the application configuration
type Config struct {
	API          APIConfig       `yaml:"api"`
	Account      string          `yaml:"account"`
	OutputFormat string          `yaml:"output_format"`
	NoPrompt     bool            `yaml:"no_prompt"`
	Logging      LoggingConfig   `yaml:"logging"`
	Analytics    AnalyticsConfig `yaml:"analytics"`

	// Path is the file the config was loaded from.
	Path string `yaml:"-"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: DefaultBaseURL,
			Timeout: DefaultTimeout.String(),
		},
		OutputFormat: "text",
		Logging:      LoggingConfig{Level: "info"},
		Analytics:    AnalyticsConfig{RetentionDays: defaultRetentionDays},
	}
}

// DefaultPath returns the config file location under the XDG config dir.
func DefaultPath() string {
	return filepath.Join(GetConfigDir(), "config.yaml")
}

// Load loads configuration from the specified path, or the default XDG path if empty.
// If the config file doesn't exist, it is created from the embedded sample.
func Load(configPath string) (*Config, error) {
	if configPath == "" {
		configPath = DefaultPath()
	}
	configPath = ExpandPath(configPath)

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := writeSample(configPath); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Path = configPath
	return cfg, nil
}

// Parse decodes YAML, fills defaults and applies environment overrides.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("invalid YAML in config file: %w", err)
	}
	cfg.applyDefaults()
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	d := DefaultConfig()
	if c.API.BaseURL == "" {
		c.API.BaseURL = d.API.BaseURL
	}
	if c.API.Timeout == "" {
		c.API.Timeout = d.API.Timeout
	}
	if c.OutputFormat == "" {
		c.OutputFormat = d.OutputFormat
	}
	if c.Logging.Level == "" {
		c.Logging.Level = d.Logging.Level
	}
	if c.Analytics.RetentionDays <= 0 {
		c.Analytics.RetentionDays = d.Analytics.RetentionDays
	}
	c.Logging.File = ExpandPath(c.Logging.File)
}

func (c *Config) applyEnv() {
	if url := strings.TrimSpace(os.Getenv(BaseURLEnv)); url != "" {
		c.API.BaseURL = url
	}
}

// writeSample writes the embedded sample, which documents every option.
func writeSample(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(sampleConfig), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.OutputFormat != "text" && c.OutputFormat != "json" {
		return fmt.Errorf("invalid output_format: %q (must be 'text' or 'json')", c.OutputFormat)
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid logging.level: %q (must be debug, info, warn or error)", c.Logging.Level)
	}

	if c.API.Timeout != "" {
		d, err := time.ParseDuration(c.API.Timeout)
		if err != nil || d <= 0 {
			return fmt.Errorf("invalid duration for api.timeout: %q", c.API.Timeout)
		}
	}

	if !strings.HasPrefix(c.API.BaseURL, "http://") && !strings.HasPrefix(c.API.BaseURL, "https://") {
		return fmt.Errorf("invalid api.base_url: %q (must start with http:// or https://)", c.API.BaseURL)
	}

	return nil
}

// ApplyFlags applies CLI flag overrides to the configuration
func (c *Config) ApplyFlags(noPrompt bool, outputFormat string) {
	if noPrompt {
		c.NoPrompt = true
	}
	if outputFormat != "" {
		c.OutputFormat = outputFormat
	}
}

// GetTimeout returns the API timeout, falling back to the default.
func (c *Config) GetTimeout() time.Duration {
	d, err := time.ParseDuration(c.API.Timeout)
	if err != nil || d <= 0 {
		return DefaultTimeout
	}
	return d
}

// IsAnalyticsEnabled returns true if analytics is enabled in config
func (c *Config) IsAnalyticsEnabled() bool {
	return c.Analytics.Enabled
}

// GetAnalyticsRetentionDays returns the analytics retention period in days.
func (c *Config) GetAnalyticsRetentionDays() int {
	if c.Analytics.RetentionDays <= 0 {
		return defaultRetentionDays
	}
	return c.Analytics.RetentionDays
}

// GetAnalyticsPath returns the analytics database location.
func (c *Config) GetAnalyticsPath() string {
	return filepath.Join(GetDataDir(), "analytics.db")
}

// GetLogFile returns the dashboard log file location.
func (c *Config) GetLogFile() string {
	if c.Logging.File != "" {
		return c.Logging.File
	}
	return filepath.Join(GetCacheDir(), "dashboard.log")
}

// YAML renders the effective configuration.
func (c *Config) YAML() (string, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

// getXDGDir returns a directory path following XDG spec.
// envVar is the XDG environment variable (e.g., "XDG_CONFIG_HOME").
// fallbackPath is the relative path from home (e.g., ".config").
func getXDGDir(envVar, fallbackPath string) string {
	if xdgDir := os.Getenv(envVar); xdgDir != "" {
		return filepath.Join(xdgDir, appName)
	}
	home, err := homedir.Dir()
	if err != nil {
		return filepath.Join(".", fallbackPath, appName)
	}
	return filepath.Join(home, fallbackPath, appName)
}

// GetConfigDir returns the configuration directory following XDG spec
func GetConfigDir() string {
	return getXDGDir("XDG_CONFIG_HOME", ".config")
}

// GetDataDir returns the data directory following XDG spec
func GetDataDir() string {
	return getXDGDir("XDG_DATA_HOME", filepath.Join(".local", "share"))
}

// GetCacheDir returns the cache directory following XDG spec
func GetCacheDir() string {
	return getXDGDir("XDG_CACHE_HOME", ".cache")
}

// ExpandPath expands ~ and environment variables in a path
func ExpandPath(path string) string {
	if path == "" {
		return path
	}
	if expanded, err := homedir.Expand(path); err == nil {
		path = expanded
	}
	return os.ExpandEnv(path)
}
