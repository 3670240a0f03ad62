// Package config loads mailtriage settings from a YAML file, a .env file and
// MAILTRIAGE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/otherjamesbrown/mailtriage/pkg/analysis"
	"github.com/otherjamesbrown/mailtriage/pkg/db"
	"github.com/otherjamesbrown/mailtriage/pkg/logging"
	"github.com/otherjamesbrown/mailtriage/pkg/redact"
)

// OutputFormat defines the supported output formats for CLI results.
type OutputFormat string

const (
	// OutputFormatText is human-readable plain text output.
	OutputFormatText OutputFormat = "text"
	// OutputFormatJSON is JSON-formatted output for machine processing.
	OutputFormatJSON OutputFormat = "json"
	// OutputFormatYAML is YAML-formatted output for machine processing.
	OutputFormatYAML OutputFormat = "yaml"
)

// Default configuration values.
const (
	DefaultOutputFormat     = OutputFormatText
	DefaultConfigDir        = ".mailtriage"
	DefaultConfigFile       = "config.yaml"
	DefaultEnvFile          = ".env"
	DefaultBatchConcurrency = 4
	DefaultIntakeAddr       = ":2525"
	DefaultIntakeDomain     = "mailtriage"
	DefaultIntakeMaxBytes   = 25 << 20
	DefaultIntakeTimeout    = 15 * time.Second
	DefaultMetricsAddr      = ":9102"
	DefaultRedisDedupTTL    = 24 * time.Hour
	DefaultLogLevel         = "info"
)

// LogConfig controls log output.
type LogConfig struct {
	Level string `yaml:"level"`
	JSON  bool   `yaml:"json"`
}

// BatchConfig controls directory triage.
type BatchConfig struct {
	Concurrency int `yaml:"concurrency"`
}

// IntakeConfig controls the SMTP report mailbox.
type IntakeConfig struct {
	Addr            string        `yaml:"addr"`
	Domain          string        `yaml:"domain"`
	MaxMessageBytes int64         `yaml:"max_message_bytes"`
	MaxRecipients   int           `yaml:"max_recipients"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
}

// RedisConfig holds event bus and dedup settings. An empty Addr disables
// publishing and dedup.
type RedisConfig struct {
	Addr     string        `yaml:"addr,omitempty"`
	Password string        `yaml:"password,omitempty"`
	DB       int           `yaml:"db"`
	DedupTTL time.Duration `yaml:"dedup_ttl"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool {
	return r.Addr != ""
}

// Config holds every mailtriage setting.
type Config struct {
	// OutputFormat is the default format for command output.
	OutputFormat OutputFormat `yaml:"output_format"`

	// Debug forces debug logging.
	Debug bool `yaml:"debug,omitempty"`

	Log LogConfig `yaml:"log"`

	// Redaction selects the categories scrubbed from report bodies.
	Redaction redact.Options `yaml:"redaction"`

	// MaxMessageBytes rejects larger inputs before parsing (0 = unlimited).
	MaxMessageBytes int `yaml:"max_message_bytes,omitempty"`

	Batch  BatchConfig  `yaml:"batch"`
	Intake IntakeConfig `yaml:"intake"`

	// MetricsAddr is where `serve` exposes /metrics, /healthz and /version.
	MetricsAddr string `yaml:"metrics_addr"`

	Database db.Config   `yaml:"database"`
	Redis    RedisConfig `yaml:"redis"`
}

// DefaultConfig returns a Config with default values.
func DefaultConfig() *Config {
	return &Config{
		OutputFormat: DefaultOutputFormat,
		Log:          LogConfig{Level: DefaultLogLevel},
		Redaction:    redact.DefaultOptions(),
		Batch:        BatchConfig{Concurrency: DefaultBatchConcurrency},
		Intake: IntakeConfig{
			Addr:            DefaultIntakeAddr,
			Domain:          DefaultIntakeDomain,
			MaxMessageBytes: DefaultIntakeMaxBytes,
			MaxRecipients:   50,
			ReadTimeout:     DefaultIntakeTimeout,
			WriteTimeout:    DefaultIntakeTimeout,
		},
		MetricsAddr: DefaultMetricsAddr,
		Database:    *db.DefaultConfig(),
		Redis:       RedisConfig{DedupTTL: DefaultRedisDedupTTL},
	}
}

// ConfigDir returns the configuration directory path.
// Uses $MAILTRIAGE_CONFIG_DIR if set, otherwise ~/.mailtriage
func ConfigDir() (string, error) {
	if dir := os.Getenv("MAILTRIAGE_CONFIG_DIR"); dir != "" {
		return dir, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("getting home directory: %w", err)
	}

	return filepath.Join(home, DefaultConfigDir), nil
}

// ConfigPath returns the full path to the configuration file.
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, DefaultConfigFile), nil
}

// LoadConfig loads configuration from the default path.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return nil, fmt.Errorf("getting config path: %w", err)
	}
	return LoadConfigFrom(path)
}

// LoadConfigFrom loads configuration in this order (later sources override
// earlier):
//  1. Default values
//  2. The YAML file at path, if it exists
//  3. .env in the working directory (never overrides variables already set)
//  4. MAILTRIAGE_* environment variables
func LoadConfigFrom(path string) (*Config, error) {
	cfg := DefaultConfig()

	if _, err := os.Stat(path); err == nil {
		if err := loadFromFile(cfg, path); err != nil {
			return nil, fmt.Errorf("loading config file: %w", err)
		}
	}

	if err := loadDotEnv(DefaultEnvFile); err != nil {
		return nil, fmt.Errorf("loading %s: %w", DefaultEnvFile, err)
	}

	if err := loadFromEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

func loadFromFile(cfg *Config, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parsing config file: %w", err)
	}
	return nil
}

func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return godotenv.Load(path)
}

// loadFromEnv overlays environment variables onto the configuration.
func loadFromEnv(cfg *Config) error {
	if v := os.Getenv("MAILTRIAGE_OUTPUT_FORMAT"); v != "" {
		cfg.OutputFormat = OutputFormat(v)
	}
	if v := os.Getenv("MAILTRIAGE_DEBUG"); v == "true" || v == "1" {
		cfg.Debug = true
	}
	if v := os.Getenv("MAILTRIAGE_LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("MAILTRIAGE_LOG_JSON"); v == "true" || v == "1" {
		cfg.Log.JSON = true
	}
	if v := os.Getenv("MAILTRIAGE_METRICS_ADDR"); v != "" {
		cfg.MetricsAddr = v
	}
	if v := os.Getenv("MAILTRIAGE_INTAKE_ADDR"); v != "" {
		cfg.Intake.Addr = v
	}
	if v := os.Getenv("MAILTRIAGE_INTAKE_DOMAIN"); v != "" {
		cfg.Intake.Domain = v
	}
	if v := os.Getenv("MAILTRIAGE_REDIS_ADDR"); v != "" {
		cfg.Redis.Addr = v
	}
	if v := os.Getenv("MAILTRIAGE_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	ints := []struct {
		name string
		dst  *int
	}{
		{"MAILTRIAGE_BATCH_CONCURRENCY", &cfg.Batch.Concurrency},
		{"MAILTRIAGE_MAX_MESSAGE_BYTES", &cfg.MaxMessageBytes},
		{"MAILTRIAGE_REDIS_DB", &cfg.Redis.DB},
	}
	for _, e := range ints {
		v := os.Getenv(e.name)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", e.name, err)
		}
		*e.dst = n
	}

	cfg.Database.ApplyEnv()
	return nil
}

// Validate checks that the configuration is valid. Custom redaction patterns
// are not checked here; ones that fail to compile are skipped at redaction
// time.
func (c *Config) Validate() error {
	if !c.OutputFormat.IsValid() {
		return fmt.Errorf("invalid output_format: %q (must be text, json, or yaml)", c.OutputFormat)
	}
	switch logging.Level(strings.ToLower(c.Log.Level)) {
	case logging.LevelDebug, logging.LevelInfo, logging.LevelWarn, logging.LevelError:
	default:
		return fmt.Errorf("invalid log.level: %q", c.Log.Level)
	}
	if c.Batch.Concurrency <= 0 {
		return fmt.Errorf("batch.concurrency must be positive")
	}
	if c.MaxMessageBytes < 0 {
		return fmt.Errorf("max_message_bytes must not be negative")
	}
	if c.Intake.MaxMessageBytes <= 0 {
		return fmt.Errorf("intake.max_message_bytes must be positive")
	}
	if c.Redis.DB < 0 {
		return fmt.Errorf("redis.db must not be negative")
	}
	if err := c.Database.Validate(); err != nil {
		return fmt.Errorf("database: %w", err)
	}
	return nil
}

// IsValid checks if the output format is valid.
func (f OutputFormat) IsValid() bool {
	switch f {
	case OutputFormatText, OutputFormatJSON, OutputFormatYAML:
		return true
	default:
		return false
	}
}

// String returns the string representation of the output format.
func (f OutputFormat) String() string {
	return string(f)
}

// AnalysisConfig returns the analyzer settings derived from c.
func (c *Config) AnalysisConfig() analysis.Config {
	ac := analysis.DefaultConfig()
	ac.Redaction = c.Redaction
	ac.MaxMessageBytes = c.MaxMessageBytes
	return ac
}

// LoggingConfig returns the logger settings derived from c.
func (c *Config) LoggingConfig() *logging.Config {
	lc := logging.DefaultConfig()
	lc.Level = logging.Level(strings.ToLower(c.Log.Level))
	if c.Debug {
		lc.Level = logging.LevelDebug
	}
	lc.JSONFormat = c.Log.JSON
	return lc
}

// SaveConfig writes cfg to path, creating the directory if needed. The
// database and Redis passwords are never written.
func SaveConfig(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	out := *cfg
	out.Database.Password = ""
	out.Redis.Password = ""

	data, err := yaml.Marshal(&out)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	return nil
}
