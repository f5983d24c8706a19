// Package config provides YAML-based configuration loading for the intake
// server, with environment variable overrides.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// Config is the top-level server configuration.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	OpenAI   OpenAIConfig   `yaml:"openai"`
	Session  SessionConfig  `yaml:"session"`
	Intake   IntakeConfig   `yaml:"intake"`
	Postgres PostgresConfig `yaml:"postgres"`
	Log      LogConfig      `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// OpenAIConfig holds the completion provider settings.
type OpenAIConfig struct {
	APIKey         string `yaml:"api_key"`
	Model          string `yaml:"model"`
	BaseURL        string `yaml:"base_url"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SessionConfig controls session lifetime.  A zero TTL in the file selects
// the default.
type SessionConfig struct {
	TTLSeconds    int    `yaml:"ttl_seconds"`
	SweepSchedule string `yaml:"sweep_schedule"`
}

// IntakeConfig tunes the conversation flow.  Zero values select the
// defaults.
type IntakeConfig struct {
	MaxQARounds           int   `yaml:"max_qa_rounds"`
	MaxUploadBytes        int64 `yaml:"max_upload_bytes"`
	LegacyExpertDetection *bool `yaml:"legacy_expert_detection"`
}

// PostgresConfig enables stage notifications when URL is set.
type PostgresConfig struct {
	URL           string `yaml:"url"`
	NotifyChannel string `yaml:"notify_channel"`
}

// LogConfig selects log verbosity and encoding.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LookupFunc resolves an environment variable, like os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads an optional YAML file and applies overrides from the process
// environment.  An empty path yields the defaults.
func Load(path string) (*Config, error) {
	return LoadWithEnv(path, os.LookupEnv)
}

// LoadWithEnv is Load with an explicit environment.
func LoadWithEnv(path string, lookup LookupFunc) (*Config, error) {
	var data []byte
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}
		data = b
	}
	return Parse(data, lookup)
}

// Parse unmarshals YAML bytes, applies environment overrides when lookup is
// non-nil, fills in defaults and validates the result.
func Parse(data []byte, lookup LookupFunc) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	if lookup != nil {
		if err := cfg.applyEnv(lookup); err != nil {
			return nil, err
		}
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyEnv overrides file values with environment variables.
func (c *Config) applyEnv(lookup LookupFunc) error {
	str := func(key string, dst *string) {
		if v, ok := lookup(key); ok && v != "" {
			*dst = v
		}
	}
	num := func(key string, dst *int) error {
		v, ok := lookup(key)
		if !ok || v == "" {
			return nil
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("config: %s: invalid integer %q", key, v)
		}
		if n <= 0 {
			return fmt.Errorf("config: %s: must be positive, got %d", key, n)
		}
		*dst = n
		return nil
	}

	str("OPENAI_API_KEY", &c.OpenAI.APIKey)
	str("OPENAI_MODEL", &c.OpenAI.Model)
	str("OPENAI_BASE_URL", &c.OpenAI.BaseURL)
	str("DATABASE_URL", &c.Postgres.URL)
	str("POSTGRES_NOTIFY_CHANNEL", &c.Postgres.NotifyChannel)
	str("LOG_LEVEL", &c.Log.Level)
	str("LOG_FORMAT", &c.Log.Format)
	if err := num("PORT", &c.Server.Port); err != nil {
		return err
	}
	return num("SESSION_TTL", &c.Session.TTLSeconds)
}

// applyDefaults fills in unset values.
func (c *Config) applyDefaults() {
	if c.Server.Port == 0 {
		c.Server.Port = 8080
	}
	if c.OpenAI.Model == "" {
		c.OpenAI.Model = "gpt-4o-mini"
	}
	if c.OpenAI.TimeoutSeconds == 0 {
		c.OpenAI.TimeoutSeconds = 60
	}
	if c.Session.TTLSeconds == 0 {
		c.Session.TTLSeconds = 3600
	}
	if c.Session.SweepSchedule == "" {
		c.Session.SweepSchedule = "@every 60s"
	}
	if c.Intake.MaxQARounds == 0 {
		c.Intake.MaxQARounds = 4
	}
	if c.Intake.MaxUploadBytes == 0 {
		c.Intake.MaxUploadBytes = 10 << 20
	}
	if c.Intake.LegacyExpertDetection == nil {
		on := true
		c.Intake.LegacyExpertDetection = &on
	}
	if c.Postgres.NotifyChannel == "" {
		c.Postgres.NotifyChannel = "medvise_stage"
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
	if c.Log.Format == "" {
		c.Log.Format = "json"
	}
}

// validate checks that all values are usable.
func (c *Config) validate() error {
	var errs []string
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		errs = append(errs, fmt.Sprintf("server.port %d out of range", c.Server.Port))
	}
	if c.OpenAI.TimeoutSeconds < 0 {
		errs = append(errs, "openai.timeout_seconds must not be negative")
	}
	if c.Session.TTLSeconds < 0 {
		errs = append(errs, "session.ttl_seconds must not be negative")
	}
	if _, err := cron.ParseStandard(c.Session.SweepSchedule); err != nil {
		errs = append(errs, fmt.Sprintf("session.sweep_schedule: %v", err))
	}
	if c.Intake.MaxQARounds < 0 {
		errs = append(errs, "intake.max_qa_rounds must not be negative")
	}
	if c.Intake.MaxUploadBytes < 0 {
		errs = append(errs, "intake.max_upload_bytes must not be negative")
	}
	if _, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level)); err != nil {
		errs = append(errs, fmt.Sprintf("log.level %q is not a level", c.Log.Level))
	}
	if c.Log.Format != "json" && c.Log.Format != "console" {
		errs = append(errs, fmt.Sprintf("log.format %q must be json or console", c.Log.Format))
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// SessionTTL returns the session idle lifetime.
func (c *Config) SessionTTL() time.Duration {
	return time.Duration(c.Session.TTLSeconds) * time.Second
}

// CompletionTimeout returns the per-call completion timeout.
func (c *Config) CompletionTimeout() time.Duration {
	return time.Duration(c.OpenAI.TimeoutSeconds) * time.Second
}

// LogLevel returns the parsed log level, info when unparseable.
func (c *Config) LogLevel() zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(c.Log.Level))
	if err != nil {
		return zerolog.InfoLevel
	}
	return lvl
}
