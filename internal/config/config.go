// Package config loads gateway configuration from a yaml file with
// environment variable overrides.
package config

import (
	"fmt"
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"printgate/internal/printer"
	"printgate/internal/routing"
	"printgate/internal/webhook"
)

type Config struct {
	Server     ServerConfig             `yaml:"server"`
	Auth       AuthConfig               `yaml:"auth"`
	Printers   []PrinterConfig          `yaml:"printers"`
	Resilience printer.ResilienceConfig `yaml:"resilience"`
	Queue      QueueConfig              `yaml:"queue"`
	Routing    routing.Config           `yaml:"routing"`
	Archive    ArchiveConfig            `yaml:"archive"`
	Webhooks   webhook.Config           `yaml:"webhooks"`
}

type ServerConfig struct {
	Host         string        `yaml:"host" env:"PRINTGATE_HOST"`
	Port         int           `yaml:"port" env:"PRINTGATE_PORT"`
	ReadTimeout  time.Duration `yaml:"-"`
	WriteTimeout time.Duration `yaml:"-"`
	Debug        bool          `yaml:"debug" env:"PRINTGATE_DEBUG"`
}

// UnmarshalYAML parses timeouts in time.ParseDuration form, keeping
// current values for absent fields.
func (c *ServerConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Host         *string `yaml:"host"`
		Port         *int    `yaml:"port"`
		ReadTimeout  string  `yaml:"read_timeout"`
		WriteTimeout string  `yaml:"write_timeout"`
		Debug        *bool   `yaml:"debug"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Host != nil {
		c.Host = *raw.Host
	}
	if raw.Port != nil {
		c.Port = *raw.Port
	}
	if raw.Debug != nil {
		c.Debug = *raw.Debug
	}
	if err := parseDuration("read_timeout", raw.ReadTimeout, &c.ReadTimeout); err != nil {
		return err
	}
	return parseDuration("write_timeout", raw.WriteTimeout, &c.WriteTimeout)
}

type AuthConfig struct {
	Enabled      bool          `yaml:"enabled" env:"PRINTGATE_AUTH_ENABLED"`
	JWTSecret    string        `yaml:"jwt_secret" env:"PRINTGATE_JWT_SECRET"`
	Username     string        `yaml:"username" env:"PRINTGATE_AUTH_USER"`
	PasswordHash string        `yaml:"password_hash" env:"PRINTGATE_AUTH_PASSWORD_HASH"`
	TokenTTL     time.Duration `yaml:"-"`
}

func (c *AuthConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		Enabled      *bool   `yaml:"enabled"`
		JWTSecret    *string `yaml:"jwt_secret"`
		Username     *string `yaml:"username"`
		PasswordHash *string `yaml:"password_hash"`
		TokenTTL     string  `yaml:"token_ttl"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.Enabled != nil {
		c.Enabled = *raw.Enabled
	}
	if raw.JWTSecret != nil {
		c.JWTSecret = *raw.JWTSecret
	}
	if raw.Username != nil {
		c.Username = *raw.Username
	}
	if raw.PasswordHash != nil {
		c.PasswordHash = *raw.PasswordHash
	}
	return parseDuration("token_ttl", raw.TokenTTL, &c.TokenTTL)
}

func parseDuration(name, text string, dst *time.Duration) error {
	if text == "" {
		return nil
	}
	d, err := time.ParseDuration(text)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", name, err)
	}
	*dst = d
	return nil
}

// PrinterConfig describes one backend. Type selects the driver:
// "mock", "mock-document", "label", "cups" or "network".
type PrinterConfig struct {
	ID      string `yaml:"id"`
	Name    string `yaml:"name"`
	Type    string `yaml:"type"`
	Device  string `yaml:"device"`  // label: usb identifier, e.g. usb://0x04f9:0x2042
	Address string `yaml:"address"` // network: host:port
	Queue   string `yaml:"queue"`   // cups: queue name
	Server  string `yaml:"server"`  // cups: optional server host
	Model   string `yaml:"model"`   // label: printer model hint

	// Label renderer selection: "raw" (default) sends payloads as-is,
	// "tspl" converts images to TSPL2 bitmap commands.
	Renderer      string  `yaml:"renderer"`
	LabelWidthMM  float64 `yaml:"label_width_mm"`
	LabelHeightMM float64 `yaml:"label_height_mm"`
}

type QueueConfig struct {
	MaxSize       int           `yaml:"max_size" env:"PRINTGATE_QUEUE_MAX_SIZE"`
	HistorySize   int           `yaml:"history_size"`
	SweepInterval time.Duration `yaml:"-"`
}

func (c *QueueConfig) UnmarshalYAML(value *yaml.Node) error {
	raw := struct {
		MaxSize       *int   `yaml:"max_size"`
		HistorySize   *int   `yaml:"history_size"`
		SweepInterval string `yaml:"sweep_interval"`
	}{}
	if err := value.Decode(&raw); err != nil {
		return err
	}
	if raw.MaxSize != nil {
		c.MaxSize = *raw.MaxSize
	}
	if raw.HistorySize != nil {
		c.HistorySize = *raw.HistorySize
	}
	return parseDuration("sweep_interval", raw.SweepInterval, &c.SweepInterval)
}

type ArchiveConfig struct {
	Enabled       bool   `yaml:"enabled" env:"PRINTGATE_ARCHIVE_ENABLED"`
	Path          string `yaml:"path" env:"PRINTGATE_ARCHIVE_PATH"`
	RetentionDays int    `yaml:"retention_days"`
}

func defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Auth: AuthConfig{
			Enabled:  false,
			TokenTTL: 24 * time.Hour,
		},
		Printers: []PrinterConfig{
			{ID: "label", Name: "Label Printer", Type: "mock"},
			{ID: "document", Name: "Document Printer", Type: "mock-document"},
		},
		Resilience: printer.DefaultResilienceConfig(),
		Queue: QueueConfig{
			MaxSize:       100,
			HistorySize:   50,
			SweepInterval: 60 * time.Second,
		},
		Archive: ArchiveConfig{
			Enabled:       false,
			Path:          "./data/jobs.db",
			RetentionDays: 30,
		},
	}
}

// Load reads the yaml file at configPath, falling back to defaults when
// the file does not exist, then applies environment overrides.
func Load(configPath string) (*Config, error) {
	cfg := defaults()

	data, err := os.ReadFile(configPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("failed to apply environment overrides: %w", err)
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("server port must be between 1 and 65535, got %d", c.Server.Port)
	}

	if c.Server.ReadTimeout < 0 {
		return fmt.Errorf("server read timeout must be non-negative")
	}

	if c.Server.WriteTimeout < 0 {
		return fmt.Errorf("server write timeout must be non-negative")
	}

	if c.Auth.Enabled {
		if c.Auth.JWTSecret == "" {
			return fmt.Errorf("auth is enabled but jwt_secret is empty")
		}
		if c.Auth.Username == "" || c.Auth.PasswordHash == "" {
			return fmt.Errorf("auth is enabled but username or password_hash is empty")
		}
		if c.Auth.TokenTTL <= 0 {
			return fmt.Errorf("token ttl must be positive")
		}
	}

	seen := make(map[string]bool, len(c.Printers))
	for i, p := range c.Printers {
		if p.ID == "" {
			return fmt.Errorf("printer %d has no id", i)
		}
		if seen[p.ID] {
			return fmt.Errorf("duplicate printer id: %s", p.ID)
		}
		seen[p.ID] = true

		if p.Renderer != "" && p.Renderer != "raw" && p.Renderer != "tspl" {
			return fmt.Errorf("printer %s: unknown renderer %q", p.ID, p.Renderer)
		}

		switch p.Type {
		case "mock", "mock-document", "label":
		case "cups":
			if p.Queue == "" {
				return fmt.Errorf("printer %s: cups printers need a queue name", p.ID)
			}
		case "network":
			if p.Address == "" {
				return fmt.Errorf("printer %s: network printers need an address", p.ID)
			}
		default:
			return fmt.Errorf("printer %s: unknown type %q", p.ID, p.Type)
		}
	}

	if c.Resilience.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative")
	}

	if c.Resilience.RetryDelay < 0 {
		return fmt.Errorf("retry delay must be non-negative")
	}

	if c.Resilience.HealthCheckInterval <= 0 {
		return fmt.Errorf("health check interval must be positive")
	}

	if c.Resilience.OfflineQueueTimeout <= 0 {
		return fmt.Errorf("offline queue timeout must be positive")
	}

	if c.Queue.MaxSize < 1 {
		return fmt.Errorf("queue max size must be at least 1")
	}

	if c.Queue.HistorySize < 0 {
		return fmt.Errorf("queue history size must be non-negative")
	}

	if c.Archive.Enabled && c.Archive.Path == "" {
		return fmt.Errorf("archive is enabled but path is empty")
	}

	if c.Archive.RetentionDays < 0 {
		return fmt.Errorf("archive retention days must be non-negative")
	}

	for i, ep := range c.Webhooks.Endpoints {
		if ep.URL == "" {
			return fmt.Errorf("webhook endpoint %d has no url", i)
		}
	}

	return nil
}
