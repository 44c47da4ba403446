// Package config provides YAML-based configuration loading for Vigil.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level Vigil configuration, loaded from vigil.yaml.
type Config struct {
	Instance        string        `yaml:"instance"`
	SessionRoot     string        `yaml:"session_root"`
	DefaultHostName string        `yaml:"default_host_name"`
	Blob            BlobConfig    `yaml:"blob"`
	DB              DBConfig      `yaml:"db"`
	API             APIConfig     `yaml:"api"`
	Janitor         JanitorConfig `yaml:"janitor"`
	Notify          NotifyConfig  `yaml:"notify"`
}

// BlobConfig holds settings for the remote artifact mirror. An empty
// connection string leaves remote reconciliation disabled.
type BlobConfig struct {
	ConnectionString string `yaml:"connection_string"`
	Container        string `yaml:"container"`
	HostName         string `yaml:"host_name"`
}

// DBConfig holds connection settings for the coordination database.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "sqlite" or "mysql"
	DSN      string `yaml:"dsn"`    // overrides the individual fields when set
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// APIConfig holds settings for the HTTP API server.
type APIConfig struct {
	Port int `yaml:"port"`
}

// JanitorConfig holds settings for the housekeeping sweep.
type JanitorConfig struct {
	Schedule string `yaml:"schedule"`
}

// NotifyConfig holds chat notification settings. A sink with an empty
// token is left unconfigured.
type NotifyConfig struct {
	Slack   SlackConfig   `yaml:"slack"`
	Discord DiscordConfig `yaml:"discord"`
}

// SlackConfig holds Slack sink settings.
type SlackConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// DiscordConfig holds Discord sink settings.
type DiscordConfig struct {
	BotToken string `yaml:"bot_token"`
	Channel  string `yaml:"channel"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.Instance == "" {
		if host, err := os.Hostname(); err == nil {
			c.Instance = host
		}
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.DSN == "" {
		c.DB.DSN = "vigil.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
	}
	if c.Blob.HostName == "" && c.Blob.Container != "" {
		c.Blob.HostName = c.Blob.Container
	}
	if c.API.Port == 0 {
		c.API.Port = 8080
	}
	if c.Janitor.Schedule == "" {
		c.Janitor.Schedule = "*/5 * * * *"
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.SessionRoot == "" {
		errs = append(errs, "session_root is required")
	}
	if c.DefaultHostName == "" {
		errs = append(errs, "default_host_name is required")
	}
	switch c.DB.Driver {
	case "sqlite":
	case "mysql":
		if c.DB.DSN == "" && c.DB.Database == "" {
			errs = append(errs, "db.database is required for mysql")
		}
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported", c.DB.Driver))
	}
	if c.Blob.ConnectionString != "" && c.Blob.Container == "" {
		errs = append(errs, "blob.container is required when blob.connection_string is set")
	}
	if c.Notify.Slack.BotToken != "" && c.Notify.Slack.Channel == "" {
		errs = append(errs, "notify.slack.channel is required when a token is set")
	}
	if c.Notify.Discord.BotToken != "" && c.Notify.Discord.Channel == "" {
		errs = append(errs, "notify.discord.channel is required when a token is set")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
