// Package config provides YAML-based configuration loading for the instancer.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level instancer configuration, loaded from instancer.yaml.
type Config struct {
	Listen   ListenConfig `yaml:"listen"`
	DB       DBConfig     `yaml:"db"`
	TeamMode bool         `yaml:"team_mode"`
	Quota    QuotaConfig  `yaml:"quota"`
}

// ListenConfig holds HTTP server settings.
type ListenConfig struct {
	Port int `yaml:"port"`
}

// DBConfig holds connection settings for the platform database.
type DBConfig struct {
	Driver   string `yaml:"driver"` // "mysql" or "sqlite"
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	Path     string `yaml:"path"` // sqlite only
}

// QuotaConfig bounds how many instances a single user may hold. The limit is
// per user even in team mode, so switching teams can't be used to stack
// containers.
type QuotaConfig struct {
	MaxPerUser int `yaml:"max_per_user"`
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
	if c.Listen.Port == 0 {
		c.Listen.Port = 8080
	}
	if c.DB.Driver == "" {
		c.DB.Driver = "sqlite"
	}
	if c.DB.Driver == "sqlite" && c.DB.Path == "" {
		c.DB.Path = "instancer.db"
	}
	if c.DB.Driver == "mysql" {
		if c.DB.Host == "" {
			c.DB.Host = "127.0.0.1"
		}
		if c.DB.Port == 0 {
			c.DB.Port = 3306
		}
		if c.DB.User == "" {
			c.DB.User = "root"
		}
		if c.DB.Database == "" {
			c.DB.Database = "instancer"
		}
	}
	if c.Quota.MaxPerUser == 0 {
		c.Quota.MaxPerUser = 1
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	switch c.DB.Driver {
	case "mysql", "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("db.driver %q is not supported (mysql, sqlite)", c.DB.Driver))
	}
	if c.Listen.Port < 0 || c.Listen.Port > 65535 {
		errs = append(errs, fmt.Sprintf("listen.port %d is out of range", c.Listen.Port))
	}
	if c.Quota.MaxPerUser < 1 {
		errs = append(errs, "quota.max_per_user must be at least 1")
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}
