package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.rowloom/rowloom.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version int         `yaml:"version"`
	Store   StoreConfig `yaml:"store"`
	Logging LogConfig   `yaml:"logging,omitempty"`
}

// StoreConfig defines the relational store connection.
type StoreConfig struct {
	Type           string `yaml:"type"` // postgres or oracle
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	Database       string `yaml:"database"`
	Schema         string `yaml:"schema,omitempty"`
	Username       string `yaml:"username"`
	Password       string `yaml:"password"`
	SSL            bool   `yaml:"ssl,omitempty"`
	MaxConnections int    `yaml:"max_connections,omitempty"` // default 20, max 50
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty"`          // debug, info, warn, error
	Directory     string `yaml:"directory,omitempty"`      // default ~/.rowloom/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// Load reads and parses the config file from the given path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

// Validate checks that the store section is complete enough to connect.
func (c *Config) Validate() error {
	switch c.Store.Type {
	case "postgres", "oracle":
	case "":
		return fmt.Errorf("store type is required")
	default:
		return fmt.Errorf("unsupported store type %q (expected postgres or oracle)", c.Store.Type)
	}
	if c.Store.Host == "" {
		return fmt.Errorf("store host is required")
	}
	if c.Store.Database == "" {
		return fmt.Errorf("store database is required")
	}
	return nil
}

// ConnString builds the driver connection string for the store.
func (s StoreConfig) ConnString() string {
	switch s.Type {
	case "oracle":
		u := url.URL{
			Scheme: "oracle",
			User:   url.UserPassword(s.Username, s.Password),
			Host:   fmt.Sprintf("%s:%d", s.Host, s.port()),
			Path:   s.Database,
		}
		return u.String()
	default:
		sslmode := "disable"
		if s.SSL {
			sslmode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(s.Username, s.Password),
			Host:     fmt.Sprintf("%s:%d", s.Host, s.port()),
			Path:     s.Database,
			RawQuery: "sslmode=" + sslmode,
		}
		return u.String()
	}
}

func (s StoreConfig) port() int {
	if s.Port != 0 {
		return s.Port
	}
	if s.Type == "oracle" {
		return 1521
	}
	return 5432
}

func (c *Config) applyDefaults() {
	if c.Store.MaxConnections == 0 {
		c.Store.MaxConnections = 20
	}
	if c.Store.MaxConnections > 50 {
		c.Store.MaxConnections = 50
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.rowloom/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Store.Password, err = ResolveValue(c.Store.Password)
	if err != nil {
		return fmt.Errorf("store password: %w", err)
	}
	c.Store.Username, err = ResolveValue(c.Store.Username)
	if err != nil {
		return fmt.Errorf("store username: %w", err)
	}
	return nil
}

// ResolveValue resolves secret references in a string value.
func ResolveValue(val string) (string, error) {
	matches := secretPattern.FindStringSubmatch(val)
	if matches == nil {
		return val, nil
	}

	provider := matches[1]
	ref := matches[2]

	switch provider {
	case "ENV":
		v := os.Getenv(ref)
		if v == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
		return v, nil
	case "VAULT":
		return resolveVault(ref)
	case "AWS_SM":
		return resolveAWSSecretsManager(ref)
	default:
		return "", fmt.Errorf("unknown secrets provider: %s", provider)
	}
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
