// Package config provides application configuration.
//
// Values come from built-in defaults, then an optional TOML file, then
// CHATLINK_* environment variables.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all application configuration.
type Config struct {
	Client  ClientConfig
	Gateway GatewayConfig
	Log     LogConfig
}

// ClientConfig controls the terminal client and its connection manager.
type ClientConfig struct {
	ServerURL    string
	SessionPath  string
	BaseDelay    time.Duration
	MaxDelay     time.Duration
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	LogFile      string
}

// GatewayConfig controls the development gateway.
type GatewayConfig struct {
	Address     string
	DBPath      string
	TokenSecret string
	TokenTTL    time.Duration
}

// LogConfig controls structured logging.
type LogConfig struct {
	Level  string
	Format string
}

type fileConfig struct {
	Client struct {
		ServerURL    string `toml:"server_url"`
		SessionFile  string `toml:"session_file"`
		BaseDelay    string `toml:"base_delay"`
		MaxDelay     string `toml:"max_delay"`
		DialTimeout  string `toml:"dial_timeout"`
		WriteTimeout string `toml:"write_timeout"`
		LogFile      string `toml:"log_file"`
	} `toml:"client"`
	Gateway struct {
		Address     string `toml:"address"`
		DBPath      string `toml:"db_path"`
		TokenSecret string `toml:"token_secret"`
		TokenTTL    string `toml:"token_ttl"`
	} `toml:"gateway"`
	Log struct {
		Level  string `toml:"level"`
		Format string `toml:"format"`
	} `toml:"log"`
}

// Default returns the built-in configuration.
func Default() *Config {
	dir := configDir()
	return &Config{
		Client: ClientConfig{
			ServerURL:    "ws://localhost:8000/ws",
			SessionPath:  filepath.Join(dir, "session.yaml"),
			BaseDelay:    1 * time.Second,
			MaxDelay:     10 * time.Second,
			DialTimeout:  10 * time.Second,
			WriteTimeout: 5 * time.Second,
			LogFile:      filepath.Join(dir, "client.log"),
		},
		Gateway: GatewayConfig{
			Address:  ":8000",
			DBPath:   "./data/chatlink.db",
			TokenTTL: 60 * time.Minute,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// DefaultPath returns the config file looked up when none is given.
func DefaultPath() string {
	return filepath.Join(configDir(), "config.toml")
}

func configDir() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		return ".chatlink"
	}
	return filepath.Join(dir, "chatlink")
}

// Load builds the configuration. An empty path skips the file; a path that
// does not exist is an error unless it is DefaultPath.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		if err := cfg.decodeFile(path); err != nil {
			if !(errors.Is(err, os.ErrNotExist) && path == DefaultPath()) {
				return nil, err
			}
		}
	}

	if err := cfg.applyEnv(); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c *Config) decodeFile(path string) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("failed to load config %s: %w", path, err)
	}

	if meta.IsDefined("client", "server_url") {
		c.Client.ServerURL = strings.TrimSpace(raw.Client.ServerURL)
	}
	if meta.IsDefined("client", "session_file") {
		c.Client.SessionPath = strings.TrimSpace(raw.Client.SessionFile)
	}
	if meta.IsDefined("client", "log_file") {
		c.Client.LogFile = strings.TrimSpace(raw.Client.LogFile)
	}

	durations := []struct {
		key  string
		raw  string
		dest *time.Duration
	}{
		{"base_delay", raw.Client.BaseDelay, &c.Client.BaseDelay},
		{"max_delay", raw.Client.MaxDelay, &c.Client.MaxDelay},
		{"dial_timeout", raw.Client.DialTimeout, &c.Client.DialTimeout},
		{"write_timeout", raw.Client.WriteTimeout, &c.Client.WriteTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined("client", d.key) {
			continue
		}
		v, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return fmt.Errorf("parse client.%s: %w", d.key, err)
		}
		*d.dest = v
	}

	if meta.IsDefined("gateway", "address") {
		c.Gateway.Address = strings.TrimSpace(raw.Gateway.Address)
	}
	if meta.IsDefined("gateway", "db_path") {
		c.Gateway.DBPath = strings.TrimSpace(raw.Gateway.DBPath)
	}
	if meta.IsDefined("gateway", "token_secret") {
		c.Gateway.TokenSecret = raw.Gateway.TokenSecret
	}
	if meta.IsDefined("gateway", "token_ttl") {
		v, err := time.ParseDuration(strings.TrimSpace(raw.Gateway.TokenTTL))
		if err != nil {
			return fmt.Errorf("parse gateway.token_ttl: %w", err)
		}
		c.Gateway.TokenTTL = v
	}

	if meta.IsDefined("log", "level") {
		c.Log.Level = strings.TrimSpace(raw.Log.Level)
	}
	if meta.IsDefined("log", "format") {
		c.Log.Format = strings.TrimSpace(raw.Log.Format)
	}
	return nil
}

func (c *Config) applyEnv() error {
	c.Client.ServerURL = getEnv("CHATLINK_SERVER_URL", c.Client.ServerURL)
	c.Client.SessionPath = getEnv("CHATLINK_SESSION_FILE", c.Client.SessionPath)
	c.Client.LogFile = getEnv("CHATLINK_CLIENT_LOG_FILE", c.Client.LogFile)
	c.Gateway.Address = getEnv("CHATLINK_ADDR", c.Gateway.Address)
	c.Gateway.DBPath = getEnv("CHATLINK_DB_PATH", c.Gateway.DBPath)
	c.Gateway.TokenSecret = getEnv("CHATLINK_TOKEN_SECRET", c.Gateway.TokenSecret)
	c.Log.Level = getEnv("CHATLINK_LOG_LEVEL", c.Log.Level)
	c.Log.Format = getEnv("CHATLINK_LOG_FORMAT", c.Log.Format)

	var err error
	if c.Client.BaseDelay, err = getEnvDuration("CHATLINK_BASE_DELAY", c.Client.BaseDelay); err != nil {
		return err
	}
	if c.Client.MaxDelay, err = getEnvDuration("CHATLINK_MAX_DELAY", c.Client.MaxDelay); err != nil {
		return err
	}
	if c.Client.DialTimeout, err = getEnvDuration("CHATLINK_DIAL_TIMEOUT", c.Client.DialTimeout); err != nil {
		return err
	}
	if c.Client.WriteTimeout, err = getEnvDuration("CHATLINK_WRITE_TIMEOUT", c.Client.WriteTimeout); err != nil {
		return err
	}
	if c.Gateway.TokenTTL, err = getEnvDuration("CHATLINK_TOKEN_TTL", c.Gateway.TokenTTL); err != nil {
		return err
	}
	return nil
}

// Validate checks the settings shared by both binaries.
func (c *Config) Validate() error {
	if c.Client.ServerURL == "" {
		return fmt.Errorf("server url cannot be empty")
	}
	u, err := url.Parse(c.Client.ServerURL)
	if err != nil {
		return fmt.Errorf("server url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("server url %q must use ws or wss", c.Client.ServerURL)
	}
	if c.Client.SessionPath == "" {
		return fmt.Errorf("session file cannot be empty")
	}
	if c.Client.BaseDelay <= 0 {
		return fmt.Errorf("base delay must be > 0")
	}
	if c.Client.MaxDelay < c.Client.BaseDelay {
		return fmt.Errorf("max delay %v must be >= base delay %v", c.Client.MaxDelay, c.Client.BaseDelay)
	}
	if c.Client.DialTimeout < 0 || c.Client.WriteTimeout < 0 {
		return fmt.Errorf("timeouts cannot be negative")
	}
	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("unknown log level %q", c.Log.Level)
	}
	switch strings.ToLower(c.Log.Format) {
	case "text", "json":
	default:
		return fmt.Errorf("unknown log format %q", c.Log.Format)
	}
	return nil
}

// ValidateGateway checks the settings only the gateway needs.
func (c *Config) ValidateGateway() error {
	if c.Gateway.Address == "" {
		return fmt.Errorf("gateway address cannot be empty")
	}
	if c.Gateway.DBPath == "" {
		return fmt.Errorf("gateway db path cannot be empty")
	}
	if c.Gateway.TokenSecret == "" {
		return fmt.Errorf("CHATLINK_TOKEN_SECRET must be set")
	}
	if c.Gateway.TokenTTL <= 0 {
		return fmt.Errorf("token ttl must be > 0")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) (time.Duration, error) {
	value, ok := os.LookupEnv(key)
	if !ok {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(value))
	if err != nil {
		return 0, fmt.Errorf("parse %s: %w", key, err)
	}
	return d, nil
}
