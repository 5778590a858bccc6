package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds questchat configuration.
type Config struct {
	// Dashboard server
	Server    string `yaml:"server"`    // HTTP base URL for the chat brokers
	WebSocket string `yaml:"websocket"` // WebSocket URL; derived from Server when empty

	// Default conversation surface
	Guild string `yaml:"guild"`
	Quest string `yaml:"quest"`

	// Local transcript history
	HistoryDB string `yaml:"history_db"`

	ReconnectDelay string `yaml:"reconnect_delay"`
	RequestTimeout string `yaml:"request_timeout"`

	LogLevel string `yaml:"log_level"` // debug, info, warn, error
}

// DefaultConfig returns the built-in configuration.
func DefaultConfig() *Config {
	return &Config{
		Server:         "http://localhost:4737",
		HistoryDB:      filepath.Join(DefaultDir(), "history.db"),
		ReconnectDelay: "2s",
		RequestTimeout: "30s",
		LogLevel:       "info",
	}
}

// DefaultDir returns ~/.questchat, or .questchat when the home directory is unknown.
func DefaultDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".questchat"
	}
	return filepath.Join(home, ".questchat")
}

// DefaultPath returns the default config file location.
func DefaultPath() string {
	return filepath.Join(DefaultDir(), "config.yaml")
}

// Load loads configuration from a YAML file. A missing file yields the
// defaults. Environment overrides are applied last.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies QUESTCHAT_* environment variables.
func (c *Config) applyEnvOverrides() {
	overrides := map[string]*string{
		"QUESTCHAT_SERVER":          &c.Server,
		"QUESTCHAT_WEBSOCKET":       &c.WebSocket,
		"QUESTCHAT_GUILD":           &c.Guild,
		"QUESTCHAT_QUEST":           &c.Quest,
		"QUESTCHAT_HISTORY_DB":      &c.HistoryDB,
		"QUESTCHAT_RECONNECT_DELAY": &c.ReconnectDelay,
		"QUESTCHAT_REQUEST_TIMEOUT": &c.RequestTimeout,
		"QUESTCHAT_LOG_LEVEL":       &c.LogLevel,
	}
	for key, dst := range overrides {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
}

// WebSocketURL returns the configured WebSocket URL, or the server URL with
// its scheme switched to ws/wss and path /ws.
func (c *Config) WebSocketURL() (string, error) {
	if c.WebSocket != "" {
		return c.WebSocket, nil
	}
	u, err := url.Parse(c.Server)
	if err != nil {
		return "", fmt.Errorf("invalid server URL: %w", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/ws"
	return u.String(), nil
}

// GetReconnectDelay returns the WebSocket reconnect delay.
func (c *Config) GetReconnectDelay() time.Duration {
	d, err := time.ParseDuration(c.ReconnectDelay)
	if err != nil {
		return 2 * time.Second
	}
	return d
}

// GetRequestTimeout returns the broker request timeout.
func (c *Config) GetRequestTimeout() time.Duration {
	d, err := time.ParseDuration(c.RequestTimeout)
	if err != nil {
		return 30 * time.Second
	}
	return d
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Server)
	if err != nil || u.Host == "" {
		return fmt.Errorf("invalid server URL: %q", c.Server)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("server URL must be http or https: %q", c.Server)
	}
	if c.WebSocket != "" {
		w, err := url.Parse(c.WebSocket)
		if err != nil || (w.Scheme != "ws" && w.Scheme != "wss") {
			return fmt.Errorf("websocket URL must be ws or wss: %q", c.WebSocket)
		}
	}
	for name, v := range map[string]string{"reconnect_delay": c.ReconnectDelay, "request_timeout": c.RequestTimeout} {
		if v == "" {
			continue
		}
		if d, err := time.ParseDuration(v); err != nil || d < 0 {
			return fmt.Errorf("invalid %s: %q", name, v)
		}
	}
	switch c.LogLevel {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("invalid log_level: %q (valid: debug, info, warn, error)", c.LogLevel)
	}
	return nil
}
