package config

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	envConfigPath     = "DESKWATCH_CONFIG"
	DefaultConfigPath = "/etc/deskwatch/deskwatch.yaml"
)

const (
	defaultIntervalSec  = 60
	defaultThresholdSec = 600
	defaultServerAddr   = ":3000"
	defaultStoreDriver  = "memory"
)

type Config struct {
	Monitor MonitorConfig `yaml:"monitor"`
	Zendesk ZendeskConfig `yaml:"zendesk"`
	Slack   SlackConfig   `yaml:"slack"`
	KB      KBConfig      `yaml:"kb"`
	Store   StoreConfig   `yaml:"store"`
	Server  ServerConfig  `yaml:"server"`
}

type MonitorConfig struct {
	IntervalSec    int     `yaml:"interval_sec"`
	ThresholdSec   int     `yaml:"threshold_sec"`
	ExcludedAgents []int64 `yaml:"excluded_agents"`
}

type ZendeskConfig struct {
	Domain   string `yaml:"domain"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
}

type SlackConfig struct {
	BotToken      string `yaml:"bot_token"`
	SigningSecret string `yaml:"signing_secret"`
	HelpChannel   string `yaml:"help_channel"`
	LeadsChannel  string `yaml:"leads_channel"`
	// Outbound API calls allowed per minute. Zero uses the default.
	CallsPerMinute int `yaml:"calls_per_minute"`
}

type KBConfig struct {
	BaseURL  string `yaml:"base_url"`
	Email    string `yaml:"email"`
	APIToken string `yaml:"api_token"`
	AgentID  string `yaml:"agent_id"`
	OrgID    string `yaml:"org_id"`
}

type StoreConfig struct {
	Driver string `yaml:"driver"`
	DSN    string `yaml:"dsn"`
}

type ServerConfig struct {
	Addr string `yaml:"addr"`
}

func (c MonitorConfig) Interval() time.Duration {
	if c.IntervalSec <= 0 {
		return defaultIntervalSec * time.Second
	}
	return time.Duration(c.IntervalSec) * time.Second
}

func (c MonitorConfig) Threshold() time.Duration {
	if c.ThresholdSec <= 0 {
		return defaultThresholdSec * time.Second
	}
	return time.Duration(c.ThresholdSec) * time.Second
}

func Load(ctx context.Context, path string) (Config, error) {
	var cfg Config

	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return cfg, fmt.Errorf("open config %q: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(f)
	if err != nil {
		return cfg, fmt.Errorf("read config %q: %w", path, err)
	}

	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %q: %w", path, err)
	}

	cfg.applyDefaults()
	return cfg, nil
}

func LoadFromEnv(ctx context.Context) (Config, error) {
	path := os.Getenv(envConfigPath)
	if path == "" {
		path = DefaultConfigPath
	}
	return Load(ctx, path)
}

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = defaultServerAddr
	}
	if c.Store.Driver == "" {
		c.Store.Driver = defaultStoreDriver
	}
}

// Validate reports configuration errors that must abort startup. Monitoring
// cannot run without provider credentials, and negative cadence values would
// otherwise be silently replaced.
func (c Config) Validate() error {
	if c.Monitor.IntervalSec < 0 {
		return fmt.Errorf("monitor interval_sec must not be negative, got %d", c.Monitor.IntervalSec)
	}
	if c.Monitor.ThresholdSec < 0 {
		return fmt.Errorf("monitor threshold_sec must not be negative, got %d", c.Monitor.ThresholdSec)
	}
	if c.Zendesk.Domain == "" {
		return fmt.Errorf("zendesk domain is required")
	}
	if c.Zendesk.Email == "" || c.Zendesk.APIToken == "" {
		return fmt.Errorf("zendesk email and api_token are required")
	}
	if c.Slack.BotToken == "" {
		return fmt.Errorf("slack bot_token is required")
	}
	if c.Slack.SigningSecret == "" {
		return fmt.Errorf("slack signing_secret is required")
	}
	if c.Slack.LeadsChannel == "" {
		return fmt.Errorf("slack leads_channel is required")
	}
	switch c.Store.Driver {
	case "memory":
	case "postgres":
		if c.Store.DSN == "" {
			return fmt.Errorf("store dsn is required for the postgres driver")
		}
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	return nil
}

// ExcludedSet converts the configured exclusion list into a lookup set.
func (c MonitorConfig) ExcludedSet() map[int64]struct{} {
	if len(c.ExcludedAgents) == 0 {
		return map[int64]struct{}{}
	}
	set := make(map[int64]struct{}, len(c.ExcludedAgents))
	for _, id := range c.ExcludedAgents {
		set[id] = struct{}{}
	}
	return set
}
