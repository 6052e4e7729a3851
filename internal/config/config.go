package config

import (
	"bytes"
	"fmt"
	"net/url"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"
)

// RuleConfig maps windows on a display to a scene. Pattern is a regular
// expression searched case-insensitively anywhere within the window title.
type RuleConfig struct {
	Display int    `yaml:"display"`
	Pattern string `yaml:"pattern"`
	Scene   string `yaml:"scene"`
}

// EndpointConfig holds connection parameters for the remote scene endpoint.
type EndpointConfig struct {
	URL      string `yaml:"url"`
	Password string `yaml:"password"`
}

// PollConfig controls the scheduler cadence. IntervalMs is the base delay
// between cycles; MaxBackoff caps the backoff multiple applied while the
// resolved state is stable.
type PollConfig struct {
	IntervalMs int `yaml:"interval_ms"`
	MaxBackoff int `yaml:"max_backoff"`
}

// WatchConfig filters which windows the snapshot provider reports. Classes
// selects applications of interest by WM_CLASS regex; ExcludeTitles drops
// known non-informative shell windows by title regex.
type WatchConfig struct {
	Classes       []string `yaml:"classes"`
	ExcludeTitles []string `yaml:"exclude_titles"`
}

// Config is the full application configuration. Loaded once at startup and
// never mutated afterwards.
type Config struct {
	Endpoint   EndpointConfig `yaml:"endpoint"`
	Poll       PollConfig     `yaml:"poll"`
	Rules      []RuleConfig   `yaml:"rules"`
	Watch      WatchConfig    `yaml:"watch"`
	ServerPort int            `yaml:"server_port"`
	LogLevel   string         `yaml:"log_level"`
}

// Default returns the default configuration. It carries no rules; a usable
// config must declare at least one.
func Default() *Config {
	return &Config{
		Endpoint: EndpointConfig{
			URL: "ws://localhost:4455",
		},
		Poll: PollConfig{
			IntervalMs: 1000,
			MaxBackoff: 4,
		},
		ServerPort: 0,
		LogLevel:   "info",
	}
}

// Load reads and validates the configuration file at path. Unknown fields,
// malformed patterns, and missing required fields are all load-time errors.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := Default()
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks every field that can fail at runtime so that a bad config
// aborts startup instead of surfacing mid-run.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Endpoint.URL)
	if err != nil {
		return fmt.Errorf("endpoint.url: %w", err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return fmt.Errorf("endpoint.url: scheme must be ws or wss, got %q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("endpoint.url: missing host")
	}

	if c.Poll.IntervalMs <= 0 {
		return fmt.Errorf("poll.interval_ms must be positive, got %d", c.Poll.IntervalMs)
	}
	if c.Poll.MaxBackoff < 1 {
		return fmt.Errorf("poll.max_backoff must be at least 1, got %d", c.Poll.MaxBackoff)
	}

	if len(c.Rules) == 0 {
		return fmt.Errorf("at least one rule is required")
	}
	for i, r := range c.Rules {
		if r.Display < 0 {
			return fmt.Errorf("rule %d: display must not be negative", i)
		}
		if r.Pattern == "" {
			return fmt.Errorf("rule %d: pattern is required", i)
		}
		if _, err := regexp.Compile("(?i)" + r.Pattern); err != nil {
			return fmt.Errorf("rule %d: invalid pattern %q: %w", i, r.Pattern, err)
		}
		if r.Scene == "" {
			return fmt.Errorf("rule %d: scene is required", i)
		}
	}

	for i, p := range c.Watch.Classes {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("watch.classes[%d]: invalid pattern %q: %w", i, p, err)
		}
	}
	for i, p := range c.Watch.ExcludeTitles {
		if _, err := regexp.Compile(p); err != nil {
			return fmt.Errorf("watch.exclude_titles[%d]: invalid pattern %q: %w", i, p, err)
		}
	}

	if c.ServerPort < 0 || c.ServerPort > 65535 {
		return fmt.Errorf("server_port out of range: %d", c.ServerPort)
	}
	return nil
}

// PollInterval returns the base polling interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.Poll.IntervalMs) * time.Millisecond
}

// Save writes the configuration to path in YAML form.
func (c *Config) Save(path string) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}
