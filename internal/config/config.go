// ABOUTME: Configuration loading and parsing for webex-gateway
// ABOUTME: Supports YAML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete webex-gateway configuration
type Config struct {
	Webex   WebexConfig   `yaml:"webex"`
	Ingress IngressConfig `yaml:"ingress"`
	Ledger  LedgerConfig  `yaml:"ledger"`
	Logging LoggingConfig `yaml:"logging"`
}

// WebexConfig holds Webex API credentials and autojoin lists
type WebexConfig struct {
	AccessToken string `yaml:"access_token"`
	// APIURL overrides the default Webex API base URL (useful for tests)
	APIURL string `yaml:"api_url"`
	// BaseURL is the public URL Webex uses to reach the webhook ingress,
	// typically a reverse proxy in front of the loopback listener
	BaseURL string `yaml:"base_url"`
	// DefaultDomain is appended to bare local-parts in email addresses
	DefaultDomain string `yaml:"default_domain"`
	// AutojoinRooms is a comma-separated list of room name substrings
	AutojoinRooms string `yaml:"autojoin_rooms"`
	// AutojoinDirects is a comma-separated list of emails or local-parts
	AutojoinDirects string `yaml:"autojoin_directs"`
}

// IngressConfig holds the webhook listener configuration
type IngressConfig struct {
	// ListenAddr is the loopback address the ingress binds to
	ListenAddr string `yaml:"listen_addr"`

	ReadTimeout time.Duration `yaml:"-"`

	// Raw string value for YAML unmarshaling
	ReadTimeoutRaw string `yaml:"read_timeout"`
}

// LedgerConfig holds the optional message ledger configuration
type LedgerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Defaults applied when the config file leaves fields empty.
const (
	DefaultListenAddr  = "127.0.0.1:8080"
	DefaultReadTimeout = 300 * time.Millisecond
)

// Load reads a configuration file from the given path and returns a parsed Config.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw YAML content
	expandedData := expandEnvVars(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expandedData), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	if err := parseDurations(&cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	re := regexp.MustCompile(`\$\{([^}]+)\}`)

	return re.ReplaceAllStringFunc(s, func(match string) string {
		varName := re.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyDefaults fills in defaults for optional fields.
func (c *Config) applyDefaults() {
	if c.Ingress.ListenAddr == "" {
		c.Ingress.ListenAddr = DefaultListenAddr
	}
	if c.Ingress.ReadTimeout == 0 {
		c.Ingress.ReadTimeout = DefaultReadTimeout
	}
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Webex.AccessToken == "" {
		return fmt.Errorf("webex.access_token is required")
	}
	if c.Webex.BaseURL == "" {
		return fmt.Errorf("webex.base_url is required (public URL for webhook delivery)")
	}
	if c.Ledger.Enabled && c.Ledger.Path == "" {
		return fmt.Errorf("ledger.path is required when ledger is enabled")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Ingress.ReadTimeoutRaw != "" {
		cfg.Ingress.ReadTimeout, err = time.ParseDuration(cfg.Ingress.ReadTimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing read_timeout %q: %w", cfg.Ingress.ReadTimeoutRaw, err)
		}
	}

	return nil
}

// SplitList splits a comma-separated config value into trimmed, non-empty entries.
func SplitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}
