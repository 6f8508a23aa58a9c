// Package config loads the YAML file describing which tracker to query and
// how to report on it.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/raywall/defect-metrics/analyzer"
)

// Default values applied when fields are absent from the config file.
const (
	DefaultBackend        = "bugzilla"
	DefaultBugzillaURL    = "https://bugzilla.mozilla.org/"
	DefaultQueryFormat    = "advanced"
	DefaultBugType        = "defect"
	DefaultAPIKeyHeader   = analyzer.DefaultAPIKeyHeader
	DefaultGitHubBugLabel = "bug"
	DefaultPageLimit      = analyzer.DefaultPageLimit
	DefaultGitHubLimit    = analyzer.MaxGitHubPageLimit
	DefaultHTTPTimeout    = 30 * time.Second
	DefaultLogLevel       = "info"
)

// DefaultWindows are the report windows, in weeks, used when none are set.
var DefaultWindows = []int{4, 12, 26, 52}

// Config is the top-level configuration.
type Config struct {
	// Backend selects the tracker: bugzilla | github.
	Backend string `yaml:"backend"`

	Bugzilla BugzillaConfig `yaml:"bugzilla"`
	GitHub   GitHubConfig   `yaml:"github"`

	// PageLimit is the number of issues requested per page.
	PageLimit int `yaml:"page_limit"`

	// HTTPTimeout bounds every request to the tracker.
	HTTPTimeout time.Duration `yaml:"http_timeout"`

	// Windows lists the trailing spans, in weeks, the report covers.
	Windows []int `yaml:"windows"`

	LogLevel string `yaml:"log_level"`
}

// BugzillaConfig holds the query vocabulary and credentials for Bugzilla.
type BugzillaConfig struct {
	BaseURL       string   `yaml:"base_url"`
	QueryFormat   string   `yaml:"query_format"`
	IncludeFields []string `yaml:"include_fields"`
	BugType       string   `yaml:"bug_type"`
	Team          string   `yaml:"team"`
	Products      []string `yaml:"products"`
	Components    []string `yaml:"components"`

	// User is the account looked up before authenticated searches.
	User string `yaml:"user"`
	// APIKeyEnv is the name of the environment variable holding the API key.
	APIKeyEnv string `yaml:"api_key_env"`
	// APIKeyHeader is the request header the key is sent in.
	APIKeyHeader string `yaml:"api_key_header"`
}

// APIKey returns the API key resolved from the environment.
func (b BugzillaConfig) APIKey() string {
	if b.APIKeyEnv == "" {
		return ""
	}
	return os.Getenv(b.APIKeyEnv)
}

// GitHubConfig selects a repository whose issues are treated as defects.
type GitHubConfig struct {
	Owner string `yaml:"owner"`
	Repo  string `yaml:"repo"`
	// TokenEnv is the name of the environment variable holding the token.
	TokenEnv string `yaml:"token_env"`
	// BugLabel marks issues counted as defects.
	BugLabel string `yaml:"bug_label"`
	// SeverityPrefix is prepended to S1..S4 to form severity label names.
	SeverityPrefix string `yaml:"severity_prefix"`
}

// Token returns the GitHub token resolved from the environment.
func (g GitHubConfig) Token() string {
	if g.TokenEnv == "" {
		return ""
	}
	return os.Getenv(g.TokenEnv)
}

// Load reads and parses the YAML config file at path.
// Missing optional fields are filled with defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read file: %w", err)
	}
	return Parse(data)
}

// Parse decodes, defaults and validates raw YAML.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: parse yaml: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}

func (c *Config) applyDefaults() {
	if c.Backend == "" {
		c.Backend = DefaultBackend
	}
	if c.Bugzilla.BaseURL == "" {
		c.Bugzilla.BaseURL = DefaultBugzillaURL
	}
	if c.Bugzilla.QueryFormat == "" {
		c.Bugzilla.QueryFormat = DefaultQueryFormat
	}
	if len(c.Bugzilla.IncludeFields) == 0 {
		c.Bugzilla.IncludeFields = []string{"severity"}
	}
	if c.Bugzilla.BugType == "" {
		c.Bugzilla.BugType = DefaultBugType
	}
	if c.Bugzilla.APIKeyHeader == "" {
		c.Bugzilla.APIKeyHeader = DefaultAPIKeyHeader
	}
	if c.GitHub.BugLabel == "" {
		c.GitHub.BugLabel = DefaultGitHubBugLabel
	}
	if c.PageLimit == 0 {
		c.PageLimit = DefaultPageLimit
		if c.Backend == "github" {
			c.PageLimit = DefaultGitHubLimit
		}
	}
	if c.HTTPTimeout == 0 {
		c.HTTPTimeout = DefaultHTTPTimeout
	}
	if len(c.Windows) == 0 {
		c.Windows = append([]int(nil), DefaultWindows...)
	}
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
}

// Validate reports the first invalid setting.
func (c *Config) Validate() error {
	switch c.Backend {
	case "bugzilla":
	case "github":
		if c.GitHub.Owner == "" || c.GitHub.Repo == "" {
			return fmt.Errorf("config: github backend requires github.owner and github.repo")
		}
		if c.PageLimit > analyzer.MaxGitHubPageLimit {
			return fmt.Errorf("config: page_limit %d exceeds github maximum of %d", c.PageLimit, analyzer.MaxGitHubPageLimit)
		}
	default:
		return fmt.Errorf("config: unsupported backend %q", c.Backend)
	}
	if c.PageLimit < 0 {
		return fmt.Errorf("config: page_limit must be positive, got %d", c.PageLimit)
	}
	if c.HTTPTimeout < 0 {
		return fmt.Errorf("config: http_timeout must not be negative")
	}
	for _, w := range c.Windows {
		if w <= 0 {
			return fmt.Errorf("config: window of %d weeks is not positive", w)
		}
	}
	return nil
}
