// ABOUTME: Configuration loading and parsing for muse-gateway
// ABOUTME: Supports YAML or TOML files with environment variable expansion, duration parsing and env toggles

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/robfig/cron/v3"
	"gopkg.in/yaml.v3"
)

// Environment toggles that override the routing section.
const (
	EnvPrimaryEnabled   = "PRIMARY_GENERATION_ENABLED"
	EnvSecondaryEnabled = "SECONDARY_GENERATION_ENABLED"
	EnvConfigPath       = "MUSE_CONFIG"
)

// Config represents the complete muse-gateway configuration
type Config struct {
	Server   ServerConfig   `yaml:"server" toml:"server"`
	Database DatabaseConfig `yaml:"database" toml:"database"`
	Auth     AuthConfig     `yaml:"auth" toml:"auth"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
	Routing  RoutingConfig  `yaml:"routing" toml:"routing"`
	Recall   RecallConfig   `yaml:"recall" toml:"recall"`
	Sessions SessionsConfig `yaml:"sessions" toml:"sessions"`
	Workflow WorkflowConfig `yaml:"workflow" toml:"workflow"`
	Workers  WorkersConfig  `yaml:"workers" toml:"workers"`
	Backend  BackendConfig  `yaml:"backend" toml:"backend"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
	// GRPCAddr serves the gRPC health service. Empty disables it.
	GRPCAddr string `yaml:"grpc_addr" toml:"grpc_addr"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// AuthConfig holds authentication configuration. An empty secret disables JWT auth.
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// RoutingConfig holds the generation path flags
type RoutingConfig struct {
	PrimaryEnabled   bool `yaml:"primary_enabled" toml:"primary_enabled"`
	SecondaryEnabled bool `yaml:"secondary_enabled" toml:"secondary_enabled"`
	MaxIterations    int  `yaml:"max_iterations" toml:"max_iterations"`
}

// RecallConfig tunes the context provider
type RecallConfig struct {
	CacheTTL    time.Duration `yaml:"-" toml:"-"`
	CacheTTLRaw string        `yaml:"cache_ttl" toml:"cache_ttl"`
	CacheSize   int           `yaml:"cache_size" toml:"cache_size"`
	FastLimit   int           `yaml:"fast_limit" toml:"fast_limit"`
	SmartLimit  int           `yaml:"smart_limit" toml:"smart_limit"`
}

// SessionsConfig tunes tool session expiry and stale-connection reporting
type SessionsConfig struct {
	Expiry     time.Duration `yaml:"-" toml:"-"`
	StaleAfter time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	ExpiryRaw     string `yaml:"expiry" toml:"expiry"`
	StaleAfterRaw string `yaml:"stale_after" toml:"stale_after"`
}

// WorkflowConfig bounds the generation pipeline. Budgets are in characters.
type WorkflowConfig struct {
	MaxParallelTools int `yaml:"max_parallel_tools" toml:"max_parallel_tools"`
	ToolOutputBudget int `yaml:"tool_output_budget" toml:"tool_output_budget"`
	SummaryBudget    int `yaml:"summary_budget" toml:"summary_budget"`
	PlanBudget       int `yaml:"plan_budget" toml:"plan_budget"`
}

// WorkersConfig controls the background worker tick
type WorkersConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	Schedule string `yaml:"schedule" toml:"schedule"`
}

// BackendConfig points at the service implementing the model and tool collaborators
type BackendConfig struct {
	BaseURL    string        `yaml:"base_url" toml:"base_url"`
	Token      string        `yaml:"token" toml:"token"`
	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// Default returns a Config with every documented default filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			HTTPAddr: "127.0.0.1:8080",
			GRPCAddr: "127.0.0.1:50051",
		},
		Database: DatabaseConfig{Path: "muse-gateway.db"},
		Logging:  LoggingConfig{Level: "info", Format: "text"},
		Routing: RoutingConfig{
			PrimaryEnabled:   true,
			SecondaryEnabled: false,
			MaxIterations:    10,
		},
		Recall: RecallConfig{
			CacheTTLRaw: "2m",
			CacheSize:   10000,
			FastLimit:   8,
			SmartLimit:  20,
		},
		Sessions: SessionsConfig{
			ExpiryRaw:     "168h",
			StaleAfterRaw: "10m",
		},
		Workflow: WorkflowConfig{
			MaxParallelTools: 4,
			ToolOutputBudget: 8000,
			SummaryBudget:    4000,
			PlanBudget:       4000,
		},
		Workers: WorkersConfig{
			Enabled:  false,
			Schedule: "*/5 * * * *",
		},
		Backend: BackendConfig{
			BaseURL:    "http://127.0.0.1:9090",
			TimeoutRaw: "60s",
		},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML. Keys missing
// from the file keep their defaults. Environment variables in the format ${VAR_NAME}
// are expanded, and the routing toggles may be overridden from the environment.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Finalize applies environment overrides, parses durations and validates.
func (c *Config) Finalize() error {
	if err := applyEnvToggles(c); err != nil {
		return fmt.Errorf("reading environment: %w", err)
	}
	if err := parseDurations(c); err != nil {
		return fmt.Errorf("parsing durations: %w", err)
	}
	if err := c.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	return nil
}

// Marshal renders the config as YAML, as written by the init command.
func (c *Config) Marshal() ([]byte, error) {
	return yaml.Marshal(c)
}

// DefaultPath returns the path to the gateway config file.
// Priority: MUSE_CONFIG env var > XDG_CONFIG_HOME/muse/gateway.yaml > ~/.config/muse/gateway.yaml
func DefaultPath() string {
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "gateway.yaml"
		}
		configDir = filepath.Join(homeDir, ".config")
	}
	return filepath.Join(configDir, "muse", "gateway.yaml")
}

var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// applyEnvToggles overrides the routing flags from the environment when set.
func applyEnvToggles(c *Config) error {
	toggles := []struct {
		name string
		dst  *bool
	}{
		{EnvPrimaryEnabled, &c.Routing.PrimaryEnabled},
		{EnvSecondaryEnabled, &c.Routing.SecondaryEnabled},
	}
	for _, tg := range toggles {
		raw, ok := os.LookupEnv(tg.name)
		if !ok || strings.TrimSpace(raw) == "" {
			continue
		}
		v, err := strconv.ParseBool(strings.TrimSpace(raw))
		if err != nil {
			return fmt.Errorf("%s=%q is not a boolean", tg.name, raw)
		}
		*tg.dst = v
	}
	return nil
}

// Validate checks that all required configuration fields are present and valid.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	if c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}
	if c.Routing.MaxIterations < 1 {
		return fmt.Errorf("routing.max_iterations must be at least 1")
	}
	if c.Workflow.MaxParallelTools < 1 {
		return fmt.Errorf("workflow.max_parallel_tools must be at least 1")
	}
	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format must be text or json, got %q", c.Logging.Format)
	}
	if c.Workers.Enabled {
		if _, err := cron.ParseStandard(c.Workers.Schedule); err != nil {
			return fmt.Errorf("workers.schedule %q: %w", c.Workers.Schedule, err)
		}
	}
	if c.Backend.BaseURL == "" {
		return fmt.Errorf("backend.base_url is required")
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	fields := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"recall.cache_ttl", cfg.Recall.CacheTTLRaw, &cfg.Recall.CacheTTL},
		{"sessions.expiry", cfg.Sessions.ExpiryRaw, &cfg.Sessions.Expiry},
		{"sessions.stale_after", cfg.Sessions.StaleAfterRaw, &cfg.Sessions.StaleAfter},
		{"backend.timeout", cfg.Backend.TimeoutRaw, &cfg.Backend.Timeout},
	}
	for _, f := range fields {
		if f.raw == "" {
			continue
		}
		d, err := time.ParseDuration(f.raw)
		if err != nil {
			return fmt.Errorf("parsing %s %q: %w", f.key, f.raw, err)
		}
		*f.dst = d
	}
	return nil
}
