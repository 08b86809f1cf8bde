// ABOUTME: Tests for configuration loading and parsing
// ABOUTME: Covers YAML and TOML loading, defaults, env var expansion, toggles and validation

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func clearToggles(t *testing.T) {
	t.Helper()
	t.Setenv(EnvPrimaryEnabled, "")
	t.Setenv(EnvSecondaryEnabled, "")
}

func TestLoad_ValidConfig(t *testing.T) {
	clearToggles(t)
	configPath := writeConfig(t, "config.yaml", `
server:
  http_addr: "0.0.0.0:8080"
  grpc_addr: "0.0.0.0:50051"

database:
  path: "./test.db"

routing:
  primary_enabled: false
  secondary_enabled: true
  max_iterations: 6

recall:
  cache_ttl: "30s"
  fast_limit: 4

sessions:
  expiry: "24h"
  stale_after: "15m"

workers:
  enabled: true
  schedule: "@every 1m"

backend:
  base_url: "http://backend:9090"
  timeout: "5s"

logging:
  level: "debug"
  format: "json"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.HTTPAddr != "0.0.0.0:8080" {
		t.Errorf("Server.HTTPAddr = %q, want %q", cfg.Server.HTTPAddr, "0.0.0.0:8080")
	}
	if cfg.Database.Path != "./test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "./test.db")
	}
	if cfg.Routing.PrimaryEnabled || !cfg.Routing.SecondaryEnabled {
		t.Errorf("Routing flags = %+v, want primary off and secondary on", cfg.Routing)
	}
	if cfg.Routing.MaxIterations != 6 {
		t.Errorf("Routing.MaxIterations = %d, want 6", cfg.Routing.MaxIterations)
	}
	if cfg.Recall.CacheTTL != 30*time.Second {
		t.Errorf("Recall.CacheTTL = %v, want 30s", cfg.Recall.CacheTTL)
	}
	if cfg.Recall.FastLimit != 4 {
		t.Errorf("Recall.FastLimit = %d, want 4", cfg.Recall.FastLimit)
	}
	if cfg.Recall.SmartLimit != 20 {
		t.Errorf("Recall.SmartLimit = %d, want default 20", cfg.Recall.SmartLimit)
	}
	if cfg.Sessions.Expiry != 24*time.Hour {
		t.Errorf("Sessions.Expiry = %v, want 24h", cfg.Sessions.Expiry)
	}
	if cfg.Sessions.StaleAfter != 15*time.Minute {
		t.Errorf("Sessions.StaleAfter = %v, want 15m", cfg.Sessions.StaleAfter)
	}
	if cfg.Backend.Timeout != 5*time.Second {
		t.Errorf("Backend.Timeout = %v, want 5s", cfg.Backend.Timeout)
	}
	if cfg.Logging.Format != "json" {
		t.Errorf("Logging.Format = %q, want json", cfg.Logging.Format)
	}
}

func TestLoad_Defaults(t *testing.T) {
	clearToggles(t)
	configPath := writeConfig(t, "config.yaml", `
database:
  path: "./test.db"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if !cfg.Routing.PrimaryEnabled {
		t.Error("primary path should default to enabled")
	}
	if cfg.Routing.SecondaryEnabled {
		t.Error("secondary path should default to disabled")
	}
	if cfg.Routing.MaxIterations != 10 {
		t.Errorf("Routing.MaxIterations = %d, want 10", cfg.Routing.MaxIterations)
	}
	if cfg.Recall.CacheTTL != 2*time.Minute {
		t.Errorf("Recall.CacheTTL = %v, want 2m", cfg.Recall.CacheTTL)
	}
	if cfg.Sessions.Expiry != 7*24*time.Hour {
		t.Errorf("Sessions.Expiry = %v, want 168h", cfg.Sessions.Expiry)
	}
	if cfg.Sessions.StaleAfter != 10*time.Minute {
		t.Errorf("Sessions.StaleAfter = %v, want 10m", cfg.Sessions.StaleAfter)
	}
	if cfg.Workflow.MaxParallelTools != 4 {
		t.Errorf("Workflow.MaxParallelTools = %d, want 4", cfg.Workflow.MaxParallelTools)
	}
	if cfg.Workers.Schedule != "*/5 * * * *" {
		t.Errorf("Workers.Schedule = %q", cfg.Workers.Schedule)
	}
}

func TestLoad_TOML(t *testing.T) {
	clearToggles(t)
	configPath := writeConfig(t, "gateway.toml", `
[server]
http_addr = "127.0.0.1:9000"

[database]
path = "/tmp/muse.db"

[routing]
secondary_enabled = true

[sessions]
stale_after = "30m"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Server.HTTPAddr != "127.0.0.1:9000" {
		t.Errorf("Server.HTTPAddr = %q", cfg.Server.HTTPAddr)
	}
	if !cfg.Routing.PrimaryEnabled || !cfg.Routing.SecondaryEnabled {
		t.Errorf("Routing flags = %+v, want both enabled", cfg.Routing)
	}
	if cfg.Sessions.StaleAfter != 30*time.Minute {
		t.Errorf("Sessions.StaleAfter = %v, want 30m", cfg.Sessions.StaleAfter)
	}
}

func TestLoad_EnvVarExpansion(t *testing.T) {
	clearToggles(t)
	t.Setenv("TEST_MUSE_SECRET", "s3cret")
	t.Setenv("TEST_MUSE_DB", "/var/lib/muse.db")

	configPath := writeConfig(t, "config.yaml", `
database:
  path: "${TEST_MUSE_DB}"
auth:
  jwt_secret: "${TEST_MUSE_SECRET}"
backend:
  token: "${TEST_MUSE_UNSET}"
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Database.Path != "/var/lib/muse.db" {
		t.Errorf("Database.Path = %q", cfg.Database.Path)
	}
	if cfg.Auth.JWTSecret != "s3cret" {
		t.Errorf("Auth.JWTSecret = %q", cfg.Auth.JWTSecret)
	}
	if cfg.Backend.Token != "" {
		t.Errorf("unset variables should expand to empty, got %q", cfg.Backend.Token)
	}
}

func TestLoad_EnvToggles(t *testing.T) {
	tests := []struct {
		name      string
		primary   string
		secondary string
		wantP     bool
		wantS     bool
	}{
		{"unset keeps file values", "", "", true, false},
		{"disable primary", "false", "", false, false},
		{"enable secondary", "", "1", true, true},
		{"both", "0", "true", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(EnvPrimaryEnabled, tt.primary)
			t.Setenv(EnvSecondaryEnabled, tt.secondary)
			configPath := writeConfig(t, "config.yaml", "database:\n  path: x.db\n")

			cfg, err := Load(configPath)
			if err != nil {
				t.Fatalf("Load() error = %v", err)
			}
			if cfg.Routing.PrimaryEnabled != tt.wantP || cfg.Routing.SecondaryEnabled != tt.wantS {
				t.Errorf("Routing = %+v, want primary=%v secondary=%v", cfg.Routing, tt.wantP, tt.wantS)
			}
		})
	}
}

func TestLoad_InvalidEnvToggle(t *testing.T) {
	t.Setenv(EnvPrimaryEnabled, "maybe")
	t.Setenv(EnvSecondaryEnabled, "")
	configPath := writeConfig(t, "config.yaml", "database:\n  path: x.db\n")

	_, err := Load(configPath)
	if err == nil || !strings.Contains(err.Error(), EnvPrimaryEnabled) {
		t.Fatalf("Load() error = %v, want mention of %s", err, EnvPrimaryEnabled)
	}
}

func TestLoad_ValidationErrors(t *testing.T) {
	clearToggles(t)
	tests := []struct {
		name    string
		content string
		wantErr string
	}{
		{"missing database", "database:\n  path: \"\"\n", "database.path"},
		{"zero iterations", "routing:\n  max_iterations: 0\n", "max_iterations"},
		{"bad duration", "recall:\n  cache_ttl: soon\n", "recall.cache_ttl"},
		{"bad schedule", "workers:\n  enabled: true\n  schedule: \"every tuesday\"\n", "workers.schedule"},
		{"bad log format", "logging:\n  format: xml\n", "logging.format"},
		{"bad yaml", "server: [", "parsing config file"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, "config.yaml", tt.content))
			if err == nil {
				t.Fatal("expected error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("error = %v, want it to mention %q", err, tt.wantErr)
			}
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestMarshal_RoundTrip(t *testing.T) {
	clearToggles(t)
	data, err := Default().Marshal()
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if !strings.Contains(string(data), "max_iterations: 10") {
		t.Errorf("rendered config missing routing defaults:\n%s", data)
	}

	cfg, err := Load(writeConfig(t, "config.yaml", string(data)))
	if err != nil {
		t.Fatalf("Load() of rendered default error = %v", err)
	}
	if cfg.Sessions.Expiry != 7*24*time.Hour {
		t.Errorf("Sessions.Expiry = %v after round trip", cfg.Sessions.Expiry)
	}
}

func TestDefaultPath(t *testing.T) {
	t.Setenv(EnvConfigPath, "/etc/muse/custom.yaml")
	if got := DefaultPath(); got != "/etc/muse/custom.yaml" {
		t.Errorf("DefaultPath() = %q", got)
	}

	t.Setenv(EnvConfigPath, "")
	t.Setenv("XDG_CONFIG_HOME", "/xdg")
	if got := DefaultPath(); got != filepath.Join("/xdg", "muse", "gateway.yaml") {
		t.Errorf("DefaultPath() = %q", got)
	}
}
