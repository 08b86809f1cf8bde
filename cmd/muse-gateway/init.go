// ABOUTME: init command that writes a starter config file
// ABOUTME: Generates a random JWT secret and creates the data directory

package main

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/muse-gateway/internal/config"
)

type initOptions struct {
	force      bool
	noAuth     bool
	httpAddr   string
	grpcAddr   string
	dbPath     string
	backendURL string
	workers    bool
}

// dataPath returns the muse data directory.
// Priority: XDG_DATA_HOME/muse > ~/.local/share/muse
func dataPath() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data"
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}
	return filepath.Join(dataDir, "muse")
}

func newInitCmd(root *rootOptions) *cobra.Command {
	defaults := config.Default()
	opts := &initOptions{}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Write a starter config file",
		Long:  "Writes a config file with defaults and a freshly generated JWT secret. Files ending in .toml are written as TOML, anything else as YAML.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd, root.path(), opts)
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.force, "force", false, "overwrite an existing config file")
	f.BoolVar(&opts.noAuth, "no-auth", false, "leave jwt_secret empty and disable authentication")
	f.StringVar(&opts.httpAddr, "http-addr", defaults.Server.HTTPAddr, "HTTP listen address")
	f.StringVar(&opts.grpcAddr, "grpc-addr", defaults.Server.GRPCAddr, "gRPC health listen address (empty disables)")
	f.StringVar(&opts.dbPath, "db", filepath.Join(dataPath(), "gateway.db"), "SQLite database path")
	f.StringVar(&opts.backendURL, "backend-url", defaults.Backend.BaseURL, "model backend base URL")
	f.BoolVar(&opts.workers, "workers", false, "enable the background worker scheduler")
	return cmd
}

func runInit(cmd *cobra.Command, path string, opts *initOptions) error {
	if _, err := os.Stat(path); err == nil && !opts.force {
		return fmt.Errorf("%s already exists (use --force to overwrite)", path)
	}

	cfg := config.Default()
	cfg.Server.HTTPAddr = opts.httpAddr
	cfg.Server.GRPCAddr = opts.grpcAddr
	cfg.Database.Path = opts.dbPath
	cfg.Backend.BaseURL = opts.backendURL
	cfg.Workers.Enabled = opts.workers
	if !opts.noAuth {
		secret := make([]byte, 32)
		if _, err := rand.Read(secret); err != nil {
			return fmt.Errorf("generating JWT secret: %w", err)
		}
		cfg.Auth.JWTSecret = base64.StdEncoding.EncodeToString(secret)
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}

	data, err := encodeConfig(cfg, path)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	dataDir := filepath.Dir(cfg.Database.Path)
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return fmt.Errorf("creating data directory: %w", err)
	}

	out := cmd.OutOrStdout()
	green := color.New(color.FgGreen)
	green.Fprintf(out, "  ✓ Created config: %s\n", path)
	green.Fprintf(out, "  ✓ Data directory: %s\n", dataDir)
	if opts.noAuth {
		color.New(color.FgYellow).Fprintln(out, "  ! Authentication disabled")
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "  To start the server:")
	fmt.Fprintln(out, "    muse-gateway serve")
	return nil
}

func encodeConfig(cfg *config.Config, path string) ([]byte, error) {
	header := "# muse-gateway configuration\n# Generated by muse-gateway init\n\n"

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		var buf bytes.Buffer
		buf.WriteString(header)
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding config: %w", err)
		}
		return buf.Bytes(), nil
	}

	data, err := cfg.Marshal()
	if err != nil {
		return nil, fmt.Errorf("encoding config: %w", err)
	}
	return append([]byte(header), data...), nil
}
