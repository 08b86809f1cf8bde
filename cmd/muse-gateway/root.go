// ABOUTME: Root cobra command and shared flags for muse-gateway
// ABOUTME: Resolves the config path from --config, MUSE_CONFIG or the XDG default

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/muse-gateway/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "muse-gateway",
		Short:         "Orchestration gateway for the muse assistant",
		Long:          "muse-gateway routes user messages through context recall, the plan/execute/summarize/respond workflow and the fallback orchestrator.",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "config file (default $MUSE_CONFIG or ~/.config/muse/gateway.yaml)")

	rootCmd.AddCommand(
		newServeCmd(opts),
		newInitCmd(opts),
		newHealthCmd(opts),
		newTokenCmd(opts),
		newVersionCmd(),
	)
	return rootCmd
}

func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.DefaultPath()
}

func (o *rootOptions) load() (*config.Config, string, error) {
	path := o.path()
	cfg, err := config.Load(path)
	if err != nil {
		return nil, path, fmt.Errorf("loading config: %w", err)
	}
	return cfg, path, nil
}
