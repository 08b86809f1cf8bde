// ABOUTME: serve command that loads config, prints the banner and runs the gateway
// ABOUTME: Blocks until SIGINT/SIGTERM, then shuts down gracefully

package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/muse-gateway/internal/gateway"
)

const banner = `
 _ __ ___  _   _ ___  ___        __ _  __ _| |_ _____      ____ _ _   _
| '_ ' _ \| | | / __|/ _ \_____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
| | | | | | |_| \__ \  __/_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
|_| |_| |_|\__,_|___/\___|      \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                                |___/                             |___/
`

func newServeCmd(root *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the gateway server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configPath, err := root.load()
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			printBanner(out)

			green := color.New(color.FgGreen)
			yellow := color.New(color.FgYellow)
			line := func(label, value string) {
				green.Fprint(out, "    ▶ ")
				fmt.Fprintf(out, "%-10s %s\n", label+":", value)
			}
			line("Config", configPath)
			line("HTTP", cfg.Server.HTTPAddr)
			if cfg.Server.GRPCAddr != "" {
				line("gRPC", cfg.Server.GRPCAddr)
			}
			line("Backend", cfg.Backend.BaseURL)
			line("Routing", routingSummary(cfg.Routing.PrimaryEnabled, cfg.Routing.SecondaryEnabled))
			if cfg.Workers.Enabled {
				line("Workers", cfg.Workers.Schedule)
			}
			if cfg.Auth.JWTSecret == "" {
				yellow.Fprintln(out, "    ! auth disabled: requests identify users by user_id")
			}
			fmt.Fprintln(out)

			logger := setupLogger(cfg.Logging, out)
			logger.Info("starting muse-gateway",
				"config", configPath,
				"http_addr", cfg.Server.HTTPAddr,
				"grpc_addr", cfg.Server.GRPCAddr,
				"version", version,
			)

			gw, err := gateway.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("creating gateway: %w", err)
			}
			return gw.Run(cmd.Context())
		},
	}
}

func printBanner(w io.Writer) {
	color.New(color.FgCyan).Fprint(w, banner)
	color.New(color.FgHiBlack).Fprintf(w, "    version: %s\n\n", version)
}

func routingSummary(primary, secondary bool) string {
	switch {
	case primary && secondary:
		return "streaming, fallback claude"
	case primary:
		return "streaming"
	case secondary:
		return "claude only"
	default:
		return "none (every request fails)"
	}
}
