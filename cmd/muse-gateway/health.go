// ABOUTME: health command probing a running gateway
// ABOUTME: Checks HTTP readiness and, when configured, the gRPC health service

package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"

	"github.com/2389/muse-gateway/internal/gateway"
)

func newHealthCmd(root *rootOptions) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check gateway health",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, _, err := root.load()
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			out := cmd.OutOrStdout()
			body, err := probeHTTP(ctx, "http://"+cfg.Server.HTTPAddr+"/health/ready")
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprint(out, "  ✓ ")
			fmt.Fprintf(out, "http  %s\n", body)

			if cfg.Server.GRPCAddr == "" {
				return nil
			}
			status, err := probeGRPC(ctx, cfg.Server.GRPCAddr)
			if err != nil {
				return err
			}
			color.New(color.FgGreen).Fprint(out, "  ✓ ")
			fmt.Fprintf(out, "grpc  %s\n", status)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "probe timeout")
	return cmd
}

func probeHTTP(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", fmt.Errorf("reading response: %w", err)
	}
	text := strings.TrimSpace(string(body))
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("unhealthy: status %d: %s", resp.StatusCode, text)
	}
	return text, nil
}

func probeGRPC(ctx context.Context, addr string) (string, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return "", fmt.Errorf("dialing gRPC: %w", err)
	}
	defer conn.Close()

	resp, err := healthpb.NewHealthClient(conn).Check(ctx, &healthpb.HealthCheckRequest{Service: gateway.HealthService})
	if err != nil {
		return "", fmt.Errorf("gRPC health check failed: %w", err)
	}
	if resp.GetStatus() != healthpb.HealthCheckResponse_SERVING {
		return "", fmt.Errorf("gRPC unhealthy: %s", resp.GetStatus())
	}
	return resp.GetStatus().String(), nil
}
