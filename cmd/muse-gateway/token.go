// ABOUTME: token command that mints a JWT for a user
// ABOUTME: Uses the configured jwt_secret; optionally saves the token next to the config

package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/muse-gateway/internal/auth"
)

func newTokenCmd(root *rootOptions) *cobra.Command {
	var (
		userID string
		ttl    time.Duration
		save   bool
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Generate an API token for a user",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, configPath, err := root.load()
			if err != nil {
				return err
			}
			if cfg.Auth.JWTSecret == "" {
				return errors.New("jwt_secret not configured (authentication is disabled)")
			}

			token, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret)).Generate(userID, ttl)
			if err != nil {
				return fmt.Errorf("generating token: %w", err)
			}

			if save {
				tokenPath := filepath.Join(filepath.Dir(configPath), "token")
				if err := os.WriteFile(tokenPath, []byte(token), 0o600); err != nil {
					return fmt.Errorf("writing token file: %w", err)
				}
				fmt.Fprintf(cmd.ErrOrStderr(), "saved token to %s (expires %s)\n",
					tokenPath, time.Now().Add(ttl).UTC().Format("Jan 02, 2006"))
			}
			_, err = fmt.Fprintln(cmd.OutOrStdout(), token)
			return err
		},
	}
	cmd.Flags().StringVarP(&userID, "user", "u", "", "user id placed in the token subject")
	cmd.Flags().DurationVar(&ttl, "ttl", 30*24*time.Hour, "token lifetime")
	cmd.Flags().BoolVar(&save, "save", false, "also write the token to a file beside the config")
	_ = cmd.MarkFlagRequired("user")
	return cmd
}
