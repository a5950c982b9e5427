package main

import (
	"fmt"

	"github.com/goodtune/socialtracker/internal/auth"
	"github.com/goodtune/socialtracker/internal/config"
	"github.com/spf13/cobra"
)

var tokenTTL string

var tokenCmd = &cobra.Command{
	Use:   "token USER_ID",
	Short: "Issue an API bearer token",
	Long:  `Issue a bearer token for USER_ID signed with the configured secret, for the agent or for scripting against the API.`,
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().StringVar(&tokenTTL, "ttl", "", "Token lifetime (defaults to auth.token_ttl)")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	ttl := config.Duration(cfg.Auth.TokenTTL, auth.DefaultTokenTTL)
	if tokenTTL != "" {
		ttl = config.Duration(tokenTTL, ttl)
	}

	manager, err := auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.Issuer, ttl)
	if err != nil {
		return err
	}

	token, err := manager.GenerateToken(args[0])
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
