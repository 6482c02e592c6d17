package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/config"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Mint an access token signed with APP_JWT_ACCESS_SECRET",
	Long: `Print an HS256 access token accepted by this service.

Tokens are normally issued by the user service; this command is for local
testing of the webhook and realtime endpoints.

Example:
  status_service token --user ops-1 --role admin --ttl 1h`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}

		userID, _ := cmd.Flags().GetString("user")
		role, _ := cmd.Flags().GetString("role")
		ttl, _ := cmd.Flags().GetDuration("ttl")

		token, err := middleware.NewTokenVerifier(cfg.JWTAccessSecret).Issue(middleware.AuthenticatedUser{
			ID:       userID,
			Username: userID,
			RoleID:   role,
			IsAdmin:  role == cfg.AdminRole,
		}, ttl)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.Flags().String("user", "local-operator", "subject of the token")
	tokenCmd.Flags().String("role", "admin", "role claim")
	tokenCmd.Flags().Duration("ttl", time.Hour, "token lifetime")
}
