package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/config"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/database"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/platform/logger"
	"github.com/YahyawiAF/co-admin-system-sub001/internal/status_service/repository/postgres"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the statuses table and indexes",
	Long: `Apply the PostgreSQL schema for the status store.

The schema is idempotent; running it against an up-to-date database is a no-op.`,
	RunE: func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(serviceName)
		if err != nil {
			return fmt.Errorf("failed to load configuration: %w", err)
		}
		appLogger := logger.New(cfg.LogLevel)

		pool, err := database.NewDBPool(cmd.Context(), cfg.PostgresDSN, cfg.PostgresMaxConn)
		if err != nil {
			return fmt.Errorf("failed to connect to PostgreSQL: %w", err)
		}
		defer pool.Close()

		if err := postgres.Migrate(cmd.Context(), pool); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
		appLogger.Info("PostgreSQL schema applied")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
